/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragyverse/apiserver/config"
	"github.com/ragyverse/apiserver/internal/mq"
	"github.com/ragyverse/apiserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd groups commands that work with the conversion event stream.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect conversion events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log conversion events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if bus == nil {
			return errors.New("no event backend configured; set MQ_BACKEND")
		}
		defer func() {
			_ = bus.Close()
		}()

		logger.Info("tailing conversion events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = bus.Subscribe(ctx, cfg.MQ.Channel, func(_ context.Context, msg mq.Message) error {
			var event types.ConversionEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn("undecodable event", "id", msg.ID, "error", err)
				return nil
			}
			logger.Info("conversion",
				"id", event.ID,
				"username", event.Username,
				"audio_file", event.AudioFile,
				"language", event.Language,
				"text_length", event.TextLength,
				"created_at", event.CreatedAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
