package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ragyverse/apiserver/config"
)

const natsMsgIDHeader = "Msg-Id"

// NATSClient publishes and subscribes on core NATS subjects. Delivery is
// at-most-once, so a failing handler only drops the message.
type NATSClient struct {
	conn *nats.Conn
}

// NewNATSClient connects to the server at cfg.URL.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("ttsapi"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSClient{conn: conn}, nil
}

// Publish sends a message on the named subject.
func (n *NATSClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("nats channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := newMessageID()
	msg := nats.NewMsg(channel)
	msg.Data = data
	msg.Header.Set(natsMsgIDHeader, messageID)
	for key, value := range attrs {
		msg.Header.Set(key, value)
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		return "", err
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes messages from the named subject until ctx is done.
func (n *NATSClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("nats channel is required")
	}

	msgs := make(chan *nats.Msg, 64)
	sub, err := n.conn.ChanSubscribe(channel, msgs)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	if err := n.conn.FlushWithContext(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			_ = handler(ctx, Message{
				ID:         msg.Header.Get(natsMsgIDHeader),
				Data:       msg.Data,
				Attributes: natsHeaderToAttributes(msg.Header),
			})
		}
	}
}

// Close drains pending messages and closes the connection.
func (n *NATSClient) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

func natsHeaderToAttributes(h nats.Header) map[string]string {
	attrs := make(map[string]string, len(h))
	for key := range h {
		if key == natsMsgIDHeader {
			continue
		}
		attrs[key] = h.Get(key)
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
