package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ragyverse/apiserver/types"
)

// HistoryRepository persists the append-only conversion history.
type HistoryRepository struct {
	db     *sql.DB
	driver string
}

func NewHistoryRepository(db *sql.DB, driver string) *HistoryRepository {
	return &HistoryRepository{db: db, driver: driver}
}

func (r *HistoryRepository) Append(ctx context.Context, entry types.HistoryEntry) (types.HistoryEntry, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := rebind(r.driver, `
		INSERT INTO history (username, action, question, answer, audio_file, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`)
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.Username,
		entry.Action,
		entry.Question,
		entry.Answer,
		entry.AudioFile,
		entry.Timestamp,
	).Scan(&entry.ID); err != nil {
		return types.HistoryEntry{}, fmt.Errorf("append history: %w", err)
	}
	return entry, nil
}

// ListRecent returns up to limit entries for username, newest first. Entries
// sharing a timestamp are ordered by insertion.
func (r *HistoryRepository) ListRecent(ctx context.Context, username string, limit int) ([]types.HistoryEntry, error) {
	if limit < 1 {
		limit = 10
	}

	query := rebind(r.driver, `
		SELECT id, username, action, question, answer, audio_file, created_at
		FROM history
		WHERE username = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`)
	rows, err := r.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := make([]types.HistoryEntry, 0, limit)
	for rows.Next() {
		var entry types.HistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Username,
			&entry.Action,
			&entry.Question,
			&entry.Answer,
			&entry.AudioFile,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// HasAudioFile reports whether username has a history entry for audioFile.
func (r *HistoryRepository) HasAudioFile(ctx context.Context, username, audioFile string) (bool, error) {
	query := rebind(r.driver, `
		SELECT EXISTS (
			SELECT 1 FROM history WHERE username = $1 AND audio_file = $2
		)`)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, audioFile).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup history: %w", err)
	}
	return exists, nil
}
