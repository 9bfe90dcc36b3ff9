package services

import (
	"context"

	"github.com/ragyverse/apiserver/types"
)

// HistoryLimit caps the number of entries returned by Recent.
const HistoryLimit = 10

// HistoryRepository defines persistence operations for conversion history.
type HistoryRepository interface {
	Append(ctx context.Context, entry types.HistoryEntry) (types.HistoryEntry, error)
	ListRecent(ctx context.Context, username string, limit int) ([]types.HistoryEntry, error)
	HasAudioFile(ctx context.Context, username, audioFile string) (bool, error)
}

type HistoryService struct {
	repo HistoryRepository
}

func NewHistoryService(repo HistoryRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

// Recent returns the user's newest entries, newest first. It never returns a
// nil slice.
func (s *HistoryService) Recent(ctx context.Context, user types.User) ([]types.HistoryEntry, error) {
	entries, err := s.repo.ListRecent(ctx, user.Username, HistoryLimit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	return entries, nil
}
