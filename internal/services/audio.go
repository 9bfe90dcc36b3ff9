package services

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"

	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/storage"
	"github.com/ragyverse/apiserver/internal/synth"
)

var audioIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// audioFormats lists the stored encodings in lookup order.
var audioFormats = []struct {
	ext         string
	contentType string
}{
	{".mp3", synth.ContentTypeMP3},
	{".wav", synth.ContentTypeWAV},
}

// Artifact is an opened audio file. The caller closes Body.
type Artifact struct {
	Name        string
	Body        io.ReadCloser
	ContentType string
	Size        int64
	ModTime     time.Time
}

type AudioService struct {
	store   ArtifactStore
	history HistoryRepository
}

func NewAudioService(store ArtifactStore, history HistoryRepository) *AudioService {
	return &AudioService{store: store, history: history}
}

// Open finds the artifact stored under id. Identifiers outside the
// generated alphabet are reported as not found.
func (s *AudioService) Open(ctx context.Context, id string) (Artifact, error) {
	if !ValidAudioID(id) {
		return Artifact{}, apperr.ErrNotFound
	}

	for _, format := range audioFormats {
		key := id + format.ext
		obj, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			return Artifact{}, err
		}
		return Artifact{
			Name:        key,
			Body:        obj.Body,
			ContentType: format.contentType,
			Size:        obj.Size,
			ModTime:     obj.ModTime,
		}, nil
	}
	return Artifact{}, apperr.ErrNotFound
}

// OwnedBy reports whether id was produced by a conversion of username.
func (s *AudioService) OwnedBy(ctx context.Context, username, id string) (bool, error) {
	if !ValidAudioID(id) {
		return false, nil
	}
	return s.history.HasAudioFile(ctx, username, id)
}

func ValidAudioID(id string) bool {
	return audioIDPattern.MatchString(id)
}
