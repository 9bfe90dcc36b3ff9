// Package idgen produces collision-resistant, time-sortable identifiers.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ArtifactPrefix prefixes generated audio artifact identifiers.
const ArtifactPrefix = "response_"

// Generator hands out monotonic ULIDs and is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *Generator) New() string {
	return g.NewAt(time.Now().UTC())
}

func (g *Generator) NewAt(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// NewArtifactID returns a new audio artifact identifier such as
// "response_01J9Z3K8B6W5E2T1Q0R7Y4X3V2".
func (g *Generator) NewArtifactID() string {
	return ArtifactPrefix + g.New()
}
