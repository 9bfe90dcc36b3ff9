package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewArtifactID_Format(t *testing.T) {
	id := NewGenerator().NewArtifactID()

	require.True(t, strings.HasPrefix(id, ArtifactPrefix))
	require.Len(t, id, len(ArtifactPrefix)+26)
}

func TestNewAt_SameInstantIsStillUnique(t *testing.T) {
	g := NewGenerator()
	at := time.Unix(1700000000, 0).UTC()

	a := g.NewAt(at)
	b := g.NewAt(at)

	require.NotEqual(t, a, b)
	require.Less(t, a, b)
}

func TestConcurrentIDsDoNotCollide(t *testing.T) {
	g := NewGenerator()
	const n = 500

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.NewArtifactID()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
}
