package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsUniqueAndDatePrefixed(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)
	g.now = func() time.Time { return time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC) }

	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := g.Next("TXN")
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	for id := range seen {
		assert.True(t, strings.HasPrefix(id, "TXN20240105"), id)
		break
	}
}

func TestNewRejectsInvalidNode(t *testing.T) {
	_, err := New(5000)
	assert.Error(t, err)
}

func TestSharedGeneratorWhenNodeUnset(t *testing.T) {
	g, err := New(0)
	require.NoError(t, err)
	g.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	a, b := g.Next("ACC"), g.Next("ACC")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "ACC20240301"), a)
	assert.Greater(t, len(a), len("ACC20240301"))
}
