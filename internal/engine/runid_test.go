package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pitwall/internal/store"
)

func TestUUIDv7Generator_RunIDs(t *testing.T) {
	gen := UUIDv7Generator{}

	id := gen.Generate()
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_UniqueAcrossLoaders(t *testing.T) {
	gen := UUIDv7Generator{}
	const loaders = 64

	ids := make(chan string, loaders)
	var wg sync.WaitGroup
	for i := 0; i < loaders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, loaders)
	for id := range ids {
		require.False(t, seen[id], "run id %s issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, loaders)
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("run-a", "run-b", "run-c")

	assert.Equal(t, "run-a", gen.Generate())
	assert.Equal(t, "run-b", gen.Generate())
	assert.Equal(t, "run-c", gen.Generate())
}

func TestFixedGenerator_ContinuesAfterList(t *testing.T) {
	gen := NewFixedGenerator("run-a")

	assert.Equal(t, "run-a", gen.Generate())
	assert.Equal(t, "run-a-1", gen.Generate())
	assert.Equal(t, "run-a-2", gen.Generate())
}

func TestFixedGenerator_EmptyIDs(t *testing.T) {
	gen := NewFixedGenerator()

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
}

func TestEngine_RunIDFromGenerator(t *testing.T) {
	s := setupTestStore(t)
	seedCountries(t, s, countryRow{"Monaco", "MC", "2024-01-01 00:00:00"})

	eng := newTestEngine(s, WithRunIDs(NewFixedGenerator("run-fixed")))
	res, err := eng.Load(context.Background(), countryEntity())
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", res.RunID)

	runs, err := s.ListRuns(context.Background(), store.RunFilter{Process: "country"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-fixed", runs[0].RunID)
}

func TestEngine_DefaultRunIDIsUUIDv7(t *testing.T) {
	s := setupTestStore(t)
	eng := New(s, WithLogger(discardLogger()), WithClock(NewFixedClock(testStart)))

	res, err := eng.Load(context.Background(), countryEntity())
	require.NoError(t, err)

	parsed, err := uuid.Parse(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
