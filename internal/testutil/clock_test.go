package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func TestStepClock_StartsAtStart(t *testing.T) {
	clock := NewStepClock(base)
	assert.Equal(t, base, clock.Now())
}

func TestStepClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	clock := NewStepClock(time.Date(2024, 3, 1, 10, 30, 0, 0, loc))
	assert.Equal(t, base, clock.Now())
	assert.Equal(t, time.UTC, clock.Now().Location())
}

func TestStepClock_SetAndReset(t *testing.T) {
	clock := NewStepClock(base)

	later := base.Add(48 * time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())

	// Backwards is allowed
	clock.Set(base.Add(-time.Minute))
	assert.Equal(t, base.Add(-time.Minute), clock.Now())

	clock.Reset()
	assert.Equal(t, base, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(base)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clock.Set(base.Add(time.Duration(i) * time.Second))
			_ = clock.Now()
		}(i)
	}
	wg.Wait()

	now := clock.Now()
	assert.False(t, now.Before(base))
	assert.False(t, now.After(base.Add(49*time.Second)))
}
