package sync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerTokenLifecycle(t *testing.T) {
	tracker := NewTracker()

	assert.False(t, tracker.HasToken("primary"))
	assert.Equal(t, "", tracker.Token("primary"))

	tracker.SetToken("primary", "token-1")
	assert.True(t, tracker.HasToken("primary"))
	assert.Equal(t, "token-1", tracker.Token("primary"))

	// Tokens are scoped per calendar
	assert.False(t, tracker.HasToken("work"))

	tracker.ClearToken("primary")
	assert.False(t, tracker.HasToken("primary"))
	assert.Equal(t, "", tracker.Token("primary"))
}

func TestTrackerLastAttempt(t *testing.T) {
	tracker := NewTracker()
	assert.Nil(t, tracker.LastAttempt())

	first := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	tracker.RecordFailure(first, "boom")

	attempt := tracker.LastAttempt()
	require.NotNil(t, attempt)
	assert.False(t, attempt.Success)
	assert.Equal(t, "boom", attempt.Error)
	assert.True(t, attempt.Time.Equal(first))

	second := first.Add(5 * time.Minute)
	tracker.RecordSuccess(second)

	attempt = tracker.LastAttempt()
	require.NotNil(t, attempt)
	assert.True(t, attempt.Success)
	assert.Equal(t, "", attempt.Error)
	assert.True(t, attempt.Time.Equal(second))
}

func TestTrackerLastAttemptReturnsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordSuccess(time.Now())

	attempt := tracker.LastAttempt()
	attempt.Success = false

	assert.True(t, tracker.LastAttempt().Success)
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.SetToken("primary", "token")
			tracker.Token("primary")
			tracker.RecordSuccess(time.Now())
			tracker.LastAttempt()
		}()
	}
	wg.Wait()

	assert.True(t, tracker.HasToken("primary"))
}
