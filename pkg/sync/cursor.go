package sync

import (
	"sync"
	"time"
)

// Attempt is the outcome of the most recent sync attempt.
type Attempt struct {
	Time    time.Time
	Success bool
	Error   string
}

// Tracker holds the per-calendar continuation tokens handed out by the
// Calendar API together with last-attempt bookkeeping. It is deliberately
// in-memory only: a process restart loses all tokens and the next cycle
// falls back to a full sync, which re-establishes a complete mirror.
type Tracker struct {
	mu          sync.Mutex
	tokens      map[string]string
	lastAttempt *Attempt
}

func NewTracker() *Tracker {
	return &Tracker{tokens: make(map[string]string)}
}

func (t *Tracker) Token(calendarId string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokens[calendarId]
}

func (t *Tracker) SetToken(calendarId, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[calendarId] = token
}

func (t *Tracker) ClearToken(calendarId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, calendarId)
}

func (t *Tracker) HasToken(calendarId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokens[calendarId] != ""
}

func (t *Tracker) RecordSuccess(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAttempt = &Attempt{Time: at, Success: true}
}

func (t *Tracker) RecordFailure(at time.Time, errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAttempt = &Attempt{Time: at, Success: false, Error: errText}
}

// LastAttempt returns a copy of the last attempt outcome, or nil before the
// first sync.
func (t *Tracker) LastAttempt() *Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastAttempt == nil {
		return nil
	}
	attempt := *t.lastAttempt
	return &attempt
}
