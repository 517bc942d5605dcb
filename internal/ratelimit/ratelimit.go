// Package ratelimit counts attempts per key in fixed windows that start at a
// key's first attempt.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultKeys = 10000

// ExceededError reports a rejected attempt and when the window reopens.
type ExceededError struct {
	Key     string
	ResetAt time.Time
}

func (e ExceededError) Error() string {
	return fmt.Sprintf("too many attempts for %s; try again after %s", e.Key, e.ResetAt.UTC().Format(time.RFC3339))
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter allows Max attempts per Window for each key. A zero Max disables it.
type Limiter struct {
	Max    int
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	windows *expirable.LRU[string, window]
}

func New(max int, win time.Duration) *Limiter {
	ttl := win
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Limiter{
		Max:     max,
		Window:  win,
		Now:     time.Now,
		windows: expirable.NewLRU[string, window](defaultKeys, nil, ttl),
	}
}

// Allow records an attempt for key, or returns ExceededError when the key
// already used its budget.
func (l *Limiter) Allow(key string) error {
	if l == nil || l.Max <= 0 || l.Window <= 0 {
		return nil
	}
	now := l.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows.Get(key)
	if !ok || !now.Before(w.resetAt) {
		l.windows.Add(key, window{count: 1, resetAt: now.Add(l.Window)})
		return nil
	}
	if w.count >= l.Max {
		return ExceededError{Key: key, ResetAt: w.resetAt}
	}
	w.count++
	l.windows.Add(key, w)
	return nil
}

// Reset forgets the attempts recorded for key.
func (l *Limiter) Reset(key string) {
	if l == nil || l.windows == nil {
		return
	}
	l.mu.Lock()
	l.windows.Remove(key)
	l.mu.Unlock()
}
