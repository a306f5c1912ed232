package reconcile

import (
	"time"

	"github.com/clementus360/proxy-share/loop"
)

// DuplicateWindow is how long an identical notification text is suppressed.
const DuplicateWindow = 5 * time.Second

// Limiter suppresses a notification text repeated within the window, so
// overlapping update paths describing one change produce one toast.
type Limiter struct {
	clock  loop.Clock
	window time.Duration
	seen   map[string]time.Time
}

func NewLimiter(clock loop.Clock, window time.Duration) *Limiter {
	return &Limiter{clock: clock, window: window, seen: make(map[string]time.Time)}
}

func (l *Limiter) Allow(text string) bool {
	now := l.clock.Now()
	for t, at := range l.seen {
		if now.Sub(at) >= l.window {
			delete(l.seen, t)
		}
	}
	if _, ok := l.seen[text]; ok {
		return false
	}
	l.seen[text] = now
	return true
}
