package lifecycle

import (
	"context"
	"time"

	"github.com/clementus360/proxy-share/database"
)

// LeavingValidity bounds how long a leave flag can block re-entry.
const LeavingValidity = database.LeavingTTL

// LeaveGuard is the durable "leave in progress" flag.
type LeaveGuard struct {
	db        database.Store
	sessionID string
	now       func() time.Time
}

func NewLeaveGuard(db database.Store, sessionID string, now func() time.Time) *LeaveGuard {
	if now == nil {
		now = time.Now
	}
	return &LeaveGuard{db: db, sessionID: sessionID, now: now}
}

// InProgress reports a leave flag younger than LeavingValidity.
func (g *LeaveGuard) InProgress(ctx context.Context) (bool, error) {
	since, ok, err := database.LeavingSince(ctx, g.db, g.sessionID)
	if err != nil || !ok {
		return false, err
	}
	return g.now().Sub(since) < LeavingValidity, nil
}

// Begin records a leave. It returns false when one is already running.
func (g *LeaveGuard) Begin(ctx context.Context) (bool, error) {
	busy, err := g.InProgress(ctx)
	if err != nil {
		return false, err
	}
	if busy {
		return false, nil
	}
	return true, database.MarkLeaving(ctx, g.db, g.sessionID, g.now())
}

// CheckStartup reports whether startup must abort because a leave is still
// in flight. The flag is cleared either way.
func (g *LeaveGuard) CheckStartup(ctx context.Context) (bool, error) {
	busy, err := g.InProgress(ctx)
	if err != nil {
		return false, err
	}
	return busy, database.ClearLeaving(ctx, g.db, g.sessionID)
}
