// Package database persists the client's device-local state: the warm-restart
// snapshot of a session, the leave-in-progress flag, read marks and the
// persistent participant id.
package database

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is a string key-value store with optional per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A ttl of zero never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
