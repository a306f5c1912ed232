package database

import (
	"context"
	"fmt"

	"github.com/clementus360/proxy-share/config"
)

// Open connects the store selected by cfg.Store. The shared backends are
// scoped to cfg.DeviceID.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Store {
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewDeviceStore(s, cfg.DeviceID), nil
	case "redis":
		s, err := OpenRedis(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		return NewDeviceStore(s, cfg.DeviceID), nil
	case "memory":
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
