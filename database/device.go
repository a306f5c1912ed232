package database

import (
	"context"
	"time"
)

// DeviceStore scopes every key of a shared store to one device, so devices
// reporting through the same database keep their own persistent id, leave
// flag, snapshots and read marks.
type DeviceStore struct {
	Store
	prefix string
}

func NewDeviceStore(s Store, deviceID string) *DeviceStore {
	return &DeviceStore{Store: s, prefix: "device_" + deviceID + ":"}
}

func (d *DeviceStore) Get(ctx context.Context, key string) (string, error) {
	return d.Store.Get(ctx, d.prefix+key)
}

func (d *DeviceStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return d.Store.Set(ctx, d.prefix+key, value, ttl)
}

func (d *DeviceStore) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = d.prefix + k
	}
	return d.Store.Delete(ctx, scoped...)
}
