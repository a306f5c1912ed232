package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("PROXY_SHARE_TEST_KEY", "value")
	if got := GetEnv("PROXY_SHARE_TEST_KEY", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := GetEnv("PROXY_SHARE_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("PROXY_SHARE_SESSION_ID", "abc")

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Store != "sqlite" {
		t.Fatalf("expected sqlite store, got %q", cfg.Store)
	}
	if cfg.ClusterDistance != 25 {
		t.Fatalf("expected cluster distance 25, got %v", cfg.ClusterDistance)
	}
	if cfg.StaticInterval != 5*time.Second {
		t.Fatalf("expected 5s static interval, got %v", cfg.StaticInterval)
	}
	if _, _, ok := cfg.StaticPosition(); ok {
		t.Fatal("expected no static position by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("PROXY_SHARE_SESSION_ID", "abc")
	t.Setenv("PROXY_SHARE_EXPIRES_AT", "2030-01-02T03:04:05Z")
	t.Setenv("PROXY_SHARE_MOBILE", "true")
	t.Setenv("PROXY_SHARE_STATIC_LATITUDE", "35.5")
	t.Setenv("PROXY_SHARE_STATIC_LONGITUDE", "139.5")

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if !cfg.ExpiresAt.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", cfg.ExpiresAt)
	}
	if !cfg.Mobile {
		t.Fatal("expected mobile flag")
	}
	if lat, lng, ok := cfg.StaticPosition(); !ok || lat != 35.5 || lng != 139.5 {
		t.Fatalf("expected static position, got %q %q", cfg.StaticLatitude, cfg.StaticLongitude)
	}
}

func TestParseEnvRequiresSession(t *testing.T) {
	t.Setenv("PROXY_SHARE_SESSION_ID", "")

	var cfg Config
	err := ParseEnv(&cfg)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		t.Fatal("expected an error without a session id")
	}
}

func TestValidate(t *testing.T) {
	base := Config{ServerURL: "http://localhost:8000", SessionID: "s", Store: "memory", ClusterDistance: 25, MovementThreshold: 3}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := base
	bad.Store = "floppy"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unknown store to fail")
	}

	bad = base
	bad.StaticLatitude = "1.0"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected half a static position to fail")
	}

	bad.StaticLongitude = "east"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unparsable static position to fail")
	}

	bad = base
	bad.Store = "redis"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected a shared store without device id to fail")
	}
	bad.DeviceID = "kiosk-1"
	if err := bad.Validate(); err != nil {
		t.Fatalf("expected shared store with device id to pass, got %v", err)
	}
}

func TestURLs(t *testing.T) {
	cfg := Config{ServerURL: "https://share.example.com/", SessionID: "s1"}
	if got := cfg.WebSocketURL(); got != "wss://share.example.com/ws/location/s1/" {
		t.Fatalf("unexpected websocket url %q", got)
	}
	if got := cfg.BeaconURL(); got != "https://share.example.com/api/background-status/" {
		t.Fatalf("unexpected beacon url %q", got)
	}

	cfg.ServerURL = "http://localhost:8000"
	if got := cfg.WebSocketURL(); got != "ws://localhost:8000/ws/location/s1/" {
		t.Fatalf("unexpected websocket url %q", got)
	}
}
