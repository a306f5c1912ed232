package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/protocol"
)

type transitions struct {
	background []bool
	foreground int
}

func newVisibility() (*Visibility, *transitions) {
	tr := &transitions{}
	v := NewVisibility(Hooks{
		EnterBackground:  func(unloading bool) { tr.background = append(tr.background, unloading) },
		ReturnForeground: func() { tr.foreground++ },
	})
	return v, tr
}

func TestVisibilityTransitions(t *testing.T) {
	v, tr := newVisibility()

	if !v.Handle(Hidden) || v.Phase() != Background {
		t.Fatalf("hidden should enter the background")
	}
	if v.Handle(Blur) {
		t.Errorf("blur while hidden should not transition again")
	}
	if !v.Handle(Focus) || v.Phase() != Foreground {
		t.Fatalf("focus should return to the foreground")
	}
	v.Handle(Blur)
	v.Handle(Shown)

	if len(tr.background) != 2 || tr.foreground != 2 {
		t.Errorf("unexpected transitions %+v", tr)
	}
	for _, unloading := range tr.background {
		if unloading {
			t.Errorf("no transition should be marked as unloading")
		}
	}
}

func TestUnloadSuppressesFocusFlapping(t *testing.T) {
	v, tr := newVisibility()

	v.Handle(BeforeUnload)
	if len(tr.background) != 1 || !tr.background[0] {
		t.Fatalf("beforeunload should enter the background as unloading, got %+v", tr)
	}
	v.Handle(Focus)
	v.Handle(PageShow)
	if v.Phase() != Background || tr.foreground != 0 {
		t.Errorf("focus during unload returned to the foreground")
	}

	v.Handle(PageShowPersisted)
	if v.Phase() != Foreground || v.Unloading() {
		t.Errorf("a restored page should be back in the foreground")
	}
}

func TestPageHideWhileBackgrounded(t *testing.T) {
	v, tr := newVisibility()
	v.Handle(Hidden)
	v.Handle(PageHide)

	if len(tr.background) != 1 {
		t.Errorf("pagehide in the background should not transition twice")
	}
	if !v.Unloading() {
		t.Errorf("pagehide should mark the page as unloading")
	}
	v.Handle(Shown)
	if v.Phase() != Foreground {
		t.Errorf("shown should always bring the page back")
	}
}

func TestParseSignal(t *testing.T) {
	sig, err := ParseSignal("pageshow_persisted")
	if err != nil || sig != PageShowPersisted {
		t.Errorf("got %v %v", sig, err)
	}
	if _, err := ParseSignal("resize"); err == nil {
		t.Errorf("expected an error for an unknown signal")
	}
}

func TestCountdown(t *testing.T) {
	clock := loop.NewFakeClock(time.Unix(1_700_000_000, 0))
	var shown []string
	expired := 0
	c := NewCountdown(clock, clock.Now().Add(3*time.Second+500*time.Millisecond),
		func(s string) { shown = append(shown, s) },
		func() { expired++ })

	c.Start()
	if shown[0] != "00:00:03" {
		t.Errorf("expected 00:00:03 first, got %q", shown[0])
	}
	clock.Advance(10 * time.Second)

	if expired != 1 {
		t.Errorf("expiry fired %d times", expired)
	}
	if shown[len(shown)-1] != ExpiredText {
		t.Errorf("expected the expired text last, got %v", shown)
	}
	c.Start()
	clock.Advance(10 * time.Second)
	if expired != 1 {
		t.Errorf("expiry fired again after restart")
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59*time.Second + 900*time.Millisecond, "00:00:59"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
		{-time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.d); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLeaveGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	db := database.NewMemoryStore(clock)
	g := NewLeaveGuard(db, "s1", clock)

	ok, err := g.Begin(ctx)
	if err != nil || !ok {
		t.Fatalf("first leave should start: %v %v", ok, err)
	}
	ok, err = g.Begin(ctx)
	if err != nil || ok {
		t.Fatalf("second leave should be refused: %v %v", ok, err)
	}

	now = now.Add(3 * time.Second)
	blocked, err := g.CheckStartup(ctx)
	if err != nil || !blocked {
		t.Fatalf("reload during a leave should be blocked: %v %v", blocked, err)
	}
	blocked, _ = g.CheckStartup(ctx)
	if blocked {
		t.Errorf("startup check should clear the flag")
	}
}

func TestLeaveGuardIgnoresStaleFlag(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	db := database.NewMemoryStore(clock)
	g := NewLeaveGuard(db, "s1", clock)

	if _, err := g.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	now = now.Add(LeavingValidity + time.Second)
	if busy, _ := g.InProgress(ctx); busy {
		t.Errorf("a flag older than the validity window should not count")
	}
}

func TestHTTPBeaconPost(t *testing.T) {
	var got protocol.Beacon
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	b := NewHTTPBeacon(srv.URL + "/api/background-status/")
	err := b.Post(context.Background(), protocol.Beacon{
		SessionID:     "s1",
		ParticipantID: "me",
		Action:        "background_transition",
		Immediate:     true,
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if got.SessionID != "s1" || got.Action != "background_transition" || !got.Immediate {
		t.Errorf("unexpected beacon %+v", got)
	}
}

func TestHTTPBeaconReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	if err := NewHTTPBeacon(srv.URL).Post(context.Background(), protocol.Beacon{}); err == nil {
		t.Errorf("expected an error for a 500 response")
	}
}
