package websocket

import (
	"strings"
	"testing"
	"time"

	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/protocol"
)

type fakeSocket struct {
	url    string
	events Events
	sent   []string
	closed bool
	code   int
	reason string
}

func (s *fakeSocket) Send(data []byte) error {
	if s.closed {
		return ErrNotOpen
	}
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.closed = true
	s.code = code
	s.reason = reason
	return nil
}

func (s *fakeSocket) open() { s.events.OnOpen() }

func (s *fakeSocket) drop() { s.events.OnClose(CloseEvent{Code: CloseAbnormal}) }

func (s *fakeSocket) deliver(msg string) { s.events.OnMessage([]byte(msg)) }

type fakeTransport struct {
	sockets []*fakeSocket
}

func (t *fakeTransport) Open(url string, events Events) (Socket, error) {
	s := &fakeSocket{url: url, events: events}
	t.sockets = append(t.sockets, s)
	return s, nil
}

func (t *fakeTransport) last() *fakeSocket {
	return t.sockets[len(t.sockets)-1]
}

type fakeHandler struct {
	opened     int
	received   []string
	heartbeats int
	keepalives int
}

func (h *fakeHandler) Opened() { h.opened++ }

func (h *fakeHandler) Received(data []byte) { h.received = append(h.received, string(data)) }

func (h *fakeHandler) Heartbeat(keepalive bool) protocol.Outbound {
	if keepalive {
		h.keepalives++
	} else {
		h.heartbeats++
	}
	return protocol.Ping{ParticipantID: "me", KeepConnection: keepalive}
}

type fixture struct {
	clock     *loop.FakeClock
	transport *fakeTransport
	handler   *fakeHandler
	statuses  []Status
	manager   *Manager
}

func newFixture(t *testing.T, mobile bool) *fixture {
	t.Helper()
	f := &fixture{
		clock:     loop.NewFakeClock(time.Unix(1_700_000_000, 0)),
		transport: &fakeTransport{},
		handler:   &fakeHandler{},
	}
	f.manager = NewManager(Options{
		URL:       "ws://example.test/ws/location/s1/",
		Mobile:    mobile,
		Transport: f.transport,
		Clock:     f.clock,
		Handler:   f.handler,
		OnStatus:  func(s Status) { f.statuses = append(f.statuses, s) },
	})
	return f
}

func TestOpenStartsHeartbeat(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	if f.manager.State() != Connecting || len(f.transport.sockets) != 1 {
		t.Fatalf("expected one dial in progress, got %v/%d", f.manager.State(), len(f.transport.sockets))
	}
	f.transport.last().open()
	if f.manager.State() != Open || f.handler.opened != 1 {
		t.Fatalf("expected open state and one Opened call")
	}

	f.clock.Advance(ForegroundHeartbeat)
	sent := f.transport.last().sent
	if len(sent) != 1 || !strings.HasPrefix(sent[0], `{"type":"ping"`) {
		t.Fatalf("expected one ping, got %v", sent)
	}

	f.transport.last().deliver(`{"type":"pong"}`)
	if len(f.handler.received) != 1 {
		t.Errorf("frame not handed to the handler")
	}
}

func TestSendIsDroppedWhenNotOpen(t *testing.T) {
	f := newFixture(t, false)
	if f.manager.Send(protocol.Leave{ParticipantID: "me"}) {
		t.Errorf("send succeeded without a connection")
	}
	f.manager.Connect()
	if f.manager.Send(protocol.Leave{ParticipantID: "me"}) {
		t.Errorf("send succeeded while connecting")
	}
	if len(f.transport.last().sent) != 0 {
		t.Errorf("message was queued")
	}
}

func TestForegroundBackoffSequence(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()

	delays := []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}
	for i, d := range delays {
		f.transport.last().drop()
		if f.manager.State() != Reconnecting {
			t.Fatalf("attempt %d: expected reconnecting, got %v", i, f.manager.State())
		}
		f.clock.Advance(d - time.Millisecond)
		if len(f.transport.sockets) != i+1 {
			t.Fatalf("attempt %d: reconnected before %v", i, d)
		}
		f.clock.Advance(time.Millisecond)
		if len(f.transport.sockets) != i+2 {
			t.Fatalf("attempt %d: no reconnect after %v", i, d)
		}
	}
}

func TestReconnectCeiling(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()

	for i := 0; i < ForegroundPolicy.Ceiling; i++ {
		f.transport.last().drop()
		f.clock.Advance(ForegroundPolicy.Max + time.Second)
	}
	if got := len(f.transport.sockets); got != ForegroundPolicy.Ceiling+1 {
		t.Fatalf("expected %d dials, got %d", ForegroundPolicy.Ceiling+1, got)
	}

	f.transport.last().drop()
	if !f.manager.Exhausted() || f.manager.State() != Idle {
		t.Fatalf("expected exhausted idle manager, got %v exhausted=%v", f.manager.State(), f.manager.Exhausted())
	}
	f.clock.Advance(5 * time.Minute)
	if got := len(f.transport.sockets); got != ForegroundPolicy.Ceiling+1 {
		t.Errorf("dialed again after giving up: %d", got)
	}
	if f.statuses[len(f.statuses)-1] != StatusDisconnected {
		t.Errorf("expected a final disconnected status, got %v", f.statuses)
	}
}

func TestCeilingHoldsAfterHeartbeatStarted(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	f.transport.last().open()

	for i := 0; i < ForegroundPolicy.Ceiling; i++ {
		f.transport.last().drop()
		f.clock.Advance(ForegroundPolicy.Max + time.Second)
	}
	f.transport.last().drop()
	dials := len(f.transport.sockets)
	if dials != ForegroundPolicy.Ceiling+1 || !f.manager.Exhausted() {
		t.Fatalf("expected %d dials and an exhausted manager, got %d exhausted=%v", ForegroundPolicy.Ceiling+1, dials, f.manager.Exhausted())
	}

	f.clock.Advance(5 * time.Minute)
	if got := len(f.transport.sockets); got != dials {
		t.Fatalf("dialed again after giving up: %d, want %d", got, dials)
	}
	f.manager.Connect()
	if got := len(f.transport.sockets); got != dials || f.manager.State() != Idle {
		t.Fatalf("Connect dialed after giving up: %d in %v", got, f.manager.State())
	}
	if f.handler.heartbeats != 0 {
		t.Errorf("heartbeat ran while disconnected: %d", f.handler.heartbeats)
	}
}

func TestForegroundReturnClearsCeiling(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	for i := 0; i <= ForegroundPolicy.Ceiling; i++ {
		f.transport.last().drop()
		f.clock.Advance(ForegroundPolicy.Max + time.Second)
	}
	if !f.manager.Exhausted() {
		t.Fatal("expected an exhausted manager")
	}
	dials := len(f.transport.sockets)

	f.manager.SetBackground(true)
	f.manager.SetBackground(false)
	if got := len(f.transport.sockets); got != dials+1 || f.manager.State() != Connecting {
		t.Fatalf("expected one fresh dial, got %d sockets in %v", got-dials, f.manager.State())
	}
	if f.manager.Exhausted() {
		t.Errorf("ceiling not cleared on foreground return")
	}

	f.transport.last().drop()
	if f.manager.State() != Reconnecting {
		t.Errorf("expected a fresh reconnect ladder, got %v", f.manager.State())
	}
}

func TestOpenResetsAttempts(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	f.transport.last().drop()
	f.clock.Advance(time.Second)
	f.transport.last().drop()
	if fg, _ := f.manager.Attempts(); fg != 2 {
		t.Fatalf("expected 2 attempts, got %d", fg)
	}

	f.clock.Advance(1500 * time.Millisecond)
	f.transport.last().open()
	if fg, bg := f.manager.Attempts(); fg != 0 || bg != 0 {
		t.Errorf("attempts not reset on open: %d/%d", fg, bg)
	}

	f.transport.last().drop()
	f.clock.Advance(time.Second)
	if len(f.transport.sockets) != 4 {
		t.Errorf("backoff sequence not reset on open")
	}
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	for _, ev := range []CloseEvent{
		{Code: CloseNormal, Reason: ReasonUserLeave, WasClean: true},
		{Code: CloseNormal, Reason: ReasonPageUnload},
		{Code: 4000, Reason: "bye", WasClean: true},
	} {
		f := newFixture(t, false)
		f.manager.Connect()
		f.transport.last().open()
		f.transport.last().events.OnClose(ev)

		f.clock.Advance(5 * time.Minute)
		if len(f.transport.sockets) != 1 {
			t.Errorf("%+v: reconnected", ev)
		}
		if f.manager.State() != Idle {
			t.Errorf("%+v: expected idle, got %v", ev, f.manager.State())
		}
	}
}

func TestLeaveIsTerminal(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	sock := f.transport.last()
	sock.open()

	f.manager.Leave()
	if !sock.closed || sock.code != CloseNormal || sock.reason != ReasonUserLeave {
		t.Fatalf("expected close 1000 user_leave, got %v %d %q", sock.closed, sock.code, sock.reason)
	}
	if f.manager.State() != LeavingClosed {
		t.Fatalf("expected leaving state, got %v", f.manager.State())
	}
	if f.manager.Send(protocol.Leave{ParticipantID: "me"}) {
		t.Errorf("send after leave succeeded")
	}

	sock.drop()
	f.manager.Connect()
	f.manager.SetBackground(true)
	f.manager.SetBackground(false)
	f.clock.Advance(10 * time.Minute)
	if len(f.transport.sockets) != 1 {
		t.Errorf("reconnected after leaving")
	}
	if f.handler.heartbeats != 0 {
		t.Errorf("heartbeat kept running after leaving")
	}
}

func TestPendingReconnectRechecksTerminal(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	f.transport.last().drop()
	f.manager.Expire()

	f.clock.Advance(time.Minute)
	if len(f.transport.sockets) != 1 {
		t.Errorf("reconnected after expiry")
	}
	if f.manager.State() != Expired {
		t.Errorf("expected expired state, got %v", f.manager.State())
	}
}

func TestForegroundReturnReconnectsImmediately(t *testing.T) {
	f := newFixture(t, true)
	f.manager.SetBackground(true)
	f.manager.Connect()
	f.transport.last().drop()
	if _, bg := f.manager.Attempts(); bg != 1 {
		t.Fatalf("expected a background attempt, got %d", bg)
	}

	f.manager.SetBackground(false)
	if len(f.transport.sockets) != 2 || f.manager.State() != Connecting {
		t.Fatalf("expected an immediate dial, got %d sockets in %v", len(f.transport.sockets), f.manager.State())
	}
	if _, bg := f.manager.Attempts(); bg != 0 {
		t.Errorf("background attempts not reset")
	}

	f.clock.Advance(BackgroundPolicy.Base)
	if len(f.transport.sockets) != 2 {
		t.Errorf("stale backoff timer fired")
	}
}

func TestBackgroundCadenceAndKeepalive(t *testing.T) {
	f := newFixture(t, true)
	f.manager.Connect()
	f.transport.last().open()
	f.manager.SetBackground(true)

	f.clock.Advance(KeepaliveInterval)
	if f.handler.heartbeats != 1 {
		t.Errorf("expected one background heartbeat in 30s, got %d", f.handler.heartbeats)
	}
	if f.handler.keepalives != 1 {
		t.Errorf("expected one keepalive, got %d", f.handler.keepalives)
	}

	f.manager.SetBackground(false)
	f.clock.Advance(time.Minute)
	if f.handler.keepalives != 1 {
		t.Errorf("keepalive kept running in the foreground")
	}
	if f.handler.heartbeats != 2 {
		t.Errorf("expected foreground cadence, got %d heartbeats", f.handler.heartbeats)
	}
}

func TestDesktopHasNoKeepalive(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	f.transport.last().open()
	f.manager.SetBackground(true)

	f.clock.Advance(time.Minute)
	if f.handler.keepalives != 0 {
		t.Errorf("desktop client sent keepalives")
	}
}

func TestStatusIsDebounced(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Connect()
	f.clock.Advance(200 * time.Millisecond)
	f.transport.last().open()
	f.clock.Advance(statusDelay)

	if len(f.statuses) != 1 || f.statuses[0] != StatusConnected {
		t.Fatalf("expected only connected, got %v", f.statuses)
	}
}

func TestStatusDebouncerSkipsRepeats(t *testing.T) {
	clock := loop.NewFakeClock(time.Unix(0, 0))
	var got []Status
	d := newStatusDebouncer(clock, time.Second, func(s Status) { got = append(got, s) })

	d.report(StatusConnected)
	clock.Advance(time.Second)
	d.report(StatusReconnecting)
	clock.Advance(300 * time.Millisecond)
	d.report(StatusConnected)
	clock.Advance(time.Second)

	if len(got) != 1 || got[0] != StatusConnected {
		t.Errorf("expected a single connected status, got %v", got)
	}
}
