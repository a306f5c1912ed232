// Package websocket keeps the session connection alive: it dials, reconnects
// with backoff, runs the heartbeat and hands inbound frames to a Handler.
package websocket

import (
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/protocol"
)

type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Reconnecting
	LeavingClosed
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Reconnecting:
		return "reconnecting"
	case LeavingClosed:
		return "leaving"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Terminal states never reconnect.
func (s State) Terminal() bool {
	return s == LeavingClosed || s == Expired
}

const (
	ForegroundHeartbeat = 60 * time.Second
	BackgroundHeartbeat = 20 * time.Second
	KeepaliveInterval   = 30 * time.Second
)

// Policy is a reconnect delay sequence with an attempt ceiling.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Ceiling    int
}

var (
	ForegroundPolicy = Policy{Base: time.Second, Multiplier: 1.5, Max: 30 * time.Second, Ceiling: 10}
	BackgroundPolicy = Policy{Base: 3 * time.Second, Multiplier: 1.2, Max: 15 * time.Second, Ceiling: 50}
)

func (p Policy) backoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
	}
	b.Reset()
	return b
}

// Handler receives connection events on the event loop.
type Handler interface {
	// Opened runs after every successful (re)connect.
	Opened()
	Received(data []byte)
	// Heartbeat builds the ping payload; keepalive is true for the
	// background keepalive ping.
	Heartbeat(keepalive bool) protocol.Outbound
}

type Options struct {
	URL       string
	Mobile    bool
	Transport Transport
	Clock     loop.Clock
	Handler   Handler
	OnStatus  func(Status)
}

// Manager owns the connection FSM. All methods must be called on the event loop.
type Manager struct {
	url       string
	mobile    bool
	transport Transport
	clock     loop.Clock
	handler   Handler
	status    *statusDebouncer

	state      State
	socket     Socket
	generation int
	background bool
	exhausted  bool

	fgAttempts int
	bgAttempts int
	fgBackoff  *backoff.ExponentialBackOff
	bgBackoff  *backoff.ExponentialBackOff

	timers loop.Timers
}

func NewManager(opts Options) *Manager {
	return &Manager{
		url:       opts.URL,
		mobile:    opts.Mobile,
		transport: opts.Transport,
		clock:     opts.Clock,
		handler:   opts.Handler,
		status:    newStatusDebouncer(opts.Clock, statusDelay, opts.OnStatus),
		fgBackoff: ForegroundPolicy.backoff(),
		bgBackoff: BackgroundPolicy.backoff(),
	}
}

func (m *Manager) State() State { return m.state }

// Exhausted is true after the reconnect ceiling was reached.
func (m *Manager) Exhausted() bool { return m.exhausted }

func (m *Manager) Background() bool { return m.background }

// Attempts returns the foreground and background reconnect counters.
func (m *Manager) Attempts() (foreground, background int) {
	return m.fgAttempts, m.bgAttempts
}

// Connect dials unless a connection is open or in progress. After the
// reconnect ceiling only Reconnect dials again.
func (m *Manager) Connect() {
	if m.exhausted {
		return
	}
	switch m.state {
	case Connecting, Open, Closing, LeavingClosed, Expired:
		return
	}
	m.timers.Stop("reconnect")

	m.generation++
	gen := m.generation
	m.state = Connecting
	m.status.report(StatusConnecting)

	socket, err := m.transport.Open(m.url, Events{
		OnOpen:    func() { m.opened(gen) },
		OnMessage: func(data []byte) { m.received(gen, data) },
		OnClose:   func(ev CloseEvent) { m.closed(gen, ev) },
		OnError: func(err error) {
			if gen == m.generation {
				log.Printf("Error on websocket: %v", err)
			}
		},
	})
	if err != nil {
		log.Printf("Error opening websocket: %v", err)
		m.closed(gen, CloseEvent{Code: CloseAbnormal, Reason: err.Error()})
		return
	}
	if gen == m.generation && m.state == Connecting {
		m.socket = socket
	}
}

// Reconnect clears the reconnect ceiling and dials at once when the
// connection is down.
func (m *Manager) Reconnect() {
	if m.state != Idle && m.state != Reconnecting {
		return
	}
	m.exhausted = false
	m.fgAttempts, m.bgAttempts = 0, 0
	m.fgBackoff.Reset()
	m.bgBackoff.Reset()
	m.timers.Stop("reconnect")
	m.state = Idle
	m.Connect()
}

// Send writes msg if the connection is open. Messages are never queued.
func (m *Manager) Send(msg protocol.Outbound) bool {
	if m.state != Open || m.socket == nil {
		return false
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("Error encoding %s: %v", msg.OutboundKind(), err)
		return false
	}
	if err := m.socket.Send(data); err != nil {
		log.Printf("Error sending %s: %v", msg.OutboundKind(), err)
		return false
	}
	return true
}

// SetBackground switches heartbeat cadence. Returning to the foreground
// reconnects at once when the connection is down.
func (m *Manager) SetBackground(background bool) {
	if m.background == background {
		return
	}
	m.background = background
	if m.state.Terminal() {
		return
	}

	if m.timers.Active("heartbeat") {
		m.startHeartbeat()
	}
	m.syncKeepalive()

	if !background {
		m.bgAttempts = 0
		m.bgBackoff.Reset()
		m.Reconnect()
	}
}

// Disconnect closes without entering a terminal state.
func (m *Manager) Disconnect(reason string) {
	if m.state.Terminal() {
		return
	}
	m.timers.Stop("reconnect")
	m.timers.Stop("heartbeat")
	m.timers.Stop("keepalive")
	if m.socket == nil {
		m.state = Idle
		return
	}
	m.state = Closing
	if err := m.socket.Close(CloseNormal, reason); err != nil {
		log.Printf("Error closing websocket: %v", err)
	}
}

// Leave closes for good with reason user_leave.
func (m *Manager) Leave() {
	m.terminate(LeavingClosed, ReasonUserLeave)
}

// Expire closes for good after the session ended.
func (m *Manager) Expire() {
	m.terminate(Expired, ReasonSessionExpired)
}

// Shutdown closes the connection and stops every timer; used on process exit.
func (m *Manager) Shutdown() {
	m.Disconnect(ReasonPageUnload)
	m.timers.StopAll()
	m.status.stop()
}

func (m *Manager) terminate(state State, reason string) {
	if m.state.Terminal() {
		return
	}
	m.state = state
	m.timers.StopAll()
	m.status.stop()
	m.generation++
	if m.socket != nil {
		if err := m.socket.Close(CloseNormal, reason); err != nil {
			log.Printf("Error closing websocket: %v", err)
		}
		m.socket = nil
	}
}

func (m *Manager) opened(gen int) {
	if gen != m.generation || m.state != Connecting {
		return
	}
	m.state = Open
	m.exhausted = false
	m.fgAttempts, m.bgAttempts = 0, 0
	m.fgBackoff.Reset()
	m.bgBackoff.Reset()
	m.status.report(StatusConnected)

	m.startHeartbeat()
	m.syncKeepalive()
	m.handler.Opened()
}

func (m *Manager) received(gen int, data []byte) {
	if gen != m.generation || m.state != Open {
		return
	}
	m.handler.Received(data)
}

func (m *Manager) closed(gen int, ev CloseEvent) {
	if gen != m.generation {
		return
	}
	m.socket = nil
	m.timers.Stop("keepalive")
	if m.state.Terminal() {
		return
	}
	m.timers.Stop("heartbeat")

	intentional := ev.Code == CloseNormal && (ev.Reason == ReasonUserLeave || ev.Reason == ReasonPageUnload)
	if intentional || ev.WasClean || m.state == Closing {
		m.state = Idle
		m.status.report(StatusDisconnected)
		return
	}
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	policy, attempts, b := ForegroundPolicy, &m.fgAttempts, m.fgBackoff
	if m.background {
		policy, attempts, b = BackgroundPolicy, &m.bgAttempts, m.bgBackoff
	}
	if *attempts >= policy.Ceiling {
		m.state = Idle
		m.exhausted = true
		m.status.report(StatusDisconnected)
		log.Printf("Error reconnecting: giving up after %d attempts", *attempts)
		return
	}
	*attempts++
	delay := b.NextBackOff()

	m.state = Reconnecting
	m.status.report(StatusReconnecting)
	m.timers.Set("reconnect", m.clock.AfterFunc(delay, func() {
		m.timers.Forget("reconnect")
		if m.state != Reconnecting {
			return
		}
		m.state = Idle
		m.Connect()
	}))
}

func (m *Manager) startHeartbeat() {
	interval := ForegroundHeartbeat
	if m.background {
		interval = BackgroundHeartbeat
	}
	m.timers.Set("heartbeat", loop.Every(m.clock, interval, m.beat))
}

func (m *Manager) syncKeepalive() {
	if m.background && m.mobile && m.state == Open {
		if !m.timers.Active("keepalive") {
			m.timers.Set("keepalive", loop.Every(m.clock, KeepaliveInterval, m.keepalive))
		}
		return
	}
	m.timers.Stop("keepalive")
}

func (m *Manager) beat() {
	switch m.state {
	case Open:
		m.Send(m.handler.Heartbeat(false))
	case Idle, Reconnecting:
		if m.exhausted {
			return
		}
		m.timers.Stop("reconnect")
		m.state = Idle
		m.Connect()
	}
}

func (m *Manager) keepalive() {
	if m.state == Open {
		m.Send(m.handler.Heartbeat(true))
	}
}
