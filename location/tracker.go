package location

import (
	"errors"
	"math"
	"time"

	"github.com/clementus360/proxy-share/geo"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/protocol"
	"github.com/clementus360/proxy-share/state"
)

const (
	MinInterval       = time.Second
	MaxInterval       = 10 * time.Second
	MovementThreshold = 3.0
	StayResetDistance = 30.0

	BackgroundIntervalMobile  = 15 * time.Second
	BackgroundIntervalDesktop = 10 * time.Second

	StopGuard    = 3 * time.Second
	TimeoutRetry = 3 * time.Second
)

var (
	ErrStopping = errors.New("sharing is being stopped")
	ErrInactive = errors.New("session is no longer active")
)

type Sender interface {
	Send(msg protocol.Outbound) bool
}

// Hooks report what the tracker did. Changed runs whenever my own sharing
// state or position changed.
type Hooks struct {
	Error   func(*SensorError)
	Changed func()
}

type Options struct {
	State     *state.Store
	Sensor    Sensor
	Clock     loop.Clock
	Sender    Sender
	ClusterOf func(participantID string) (string, bool)
	Hooks     Hooks
}

// Tracker owns the sensor watch while I share my location.
type Tracker struct {
	st        *state.Store
	sensor    Sensor
	clock     loop.Clock
	sender    Sender
	clusterOf func(string) (string, bool)
	hooks     Hooks

	stopWatch func()
	stopping  bool
	anchor    *geo.LatLng
	timers    loop.Timers
}

func NewTracker(opts Options) *Tracker {
	clusterOf := opts.ClusterOf
	if clusterOf == nil {
		clusterOf = func(string) (string, bool) { return "", false }
	}
	return &Tracker{
		st:        opts.State,
		sensor:    opts.Sensor,
		clock:     opts.Clock,
		sender:    opts.Sender,
		clusterOf: clusterOf,
		hooks:     opts.Hooks,
	}
}

// Start begins sharing. The first fix is always sent.
func (t *Tracker) Start() error {
	if t.st.Terminal() {
		return ErrInactive
	}
	if t.stopping {
		return ErrStopping
	}
	t.st.IsSharing = true
	t.st.LastSent = nil
	t.st.LastSentAt = time.Time{}
	t.watch()

	interval := BackgroundIntervalDesktop
	if t.st.IsMobile {
		interval = BackgroundIntervalMobile
	}
	t.timers.Set("background", loop.Every(t.clock, interval, t.backgroundResend))
	t.changed()
	return nil
}

// Stop ends sharing and tells the server. A stop is ignored while the
// previous one is still settling.
func (t *Tracker) Stop() bool {
	if t.stopping || !t.st.IsSharing {
		return false
	}
	t.stopping = true
	t.halt()

	if me, ok := t.st.Me(); ok {
		me.Latitude, me.Longitude, me.Accuracy = nil, nil, nil
		me.Status = models.StatusWaiting
		me.IsOnline = true
		me.HasSharedBefore = false
		t.st.Upsert(me)
	}

	t.sender.Send(protocol.StopSharing{
		ParticipantID:            t.st.ParticipantID,
		ParticipantName:          t.st.Name,
		IsBackground:             t.st.InBackground,
		ClearLocation:            true,
		RemoveMarker:             true,
		RemoveDirectionIndicator: true,
		Timestamp:                t.clock.Now().UnixMilli(),
	})

	t.timers.Set("stop-guard", t.clock.AfterFunc(StopGuard, func() {
		t.timers.Forget("stop-guard")
		t.stopping = false
	}))
	t.changed()
	return true
}

// Shutdown stops the watch and every timer without notifying the server.
func (t *Tracker) Shutdown() {
	t.halt()
	t.timers.StopAll()
	t.stopping = false
}

// Resend reports the last known fix again, if I am sharing.
func (t *Tracker) Resend() bool {
	if !t.st.IsSharing || t.st.LastKnown == nil || t.st.Terminal() {
		return false
	}
	return t.report(*t.st.LastKnown)
}

func (t *Tracker) halt() {
	t.st.IsSharing = false
	if t.stopWatch != nil {
		t.stopWatch()
		t.stopWatch = nil
	}
	t.timers.Stop("background")
	t.timers.Stop("retry")
	t.anchor = nil
	t.st.LastSent = nil
}

func (t *Tracker) watch() {
	if t.stopWatch != nil {
		t.stopWatch()
	}
	t.stopWatch = t.sensor.Watch(t.handleFix, t.handleError)
}

func (t *Tracker) handleFix(pos models.Position) {
	if !t.st.IsSharing || t.st.Terminal() || !pos.Valid() {
		return
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = t.clock.Now()
	}
	t.st.LastKnown = &pos
	t.updateStay(pos)

	if t.shouldSend(pos) {
		t.report(pos)
	}
	t.changed()
}

func (t *Tracker) shouldSend(pos models.Position) bool {
	last := t.st.LastSent
	if last == nil {
		return true
	}
	since := t.clock.Now().Sub(t.st.LastSentAt)
	if since < MinInterval {
		return false
	}
	moved := geo.Distance(
		geo.LatLng{Lat: last.Latitude, Lng: last.Longitude},
		geo.LatLng{Lat: pos.Latitude, Lng: pos.Longitude},
	)
	return moved >= MovementThreshold || since >= MaxInterval
}

func (t *Tracker) report(pos models.Position) bool {
	if t.st.ParticipantID == "" {
		return false
	}
	var accuracy *float64
	if acc, ok := models.NormalizeAccuracy(&pos.Accuracy); ok {
		accuracy = models.Float(math.Round(acc))
	}
	clusterID, inCluster := t.clusterOf(t.st.ParticipantID)

	now := t.clock.Now()
	sent := t.sender.Send(protocol.LocationReport{
		ParticipantID:   t.st.ParticipantID,
		ParticipantName: t.st.Name,
		Latitude:        pos.Latitude,
		Longitude:       pos.Longitude,
		Accuracy:        accuracy,
		Timestamp:       now.UnixMilli(),
		IsBackground:    t.st.InBackground,
		InCluster:       inCluster,
		ClusterID:       protocol.OptionalString(clusterID),
	})
	t.st.LastSent = &pos
	t.st.LastSentAt = now
	return sent
}

// updateStay moves the stay anchor once I walk away from it and asks the
// server to restart the dwell timer.
func (t *Tracker) updateStay(pos models.Position) {
	here := geo.LatLng{Lat: pos.Latitude, Lng: pos.Longitude}
	if t.anchor == nil {
		t.anchor = &here
		return
	}
	if geo.Distance(*t.anchor, here) < StayResetDistance {
		return
	}
	t.anchor = &here
	t.sender.Send(protocol.StayReset{
		ParticipantID: t.st.ParticipantID,
		Timestamp:     t.clock.Now().UnixMilli(),
	})
}

func (t *Tracker) backgroundResend() {
	if t.st.InBackground {
		t.Resend()
	}
}

func (t *Tracker) handleError(err error) {
	var se *SensorError
	if !errors.As(err, &se) {
		se = &SensorError{Code: PositionUnavailable, Message: err.Error()}
	}

	switch se.Code {
	case PermissionDenied:
		t.halt()
		t.changed()
	case Timeout:
		t.timers.Set("retry", t.clock.AfterFunc(TimeoutRetry, func() {
			t.timers.Forget("retry")
			if t.st.IsSharing && !t.st.Terminal() {
				t.watch()
			}
		}))
	}
	if t.hooks.Error != nil {
		t.hooks.Error(se)
	}
}

func (t *Tracker) changed() {
	if t.hooks.Changed != nil {
		t.hooks.Changed()
	}
}
