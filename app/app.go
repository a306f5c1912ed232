// Package app is the application context. It builds every component once,
// wires them to each other and runs all of them on a single event loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clementus360/proxy-share/chat"
	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/lifecycle"
	"github.com/clementus360/proxy-share/location"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/reconcile"
	"github.com/clementus360/proxy-share/render"
	"github.com/clementus360/proxy-share/state"
	"github.com/clementus360/proxy-share/ui"
	"github.com/clementus360/proxy-share/websocket"
)

const (
	ListRefresh  = 2 * time.Second
	SaveInterval = 30 * time.Second
	HistoryDelay = 500 * time.Millisecond
)

// PermissionHint stays visible after the location permission was denied
// until sharing starts again.
var PermissionHint = ui.Hint{
	Text:   "Location access is blocked. Allow location access for this page, then start sharing again.",
	Action: "start_sharing",
}

var (
	ErrSessionEnded  = errors.New("session has ended")
	ErrDuplicateName = errors.New("name is already used by an online participant")
	ErrEmptyName     = errors.New("name is empty")
)

type Options struct {
	SessionID     string
	ParticipantID string
	Name          string
	Mobile        bool
	ExpiresAt     time.Time
	UserAgent     string
	URL           string

	Store     database.Store
	Transport websocket.Transport
	Sensor    location.Sensor
	Beacon    lifecycle.Beacon
	Surface   render.Surface
	Sink      ui.Sink
	Clock     loop.Clock
	Render    render.Options
}

type App struct {
	st         *state.Store
	engine     *reconcile.Engine
	conn       *websocket.Manager
	renderer   *render.Renderer
	chat       *chat.Chat
	tracker    *location.Tracker
	visibility *lifecycle.Visibility
	countdown  *lifecycle.Countdown
	leave      *lifecycle.LeaveGuard
	beacon     lifecycle.Beacon
	sink       ui.Sink
	clock      loop.Clock
	db         database.Store

	lastPong time.Time
	timers   loop.Timers
}

// New builds the application. Nothing runs until Start.
func New(opts Options) (*App, error) {
	if opts.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if opts.Store == nil || opts.Transport == nil || opts.Clock == nil {
		return nil, errors.New("store, transport and clock are required")
	}
	if opts.Surface == nil {
		opts.Surface = render.NewMemorySurface()
	}
	if opts.Sink == nil {
		opts.Sink = ui.LogSink{}
	}
	if opts.Sensor == nil {
		opts.Sensor = location.NewPushSensor()
	}
	participantID := opts.ParticipantID
	if participantID == "" {
		participantID = uuid.NewString()
	}

	a := &App{
		sink:   opts.Sink,
		clock:  opts.Clock,
		db:     opts.Store,
		beacon: opts.Beacon,
	}

	a.st = state.New(opts.SessionID, participantID, opts.Store, opts.Clock.Now)
	a.st.SetName(opts.Name)
	a.st.IsMobile = opts.Mobile
	a.st.ExpiresAt = opts.ExpiresAt
	a.st.Fingerprint = state.Fingerprint(opts.UserAgent, opts.SessionID, participantID)

	a.engine = reconcile.New(a.st, reconcile.NewLimiter(opts.Clock, reconcile.DuplicateWindow), opts.Clock)
	a.renderer = render.New(opts.Surface, opts.Clock, a.st, opts.Render)
	a.conn = websocket.NewManager(websocket.Options{
		URL:       opts.URL,
		Mobile:    opts.Mobile,
		Transport: opts.Transport,
		Clock:     opts.Clock,
		Handler:   handler{a},
		OnStatus:  func(s websocket.Status) { a.sink.Status(string(s)) },
	})
	a.chat = chat.New(chat.Options{
		State:  a.st,
		Clock:  opts.Clock,
		Sender: a.conn,
		Store:  opts.Store,
		Hooks: chat.Hooks{
			Notify: func(text string) {
				a.sink.Toast(ui.Toast{Text: text, Level: ui.LevelInfo, Icon: "chat"})
			},
			Changed: func() { a.sink.ChatBadge(a.chat.TotalUnread()) },
		},
	})
	a.tracker = location.NewTracker(location.Options{
		State:     a.st,
		Sensor:    opts.Sensor,
		Clock:     opts.Clock,
		Sender:    a.conn,
		ClusterOf: a.renderer.ClusterOf,
		Hooks: location.Hooks{
			Error:   a.sensorError,
			Changed: a.rosterChanged,
		},
	})
	a.visibility = lifecycle.NewVisibility(lifecycle.Hooks{
		EnterBackground:  a.enterBackground,
		ReturnForeground: a.returnForeground,
	})
	a.countdown = lifecycle.NewCountdown(opts.Clock, opts.ExpiresAt, a.sink.Countdown, func() {
		a.expire("Session expired")
	})
	a.leave = lifecycle.NewLeaveGuard(opts.Store, opts.SessionID, opts.Clock.Now)
	return a, nil
}

// Start restores the saved session, connects and arms the periodic tasks.
// It must run on the event loop.
func (a *App) Start(ctx context.Context) error {
	if a.st.Terminal() {
		return ErrSessionEnded
	}
	blocked, err := a.leave.CheckStartup(ctx)
	if err != nil {
		log.Printf("Error checking leave flag: %v", err)
	}
	if blocked {
		return fmt.Errorf("leave in progress for session %s: %w", a.st.SessionID, ErrSessionEnded)
	}

	persistentID, err := database.PersistentID(ctx, a.db)
	if err != nil {
		log.Printf("Error loading persistent participant id: %v", err)
	}
	a.st.PersistentID = persistentID

	restored, err := a.st.Restore(ctx)
	if err != nil {
		log.Printf("Error restoring session: %v", err)
	}
	resume := restored && a.st.IsSharing
	a.st.IsSharing = false

	a.countdown.Start()
	if a.st.Terminal() {
		return fmt.Errorf("session %s expired before start: %w", a.st.SessionID, ErrSessionEnded)
	}
	a.conn.Connect()
	a.timers.Set("list", loop.Every(a.clock, ListRefresh, a.refreshList))
	a.timers.Set("save", loop.Every(a.clock, SaveInterval, func() {
		if a.st.IsSharing {
			a.save()
		}
	}))

	if resume {
		if err := a.tracker.Start(); err != nil {
			log.Printf("Error resuming location sharing: %v", err)
		}
	}
	return nil
}

// Shutdown closes the connection and stops every timer, keeping the saved
// session so a restart can resume it.
func (a *App) Shutdown() {
	if !a.st.Terminal() {
		a.save()
	}
	a.tracker.Shutdown()
	a.conn.Shutdown()
	a.countdown.Stop()
	a.timers.StopAll()
}

func (a *App) State() *state.Store { return a.st }

func (a *App) Chat() *chat.Chat { return a.chat }

func (a *App) Renderer() *render.Renderer { return a.renderer }

func (a *App) Connection() *websocket.Manager { return a.conn }

// LastPong is when the server last answered a ping.
func (a *App) LastPong() time.Time { return a.lastPong }

func (a *App) save() {
	if err := a.st.Save(context.Background()); err != nil {
		log.Printf("Error saving session: %v", err)
	}
}

// rosterChanged redraws the map and the list from the state store.
func (a *App) rosterChanged() {
	a.renderer.Update(a.st.Ordered())
	a.refreshList()
}

func (a *App) refreshList() {
	follow := a.st.Following()
	a.sink.ParticipantList(ui.Entries(a.st.Ordered(), ui.EntryOptions{
		MeID:  a.st.ParticipantID,
		Color: a.st.Color,
		Now:   a.clock.Now(),
		Following: func(id string) bool {
			if follow.ParticipantID != "" {
				return follow.ParticipantID == id
			}
			for _, member := range follow.Group {
				if member == id {
					return true
				}
			}
			return false
		},
	}))
	a.sink.ChatBadge(a.chat.TotalUnread())
}

func (a *App) toast(text string, level ui.Level, icon string) {
	for _, intent := range a.engine.Notify(text, reconcile.Level(level)) {
		if n, ok := intent.(reconcile.Notify); ok {
			a.sink.Toast(ui.Toast{Text: n.Text, Level: ui.Level(n.Level), Icon: icon})
		}
	}
}

func (a *App) sensorError(err *location.SensorError) {
	switch err.Code {
	case location.PermissionDenied:
		a.toast("Location permission denied", ui.LevelError, "geo-slash")
		a.sink.Hint(PermissionHint)
	case location.Timeout:
		a.toast("Location request timed out, retrying", ui.LevelInfo, "hourglass")
	default:
		a.toast("Current location is unavailable", ui.LevelWarning, "exclamation-triangle")
	}
}
