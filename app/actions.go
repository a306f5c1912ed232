package app

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"

	"github.com/clementus360/proxy-share/lifecycle"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/protocol"
	"github.com/clementus360/proxy-share/ui"
)

// StartSharing begins sending my position.
func (a *App) StartSharing() error {
	if a.st.Terminal() {
		return ErrSessionEnded
	}
	if err := a.tracker.Start(); err != nil {
		return err
	}
	a.sink.Hint(ui.Hint{})
	return nil
}

// StopSharing stops sending my position and reports whether a stop was sent.
func (a *App) StopSharing() bool {
	if a.st.Terminal() {
		return false
	}
	return a.tracker.Stop()
}

// Signal applies a visibility signal such as "hidden" or "focus".
func (a *App) Signal(name string) error {
	if a.st.Terminal() {
		return ErrSessionEnded
	}
	sig, err := lifecycle.ParseSignal(name)
	if err != nil {
		return err
	}
	a.visibility.Handle(sig)
	return nil
}

// SetName validates and sends a new display name. A name held by another
// online participant is rejected with a free suggestion.
func (a *App) SetName(name string) (suggestion string, err error) {
	if a.st.Terminal() {
		return "", ErrSessionEnded
	}
	name = models.TruncateName(strings.TrimSpace(name))
	if name == "" {
		return "", ErrEmptyName
	}
	if a.nameTaken(name) {
		return a.SuggestName(name), ErrDuplicateName
	}

	sent := a.conn.Send(protocol.NameUpdate{
		ParticipantID:     a.st.ParticipantID,
		ParticipantName:   name,
		CheckDuplicate:    true,
		CleanupOldOffline: true,
		Timestamp:         a.clock.Now().UnixMilli(),
	})
	a.st.PreviousName = a.st.Name
	a.st.SetName(name)
	if sent {
		a.purgeOfflineNamed(name)
	}
	if me, ok := a.st.Me(); ok {
		me.Name = a.st.Name
		a.st.Upsert(me)
	}
	a.rosterChanged()
	return "", nil
}

func (a *App) nameTaken(name string) bool {
	normalized := models.NormalizeName(name)
	for _, p := range a.st.Roster() {
		if !a.st.IsMe(p.ParticipantID) && p.IsOnline && p.NormalizedName() == normalized {
			return true
		}
	}
	return false
}

// SuggestName appends the first free counter from 1 to 99 to base, and a
// random suffix after that.
func (a *App) SuggestName(base string) string {
	for i := 1; i < 100; i++ {
		candidate := models.TruncateName(fmt.Sprintf("%s%d", base, i))
		if !a.nameTaken(candidate) {
			return candidate
		}
	}
	return models.TruncateName(fmt.Sprintf("%s%d", base, rand.IntN(1000)))
}

// purgeOfflineNamed drops offline records that carry a name I just took.
func (a *App) purgeOfflineNamed(name string) {
	normalized := models.NormalizeName(name)
	var stale []string
	for _, p := range a.st.Roster() {
		if !a.st.IsMe(p.ParticipantID) && !p.IsOnline && p.NormalizedName() == normalized {
			stale = append(stale, p.ParticipantID)
		}
	}
	if len(stale) == 0 {
		return
	}
	a.st.Remove(stale...)
	for _, id := range stale {
		a.renderer.Remove(id)
	}
}

// Leave ends my participation. A second call while the first is still in
// flight does nothing and reports false.
func (a *App) Leave(ctx context.Context) (bool, error) {
	if a.st.Leaving {
		return false, nil
	}
	started, err := a.leave.Begin(ctx)
	if err != nil {
		log.Printf("Error recording leave: %v", err)
	}
	if !started && err == nil {
		return false, nil
	}
	a.st.Leaving = true

	a.tracker.Shutdown()
	a.st.Remove(a.st.ParticipantID)

	a.conn.Send(protocol.Leave{
		ParticipantID:   a.st.ParticipantID,
		ParticipantName: a.st.Name,
		SessionID:       a.st.SessionID,
		Timestamp:       a.clock.Now().UnixMilli(),
		FinalLeave:      true,
	})
	a.conn.Leave()
	a.teardown()
	if err := a.st.Clear(ctx); err != nil {
		log.Printf("Error clearing session: %v", err)
	}
	a.sink.Terminal("left")
	return true, nil
}

// expire ends the session for good after the server or the countdown said so.
func (a *App) expire(reason string) {
	if a.st.Expired {
		return
	}
	a.st.Expired = true
	log.Printf("Session %s expired: %s", a.st.SessionID, reason)

	a.tracker.Shutdown()
	a.conn.Expire()
	a.teardown()
	if err := a.st.Clear(context.Background()); err != nil {
		log.Printf("Error clearing session: %v", err)
	}
	if reason == "" {
		reason = "Session expired"
	}
	a.sink.Toast(ui.Toast{Text: reason, Level: ui.LevelError, Icon: "clock"})
	a.sink.Countdown(lifecycle.ExpiredText)
	a.sink.Terminal("expired")
}

func (a *App) teardown() {
	a.sink.Hint(ui.Hint{})
	a.countdown.Stop()
	a.chat.Reset()
	a.renderer.Reset()
	a.timers.StopAll()
}

func (a *App) enterBackground(unloading bool) {
	a.st.InBackground = true
	a.conn.SetBackground(true)
	now := a.clock.Now().UnixMilli()
	a.conn.Send(protocol.BackgroundStatus{
		ParticipantID:   a.st.ParticipantID,
		ParticipantName: a.st.Name,
		IsBackground:    true,
		HasPosition:     a.st.LastKnown != nil,
		IsSharing:       a.st.IsSharing,
		IsMobile:        a.st.IsMobile,
		PageUnloading:   unloading,
		MaintainActive:  unloading,
		Immediate:       true,
		Timestamp:       now,
	})
	if unloading && a.beacon != nil {
		a.beacon.Send(protocol.Beacon{
			SessionID:     a.st.SessionID,
			ParticipantID: a.st.ParticipantID,
			Action:        "background_transition",
			Timestamp:     now,
			Immediate:     true,
		})
	}
	a.refreshList()
}

func (a *App) returnForeground() {
	a.st.InBackground = false
	a.conn.SetBackground(false)
	now := a.clock.Now().UnixMilli()
	a.conn.Send(protocol.ForegroundReturn{
		ParticipantID:   a.st.ParticipantID,
		ParticipantName: a.st.Name,
		IsSharing:       a.st.IsSharing,
		HasPosition:     a.st.LastKnown != nil,
		IsMobile:        a.st.IsMobile,
		PageReturning:   true,
		Immediate:       true,
		PriorityUpdate:  true,
		Timestamp:       now,
	})
	a.tracker.Resend()
	a.conn.Send(protocol.RequestParticipantsUpdate{
		ParticipantID: a.st.ParticipantID,
		Timestamp:     now,
		Reason:        "foreground_return",
	})
	a.refreshList()
}

// FollowParticipant keeps the map centred on one participant.
func (a *App) FollowParticipant(id string) bool {
	ok := a.renderer.FollowParticipant(id)
	a.refreshList()
	return ok
}

// FollowCluster keeps the map centred on the members of a cluster.
func (a *App) FollowCluster(clusterID string) bool {
	ok := a.renderer.FollowCluster(clusterID)
	a.refreshList()
	return ok
}

func (a *App) StopFollowing() {
	a.renderer.StopFollowing()
	a.refreshList()
}
