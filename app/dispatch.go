package app

import (
	"log"

	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/protocol"
	"github.com/clementus360/proxy-share/reconcile"
	"github.com/clementus360/proxy-share/ui"
)

// handler adapts the App to the connection manager callbacks.
type handler struct {
	a *App
}

func (h handler) Opened() {
	a := h.a
	a.conn.Send(protocol.Join{
		ParticipantID:        a.st.ParticipantID,
		PersistentID:         a.st.PersistentID,
		SessionFingerprint:   a.st.Fingerprint,
		ParticipantName:      a.st.Name,
		IsSharing:            a.st.IsSharing,
		HasCachedPosition:    a.st.LastKnown != nil,
		InitialStatus:        string(a.myStatus()),
		IsBackground:         a.st.InBackground,
		IsMobile:             a.st.IsMobile,
		RequestExistingCheck: true,
		PageReturning:        !a.visibility.Unloading(),
		ImmediateOnline:      !a.st.InBackground,
		PriorityConnection:   !a.st.InBackground,
		Deduplicate:          true,
	})
	a.timers.Set("history", a.clock.AfterFunc(HistoryDelay, func() {
		a.timers.Forget("history")
		a.chat.RequestHistory()
	}))
}

func (h handler) Received(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Error decoding message: %v", err)
		return
	}
	h.a.Dispatch(msg)
}

func (h handler) Heartbeat(keepalive bool) protocol.Outbound {
	a := h.a
	speed, moving, _ := a.renderer.Motion(a.st.ParticipantID)
	return protocol.Ping{
		ParticipantID:  a.st.ParticipantID,
		Timestamp:      a.clock.Now().UnixMilli(),
		IsSharing:      a.st.IsSharing,
		HasPosition:    a.st.LastKnown != nil,
		IsBackground:   a.st.InBackground,
		IsMobile:       a.st.IsMobile,
		KeepConnection: keepalive,
		Status:         a.myStatus(),
		CurrentSpeed:   speed,
		IsMoving:       moving,
	}
}

func (a *App) myStatus() models.Status {
	if a.st.IsSharing {
		return models.StatusSharing
	}
	return models.StatusWaiting
}

// Dispatch routes one decoded server message. It must run on the event loop.
func (a *App) Dispatch(msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.LocationUpdate,
		protocol.BackgroundStatusChange,
		protocol.SingleParticipantUpdate,
		protocol.RemoveDirectionIndicator,
		protocol.ParticipantConfirmed,
		protocol.NameUpdateResponse,
		protocol.DuplicateCleanupResponse,
		protocol.Notification,
		protocol.SessionExpired,
		protocol.Error:
		a.execute(a.engine.Apply(m))
	case protocol.Pong:
		a.lastPong = a.clock.Now()
	case protocol.ChatMessage:
		a.chat.Receive(m.ChatMessage)
	case protocol.TypingIndicator:
		a.chat.Typing(m)
	case protocol.ChatHistory:
		a.chat.ApplyHistory(m)
	case protocol.ParticipantStatusUpdate:
		a.refreshList()
	default:
		log.Printf("Error dispatching message: unhandled kind %s", msg.Kind())
	}
}

func (a *App) execute(intents []reconcile.Intent) {
	redraw := false
	for _, intent := range intents {
		switch it := intent.(type) {
		case reconcile.Notify:
			a.sink.Toast(ui.Toast{Text: it.Text, Level: ui.Level(it.Level), Icon: it.Icon})
		case reconcile.Send:
			a.conn.Send(it.Message)
		case reconcile.RosterChanged:
			redraw = true
		case reconcile.RemoveParticipants:
			for _, id := range it.IDs {
				a.renderer.Remove(id)
			}
		case reconcile.RemoveDirection:
			a.renderer.RemoveDirection(it.ParticipantID)
		case reconcile.IdentityConfirmed:
			log.Printf("Joined session %s as %s (rejoined: %t)", a.st.SessionID, it.ParticipantID, it.Rejoined)
			if a.st.IsSharing {
				a.tracker.Resend()
			}
		case reconcile.Expire:
			a.expire(it.Reason)
			return
		}
	}
	if redraw {
		a.rosterChanged()
	}
}
