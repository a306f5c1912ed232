package reconcile

import "github.com/clementus360/proxy-share/protocol"

type Level string

const (
	LevelInfo      Level = "info"
	LevelSuccess   Level = "success"
	LevelWarning   Level = "warning"
	LevelError     Level = "error"
	LevelSecondary Level = "secondary"
)

// Intent is a side effect requested by the engine and carried out by the app.
type Intent interface {
	intent()
}

// Notify shows a toast.
type Notify struct {
	Text  string
	Level Level
	Icon  string
}

// Send transmits a message to the server, best effort.
type Send struct {
	Message protocol.Outbound
}

// RosterChanged asks for the map and list to be redrawn from the state store.
type RosterChanged struct{}

// RemoveParticipants drops every render resource of the ids.
type RemoveParticipants struct {
	IDs []string
}

type RemoveDirection struct {
	ParticipantID string
}

// IdentityConfirmed reports the participant id the server settled on.
type IdentityConfirmed struct {
	ParticipantID string
	Rejoined      bool
}

// Expire ends the session.
type Expire struct {
	Reason string
}

func (Notify) intent()             {}
func (Send) intent()               {}
func (RosterChanged) intent()      {}
func (RemoveParticipants) intent() {}
func (RemoveDirection) intent()    {}
func (IdentityConfirmed) intent()  {}
func (Expire) intent()             {}
