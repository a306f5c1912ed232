// Package protocol defines the messages exchanged with the session server.
//
// Inbound frames decode into one concrete type per message kind; callers
// dispatch on them with a type switch.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clementus360/proxy-share/models"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

type Kind string

const (
	KindLocationUpdate           Kind = "location_update"
	KindSingleParticipantUpdate  Kind = "single_participant_update"
	KindBackgroundStatusChange   Kind = "background_status_change"
	KindParticipantConfirmed     Kind = "participant_confirmed"
	KindNameUpdateResponse       Kind = "name_update_response"
	KindDuplicateCleanupResponse Kind = "duplicate_cleanup_response"
	KindNotification             Kind = "notification"
	KindSessionExpired           Kind = "session_expired"
	KindError                    Kind = "error"
	KindPong                     Kind = "pong"
	KindChatMessage              Kind = "chat_message"
	KindTypingIndicator          Kind = "typing_indicator"
	KindChatHistory              Kind = "chat_history"
	KindParticipantStatusUpdate  Kind = "participant_status_update"
	KindRemoveDirectionIndicator Kind = "remove_direction_indicator"
)

// Inbound is any decoded server message.
type Inbound interface {
	Kind() Kind
	inbound()
}

// LocationUpdate is a full roster snapshot.
type LocationUpdate struct {
	Locations []models.Participant `json:"locations"`
}

// BackgroundStatusChange is a full roster snapshot triggered by a visibility change.
type BackgroundStatusChange struct {
	Locations []models.Participant `json:"locations"`
}

type SingleParticipantUpdate struct {
	ParticipantID string              `json:"participant_id"`
	Participant   *models.Participant `json:"participant_data"`
}

type ParticipantConfirmed struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	IsExisting      bool   `json:"is_existing"`
}

type NameUpdateResponse struct {
	Success          bool   `json:"success"`
	ParticipantID    string `json:"participant_id"`
	ParticipantName  string `json:"participant_name"`
	AttemptedName    string `json:"attempted_name"`
	CurrentName      string `json:"current_name"`
	Error            string `json:"error"`
	ShowNotification bool   `json:"show_notification"`
}

type DuplicateCleanupResponse struct {
	Success      bool   `json:"success"`
	RemovedCount int    `json:"removed_count"`
	Error        string `json:"error"`
}

type Notification struct {
	ParticipantID    string `json:"participant_id"`
	ParticipantName  string `json:"participant_name"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
	Icon             string `json:"icon"`
	ExcludeSelf      bool   `json:"exclude_self"`
}

type SessionExpired struct {
	Message string `json:"message"`
}

type Error struct {
	Message string `json:"message"`
}

type Pong struct {
	ParticipantID string           `json:"participant_id"`
	Timestamp     models.Timestamp `json:"timestamp"`
	ServerTime    models.Timestamp `json:"server_time"`
}

type ChatMessage struct {
	models.ChatMessage
}

type TypingIndicator struct {
	ChatType   models.ChatType `json:"chat_type"`
	TargetID   string          `json:"target_id,omitempty"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name"`
	IsTyping   bool            `json:"is_typing"`
}

type ChatHistory struct {
	Messages     HistoryMessages `json:"messages"`
	UnreadCounts *UnreadCounts   `json:"unread_counts"`
}

type HistoryMessages struct {
	Group      []models.ChatMessage            `json:"group"`
	Individual map[string][]models.ChatMessage `json:"individual"`
}

type UnreadCounts struct {
	Group      int            `json:"group"`
	Individual map[string]int `json:"individual"`
}

type ParticipantStatusUpdate struct {
	ParticipantID string               `json:"participant_id"`
	Status        models.Status        `json:"status"`
	IsOnline      *bool                `json:"is_online"`
	Locations     []models.Participant `json:"locations"`
}

type RemoveDirectionIndicator struct {
	ParticipantID string `json:"participant_id"`
}

func (LocationUpdate) Kind() Kind           { return KindLocationUpdate }
func (SingleParticipantUpdate) Kind() Kind  { return KindSingleParticipantUpdate }
func (BackgroundStatusChange) Kind() Kind   { return KindBackgroundStatusChange }
func (ParticipantConfirmed) Kind() Kind     { return KindParticipantConfirmed }
func (NameUpdateResponse) Kind() Kind       { return KindNameUpdateResponse }
func (DuplicateCleanupResponse) Kind() Kind { return KindDuplicateCleanupResponse }
func (Notification) Kind() Kind             { return KindNotification }
func (SessionExpired) Kind() Kind           { return KindSessionExpired }
func (Error) Kind() Kind                    { return KindError }
func (Pong) Kind() Kind                     { return KindPong }
func (ChatMessage) Kind() Kind              { return KindChatMessage }
func (TypingIndicator) Kind() Kind          { return KindTypingIndicator }
func (ChatHistory) Kind() Kind              { return KindChatHistory }
func (ParticipantStatusUpdate) Kind() Kind  { return KindParticipantStatusUpdate }
func (RemoveDirectionIndicator) Kind() Kind { return KindRemoveDirectionIndicator }

func (LocationUpdate) inbound()           {}
func (SingleParticipantUpdate) inbound()  {}
func (BackgroundStatusChange) inbound()   {}
func (ParticipantConfirmed) inbound()     {}
func (NameUpdateResponse) inbound()       {}
func (DuplicateCleanupResponse) inbound() {}
func (Notification) inbound()             {}
func (SessionExpired) inbound()           {}
func (Error) inbound()                    {}
func (Pong) inbound()                     {}
func (ChatMessage) inbound()              {}
func (TypingIndicator) inbound()          {}
func (ChatHistory) inbound()              {}
func (ParticipantStatusUpdate) inbound()  {}
func (RemoveDirectionIndicator) inbound() {}

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Inbound
	var err error
	switch env.Type {
	case KindLocationUpdate:
		msg, err = decodeAs[LocationUpdate](data)
	case KindSingleParticipantUpdate:
		msg, err = decodeAs[SingleParticipantUpdate](data)
	case KindBackgroundStatusChange:
		msg, err = decodeAs[BackgroundStatusChange](data)
	case KindParticipantConfirmed:
		msg, err = decodeAs[ParticipantConfirmed](data)
	case KindNameUpdateResponse:
		msg, err = decodeAs[NameUpdateResponse](data)
	case KindDuplicateCleanupResponse:
		msg, err = decodeAs[DuplicateCleanupResponse](data)
	case KindNotification:
		msg, err = decodeAs[Notification](data)
	case KindSessionExpired:
		msg, err = decodeAs[SessionExpired](data)
	case KindError:
		msg, err = decodeAs[Error](data)
	case KindPong:
		msg, err = decodeAs[Pong](data)
	case KindChatMessage:
		msg, err = decodeAs[ChatMessage](data)
	case KindTypingIndicator:
		msg, err = decodeAs[TypingIndicator](data)
	case KindChatHistory:
		msg, err = decodeAs[ChatHistory](data)
	case KindParticipantStatusUpdate:
		msg, err = decodeAs[ParticipantStatusUpdate](data)
	case KindRemoveDirectionIndicator:
		msg, err = decodeAs[RemoveDirectionIndicator](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
