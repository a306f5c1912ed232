package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/clementus360/proxy-share/models"
)

// Outbound is any message the client sends.
type Outbound interface {
	OutboundKind() string
}

// Encode renders msg as a flat JSON object with a leading "type" field.
func Encode(msg Outbound) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.OutboundKind(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", msg.OutboundKind())
	}

	kind, _ := json.Marshal(msg.OutboundKind())
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(kind)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

type Join struct {
	ParticipantID        string `json:"participant_id"`
	PersistentID         string `json:"persistent_participant_id"`
	SessionFingerprint   string `json:"session_fingerprint"`
	ParticipantName      string `json:"participant_name"`
	IsSharing            bool   `json:"is_sharing"`
	HasCachedPosition    bool   `json:"has_cached_position"`
	InitialStatus        string `json:"initial_status"`
	IsBackground         bool   `json:"is_background"`
	IsMobile             bool   `json:"is_mobile"`
	RequestExistingCheck bool   `json:"request_existing_check"`
	PageReturning        bool   `json:"page_returning"`
	ImmediateOnline      bool   `json:"immediate_online"`
	PriorityConnection   bool   `json:"priority_connection"`
	Deduplicate          bool   `json:"deduplicate"`
}

type Ping struct {
	ParticipantID  string        `json:"participant_id"`
	Timestamp      int64         `json:"timestamp"`
	IsSharing      bool          `json:"is_sharing"`
	HasPosition    bool          `json:"has_position"`
	IsBackground   bool          `json:"is_background"`
	IsMobile       bool          `json:"is_mobile"`
	KeepConnection bool          `json:"keep_connection"`
	Status         models.Status `json:"status"`
	CurrentSpeed   float64       `json:"current_speed"`
	IsMoving       bool          `json:"is_moving"`
}

// LocationReport is my own position, sent as single_participant_update.
type LocationReport struct {
	ParticipantID   string   `json:"participant_id"`
	ParticipantName string   `json:"participant_name"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	Accuracy        *float64 `json:"accuracy"`
	Timestamp       int64    `json:"timestamp"`
	IsBackground    bool     `json:"is_background"`
	InCluster       bool     `json:"in_cluster"`
	ClusterID       *string  `json:"cluster_id"`
}

type StopSharing struct {
	ParticipantID            string `json:"participant_id"`
	ParticipantName          string `json:"participant_name"`
	IsBackground             bool   `json:"is_background"`
	ClearLocation            bool   `json:"clear_location"`
	RemoveMarker             bool   `json:"remove_marker"`
	RemoveDirectionIndicator bool   `json:"remove_direction_indicator"`
	Timestamp                int64  `json:"timestamp"`
}

type Leave struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	SessionID       string `json:"session_id"`
	Timestamp       int64  `json:"timestamp"`
	FinalLeave      bool   `json:"final_leave"`
}

type StayReset struct {
	ParticipantID string `json:"participant_id"`
	Timestamp     int64  `json:"timestamp"`
}

type NameUpdate struct {
	ParticipantID     string `json:"participant_id"`
	ParticipantName   string `json:"participant_name"`
	CheckDuplicate    bool   `json:"check_duplicate"`
	CleanupOldOffline bool   `json:"cleanup_old_offline"`
	Timestamp         int64  `json:"timestamp"`
}

type DuplicatesRemoved struct {
	RemovedParticipantIDs []string `json:"removed_participant_ids"`
	ReporterParticipantID string   `json:"reporter_participant_id"`
	SessionID             string   `json:"session_id"`
	Timestamp             int64    `json:"timestamp"`
	CleanupRequest        bool     `json:"cleanup_request"`
}

type RequestParticipantsUpdate struct {
	ParticipantID string `json:"participant_id"`
	Timestamp     int64  `json:"timestamp"`
	Reason        string `json:"reason,omitempty"`
}

type RequestChatHistory struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

type SendChat struct {
	ChatType   models.ChatType `json:"chat_type"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name"`
	TargetID   *string         `json:"target_id"`
	Text       string          `json:"text"`
	Timestamp  string          `json:"timestamp"`
}

type Typing struct {
	ChatType   models.ChatType `json:"chat_type"`
	TargetID   *string         `json:"target_id"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name"`
	IsTyping   bool            `json:"is_typing"`
}

type MarkAsRead struct {
	ParticipantID string          `json:"participant_id"`
	ChatType      models.ChatType `json:"chat_type"`
	SenderID      string          `json:"sender_id,omitempty"`
}

type ForegroundReturn struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	IsSharing       bool   `json:"is_sharing"`
	HasPosition     bool   `json:"has_position"`
	IsMobile        bool   `json:"is_mobile"`
	PageReturning   bool   `json:"page_returning"`
	Immediate       bool   `json:"immediate_transition"`
	PriorityUpdate  bool   `json:"priority_update"`
	Timestamp       int64  `json:"timestamp"`
}

type BackgroundStatus struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	IsBackground    bool   `json:"is_background"`
	HasPosition     bool   `json:"has_position"`
	IsSharing       bool   `json:"is_sharing"`
	IsMobile        bool   `json:"is_mobile"`
	PageUnloading   bool   `json:"page_unloading"`
	MaintainActive  bool   `json:"maintain_active"`
	Immediate       bool   `json:"immediate_transition"`
	Timestamp       int64  `json:"timestamp"`
}

// Beacon is posted over plain HTTP when the page is torn down in the background.
type Beacon struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Action        string `json:"action"`
	Timestamp     int64  `json:"timestamp"`
	Immediate     bool   `json:"immediate"`
}

func (Join) OutboundKind() string                      { return "join" }
func (Ping) OutboundKind() string                      { return "ping" }
func (LocationReport) OutboundKind() string            { return "single_participant_update" }
func (StopSharing) OutboundKind() string               { return "stop_sharing" }
func (Leave) OutboundKind() string                     { return "leave" }
func (StayReset) OutboundKind() string                 { return "stay_reset" }
func (NameUpdate) OutboundKind() string                { return "name_update" }
func (DuplicatesRemoved) OutboundKind() string         { return "duplicate_participants_removed" }
func (RequestParticipantsUpdate) OutboundKind() string { return "request_participants_update" }
func (RequestChatHistory) OutboundKind() string        { return "request_chat_history" }
func (SendChat) OutboundKind() string                  { return "chat_message" }
func (Typing) OutboundKind() string                    { return "typing_indicator" }
func (MarkAsRead) OutboundKind() string                { return "mark_as_read" }
func (ForegroundReturn) OutboundKind() string          { return "immediate_foreground_return" }
func (BackgroundStatus) OutboundKind() string          { return "background_status_update" }

// OptionalString maps "" to a JSON null.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
