package models

type ChatType string

const (
	ChatGroup      ChatType = "group"
	ChatIndividual ChatType = "individual"

	MaxChatLength = 200
)

type ChatMessage struct {
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	TargetID   string    `json:"target_id,omitempty"`
	Text       string    `json:"text"`
	Timestamp  Timestamp `json:"timestamp"`
	ChatType   ChatType  `json:"chat_type"`
	IsRead     bool      `json:"is_read,omitempty"`
}

// IsGroup treats a missing chat type with no target as a group message.
func (m ChatMessage) IsGroup() bool {
	if m.ChatType != "" {
		return m.ChatType == ChatGroup
	}
	return m.TargetID == ""
}
