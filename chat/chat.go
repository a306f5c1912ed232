// Package chat keeps the session conversations: the group thread, one
// thread per partner, unread counters, read marks and typing indicators.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/protocol"
	"github.com/clementus360/proxy-share/state"
)

// Group is the conversation key of the group thread.
const Group = "group"

const PreviewLength = 30

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = fmt.Errorf("message is longer than %d characters", models.MaxChatLength)
	ErrNoPartner      = errors.New("unknown conversation partner")
)

type Sender interface {
	Send(msg protocol.Outbound) bool
}

// Hooks are called after the chat changed. Notify receives the toast text for
// a message that arrived while the chat was closed.
type Hooks struct {
	Notify  func(text string)
	Changed func()
}

type Options struct {
	State  *state.Store
	Clock  loop.Clock
	Sender Sender
	Store  database.Store
	Hooks  Hooks
}

type Screen int

const (
	ScreenList Screen = iota
	ScreenGroup
	ScreenIndividual
)

func (s Screen) String() string {
	switch s {
	case ScreenGroup:
		return "group"
	case ScreenIndividual:
		return "individual"
	default:
		return "list"
	}
}

type Chat struct {
	st     *state.Store
	clock  loop.Clock
	sender Sender
	db     database.Store
	hooks  Hooks

	group      []models.ChatMessage
	individual map[string][]models.ChatMessage
	unreadGrp  int
	unread     map[string]int

	open    bool
	screen  Screen
	partner string

	drafting map[string]bool
	typers   map[string]string
	timers   loop.Timers
}

func New(opts Options) *Chat {
	return &Chat{
		st:         opts.State,
		clock:      opts.Clock,
		sender:     opts.Sender,
		db:         opts.Store,
		hooks:      opts.Hooks,
		individual: make(map[string][]models.ChatMessage),
		unread:     make(map[string]int),
		drafting:   make(map[string]bool),
		typers:     make(map[string]string),
	}
}

func (c *Chat) IsOpen() bool {
	return c.open
}

// Screen returns the active screen and, for an individual thread, its partner.
func (c *Chat) Screen() (Screen, string) {
	return c.screen, c.partner
}

// Open shows the chat on the participant list.
func (c *Chat) Open() {
	c.open = true
	c.screen = ScreenList
	c.partner = ""
	c.changed()
}

func (c *Chat) Close() {
	c.open = false
	c.screen = ScreenList
	c.partner = ""
	c.endAllTyping()
	c.changed()
}

func (c *Chat) ShowList() {
	c.screen = ScreenList
	c.partner = ""
	c.changed()
}

// OpenGroup switches to the group thread and marks it read.
func (c *Chat) OpenGroup() {
	c.open = true
	c.screen = ScreenGroup
	c.partner = ""
	c.markRead(Group, c.unreadGrp > 0)
	c.changed()
}

// OpenIndividual switches to the thread with one partner and marks it read.
func (c *Chat) OpenIndividual(partnerID string) error {
	if partnerID == "" || c.st.IsMe(partnerID) {
		return ErrNoPartner
	}
	if _, ok := c.st.Participant(partnerID); !ok {
		if _, known := c.individual[partnerID]; !known {
			return ErrNoPartner
		}
	}
	c.open = true
	c.screen = ScreenIndividual
	c.partner = partnerID
	c.markRead(partnerID, c.unread[partnerID] > 0)
	c.changed()
	return nil
}

// Send posts a message to the group or to one partner and appends it to the
// local thread.
func (c *Chat) Send(target, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > models.MaxChatLength {
		return models.ChatMessage{}, ErrMessageTooLong
	}
	if target == "" {
		target = Group
	}
	if target != Group && c.st.IsMe(target) {
		return models.ChatMessage{}, ErrNoPartner
	}
	c.endTyping(target)

	now := c.clock.Now()
	msg := models.ChatMessage{
		SenderID:   c.st.ParticipantID,
		SenderName: c.senderName(),
		Text:       text,
		Timestamp:  models.At(now),
		ChatType:   models.ChatGroup,
		IsRead:     true,
	}
	if target != Group {
		msg.ChatType = models.ChatIndividual
		msg.TargetID = target
	}

	c.sender.Send(protocol.SendChat{
		ChatType:   msg.ChatType,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		TargetID:   protocol.OptionalString(msg.TargetID),
		Text:       text,
		Timestamp:  now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})

	if target == Group {
		c.group = append(c.group, msg)
	} else {
		c.individual[target] = append(c.individual[target], msg)
	}
	c.changed()
	return msg, nil
}

// Receive handles a chat message pushed by the server.
func (c *Chat) Receive(msg models.ChatMessage) {
	if c.st.IsMe(msg.SenderID) {
		return
	}

	if msg.IsGroup() {
		c.group = append(c.group, msg)
		if c.open && c.screen == ScreenGroup {
			c.markRead(Group, true)
		} else {
			c.unreadGrp++
		}
	} else {
		if !c.st.IsMe(msg.TargetID) {
			return
		}
		from := msg.SenderID
		c.individual[from] = append(c.individual[from], msg)
		if c.open && c.screen == ScreenIndividual && c.partner == from {
			c.markRead(from, true)
		} else {
			c.unread[from]++
		}
	}

	// Whoever sent a message is no longer typing it.
	c.clearTyper(typingKey(msg))

	if !c.open && c.hooks.Notify != nil {
		c.hooks.Notify(fmt.Sprintf("%s: %s", msg.SenderName, Preview(msg.Text)))
	}
	c.changed()
}

// ApplyHistory replaces the conversations with the server history. Unread
// counters come from the server when it sends them and are otherwise
// recomputed from the persisted read marks.
func (c *Chat) ApplyHistory(h protocol.ChatHistory) {
	c.group = append([]models.ChatMessage(nil), h.Messages.Group...)
	c.individual = make(map[string][]models.ChatMessage, len(h.Messages.Individual))
	for partner, msgs := range h.Messages.Individual {
		c.individual[partner] = append([]models.ChatMessage(nil), msgs...)
	}

	if h.UnreadCounts != nil {
		c.unreadGrp = h.UnreadCounts.Group
		c.unread = make(map[string]int, len(h.UnreadCounts.Individual))
		for partner, n := range h.UnreadCounts.Individual {
			if n > 0 {
				c.unread[partner] = n
			}
		}
	} else {
		c.recount(c.loadMarks())
	}

	if c.open {
		switch {
		case c.screen == ScreenGroup && c.unreadGrp > 0:
			c.markRead(Group, true)
		case c.screen == ScreenIndividual && c.unread[c.partner] > 0:
			c.markRead(c.partner, true)
		}
	}
	c.changed()
}

// RequestHistory asks the server for the conversations and unread counters.
func (c *Chat) RequestHistory() bool {
	if c.st.ParticipantID == "" {
		return false
	}
	return c.sender.Send(protocol.RequestChatHistory{
		SessionID:     c.st.SessionID,
		ParticipantID: c.st.ParticipantID,
	})
}

func (c *Chat) recount(marks database.ReadMarks) {
	me := c.st.ParticipantID
	c.unreadGrp = 0
	for _, m := range c.group {
		if m.SenderID != me && !m.IsRead && m.Timestamp.After(marks.Group) {
			c.unreadGrp++
		}
	}
	c.unread = make(map[string]int)
	for partner, msgs := range c.individual {
		n := 0
		for _, m := range msgs {
			if m.SenderID != me && m.TargetID == me && !m.IsRead && m.Timestamp.After(marks.Individual[partner]) {
				n++
			}
		}
		if n > 0 {
			c.unread[partner] = n
		}
	}
}

// markRead zeroes a counter and stores the read mark. The server is told
// only when notify is set.
func (c *Chat) markRead(target string, notify bool) {
	if notify {
		msg := protocol.MarkAsRead{ParticipantID: c.st.ParticipantID, ChatType: models.ChatGroup}
		if target != Group {
			msg.ChatType = models.ChatIndividual
			msg.SenderID = target
		}
		c.sender.Send(msg)
	}
	if target == Group {
		c.unreadGrp = 0
	} else {
		delete(c.unread, target)
	}

	if c.db == nil {
		return
	}
	marks := c.loadMarks()
	now := c.clock.Now()
	if target == Group {
		marks.Group = now
	} else {
		marks.Individual[target] = now
	}
	ctx := context.Background()
	if err := database.SaveReadMarks(ctx, c.db, c.st.SessionID, c.st.ParticipantID, marks); err != nil {
		log.Printf("Error saving read marks: %v", err)
	}
}

func (c *Chat) loadMarks() database.ReadMarks {
	if c.db == nil {
		return database.ReadMarks{Individual: map[string]time.Time{}}
	}
	marks, err := database.LoadReadMarks(context.Background(), c.db, c.st.SessionID, c.st.ParticipantID)
	if err != nil {
		log.Printf("Error loading read marks: %v", err)
		return database.ReadMarks{Individual: map[string]time.Time{}}
	}
	return marks
}

// Unread returns the group counter and a copy of the per-partner counters.
func (c *Chat) Unread() (group int, individual map[string]int) {
	individual = make(map[string]int, len(c.unread))
	for k, v := range c.unread {
		individual[k] = v
	}
	return c.unreadGrp, individual
}

// TotalUnread is the badge number.
func (c *Chat) TotalUnread() int {
	total := c.unreadGrp
	for _, n := range c.unread {
		total += n
	}
	return total
}

// Conversation returns a copy of one thread.
func (c *Chat) Conversation(target string) []models.ChatMessage {
	if target == "" || target == Group {
		return append([]models.ChatMessage(nil), c.group...)
	}
	return append([]models.ChatMessage(nil), c.individual[target]...)
}

// Contact is one row of the chat participant list.
type Contact struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Color         string    `json:"color"`
	Status        string    `json:"status"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastAt        time.Time `json:"last_at,omitempty"`
	Unread        int       `json:"unread"`
	Typing        bool      `json:"typing,omitempty"`
}

// Contacts lists everyone but me, sorted by name and then by id.
func (c *Chat) Contacts() []Contact {
	var out []Contact
	for _, p := range c.st.Roster() {
		if c.st.IsMe(p.ParticipantID) {
			continue
		}
		contact := Contact{
			ParticipantID: p.ParticipantID,
			Name:          p.DisplayName(),
			Color:         c.st.Color(p.ParticipantID),
			Status:        contactStatus(p),
			Unread:        c.unread[p.ParticipantID],
		}
		if msgs := c.individual[p.ParticipantID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			contact.LastMessage = Preview(last.Text)
			contact.LastAt = last.Timestamp.Time
		}
		_, contact.Typing = c.typers[p.ParticipantID]
		out = append(out, contact)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := models.NormalizeName(out[i].Name), models.NormalizeName(out[j].Name)
		if a == b {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return a < b
	})
	return out
}

func contactStatus(p models.Participant) string {
	switch {
	case !p.IsOnline:
		return "offline"
	case p.IsBackground:
		return "background"
	case p.Status == models.StatusSharing:
		return "sharing"
	default:
		return "waiting"
	}
}

// Preview shortens a message for toasts and list rows.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return models.TruncateRunes(text, PreviewLength) + "..."
}

// Reset drops every conversation and timer. Used on leave and expiry.
func (c *Chat) Reset() {
	c.timers.StopAll()
	c.group = nil
	c.individual = make(map[string][]models.ChatMessage)
	c.unreadGrp = 0
	c.unread = make(map[string]int)
	c.drafting = make(map[string]bool)
	c.typers = make(map[string]string)
	c.open = false
	c.screen = ScreenList
	c.partner = ""
}

func (c *Chat) senderName() string {
	if c.st.Name != "" {
		return c.st.Name
	}
	if me, ok := c.st.Me(); ok {
		return me.DisplayName()
	}
	return models.Participant{ParticipantID: c.st.ParticipantID}.DisplayName()
}

func (c *Chat) changed() {
	if c.hooks.Changed != nil {
		c.hooks.Changed()
	}
}
