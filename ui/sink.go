// Package ui is the presentation boundary: every user-visible effect of the
// client goes through a Sink.
package ui

import (
	"log"
	"sync"
)

type Level string

const (
	LevelInfo      Level = "info"
	LevelSuccess   Level = "success"
	LevelWarning   Level = "warning"
	LevelError     Level = "error"
	LevelSecondary Level = "secondary"
)

type Toast struct {
	Text  string `json:"text"`
	Level Level  `json:"level"`
	Icon  string `json:"icon,omitempty"`
}

// Hint is a persistent notice that stays until cleared. Action names what
// the user can do about it.
type Hint struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

type Sink interface {
	Status(status string)
	Toast(t Toast)
	// Hint shows h until the next call; a zero Hint clears it.
	Hint(h Hint)
	Countdown(text string)
	ParticipantList(entries []Entry)
	ChatBadge(unread int)
	Terminal(reason string)
}

// Board keeps the latest value of everything shown. It backs the local HTTP
// API and doubles as a recording sink in tests.
type Board struct {
	mu        sync.Mutex
	status    string
	toasts    []Toast
	hint      Hint
	countdown string
	entries   []Entry
	badge     int
	terminal  string
}

var _ Sink = (*Board)(nil)

// MaxToasts bounds the toast history kept by a Board.
const MaxToasts = 50

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Status(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *Board) Toast(t Toast) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toasts = append(b.toasts, t)
	if len(b.toasts) > MaxToasts {
		b.toasts = b.toasts[len(b.toasts)-MaxToasts:]
	}
}

func (b *Board) Hint(h Hint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hint = h
}

func (b *Board) Countdown(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countdown = text
}

func (b *Board) ParticipantList(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append([]Entry(nil), entries...)
}

func (b *Board) ChatBadge(unread int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.badge = unread
}

func (b *Board) Terminal(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminal = reason
}

// View is a copy of a Board.
type View struct {
	Status    string  `json:"status"`
	Toasts    []Toast `json:"toasts"`
	Hint      *Hint   `json:"hint,omitempty"`
	Countdown string  `json:"countdown"`
	Entries   []Entry `json:"participants"`
	ChatBadge int     `json:"chat_badge"`
	Terminal  string  `json:"terminal,omitempty"`
}

func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	var hint *Hint
	if b.hint != (Hint{}) {
		h := b.hint
		hint = &h
	}
	return View{
		Status:    b.status,
		Hint:      hint,
		Toasts:    append([]Toast(nil), b.toasts...),
		Countdown: b.countdown,
		Entries:   append([]Entry(nil), b.entries...),
		ChatBadge: b.badge,
		Terminal:  b.terminal,
	}
}

// LogSink writes the events worth a log line. List refreshes and countdown
// ticks are too frequent and are skipped.
type LogSink struct{}

func (LogSink) Status(status string) {
	log.Printf("Connection status: %s", status)
}

func (LogSink) Toast(t Toast) {
	log.Printf("[%s] %s", t.Level, t.Text)
}

func (LogSink) Hint(h Hint) {
	if h.Text != "" {
		log.Printf("Hint: %s", h.Text)
	}
}

func (LogSink) Countdown(string) {}

func (LogSink) ParticipantList([]Entry) {}

func (LogSink) ChatBadge(int) {}

func (LogSink) Terminal(reason string) {
	log.Printf("Session ended: %s", reason)
}

// Multi fans every call out to several sinks.
type Multi []Sink

func (m Multi) Status(status string) {
	for _, s := range m {
		s.Status(status)
	}
}

func (m Multi) Toast(t Toast) {
	for _, s := range m {
		s.Toast(t)
	}
}

func (m Multi) Hint(h Hint) {
	for _, s := range m {
		s.Hint(h)
	}
}

func (m Multi) Countdown(text string) {
	for _, s := range m {
		s.Countdown(text)
	}
}

func (m Multi) ParticipantList(entries []Entry) {
	for _, s := range m {
		s.ParticipantList(entries)
	}
}

func (m Multi) ChatBadge(unread int) {
	for _, s := range m {
		s.ChatBadge(unread)
	}
}

func (m Multi) Terminal(reason string) {
	for _, s := range m {
		s.Terminal(reason)
	}
}
