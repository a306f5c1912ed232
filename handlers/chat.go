package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/clementus360/proxy-share/chat"
	"github.com/clementus360/proxy-share/models"
)

type chatResponse struct {
	Open        bool           `json:"open"`
	Screen      string         `json:"screen"`
	Partner     string         `json:"partner_id,omitempty"`
	GroupUnread int            `json:"group_unread"`
	Unread      map[string]int `json:"unread"`
	Total       int            `json:"total_unread"`
	GroupTyping string         `json:"group_typing,omitempty"`
	Contacts    []chat.Contact `json:"contacts"`
}

type openChatRequest struct {
	// Target is empty for the participant list, "group" or a participant id.
	Target string `json:"target"`
}

type messageRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

// GetChat returns the chat screen state and the contact list.
func (s *Server) GetChat(w http.ResponseWriter, r *http.Request) {
	var resp chatResponse
	if !s.do(w, r, func() {
		c := s.app.Chat()
		screen, partner := c.Screen()
		resp.Open = c.IsOpen()
		resp.Screen = screen.String()
		resp.Partner = partner
		resp.GroupUnread, resp.Unread = c.Unread()
		resp.Total = c.TotalUnread()
		resp.GroupTyping, _ = c.TypingIn(chat.Group)
		resp.Contacts = c.Contacts()
	}) {
		return
	}
	if resp.Contacts == nil {
		resp.Contacts = []chat.Contact{}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) OpenChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if !decode(w, r, &req) {
		return
	}

	var err error
	if !s.do(w, r, func() {
		c := s.app.Chat()
		switch req.Target {
		case "":
			if c.IsOpen() {
				c.ShowList()
			} else {
				c.Open()
			}
		case chat.Group:
			c.OpenGroup()
		default:
			err = c.OpenIndividual(req.Target)
		}
	}) {
		return
	}
	if errors.Is(err, chat.ErrNoPartner) {
		http.Error(w, "Participant not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CloseChat(w http.ResponseWriter, r *http.Request) {
	if !s.do(w, r, s.app.Chat().Close) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages returns one thread: ?target=group (default) or a participant id.
func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		target = chat.Group
	}

	var messages []models.ChatMessage
	if !s.do(w, r, func() { messages = s.app.Chat().Conversation(target) }) {
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Target == "" {
		req.Target = chat.Group
	}

	var msg models.ChatMessage
	var err error
	if !s.do(w, r, func() { msg, err = s.app.Chat().Send(req.Target, req.Text) }) {
		return
	}
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, chat.ErrNoPartner):
		http.Error(w, "Participant not found", http.StatusNotFound)
		return
	case err != nil:
		log.Println("Error sending chat message:", err)
		http.Error(w, "Error sending chat message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Draft reports the content of the message box so typing indicators follow it.
func (s *Server) Draft(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.do(w, r, func() { s.app.Chat().Draft(req.Target, req.Text) }) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
