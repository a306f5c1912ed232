package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clementus360/proxy-share/app"
	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/location"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/render"
	"github.com/clementus360/proxy-share/ui"
	"github.com/clementus360/proxy-share/websocket"
)

type fakeSocket struct {
	events websocket.Events
	sent   []string
}

func (s *fakeSocket) Send(data []byte) error {
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *fakeSocket) Close(int, string) error { return nil }

type fakeTransport struct {
	sockets []*fakeSocket
}

func (t *fakeTransport) Open(_ string, events websocket.Events) (websocket.Socket, error) {
	s := &fakeSocket{events: events}
	t.sockets = append(t.sockets, s)
	return s, nil
}

type fixture struct {
	loop    *loop.Loop
	stop    context.CancelFunc
	tr      *fakeTransport
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := loop.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	surface := render.NewMemorySurface()
	board := ui.NewBoard()
	sensor := location.NewPushSensor()
	tr := &fakeTransport{}

	a, err := app.New(app.Options{
		SessionID:     "s1",
		ParticipantID: "me",
		Name:          "Me",
		URL:           "ws://localhost:8000/ws/location/s1/",
		Store:         database.NewMemoryStore(clock.Now),
		Transport:     tr,
		Sensor:        sensor,
		Surface:       surface,
		Sink:          board,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New(0)
	go l.Run(ctx)
	t.Cleanup(cancel)

	f := &fixture{loop: l, stop: cancel, tr: tr}
	f.do(t, func() {
		if err := a.Start(ctx); err != nil {
			t.Errorf("start: %v", err)
		}
		tr.sockets[0].events.OnOpen()
	})

	f.handler = New(Options{
		Loop:    l,
		App:     a,
		Surface: surface,
		Board:   board,
		Sensor:  sensor,
	}).Router()
	return f
}

func (f *fixture) do(t *testing.T, fn func()) {
	t.Helper()
	if err := f.loop.Do(context.Background(), fn); err != nil {
		t.Fatalf("loop: %v", err)
	}
}

func (f *fixture) deliver(t *testing.T, msg string) {
	t.Helper()
	f.do(t, func() { f.tr.sockets[0].events.OnMessage([]byte(msg)) })
}

// sentKinds counts the frames of one type sent so far.
func (f *fixture) sentKinds(t *testing.T, kind string) int {
	t.Helper()
	n := 0
	f.do(t, func() {
		for _, raw := range f.tr.sockets[0].sent {
			var m map[string]any
			if err := json.Unmarshal([]byte(raw), &m); err == nil && m["type"] == kind {
				n++
			}
		}
	})
	return n
}

func (f *fixture) request(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

const roster = `{"type":"location_update","locations":[
	{"participant_id":"me","participant_name":"Me","status":"waiting","is_online":true},
	{"participant_id":"p2","participant_name":"bob","status":"sharing","is_online":true,"latitude":35.0,"longitude":139.0,"accuracy":15}]}`

func TestGetParticipants(t *testing.T) {
	f := newFixture(t)
	f.deliver(t, roster)

	w := f.request(http.MethodGet, "/api/participants", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		ParticipantID string `json:"participant_id"`
		TotalCount    int    `json:"total_count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ParticipantID != "me" || resp.TotalCount != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)

	w := f.request(http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		ParticipantID string `json:"participant_id"`
		Name          string `json:"participant_name"`
		Connection    string `json:"connection"`
		Sharing       bool   `json:"is_sharing"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ParticipantID != "me" || resp.Name != "Me" || resp.Connection != "open" || resp.Sharing {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPositionPushFollowsSharing(t *testing.T) {
	f := newFixture(t)
	fix := `{"latitude":35.68,"longitude":139.76,"accuracy":12}`

	if w := f.request(http.MethodPost, "/api/position", fix); w.Code != http.StatusConflict {
		t.Fatalf("push while not sharing = %d, want 409", w.Code)
	}
	if w := f.request(http.MethodPost, "/api/sharing", ""); w.Code != http.StatusOK {
		t.Fatalf("start sharing = %d", w.Code)
	}
	if w := f.request(http.MethodPost, "/api/position", `{"latitude":135,"longitude":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid fix = %d, want 400", w.Code)
	}
	if w := f.request(http.MethodPost, "/api/position", fix); w.Code != http.StatusNoContent {
		t.Fatalf("push = %d", w.Code)
	}
	if n := f.sentKinds(t, "single_participant_update"); n != 1 {
		t.Fatalf("location reports = %d, want 1", n)
	}

	w := f.request(http.MethodDelete, "/api/sharing", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"stopped":true`) {
		t.Fatalf("stop = %d %s", w.Code, w.Body)
	}
	if n := f.sentKinds(t, "stop_sharing"); n != 1 {
		t.Fatalf("stop frames = %d, want 1", n)
	}
}

func TestUpdateName(t *testing.T) {
	f := newFixture(t)
	f.deliver(t, roster)

	w := f.request(http.MethodPatch, "/api/name", `{"name":"Bob"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate name = %d, want 409", w.Code)
	}
	var conflict map[string]string
	if err := json.NewDecoder(w.Body).Decode(&conflict); err != nil {
		t.Fatal(err)
	}
	if conflict["suggestion"] != "Bob1" {
		t.Fatalf("suggestion = %q", conflict["suggestion"])
	}

	if w := f.request(http.MethodPatch, "/api/name", `{"name":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty name = %d, want 400", w.Code)
	}
	if w := f.request(http.MethodPatch, "/api/name", `{"name":"Robin"}`); w.Code != http.StatusOK {
		t.Fatalf("rename = %d", w.Code)
	}
	if n := f.sentKinds(t, "name_update"); n != 1 {
		t.Fatalf("name updates = %d, want 1", n)
	}
}

func TestChatMessages(t *testing.T) {
	f := newFixture(t)

	if w := f.request(http.MethodPost, "/api/chat/messages", `{"text":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty message = %d, want 400", w.Code)
	}
	if w := f.request(http.MethodPost, "/api/chat/messages", `{"text":"hello"}`); w.Code != http.StatusCreated {
		t.Fatalf("send = %d", w.Code)
	}
	if n := f.sentKinds(t, "chat_message"); n != 1 {
		t.Fatalf("chat frames = %d, want 1", n)
	}

	w := f.request(http.MethodGet, "/api/chat/messages", "")
	var messages []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&messages); err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 || messages[0]["text"] != "hello" {
		t.Fatalf("messages = %v", messages)
	}

	if w := f.request(http.MethodPost, "/api/chat/open", `{"target":"nobody"}`); w.Code != http.StatusNotFound {
		t.Fatalf("open unknown partner = %d, want 404", w.Code)
	}
}

func TestUnreadBadgeInChatState(t *testing.T) {
	f := newFixture(t)
	f.deliver(t, roster)
	f.deliver(t, `{"type":"chat_message","sender_id":"p2","sender_name":"bob","chat_type":"group","text":"hi all"}`)

	w := f.request(http.MethodGet, "/api/chat", "")
	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Open || resp.GroupUnread != 1 || resp.Total != 1 || len(resp.Contacts) != 1 {
		t.Fatalf("chat = %+v", resp)
	}

	if w := f.request(http.MethodPost, "/api/chat/open", `{"target":"group"}`); w.Code != http.StatusNoContent {
		t.Fatalf("open group = %d", w.Code)
	}
	if n := f.sentKinds(t, "mark_as_read"); n != 1 {
		t.Fatalf("mark_as_read = %d, want 1", n)
	}
}

func TestVisibilitySignal(t *testing.T) {
	f := newFixture(t)

	if w := f.request(http.MethodPost, "/api/visibility", `{"signal":"sideways"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown signal = %d, want 400", w.Code)
	}
	if w := f.request(http.MethodPost, "/api/visibility", `{"signal":"hidden"}`); w.Code != http.StatusNoContent {
		t.Fatalf("hidden = %d", w.Code)
	}
	if n := f.sentKinds(t, "background_status_update"); n != 1 {
		t.Fatalf("background updates = %d, want 1", n)
	}
}

func TestFollowValidation(t *testing.T) {
	f := newFixture(t)

	if w := f.request(http.MethodPost, "/api/follow", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty follow = %d, want 400", w.Code)
	}
	if w := f.request(http.MethodPost, "/api/clusters/cluster_x/popup", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown cluster = %d, want 404", w.Code)
	}
	if w := f.request(http.MethodDelete, "/api/follow", ""); w.Code != http.StatusNoContent {
		t.Fatalf("unfollow = %d", w.Code)
	}
}

func TestLeaveOnce(t *testing.T) {
	f := newFixture(t)

	w := f.request(http.MethodPost, "/api/leave", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"left":true`) {
		t.Fatalf("leave = %d %s", w.Code, w.Body)
	}
	w = f.request(http.MethodPost, "/api/leave", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"left":false`) {
		t.Fatalf("second leave = %d %s", w.Code, w.Body)
	}
	if w := f.request(http.MethodPost, "/api/sharing", ""); w.Code != http.StatusGone {
		t.Fatalf("share after leave = %d, want 410", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/api/map", nil)
	r.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestStoppedLoop(t *testing.T) {
	f := newFixture(t)
	f.stop()
	<-f.loop.Done()

	if w := f.request(http.MethodGet, "/api/participants", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
