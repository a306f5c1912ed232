// Package handlers serves the local HTTP API a host UI uses to drive the
// client. Every request runs its work on the event loop.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/rs/cors"

	"github.com/clementus360/proxy-share/app"
	"github.com/clementus360/proxy-share/location"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/render"
	"github.com/clementus360/proxy-share/ui"
)

type Options struct {
	Loop    *loop.Loop
	App     *app.App
	Surface *render.MemorySurface
	Board   *ui.Board
	// Sensor is nil when positions come from somewhere else.
	Sensor *location.PushSensor
}

type Server struct {
	loop    *loop.Loop
	app     *app.App
	surface *render.MemorySurface
	board   *ui.Board
	sensor  *location.PushSensor
}

func New(opts Options) *Server {
	return &Server{
		loop:    opts.Loop,
		app:     opts.App,
		surface: opts.Surface,
		board:   opts.Board,
		sensor:  opts.Sensor,
	}
}

// Router registers every route and wraps them with CORS.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/participants", s.GetParticipants)
	mux.HandleFunc("GET /api/status", s.GetStatus)
	mux.HandleFunc("GET /api/map", s.GetMap)

	mux.HandleFunc("POST /api/sharing", s.StartSharing)
	mux.HandleFunc("DELETE /api/sharing", s.StopSharing)
	mux.HandleFunc("POST /api/position", s.PushPosition)
	mux.HandleFunc("POST /api/position/error", s.PushPositionError)

	mux.HandleFunc("PATCH /api/name", s.UpdateName)
	mux.HandleFunc("POST /api/visibility", s.Visibility)
	mux.HandleFunc("POST /api/leave", s.Leave)

	mux.HandleFunc("POST /api/follow", s.Follow)
	mux.HandleFunc("DELETE /api/follow", s.Unfollow)
	mux.HandleFunc("POST /api/clusters/{id}/popup", s.OpenClusterPopup)
	mux.HandleFunc("DELETE /api/clusters/{id}/popup", s.CloseClusterPopup)
	mux.HandleFunc("POST /api/map/fit", s.FitAll)

	mux.HandleFunc("GET /api/chat", s.GetChat)
	mux.HandleFunc("POST /api/chat/open", s.OpenChat)
	mux.HandleFunc("POST /api/chat/close", s.CloseChat)
	mux.HandleFunc("GET /api/chat/messages", s.GetMessages)
	mux.HandleFunc("POST /api/chat/messages", s.SendMessage)
	mux.HandleFunc("POST /api/chat/draft", s.Draft)

	c := cors.AllowAll()
	return c.Handler(mux)
}

// do runs f on the event loop. It answers 503 and reports false when the
// loop is gone or the request was cancelled first.
func (s *Server) do(w http.ResponseWriter, r *http.Request, f func()) bool {
	if err := s.loop.Do(r.Context(), f); err != nil {
		if errors.Is(err, loop.ErrStopped) {
			http.Error(w, "Client is shutting down", http.StatusServiceUnavailable)
		} else {
			http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
		}
		log.Println("Error running request on event loop:", err)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("Error encoding response:", err)
	}
}
