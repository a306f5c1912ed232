package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/clementus360/proxy-share/app"
	"github.com/clementus360/proxy-share/lifecycle"
	"github.com/clementus360/proxy-share/location"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/ui"
)

type statusResponse struct {
	ui.View
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"participant_name"`
	Connection    string     `json:"connection"`
	Sharing       bool       `json:"is_sharing"`
	Background    bool       `json:"is_background"`
	LastPong      *time.Time `json:"last_pong,omitempty"`
}

type positionRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

type positionErrorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type signalRequest struct {
	Signal string `json:"signal"`
}

type followRequest struct {
	ParticipantID string `json:"participant_id"`
	ClusterID     string `json:"cluster_id"`
}

// GetParticipants returns the roster in display order.
func (s *Server) GetParticipants(w http.ResponseWriter, r *http.Request) {
	var roster []models.Participant
	var me string
	if !s.do(w, r, func() {
		roster = s.app.State().Ordered()
		me = s.app.State().ParticipantID
	}) {
		return
	}
	if roster == nil {
		roster = []models.Participant{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participant_id": me,
		"participants":   roster,
		"total_count":    len(roster),
	})
}

// GetStatus returns what the host UI shows outside the map.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{View: s.board.View()}
	if !s.do(w, r, func() {
		st := s.app.State()
		resp.ParticipantID = st.ParticipantID
		resp.Name = st.Name
		resp.Sharing = st.IsSharing
		resp.Background = st.InBackground
		resp.Connection = s.app.Connection().State().String()
		if pong := s.app.LastPong(); !pong.IsZero() {
			resp.LastPong = &pong
		}
	}) {
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetMap returns everything currently drawn on the map.
func (s *Server) GetMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.Snapshot())
}

func (s *Server) StartSharing(w http.ResponseWriter, r *http.Request) {
	var err error
	if !s.do(w, r, func() { err = s.app.StartSharing() }) {
		return
	}
	switch {
	case errors.Is(err, app.ErrSessionEnded), errors.Is(err, location.ErrInactive):
		http.Error(w, "Session has ended", http.StatusGone)
		return
	case errors.Is(err, location.ErrStopping):
		http.Error(w, "Sharing is still being stopped", http.StatusConflict)
		return
	case err != nil:
		log.Println("Error starting location sharing:", err)
		http.Error(w, "Error starting location sharing", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"is_sharing": true})
}

func (s *Server) StopSharing(w http.ResponseWriter, r *http.Request) {
	var stopped bool
	if !s.do(w, r, func() { stopped = s.app.StopSharing() }) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// PushPosition feeds one fix from the host's location sensor.
func (s *Server) PushPosition(w http.ResponseWriter, r *http.Request) {
	if s.sensor == nil {
		http.Error(w, "Positions are not accepted over HTTP", http.StatusConflict)
		return
	}
	var req positionRequest
	if !decode(w, r, &req) {
		return
	}
	pos := models.Position{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: req.Timestamp,
	}
	if !pos.Valid() {
		http.Error(w, "Invalid coordinates", http.StatusBadRequest)
		return
	}

	var accepted bool
	if !s.do(w, r, func() { accepted = s.sensor.Push(pos) }) {
		return
	}
	if !accepted {
		http.Error(w, "Location sharing is not active", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PushPositionError reports a failure of the host's location sensor.
func (s *Server) PushPositionError(w http.ResponseWriter, r *http.Request) {
	if s.sensor == nil {
		http.Error(w, "Positions are not accepted over HTTP", http.StatusConflict)
		return
	}
	var req positionErrorRequest
	if !decode(w, r, &req) {
		return
	}

	var accepted bool
	if !s.do(w, r, func() {
		accepted = s.sensor.Fail(&location.SensorError{Code: location.ErrorCode(req.Code), Message: req.Message})
	}) {
		return
	}
	if !accepted {
		http.Error(w, "Location sharing is not active", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) UpdateName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}

	var suggestion, name string
	var err error
	if !s.do(w, r, func() {
		suggestion, err = s.app.SetName(req.Name)
		name = s.app.State().Name
	}) {
		return
	}
	switch {
	case errors.Is(err, app.ErrEmptyName):
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	case errors.Is(err, app.ErrDuplicateName):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":      "Name is already taken",
			"suggestion": suggestion,
		})
		return
	case errors.Is(err, app.ErrSessionEnded):
		http.Error(w, "Session has ended", http.StatusGone)
		return
	case err != nil:
		log.Println("Error updating name:", err)
		http.Error(w, "Error updating name", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"participant_name": name})
}

// Visibility applies a host visibility signal such as "hidden" or "focus".
func (s *Server) Visibility(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := lifecycle.ParseSignal(req.Signal); err != nil {
		http.Error(w, "Unknown signal", http.StatusBadRequest)
		return
	}

	var err error
	if !s.do(w, r, func() { err = s.app.Signal(req.Signal) }) {
		return
	}
	if err != nil {
		http.Error(w, "Session has ended", http.StatusGone)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Leave(w http.ResponseWriter, r *http.Request) {
	var left bool
	var err error
	if !s.do(w, r, func() { left, err = s.app.Leave(r.Context()) }) {
		return
	}
	if err != nil {
		log.Println("Error leaving session:", err)
		http.Error(w, "Error leaving session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"left": left})
}

// Follow keeps the map on a participant or on a cluster.
func (s *Server) Follow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if !decode(w, r, &req) {
		return
	}
	if (req.ParticipantID == "") == (req.ClusterID == "") {
		http.Error(w, "Either participant_id or cluster_id is required", http.StatusBadRequest)
		return
	}

	var ok bool
	if !s.do(w, r, func() {
		if req.ParticipantID != "" {
			ok = s.app.FollowParticipant(req.ParticipantID)
		} else {
			ok = s.app.FollowCluster(req.ClusterID)
		}
	}) {
		return
	}
	if !ok {
		http.Error(w, "Nothing to follow", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Unfollow(w http.ResponseWriter, r *http.Request) {
	if !s.do(w, r, s.app.StopFollowing) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) OpenClusterPopup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var ok bool
	if !s.do(w, r, func() { ok = s.app.Renderer().OpenClusterPopup(id) }) {
		return
	}
	if !ok {
		http.Error(w, "Cluster not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CloseClusterPopup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var ok bool
	if !s.do(w, r, func() { ok = s.app.Renderer().CloseClusterPopup(id) }) {
		return
	}
	if !ok {
		http.Error(w, "Cluster not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) FitAll(w http.ResponseWriter, r *http.Request) {
	if !s.do(w, r, s.app.Renderer().FitAll) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
