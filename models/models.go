package models

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusSharing Status = "sharing"
	StatusStopped Status = "stopped"
)

const (
	// NoLocation is the coordinate sentinel the server uses for "no fix yet".
	NoLocation = 999.0

	MaxNameLength = 30
	MaxAccuracy   = 1000.0
)

type Participant struct {
	ParticipantID   string    `json:"participant_id"`
	PersistentID    string    `json:"persistent_participant_id,omitempty"`
	Name            string    `json:"participant_name"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	Accuracy        *float64  `json:"accuracy"`
	Status          Status    `json:"status"`
	IsOnline        bool      `json:"is_online"`
	IsBackground    bool      `json:"is_background"`
	IsMobile        bool      `json:"is_mobile"`
	LastUpdated     Timestamp `json:"last_updated"`
	LastSeenAt      Timestamp `json:"last_seen_at"`
	StayMinutes     int       `json:"stay_minutes"`
	HasSharedBefore bool      `json:"has_shared_before"`
}

// ValidCoordinates reports whether lat/lng hold a real fix.
func ValidCoordinates(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	for _, v := range []float64{*lat, *lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v == NoLocation {
			return false
		}
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}

func (p Participant) HasValidCoordinates() bool {
	return ValidCoordinates(p.Latitude, p.Longitude)
}

// Coordinates returns the fix, if any.
func (p Participant) Coordinates() (lat, lng float64, ok bool) {
	if !p.HasValidCoordinates() {
		return 0, 0, false
	}
	return *p.Latitude, *p.Longitude, true
}

func (p Participant) IsSharing() bool {
	return p.Status == StatusSharing
}

// IsActive is an online participant that is currently sharing.
func (p Participant) IsActive() bool {
	return p.IsOnline && p.Status == StatusSharing
}

// IsGhost is a participant that is gone or stopped but may keep a last-known marker.
func (p Participant) IsGhost() bool {
	return !p.IsOnline || p.Status == StatusStopped
}

// MarkerEligible decides whether the participant is drawn on the map at all.
func (p Participant) MarkerEligible() bool {
	if !p.HasValidCoordinates() {
		return false
	}
	if p.IsActive() {
		return true
	}
	return p.IsGhost() && p.HasSharedBefore
}

// AccuracyMeters returns the accuracy when it is known and plausible.
func (p Participant) AccuracyMeters() (float64, bool) {
	return NormalizeAccuracy(p.Accuracy)
}

func NormalizeAccuracy(acc *float64) (float64, bool) {
	if acc == nil || math.IsNaN(*acc) || *acc <= 0 || *acc > MaxAccuracy {
		return 0, false
	}
	return *acc, true
}

// DisplayName falls back to a short id based label when the name is empty.
func (p Participant) DisplayName() string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		id := p.ParticipantID
		if len(id) > 4 {
			id = id[:4]
		}
		name = "Participant " + id
	}
	return TruncateName(name)
}

// NormalizedName is the identity used for duplicate-name detection.
func (p Participant) NormalizedName() string {
	return NormalizeName(p.Name)
}

var lower = cases.Lower(language.Und)

func NormalizeName(name string) string {
	return lower.String(strings.TrimSpace(name))
}

func TruncateName(name string) string {
	return TruncateRunes(name, MaxNameLength)
}

func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func Float(v float64) *float64 {
	return &v
}
