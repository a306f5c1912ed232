package ui

import (
	"fmt"
	"math"
	"time"

	"github.com/clementus360/proxy-share/models"
)

const (
	StatusOnline     = "online"
	StatusBackground = "background"
	StatusWaiting    = "waiting"
	StatusOffline    = "offline"

	BackgroundAfter = 120 * time.Second
	StaleWaiting    = 5 * time.Minute
)

// Entry is one row of the participant list.
type Entry struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	IsMe          bool   `json:"is_me"`
	Following     bool   `json:"following,omitempty"`
	StatusClass   string `json:"status_class"`
	StatusText    string `json:"status_text"`
	Accuracy      string `json:"accuracy,omitempty"`
	StayMinutes   int    `json:"stay_minutes,omitempty"`
}

type EntryOptions struct {
	MeID      string
	Following func(participantID string) bool
	Color     func(participantID string) string
	Now       time.Time
}

// Entries builds the list rows in the given order.
func Entries(roster []models.Participant, opts EntryOptions) []Entry {
	out := make([]Entry, 0, len(roster))
	for _, p := range roster {
		isMe := p.ParticipantID == opts.MeID
		class, text := participantStatus(p, isMe, opts.Now)
		e := Entry{
			ParticipantID: p.ParticipantID,
			Name:          p.DisplayName(),
			IsMe:          isMe,
			StatusClass:   class,
			StatusText:    text,
			StayMinutes:   p.StayMinutes,
		}
		if opts.Color != nil {
			e.Color = opts.Color(p.ParticipantID)
		}
		if opts.Following != nil && !isMe && p.IsSharing() {
			e.Following = opts.Following(p.ParticipantID)
		}
		if p.Status == models.StatusSharing && p.IsOnline && p.HasValidCoordinates() {
			e.Accuracy = AccuracyText(p.Accuracy)
		}
		out = append(out, e)
	}
	return out
}

func participantStatus(p models.Participant, isMe bool, now time.Time) (string, string) {
	lastSeen := p.LastSeenAt.Time
	if lastSeen.IsZero() {
		lastSeen = p.LastUpdated.Time
	}

	if p.Status == models.StatusWaiting && p.IsOnline {
		if !lastSeen.IsZero() && now.Sub(lastSeen) >= StaleWaiting {
			if isMe {
				return StatusWaiting, "Checking connection..."
			}
			return StatusWaiting, fmt.Sprintf("Joined (last seen %d min ago)", int(now.Sub(lastSeen)/time.Minute))
		}
		if isMe {
			return StatusWaiting, "Waiting to share"
		}
		return StatusWaiting, "Joined (not sharing)"
	}

	if (!p.IsOnline || p.Status == models.StatusStopped) && p.Status != models.StatusWaiting {
		if lastSeen.IsZero() {
			return StatusOffline, "Offline"
		}
		return StatusOffline, "Offline (" + Ago(now.Sub(lastSeen)) + ")"
	}

	if p.Status == models.StatusSharing && p.IsOnline && p.HasValidCoordinates() {
		if p.IsBackground || (!p.LastUpdated.IsZero() && now.Sub(p.LastUpdated.Time) > BackgroundAfter) {
			return StatusBackground, "Background"
		}
		return StatusOnline, "Online"
	}

	if isMe {
		return StatusWaiting, "Checking status"
	}
	return StatusWaiting, "Unknown"
}

// Ago renders an elapsed duration in coarse buckets.
func Ago(d time.Duration) string {
	minutes := int(d / time.Minute)
	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%d min ago", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%d h ago", minutes/60)
	default:
		return fmt.Sprintf("%d d ago", minutes/(24*60))
	}
}

func AccuracyText(acc *float64) string {
	if acc == nil || *acc <= 0 || math.IsNaN(*acc) {
		return "Accuracy: unknown"
	}
	m := math.Round(*acc)
	switch {
	case *acc <= 20:
		return fmt.Sprintf("Accuracy: %.0fm (high)", m)
	case *acc <= 50:
		return fmt.Sprintf("Accuracy: %.0fm (medium)", m)
	case *acc <= 200:
		return fmt.Sprintf("Accuracy: %.0fm (low)", m)
	default:
		return fmt.Sprintf("Accuracy: %.0fm (very low)", m)
	}
}
