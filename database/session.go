package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	persistentIDKey = "persistent_participant_id"

	// SnapshotTTL bounds how long a warm-restart snapshot is honoured.
	SnapshotTTL = 7 * 24 * time.Hour
	// LeavingTTL bounds how long a leave-in-progress flag blocks re-entry.
	LeavingTTL = 10 * time.Second
)

func SessionKey(sessionID string) string { return "session_" + sessionID }
func LeavingKey(sessionID string) string { return "leaving_" + sessionID }

func ReadMarksKey(sessionID, participantID string) string {
	return "lastRead_" + sessionID + "_" + participantID
}

type SavedPosition struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Accuracy  float64   `json:"acc"`
	Timestamp time.Time `json:"ts"`
}

// SessionSnapshot is what a reload needs to resume where it left off.
type SessionSnapshot struct {
	IsSharing              bool              `json:"isSharing"`
	ParticipantName        string            `json:"participantName"`
	LastPosition           *SavedPosition    `json:"lastPosition,omitempty"`
	SavedAt                time.Time         `json:"savedAt"`
	ParticipantOrder       []string          `json:"participantOrder"`
	ParticipantColors      map[string]string `json:"participantColors"`
	FollowingParticipantID string            `json:"followingParticipantId,omitempty"`
	FollowingGroup         []string          `json:"followingGroup,omitempty"`
}

// ReadMarks are the last-read timestamps per conversation.
type ReadMarks struct {
	Group      time.Time            `json:"group"`
	Individual map[string]time.Time `json:"individual"`
}

func getJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func setJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw), ttl)
}

func LoadSnapshot(ctx context.Context, s Store, sessionID string) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := getJSON(ctx, s, SessionKey(sessionID), &snap)
	return snap, err
}

func SaveSnapshot(ctx context.Context, s Store, sessionID string, snap SessionSnapshot) error {
	return setJSON(ctx, s, SessionKey(sessionID), snap, SnapshotTTL)
}

// ClearSession purges everything scoped to the session except the leave flag.
func ClearSession(ctx context.Context, s Store, sessionID, participantID string) error {
	return s.Delete(ctx, SessionKey(sessionID), ReadMarksKey(sessionID, participantID))
}

func MarkLeaving(ctx context.Context, s Store, sessionID string, at time.Time) error {
	return s.Set(ctx, LeavingKey(sessionID), at.UTC().Format(time.RFC3339Nano), LeavingTTL)
}

// LeavingSince reports when a leave started, if the flag is still present.
func LeavingSince(ctx context.Context, s Store, sessionID string) (time.Time, bool, error) {
	raw, err := s.Get(ctx, LeavingKey(sessionID))
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode leaving flag: %w", err)
	}
	return at, true, nil
}

func ClearLeaving(ctx context.Context, s Store, sessionID string) error {
	return s.Delete(ctx, LeavingKey(sessionID))
}

func LoadReadMarks(ctx context.Context, s Store, sessionID, participantID string) (ReadMarks, error) {
	marks := ReadMarks{Individual: map[string]time.Time{}}
	err := getJSON(ctx, s, ReadMarksKey(sessionID, participantID), &marks)
	if errors.Is(err, ErrNotFound) {
		return ReadMarks{Individual: map[string]time.Time{}}, nil
	}
	if marks.Individual == nil {
		marks.Individual = map[string]time.Time{}
	}
	return marks, err
}

func SaveReadMarks(ctx context.Context, s Store, sessionID, participantID string, marks ReadMarks) error {
	return setJSON(ctx, s, ReadMarksKey(sessionID, participantID), marks, SnapshotTTL)
}

// PersistentID returns the device id, creating it on first use.
func PersistentID(ctx context.Context, s Store) (string, error) {
	id, err := s.Get(ctx, persistentIDKey)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := s.Set(ctx, persistentIDKey, id, 0); err != nil {
		return "", err
	}
	return id, nil
}
