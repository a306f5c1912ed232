// Package state is the canonical in-memory model of the session: who I am,
// whether I share, the roster and its display order, colors, the diff
// baseline used for notifications and the follow target.
package state

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/models"
)

// Snapshot is the per-participant diff baseline for change notifications.
type Snapshot struct {
	Name    string
	Status  models.Status
	Sharing bool
	Online  bool
}

func SnapshotOf(p models.Participant) Snapshot {
	return Snapshot{
		Name:    p.DisplayName(),
		Status:  p.Status,
		Sharing: p.IsSharing(),
		Online:  p.IsOnline,
	}
}

// Follow is either a single participant or a group of them.
type Follow struct {
	ParticipantID string
	Group         []string
}

func (f Follow) Active() bool {
	return f.ParticipantID != "" || len(f.Group) > 0
}

// GroupID is the synthetic id of a followed group.
func (f Follow) GroupID() string {
	if len(f.Group) == 0 {
		return ""
	}
	return GroupID(f.Group)
}

func GroupID(ids []string) string {
	sorted := slices.Clone(ids)
	sort.Strings(sorted)
	id := strings.Join(sorted, "_")
	if len(id) > 20 {
		id = id[:20]
	}
	return "group_" + id
}

type Store struct {
	SessionID     string
	ParticipantID string
	PersistentID  string
	Fingerprint   string
	Name          string
	// PreviousName is restored when the server rejects a name update.
	PreviousName  string
	IsMobile      bool
	IsSharing     bool
	InBackground  bool
	Leaving       bool
	Expired       bool
	ExpiresAt     time.Time

	LastKnown  *models.Position
	LastSent   *models.Position
	LastSentAt time.Time

	roster    []models.Participant
	order     []string
	colors    map[string]string
	previous  map[string]Snapshot
	following Follow

	db  database.Store
	now func() time.Time
}

func New(sessionID, participantID string, db database.Store, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		SessionID:     sessionID,
		ParticipantID: participantID,
		colors:        make(map[string]string),
		previous:      make(map[string]Snapshot),
		db:            db,
		now:           now,
	}
}

func (s *Store) IsMe(participantID string) bool {
	return participantID != "" && participantID == s.ParticipantID
}

// Terminal is true once the session was left or expired.
func (s *Store) Terminal() bool {
	return s.Leaving || s.Expired
}

func (s *Store) SetName(name string) {
	s.Name = models.TruncateName(strings.TrimSpace(name))
}

// Roster returns a copy of the participant list.
func (s *Store) Roster() []models.Participant {
	return slices.Clone(s.roster)
}

func (s *Store) Participant(id string) (models.Participant, bool) {
	for _, p := range s.roster {
		if p.ParticipantID == id {
			return p, true
		}
	}
	return models.Participant{}, false
}

func (s *Store) Me() (models.Participant, bool) {
	return s.Participant(s.ParticipantID)
}

// SetRoster replaces the roster, keeping display order for known ids.
func (s *Store) SetRoster(list []models.Participant) {
	seen := make(map[string]bool, len(list))
	roster := make([]models.Participant, 0, len(list))
	for _, p := range list {
		if p.ParticipantID == "" || seen[p.ParticipantID] {
			continue
		}
		seen[p.ParticipantID] = true
		roster = append(roster, p)
	}
	s.roster = roster

	order := s.order[:0]
	known := make(map[string]bool, len(roster))
	for _, id := range s.order {
		if seen[id] {
			order = append(order, id)
			known[id] = true
		}
	}
	for _, p := range roster {
		if !known[p.ParticipantID] {
			order = append(order, p.ParticipantID)
		}
	}
	s.order = order
}

// Upsert replaces or appends one participant.
func (s *Store) Upsert(p models.Participant) (old models.Participant, existed bool) {
	for i := range s.roster {
		if s.roster[i].ParticipantID == p.ParticipantID {
			old = s.roster[i]
			s.roster[i] = p
			return old, true
		}
	}
	s.roster = append(s.roster, p)
	if !slices.Contains(s.order, p.ParticipantID) {
		s.order = append(s.order, p.ParticipantID)
	}
	return models.Participant{}, false
}

// Remove purges ids from every structure that references them.
func (s *Store) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.roster = slices.DeleteFunc(s.roster, func(p models.Participant) bool { return drop[p.ParticipantID] })
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return drop[id] })
	for id := range drop {
		delete(s.colors, id)
		delete(s.previous, id)
	}

	if drop[s.following.ParticipantID] {
		s.following.ParticipantID = ""
	}
	if len(s.following.Group) > 0 {
		s.following.Group = slices.DeleteFunc(slices.Clone(s.following.Group), func(id string) bool { return drop[id] })
		if len(s.following.Group) == 0 {
			s.following.Group = nil
		}
	}
}

// Ordered returns the roster in display order.
func (s *Store) Ordered() []models.Participant {
	byID := make(map[string]models.Participant, len(s.roster))
	for _, p := range s.roster {
		byID[p.ParticipantID] = p
	}
	out := make([]models.Participant, 0, len(s.roster))
	for _, id := range s.order {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	for _, p := range s.roster {
		if _, ok := byID[p.ParticipantID]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Order() []string {
	return slices.Clone(s.order)
}

// Color returns the cached color for id, assigning it on first use.
func (s *Store) Color(id string) string {
	if c, ok := s.colors[id]; ok {
		return c
	}
	c := ColorFor(id)
	s.colors[id] = c
	return c
}

func (s *Store) Previous(id string) (Snapshot, bool) {
	snap, ok := s.previous[id]
	return snap, ok
}

func (s *Store) PreviousIDs() []string {
	ids := make([]string, 0, len(s.previous))
	for id := range s.previous {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReplacePrevious swaps in a new diff baseline wholesale.
func (s *Store) ReplacePrevious(next map[string]Snapshot) {
	s.previous = next
}

func (s *Store) SetPrevious(id string, snap Snapshot) {
	s.previous[id] = snap
}

func (s *Store) Following() Follow {
	return Follow{ParticipantID: s.following.ParticipantID, Group: slices.Clone(s.following.Group)}
}

func (s *Store) FollowParticipant(id string) {
	s.following = Follow{ParticipantID: id}
}

func (s *Store) FollowGroup(ids []string) {
	group := slices.Clone(ids)
	sort.Strings(group)
	s.following = Follow{Group: group}
}

func (s *Store) StopFollowing() {
	s.following = Follow{}
}

// Snapshot captures what a reload needs.
func (s *Store) Snapshot() database.SessionSnapshot {
	snap := database.SessionSnapshot{
		IsSharing:              s.IsSharing,
		ParticipantName:        s.Name,
		SavedAt:                s.now(),
		ParticipantOrder:       slices.Clone(s.order),
		ParticipantColors:      make(map[string]string, len(s.colors)),
		FollowingParticipantID: s.following.ParticipantID,
		FollowingGroup:         slices.Clone(s.following.Group),
	}
	for id, c := range s.colors {
		snap.ParticipantColors[id] = c
	}
	if s.LastKnown != nil {
		snap.LastPosition = &database.SavedPosition{
			Latitude:  s.LastKnown.Latitude,
			Longitude: s.LastKnown.Longitude,
			Accuracy:  s.LastKnown.Accuracy,
			Timestamp: s.LastKnown.Timestamp,
		}
	}
	return snap
}

func (s *Store) Save(ctx context.Context) error {
	if s.db == nil || s.Terminal() {
		return nil
	}
	return database.SaveSnapshot(ctx, s.db, s.SessionID, s.Snapshot())
}

// Restore applies a saved snapshot younger than the snapshot TTL.
// It reports whether anything was restored.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	snap, err := database.LoadSnapshot(ctx, s.db, s.SessionID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.now().Sub(snap.SavedAt) > database.SnapshotTTL {
		return false, nil
	}

	if snap.ParticipantName != "" && s.Name == "" {
		s.SetName(snap.ParticipantName)
	}
	s.IsSharing = snap.IsSharing
	s.order = slices.Clone(snap.ParticipantOrder)
	for id, c := range snap.ParticipantColors {
		s.colors[id] = c
	}
	switch {
	case snap.FollowingParticipantID != "":
		s.FollowParticipant(snap.FollowingParticipantID)
	case len(snap.FollowingGroup) > 0:
		s.FollowGroup(snap.FollowingGroup)
	}
	if p := snap.LastPosition; p != nil {
		s.LastKnown = &models.Position{Latitude: p.Latitude, Longitude: p.Longitude, Accuracy: p.Accuracy, Timestamp: p.Timestamp}
	}
	return true, nil
}

// Clear purges persisted state and the in-memory roster.
func (s *Store) Clear(ctx context.Context) error {
	s.roster = nil
	s.order = nil
	s.colors = make(map[string]string)
	s.previous = make(map[string]Snapshot)
	s.following = Follow{}
	s.IsSharing = false
	s.LastKnown = nil
	s.LastSent = nil

	if s.db == nil {
		return nil
	}
	return database.ClearSession(ctx, s.db, s.SessionID, s.ParticipantID)
}
