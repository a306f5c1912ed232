// Package reconcile turns the server's participant stream into a
// deduplicated roster in the state store and a list of side-effect intents.
package reconcile

import (
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/protocol"
	"github.com/clementus360/proxy-share/state"
)

type Engine struct {
	st      *state.Store
	limiter *Limiter
	clock   loop.Clock
}

func New(st *state.Store, limiter *Limiter, clock loop.Clock) *Engine {
	return &Engine{st: st, limiter: limiter, clock: clock}
}

// Apply reconciles one inbound message. Messages the engine does not own
// yield no intents.
func (e *Engine) Apply(msg protocol.Inbound) []Intent {
	switch m := msg.(type) {
	case protocol.LocationUpdate:
		return e.applyRoster(m.Locations)
	case protocol.BackgroundStatusChange:
		return e.applyRoster(m.Locations)
	case protocol.SingleParticipantUpdate:
		return e.applyDelta(m)
	case protocol.RemoveDirectionIndicator:
		return []Intent{RemoveDirection{ParticipantID: m.ParticipantID}}
	case protocol.ParticipantConfirmed:
		return e.confirm(m)
	case protocol.NameUpdateResponse:
		return e.nameResponse(m)
	case protocol.DuplicateCleanupResponse:
		return e.cleanupResponse(m)
	case protocol.Notification:
		return e.serverNotification(m)
	case protocol.SessionExpired:
		return []Intent{Expire{Reason: m.Message}}
	case protocol.Error:
		if strings.Contains(strings.ToLower(m.Message), "expired") {
			return []Intent{Expire{Reason: m.Message}}
		}
		log.Printf("Server error: %s", m.Message)
		return e.notify(m.Message, LevelError, "")
	}
	return nil
}

// Notify runs text through the duplicate limiter.
func (e *Engine) Notify(text string, level Level) []Intent {
	return e.notify(text, level, "")
}

func (e *Engine) notify(text string, level Level, icon string) []Intent {
	if text == "" || !e.limiter.Allow(text) {
		return nil
	}
	return []Intent{Notify{Text: text, Level: level, Icon: icon}}
}

func (e *Engine) applyRoster(list []models.Participant) []Intent {
	if e.st.Leaving {
		list = slices.DeleteFunc(slices.Clone(list), func(p models.Participant) bool {
			return e.st.IsMe(p.ParticipantID)
		})
	}

	kept, removed := Dedup(list, e.st.ParticipantID)
	intents := e.purge(removed)

	if !e.st.Terminal() {
		current := make(map[string]state.Snapshot, len(kept))
		for _, p := range kept {
			current[p.ParticipantID] = state.SnapshotOf(p)
		}
		for _, p := range kept {
			if e.st.IsMe(p.ParticipantID) {
				continue
			}
			prev, ok := e.st.Previous(p.ParticipantID)
			intents = append(intents, e.transitions(prev, ok, current[p.ParticipantID])...)
		}
		for _, id := range e.st.PreviousIDs() {
			if e.st.IsMe(id) {
				continue
			}
			if _, ok := current[id]; !ok {
				prev, _ := e.st.Previous(id)
				intents = append(intents, e.notify(fmt.Sprintf("%s left the session", prev.Name), LevelSecondary, "door")...)
			}
		}
		e.st.ReplacePrevious(current)
	}

	e.st.SetRoster(kept)
	return append(intents, RosterChanged{})
}

func (e *Engine) applyDelta(m protocol.SingleParticipantUpdate) []Intent {
	if m.Participant == nil {
		log.Printf("Error applying participant update: no participant data for %s", m.ParticipantID)
		return nil
	}
	p := *m.Participant
	if p.ParticipantID == "" {
		p.ParticipantID = m.ParticipantID
	}
	if p.ParticipantID == "" {
		log.Printf("Error applying participant update: missing participant id")
		return nil
	}
	isMe := e.st.IsMe(p.ParticipantID)
	if isMe && e.st.Leaving {
		return nil
	}

	candidate := e.st.Roster()
	replaced := false
	for i := range candidate {
		if candidate[i].ParticipantID == p.ParticipantID {
			candidate[i] = p
			replaced = true
		}
	}
	if !replaced {
		candidate = append(candidate, p)
	}

	_, removed := Dedup(candidate, e.st.ParticipantID)
	intents := e.purge(removed)
	if slices.Contains(removed, p.ParticipantID) {
		return append(intents, RosterChanged{})
	}

	if !e.st.Terminal() {
		cur := state.SnapshotOf(p)
		if !isMe {
			prev, ok := e.st.Previous(p.ParticipantID)
			intents = append(intents, e.transitions(prev, ok, cur)...)
		}
		e.st.SetPrevious(p.ParticipantID, cur)
	}

	e.st.Upsert(p)
	return append(intents, RosterChanged{})
}

// purge removes duplicate losers everywhere and reports them to the server.
func (e *Engine) purge(removed []string) []Intent {
	if len(removed) == 0 {
		return nil
	}
	e.st.Remove(removed...)
	log.Printf("Removed %d duplicate participants: %v", len(removed), removed)

	return []Intent{
		RemoveParticipants{IDs: removed},
		Send{Message: protocol.DuplicatesRemoved{
			RemovedParticipantIDs: removed,
			ReporterParticipantID: e.st.ParticipantID,
			SessionID:             e.st.SessionID,
			Timestamp:             e.clock.Now().UnixMilli(),
			CleanupRequest:        true,
		}},
	}
}

// transitions compares one participant against its baseline. Sharing and
// online changes are independent and may both fire.
func (e *Engine) transitions(prev state.Snapshot, known bool, cur state.Snapshot) []Intent {
	if !known {
		return e.notify(fmt.Sprintf("%s joined the session", cur.Name), LevelSuccess, "person-plus")
	}

	var intents []Intent
	if prev.Sharing != cur.Sharing {
		if cur.Sharing {
			intents = append(intents, e.notify(fmt.Sprintf("%s started sharing location", cur.Name), LevelSuccess, "geo")...)
		} else {
			intents = append(intents, e.notify(fmt.Sprintf("%s stopped sharing location", cur.Name), LevelWarning, "geo-slash")...)
		}
	}
	if prev.Online != cur.Online {
		if cur.Online {
			intents = append(intents, e.notify(fmt.Sprintf("%s is back online", cur.Name), LevelInfo, "wifi")...)
		} else {
			intents = append(intents, e.notify(fmt.Sprintf("%s went offline", cur.Name), LevelSecondary, "wifi-off")...)
		}
	}
	return intents
}

func (e *Engine) confirm(m protocol.ParticipantConfirmed) []Intent {
	if m.ParticipantID != "" && m.ParticipantID != e.st.ParticipantID {
		log.Printf("Participant id changed from %s to %s", e.st.ParticipantID, m.ParticipantID)
		e.st.ParticipantID = m.ParticipantID
	}

	intents := []Intent{IdentityConfirmed{ParticipantID: e.st.ParticipantID, Rejoined: m.IsExisting}}
	if m.IsExisting {
		return append(intents, e.notify("Rejoined the session", LevelInfo, "arrow-repeat")...)
	}
	return append(intents, e.notify("Joined the session", LevelSuccess, "check-circle")...)
}

func (e *Engine) nameResponse(m protocol.NameUpdateResponse) []Intent {
	if m.Success {
		e.st.PreviousName = ""
		if m.ParticipantName != "" {
			e.st.SetName(m.ParticipantName)
		}
		if m.ShowNotification {
			return e.notify(fmt.Sprintf("Name changed to %s", e.st.Name), LevelSuccess, "check-circle")
		}
		return nil
	}

	restore := m.CurrentName
	if restore == "" {
		restore = e.st.PreviousName
	}
	e.st.PreviousName = ""

	var intents []Intent
	if restore != "" && restore != e.st.Name {
		e.st.SetName(restore)
		if me, ok := e.st.Me(); ok {
			me.Name = e.st.Name
			e.st.Upsert(me)
			intents = append(intents, RosterChanged{})
		}
	}
	text := m.Error
	if text == "" {
		text = "Name update failed"
	}
	return append(intents, e.notify(text, LevelError, "exclamation-triangle")...)
}

func (e *Engine) cleanupResponse(m protocol.DuplicateCleanupResponse) []Intent {
	if !m.Success {
		text := "Duplicate cleanup failed"
		if m.Error != "" {
			text += ": " + m.Error
		}
		return e.notify(text, LevelWarning, "exclamation-triangle")
	}
	return []Intent{Send{Message: protocol.RequestParticipantsUpdate{
		ParticipantID: e.st.ParticipantID,
		Timestamp:     e.clock.Now().UnixMilli(),
		Reason:        "duplicate_cleanup",
	}}}
}

func (e *Engine) serverNotification(m protocol.Notification) []Intent {
	if m.ExcludeSelf && e.st.IsMe(m.ParticipantID) {
		return nil
	}
	level := Level(m.NotificationType)
	switch level {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError, LevelSecondary:
	default:
		level = LevelInfo
	}
	return e.notify(m.Message, level, m.Icon)
}
