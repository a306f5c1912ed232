package reconcile

import (
	"testing"
	"time"

	"github.com/clementus360/proxy-share/models"
)

func rec(id, name string, online bool, status models.Status, updated int64) models.Participant {
	return models.Participant{
		ParticipantID: id,
		Name:          name,
		IsOnline:      online,
		Status:        status,
		LastUpdated:   models.At(time.Unix(updated, 0)),
	}
}

func ids(list []models.Participant) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.ParticipantID
	}
	return out
}

func TestDedupPriority(t *testing.T) {
	tests := []struct {
		name    string
		list    []models.Participant
		me      string
		winner  string
		removed int
	}{
		{
			name: "self wins over everything",
			list: []models.Participant{
				rec("a", "Sam", true, models.StatusSharing, 300),
				rec("me", "sam", false, models.StatusWaiting, 1),
			},
			me: "me", winner: "me", removed: 1,
		},
		{
			name: "online beats offline",
			list: []models.Participant{
				rec("a", "Sam", false, models.StatusSharing, 300),
				rec("b", "Sam", true, models.StatusWaiting, 1),
			},
			winner: "b", removed: 1,
		},
		{
			name: "sharing beats waiting",
			list: []models.Participant{
				rec("a", "Sam", true, models.StatusWaiting, 300),
				rec("b", " SAM ", true, models.StatusSharing, 1),
			},
			winner: "b", removed: 1,
		},
		{
			name: "most recent wins",
			list: []models.Participant{
				rec("a", "Sam", true, models.StatusSharing, 100),
				rec("b", "Sam", true, models.StatusSharing, 200),
				rec("c", "Sam", true, models.StatusSharing, 150),
			},
			winner: "b", removed: 2,
		},
		{
			name: "ties keep input order",
			list: []models.Participant{
				rec("a", "Sam", true, models.StatusSharing, 100),
				rec("b", "Sam", true, models.StatusSharing, 100),
			},
			winner: "a", removed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, removed := Dedup(tt.list, tt.me)
			if len(kept) != 1 || kept[0].ParticipantID != tt.winner {
				t.Fatalf("expected winner %s, got %v", tt.winner, ids(kept))
			}
			if len(removed) != tt.removed {
				t.Fatalf("expected %d removed, got %v", tt.removed, removed)
			}
		})
	}
}

func TestDedupIgnoresEmptyNames(t *testing.T) {
	list := []models.Participant{
		rec("a", "", true, models.StatusSharing, 1),
		rec("b", "  ", true, models.StatusSharing, 2),
		rec("c", "", false, models.StatusWaiting, 3),
	}
	kept, removed := Dedup(list, "")
	if len(kept) != 3 || len(removed) != 0 {
		t.Fatalf("expected all empty-named records to survive, got %v removed %v", ids(kept), removed)
	}
}

func TestDedupOneSurvivorPerName(t *testing.T) {
	list := []models.Participant{
		rec("a1", "Ann", true, models.StatusSharing, 1),
		rec("b1", "Ben", true, models.StatusSharing, 1),
		rec("a2", "ann", false, models.StatusWaiting, 9),
		rec("b2", "BEN", true, models.StatusSharing, 5),
		rec("c1", "Cy", true, models.StatusSharing, 1),
	}
	kept, removed := Dedup(list, "")

	names := make(map[string]int)
	for _, p := range kept {
		names[p.NormalizedName()]++
	}
	for name, n := range names {
		if n != 1 {
			t.Fatalf("expected one survivor for %s, got %d", name, n)
		}
	}
	if got := ids(kept); len(got) != 3 || got[0] != "a1" || got[1] != "b2" || got[2] != "c1" {
		t.Fatalf("expected survivors in input order [a1 b2 c1], got %v", got)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", removed)
	}
}

func TestDedupIsIdempotent(t *testing.T) {
	list := []models.Participant{
		rec("a", "Sam", true, models.StatusSharing, 1),
		rec("b", "Sam", false, models.StatusSharing, 2),
	}
	kept, _ := Dedup(list, "")
	again, removed := Dedup(kept, "")
	if len(again) != len(kept) || len(removed) != 0 {
		t.Fatalf("expected second pass to be a no-op, got %v removed %v", ids(again), removed)
	}
}

func TestDedupNeverReportsSurvivingID(t *testing.T) {
	list := []models.Participant{
		rec("a", "Sam", true, models.StatusSharing, 2),
		rec("a", "Sam", false, models.StatusWaiting, 1),
	}
	kept, removed := Dedup(list, "")
	if len(kept) != 1 || len(removed) != 0 {
		t.Fatalf("expected the repeated id to collapse silently, got %v removed %v", ids(kept), removed)
	}
}
