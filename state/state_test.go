package state

import (
	"context"
	"testing"
	"time"

	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/models"
)

func participant(id, name string) models.Participant {
	return models.Participant{ParticipantID: id, Name: name, IsOnline: true, Status: models.StatusWaiting}
}

func TestColorForIsDeterministic(t *testing.T) {
	if ColorFor("abc") != ColorFor("abc") {
		t.Fatal("expected stable color")
	}
	// "a" hashes to 97.
	if got := ColorFor("a"); got != palette[97%len(palette)] {
		t.Fatalf("unexpected color for a: %s", got)
	}
}

func TestStringHashWraps(t *testing.T) {
	// "hello" is 99162322 under the 31-multiplier hash.
	if got := stringHash("hello"); got != 99162322 {
		t.Fatalf("expected 99162322, got %d", got)
	}
	long := "a participant id that is long enough to overflow thirty-two bits"
	if got := stringHash(long); got < 0 || got > 1<<31 {
		t.Fatalf("hash out of range: %d", got)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("agent", "en", "linux", "1920x1080", "Asia/Tokyo")
	b := Fingerprint("agent", "en", "linux", "1920x1080", "Asia/Tokyo")
	c := Fingerprint("agent", "ja", "linux", "1920x1080", "Asia/Tokyo")
	if a != b || a == c || a == "" {
		t.Fatalf("unexpected fingerprints %q %q %q", a, b, c)
	}
}

func TestSetRosterKeepsOrder(t *testing.T) {
	s := New("s1", "me", nil, nil)
	s.SetRoster([]models.Participant{participant("a", "A"), participant("b", "B")})
	s.SetRoster([]models.Participant{participant("c", "C"), participant("b", "B"), participant("a", "A"), participant("a", "dup")})

	got := s.Order()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	ordered := s.Ordered()
	if ordered[0].ParticipantID != "a" || ordered[0].Name != "A" {
		t.Fatalf("expected first record for a to win, got %+v", ordered[0])
	}
	if len(s.Roster()) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(s.Roster()))
	}
}

func TestRemovePurgesEverything(t *testing.T) {
	s := New("s1", "me", nil, nil)
	s.SetRoster([]models.Participant{participant("a", "A"), participant("b", "B")})
	s.Color("a")
	s.SetPrevious("a", Snapshot{Name: "A"})
	s.FollowParticipant("a")

	s.Remove("a")

	if _, ok := s.Participant("a"); ok {
		t.Fatal("expected a to be gone from the roster")
	}
	if _, ok := s.Previous("a"); ok {
		t.Fatal("expected a to be gone from the previous snapshot")
	}
	if _, ok := s.colors["a"]; ok {
		t.Fatal("expected a's color to be purged")
	}
	if s.Following().Active() {
		t.Fatal("expected following to stop")
	}
	if order := s.Order(); len(order) != 1 || order[0] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRemoveShrinksFollowedGroup(t *testing.T) {
	s := New("s1", "me", nil, nil)
	s.FollowGroup([]string{"b", "a"})
	s.Remove("a")
	if g := s.Following().Group; len(g) != 1 || g[0] != "b" {
		t.Fatalf("expected group [b], got %v", g)
	}
	s.Remove("b")
	if s.Following().Active() {
		t.Fatal("expected empty group to stop following")
	}
}

func TestGroupID(t *testing.T) {
	if got := GroupID([]string{"bb", "aa"}); got != "group_aa_bb" {
		t.Fatalf("unexpected group id %q", got)
	}
	if got := GroupID([]string{"participant-one", "participant-two"}); got != "group_participant-one_part" {
		t.Fatalf("expected truncation, got %q", got)
	}
}

func TestUpsert(t *testing.T) {
	s := New("s1", "me", nil, nil)
	if _, existed := s.Upsert(participant("a", "A")); existed {
		t.Fatal("expected new participant")
	}
	old, existed := s.Upsert(participant("a", "A2"))
	if !existed || old.Name != "A" {
		t.Fatalf("expected old record A, got %+v %v", old, existed)
	}
	if p, _ := s.Participant("a"); p.Name != "A2" {
		t.Fatalf("expected replaced record, got %+v", p)
	}
}

func TestSaveRestoreClear(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(10000, 0)
	clock := func() time.Time { return now }
	db := database.NewMemoryStore(clock)

	s := New("s1", "me", db, clock)
	s.SetName("Alice")
	s.IsSharing = true
	s.LastKnown = &models.Position{Latitude: 35, Longitude: 139, Accuracy: 5, Timestamp: now}
	s.SetRoster([]models.Participant{participant("me", "Alice"), participant("b", "B")})
	s.Color("b")
	s.FollowGroup([]string{"me", "b"})
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := New("s1", "me", db, clock)
	ok, err := restored.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("expected restore, got %v %v", ok, err)
	}
	if !restored.IsSharing || restored.Name != "Alice" || restored.LastKnown == nil {
		t.Fatalf("unexpected restored state %+v", restored)
	}
	if restored.Color("b") != s.Color("b") {
		t.Fatal("expected restored color")
	}
	if restored.Following().GroupID() != "group_b_me" {
		t.Fatalf("unexpected follow %+v", restored.Following())
	}

	if err := restored.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	again := New("s1", "me", db, clock)
	if ok, err := again.Restore(ctx); err != nil || ok {
		t.Fatalf("expected nothing to restore after clear, got %v %v", ok, err)
	}
}

func TestRestoreIgnoresStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(10000, 0)
	db := database.NewMemoryStore(func() time.Time { return now })

	stale := database.SessionSnapshot{IsSharing: true, SavedAt: now.Add(-8 * 24 * time.Hour)}
	if err := database.SaveSnapshot(ctx, db, "s1", stale); err != nil {
		t.Fatalf("save: %v", err)
	}

	s := New("s1", "me", db, func() time.Time { return now })
	if ok, err := s.Restore(ctx); err != nil || ok {
		t.Fatalf("expected stale snapshot to be ignored, got %v %v", ok, err)
	}
	if s.IsSharing {
		t.Fatal("stale snapshot must not resume sharing")
	}
}

func TestSaveSkippedWhenTerminal(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemoryStore(nil)
	s := New("s1", "me", db, nil)
	s.Leaving = true
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := database.LoadSnapshot(ctx, db, "s1"); err == nil {
		t.Fatal("expected no snapshot while leaving")
	}
}
