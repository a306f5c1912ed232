package ui

import (
	"testing"
	"time"

	"github.com/clementus360/proxy-share/models"
)

func TestEntriesStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) models.Timestamp { return models.At(now.Add(-d)) }

	tests := []struct {
		name      string
		p         models.Participant
		meID      string
		wantClass string
		wantText  string
	}{
		{
			name:      "sharing online",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusSharing, IsOnline: true, Latitude: models.Float(35), Longitude: models.Float(139), LastUpdated: ago(10 * time.Second)},
			wantClass: StatusOnline,
			wantText:  "Online",
		},
		{
			name:      "background flag",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusSharing, IsOnline: true, IsBackground: true, Latitude: models.Float(35), Longitude: models.Float(139)},
			wantClass: StatusBackground,
			wantText:  "Background",
		},
		{
			name:      "stale update",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusSharing, IsOnline: true, Latitude: models.Float(35), Longitude: models.Float(139), LastUpdated: ago(121 * time.Second)},
			wantClass: StatusBackground,
			wantText:  "Background",
		},
		{
			name:      "waiting",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusWaiting, IsOnline: true, LastSeenAt: ago(time.Minute)},
			wantClass: StatusWaiting,
			wantText:  "Joined (not sharing)",
		},
		{
			name:      "waiting stale",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusWaiting, IsOnline: true, LastSeenAt: ago(7 * time.Minute)},
			wantClass: StatusWaiting,
			wantText:  "Joined (last seen 7 min ago)",
		},
		{
			name:      "me waiting",
			p:         models.Participant{ParticipantID: "me", Status: models.StatusWaiting, IsOnline: true},
			meID:      "me",
			wantClass: StatusWaiting,
			wantText:  "Waiting to share",
		},
		{
			name:      "offline hours",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusSharing, LastSeenAt: ago(3 * time.Hour)},
			wantClass: StatusOffline,
			wantText:  "Offline (3 h ago)",
		},
		{
			name:      "stopped just now",
			p:         models.Participant{ParticipantID: "a", Status: models.StatusStopped, IsOnline: true, LastUpdated: ago(20 * time.Second)},
			wantClass: StatusOffline,
			wantText:  "Offline (just now)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Entries([]models.Participant{tt.p}, EntryOptions{MeID: tt.meID, Now: now})
			if got[0].StatusClass != tt.wantClass || got[0].StatusText != tt.wantText {
				t.Fatalf("got %s %q, want %s %q", got[0].StatusClass, got[0].StatusText, tt.wantClass, tt.wantText)
			}
		})
	}
}

func TestAccuracyText(t *testing.T) {
	tests := []struct {
		acc  *float64
		want string
	}{
		{nil, "Accuracy: unknown"},
		{models.Float(0), "Accuracy: unknown"},
		{models.Float(12.4), "Accuracy: 12m (high)"},
		{models.Float(20), "Accuracy: 20m (high)"},
		{models.Float(50), "Accuracy: 50m (medium)"},
		{models.Float(180), "Accuracy: 180m (low)"},
		{models.Float(450), "Accuracy: 450m (very low)"},
	}
	for _, tt := range tests {
		if got := AccuracyText(tt.acc); got != tt.want {
			t.Errorf("AccuracyText = %q, want %q", got, tt.want)
		}
	}
}

func TestEntriesFollowingAndColor(t *testing.T) {
	roster := []models.Participant{
		{ParticipantID: "me", Status: models.StatusSharing, IsOnline: true, Latitude: models.Float(1), Longitude: models.Float(1)},
		{ParticipantID: "p2", Name: "Bob", Status: models.StatusSharing, IsOnline: true, Latitude: models.Float(1), Longitude: models.Float(1), Accuracy: models.Float(30)},
	}
	got := Entries(roster, EntryOptions{
		MeID:      "me",
		Following: func(string) bool { return true },
		Color:     func(id string) string { return "#" + id },
		Now:       time.Now(),
	})
	if got[0].Following || !got[1].Following {
		t.Fatalf("following = %v %v", got[0].Following, got[1].Following)
	}
	if got[1].Color != "#p2" || got[1].Accuracy != "Accuracy: 30m (medium)" || got[1].Name != "Bob" {
		t.Fatalf("entry = %+v", got[1])
	}
	if !got[0].IsMe || got[0].Name != "Participant me" {
		t.Fatalf("me = %+v", got[0])
	}
}

func TestBoardKeepsLatest(t *testing.T) {
	b := NewBoard()
	var sink Sink = Multi{b, LogSink{}}
	sink.Status("connected")
	for i := 0; i < MaxToasts+5; i++ {
		sink.Toast(Toast{Text: "t", Level: LevelInfo})
	}
	sink.ChatBadge(3)
	sink.Countdown("00:10:00")
	sink.Terminal("expired")
	sink.Hint(Hint{Text: "Location access is blocked", Action: "start_sharing"})

	v := b.View()
	if v.Hint == nil || v.Hint.Action != "start_sharing" {
		t.Fatalf("hint = %+v", v.Hint)
	}
	sink.Hint(Hint{})
	if b.View().Hint != nil {
		t.Fatal("zero hint must clear the board")
	}
	if v.Status != "connected" || len(v.Toasts) != MaxToasts || v.ChatBadge != 3 || v.Countdown != "00:10:00" || v.Terminal != "expired" {
		t.Fatalf("view = %+v", v)
	}
}

func TestAgo(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5 min ago"},
		{90 * time.Minute, "1 h ago"},
		{50 * time.Hour, "2 d ago"},
	}
	for _, tt := range tests {
		if got := Ago(tt.d); got != tt.want {
			t.Errorf("Ago(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
