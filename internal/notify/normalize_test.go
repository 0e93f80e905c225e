package notify

import (
	"testing"
	"time"

	"storefront-core/internal/model"
)

func TestNormalize_TitleBodyPrecedence(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name      string
		raw       RawMessage
		wantTitle string
		wantBody  string
	}{
		{
			name: "notification wins over data",
			raw: RawMessage{
				Notification: &MessagePayload{Title: "A", Body: "NB"},
				Data:         map[string]string{"title": "B", "message": "DB"},
			},
			wantTitle: "A",
			wantBody:  "NB",
		},
		{
			name:      "data alone",
			raw:       RawMessage{Data: map[string]string{"title": "B", "message": "DB"}},
			wantTitle: "B",
			wantBody:  "DB",
		},
		{
			name:      "fallbacks",
			raw:       RawMessage{},
			wantTitle: fallbackTitle,
			wantBody:  fallbackBody,
		},
		{
			name: "empty notification fields fall through to data",
			raw: RawMessage{
				Notification: &MessagePayload{},
				Data:         map[string]string{"title": "B", "message": "DB"},
			},
			wantTitle: "B",
			wantBody:  "DB",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := Normalize(tc.raw, model.SourceForeground, now)
			if record.Title != tc.wantTitle {
				t.Fatalf("title: got %q, want %q", record.Title, tc.wantTitle)
			}
			if record.Body != tc.wantBody {
				t.Fatalf("body: got %q, want %q", record.Body, tc.wantBody)
			}
		})
	}
}

func TestNormalize_ImageURLValidation(t *testing.T) {
	now := time.Now()

	record := Normalize(RawMessage{Data: map[string]string{"image": "https://cdn.example.com/a.png"}}, model.SourceTapped, now)
	if record.ImageURL != "https://cdn.example.com/a.png" {
		t.Fatalf("expected absolute image url honored, got %q", record.ImageURL)
	}

	for _, bad := range []string{"", "not a url", "/relative/path.png", "example.com/a.png"} {
		record := Normalize(RawMessage{Data: map[string]string{"image": bad}}, model.SourceTapped, now)
		if record.ImageURL != "" {
			t.Fatalf("expected %q rejected, got %q", bad, record.ImageURL)
		}
	}
}

func TestNormalize_SourceAndTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	record := Normalize(RawMessage{}, model.SourceColdStart, now)
	if record.Source != model.SourceColdStart {
		t.Fatalf("unexpected source: %v", record.Source)
	}
	if !record.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected receivedAt: %v", record.ReceivedAt)
	}
}
