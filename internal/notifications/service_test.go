package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"anilink/internal/config"
	"anilink/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventItemCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "item completed",
			event: notifications.EventItemCompleted,
			payload: notifications.Payload{
				"title": "Sousou no Frieren S01E05",
				"file":  "Sousou no Frieren - S01E05.mkv",
			},
			expectTitle:   "Anilink - Archived",
			expectMessage: "✅ Archived: Sousou no Frieren S01E05\nFile: Sousou no Frieren - S01E05.mkv",
			expectTags:    "anilink,link,completed",
		},
		{
			name:  "item review",
			event: notifications.EventItemReview,
			payload: notifications.Payload{
				"title":  "mystery_episode.mkv",
				"reason": "No naming pattern recognized",
			},
			expectTitle:   "Anilink - Review Needed",
			expectMessage: "Needs review: mystery_episode.mkv\nNo naming pattern recognized",
			expectTags:    "anilink,review,needed",
		},
		{
			name:  "item failed",
			event: notifications.EventItemFailed,
			payload: notifications.Payload{
				"title": "Show Name S01E02",
				"error": "metadata lookup failed",
			},
			expectTitle:    "Anilink - Error",
			expectMessage:  "❌ Error with Show Name S01E02: metadata lookup failed",
			expectTags:     "anilink,error,alert",
			expectPriority: "high",
		},
		{
			name:  "scan completed",
			event: notifications.EventScanCompleted,
			payload: notifications.Payload{
				"queued": "3",
			},
			expectTitle:   "Anilink - Scan Complete",
			expectMessage: "Queued 3 new file(s) for processing",
			expectTags:    "anilink,scan,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.DedupWindowSeconds = 0

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completed = false
	cfg.Notifications.Review = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	events := []notifications.Event{
		notifications.EventItemCompleted,
		notifications.EventScanCompleted,
		notifications.EventItemReview,
		notifications.EventItemFailed,
	}
	for _, event := range events {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "x", "queued": "1"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceDeduplicatesWithinWindow(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DedupWindowSeconds = 300

	svc := notifications.NewService(&cfg)
	payload := notifications.Payload{"title": "Show S01E01", "file": "Show - S01E01.mkv"}
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventItemCompleted, payload); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 delivery inside dedup window, got %d", got)
	}

	// A different message is not a duplicate.
	other := notifications.Payload{"title": "Show S01E02", "file": "Show - S01E02.mkv"}
	if err := svc.Publish(context.Background(), notifications.EventItemCompleted, other); err != nil {
		t.Fatalf("publish distinct: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected distinct message delivered, got %d calls", got)
	}
}

func TestNtfyServiceSkipsEmptyScan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for empty scan: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventScanCompleted, notifications.Payload{"queued": "0"}); err != nil {
		t.Fatalf("expected nil for empty scan, got %v", err)
	}
}
