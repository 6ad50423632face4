package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"anilink/internal/config"
)

const userAgent = "Anilink/0.1.0"

// Event identifies a pipeline milestone worth notifying about.
type Event string

const (
	// EventItemCompleted fires when an episode is linked into the library.
	EventItemCompleted Event = "item-completed"
	// EventItemReview fires when an item is parked for manual review.
	EventItemReview Event = "item-review"
	// EventItemFailed fires when an item fails with a retryable error.
	EventItemFailed Event = "item-failed"
	// EventScanCompleted fires when a scan cycle queued new files.
	EventScanCompleted Event = "scan-completed"
)

// Payload carries the event's message fields.
type Payload map[string]string

// Service is the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		settings:    cfg.Notifications,
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		recent:      make(map[string]time.Time),
		now:         time.Now,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	settings    config.Notifications
	dedupWindow time.Duration

	mu     sync.Mutex
	recent map[string]time.Time
	now    func() time.Time
}

// Publish renders and sends the event. Events whose category is disabled in
// the config are dropped silently, as are repeats of an identical message
// inside the dedup window.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if !n.enabled(event) {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	if n.duplicate(event, msg.body) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventItemCompleted, EventScanCompleted:
		return n.settings.Completed
	case EventItemReview:
		return n.settings.Review
	case EventItemFailed:
		return n.settings.Errors
	default:
		return false
	}
}

// duplicate records the send time per (event, body) and reports whether an
// identical notification went out inside the dedup window. Stale entries are
// dropped on the way through so the map stays bounded by recent traffic.
func (n *ntfyService) duplicate(event Event, body string) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := string(event) + "\x00" + body
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	for k, sent := range n.recent {
		if now.Sub(sent) > n.dedupWindow {
			delete(n.recent, k)
		}
	}
	if sent, ok := n.recent[key]; ok && now.Sub(sent) <= n.dedupWindow {
		return true
	}
	n.recent[key] = now
	return false
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventItemCompleted:
		title := get("title")
		body := fmt.Sprintf("✅ Archived: %s", title)
		if file := get("file"); file != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, file)
		}
		return message{
			title: "Anilink - Archived",
			body:  body,
			tags:  []string{"anilink", "link", "completed"},
		}, true
	case EventItemReview:
		body := fmt.Sprintf("Needs review: %s", get("title"))
		if reason := get("reason"); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		return message{
			title: "Anilink - Review Needed",
			body:  body,
			tags:  []string{"anilink", "review", "needed"},
		}, true
	case EventItemFailed:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if title := get("title"); title != "" {
			builder.WriteString(" with ")
			builder.WriteString(title)
		}
		builder.WriteString(": ")
		if errText := get("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Anilink - Error",
			body:     builder.String(),
			tags:     []string{"anilink", "error", "alert"},
			priority: "high",
		}, true
	case EventScanCompleted:
		queued := get("queued")
		if queued == "" || queued == "0" {
			return message{}, false
		}
		return message{
			title: "Anilink - Scan Complete",
			body:  fmt.Sprintf("Queued %s new file(s) for processing", queued),
			tags:  []string{"anilink", "scan", "completed"},
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
