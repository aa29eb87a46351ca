package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	appLog "lunarcal/internal/log"
)

const (
	defaultTitle = "日程提醒"
	defaultBody  = "点击查看详情"
)

// Notification is what gets delivered when a reminder fires.
type Notification struct {
	EventID int64     `json:"event_id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	At      time.Time `json:"at"`
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use; reminders may fire at the same time.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes each notification as a log line.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	appLog.Info("reminder", "event_id", n.EventID, "title", n.Title, "body", n.Body, "at", n.At.Format(time.RFC3339))
	return nil
}

// WebhookNotifier POSTs each notification as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier returns a notifier for url. A zero timeout means 10s.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %s", resp.Status)
	}
	return nil
}

// WebhookSlot delivers to a webhook that can be replaced at runtime, e.g.
// on config reload. An empty slot drops notifications silently.
type WebhookSlot struct {
	hook atomic.Pointer[WebhookNotifier]
}

// Set installs a webhook for url, or empties the slot when url is blank.
func (s *WebhookSlot) Set(url string, timeout time.Duration) {
	url = strings.TrimSpace(url)
	if url == "" {
		s.hook.Store(nil)
		return
	}
	s.hook.Store(NewWebhookNotifier(url, timeout))
}

// URL returns the current webhook URL, empty if none.
func (s *WebhookSlot) URL() string {
	if w := s.hook.Load(); w != nil {
		return w.url
	}
	return ""
}

func (s *WebhookSlot) Notify(ctx context.Context, n Notification) error {
	w := s.hook.Load()
	if w == nil {
		return nil
	}
	return w.Notify(ctx, n)
}

// Notifiers fans a notification out to every notifier and joins the errors.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range ns {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// notificationFor fills the defaults used when title or description is blank.
func notificationFor(id int64, title, desc string, at time.Time) Notification {
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	if strings.TrimSpace(desc) == "" {
		desc = defaultBody
	}
	return Notification{EventID: id, Title: title, Body: desc, At: at}
}
