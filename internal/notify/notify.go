// Package notify delivers fired reminders to the user.
package notify

import (
	"context"
	"errors"
	"sync"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/metrics"
	"lunarcal/internal/model"
)

// Sink delivers a single notification.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n model.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n model.Notification) error { return f(ctx, n) }

// LogSink writes reminders to the application log.
type LogSink struct{}

// Deliver writes the reminder to the application log.
func (LogSink) Deliver(_ context.Context, n model.Notification) error {
	appLog.Info("日程提醒",
		"notification_id", n.ID,
		"event_id", n.EventID,
		"title", n.Title,
		"fire_at", n.FireAt,
	)
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

// Deliver hands n to every sink, even after a failure, and joins the errors.
func (f Fanout) Deliver(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	metrics.Notifications.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

// DefaultInboxSize is used when NewInbox is given a non-positive size.
const DefaultInboxSize = 100

// Inbox keeps the most recent notifications in memory for the API.
type Inbox struct {
	mu    sync.Mutex
	items []model.Notification
	next  int
	full  bool
}

// NewInbox returns an Inbox holding up to size notifications.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{items: make([]model.Notification, size)}
}

// Deliver records n, evicting the oldest entry when full.
func (b *Inbox) Deliver(_ context.Context, n model.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.next] = n
	b.next = (b.next + 1) % len(b.items)
	if b.next == 0 {
		b.full = true
	}
	return nil
}

// List returns notifications newest first.
func (b *Inbox) List() []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.items)
	}
	out := make([]model.Notification, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.next - i + len(b.items)) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}
