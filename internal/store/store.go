// Package store persists events. The canonical copy of every event lives
// here; callers re-fetch after a mutation instead of writing back snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lunarcal/internal/model"
)

var (
	// ErrPersistence wraps any storage-level failure.
	ErrPersistence = errors.New("store: persistence failure")
	// ErrNotFound is returned when no row matches an id.
	ErrNotFound = errors.New("store: event not found")
	// ErrMissingID is returned when an update targets an unpersisted event.
	ErrMissingID = errors.New("store: event has no id")
)

// Store is the event CRUD contract. Mutations on one Store are serialized;
// reads may run concurrently.
type Store interface {
	// Add persists a new event and returns its generated id.
	Add(ctx context.Context, ev model.Event) (int64, error)
	// Get returns a single event.
	Get(ctx context.Context, id int64) (model.Event, error)
	// GetByDayRange returns events whose start time is in [start, end),
	// ordered by ascending start time.
	GetByDayRange(ctx context.Context, start, end time.Time) ([]model.Event, error)
	// ListRemindingAfter returns events whose remind time is at or after t,
	// ordered by remind time.
	ListRemindingAfter(ctx context.Context, t time.Time) ([]model.Event, error)
	// Update replaces every field except the id.
	Update(ctx context.Context, ev model.Event) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// eventRow is the flat persisted shape: timestamps are unix milliseconds.
type eventRow struct {
	ID          int64  `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	StartTime   int64  `db:"start_time"`
	EndTime     int64  `db:"end_time"`
	RemindTime  int64  `db:"remind_time"`
}

func toRow(ev model.Event) eventRow {
	return eventRow{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		StartTime:   ev.StartTime.UnixMilli(),
		EndTime:     ev.EndTime.UnixMilli(),
		RemindTime:  ev.RemindTime.UnixMilli(),
	}
}

func (r eventRow) event() model.Event {
	return model.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		StartTime:   model.MillisToTime(r.StartTime),
		EndTime:     model.MillisToTime(r.EndTime),
		RemindTime:  model.MillisToTime(r.RemindTime),
	}
}

func toEvents(rows []eventRow) []model.Event {
	out := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Options selects and configures a backend.
type Options struct {
	// Driver is "sqlite" or "postgres".
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open connects the configured backend and ensures its schema.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		p, err := OpenPostgres(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", opts.Driver)
	}
}
