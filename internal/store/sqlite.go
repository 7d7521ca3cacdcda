package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT    NOT NULL,
		description TEXT    NOT NULL DEFAULT '',
		start_time  INTEGER NOT NULL,
		end_time    INTEGER NOT NULL,
		remind_time INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_start_time_idx ON events(start_time)`,
	`CREATE INDEX IF NOT EXISTS events_remind_time_idx ON events(remind_time)`,
}

const sqliteColumns = `id, title, description, start_time, end_time, remind_time`

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	db *sqlx.DB
	// wmu serializes writers; WAL lets readers proceed concurrently.
	wmu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, persistenceErr("create data dir", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, persistenceErr("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, persistenceErr("ping sqlite", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, persistenceErr("apply schema", err)
		}
	}

	appLog.Info("sqlite store ready", "path", path)
	return &SQLite{db: db}, nil
}

// Add inserts ev under the writer lock and returns the new row id.
func (s *SQLite) Add(ctx context.Context, ev model.Event) (int64, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	row := toRow(ev)
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO events (title, description, start_time, end_time, remind_time)
		 VALUES (:title, :description, :start_time, :end_time, :remind_time)`, row)
	if err != nil {
		return 0, persistenceErr("insert event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, persistenceErr("read inserted id", err)
	}
	appLog.Debug("event inserted", "id", id, "title", ev.Title)
	return id, nil
}

// Get returns the event with id or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, id int64) (model.Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `SELECT `+sqliteColumns+` FROM events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Event{}, persistenceErr("get event", err)
	}
	return row.event(), nil
}

// GetByDayRange returns events starting in [start, end), by start time then id.
func (s *SQLite) GetByDayRange(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sqliteColumns+` FROM events
		 WHERE start_time >= ? AND start_time < ?
		 ORDER BY start_time ASC, id ASC`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, persistenceErr("query day range", err)
	}
	return toEvents(rows), nil
}

// ListRemindingAfter returns events whose remind time is at or after t.
func (s *SQLite) ListRemindingAfter(ctx context.Context, t time.Time) ([]model.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sqliteColumns+` FROM events
		 WHERE remind_time >= ?
		 ORDER BY remind_time ASC, id ASC`,
		t.UnixMilli())
	if err != nil {
		return nil, persistenceErr("query reminders", err)
	}
	return toEvents(rows), nil
}

// Update overwrites every column of the row with ev.ID.
func (s *SQLite) Update(ctx context.Context, ev model.Event) error {
	if !ev.Persisted() {
		return ErrMissingID
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.NamedExecContext(ctx,
		`UPDATE events SET
		   title = :title, description = :description,
		   start_time = :start_time, end_time = :end_time, remind_time = :remind_time
		 WHERE id = :id`, toRow(ev))
	if err != nil {
		return persistenceErr("update event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("update event", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, ev.ID)
	}
	return nil
}

// Delete removes the row with id and reports whether one existed.
func (s *SQLite) Delete(ctx context.Context, id int64) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return false, persistenceErr("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistenceErr("delete event", err)
	}
	return n > 0, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
