package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS events (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT   NOT NULL,
	description TEXT   NOT NULL DEFAULT '',
	start_time  BIGINT NOT NULL,
	end_time    BIGINT NOT NULL,
	remind_time BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_start_time_idx ON events(start_time);
CREATE INDEX IF NOT EXISTS events_remind_time_idx ON events(remind_time);`

// Postgres is a Store backed by a pgx connection pool. Every mutation is a
// single statement, so row writes never interleave.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres dsn is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, persistenceErr("pgxpool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistenceErr("ping postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, persistenceErr("apply schema", err)
	}

	appLog.Info("postgres store ready", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return &Postgres{pool: pool}, nil
}

// Add inserts ev and returns the id assigned by the sequence.
func (p *Postgres) Add(ctx context.Context, ev model.Event) (int64, error) {
	r := toRow(ev)
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO events (title, description, start_time, end_time, remind_time)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		r.Title, r.Description, r.StartTime, r.EndTime, r.RemindTime).Scan(&id)
	if err != nil {
		return 0, persistenceErr("insert event", err)
	}
	return id, nil
}

// Get returns the event with id or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, id int64) (model.Event, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, description, start_time, end_time, remind_time FROM events WHERE id = $1`, id)
	if err != nil {
		return model.Event{}, persistenceErr("get event", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[eventRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Event{}, persistenceErr("get event", err)
	}
	return row.event(), nil
}

// GetByDayRange returns events starting in [start, end).
func (p *Postgres) GetByDayRange(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	return p.list(ctx, "query day range",
		`SELECT id, title, description, start_time, end_time, remind_time FROM events
		 WHERE start_time >= $1 AND start_time < $2
		 ORDER BY start_time ASC, id ASC`,
		start.UnixMilli(), end.UnixMilli())
}

func (p *Postgres) ListRemindingAfter(ctx context.Context, t time.Time) ([]model.Event, error) {
	return p.list(ctx, "query reminders",
		`SELECT id, title, description, start_time, end_time, remind_time FROM events
		 WHERE remind_time >= $1
		 ORDER BY remind_time ASC, id ASC`,
		t.UnixMilli())
}

func (p *Postgres) list(ctx context.Context, op, query string, args ...any) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceErr(op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return nil, persistenceErr(op, err)
	}
	return toEvents(out), nil
}

// Update overwrites the row with ev.ID in one statement.
func (p *Postgres) Update(ctx context.Context, ev model.Event) error {
	if !ev.Persisted() {
		return ErrMissingID
	}
	r := toRow(ev)
	tag, err := p.pool.Exec(ctx,
		`UPDATE events SET title = $1, description = $2, start_time = $3, end_time = $4, remind_time = $5
		 WHERE id = $6`,
		r.Title, r.Description, r.StartTime, r.EndTime, r.RemindTime, r.ID)
	if err != nil {
		return persistenceErr("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, ev.ID)
	}
	return nil
}

// Delete removes the row with id and reports whether one existed.
func (p *Postgres) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, persistenceErr("delete event", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
