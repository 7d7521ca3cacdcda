package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"lunarcal/internal/model"
)

func sampleEvent() model.Event {
	start := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.Local)
	return model.Event{
		Title:      "persisted",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		RemindTime: start,
	}
}

func truncate(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, `TRUNCATE events RESTART IDENTITY`)
	return err
}
