package main

import (
	"context"
	"errors"
	"os"
	"time"

	"lunarcal/internal/alarm"
	"lunarcal/internal/calendar"
	"lunarcal/internal/config"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/notify"
	"lunarcal/internal/store"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg   *config.Config
	store store.Store
	inbox *notify.Inbox
	sched *alarm.CronScheduler
	sync  *alarm.Sync
	svc   *calendar.Service
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	appLog.Configure(os.Stderr, cfg.LogFormat, level)

	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, err
	}

	inbox := notify.NewInbox(cfg.Notify.InboxSize)
	sinks := notify.Fanout{notify.LogSink{}, inbox}
	if cfg.Notify.WebhookURL != "" {
		wh, err := notify.NewWebhookSink(notify.WebhookOptions{URL: cfg.Notify.WebhookURL})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		sinks = append(sinks, wh)
	}

	sched := alarm.NewCronScheduler(sinks)
	sy := alarm.NewSync(sched)
	svc := calendar.NewService(st, sy)
	// Other processes may edit the store between arming and firing.
	sched.SetVerifier(svc.AlarmCurrent)

	return &app{
		cfg:   cfg,
		store: st,
		inbox: inbox,
		sched: sched,
		sync:  sy,
		svc:   svc,
	}, nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.sched.Stop(ctx), a.store.Close())
}
