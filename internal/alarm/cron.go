package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/metrics"
	"lunarcal/internal/model"
	"lunarcal/internal/notify"
)

// oneShot is a cron.Schedule that yields a single activation. The cron
// runner skips entries whose next time is zero, so once fired the entry is
// inert until removed.
type oneShot struct {
	at    time.Time
	fired bool
	mu    sync.Mutex
}

func (o *oneShot) Next(now time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fired {
		return time.Time{}
	}
	o.fired = true
	if o.at.Before(now) {
		// Past due but inside the grace window: fire on the next tick.
		return now
	}
	return o.at
}

type pending struct {
	entry cron.EntryID
	gen   uint64
	alarm model.ScheduledAlarm
}

// Verifier reports whether a due alarm still matches its stored event.
// Another process sharing the store may have edited or deleted the row
// since the alarm was armed.
type Verifier func(ctx context.Context, a model.ScheduledAlarm) (bool, error)

// CronScheduler is a Scheduler backed by robfig/cron. Fired alarms are
// turned into notifications and handed to the sink.
type CronScheduler struct {
	c    *cron.Cron
	sink notify.Sink
	now  func() time.Time

	mu      sync.Mutex
	gen     uint64
	pending map[int64]pending
	verify  Verifier
}

// NewCronScheduler returns a stopped scheduler. Call Start to begin firing.
func NewCronScheduler(sink notify.Sink) *CronScheduler {
	if sink == nil {
		sink = notify.LogSink{}
	}
	return &CronScheduler{
		c:       cron.New(cron.WithLocation(time.Local)),
		sink:    sink,
		now:     time.Now,
		pending: make(map[int64]pending),
	}
}

// SetVerifier installs a check run before every delivery. A nil verifier
// delivers unconditionally.
func (s *CronScheduler) SetVerifier(v Verifier) {
	s.mu.Lock()
	s.verify = v
	s.mu.Unlock()
}

// AddFunc runs fn on a standard five-field cron spec alongside the alarms.
func (s *CronScheduler) AddFunc(spec string, fn func()) error {
	if _, err := s.c.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("alarm: cron spec %q: %w", spec, err)
	}
	return nil
}

// Start begins firing alarms in the background.
func (s *CronScheduler) Start() { s.c.Start() }

// Stop halts the scheduler and waits for running deliveries or ctx.
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleExactAt arms a one-shot alarm for id, replacing any earlier one.
func (s *CronScheduler) ScheduleExactAt(id int64, fireAt time.Time, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pending[id]; ok {
		s.c.Remove(old.entry)
	}
	a := model.ScheduledAlarm{EventID: id, FireAt: fireAt, Payload: payload}

	s.gen++
	gen := s.gen
	entry := s.c.Schedule(&oneShot{at: fireAt}, cron.FuncJob(func() {
		s.fire(gen, a)
	}))
	s.pending[id] = pending{entry: entry, gen: gen, alarm: a}
	return nil
}

// Cancel drops the alarm for id. Unknown ids are ignored.
func (s *CronScheduler) Cancel(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[id]; ok {
		s.c.Remove(p.entry)
		delete(s.pending, id)
	}
	return nil
}

// Pending returns the alarm armed for id, if any.
func (s *CronScheduler) Pending(id int64) (model.ScheduledAlarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	return p.alarm, ok
}

// Len returns the number of outstanding alarms.
func (s *CronScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *CronScheduler) fire(gen uint64, a model.ScheduledAlarm) {
	s.mu.Lock()
	p, ok := s.pending[a.EventID]
	if !ok || p.gen != gen {
		// Replaced or cancelled while this run was queued.
		s.mu.Unlock()
		return
	}
	delete(s.pending, a.EventID)
	s.c.Remove(p.entry)
	verify := s.verify
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if verify != nil {
		ok, err := verify(ctx, a)
		switch {
		case err != nil:
			// Unknown is not stale; deliver rather than lose the reminder.
			appLog.Error("alarm verification failed", err, "event_id", a.EventID)
		case !ok:
			metrics.AlarmsStale.Inc()
			appLog.Info("stale alarm dropped", "event_id", a.EventID, "fire_at", a.FireAt.Format(time.RFC3339))
			return
		}
	}

	n := model.Notification{
		ID:          uuid.NewString(),
		EventID:     a.EventID,
		Title:       a.Payload,
		FireAt:      a.FireAt,
		DeliveredAt: s.now(),
	}
	if err := s.sink.Deliver(ctx, n); err != nil {
		appLog.Error("notification delivery failed", err, "event_id", a.EventID, "notification_id", n.ID)
	}
}
