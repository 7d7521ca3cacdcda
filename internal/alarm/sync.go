// Package alarm keeps scheduled reminders consistent with stored events:
// at most one alarm per event id, always firing at the event's last
// written remind time.
package alarm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/metrics"
	"lunarcal/internal/model"
)

// DefaultGraceWindow is how far in the past a remind time may be and still
// get scheduled. Older reminders are dropped, not retried.
const DefaultGraceWindow = time.Hour

// ErrMissingID is returned when scheduling an event that was never persisted.
var ErrMissingID = errors.New("alarm: event has no id")

// Scheduler is the exact-alarm facility. ScheduleExactAt replaces any alarm
// already registered for id; Cancel of an unknown id is not an error.
type Scheduler interface {
	ScheduleExactAt(id int64, fireAt time.Time, payload string) error
	Cancel(id int64) error
	Pending(id int64) (model.ScheduledAlarm, bool)
}

// Sync applies the one-event-one-alarm policy on top of a Scheduler.
type Sync struct {
	sched Scheduler
	grace time.Duration
	now   func() time.Time

	// mu makes Reschedule appear as one step to other Sync callers.
	mu sync.Mutex
}

// Option customizes a Sync.
type Option func(*Sync)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sync) { s.now = now }
}

// WithGraceWindow overrides DefaultGraceWindow.
func WithGraceWindow(d time.Duration) Option {
	return func(s *Sync) { s.grace = d }
}

// NewSync returns a Sync over sched with DefaultGraceWindow and time.Now.
func NewSync(sched Scheduler, opts ...Option) *Sync {
	s := &Sync{sched: sched, grace: DefaultGraceWindow, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GraceWindow returns the past-due tolerance in effect.
func (s *Sync) GraceWindow() time.Duration { return s.grace }

// Schedule registers the event's alarm. It returns false without error when
// the remind time is beyond the grace window in the past.
func (s *Sync) Schedule(ev model.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule(ev)
}

// Cancel removes the event's alarm if any.
func (s *Sync) Cancel(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel(id)
}

// Reschedule is Cancel followed by Schedule. Other Sync callers never see
// the intermediate state; true atomicity is up to the Scheduler.
func (s *Sync) Reschedule(ev model.Event) (bool, error) {
	if !ev.Persisted() {
		return false, ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cancel(ev.ID); err != nil {
		return false, err
	}
	return s.schedule(ev)
}

// Pending reports the alarm currently registered for id.
func (s *Sync) Pending(id int64) (model.ScheduledAlarm, bool) {
	return s.sched.Pending(id)
}

// PastDue reports whether remindAt is older than the grace window.
func (s *Sync) PastDue(remindAt time.Time) bool {
	return remindAt.Before(s.now().Add(-s.grace))
}

func (s *Sync) schedule(ev model.Event) (bool, error) {
	if !ev.Persisted() {
		return false, ErrMissingID
	}
	if s.PastDue(ev.RemindTime) {
		metrics.AlarmsSkipped.Inc()
		appLog.Debug("reminder past due, not scheduling",
			"event_id", ev.ID,
			"remind_time", ev.RemindTime.Format(time.RFC3339),
		)
		return false, nil
	}
	if err := s.sched.ScheduleExactAt(ev.ID, ev.RemindTime, ev.Title); err != nil {
		return false, fmt.Errorf("alarm: schedule event %d: %w", ev.ID, err)
	}
	metrics.AlarmsScheduled.Inc()
	appLog.Debug("alarm scheduled", "event_id", ev.ID, "fire_at", ev.RemindTime.Format(time.RFC3339))
	return true, nil
}

func (s *Sync) cancel(id int64) error {
	if err := s.sched.Cancel(id); err != nil {
		return fmt.Errorf("alarm: cancel event %d: %w", id, err)
	}
	metrics.AlarmsCancelled.Inc()
	return nil
}
