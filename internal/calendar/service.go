// Package calendar ties event persistence to alarm scheduling. Every
// mutation writes the store first and then reconciles the event's alarm.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/metrics"
	"lunarcal/internal/model"
	"lunarcal/internal/store"
)

// ErrAlarmSync means the event was persisted but its alarm could not be
// reconciled. The returned event is still valid.
var ErrAlarmSync = errors.New("calendar: alarm sync failed")

// Alarms is the alarm policy the service drives. *alarm.Sync implements it.
type Alarms interface {
	Schedule(ev model.Event) (bool, error)
	Reschedule(ev model.Event) (bool, error)
	Cancel(id int64) error
	GraceWindow() time.Duration
}

// armed is what an alarm was last reconciled against: the row's remind
// time in store resolution and its title.
type armed struct {
	remindMs int64
	title    string
}

func armedFor(ev model.Event) armed {
	return armed{remindMs: ev.RemindTime.UnixMilli(), title: ev.Title}
}

// Service is the single entry point for event mutations. Other processes
// may write the same store; Reconcile brings this process's alarms back in
// line with their changes.
type Service struct {
	store  store.Store
	alarms Alarms
	now    func() time.Time

	mu sync.Mutex
	// seen holds, per event id, the row state this process last reconciled
	// an alarm for. Guarded by mu.
	seen map[int64]armed
}

// NewService returns a Service writing to st and scheduling through alarms.
func NewService(st store.Store, alarms Alarms) *Service {
	return &Service{store: st, alarms: alarms, now: time.Now, seen: make(map[int64]armed)}
}

// SetClock overrides time.Now. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create validates and persists ev, then schedules its reminder.
func (s *Service) Create(ctx context.Context, ev model.Event) (out model.Event, err error) {
	defer func() { metrics.EventMutations.WithLabelValues("create", metrics.Result(err)).Inc() }()

	ev.ID = 0
	ev.Normalize()
	if err := model.ValidateEvent(ev); err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.Add(ctx, ev)
	if err != nil {
		return model.Event{}, err
	}
	ev.ID = id
	appLog.Info("event created", "event_id", id, "start", ev.StartTime.Format(time.RFC3339))

	if _, err := s.alarms.Schedule(ev); err != nil {
		return ev, fmt.Errorf("%w: %w", ErrAlarmSync, err)
	}
	s.seen[id] = armedFor(ev)
	return ev, nil
}

// Update replaces a persisted event and moves its reminder.
func (s *Service) Update(ctx context.Context, ev model.Event) (out model.Event, err error) {
	defer func() { metrics.EventMutations.WithLabelValues("update", metrics.Result(err)).Inc() }()

	if !ev.Persisted() {
		return model.Event{}, store.ErrMissingID
	}
	ev.Normalize()
	if err := model.ValidateEvent(ev); err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Update(ctx, ev); err != nil {
		return model.Event{}, err
	}
	appLog.Info("event updated", "event_id", ev.ID)

	if _, err := s.alarms.Reschedule(ev); err != nil {
		delete(s.seen, ev.ID)
		return ev, fmt.Errorf("%w: %w", ErrAlarmSync, err)
	}
	s.seen[ev.ID] = armedFor(ev)
	return ev, nil
}

// Delete removes the event and cancels its reminder. It reports false when
// no row had that id; no alarm is touched in that case.
func (s *Service) Delete(ctx context.Context, id int64) (removed bool, err error) {
	defer func() { metrics.EventMutations.WithLabelValues("delete", metrics.Result(err)).Inc() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err = s.store.Delete(ctx, id)
	if err != nil || !removed {
		return removed, err
	}
	appLog.Info("event deleted", "event_id", id)
	delete(s.seen, id)

	if err := s.alarms.Cancel(id); err != nil {
		return true, fmt.Errorf("%w: %w", ErrAlarmSync, err)
	}
	return true, nil
}

// Get returns the stored event with id.
func (s *Service) Get(ctx context.Context, id int64) (model.Event, error) {
	return s.store.Get(ctx, id)
}

// Day returns the events starting on date's calendar day.
func (s *Service) Day(ctx context.Context, date time.Time) ([]model.Event, error) {
	return s.store.GetByDayRange(ctx, model.StartOfDay(date), model.NextDay(date))
}

// Range returns events starting in [from, to).
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return s.store.GetByDayRange(ctx, from, to)
}

// Restore re-arms reminders after a restart. Events whose remind time fell
// outside the grace window while the process was down are not armed. It
// returns how many alarms were scheduled. Unlike Reconcile it assumes the
// scheduler starts empty and re-arms every row in the window.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.seen)
	armedN, _, err := s.reconcile(ctx)
	return armedN, err
}

// Reconcile re-reads every event still inside the grace window and fixes
// alarms that drifted from the store: rows added or changed by another
// writer are (re)armed, alarms whose row is gone or aged out are cancelled.
// Rows this process already reconciled are left alone, so a reminder that
// fired is not armed again.
func (s *Service) Reconcile(ctx context.Context) (armedN, cancelled int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcile(ctx)
}

func (s *Service) reconcile(ctx context.Context) (armedN, cancelled int, err error) {
	events, err := s.store.ListRemindingAfter(ctx, s.now().Add(-s.alarms.GraceWindow()))
	if err != nil {
		return 0, 0, err
	}

	var errs []error
	live := make(map[int64]struct{}, len(events))
	for _, ev := range events {
		live[ev.ID] = struct{}{}
		want := armedFor(ev)
		if got, ok := s.seen[ev.ID]; ok && got == want {
			continue
		}
		ok, err := s.alarms.Reschedule(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.seen[ev.ID] = want
		if ok {
			armedN++
		}
	}
	for id := range s.seen {
		if _, ok := live[id]; ok {
			continue
		}
		if err := s.alarms.Cancel(id); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(s.seen, id)
		cancelled++
	}

	if armedN > 0 || cancelled > 0 || len(errs) > 0 {
		appLog.Info("alarms reconciled", "armed", armedN, "cancelled", cancelled, "candidates", len(events), "errors", len(errs))
	}
	if len(errs) > 0 {
		return armedN, cancelled, fmt.Errorf("%w: %w", ErrAlarmSync, errors.Join(errs...))
	}
	return armedN, cancelled, nil
}

// AlarmCurrent reports whether a due alarm still matches its stored event.
// It is the verifier handed to the alarm scheduler.
func (s *Service) AlarmCurrent(ctx context.Context, a model.ScheduledAlarm) (bool, error) {
	ev, err := s.store.Get(ctx, a.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ev.RemindTime.UnixMilli() == a.FireAt.UnixMilli() && ev.Title == a.Payload, nil
}
