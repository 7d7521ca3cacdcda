package calendar

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/alarm"
	"lunarcal/internal/model"
	"lunarcal/internal/notify"
	"lunarcal/internal/store"
)

type fakeScheduler struct {
	mu     sync.Mutex
	alarms map[int64]model.ScheduledAlarm
	err    error
}

func (f *fakeScheduler) ScheduleExactAt(id int64, fireAt time.Time, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alarms[id] = model.ScheduledAlarm{EventID: id, FireAt: fireAt, Payload: payload}
	return nil
}

func (f *fakeScheduler) Cancel(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alarms, id)
	return nil
}

func (f *fakeScheduler) Pending(id int64) (model.ScheduledAlarm, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alarms[id]
	return a, ok
}

var now = time.Date(2024, time.February, 10, 8, 0, 0, 0, time.Local)

type fixture struct {
	svc   *Service
	st    store.Store
	sched *fakeScheduler
	sync  *alarm.Sync
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sched := &fakeScheduler{alarms: map[int64]model.ScheduledAlarm{}}
	clock := func() time.Time { return now }
	sy := alarm.NewSync(sched, alarm.WithClock(clock))
	svc := NewService(st, sy)
	svc.SetClock(clock)
	return fixture{svc: svc, st: st, sched: sched, sync: sy}
}

func meeting(start time.Time) model.Event {
	return model.Event{
		Title:     "  团圆饭  ",
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
	}
}

func TestCreate_PersistsAndSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := now.Add(10 * time.Hour)

	ev, err := f.svc.Create(ctx, meeting(start))
	require.NoError(t, err)
	require.True(t, ev.Persisted())
	assert.Equal(t, "团圆饭", ev.Title)
	assert.True(t, ev.RemindTime.Equal(start), "remind time defaults to start")

	stored, err := f.svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "团圆饭", stored.Title)

	a, ok := f.sync.Pending(ev.ID)
	require.True(t, ok)
	assert.True(t, a.FireAt.Equal(start))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]model.Event{
		"blank title":      {Title: "   ", StartTime: now, EndTime: now},
		"end before start": {Title: "x", StartTime: now, EndTime: now.Add(-time.Minute)},
		"missing times":    {Title: "x"},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, ev)
			require.ErrorIs(t, err, model.ErrValidation)
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.NotEmpty(t, verr.Fields)
		})
	}

	events, err := f.svc.Day(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, events, "invalid events are never stored")
}

func TestCreate_PastReminderStoredButNotArmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Create(ctx, meeting(now.Add(-2*time.Hour)))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	_, ok := f.sync.Pending(ev.ID)
	assert.False(t, ok)
}

func TestCreate_AlarmFailureStillReturnsEvent(t *testing.T) {
	f := newFixture(t)
	f.sched.err = errors.New("no exact alarm permission")
	ctx := context.Background()

	ev, err := f.svc.Create(ctx, meeting(now.Add(time.Hour)))
	require.ErrorIs(t, err, ErrAlarmSync)
	require.True(t, ev.Persisted())

	_, err = f.svc.Get(ctx, ev.ID)
	assert.NoError(t, err)
}

func TestUpdate_MovesAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Create(ctx, meeting(now.Add(time.Hour)))
	require.NoError(t, err)

	later := now.Add(26 * time.Hour)
	ev.StartTime = later
	ev.EndTime = later.Add(time.Hour)
	ev.RemindTime = later.Add(-15 * time.Minute)
	ev.Title = "改期"

	got, err := f.svc.Update(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "改期", got.Title)

	a, ok := f.sync.Pending(ev.ID)
	require.True(t, ok)
	assert.True(t, a.FireAt.Equal(later.Add(-15*time.Minute)))
	assert.Equal(t, "改期", a.Payload)

	today, err := f.svc.Day(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, today)
	tomorrow, err := f.svc.Day(ctx, later)
	require.NoError(t, err)
	require.Len(t, tomorrow, 1)
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, meeting(now))
	assert.ErrorIs(t, err, store.ErrMissingID)

	ghost := meeting(now)
	ghost.ID = 404
	_, err = f.svc.Update(ctx, ghost)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, ok := f.sync.Pending(404)
	assert.False(t, ok)
}

func TestDelete_CancelsAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Create(ctx, meeting(now.Add(time.Hour)))
	require.NoError(t, err)

	removed, err := f.svc.Delete(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok := f.sync.Pending(ev.ID)
	assert.False(t, ok)

	removed, err = f.svc.Delete(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.svc.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDay_BoundsAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := model.StartOfDay(now)

	for _, start := range []time.Time{
		day.Add(20 * time.Hour),
		day,
		day.Add(-time.Minute),
		model.NextDay(day),
		day.Add(9 * time.Hour),
	} {
		_, err := f.svc.Create(ctx, meeting(start))
		require.NoError(t, err)
	}

	events, err := f.svc.Day(ctx, now)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].StartTime.Equal(day))
	assert.True(t, events[1].StartTime.Equal(day.Add(9*time.Hour)))
	assert.True(t, events[2].StartTime.Equal(day.Add(20*time.Hour)))
}

func TestRestore_ArmsOnlyRecentReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, meeting(now.Add(-3*time.Hour)))
	require.NoError(t, err)
	recent, err := f.svc.Create(ctx, meeting(now.Add(-30*time.Minute)))
	require.NoError(t, err)
	future, err := f.svc.Create(ctx, meeting(now.Add(48*time.Hour)))
	require.NoError(t, err)

	// Simulate a restart: the scheduler forgot everything.
	f.sched.alarms = map[int64]model.ScheduledAlarm{}

	n, err := f.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := f.sync.Pending(stale.ID)
	assert.False(t, ok)
	_, ok = f.sync.Pending(recent.ID)
	assert.True(t, ok)
	_, ok = f.sync.Pending(future.ID)
	assert.True(t, ok)
}

func TestConcurrentCreateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev, err := f.svc.Create(ctx, meeting(now.Add(time.Duration(i+1)*time.Hour)))
			if !assert.NoError(t, err) {
				return
			}
			if i%2 == 0 {
				_, err = f.svc.Delete(ctx, ev.ID)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	f.sched.mu.Lock()
	defer f.sched.mu.Unlock()
	assert.Len(t, f.sched.alarms, 5)
	for id := range f.sched.alarms {
		_, err := f.st.Get(ctx, id)
		assert.NoError(t, err, "every armed alarm belongs to a stored event")
	}
}

// twoWriters opens a "server" and a "cli" service over one SQLite file, each
// with its own scheduler, the way `serve` and a CLI subcommand share a store.
func twoWriters(t *testing.T) (server, cli fixture) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shared.db")
	open := func() fixture {
		st, err := store.OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })

		sched := &fakeScheduler{alarms: map[int64]model.ScheduledAlarm{}}
		clock := func() time.Time { return now }
		sy := alarm.NewSync(sched, alarm.WithClock(clock))
		svc := NewService(st, sy)
		svc.SetClock(clock)
		return fixture{svc: svc, st: st, sched: sched, sync: sy}
	}
	return open(), open()
}

func TestReconcile_FollowsOtherWriter(t *testing.T) {
	server, cli := twoWriters(t)
	ctx := context.Background()

	added, err := cli.svc.Create(ctx, meeting(now.Add(time.Hour)))
	require.NoError(t, err)
	_, ok := server.sync.Pending(added.ID)
	require.False(t, ok)

	armedN, cancelled, err := server.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armedN)
	assert.Zero(t, cancelled)
	a, ok := server.sync.Pending(added.ID)
	require.True(t, ok)
	assert.True(t, a.FireAt.Equal(added.RemindTime))

	moved := added
	moved.RemindTime = now.Add(3 * time.Hour)
	moved.Title = "改期"
	_, err = cli.svc.Update(ctx, moved)
	require.NoError(t, err)

	armedN, _, err = server.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armedN)
	a, ok = server.sync.Pending(added.ID)
	require.True(t, ok)
	assert.True(t, a.FireAt.Equal(moved.RemindTime))
	assert.Equal(t, "改期", a.Payload)

	removed, err := cli.svc.Delete(ctx, added.ID)
	require.NoError(t, err)
	require.True(t, removed)

	armedN, cancelled, err = server.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, armedN)
	assert.Equal(t, 1, cancelled)
	_, ok = server.sync.Pending(added.ID)
	assert.False(t, ok, "no alarm may outlive its event")

	armedN, cancelled, err = server.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, armedN+cancelled)
}

func TestReconcile_DoesNotRearmFiredAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Create(ctx, meeting(now.Add(-10*time.Minute)))
	require.NoError(t, err)
	_, ok := f.sync.Pending(ev.ID)
	require.True(t, ok)

	// The scheduler forgets an alarm once it fires.
	require.NoError(t, f.sched.Cancel(ev.ID))

	armedN, cancelled, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, armedN+cancelled)
	_, ok = f.sync.Pending(ev.ID)
	assert.False(t, ok)
}

func TestAlarmCurrent(t *testing.T) {
	server, cli := twoWriters(t)
	ctx := context.Background()

	ev, err := server.svc.Create(ctx, meeting(now.Add(time.Hour)))
	require.NoError(t, err)
	a, ok := server.sync.Pending(ev.ID)
	require.True(t, ok)

	current, err := server.svc.AlarmCurrent(ctx, a)
	require.NoError(t, err)
	assert.True(t, current)

	renamed := ev
	renamed.Title = "改名"
	_, err = cli.svc.Update(ctx, renamed)
	require.NoError(t, err)
	current, err = server.svc.AlarmCurrent(ctx, a)
	require.NoError(t, err)
	assert.False(t, current)

	_, err = cli.svc.Delete(ctx, ev.ID)
	require.NoError(t, err)
	current, err = server.svc.AlarmCurrent(ctx, a)
	require.NoError(t, err)
	assert.False(t, current)
}

func TestDeletedElsewhereNeverFires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	serverStore, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverStore.Close() })
	inbox := notify.NewInbox(10)
	sched := alarm.NewCronScheduler(inbox)
	server := NewService(serverStore, alarm.NewSync(sched))
	sched.SetVerifier(server.AlarmCurrent)
	sched.Start()
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	cliStore, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cliStore.Close() })
	cli := NewService(cliStore, alarm.NewSync(&fakeScheduler{alarms: map[int64]model.ScheduledAlarm{}}))

	at := time.Now().Add(1500 * time.Millisecond)
	doomed, err := server.Create(ctx, model.Event{Title: "deleted by cli", StartTime: at, EndTime: at})
	require.NoError(t, err)
	kept, err := server.Create(ctx, model.Event{Title: "kept", StartTime: at, EndTime: at})
	require.NoError(t, err)

	removed, err := cli.Delete(ctx, doomed.ID)
	require.NoError(t, err)
	require.True(t, removed)

	require.Eventually(t, func() bool { return len(inbox.List()) > 0 }, 5*time.Second, 20*time.Millisecond)
	// Both alarms were due together; leave room for the dropped one.
	time.Sleep(200 * time.Millisecond)

	got := inbox.List()
	require.Len(t, got, 1)
	assert.Equal(t, kept.ID, got[0].EventID)
	assert.Zero(t, sched.Len())
}
