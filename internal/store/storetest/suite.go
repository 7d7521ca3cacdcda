// Package storetest holds the behavioural contract every store.Store
// backend must satisfy.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/model"
	"lunarcal/internal/store"
)

// Factory returns an empty store; it is called once per subtest.
type Factory func(t *testing.T) store.Store

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func event(title string, start time.Time) model.Event {
	return model.Event{
		Title:       title,
		Description: "desc " + title,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		RemindTime:  start,
	}
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGet(t, newStore(t)) })
	t.Run("DayRange", func(t *testing.T) { testDayRange(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListRemindingAfter", func(t *testing.T) { testListRemindingAfter(t, newStore(t)) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(t, newStore(t)) })
}

func testAddAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := event("standup", at(2024, time.March, 1, 9, 0))
	ev.RemindTime = ev.StartTime.Add(-15 * time.Minute)

	id, err := s.Add(ctx, ev)
	require.NoError(t, err)
	require.Positive(t, id)

	id2, err := s.Add(ctx, event("second", at(2024, time.March, 1, 10, 0)))
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "standup", got.Title)
	assert.Equal(t, "desc standup", got.Description)
	assert.True(t, ev.StartTime.Equal(got.StartTime))
	assert.True(t, ev.EndTime.Equal(got.EndTime))
	assert.True(t, ev.RemindTime.Equal(got.RemindTime))

	_, err = s.Get(ctx, id+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDayRange(t *testing.T, s store.Store) {
	ctx := context.Background()
	day := at(2024, time.March, 1, 0, 0)

	// Inserted out of order on purpose.
	_, err := s.Add(ctx, event("late", at(2024, time.March, 1, 18, 0)))
	require.NoError(t, err)
	_, err = s.Add(ctx, event("early", at(2024, time.March, 1, 9, 0)))
	require.NoError(t, err)
	_, err = s.Add(ctx, event("midnight", day))
	require.NoError(t, err)
	_, err = s.Add(ctx, event("next day", model.NextDay(day)))
	require.NoError(t, err)
	_, err = s.Add(ctx, event("previous day", day.Add(-time.Millisecond)))
	require.NoError(t, err)

	// Starts the day before and ends inside it; found only via start time.
	spanning := event("spanning", day.Add(-2*time.Hour))
	spanning.EndTime = day.Add(5 * time.Hour)
	_, err = s.Add(ctx, spanning)
	require.NoError(t, err)

	got, err := s.GetByDayRange(ctx, model.StartOfDay(day), model.NextDay(day))
	require.NoError(t, err)

	titles := make([]string, 0, len(got))
	for _, ev := range got {
		titles = append(titles, ev.Title)
	}
	assert.Equal(t, []string{"midnight", "early", "late"}, titles)

	empty, err := s.GetByDayRange(ctx, at(2030, time.January, 1, 0, 0), at(2030, time.January, 2, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := event("draft", at(2024, time.March, 1, 9, 0))
	id, err := s.Add(ctx, ev)
	require.NoError(t, err)

	ev.ID = id
	ev.Title = "final"
	ev.StartTime = at(2024, time.March, 2, 11, 0)
	ev.EndTime = at(2024, time.March, 2, 12, 0)
	ev.RemindTime = at(2024, time.March, 2, 10, 45)
	require.NoError(t, s.Update(ctx, ev))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.True(t, ev.RemindTime.Equal(got.RemindTime))

	moved, err := s.GetByDayRange(ctx, at(2024, time.March, 1, 0, 0), at(2024, time.March, 2, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, moved)

	ev.ID = id + 1000
	assert.ErrorIs(t, s.Update(ctx, ev), store.ErrNotFound)

	ev.ID = 0
	assert.ErrorIs(t, s.Update(ctx, ev), store.ErrMissingID)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := s.Add(ctx, event("gone", at(2024, time.March, 1, 9, 0)))
	require.NoError(t, err)

	removed, err := s.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListRemindingAfter(t *testing.T, s store.Store) {
	ctx := context.Background()
	cut := at(2024, time.March, 1, 12, 0)

	_, err := s.Add(ctx, event("past", cut.Add(-time.Minute)))
	require.NoError(t, err)
	_, err = s.Add(ctx, event("later", cut.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = s.Add(ctx, event("exact", cut))
	require.NoError(t, err)

	got, err := s.ListRemindingAfter(ctx, cut)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Title)
	assert.Equal(t, "later", got[1].Title)
}

func testConcurrentWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	start := at(2024, time.April, 1, 8, 0)

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Add(ctx, event("concurrent", start.Add(time.Duration(i)*time.Minute)))
			if err != nil {
				t.Errorf("add: %v", err)
				return
			}
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	got, err := s.GetByDayRange(ctx, model.StartOfDay(start), model.NextDay(start))
	require.NoError(t, err)
	assert.Len(t, got, n)
}
