// Package selection holds the navigation state of one calendar view: the
// displayed month, the selected cell and that day's events.
package selection

import (
	"context"
	"fmt"
	"time"

	"lunarcal/internal/grid"
	"lunarcal/internal/model"
)

// DayQuerier returns the events starting on a calendar day.
// *calendar.Service implements it.
type DayQuerier interface {
	Day(ctx context.Context, date time.Time) ([]model.Event, error)
}

// Controller is not safe for concurrent use.
type Controller struct {
	builder *grid.Builder
	days    DayQuerier
	now     func() time.Time

	current  model.YearMonth
	cells    []model.GridCell
	selected int // -1 when nothing is selected
	events   []model.Event
}

// New returns a controller showing the month containing now().
func New(b *grid.Builder, days DayQuerier, now func() time.Time) (*Controller, error) {
	if b == nil {
		b = grid.NewBuilder(nil, now)
	}
	if now == nil {
		now = time.Now
	}
	c := &Controller{builder: b, days: days, now: now, selected: -1}
	if err := c.show(model.YearMonthOf(now())); err != nil {
		return nil, err
	}
	return c, nil
}

// SelectMonth moves the view by delta months and clears the selection. The
// state is left unchanged if the new month cannot be rendered.
func (c *Controller) SelectMonth(delta int) error {
	return c.show(c.current.Add(delta))
}

// Show jumps to ym and clears the selection.
func (c *Controller) Show(ym model.YearMonth) error {
	return c.show(ym)
}

func (c *Controller) show(ym model.YearMonth) error {
	cells, err := c.builder.Build(ym.Year, ym.Month)
	if err != nil {
		return err
	}
	c.current = ym
	c.cells = cells
	c.selected = -1
	c.events = nil
	return nil
}

// SelectCell selects the cell at pos and loads its day's events. Padding
// and out-of-range positions are ignored and report false.
func (c *Controller) SelectCell(ctx context.Context, pos int) (bool, error) {
	if pos < 0 || pos >= len(c.cells) || c.cells[pos].IsPadding() {
		return false, nil
	}
	date := c.current.Date(c.cells[pos].Day)
	events, err := c.days.Day(ctx, date)
	if err != nil {
		return false, fmt.Errorf("selection: load %s: %w", date.Format(time.DateOnly), err)
	}
	c.selected = pos
	c.events = events
	return true, nil
}

// Today shows the current month and selects today's cell.
func (c *Controller) Today(ctx context.Context) error {
	ym := model.YearMonthOf(c.now())
	if err := c.show(ym); err != nil {
		return err
	}
	pos, ok := c.builder.TodayPosition(ym.Year, ym.Month)
	if !ok {
		return nil
	}
	_, err := c.SelectCell(ctx, pos)
	return err
}

// Refresh reloads the selected day's events, typically after a mutation.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.selected < 0 {
		return nil
	}
	_, err := c.SelectCell(ctx, c.selected)
	return err
}

// Current returns the displayed month.
func (c *Controller) Current() model.YearMonth { return c.current }

// Cells returns a copy of the grid with IsSelected applied.
func (c *Controller) Cells() []model.GridCell {
	out := make([]model.GridCell, len(c.cells))
	copy(out, c.cells)
	if c.selected >= 0 {
		out[c.selected].IsSelected = true
	}
	return out
}

// Selected returns the selected position, if any.
func (c *Controller) Selected() (int, bool) {
	return c.selected, c.selected >= 0
}

// SelectedDate returns local midnight of the selected day.
func (c *Controller) SelectedDate() (time.Time, bool) {
	if c.selected < 0 {
		return time.Time{}, false
	}
	return c.current.Date(c.cells[c.selected].Day), true
}

// Events returns the selected day's events, empty when nothing is selected.
func (c *Controller) Events() []model.Event {
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}
