// Package grid lays out a month as a Monday-first, 7-column sequence of
// cells annotated with lunar labels.
package grid

import (
	"errors"
	"fmt"
	"time"

	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

// Columns is the number of cells per rendered row.
const Columns = 7

// ErrInvalidMonth is returned for months outside 1..12. Month arithmetic
// belongs to the caller (see model.YearMonth.Add).
var ErrInvalidMonth = errors.New("grid: month must be in 1..12")

// DaysInMonth returns 28..31 using the proleptic Gregorian calendar.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// LeadingPadding returns the Monday-first weekday index [0,6] of day 1,
// which is the number of padding cells before it.
func LeadingPadding(year int, month time.Month) int {
	wd := int(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday())
	if wd == 0 {
		wd = 7
	}
	return wd - 1
}

// Builder turns a year-month into grid cells. It holds no mutable state and
// is safe for concurrent use.
type Builder struct {
	conv lunar.Converter
	now  func() time.Time
}

// NewBuilder returns a Builder. A nil converter selects lunar.Default and a
// nil clock selects time.Now.
func NewBuilder(conv lunar.Converter, now func() time.Time) *Builder {
	if conv == nil {
		conv = lunar.Default
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{conv: conv, now: now}
}

// Build returns padding cells followed by one real cell per day. The
// trailing partial row is not padded.
func (b *Builder) Build(year int, month time.Month) ([]model.GridCell, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}

	pad := LeadingPadding(year, month)
	days := DaysInMonth(year, month)
	today, hasToday := b.TodayPosition(year, month)

	cells := make([]model.GridCell, 0, pad+days)
	for i := 0; i < pad; i++ {
		cells = append(cells, model.GridCell{Position: i})
	}
	for d := 1; d <= days; d++ {
		ld, err := b.conv.ToLunar(year, int(month), d)
		if err != nil {
			return nil, fmt.Errorf("grid: %04d-%02d-%02d: %w", year, month, d, err)
		}
		label, err := lunar.Label(ld)
		if err != nil {
			return nil, fmt.Errorf("grid: %04d-%02d-%02d: %w", year, month, d, err)
		}
		pos := pad + d - 1
		cells = append(cells, model.GridCell{
			Position:   pos,
			Day:        d,
			IsToday:    hasToday && pos == today,
			LunarLabel: label,
		})
	}
	return cells, nil
}

// TodayPosition returns the cell index of today when today falls within the
// given month.
func (b *Builder) TodayPosition(year int, month time.Month) (int, bool) {
	now := b.now()
	if now.Year() != year || now.Month() != month {
		return 0, false
	}
	return LeadingPadding(year, month) + now.Day() - 1, true
}

// Rows splits cells into rows of Columns; the last row may be short.
func Rows(cells []model.GridCell) [][]model.GridCell {
	rows := make([][]model.GridCell, 0, (len(cells)+Columns-1)/Columns)
	for start := 0; start < len(cells); start += Columns {
		end := start + Columns
		if end > len(cells) {
			end = len(cells)
		}
		rows = append(rows, cells[start:end])
	}
	return rows
}
