package model

import (
	"strings"
	"time"
)

// Event is a single timed entry on a calendar day. ID is zero until the
// event has been persisted; once assigned it never changes.
type Event struct {
	ID          int64  `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// RemindTime is when the notification fires. It is usually StartTime but
	// stored independently.
	RemindTime time.Time `json:"remind_time"`
}

// Persisted reports whether the event has been assigned an id by a store.
func (e Event) Persisted() bool { return e.ID > 0 }

// Normalize trims the title and defaults RemindTime to StartTime.
func (e *Event) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	if e.RemindTime.IsZero() {
		e.RemindTime = e.StartTime
	}
}

// GridCell is one slot of the 7-column month view. Day is zero for the
// leading padding cells before day 1.
type GridCell struct {
	Position   int    `json:"position"`
	Day        int    `json:"day,omitempty"`
	IsToday    bool   `json:"is_today"`
	IsSelected bool   `json:"is_selected"`
	LunarLabel string `json:"lunar_label,omitempty"`
}

// IsPadding reports whether the cell precedes day 1 of the month.
func (c GridCell) IsPadding() bool { return c.Day == 0 }

// LunarDate is a date in the Chinese lunisolar calendar. Derived, never
// persisted.
type LunarDate struct {
	Year        int  `json:"year"`
	Month       int  `json:"month"`
	Day         int  `json:"day"`
	IsLeapMonth bool `json:"is_leap_month"`
}

// YearMonth identifies a displayed month.
type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// YearMonthOf returns the month containing t in t's location.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Add shifts by delta months, carrying into adjacent years.
func (ym YearMonth) Add(delta int) YearMonth {
	idx := ym.Year*12 + int(ym.Month) - 1 + delta
	year := idx / 12
	month := idx % 12
	if month < 0 {
		month += 12
		year--
	}
	return YearMonth{Year: year, Month: time.Month(month + 1)}
}

// Contains reports whether t falls within the month.
func (ym YearMonth) Contains(t time.Time) bool {
	return t.Year() == ym.Year && t.Month() == ym.Month
}

// Date returns the given day of the month at local midnight.
func (ym YearMonth) Date(day int) time.Time {
	return time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, time.Local)
}

// ScheduledAlarm is an outstanding reminder held by a scheduler, keyed by
// event id.
type ScheduledAlarm struct {
	EventID int64     `json:"event_id"`
	FireAt  time.Time `json:"fire_at"`
	Payload string    `json:"payload"`
}

// Notification is one delivered reminder. ID is unique per firing so that
// repeated reminders for the same event never overwrite each other.
type Notification struct {
	ID          string    `json:"id"`
	EventID     int64     `json:"event_id"`
	Title       string    `json:"title"`
	FireAt      time.Time `json:"fire_at"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextDay returns local midnight of the day after t. Using the calendar
// rather than a fixed 24h keeps DST days correct.
func NextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
