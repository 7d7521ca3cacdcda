// Package ics converts events to and from iCalendar.
package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"lunarcal/internal/model"
)

const productID = "-//lunarcal//lunarcal//ZH"

// UID returns the iCalendar UID of a persisted event.
func UID(id int64) string {
	return fmt.Sprintf("event-%d@lunarcal", id)
}

// Export renders events as a VCALENDAR. Each event gets a DISPLAY alarm
// triggered relative to its start.
func Export(events []model.Event, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		if !ev.Persisted() {
			return "", fmt.Errorf("ics: export event %q: missing id", ev.Title)
		}
		ve := cal.AddEvent(UID(ev.ID))
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.StartTime)
		ve.SetEndAt(ev.EndTime)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}

		remind := ev.RemindTime
		if remind.IsZero() {
			remind = ev.StartTime
		}
		va := ve.AddAlarm()
		va.SetAction(ical.ActionDisplay)
		va.SetTrigger(formatDuration(remind.Sub(ev.StartTime)))
	}
	return cal.Serialize(), nil
}

// formatDuration renders d as an RFC 5545 dur-value. dur-values have no
// unit below seconds, so d is rounded to the nearest second.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		b.WriteString(strconv.FormatInt(int64(days), 10))
		b.WriteByte('D')
	}
	if d == 0 {
		if days == 0 {
			b.WriteString("T0S")
		}
		return b.String()
	}

	b.WriteByte('T')
	h, m, s := d/time.Hour, (d%time.Hour)/time.Minute, (d%time.Minute)/time.Second
	if h > 0 {
		b.WriteString(strconv.FormatInt(int64(h), 10) + "H")
	}
	if m > 0 {
		b.WriteString(strconv.FormatInt(int64(m), 10) + "M")
	}
	if s > 0 {
		b.WriteString(strconv.FormatInt(int64(s), 10) + "S")
	}
	return b.String()
}
