package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

const defaultMaxOccurrences = 500

var (
	errEmptyBody   = errors.New("ics: empty body")
	errNotCalendar = errors.New("ics: body is not a VCALENDAR")
)

// Importer turns VEVENTs into new events. Stored events never recur: with
// a non-empty [From, To) window a recurring VEVENT is flattened into one
// event per occurrence in the window, otherwise it is skipped.
type Importer struct {
	From, To time.Time
	// MaxOccurrences caps the events produced from one recurring VEVENT.
	MaxOccurrences int
}

// Parse imports body skipping recurring VEVENTs.
func Parse(body []byte) ([]model.Event, error) {
	return Importer{}.Parse(body)
}

// Parse converts the VEVENTs in body. Invalid VEVENTs are logged and
// skipped rather than failing the import.
func (im Importer) Parse(body []byte) ([]model.Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyBody
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return nil, errNotCalendar
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}
	if im.MaxOccurrences <= 0 {
		im.MaxOccurrences = defaultMaxOccurrences
	}

	var (
		out     []model.Event
		skipped int
	)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			appLog.Warn("ics vevent skipped", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "reason", err.Error())
			skipped++
			continue
		}

		rule := propValue(ve, ical.ComponentPropertyRrule)
		if rule == "" {
			out = append(out, ev)
			continue
		}
		if !im.To.After(im.From) {
			skipped++
			continue
		}
		occ, err := im.expand(ev, rule, exDates(ve))
		if err != nil {
			appLog.Warn("ics rrule skipped", "rrule", rule, "reason", err.Error())
			skipped++
			continue
		}
		out = append(out, occ...)
	}

	appLog.Info("ics parse completed", "event_count", len(out), "skipped", skipped)
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (model.Event, error) {
	start, err := ve.GetStartAt()
	if err != nil {
		return model.Event{}, fmt.Errorf("dtstart: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}

	ev := model.Event{
		// TEXT values arrive already unescaped by the parser.
		Title:       propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		StartTime:   start.In(time.Local),
		EndTime:     end.In(time.Local),
	}
	ev.RemindTime = remindTime(ve, ev.StartTime)
	ev.Normalize()
	if err := model.ValidateEvent(ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// remindTime reads the first alarm's trigger. Absolute triggers are taken
// as-is, relative ones are applied to start.
func remindTime(ve *ical.VEvent, start time.Time) time.Time {
	for _, va := range ve.Alarms() {
		p := va.GetProperty(ical.ComponentPropertyTrigger)
		if p == nil || p.Value == "" {
			continue
		}
		if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE-TIME") {
			if t, err := parseICSTime(p.Value); err == nil {
				return t.In(time.Local)
			}
			continue
		}
		if d, err := parseDuration(p.Value); err == nil {
			return start.Add(d)
		}
	}
	return start
}

func (im Importer) expand(ev model.Event, rule string, ex []time.Time) ([]model.Event, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.StartTime)

	var set rrule.Set
	set.RRule(r)
	for _, t := range ex {
		set.ExDate(t.In(ev.StartTime.Location()))
	}

	starts := set.Between(im.From, im.To, true)
	if len(starts) > im.MaxOccurrences {
		appLog.Warn("ics occurrences truncated", "title", ev.Title, "count", len(starts), "max", im.MaxOccurrences)
		starts = starts[:im.MaxOccurrences]
	}

	dur := ev.EndTime.Sub(ev.StartTime)
	lead := ev.RemindTime.Sub(ev.StartTime)
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		// Only [From, To) is wanted; Between is inclusive at both ends.
		if !s.Before(im.To) {
			continue
		}
		occ := ev
		occ.StartTime = s.In(time.Local)
		occ.EndTime = occ.StartTime.Add(dur)
		occ.RemindTime = occ.StartTime.Add(lead)
		out = append(out, occ)
	}
	return out, nil
}

func exDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseICSTime handles the UTC, floating and date-only forms.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}

// parseDuration parses an RFC 5545 dur-value such as "-PT15M" or "P1DT2H".
func parseDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("ics: bad duration %q", v)
	}
	s = s[1:]

	var (
		d      time.Duration
		inTime bool
		num    strings.Builder
	)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num.WriteRune(r)
			continue
		case r == 'T':
			if inTime || num.Len() > 0 {
				return 0, fmt.Errorf("ics: bad duration %q", v)
			}
			inTime = true
			continue
		}

		n, err := strconv.Atoi(num.String())
		if err != nil {
			return 0, fmt.Errorf("ics: bad duration %q", v)
		}
		num.Reset()

		var unit time.Duration
		switch {
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("ics: bad duration %q", v)
		}
		d += time.Duration(n) * unit
	}
	if num.Len() > 0 {
		return 0, fmt.Errorf("ics: bad duration %q", v)
	}
	if neg {
		d = -d
	}
	return d, nil
}
