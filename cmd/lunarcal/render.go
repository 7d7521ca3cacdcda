package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"lunarcal/internal/grid"
	"lunarcal/internal/model"
)

var weekdayHeader = []string{"一", "二", "三", "四", "五", "六", "日"}

const cellWidth = 8

// printGrid writes the month as rows of "day label" cells, today marked
// with an asterisk.
func printGrid(w io.Writer, ym model.YearMonth, cells []model.GridCell) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-%02d\n", ym.Year, int(ym.Month))
	for _, h := range weekdayHeader {
		b.WriteString(pad(h, cellWidth))
	}
	b.WriteString("\n")

	for _, row := range grid.Rows(cells) {
		var line strings.Builder
		for _, c := range row {
			if c.IsPadding() {
				line.WriteString(strings.Repeat(" ", cellWidth))
				continue
			}
			mark := " "
			if c.IsToday {
				mark = "*"
			}
			line.WriteString(pad(fmt.Sprintf("%2d%s%s", c.Day, mark, c.LunarLabel), cellWidth))
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// pad right-pads s to width display columns, counting CJK runes as two.
func pad(s string, width int) string {
	n := 0
	for _, r := range s {
		if r >= 0x2E80 {
			n += 2
		} else {
			n++
		}
	}
	if n >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-n)
}

func printEvents(w io.Writer, events []model.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tREMIND\tTITLE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			ev.ID,
			ev.StartTime.Format(dateTimeLayout),
			ev.EndTime.Format(dateTimeLayout),
			ev.RemindTime.Format(dateTimeLayout),
			ev.Title,
		)
	}
	return tw.Flush()
}

const dateTimeLayout = "2006-01-02 15:04"

func parseDate(v string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(v), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", v)
	}
	return t, nil
}

// parseDateTime accepts local "2006-01-02 15:04", a bare date (midnight) or
// RFC 3339.
func parseDateTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range []string{dateTimeLayout, "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(time.Local), nil
	}
	return time.Time{}, fmt.Errorf("time %q: want %q or RFC 3339", v, dateTimeLayout)
}
