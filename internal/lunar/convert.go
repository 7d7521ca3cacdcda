// Package lunar converts Gregorian dates to the Chinese lunisolar calendar
// and formats lunar dates with their traditional names.
package lunar

import (
	"errors"
	"fmt"
	"time"

	"lunarcal/internal/model"
)

var (
	// ErrUnsupportedDateRange is returned for dates the converter has no data for.
	ErrUnsupportedDateRange = errors.New("lunar: date outside supported range")
	// ErrInvalidLunarDay signals a day number outside 1..30.
	ErrInvalidLunarDay = errors.New("lunar: invalid lunar day")
)

// Converter maps a Gregorian date to a lunar date. Implementations must be
// pure and safe for concurrent use.
type Converter interface {
	ToLunar(year, month, day int) (model.LunarDate, error)
}

// epoch is Gregorian 1900-01-31, lunar 1900 正月初一.
var epoch = time.Date(1900, time.January, 31, 0, 0, 0, 0, time.UTC)

// The table starts at lunar 1900. Gregorian January 1900 falls in the last
// month of lunar 1899, a 30-day 腊月 beginning 1900-01-01.
const (
	preludeYear  = firstYear - 1
	preludeMonth = 12
)

var preludeStart = epoch.AddDate(0, 0, -30)

// Supported Gregorian range of Table, inclusive.
var (
	MinDate = preludeStart
	MaxDate = time.Date(2100, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// Table is the table-driven Converter covering 1900-01-01 .. 2100-12-31.
type Table struct{}

// Default is the converter used when none is configured.
var Default Converter = Table{}

// ToLunar walks the year table from the epoch to locate the lunar date.
func (Table) ToLunar(year, month, day int) (model.LunarDate, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return model.LunarDate{}, fmt.Errorf("%w: %04d-%02d-%02d is not a valid date", ErrUnsupportedDateRange, year, month, day)
	}
	if t.Before(MinDate) || t.After(MaxDate) {
		return model.LunarDate{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrUnsupportedDateRange, year, month, day)
	}

	if t.Before(epoch) {
		return model.LunarDate{Year: preludeYear, Month: preludeMonth, Day: int(t.Sub(preludeStart).Hours()/24) + 1}, nil
	}
	offset := int(t.Sub(epoch).Hours() / 24)

	ly := firstYear
	for ; ly <= lastYear; ly++ {
		n := yearDays(ly)
		if offset < n {
			break
		}
		offset -= n
	}
	if ly > lastYear {
		return model.LunarDate{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrUnsupportedDateRange, year, month, day)
	}

	leap := leapMonth(ly)
	for m := 1; m <= 12; m++ {
		n := monthDays(ly, m)
		if offset < n {
			return model.LunarDate{Year: ly, Month: m, Day: offset + 1}, nil
		}
		offset -= n

		if m == leap {
			n = leapMonthDays(ly)
			if offset < n {
				return model.LunarDate{Year: ly, Month: m, Day: offset + 1, IsLeapMonth: true}, nil
			}
			offset -= n
		}
	}

	// yearDays covers every month above, so this is unreachable with a
	// consistent table.
	return model.LunarDate{}, fmt.Errorf("%w: table inconsistency for lunar year %d", ErrUnsupportedDateRange, ly)
}

// FromTime converts the calendar date of t (in t's location).
func FromTime(c Converter, t time.Time) (model.LunarDate, error) {
	y, m, d := t.Date()
	return c.ToLunar(y, int(m), d)
}

// IsFirstDayOfMonth reports whether the Gregorian date is day 1 of a lunar month.
func IsFirstDayOfMonth(c Converter, year, month, day int) (bool, error) {
	ld, err := c.ToLunar(year, month, day)
	if err != nil {
		return false, err
	}
	return ld.Day == 1, nil
}
