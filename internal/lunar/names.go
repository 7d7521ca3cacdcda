package lunar

import (
	"fmt"
	"strings"

	"lunarcal/internal/model"
)

const leapPrefix = "闰"

var monthNames = [12]string{
	"正月", "二月", "三月", "四月", "五月", "六月",
	"七月", "八月", "九月", "十月", "冬月", "腊月",
}

var dayNames = [30]string{
	"初一", "初二", "初三", "初四", "初五", "初六", "初七", "初八", "初九", "初十",
	"十一", "十二", "十三", "十四", "十五", "十六", "十七", "十八", "十九", "二十",
	"廿一", "廿二", "廿三", "廿四", "廿五", "廿六", "廿七", "廿八", "廿九", "三十",
}

var zodiacs = [12]string{"鼠", "牛", "虎", "兔", "龙", "蛇", "马", "羊", "猴", "鸡", "狗", "猪"}

// MonthName returns the traditional month name, prefixed with 闰 for a leap
// month. Months outside 1..12 yield "".
func MonthName(ld model.LunarDate) string {
	if ld.Month < 1 || ld.Month > 12 {
		return ""
	}
	if ld.IsLeapMonth {
		return leapPrefix + monthNames[ld.Month-1]
	}
	return monthNames[ld.Month-1]
}

// DayName returns the traditional day name (初一 .. 三十).
func DayName(ld model.LunarDate) (string, error) {
	if ld.Day < 1 || ld.Day > 30 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLunarDay, ld.Day)
	}
	return dayNames[ld.Day-1], nil
}

// Zodiac returns the animal of a year, counted from 1900 (鼠).
func Zodiac(year int) string {
	i := (year - 1900) % 12
	if i < 0 {
		i += 12
	}
	return zodiacs[i]
}

// Label is the grid annotation: month and day on the first day of a lunar
// month, the day name alone otherwise.
func Label(ld model.LunarDate) (string, error) {
	day, err := DayName(ld)
	if err != nil {
		return "", err
	}
	if ld.Day == 1 {
		return MonthName(ld) + day, nil
	}
	return day, nil
}

// ShortString formats as e.g. "闰二月初一".
func ShortString(ld model.LunarDate) (string, error) {
	day, err := DayName(ld)
	if err != nil {
		return "", err
	}
	return MonthName(ld) + day, nil
}

// LongString formats as e.g. "农历2024年正月初一".
func LongString(ld model.LunarDate) (string, error) {
	short, err := ShortString(ld)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("农历%d年%s", ld.Year, short), nil
}

// ParseLabel reverses Label and ShortString. month is 0 when the label
// carries only a day name.
func ParseLabel(label string) (month int, leap bool, day int, err error) {
	rest := label
	if strings.HasPrefix(rest, leapPrefix) {
		leap = true
		rest = strings.TrimPrefix(rest, leapPrefix)
	}
	for i, name := range monthNames {
		if strings.HasPrefix(rest, name) {
			month = i + 1
			rest = strings.TrimPrefix(rest, name)
			break
		}
	}
	if leap && month == 0 {
		return 0, false, 0, fmt.Errorf("lunar: label %q: leap marker without month", label)
	}
	for i, name := range dayNames {
		if rest == name {
			return month, leap, i + 1, nil
		}
	}
	return 0, false, 0, fmt.Errorf("lunar: label %q: unknown day name", label)
}
