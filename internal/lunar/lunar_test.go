package lunar

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/model"
)

func TestToLunar_KnownDates(t *testing.T) {
	cases := []struct {
		name       string
		y, m, d    int
		want       model.LunarDate
		wantLabel  string
		wantShort  string
		firstOfMon bool
	}{
		{"epoch", 1900, 1, 31, model.LunarDate{Year: 1900, Month: 1, Day: 1}, "正月初一", "正月初一", true},
		{"spring festival 2024", 2024, 2, 10, model.LunarDate{Year: 2024, Month: 1, Day: 1}, "正月初一", "正月初一", true},
		{"new year's eve 2024", 2024, 2, 9, model.LunarDate{Year: 2023, Month: 12, Day: 30}, "三十", "腊月三十", false},
		{"leap second month 2023", 2023, 3, 22, model.LunarDate{Year: 2023, Month: 2, Day: 1, IsLeapMonth: true}, "闰二月初一", "闰二月初一", true},
		{"regular second month 2023", 2023, 2, 20, model.LunarDate{Year: 2023, Month: 2, Day: 1}, "二月初一", "二月初一", true},
		{"mid-autumn 2024", 2024, 9, 17, model.LunarDate{Year: 2024, Month: 8, Day: 15}, "十五", "八月十五", false},
		{"new year's eve 2025", 2025, 1, 28, model.LunarDate{Year: 2024, Month: 12, Day: 29}, "廿九", "腊月廿九", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Default.ToLunar(tc.y, tc.m, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			label, err := Label(got)
			require.NoError(t, err)
			assert.Equal(t, tc.wantLabel, label)

			short, err := ShortString(got)
			require.NoError(t, err)
			assert.Equal(t, tc.wantShort, short)

			first, err := IsFirstDayOfMonth(Default, tc.y, tc.m, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.firstOfMon, first)
		})
	}
}

func TestToLunar_UnsupportedRange(t *testing.T) {
	for _, d := range [][3]int{
		{1899, 12, 31},
		{2101, 1, 1},
		{2023, 2, 29},
		{2024, 13, 1},
	} {
		_, err := Default.ToLunar(d[0], d[1], d[2])
		assert.ErrorIs(t, err, ErrUnsupportedDateRange, "%v", d)
	}

	_, err := Default.ToLunar(2100, 12, 31)
	assert.NoError(t, err)
}

func TestToLunar_January1900(t *testing.T) {
	first, err := Default.ToLunar(1900, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, model.LunarDate{Year: 1899, Month: 12, Day: 1}, first)

	label, err := Label(first)
	require.NoError(t, err)
	assert.Equal(t, "腊月初一", label)
	assert.Equal(t, "猪", Zodiac(first.Year))

	last, err := Default.ToLunar(1900, 1, 30)
	require.NoError(t, err)
	assert.Equal(t, model.LunarDate{Year: 1899, Month: 12, Day: 30}, last)

	next, err := Default.ToLunar(1900, 1, 31)
	require.NoError(t, err)
	assert.Equal(t, model.LunarDate{Year: 1900, Month: 1, Day: 1}, next)
}

func TestToLunar_MonotonicAcrossRange(t *testing.T) {
	// Walking day by day, the lunar day either increments or restarts at 1.
	prev, err := FromTime(Default, MinDate)
	require.NoError(t, err)

	for d := MinDate.AddDate(0, 0, 1); !d.After(MaxDate); d = d.AddDate(0, 0, 1) {
		cur, err := FromTime(Default, d)
		require.NoError(t, err, d.Format("2006-01-02"))
		if cur.Day == 1 {
			require.Contains(t, []int{29, 30}, prev.Day, d.Format("2006-01-02"))
		} else {
			require.Equal(t, prev.Day+1, cur.Day, d.Format("2006-01-02"))
			require.Equal(t, prev.Month, cur.Month)
			require.Equal(t, prev.IsLeapMonth, cur.IsLeapMonth)
		}
		prev = cur
	}
}

func TestDayName(t *testing.T) {
	name, err := DayName(model.LunarDate{Day: 1})
	require.NoError(t, err)
	assert.Equal(t, "初一", name)

	name, err = DayName(model.LunarDate{Day: 15})
	require.NoError(t, err)
	assert.Equal(t, "十五", name)

	name, err = DayName(model.LunarDate{Day: 30})
	require.NoError(t, err)
	assert.Equal(t, "三十", name)

	for _, d := range []int{0, 31, -1} {
		_, err := DayName(model.LunarDate{Day: d})
		assert.ErrorIs(t, err, ErrInvalidLunarDay)
	}
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "正月", MonthName(model.LunarDate{Month: 1}))
	assert.Equal(t, "冬月", MonthName(model.LunarDate{Month: 11}))
	assert.Equal(t, "腊月", MonthName(model.LunarDate{Month: 12}))
	assert.Equal(t, "闰六月", MonthName(model.LunarDate{Month: 6, IsLeapMonth: true}))
	assert.Equal(t, "", MonthName(model.LunarDate{Month: 13}))
}

func TestZodiac(t *testing.T) {
	assert.Equal(t, "鼠", Zodiac(1900))
	assert.Equal(t, "龙", Zodiac(2024))
	assert.Equal(t, "蛇", Zodiac(2025))
	assert.Equal(t, "猪", Zodiac(1899))
	assert.Equal(t, "鼠", Zodiac(1888))
}

func TestLongString(t *testing.T) {
	s, err := LongString(model.LunarDate{Year: 2024, Month: 1, Day: 1})
	require.NoError(t, err)
	assert.Equal(t, "农历2024年正月初一", s)
}

func TestParseLabel(t *testing.T) {
	month, leap, day, err := ParseLabel("闰二月初一")
	require.NoError(t, err)
	assert.Equal(t, 2, month)
	assert.True(t, leap)
	assert.Equal(t, 1, day)

	month, leap, day, err = ParseLabel("廿九")
	require.NoError(t, err)
	assert.Equal(t, 0, month)
	assert.False(t, leap)
	assert.Equal(t, 29, day)

	for _, bad := range []string{"", "闰初一", "正月三十一", "hello"} {
		_, _, _, err := ParseLabel(bad)
		assert.Error(t, err, bad)
	}
}

func TestLabel_RoundTripIsStable(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Year() < 2026; d = d.AddDate(0, 0, 1) {
		ld, err := FromTime(Default, d)
		require.NoError(t, err)
		label, err := Label(ld)
		require.NoError(t, err)

		month, leap, day, err := ParseLabel(label)
		require.NoError(t, err, label)
		assert.Equal(t, ld.Day, day)
		if ld.Day == 1 {
			assert.Equal(t, ld.Month, month)
			assert.Equal(t, ld.IsLeapMonth, leap)
		}

		again, err := FromTime(Default, d)
		require.NoError(t, err)
		label2, err := Label(again)
		require.NoError(t, err)
		require.Equal(t, label, label2)
	}
}

func TestToLunar_ConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ld, err := Default.ToLunar(2024, 9, 17)
				if err != nil || ld.Day != 15 {
					t.Errorf("unexpected %+v %v", ld, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
