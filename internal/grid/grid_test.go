package grid

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 30, 0, 0, time.Local) }
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 28, DaysInMonth(2023, time.February))
	assert.Equal(t, 28, DaysInMonth(1900, time.February))
	assert.Equal(t, 29, DaysInMonth(2000, time.February))
	assert.Equal(t, 31, DaysInMonth(2024, time.December))
	assert.Equal(t, 30, DaysInMonth(2024, time.April))
}

func TestLeadingPadding(t *testing.T) {
	assert.Equal(t, 3, LeadingPadding(2024, time.February))  // Thursday
	assert.Equal(t, 6, LeadingPadding(2024, time.September)) // Sunday
	assert.Equal(t, 0, LeadingPadding(2024, time.January))   // Monday
}

func TestBuild_February2024(t *testing.T) {
	b := NewBuilder(nil, fixedClock(2030, time.January, 1))
	cells, err := b.Build(2024, time.February)
	require.NoError(t, err)
	require.Len(t, cells, 32)

	for i := 0; i < 3; i++ {
		assert.True(t, cells[i].IsPadding())
		assert.Empty(t, cells[i].LunarLabel)
		assert.False(t, cells[i].IsToday)
	}
	for d := 1; d <= 29; d++ {
		c := cells[2+d]
		assert.Equal(t, d, c.Day)
		assert.Equal(t, 2+d, c.Position)
		assert.NotEmpty(t, c.LunarLabel)
	}

	// 2024-02-10 is the first day of the lunar year.
	assert.Equal(t, "正月初一", cells[3+9].LunarLabel)
	assert.Equal(t, "初二", cells[3+10].LunarLabel)
	assert.Equal(t, "三十", cells[3+8].LunarLabel)
}

func TestBuild_LayoutPropertyAcrossRange(t *testing.T) {
	b := NewBuilder(nil, fixedClock(2024, time.June, 15))
	for ym := (model.YearMonth{Year: 1900, Month: time.January}); ym.Year <= 2100; ym = ym.Add(1) {
		cells, err := b.Build(ym.Year, ym.Month)
		require.NoError(t, err, "%v", ym)

		pad := LeadingPadding(ym.Year, ym.Month)
		days := DaysInMonth(ym.Year, ym.Month)
		require.GreaterOrEqual(t, pad, 0)
		require.LessOrEqual(t, pad, 6)
		require.Len(t, cells, pad+days)

		n := 0
		for i, c := range cells {
			require.Equal(t, i, c.Position)
			if i < pad {
				require.True(t, c.IsPadding())
				continue
			}
			n++
			require.Equal(t, n, c.Day)
		}
		require.Equal(t, days, n)
	}
}

func TestBuild_InvalidMonth(t *testing.T) {
	b := NewBuilder(nil, nil)
	_, err := b.Build(2024, 0)
	assert.ErrorIs(t, err, ErrInvalidMonth)
	_, err = b.Build(2024, 13)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestBuild_UnsupportedLunarRangeSurfaces(t *testing.T) {
	b := NewBuilder(nil, nil)
	_, err := b.Build(1899, time.December)
	assert.ErrorIs(t, err, lunar.ErrUnsupportedDateRange)
	_, err = b.Build(2101, time.January)
	assert.ErrorIs(t, err, lunar.ErrUnsupportedDateRange)
}

func TestBuild_January1900(t *testing.T) {
	cells, err := NewBuilder(nil, nil).Build(1900, time.January)
	require.NoError(t, err)
	// 1900-01-01 was a Monday.
	require.Len(t, cells, 31)
	assert.Equal(t, 1, cells[0].Day)
	assert.Equal(t, "腊月初一", cells[0].LunarLabel)
	assert.Equal(t, "初二", cells[1].LunarLabel)
	assert.Equal(t, "正月初一", cells[30].LunarLabel)
}

type failingConverter struct{}

func (failingConverter) ToLunar(int, int, int) (model.LunarDate, error) {
	return model.LunarDate{}, errors.New("boom")
}

func TestBuild_ConverterIsPluggable(t *testing.T) {
	b := NewBuilder(failingConverter{}, nil)
	_, err := b.Build(2024, time.March)
	assert.EqualError(t, err, "grid: 2024-03-01: boom")
}

func TestTodayPosition(t *testing.T) {
	b := NewBuilder(nil, fixedClock(2024, time.February, 14))

	pos, ok := b.TodayPosition(2024, time.February)
	require.True(t, ok)
	assert.Equal(t, 3+13, pos)

	cells, err := b.Build(2024, time.February)
	require.NoError(t, err)
	today := 0
	for _, c := range cells {
		if c.IsToday {
			today++
			assert.Equal(t, pos, c.Position)
			assert.Equal(t, 14, c.Day)
		}
	}
	assert.Equal(t, 1, today)

	for _, ym := range []model.YearMonth{
		{Year: 2024, Month: time.January},
		{Year: 2024, Month: time.March},
		{Year: 2023, Month: time.February},
		{Year: 2025, Month: time.February},
	} {
		_, ok := b.TodayPosition(ym.Year, ym.Month)
		assert.False(t, ok, "%v", ym)
	}
}

func TestRows(t *testing.T) {
	b := NewBuilder(nil, nil)
	cells, err := b.Build(2024, time.February)
	require.NoError(t, err)

	rows := Rows(cells)
	require.Len(t, rows, 5)
	for _, r := range rows[:4] {
		assert.Len(t, r, Columns)
	}
	assert.Len(t, rows[4], 4)
}
