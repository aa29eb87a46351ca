package calview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, cst)
}

func TestStartOfWeek(t *testing.T) {
	wed := time.Date(2024, 6, 12, 15, 30, 0, 0, cst)
	assert.Equal(t, date(2024, 6, 10), StartOfWeek(wed, time.Monday))
	assert.Equal(t, date(2024, 6, 9), StartOfWeek(wed, time.Sunday))
	assert.Equal(t, date(2024, 6, 10), StartOfWeek(date(2024, 6, 10), time.Monday))
	assert.Equal(t, date(2024, 6, 10), StartOfWeek(date(2024, 6, 16), time.Monday))
}

func TestDays(t *testing.T) {
	days := Days(time.Date(2024, 2, 27, 9, 0, 0, 0, cst), 4)
	require.Len(t, days, 4)
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}
	for i, d := range days {
		assert.Equal(t, want[i], Key(d))
		assert.Equal(t, 0, d.Hour())
	}
	assert.Nil(t, Days(date(2024, 1, 1), 0))
}

func TestWeekDates(t *testing.T) {
	week := WeekDates(date(2024, 6, 12), time.Monday)
	require.Len(t, week, 7)
	assert.Equal(t, "2024-06-10", Key(week[0]))
	assert.Equal(t, "2024-06-16", Key(week[6]))
	assert.Equal(t, "2024年06月  06/10–06/16", WeekTitle(week))
	assert.Equal(t, "", WeekTitle(nil))
}

func TestMonthGrid(t *testing.T) {
	cases := []struct {
		year      int
		month     time.Month
		weekStart time.Weekday
		n         int
		first     string
		last      string
	}{
		{2024, time.June, time.Monday, 35, "2024-05-27", "2024-06-30"},
		{2024, time.June, time.Sunday, 42, "2024-05-26", "2024-07-06"},
		{2015, time.February, time.Sunday, 28, "2015-02-01", "2015-02-28"},
	}
	for _, c := range cases {
		grid := MonthGrid(c.year, c.month, c.weekStart, cst)
		require.Len(t, grid, c.n, "%d-%02d", c.year, c.month)
		assert.Equal(t, c.first, Key(grid[0]))
		assert.Equal(t, c.last, Key(grid[len(grid)-1]))
		assert.Equal(t, c.weekStart, grid[0].Weekday())
	}
}

func TestDecorate(t *testing.T) {
	dates := []time.Time{date(2024, 5, 31), date(2024, 6, 10), date(2024, 9, 17)}
	marked := map[string]bool{"2024-06-10": true}
	days := Decorate(dates, time.June, marked, time.Date(2024, 6, 10, 20, 0, 0, 0, cst))
	require.Len(t, days, 3)

	assert.False(t, days[0].InMonth)
	assert.False(t, days[0].HasEvents)

	dragonBoat := days[1]
	assert.Equal(t, "五月初五", dragonBoat.Lunar)
	require.NotNil(t, dragonBoat.LunarDate)
	assert.Equal(t, 5, dragonBoat.LunarDate.Month)
	assert.Equal(t, "双子座", dragonBoat.Zodiac)
	assert.Equal(t, "周一", dragonBoat.Weekday)
	assert.True(t, dragonBoat.HasEvents)
	assert.True(t, dragonBoat.InMonth)
	assert.True(t, dragonBoat.Today)

	assert.Equal(t, "八月十五", days[2].Lunar)
	assert.Equal(t, "处女座", days[2].Zodiac)
	assert.False(t, days[2].Today)
}

func TestDecorateOutOfRange(t *testing.T) {
	days := Decorate([]time.Time{date(1900, 1, 30), date(2100, 1, 1)}, 0, nil, date(2024, 1, 1))
	for _, d := range days {
		assert.Empty(t, d.Lunar)
		assert.Nil(t, d.LunarDate)
		assert.True(t, d.InMonth)
	}
	assert.Equal(t, "水瓶座", days[0].Zodiac)
	assert.Equal(t, "摩羯座", days[1].Zodiac)
}

func TestTitles(t *testing.T) {
	assert.Equal(t, "2024年06月10日  周一", DayTitle(date(2024, 6, 10)))
	assert.Equal(t, "2024年06月", MonthTitle(2024, time.June))
}
