// Package calview composes day, week and month views: date sequences
// decorated with lunar labels, zodiac signs and event markers.
package calview

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/zodiac"
)

var weekdayNames = [7]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// Day is one decorated cell of a view.
type Day struct {
	Date time.Time `json:"date"`
	// Lunar is the lunar label ("八月十五", "闰二月初一"); empty outside the
	// converter's range.
	Lunar     string      `json:"lunar"`
	LunarDate *lunar.Date `json:"lunar_date,omitempty"`
	Zodiac    string      `json:"zodiac"`
	Weekday   string      `json:"weekday"`
	HasEvents bool        `json:"has_events"`
	InMonth   bool        `json:"in_month"`
	Today     bool        `json:"today"`
}

// Key formats the calendar day of t as used in URLs, the store and markers.
func Key(t time.Time) string {
	return model.DateKey(t)
}

// StartOfWeek returns midnight of the first day of the week containing date.
func StartOfWeek(date time.Time, weekStart time.Weekday) time.Time {
	d := model.Midnight(date)
	back := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDate(0, 0, -back)
}

// Days returns n consecutive midnights starting at start's calendar day.
func Days(start time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: model.Midnight(start),
		Count:   n,
	})
	if err != nil {
		// DAILY with a positive count is always a valid rule.
		appLog.Error("calview: build day rule", err, "start", Key(start), "count", n)
		return nil
	}
	return r.All()
}

// WeekDates returns the seven days of the week containing date.
func WeekDates(date time.Time, weekStart time.Weekday) []time.Time {
	return Days(StartOfWeek(date, weekStart), 7)
}

// MonthGrid returns whole weeks covering the given month, starting on
// weekStart. The result holds 28, 35 or 42 days.
func MonthGrid(year int, month time.Month, weekStart time.Weekday, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	start := StartOfWeek(first, weekStart)
	end := StartOfWeek(last, weekStart).AddDate(0, 0, 6)

	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		n++
	}
	return Days(start, n)
}

// Decorate turns dates into view cells. month selects which cells are
// InMonth (zero marks every cell); marked holds the Keys of days with
// events; today is compared by calendar day.
func Decorate(dates []time.Time, month time.Month, marked map[string]bool, today time.Time) []Day {
	todayKey := Key(today)
	out := make([]Day, 0, len(dates))
	for _, d := range dates {
		key := Key(d)
		day := Day{
			Date:      d,
			Zodiac:    zodiac.FromTime(d).String(),
			Weekday:   weekdayNames[d.Weekday()],
			HasEvents: marked[key],
			InMonth:   month == 0 || d.Month() == month,
			Today:     key == todayKey,
		}
		if ld, err := lunar.FromTime(d); err == nil {
			day.Lunar = ld.Label()
			day.LunarDate = &ld
		}
		out = append(out, day)
	}
	return out
}

// WeekTitle renders the header of a week view, e.g. "2024年06月  06/10–06/16".
// The year and month are taken from the first day.
func WeekTitle(dates []time.Time) string {
	if len(dates) == 0 {
		return ""
	}
	first, last := dates[0], dates[len(dates)-1]
	return fmt.Sprintf("%s  %s–%s", first.Format("2006年01月"), first.Format("01/02"), last.Format("01/02"))
}

// DayTitle renders the header of a day view, e.g. "2024年06月10日  周一".
func DayTitle(d time.Time) string {
	return d.Format("2006年01月02日") + "  " + weekdayNames[d.Weekday()]
}

// MonthTitle renders "2024年06月".
func MonthTitle(year int, month time.Month) string {
	return fmt.Sprintf("%04d年%02d月", year, int(month))
}
