// Package lunar converts Gregorian dates to the Chinese lunisolar calendar
// for the years covered by the packed year table (1900 through 2099).
package lunar

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

const (
	// MinYear is the first lunar year in the table.
	MinYear = 1900
	// MaxYear is the first year past the end of the table.
	MaxYear = MinYear + len(yearInfo)
)

var (
	// ErrOutOfRange is returned for dates outside [1900-01-31, 2100-01-01).
	ErrOutOfRange = errors.New("lunar: date out of supported range")
	// ErrInvalidDate is returned for non-normalized Gregorian input and for
	// lunar dates that do not exist.
	ErrInvalidDate = errors.New("lunar: invalid date")
)

// epoch is Gregorian 1900-01-31, lunar 1900 正月初一.
var epoch = time.Date(1900, time.January, 31, 0, 0, 0, 0, time.UTC)

// Date is a lunar calendar date. Month is 1-12 and Day is 1-30; Leap marks
// the intercalary month that follows the regular month with the same number.
type Date struct {
	Year  int  `json:"year"`
	Month int  `json:"month"`
	Day   int  `json:"day"`
	Leap  bool `json:"leap"`
}

// MonthName returns the traditional month name, e.g. "正月" or "腊月".
func (d Date) MonthName() string {
	if d.Month < 1 || d.Month > len(monthNames) {
		return ""
	}
	return monthNames[d.Month-1]
}

// DayName returns the traditional day name, e.g. "初一" or "廿九".
func (d Date) DayName() string {
	if d.Day < 1 || d.Day > len(dayNames) {
		return ""
	}
	return dayNames[d.Day-1]
}

// String returns month and day names concatenated, e.g. "三月初五".
// A leap month is not marked; use Label for that.
func (d Date) String() string {
	return d.MonthName() + d.DayName()
}

// Label is String with a "闰" prefix for leap months.
func (d Date) Label() string {
	if d.Leap {
		return "闰" + d.String()
	}
	return d.String()
}

// YearName returns the sexagenary name and animal of the lunar year,
// e.g. "甲辰龙年".
func (d Date) YearName() string {
	i := (d.Year - 4) % 60
	if i < 0 {
		i += 60
	}
	return heavenlyStems[i%10] + earthlyBranches[i%12] + animals[i%12] + "年"
}

// FromTime converts the calendar day of t, as seen in t's own location.
func FromTime(t time.Time) (Date, error) {
	y, m, d := t.Date()
	return FromDate(y, m, d)
}

// FromDate converts a Gregorian date to its lunar date.
//
// The date must already be normalized (no February 30th) and fall within
// [1900-01-31, 2100-01-01).
func FromDate(year int, month time.Month, day int) (Date, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if ty, tm, td := t.Date(); ty != year || tm != month || td != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	if year >= MaxYear || t.Before(epoch) {
		return Date{}, fmt.Errorf("%w: %s", ErrOutOfRange, t.Format(time.DateOnly))
	}

	// Civil dates in UTC have no DST gaps, so the division is exact.
	offset := int(t.Sub(epoch) / (24 * time.Hour))
	return fromOffset(offset)
}

// fromOffset maps a whole-day offset from the epoch onto the table.
func fromOffset(offset int) (Date, error) {
	if offset < 0 {
		return Date{}, ErrOutOfRange
	}

	year := MinYear
	for ; year < MaxYear; year++ {
		n := yearDays(year)
		if offset < n {
			break
		}
		offset -= n
	}
	if year >= MaxYear {
		return Date{}, ErrOutOfRange
	}

	// The leap month, if any, directly follows the regular month it repeats.
	leap := leapMonth(year)
	for month := 1; month <= 12; month++ {
		n := monthDays(year, month)
		if offset < n {
			return Date{Year: year, Month: month, Day: offset + 1}, nil
		}
		offset -= n

		if month == leap {
			n = leapDays(year)
			if offset < n {
				return Date{Year: year, Month: month, Day: offset + 1, Leap: true}, nil
			}
			offset -= n
		}
	}

	// yearDays is the sum of the month lengths, so the walk always ends above.
	return Date{}, fmt.Errorf("lunar: month walk overran year %d", year)
}

// ToSolar converts a lunar date back to the Gregorian calendar. The result is
// local midnight in loc (time.Local if nil).
func ToSolar(d Date, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if d.Year < MinYear || d.Year >= MaxYear {
		return time.Time{}, fmt.Errorf("%w: lunar year %d", ErrOutOfRange, d.Year)
	}
	if d.Month < 1 || d.Month > 12 {
		return time.Time{}, fmt.Errorf("%w: lunar month %d", ErrInvalidDate, d.Month)
	}
	leap := leapMonth(d.Year)
	if d.Leap && leap != d.Month {
		return time.Time{}, fmt.Errorf("%w: year %d has no leap month %d", ErrInvalidDate, d.Year, d.Month)
	}
	length := monthDays(d.Year, d.Month)
	if d.Leap {
		length = leapDays(d.Year)
	}
	if d.Day < 1 || d.Day > length {
		return time.Time{}, fmt.Errorf("%w: day %d of a %d-day month", ErrInvalidDate, d.Day, length)
	}

	offset := 0
	for y := MinYear; y < d.Year; y++ {
		offset += yearDays(y)
	}
	for m := 1; m < d.Month; m++ {
		offset += monthDays(d.Year, m)
		if m == leap {
			offset += leapDays(d.Year)
		}
	}
	if d.Leap {
		offset += monthDays(d.Year, d.Month)
	}
	offset += d.Day - 1

	y, m, day := epoch.AddDate(0, 0, offset).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc), nil
}

// NewYear returns the Gregorian date of 正月初一 of the given lunar year.
func NewYear(year int, loc *time.Location) (time.Time, error) {
	return ToSolar(Date{Year: year, Month: 1, Day: 1}, loc)
}

// Year describes the month structure of one lunar year.
type Year struct {
	Year      int     `json:"year"`
	LeapMonth int     `json:"leap_month"`
	LeapDays  int     `json:"leap_days"`
	MonthDays [12]int `json:"month_days"`
	Days      int     `json:"days"`
}

// YearOf returns the table entry for year in decoded form.
func YearOf(year int) (Year, error) {
	if year < MinYear || year >= MaxYear {
		return Year{}, fmt.Errorf("%w: lunar year %d", ErrOutOfRange, year)
	}
	y := Year{
		Year:      year,
		LeapMonth: leapMonth(year),
		LeapDays:  leapDays(year),
		Days:      yearDays(year),
	}
	for m := 1; m <= 12; m++ {
		y.MonthDays[m-1] = monthDays(year, m)
	}
	return y, nil
}

// The helpers below assume MinYear <= y < MaxYear.

// yearDays is the total length of lunar year y, leap month included.
func yearDays(y int) int {
	// 12 regular months of 29 days plus one for each 30-day month bit.
	return 12*29 + bits.OnesCount32(yearInfo[y-MinYear]&0xfff0) + leapDays(y)
}

// leapDays is the length of y's leap month, 0 if there is none.
func leapDays(y int) int {
	if leapMonth(y) == 0 {
		return 0
	}
	if yearInfo[y-MinYear]&0x10000 != 0 {
		return 30
	}
	return 29
}

// leapMonth is the index of y's leap month, 0 if there is none.
func leapMonth(y int) int {
	return int(yearInfo[y-MinYear] & 0xf)
}

// monthDays is the length of regular month m (1-12) of year y.
func monthDays(y, m int) int {
	if yearInfo[y-MinYear]&(0x10000>>uint(m)) != 0 {
		return 30
	}
	return 29
}
