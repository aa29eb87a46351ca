// Package zodiac maps calendar days to Western zodiac signs.
package zodiac

import "time"

// Sign is a zodiac sign, Capricorn first.
type Sign int

const (
	Capricorn Sign = iota
	Aquarius
	Pisces
	Aries
	Taurus
	Gemini
	Cancer
	Leo
	Virgo
	Libra
	Scorpio
	Sagittarius
)

var names = [12]string{
	"摩羯座", "水瓶座", "双鱼座", "白羊座", "金牛座", "双子座",
	"巨蟹座", "狮子座", "处女座", "天秤座", "天蝎座", "射手座",
}

var englishNames = [12]string{
	"Capricorn", "Aquarius", "Pisces", "Aries", "Taurus", "Gemini",
	"Cancer", "Leo", "Virgo", "Libra", "Scorpio", "Sagittarius",
}

// edgeDay[m-1] is the day of month m on which the next sign begins, so
// January 20th starts Aquarius and December 22nd starts Capricorn.
var edgeDay = [12]int{20, 19, 21, 21, 21, 22, 23, 23, 23, 23, 22, 22}

// Of returns the sign for the given month and day.
func Of(month time.Month, day int) Sign {
	i := int(month) - 1
	if i < 0 || i > 11 {
		i = ((i % 12) + 12) % 12
	}
	if day < edgeDay[i] {
		return Sign(i)
	}
	return Sign((i + 1) % 12)
}

// FromTime returns the sign of t's calendar day in t's location.
func FromTime(t time.Time) Sign {
	_, m, d := t.Date()
	return Of(m, d)
}

// String returns the Chinese name, e.g. "白羊座".
func (s Sign) String() string {
	if s < 0 || int(s) >= len(names) {
		return ""
	}
	return names[s]
}

func (s Sign) English() string {
	if s < 0 || int(s) >= len(englishNames) {
		return ""
	}
	return englishNames[s]
}
