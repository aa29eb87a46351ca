package model

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyTitle      = errors.New("event title is empty")
	ErrUnknownCategory = errors.New("unknown event category")
)

// Category classifies an event. Stored as its integer value.
type Category int

const (
	CategoryWork Category = iota
	CategoryStudy
	CategoryLife
	CategoryReminder
	CategoryOther
)

var categoryNames = [...]string{"工作", "学习", "生活", "提醒", "其他"}

var categoryKeys = [...]string{"work", "study", "life", "reminder", "other"}

var categoryColors = [...]string{"#4CAF50", "#2196F3", "#FF9800", "#E91E63", "#9E9E9E"}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return c >= CategoryWork && c <= CategoryOther
}

// Name returns the display name; unknown values read as 其他.
func (c Category) Name() string {
	if !c.Valid() {
		return categoryNames[CategoryOther]
	}
	return categoryNames[c]
}

// Key is the stable ASCII identifier used in ICS CATEGORIES and the CLI.
func (c Category) Key() string {
	if !c.Valid() {
		return categoryKeys[CategoryOther]
	}
	return categoryKeys[c]
}

// Color is the hex display color for the category.
func (c Category) Color() string {
	if !c.Valid() {
		return categoryColors[CategoryOther]
	}
	return categoryColors[c]
}

// ParseCategory accepts a key ("work"), a display name ("工作") or a number.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i := range categoryKeys {
		if strings.EqualFold(s, categoryKeys[i]) || s == categoryNames[i] {
			return Category(i), nil
		}
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '4' {
		return Category(s[0] - '0'), nil
	}
	return CategoryOther, ErrUnknownCategory
}

// Event is a dated to-do entry. Date is local midnight of the day the event
// belongs to; RemindAt, when set, is the instant the reminder should fire.
type Event struct {
	ID          int64
	Title       string
	Description string

	Date     time.Time
	RemindAt *time.Time

	Category Category
	Finished bool
}

// Validate checks the fields a caller can get wrong.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if !e.Category.Valid() {
		return ErrUnknownCategory
	}
	return nil
}

// HasReminder reports whether a reminder time is set.
func (e Event) HasReminder() bool {
	return e.RemindAt != nil && !e.RemindAt.IsZero()
}

// Midnight truncates t to 00:00 of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey formats the calendar day of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ParseDate parses YYYY-MM-DD as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
}
