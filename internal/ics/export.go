// Package ics converts events to and from iCalendar data and downloads
// remote calendars.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"lunarcal/internal/model"
)

const (
	productID = "-//lunarcal//lunarcal//ZH"
	uidPrefix = "lunarcal-"
)

// UID returns the iCalendar UID used for an event id.
func UID(id int64) string {
	return uidPrefix + strconv.FormatInt(id, 10)
}

// IDFromUID reverses UID. ok is false for UIDs not produced by this package.
func IDFromUID(uid string) (int64, bool) {
	rest, found := strings.CutPrefix(uid, uidPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Build renders events as a calendar of all-day VTODOs. stamp is written as
// DTSTAMP on every component.
func Build(events []model.Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("lunarcal")

	for _, ev := range events {
		todo := cal.AddTodo(UID(ev.ID))
		todo.SetDtStampTime(stamp)
		todo.SetSummary(ev.Title)
		if ev.Description != "" {
			todo.SetDescription(ev.Description)
		}
		todo.SetAllDayStartAt(ev.Date)
		todo.SetAllDayDueAt(ev.Date, ical.WithValue(string(ical.ValueDataTypeDate)))
		todo.AddCategory(ev.Category.Key())
		if ev.Finished {
			todo.SetStatus(ical.ObjectStatusCompleted)
		} else {
			todo.SetStatus(ical.ObjectStatusNeedsAction)
		}

		if ev.HasReminder() {
			alarm := todo.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(ev.RemindAt.UTC().Format("20060102T150405Z"), ical.WithValue(string(ical.ValueDataTypeDateTime)))
			alarm.SetProperty(ical.ComponentPropertyDescription, ev.Title)
		}
	}
	return cal
}

// Export writes events to w as an iCalendar document.
func Export(w io.Writer, events []model.Event, stamp time.Time) error {
	if err := Build(events, stamp).SerializeTo(w); err != nil {
		return fmt.Errorf("serialize calendar: %w", err)
	}
	return nil
}
