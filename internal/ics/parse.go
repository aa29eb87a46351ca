package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudeng.io/datetime"
	ical "github.com/arran4/golang-ical"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

// ImportResult is the outcome of parsing one iCalendar payload.
type ImportResult struct {
	Events []model.Event
	// Skipped counts components that could not be turned into an event.
	Skipped int
	// Recurring counts components carrying an RRULE; only their first
	// occurrence is imported.
	Recurring int
}

// component is the part of VEVENT and VTODO the importer reads.
type component struct {
	kind   string
	base   *ical.ComponentBase
	alarms []*ical.VAlarm
}

// ParseICS turns the VEVENT and VTODO components of body into events.
//
//   - SUMMARY and DESCRIPTION become title and description.
//   - The event date is the calendar day of DTSTART (DUE for to-dos without
//     DTSTART) in loc. Floating and all-day values are read in loc.
//   - The first CATEGORIES value naming a known category selects it.
//   - STATUS:COMPLETED marks the event finished.
//   - The first VALARM TRIGGER, absolute or relative to the start, becomes
//     the reminder.
//
// Components that cannot be converted are logged and skipped.
func ParseICS(body []byte, loc *time.Location) (ImportResult, error) {
	var res ImportResult
	if len(bytes.TrimSpace(body)) == 0 {
		return res, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("parse calendar: %w", err)
	}

	comps := make([]component, 0)
	for _, ve := range cal.Events() {
		comps = append(comps, component{kind: "VEVENT", base: &ve.ComponentBase, alarms: ve.Alarms()})
	}
	for _, vt := range cal.Todos() {
		comps = append(comps, component{kind: "VTODO", base: &vt.ComponentBase, alarms: vt.Alarms()})
	}

	for _, c := range comps {
		ev, recurring, perr := convert(c, loc)
		if perr != nil {
			res.Skipped++
			appLog.Warn("ics component skipped", "kind", c.kind, "uid", propValue(c.base, ical.ComponentPropertyUniqueId), "err", perr)
			continue
		}
		if recurring {
			res.Recurring++
			appLog.Info("ics recurrence ignored; importing first occurrence", "uid", propValue(c.base, ical.ComponentPropertyUniqueId))
		}
		res.Events = append(res.Events, ev)
	}

	appLog.Info("ics parse completed", "events", len(res.Events), "skipped", res.Skipped, "recurring", res.Recurring)
	return res, nil
}

func convert(c component, loc *time.Location) (model.Event, bool, error) {
	var ev model.Event

	ev.Title = strings.TrimSpace(propValue(c.base, ical.ComponentPropertySummary))
	if ev.Title == "" {
		return ev, false, errors.New("missing SUMMARY")
	}
	ev.Description = strings.TrimSpace(propValue(c.base, ical.ComponentPropertyDescription))

	startProp := c.base.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		startProp = c.base.GetProperty(ical.ComponentPropertyDue)
	}
	if startProp == nil {
		return ev, false, errors.New("missing DTSTART and DUE")
	}
	start, err := propTime(startProp, loc)
	if err != nil {
		return ev, false, fmt.Errorf("start: %w", err)
	}
	start = start.In(loc)
	ev.Date = model.Midnight(start)

	ev.Category = categoryOf(c.base)
	ev.Finished = strings.EqualFold(propValue(c.base, ical.ComponentPropertyStatus), string(ical.ObjectStatusCompleted))

	if len(c.alarms) > 0 {
		at, aerr := triggerTime(&c.alarms[0].ComponentBase, start, loc)
		if aerr != nil {
			appLog.Warn("ics alarm ignored", "uid", propValue(c.base, ical.ComponentPropertyUniqueId), "err", aerr)
		} else {
			ev.RemindAt = &at
		}
	}

	recurring := c.base.GetProperty(ical.ComponentPropertyRrule) != nil
	return ev, recurring, nil
}

func categoryOf(cb *ical.ComponentBase) model.Category {
	for _, p := range cb.GetProperties(ical.ComponentPropertyCategories) {
		for _, v := range strings.Split(p.Value, ",") {
			if c, err := model.ParseCategory(v); err == nil {
				return c
			}
		}
	}
	return model.CategoryOther
}

// triggerTime resolves a VALARM TRIGGER to an instant. Relative triggers are
// offsets from start.
func triggerTime(alarm *ical.ComponentBase, start time.Time, loc *time.Location) (time.Time, error) {
	p := alarm.GetProperty(ical.ComponentPropertyTrigger)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return time.Time{}, errors.New("missing TRIGGER")
	}
	v := strings.TrimSpace(p.Value)
	if strings.EqualFold(firstParam(p, "VALUE"), string(ical.ValueDataTypeDateTime)) || !strings.Contains(v, "P") {
		return propTime(p, loc)
	}
	d, err := datetime.ParseISO8601Period(strings.TrimPrefix(v, "+"))
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(d), nil
}

// propTime parses a DATE or DATE-TIME property. UTC values keep UTC, TZID
// values use that zone and floating or date-only values use loc.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if tzid := firstParam(p, "TZID"); tzid != "" {
		if tz, err := time.LoadLocation(tzid); err == nil {
			loc = tz
		} else {
			appLog.Warn("ics unknown TZID; using local zone", "tzid", tzid)
		}
	}
	return parseICSTime(v, loc)
}

// parseICSTime parses the basic iCalendar date and date-time forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}

func propValue(cb *ical.ComponentBase, prop ical.ComponentProperty) string {
	if p := cb.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func firstParam(p *ical.IANAProperty, key string) string {
	if vs, ok := p.ICalParameters[key]; ok && len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}
