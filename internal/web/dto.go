package web

import (
	"strings"
	"time"

	"lunarcal/internal/agenda"
	"lunarcal/internal/calview"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

type eventDTO struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Date          string     `json:"date"`
	Lunar         string     `json:"lunar,omitempty"`
	RemindAt      *time.Time `json:"remind_at,omitempty"`
	Category      string     `json:"category"`
	CategoryName  string     `json:"category_name"`
	CategoryColor string     `json:"category_color"`
	Finished      bool       `json:"finished"`
}

func toEventDTO(ev model.Event) eventDTO {
	dto := eventDTO{
		ID:            ev.ID,
		Title:         ev.Title,
		Description:   ev.Description,
		Date:          calview.Key(ev.Date),
		RemindAt:      ev.RemindAt,
		Category:      ev.Category.Key(),
		CategoryName:  ev.Category.Name(),
		CategoryColor: ev.Category.Color(),
		Finished:      ev.Finished,
	}
	if ld, err := lunar.FromTime(ev.Date); err == nil {
		dto.Lunar = ld.Label()
	}
	return dto
}

func toEventDTOs(events []model.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventDTO(ev))
	}
	return out
}

// eventInput is the body of POST /api/events and PUT /api/events/{id}.
// An empty category means "other".
type eventInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
	RemindAt    *time.Time `json:"remind_at"`
	Category    string     `json:"category"`
	Finished    bool       `json:"finished"`
}

func (in eventInput) toEvent(loc *time.Location) (model.Event, error) {
	date, err := model.ParseDate(in.Date, loc)
	if err != nil {
		return model.Event{}, badRequest("invalid date %q, want YYYY-MM-DD", in.Date)
	}
	cat := model.CategoryOther
	if strings.TrimSpace(in.Category) != "" {
		if cat, err = model.ParseCategory(in.Category); err != nil {
			return model.Event{}, err
		}
	}
	return model.Event{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Date:        date,
		RemindAt:    in.RemindAt,
		Category:    cat,
		Finished:    in.Finished,
	}, nil
}

type dayDTO struct {
	Key string `json:"key"`
	calview.Day
}

func toDayDTOs(days []calview.Day) []dayDTO {
	out := make([]dayDTO, 0, len(days))
	for _, d := range days {
		out = append(out, dayDTO{Key: calview.Key(d.Date), Day: d})
	}
	return out
}

type dayResponse struct {
	Title  string     `json:"title"`
	Day    dayDTO     `json:"day"`
	Events []eventDTO `json:"events"`
}

func toDayResponse(a agenda.DayAgenda) dayResponse {
	return dayResponse{
		Title:  a.Title,
		Day:    dayDTO{Key: calview.Key(a.Day.Date), Day: a.Day},
		Events: toEventDTOs(a.Events),
	}
}

type rangeResponse struct {
	Title  string     `json:"title"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	Days   []dayDTO   `json:"days"`
	Events []eventDTO `json:"events"`
}

func toRangeResponse(a agenda.RangeAgenda) rangeResponse {
	return rangeResponse{
		Title:  a.Title,
		From:   calview.Key(a.From),
		To:     calview.Key(a.To),
		Days:   toDayDTOs(a.Days),
		Events: toEventDTOs(a.Events),
	}
}

type lunarResponse struct {
	Date     string     `json:"date"`
	Lunar    lunar.Date `json:"lunar"`
	Label    string     `json:"label"`
	YearName string     `json:"year_name"`
	Zodiac   string     `json:"zodiac"`
	Weekday  string     `json:"weekday"`
}

type lunarYearResponse struct {
	lunar.Year
	NewYear  string `json:"new_year"`
	YearName string `json:"year_name"`
}

type solarResponse struct {
	Lunar lunar.Date `json:"lunar"`
	Label string     `json:"label"`
	Date  string     `json:"date"`
}

type importResponse struct {
	Imported  int        `json:"imported"`
	Skipped   int        `json:"skipped"`
	Recurring int        `json:"recurring"`
	Failed    int        `json:"failed"`
	Events    []eventDTO `json:"events"`
}
