// Package agenda coordinates event writes with reminder registration and
// assembles day, week and month agendas. Every write is followed by a fresh
// read so callers always see what was stored.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lunarcal/internal/calview"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

var ErrInvalidMonth = errors.New("invalid month")

// Repository is the event storage the service writes through.
type Repository interface {
	Insert(ctx context.Context, ev model.Event) (int64, error)
	Update(ctx context.Context, ev model.Event) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (model.Event, error)
	ByDate(ctx context.Context, date time.Time) ([]model.Event, error)
	All(ctx context.Context) ([]model.Event, error)
	Between(ctx context.Context, from, to time.Time) ([]model.Event, error)
	PendingReminders(ctx context.Context, now time.Time) ([]model.Event, error)
}

// Reminders registers one reminder per event id.
type Reminders interface {
	Schedule(ev model.Event) bool
	Cancel(id int64)
	Sync(events []model.Event) int
}

type noReminders struct{}

func (noReminders) Schedule(model.Event) bool { return false }
func (noReminders) Cancel(int64)              {}
func (noReminders) Sync([]model.Event) int    { return 0 }

// Options tune a Service. A nil Location means time.Local and a nil Now
// means time.Now; the zero WeekStart is Sunday.
type Options struct {
	Location  *time.Location
	WeekStart time.Weekday
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	reminders Reminders
	loc       *time.Location
	weekStart time.Weekday
	now       func() time.Time

	// mu serializes writes with reminder resyncs, so a resync never works
	// from a snapshot that misses a concurrent write.
	mu sync.Mutex
}

// New returns a Service. reminders may be nil, in which case events are
// stored without registering reminders.
func New(repo Repository, reminders Reminders, opts Options) *Service {
	if reminders == nil {
		reminders = noReminders{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:      repo,
		reminders: reminders,
		loc:       opts.Location,
		weekStart: opts.WeekStart,
		now:       opts.Now,
	}
}

// Location returns the zone dates are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns local midnight of the current day.
func (s *Service) Today() time.Time {
	return model.Midnight(s.now().In(s.loc))
}

// DayAgenda is the content of a single-day screen.
type DayAgenda struct {
	Title  string
	Day    calview.Day
	Events []model.Event
}

// RangeAgenda is a week or month screen: decorated days plus the events
// dated within [From, To].
type RangeAgenda struct {
	Title  string
	From   time.Time
	To     time.Time
	Days   []calview.Day
	Events []model.Event
}

// Add validates and stores ev, registers its reminder and returns the
// stored event.
func (s *Service) Add(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	ev.Date = s.normalize(ev.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.repo.Insert(ctx, ev)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	// The row exists from here on; a failed read-back must not lose its
	// reminder or report the write as failed.
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		appLog.Warn("event read-back failed; using submitted values", "id", id, "err", err)
		ev.ID = id
		stored = ev
	}
	s.reminders.Schedule(stored)
	appLog.Debug("event added", "id", id, "date", calview.Key(stored.Date))
	return stored, nil
}

// Update replaces the stored event with ev.ID and re-registers its reminder.
func (s *Service) Update(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	ev.Date = s.normalize(ev.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Update(ctx, ev); err != nil {
		return model.Event{}, fmt.Errorf("update event %d: %w", ev.ID, err)
	}
	return s.refresh(ctx, ev.ID)
}

// Delete cancels the reminder and removes the event.
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reminders.Cancel(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	appLog.Debug("event deleted", "id", id)
	return nil
}

// ToggleFinished flips the finished flag. Finishing an event drops its
// reminder; reopening it registers the reminder again if still in the
// future.
func (s *Service) ToggleFinished(ctx context.Context, id int64) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	ev.Finished = !ev.Finished
	if err := s.repo.Update(ctx, ev); err != nil {
		return model.Event{}, fmt.Errorf("update event %d: %w", id, err)
	}
	return s.refresh(ctx, id)
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id int64) (model.Event, error) {
	ev, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	return ev, nil
}

func (s *Service) All(ctx context.Context) ([]model.Event, error) {
	return s.repo.All(ctx)
}

// ByDate returns the events of one day.
func (s *Service) ByDate(ctx context.Context, date time.Time) ([]model.Event, error) {
	return s.repo.ByDate(ctx, s.normalize(date))
}

func (s *Service) Day(ctx context.Context, date time.Time) (DayAgenda, error) {
	date = s.normalize(date)
	events, err := s.repo.ByDate(ctx, date)
	if err != nil {
		return DayAgenda{}, err
	}
	marked := map[string]bool{calview.Key(date): len(events) > 0}
	days := calview.Decorate([]time.Time{date}, 0, marked, s.Today())
	return DayAgenda{
		Title:  calview.DayTitle(date),
		Day:    days[0],
		Events: events,
	}, nil
}

// Week returns the week containing date.
func (s *Service) Week(ctx context.Context, date time.Time) (RangeAgenda, error) {
	dates := calview.WeekDates(s.normalize(date), s.weekStart)
	ra, err := s.rangeAgenda(ctx, dates, 0)
	if err != nil {
		return RangeAgenda{}, err
	}
	ra.Title = calview.WeekTitle(dates)
	return ra, nil
}

// Month returns the month grid; cells of neighbouring months are included
// with InMonth false and their events are listed too.
func (s *Service) Month(ctx context.Context, year int, month time.Month) (RangeAgenda, error) {
	if month < time.January || month > time.December {
		return RangeAgenda{}, fmt.Errorf("%w: %d", ErrInvalidMonth, int(month))
	}
	dates := calview.MonthGrid(year, month, s.weekStart, s.loc)
	ra, err := s.rangeAgenda(ctx, dates, month)
	if err != nil {
		return RangeAgenda{}, err
	}
	ra.Title = calview.MonthTitle(year, month)
	return ra, nil
}

// RestoreReminders registers every pending reminder in storage and drops
// registrations whose events are gone or finished. It returns the number of
// pending reminders.
func (s *Service) RestoreReminders(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.repo.PendingReminders(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("load pending reminders: %w", err)
	}
	n := s.reminders.Sync(pending)
	appLog.Info("reminders restored", "count", n)
	return n, nil
}

func (s *Service) rangeAgenda(ctx context.Context, dates []time.Time, month time.Month) (RangeAgenda, error) {
	if len(dates) == 0 {
		return RangeAgenda{}, errors.New("empty date range")
	}
	from, to := dates[0], dates[len(dates)-1]
	events, err := s.repo.Between(ctx, from, to)
	if err != nil {
		return RangeAgenda{}, err
	}
	marked := make(map[string]bool, len(events))
	for _, ev := range events {
		marked[calview.Key(ev.Date)] = true
	}
	return RangeAgenda{
		From:   from,
		To:     to,
		Days:   calview.Decorate(dates, month, marked, s.Today()),
		Events: events,
	}, nil
}

// refresh reads the stored event back and re-registers its reminder.
func (s *Service) refresh(ctx context.Context, id int64) (model.Event, error) {
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	s.reminders.Cancel(id)
	s.reminders.Schedule(stored)
	return stored, nil
}

// normalize keeps the calendar day of t as written and pins it to midnight
// in the service zone.
func (s *Service) normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
