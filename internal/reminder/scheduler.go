// Package reminder registers one-shot reminders keyed by event id and
// delivers them through a Notifier when they come due.
package reminder

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

const defaultNotifyTimeout = 15 * time.Second

// once is a cron.Schedule that fires a single time at `at`.
type once struct {
	at time.Time
}

// Next returns the zero time once `at` has passed, which cron treats as
// "never run again".
func (o once) Next(now time.Time) time.Time {
	if now.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// cronLogger routes cron's own logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// entry tracks the cron registration behind one pending reminder.
type entry struct {
	id cron.EntryID
	at time.Time
}

// Scheduler holds at most one pending reminder per event id.
type Scheduler struct {
	cron     *cron.Cron
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
}

type Option func(*Scheduler)

// WithClock overrides the clock used to decide whether a reminder is in the
// future.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithNotifyTimeout bounds each Notify call.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// NewScheduler creates a stopped scheduler. loc defaults to time.Local.
func NewScheduler(n Notifier, loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if n == nil {
		n = LogNotifier{}
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{})),
		notifier: n,
		timeout:  defaultNotifyTimeout,
		now:      time.Now,
		entries:  make(map[int64]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context that is done once running
// notifications finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Schedule registers ev's reminder, replacing any earlier registration for
// the same id. Events without a reminder, finished events and reminders that
// are not strictly in the future are not registered (an earlier registration
// is still dropped). It reports whether a reminder is now pending.
func (s *Scheduler) Schedule(ev model.Event) bool {
	if !ev.HasReminder() || ev.Finished || !ev.RemindAt.After(s.now()) {
		s.Cancel(ev.ID)
		return false
	}

	at := *ev.RemindAt
	n := notificationFor(ev.ID, ev.Title, ev.Description, at)
	e := &entry{at: at}

	s.mu.Lock()
	old := s.entries[ev.ID]
	e.id = s.cron.Schedule(once{at: at}, cron.FuncJob(func() { s.fire(ev.ID, e, n) }))
	s.entries[ev.ID] = e
	s.mu.Unlock()

	if old != nil {
		s.cron.Remove(old.id)
	}
	appLog.Debug("reminder scheduled", "event_id", ev.ID, "at", at.Format(time.RFC3339))
	return true
}

// Cancel drops the pending reminder for id, if any.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		s.cron.Remove(e.id)
		appLog.Debug("reminder canceled", "event_id", id)
	}
}

// Sync makes the pending set match events exactly: every schedulable event
// is (re)registered and every other pending reminder is canceled. It returns
// the number of pending reminders afterwards.
func (s *Scheduler) Sync(events []model.Event) int {
	keep := make(map[int64]bool, len(events))
	for _, ev := range events {
		if s.Schedule(ev) {
			keep[ev.ID] = true
		}
	}
	for _, id := range s.Pending() {
		if !keep[id] {
			s.Cancel(id)
		}
	}
	return len(keep)
}

// Pending returns the ids with a registered reminder, ascending.
func (s *Scheduler) Pending() []int64 {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// fire runs on cron's job goroutine.
func (s *Scheduler) fire(id int64, e *entry, n Notification) {
	s.mu.Lock()
	current := s.entries[id] == e
	if current {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	s.cron.Remove(e.id)
	if !current {
		// Replaced or canceled while the timer was already running.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, n); err != nil {
		appLog.Error("reminder delivery failed", err, "event_id", id)
		return
	}
	appLog.Info("reminder delivered", "event_id", id, "title", n.Title)
}
