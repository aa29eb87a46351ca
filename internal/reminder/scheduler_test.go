package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	got  []Notification
	fail error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.fail
}

func (r *recorder) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func at(t time.Time) *time.Time { return &t }

func TestOnceSchedule(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	o := once{at: now.Add(time.Minute)}
	assert.Equal(t, now.Add(time.Minute), o.Next(now))
	assert.True(t, o.Next(now.Add(time.Minute)).IsZero())
	assert.True(t, o.Next(now.Add(time.Hour)).IsZero())
}

func TestScheduleSkipsIneligible(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	s := NewScheduler(&recorder{}, time.UTC, WithClock(func() time.Time { return now }))

	assert.False(t, s.Schedule(model.Event{ID: 1, Title: "no reminder"}))
	assert.False(t, s.Schedule(model.Event{ID: 2, RemindAt: at(now)}))
	assert.False(t, s.Schedule(model.Event{ID: 3, RemindAt: at(now.Add(-time.Minute))}))
	assert.False(t, s.Schedule(model.Event{ID: 4, RemindAt: at(now.Add(time.Hour)), Finished: true}))
	assert.Empty(t, s.Pending())

	assert.True(t, s.Schedule(model.Event{ID: 5, RemindAt: at(now.Add(time.Hour))}))
	assert.Equal(t, []int64{5}, s.Pending())
}

func TestRescheduleReplacesAndCancel(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	s := NewScheduler(&recorder{}, time.UTC, WithClock(func() time.Time { return now }))

	require.True(t, s.Schedule(model.Event{ID: 7, RemindAt: at(now.Add(time.Hour))}))
	require.True(t, s.Schedule(model.Event{ID: 7, RemindAt: at(now.Add(2 * time.Hour))}))
	assert.Equal(t, []int64{7}, s.Pending())
	assert.Len(t, s.cron.Entries(), 1)

	// Marking it finished drops the registration.
	assert.False(t, s.Schedule(model.Event{ID: 7, RemindAt: at(now.Add(2 * time.Hour)), Finished: true}))
	assert.Empty(t, s.Pending())
	assert.Empty(t, s.cron.Entries())

	require.True(t, s.Schedule(model.Event{ID: 8, RemindAt: at(now.Add(time.Hour))}))
	s.Cancel(8)
	s.Cancel(8)
	assert.Empty(t, s.Pending())
}

func TestSync(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	s := NewScheduler(&recorder{}, time.UTC, WithClock(func() time.Time { return now }))

	require.True(t, s.Schedule(model.Event{ID: 1, RemindAt: at(now.Add(time.Hour))}))
	require.True(t, s.Schedule(model.Event{ID: 2, RemindAt: at(now.Add(time.Hour))}))

	n := s.Sync([]model.Event{
		{ID: 2, RemindAt: at(now.Add(3 * time.Hour))},
		{ID: 3, RemindAt: at(now.Add(time.Minute))},
		{ID: 4, RemindAt: at(now.Add(-time.Minute))},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{2, 3}, s.Pending())
}

func TestReminderFires(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec, time.UTC)
	s.Start()
	defer s.Stop()

	when := time.Now().Add(1500 * time.Millisecond)
	require.True(t, s.Schedule(model.Event{ID: 42, Title: "", Description: " ", RemindAt: &when}))

	require.Eventually(t, func() bool { return len(rec.notifications()) == 1 }, 5*time.Second, 50*time.Millisecond)

	got := rec.notifications()[0]
	assert.Equal(t, int64(42), got.EventID)
	assert.Equal(t, "日程提醒", got.Title)
	assert.Equal(t, "点击查看详情", got.Body)
	assert.True(t, got.At.Equal(when))

	require.Eventually(t, func() bool { return len(s.Pending()) == 0 }, time.Second, 20*time.Millisecond)
	assert.Empty(t, s.cron.Entries())
}

func TestDeliveryErrorIsNotRetried(t *testing.T) {
	rec := &recorder{fail: errors.New("boom")}
	s := NewScheduler(rec, time.UTC)
	s.Start()
	defer s.Stop()

	when := time.Now().Add(1200 * time.Millisecond)
	require.True(t, s.Schedule(model.Event{ID: 1, Title: "喝水", RemindAt: &when}))

	require.Eventually(t, func() bool { return len(rec.notifications()) == 1 }, 5*time.Second, 50*time.Millisecond)
	time.Sleep(1200 * time.Millisecond)
	assert.Len(t, rec.notifications(), 1)
	assert.Empty(t, s.Pending())
}

func TestCanceledReminderDoesNotFire(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec, time.UTC)
	s.Start()
	defer s.Stop()

	when := time.Now().Add(time.Second)
	require.True(t, s.Schedule(model.Event{ID: 9, Title: "x", RemindAt: &when}))
	s.Cancel(9)

	time.Sleep(2 * time.Second)
	assert.Empty(t, rec.notifications())
}
