package agenda

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/calview"
	"lunarcal/internal/model"
)

var (
	cst         = time.FixedZone("CST", 8*3600)
	errNotFound = errors.New("not found")
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]model.Event
}

func newMemRepo() *memRepo {
	return &memRepo{events: make(map[int64]model.Event)}
}

func (r *memRepo) Insert(_ context.Context, ev model.Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ev.ID = r.nextID
	r.events[ev.ID] = ev
	return ev.ID, nil
}

func (r *memRepo) Update(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.ID]; !ok {
		return errNotFound
	}
	r.events[ev.ID] = ev
	return nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return errNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return model.Event{}, errNotFound
	}
	return ev, nil
}

func (r *memRepo) filter(keep func(model.Event) bool) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, 0)
	for _, ev := range r.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ki, kj := model.DateKey(out[i].Date), model.DateKey(out[j].Date); ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memRepo) ByDate(_ context.Context, date time.Time) ([]model.Event, error) {
	key := model.DateKey(date)
	return r.filter(func(ev model.Event) bool { return model.DateKey(ev.Date) == key }), nil
}

func (r *memRepo) All(context.Context) ([]model.Event, error) {
	return r.filter(func(model.Event) bool { return true }), nil
}

func (r *memRepo) Between(_ context.Context, from, to time.Time) ([]model.Event, error) {
	lo, hi := model.DateKey(from), model.DateKey(to)
	return r.filter(func(ev model.Event) bool {
		k := model.DateKey(ev.Date)
		return k >= lo && k <= hi
	}), nil
}

func (r *memRepo) PendingReminders(_ context.Context, now time.Time) ([]model.Event, error) {
	return r.filter(func(ev model.Event) bool {
		return ev.HasReminder() && ev.RemindAt.After(now) && !ev.Finished
	}), nil
}

// fakeReminders mirrors the scheduling rules of the real scheduler.
type fakeReminders struct {
	now     time.Time
	pending map[int64]time.Time
}

func newFakeReminders(now time.Time) *fakeReminders {
	return &fakeReminders{now: now, pending: make(map[int64]time.Time)}
}

func (f *fakeReminders) Schedule(ev model.Event) bool {
	delete(f.pending, ev.ID)
	if !ev.HasReminder() || ev.Finished || !ev.RemindAt.After(f.now) {
		return false
	}
	f.pending[ev.ID] = *ev.RemindAt
	return true
}

func (f *fakeReminders) Cancel(id int64) { delete(f.pending, id) }

func (f *fakeReminders) Sync(events []model.Event) int {
	f.pending = make(map[int64]time.Time)
	for _, ev := range events {
		f.Schedule(ev)
	}
	return len(f.pending)
}

func (f *fakeReminders) ids() []int64 {
	ids := make([]int64, 0, len(f.pending))
	for id := range f.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, cst)

func newService() (*Service, *memRepo, *fakeReminders) {
	repo := newMemRepo()
	rem := newFakeReminders(now)
	svc := New(repo, rem, Options{
		Location:  cst,
		WeekStart: time.Monday,
		Now:       func() time.Time { return now },
	})
	return svc, repo, rem
}

func at(t time.Time) *time.Time { return &t }

func TestAddSchedulesReminder(t *testing.T) {
	svc, _, rem := newService()
	ctx := context.Background()

	ev, err := svc.Add(ctx, model.Event{
		Title:    "端午节",
		Date:     time.Date(2024, 6, 10, 17, 45, 0, 0, cst),
		RemindAt: at(now.Add(time.Hour)),
		Category: model.CategoryLife,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, cst), ev.Date)
	assert.Equal(t, []int64{1}, rem.ids())

	_, err = svc.Add(ctx, model.Event{Title: "过去的提醒", Date: now, RemindAt: at(now.Add(-time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, rem.ids())

	_, err = svc.Add(ctx, model.Event{Title: " ", Date: now})
	assert.ErrorIs(t, err, model.ErrEmptyTitle)
}

func TestToggleFinishedCancelsAndRestores(t *testing.T) {
	svc, _, rem := newService()
	ctx := context.Background()

	ev, err := svc.Add(ctx, model.Event{Title: "交作业", Date: now, RemindAt: at(now.Add(time.Hour))})
	require.NoError(t, err)

	done, err := svc.ToggleFinished(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, done.Finished)
	assert.Empty(t, rem.ids())

	reopened, err := svc.ToggleFinished(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, reopened.Finished)
	assert.Equal(t, []int64{ev.ID}, rem.ids())

	_, err = svc.ToggleFinished(ctx, 99)
	assert.ErrorIs(t, err, errNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _, rem := newService()
	ctx := context.Background()

	ev, err := svc.Add(ctx, model.Event{Title: "a", Date: now, RemindAt: at(now.Add(time.Hour))})
	require.NoError(t, err)

	ev.Title = "b"
	ev.RemindAt = nil
	updated, err := svc.Update(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Title)
	assert.Empty(t, rem.ids())

	updated.RemindAt = at(now.Add(2 * time.Hour))
	_, err = svc.Update(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, []int64{ev.ID}, rem.ids())

	require.NoError(t, svc.Delete(ctx, ev.ID))
	assert.Empty(t, rem.ids())
	assert.ErrorIs(t, svc.Delete(ctx, ev.ID), errNotFound)

	_, err = svc.Update(ctx, model.Event{ID: 42, Title: "x"})
	assert.ErrorIs(t, err, errNotFound)
}

func TestDayAgenda(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	for _, title := range []string{"早会", "写代码"} {
		_, err := svc.Add(ctx, model.Event{Title: title, Date: now})
		require.NoError(t, err)
	}
	_, err := svc.Add(ctx, model.Event{Title: "明天", Date: now.AddDate(0, 0, 1)})
	require.NoError(t, err)

	day, err := svc.Day(ctx, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024年06月10日  周一", day.Title)
	assert.Equal(t, "五月初五", day.Day.Lunar)
	assert.True(t, day.Day.Today)
	assert.True(t, day.Day.HasEvents)
	require.Len(t, day.Events, 2)
	assert.Equal(t, "早会", day.Events[0].Title)

	empty, err := svc.Day(ctx, now.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.False(t, empty.Day.HasEvents)
	assert.Empty(t, empty.Events)
}

func TestWeekAndMonth(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	for _, d := range []time.Time{
		time.Date(2024, 5, 27, 0, 0, 0, 0, cst),
		time.Date(2024, 6, 12, 0, 0, 0, 0, cst),
		time.Date(2024, 6, 30, 0, 0, 0, 0, cst),
		time.Date(2024, 7, 1, 0, 0, 0, 0, cst),
	} {
		_, err := svc.Add(ctx, model.Event{Title: calview.Key(d), Date: d})
		require.NoError(t, err)
	}

	week, err := svc.Week(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "2024年06月  06/10–06/16", week.Title)
	require.Len(t, week.Days, 7)
	require.Len(t, week.Events, 1)
	assert.True(t, week.Days[2].HasEvents)
	assert.True(t, week.Days[0].Today)

	month, err := svc.Month(ctx, 2024, time.June)
	require.NoError(t, err)
	assert.Equal(t, "2024年06月", month.Title)
	require.Len(t, month.Days, 35)
	assert.Equal(t, "2024-05-27", calview.Key(month.From))
	assert.Equal(t, "2024-06-30", calview.Key(month.To))
	assert.False(t, month.Days[0].InMonth)
	assert.True(t, month.Days[0].HasEvents)
	assert.Len(t, month.Events, 3)

	_, err = svc.Month(ctx, 2024, 13)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestRestoreReminders(t *testing.T) {
	svc, repo, rem := newService()
	ctx := context.Background()

	_, _ = repo.Insert(ctx, model.Event{Title: "future", Date: now, RemindAt: at(now.Add(time.Hour))})
	_, _ = repo.Insert(ctx, model.Event{Title: "past", Date: now, RemindAt: at(now.Add(-time.Hour))})
	_, _ = repo.Insert(ctx, model.Event{Title: "done", Date: now, RemindAt: at(now.Add(time.Hour)), Finished: true})
	rem.pending[77] = now.Add(time.Hour)

	n, err := svc.RestoreReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, rem.ids())
}

func TestNilReminders(t *testing.T) {
	svc := New(newMemRepo(), nil, Options{Location: cst})
	ev, err := svc.Add(context.Background(), model.Event{Title: "x", Date: now, RemindAt: at(now.Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, time.Sunday, svc.weekStart)
}

// gatedRepo holds PendingReminders until release is closed.
type gatedRepo struct {
	*memRepo
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) PendingReminders(ctx context.Context, now time.Time) ([]model.Event, error) {
	close(r.entered)
	<-r.release
	return r.memRepo.PendingReminders(ctx, now)
}

func TestRestoreKeepsConcurrentAdd(t *testing.T) {
	repo := &gatedRepo{memRepo: newMemRepo(), entered: make(chan struct{}), release: make(chan struct{})}
	rem := newFakeReminders(now)
	svc := New(repo, rem, Options{Location: cst, Now: func() time.Time { return now }})
	ctx := context.Background()

	restored := make(chan error, 1)
	go func() {
		_, err := svc.RestoreReminders(ctx)
		restored <- err
	}()
	<-repo.entered

	added := make(chan error, 1)
	go func() {
		_, err := svc.Add(ctx, model.Event{Title: "新提醒", Date: now, RemindAt: at(now.Add(time.Hour))})
		added <- err
	}()

	select {
	case <-added:
		t.Fatal("add completed while a resync was reading its snapshot")
	case <-time.After(50 * time.Millisecond):
	}

	close(repo.release)
	require.NoError(t, <-restored)
	require.NoError(t, <-added)
	assert.Equal(t, []int64{1}, rem.ids())
}

// flakyGetRepo fails the next `failures` Get calls.
type flakyGetRepo struct {
	*memRepo
	failures int
}

func (r *flakyGetRepo) Get(ctx context.Context, id int64) (model.Event, error) {
	if r.failures > 0 {
		r.failures--
		return model.Event{}, errors.New("disk I/O error")
	}
	return r.memRepo.Get(ctx, id)
}

func TestAddSurvivesFailedReadBack(t *testing.T) {
	repo := &flakyGetRepo{memRepo: newMemRepo(), failures: 1}
	rem := newFakeReminders(now)
	svc := New(repo, rem, Options{Location: cst, Now: func() time.Time { return now }})
	ctx := context.Background()

	ev, err := svc.Add(ctx, model.Event{Title: "交房租", Date: now, RemindAt: at(now.Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, "交房租", ev.Title)
	assert.Equal(t, []int64{1}, rem.ids())

	stored, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "交房租", stored.Title)
}
