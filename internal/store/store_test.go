package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/model"
)

var cst = time.FixedZone("CST", 8*3600)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"), cst)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, cst)
}

func TestInsertGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	remind := time.Date(2024, 6, 10, 8, 30, 0, 0, cst)
	id, err := s.Insert(ctx, model.Event{
		Title:       "端午节",
		Description: "包粽子",
		Date:        day(2024, 6, 10),
		RemindAt:    &remind,
		Category:    model.CategoryLife,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "端午节", got.Title)
	assert.Equal(t, "包粽子", got.Description)
	assert.True(t, got.Date.Equal(day(2024, 6, 10)))
	require.NotNil(t, got.RemindAt)
	assert.True(t, got.RemindAt.Equal(remind))
	assert.Equal(t, model.CategoryLife, got.Category)
	assert.False(t, got.Finished)

	_, err = s.Get(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, model.Event{Title: "写周报", Date: day(2024, 6, 14)})
	require.NoError(t, err)

	ev, err := s.Get(ctx, id)
	require.NoError(t, err)
	ev.Finished = true
	ev.Category = model.CategoryWork
	ev.Date = day(2024, 6, 15)
	require.NoError(t, s.Update(ctx, ev))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Finished)
	assert.Nil(t, got.RemindAt)
	assert.Equal(t, "2024-06-15", model.DateKey(got.Date))

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, ev), ErrNotFound)
}

func TestQueries(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, cst)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	later := now.Add(48 * time.Hour)

	seed := []model.Event{
		{Title: "c", Date: day(2024, 6, 12), RemindAt: &later},
		{Title: "a", Date: day(2024, 6, 10), RemindAt: &past},
		{Title: "b", Date: day(2024, 6, 10), RemindAt: &future},
		{Title: "d", Date: day(2024, 7, 1), RemindAt: &future, Finished: true},
		{Title: "e", Date: day(2024, 5, 31)},
	}
	for _, ev := range seed {
		_, err := s.Insert(ctx, ev)
		require.NoError(t, err)
	}

	byDate, err := s.ByDate(ctx, day(2024, 6, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, titles(byDate))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, titles(all))

	between, err := s.Between(ctx, day(2024, 6, 1), day(2024, 6, 30))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, titles(between))

	pending, err := s.PendingReminders(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, titles(pending))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	s, err := Open(path, cst)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), model.Event{Title: "x", Date: day(2030, 2, 3)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, cst)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, path, s.Path())
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}

func titles(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Title)
	}
	return out
}
