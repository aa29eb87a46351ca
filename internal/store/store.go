// Package store persists events in a single SQLite table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lunarcal/internal/model"
)

const schemaVersion = 2

var ErrNotFound = errors.New("event not found")

// Store is the event accessor. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	loc  *time.Location
}

// Open opens (creating if needed) the database at path and migrates it.
// Dates are interpreted in loc (time.Local if nil).
func Open(path string, loc *time.Location) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if loc == nil {
		loc = time.Local
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across pool connections.
	db.SetMaxOpenConns(1)

	if err := initDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	return &Store{db: db, path: path, loc: loc}, nil
}

func initDB(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL,
	remind_at INTEGER,
	category INTEGER NOT NULL DEFAULT 0,
	finished INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
	CREATE INDEX IF NOT EXISTS idx_events_remind_at ON events(remind_at);
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores ev and returns the assigned id. ev.ID is ignored.
func (s *Store) Insert(ctx context.Context, ev model.Event) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO events (title, description, date, remind_at, category, finished)
	VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Title, ev.Description, s.dateKey(ev.Date), remindValue(ev), int(ev.Category), ev.Finished)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Update(ctx context.Context, ev model.Event) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE events
	SET title = ?, description = ?, date = ?, remind_at = ?, category = ?, finished = ?
	WHERE id = ?`,
		ev.Title, ev.Description, s.dateKey(ev.Date), remindValue(ev), int(ev.Category), ev.Finished, ev.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) Get(ctx context.Context, id int64) (model.Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvents+` WHERE id = ?`, id)
	ev, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

// ByDate returns the events of one calendar day in insertion order.
func (s *Store) ByDate(ctx context.Context, date time.Time) ([]model.Event, error) {
	return s.query(ctx, selectEvents+` WHERE date = ? ORDER BY id ASC`, s.dateKey(date))
}

// All returns every event ordered by date.
func (s *Store) All(ctx context.Context) ([]model.Event, error) {
	return s.query(ctx, selectEvents+` ORDER BY date ASC, id ASC`)
}

// Between returns the events dated within [from, to], both days inclusive.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return s.query(ctx, selectEvents+` WHERE date >= ? AND date <= ? ORDER BY date ASC, id ASC`,
		s.dateKey(from), s.dateKey(to))
}

// PendingReminders returns unfinished events whose reminder is after now.
func (s *Store) PendingReminders(ctx context.Context, now time.Time) ([]model.Event, error) {
	return s.query(ctx, selectEvents+` WHERE remind_at IS NOT NULL AND remind_at > ? AND finished = 0
	ORDER BY remind_at ASC`, now.UnixMilli())
}

const selectEvents = `SELECT id, title, description, date, remind_at, category, finished FROM events`

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (model.Event, error) {
	var (
		ev       model.Event
		date     string
		remindAt sql.NullInt64
		category int
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &date, &remindAt, &category, &ev.Finished); err != nil {
		return model.Event{}, err
	}
	d, err := model.ParseDate(date, s.loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %d: bad date %q: %w", ev.ID, date, err)
	}
	ev.Date = d
	ev.Category = model.Category(category)
	if remindAt.Valid {
		t := time.UnixMilli(remindAt.Int64).In(s.loc)
		ev.RemindAt = &t
	}
	return ev, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// dateKey uses the calendar day of t as written, without converting zones.
func (s *Store) dateKey(t time.Time) string {
	return model.DateKey(t)
}

func remindValue(ev model.Event) any {
	if !ev.HasReminder() {
		return nil
	}
	return ev.RemindAt.UnixMilli()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
