package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// timeLayout sorts lexicographically for UTC values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	url           TEXT NOT NULL UNIQUE,
	added_at      TEXT NOT NULL,
	last_checked  TEXT,
	last_status   TEXT,
	response_time REAL,
	last_error    TEXT
);

CREATE TABLE IF NOT EXISTS check_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id       INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	checked_at    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time REAL,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_check_history_site_time ON check_history (site_id, checked_at DESC);
`

// Store is the default durable repository, a single SQLite file.
type Store struct {
	mu sync.RWMutex
	db *sqlx.DB
}

// New opens (creating if needed) the database at path and ensures the schema.
func New(ctx context.Context, path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, mapErr("open sqlite", err)
	}
	// Single connection prevents concurrent write contention in SQLite.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, mapErr("apply schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type siteRow struct {
	ID           int64           `db:"id"`
	URL          string          `db:"url"`
	AddedAt      string          `db:"added_at"`
	LastChecked  sql.NullString  `db:"last_checked"`
	LastStatus   sql.NullString  `db:"last_status"`
	ResponseTime sql.NullFloat64 `db:"response_time"`
	LastError    sql.NullString  `db:"last_error"`
}

func (r siteRow) site() (domain.Site, error) {
	added, err := time.Parse(timeLayout, r.AddedAt)
	if err != nil {
		return domain.Site{}, fmt.Errorf("%w: site %d added_at %q", repo.ErrCorrupt, r.ID, r.AddedAt)
	}
	s := domain.Site{
		ID:         r.ID,
		URL:        r.URL,
		CreatedAt:  added,
		LastStatus: domain.Status(r.LastStatus.String),
	}
	if r.LastChecked.Valid {
		t, err := time.Parse(timeLayout, r.LastChecked.String)
		if err != nil {
			return domain.Site{}, fmt.Errorf("%w: site %d last_checked %q", repo.ErrCorrupt, r.ID, r.LastChecked.String)
		}
		s.LastChecked = &t
	}
	if r.ResponseTime.Valid {
		v := r.ResponseTime.Float64
		s.ResponseTime = &v
	}
	if r.LastError.Valid {
		v := r.LastError.String
		s.LastError = &v
	}
	return s, nil
}

type historyRow struct {
	ID           int64           `db:"id"`
	SiteID       int64           `db:"site_id"`
	CheckedAt    string          `db:"checked_at"`
	Status       string          `db:"status"`
	ResponseTime sql.NullFloat64 `db:"response_time"`
	Error        sql.NullString  `db:"error_message"`
}

func (r historyRow) record() (domain.CheckRecord, error) {
	t, err := time.Parse(timeLayout, r.CheckedAt)
	if err != nil {
		return domain.CheckRecord{}, fmt.Errorf("%w: history %d checked_at %q", repo.ErrCorrupt, r.ID, r.CheckedAt)
	}
	rec := domain.CheckRecord{
		ID:        r.ID,
		SiteID:    r.SiteID,
		CheckedAt: t,
		Status:    domain.Status(r.Status),
	}
	if r.ResponseTime.Valid {
		v := r.ResponseTime.Float64
		rec.ResponseTime = &v
	}
	if r.Error.Valid {
		v := r.Error.String
		rec.Error = &v
	}
	return rec, nil
}

const siteColumns = `id, url, added_at, last_checked, last_status, response_time, last_error`

func (s *Store) AddSite(ctx context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (url, added_at) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`,
		url, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return false, mapErr("insert site", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("insert site", err)
	}
	return n > 0, nil
}

func (s *Store) RemoveSite(ctx context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE url = ?`, url)
	if err != nil {
		return false, mapErr("delete site", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("delete site", err)
	}
	return n > 0, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []siteRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+siteColumns+` FROM sites ORDER BY url`); err != nil {
		return nil, mapErr("list sites", err)
	}
	out := make([]domain.Site, 0, len(rows))
	for _, r := range rows {
		site, err := r.site()
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, nil
}

func (s *Store) GetSite(ctx context.Context, url string) (*domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var r siteRow
	err := s.db.GetContext(ctx, &r, `SELECT `+siteColumns+` FROM sites WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, mapErr("get site", err)
	}
	site, err := r.site()
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Store) RecordOutcome(ctx context.Context, url string, out domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr("begin", err)
	}
	defer tx.Rollback()

	var siteID int64
	err = tx.GetContext(ctx, &siteID, `SELECT id FROM sites WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		return mapErr("lookup site", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`UPDATE sites SET last_checked = ?, last_status = ?, response_time = ?, last_error = ? WHERE id = ?`,
		now, string(out.Status), out.Latency, out.Error, siteID); err != nil {
		return mapErr("update site", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO check_history (site_id, checked_at, status, response_time, error_message) VALUES (?, ?, ?, ?, ?)`,
		siteID, now, string(out.Status), out.Latency, out.Error); err != nil {
		return mapErr("insert history", err)
	}
	if err := tx.Commit(); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, url string, limit int) ([]domain.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT h.id, h.site_id, h.checked_at, h.status, h.response_time, h.error_message
  FROM check_history h
  JOIN sites s ON s.id = h.site_id
 WHERE s.url = ?
 ORDER BY h.checked_at DESC, h.id DESC
 LIMIT ?`, url, repo.Limit(limit))
	if err != nil {
		return nil, mapErr("list history", err)
	}
	out := make([]domain.CheckRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, mapErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM check_history`); err != nil {
		return 0, mapErr("clear history", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sites`)
	if err != nil {
		return 0, mapErr("clear sites", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr("clear sites", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, mapErr("commit", err)
	}
	return int(n), nil
}

// mapErr wraps err with op, tagging SQLite corruption codes as repo.ErrCorrupt.
func mapErr(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%s: %w: %v", op, repo.ErrCorrupt, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ repo.Store = (*Store)(nil)
