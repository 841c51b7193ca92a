package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sites (
  id            BIGSERIAL PRIMARY KEY,
  url           TEXT NOT NULL UNIQUE,
  added_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_checked  TIMESTAMPTZ NULL,
  last_status   TEXT NULL,
  response_time DOUBLE PRECISION NULL,
  last_error    TEXT NULL
);

CREATE TABLE IF NOT EXISTS check_history (
  id            BIGSERIAL PRIMARY KEY,
  site_id       BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
  checked_at    TIMESTAMPTZ NOT NULL,
  status        TEXT NOT NULL,
  response_time DOUBLE PRECISION NULL,
  error_message TEXT NULL
);

CREATE INDEX IF NOT EXISTS idx_check_history_site_time ON check_history (site_id, checked_at DESC);
`

// Store keeps sites and history in Postgres. Each mutation runs in its own
// transaction, which is the serialization point for concurrent readers.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, mapErr("apply schema", err)
	}
	log.Debug("postgres_store_ready")
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// now is truncated to the column precision so values read back compare equal.
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func (s *Store) AddSite(ctx context.Context, url string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO sites (url, added_at) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING`,
		url, now())
	if err != nil {
		return false, mapErr("insert site", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RemoveSite(ctx context.Context, url string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE url = $1`, url)
	if err != nil {
		return false, mapErr("delete site", err)
	}
	return tag.RowsAffected() > 0, nil
}

const siteColumns = `id, url, added_at, last_checked, last_status, response_time, last_error`

func scanSite(row pgx.Row) (domain.Site, error) {
	var (
		site   domain.Site
		status *string
	)
	if err := row.Scan(&site.ID, &site.URL, &site.CreatedAt, &site.LastChecked, &status, &site.ResponseTime, &site.LastError); err != nil {
		return domain.Site{}, err
	}
	if status != nil {
		site.LastStatus = domain.Status(*status)
	}
	return site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY url`)
	if err != nil {
		return nil, mapErr("list sites", err)
	}
	defer rows.Close()

	out := make([]domain.Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, mapErr("scan site", err)
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list sites", err)
	}
	return out, nil
}

func (s *Store) GetSite(ctx context.Context, url string) (*domain.Site, error) {
	site, err := scanSite(s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = $1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, mapErr("get site", err)
	}
	return &site, nil
}

func (s *Store) RecordOutcome(ctx context.Context, url string, out domain.Outcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	ts := now()
	var siteID int64
	err = tx.QueryRow(ctx,
		`UPDATE sites
		    SET last_checked = $2, last_status = $3, response_time = $4, last_error = $5
		  WHERE url = $1
		RETURNING id`,
		url, ts, string(out.Status), out.Latency, out.Error).Scan(&siteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		return mapErr("update site", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO check_history (site_id, checked_at, status, response_time, error_message)
		 VALUES ($1, $2, $3, $4, $5)`,
		siteID, ts, string(out.Status), out.Latency, out.Error); err != nil {
		return mapErr("insert history", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, url string, limit int) ([]domain.CheckRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT h.id, h.site_id, h.checked_at, h.status, h.response_time, h.error_message
  FROM check_history h
  JOIN sites s ON s.id = h.site_id
 WHERE s.url = $1
 ORDER BY h.checked_at DESC, h.id DESC
 LIMIT $2`, url, repo.Limit(limit))
	if err != nil {
		return nil, mapErr("list history", err)
	}
	defer rows.Close()

	out := make([]domain.CheckRecord, 0)
	for rows.Next() {
		var (
			rec    domain.CheckRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.SiteID, &rec.CheckedAt, &status, &rec.ResponseTime, &rec.Error); err != nil {
			return nil, mapErr("scan history", err)
		}
		rec.Status = domain.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list history", err)
	}
	return out, nil
}

func (s *Store) ClearAll(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, mapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM check_history`); err != nil {
		return 0, mapErr("clear history", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM sites`)
	if err != nil {
		return 0, mapErr("clear sites", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, mapErr("commit", err)
	}
	s.log.Info("sites_cleared", zap.Int64("count", tag.RowsAffected()))
	return int(tag.RowsAffected()), nil
}

// mapErr wraps err with op; SQLSTATE class XX (internal error, data or
// index corruption) becomes repo.ErrCorrupt.
func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "XX") {
		return fmt.Errorf("%s: %w: %v", op, repo.ErrCorrupt, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
