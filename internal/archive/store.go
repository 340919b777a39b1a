// Package archive keeps a bounded history of reported quantile summaries in
// sqlite. It stores what was reported, never the histogram itself.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/saveenergy/openquantile/internal/logging"
	"github.com/saveenergy/openquantile/pkg/types"
)

// DefaultFile is the archive file name inside a data directory.
const DefaultFile = "openquantile.db"

const (
	defaultRetention = 30 * 24 * time.Hour
	cleanupInterval  = 1 * time.Hour
)

type Store struct {
	db        *sql.DB
	maxRows   int
	retention time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Store at construction.
type Option func(*Store)

// WithRetention sets how long summaries are kept. Non-positive values keep
// the default.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

func New(dbPath string, maxRows int, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(3)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite requires explicit PRAGMAs (not query-string params)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:        db,
		maxRows:   maxRows,
		retention: defaultRetention,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cleanup()

	s.wg.Add(1)
	go s.cleanupLoop()

	return s, nil
}

func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if err := s.db.Close(); err != nil {
			logging.Warn("archive: close failed", logging.F("error", err))
		}
	})
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		timer TEXT NOT NULL,
		layout TEXT NOT NULL,
		min_value INTEGER NOT NULL,
		max_value INTEGER NOT NULL,
		bucket_count INTEGER NOT NULL,
		total INTEGER NOT NULL,
		underflow INTEGER NOT NULL DEFAULT 0,
		overflow INTEGER NOT NULL DEFAULT 0,
		median REAL,
		p90 REAL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_summaries_timer_created ON summaries(timer, created_at)`)
	return err
}

// Save stores a summary and returns its new ID. A zero CreatedAt is set to
// now.
func (s *Store) Save(sum types.Summary) (string, error) {
	id := uuid.New().String()
	created := sum.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO summaries (id, timer, layout, min_value, max_value, bucket_count,
			total, underflow, overflow, median, p90, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sum.Timer, sum.Layout, sum.Min, sum.Max, sum.BucketCount,
		int64(sum.Total), int64(sum.Underflow), int64(sum.Overflow),
		nullFloat(sum.Median), nullFloat(sum.P90), created.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert summary: %w", err)
	}
	return id, nil
}

const selectColumns = `SELECT id, timer, layout, min_value, max_value, bucket_count,
	total, underflow, overflow, median, p90, created_at FROM summaries`

func (s *Store) Get(id string) (*types.Summary, error) {
	sum, err := scanSummary(s.db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	return sum, nil
}

// List returns up to limit summaries, newest first. An empty timer lists all
// timers.
func (s *Store) List(timer string, limit int) ([]types.Summary, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if timer == "" {
		rows, err = s.db.Query(selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(selectColumns+` WHERE timer = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, timer, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []types.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row scanner) (*types.Summary, error) {
	var (
		sum                        types.Summary
		total, underflow, overflow int64
		median, p90                sql.NullFloat64
	)
	err := row.Scan(&sum.ID, &sum.Timer, &sum.Layout, &sum.Min, &sum.Max, &sum.BucketCount,
		&total, &underflow, &overflow, &median, &p90, &sum.CreatedAt)
	if err != nil {
		return nil, err
	}
	sum.Total = uint64(total)
	sum.Underflow = uint64(underflow)
	sum.Overflow = uint64(overflow)
	if median.Valid {
		sum.Median = &median.Float64
	}
	if p90.Valid {
		sum.P90 = &p90.Float64
	}
	return &sum, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (s *Store) cleanup() {
	cutoff := time.Now().UTC().Add(-s.retention)
	res, err := s.db.Exec(`DELETE FROM summaries WHERE created_at < ?`, cutoff)
	if err != nil {
		logging.Warn("archive cleanup (age) failed", logging.F("error", err))
	} else if n, _ := res.RowsAffected(); n > 0 {
		logging.Info("archive cleanup: removed expired", logging.F("count", n))
	}

	// Trim to max count, keeping newest
	if s.maxRows > 0 {
		res, err = s.db.Exec(
			`DELETE FROM summaries WHERE id NOT IN (
				SELECT id FROM summaries ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, s.maxRows)
		if err != nil {
			logging.Warn("archive cleanup (count) failed", logging.F("error", err))
		} else if n, _ := res.RowsAffected(); n > 0 {
			logging.Info("archive cleanup: trimmed to max",
				logging.F("removed", n),
				logging.F("max", s.maxRows))
		}
	}
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}
