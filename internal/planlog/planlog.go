// Package planlog keeps a sqlite history of planning attempts.
package planlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	// registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/services/navigation"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		trigger_name TEXT NOT NULL,
		started_ns INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		start_x REAL NOT NULL,
		start_y REAL NOT NULL,
		goal_x REAL NOT NULL,
		goal_y REAL NOT NULL,
		path_length INTEGER NOT NULL,
		waypoint_x REAL,
		waypoint_y REAL,
		waypoint_heading REAL,
		error TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_ns);`,
}

// Store is a navigation.AttemptRecorder backed by a sqlite file.
type Store struct {
	db     *sql.DB
	logger logging.Logger

	closeOnce sync.Once
}

// Open creates or opens the history at path.
func Open(ctx context.Context, path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("planlog path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrapf(err, "cannot create directory for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open planlog %s", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range append([]string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"}, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, multierr.Combine(errors.Wrap(err, "cannot initialize planlog"), db.Close())
		}
	}
	return &Store{db: db, logger: logger}, nil
}

// RecordAttempt stores one attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt navigation.Attempt) error {
	var wpX, wpY, wpHeading sql.NullFloat64
	if wp := attempt.Waypoint; wp != nil {
		wpX = sql.NullFloat64{Float64: wp.X, Valid: true}
		wpY = sql.NullFloat64{Float64: wp.Y, Valid: true}
		wpHeading = sql.NullFloat64{Float64: wp.Heading, Valid: true}
	}
	var errText sql.NullString
	if attempt.Err != nil {
		errText = sql.NullString{String: attempt.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, trigger_name, started_ns, duration_ns, outcome, start_x, start_y, goal_x, goal_y,
			path_length, waypoint_x, waypoint_y, waypoint_heading, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID.String(), attempt.Trigger, attempt.Started.UnixNano(), int64(attempt.Duration),
		attempt.Outcome.String(), attempt.Start.X, attempt.Start.Y, attempt.Goal.X, attempt.Goal.Y,
		attempt.PathLength, wpX, wpY, wpHeading, errText,
	)
	return errors.Wrap(err, "cannot record planning attempt")
}

// Record is one stored attempt.
type Record struct {
	ID         string
	Trigger    string
	Started    time.Time
	Duration   time.Duration
	Outcome    string
	PathLength int
	Waypoint   *navigation.Waypoint
	Error      string
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trigger_name, started_ns, duration_ns, outcome, path_length,
			waypoint_x, waypoint_y, waypoint_heading, error
		FROM attempts ORDER BY started_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query planlog")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Debugw("closing planlog rows", "error", err)
		}
	}()

	var records []Record
	for rows.Next() {
		var (
			rec                   Record
			startedNs, durationNs int64
			wpX, wpY, wpHeading   sql.NullFloat64
			errText               sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Trigger, &startedNs, &durationNs, &rec.Outcome, &rec.PathLength,
			&wpX, &wpY, &wpHeading, &errText); err != nil {
			return nil, errors.Wrap(err, "cannot read planlog row")
		}
		rec.Started = time.Unix(0, startedNs)
		rec.Duration = time.Duration(durationNs)
		if wpX.Valid && wpY.Valid && wpHeading.Valid {
			rec.Waypoint = &navigation.Waypoint{X: wpX.Float64, Y: wpY.Float64, Heading: wpHeading.Float64}
		}
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Summary describes the whole history.
type Summary struct {
	Attempts  int
	ByOutcome map[string]int
	// Durations cover attempts that reached the planner.
	MeanDuration   time.Duration
	MedianDuration time.Duration
	P95Duration    time.Duration
	MaxDuration    time.Duration
}

// Summarize counts attempts per outcome and summarizes how long searches took.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	summary := Summary{ByOutcome: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, duration_ns FROM attempts`)
	if err != nil {
		return summary, errors.Wrap(err, "cannot query planlog")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Debugw("closing planlog rows", "error", err)
		}
	}()

	var durations stats.Float64Data
	for rows.Next() {
		var outcome string
		var durationNs int64
		if err := rows.Scan(&outcome, &durationNs); err != nil {
			return summary, errors.Wrap(err, "cannot read planlog row")
		}
		summary.Attempts++
		summary.ByOutcome[outcome]++
		if outcome != navigation.OutcomeSkipped.String() {
			durations = append(durations, float64(durationNs))
		}
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}
	if len(durations) == 0 {
		return summary, nil
	}

	mean, err := durations.Mean()
	if err != nil {
		return summary, err
	}
	median, err := durations.Median()
	if err != nil {
		return summary, err
	}
	p95, err := durations.Percentile(95)
	if err != nil {
		return summary, err
	}
	maxDuration, err := durations.Max()
	if err != nil {
		return summary, err
	}
	summary.MeanDuration = time.Duration(mean)
	summary.MedianDuration = time.Duration(median)
	summary.P95Duration = time.Duration(p95)
	summary.MaxDuration = time.Duration(maxDuration)
	return summary, nil
}

// Close closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
