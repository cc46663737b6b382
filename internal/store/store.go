package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lifesign/pkg/logging"
	"lifesign/pkg/models"
)

// ErrUnavailable wraps every error coming back from the database so callers
// can tell a transient store failure apart from caller mistakes.
var ErrUnavailable = errors.New("event store unavailable")

// Store owns all SQL against the life_signals table. The table is the
// minimum persisted shape: bucket, epoch-seconds timestamp, weight. No
// other column may be added to it.
//
// The pool handle is passed in rather than held as process-wide state so
// tests can run isolated instances in parallel.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New creates a store around an existing connection pool.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the signals table and its range-query index.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS life_signals (
			id BIGSERIAL PRIMARY KEY,
			bucket TEXT NOT NULL,
			ts BIGINT NOT NULL,
			weight BIGINT NOT NULL CHECK (weight >= 0)
		)`)
	if err != nil {
		return fmt.Errorf("creating life_signals table: %w", unavailable(err))
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_life_signals_bucket_ts
		ON life_signals (bucket, ts)`)
	if err != nil {
		return fmt.Errorf("creating life_signals index: %w", unavailable(err))
	}

	return nil
}

// Insert appends one signal. Signals are immutable once recorded; there is
// no update or delete path anywhere in the service.
func (s *Store) Insert(ctx context.Context, signal models.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO life_signals (bucket, ts, weight)
		VALUES ($1, $2, $3)`,
		signal.Bucket, signal.Timestamp.Unix(), signal.Weight)
	if err != nil {
		return fmt.Errorf("inserting signal for %q: %w", signal.Bucket, unavailable(err))
	}
	return nil
}

// WindowTotal sums signal weights for a bucket over the half-open interval
// [start, end). A signal exactly at end belongs to the next window. A bucket
// with nothing in range totals 0; that is a result, not an error.
func (s *Store) WindowTotal(ctx context.Context, bucket string, start, end time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(weight), 0)
		FROM life_signals
		WHERE bucket = $1 AND ts >= $2 AND ts < $3`,
		bucket, start.Unix(), end.Unix()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("window total for %q: %w", bucket, unavailable(err))
	}
	return total, nil
}

// LastSeen returns the timestamp of the bucket's most recent signal. The
// second return is false when the bucket has no history at all.
func (s *Store) LastSeen(ctx context.Context, bucket string) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(ts)
		FROM life_signals
		WHERE bucket = $1`,
		bucket).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last seen for %q: %w", bucket, unavailable(err))
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

// KnownBuckets returns every bucket that has ever recorded a signal, in
// lexicographic order. Buckets that went silent long ago stay in this set
// until store retention removes their rows; that retention policy, not the
// scanner, decides when a bucket stops being discoverable.
func (s *Store) KnownBuckets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT bucket
		FROM life_signals
		ORDER BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("listing known buckets: %w", unavailable(err))
	}
	defer rows.Close()

	var buckets []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", unavailable(err))
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buckets: %w", unavailable(err))
	}
	return buckets, nil
}

// ActiveBuckets returns the buckets with at least one signal at or after
// since, in lexicographic order.
func (s *Store) ActiveBuckets(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT bucket
		FROM life_signals
		WHERE ts >= $1
		ORDER BY bucket`,
		since.Unix())
	if err != nil {
		return nil, fmt.Errorf("listing active buckets: %w", unavailable(err))
	}
	defer rows.Close()

	var buckets []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", unavailable(err))
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buckets: %w", unavailable(err))
	}
	return buckets, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
