package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifesign/internal/store"
	"lifesign/pkg/logging"
	"lifesign/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	windowTotalQuery  = "SELECT COALESCE\\(SUM\\(weight\\), 0\\)"
	knownBucketsQuery = "SELECT DISTINCT bucket"
	lastSeenQuery     = "SELECT MAX\\(ts\\)"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	logger := logging.NewLogger()
	return NewEngine(store.New(db, logger), logger, 0), mock
}

func expectTotal(mock sqlmock.Sqlmock, total int64) {
	mock.ExpectQuery(windowTotalQuery).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(total))
}

// expectReport queues the one current-window query followed by the six
// baseline-window queries a Report issues.
func expectReport(mock sqlmock.Sqlmock, current int64, history [6]int64) {
	expectTotal(mock, current)
	for _, h := range history {
		expectTotal(mock, h)
	}
}

func TestWindowTotal_InvalidWindow(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.WindowTotal(context.Background(), "zone-a", time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = eng.WindowTotal(context.Background(), "zone-a", time.Now(), -5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMinutesAreBounded(t *testing.T) {
	// Values past the cap would overflow the duration arithmetic and
	// invert the interval into a silent zero total; they must be
	// rejected as bad input instead.
	eng, _ := newTestEngine(t)
	huge := MaxMinutes + 1

	_, err := eng.WindowTotal(context.Background(), "zone-a", time.Now(), huge)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = eng.Baseline(context.Background(), "zone-a", time.Now(), huge, 6)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = eng.Scan(context.Background(), huge, time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBaseline_WalksBackwardOverContiguousWindows(t *testing.T) {
	eng, mock := newTestEngine(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	// Window i ends i*window before now and starts one window earlier.
	totals := []int64{100, 100, 100, 0, 0, 0}
	for i := 1; i <= 6; i++ {
		end := now.Add(-time.Duration(i) * window)
		start := end.Add(-window)
		mock.ExpectQuery(windowTotalQuery).
			WithArgs("zone-a", start.Unix(), end.Unix()).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(totals[i-1]))
	}

	avg, err := eng.Baseline(context.Background(), "zone-a", now, 10, 6)
	require.NoError(t, err)

	// Empty windows count as zero; the denominator stays at six.
	assert.InDelta(t, 50.0, avg, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseline_InvalidInput(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Baseline(context.Background(), "zone-a", time.Now(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = eng.Baseline(context.Background(), "zone-a", time.Now(), 0, 6)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReport_StatusBands(t *testing.T) {
	steady := [6]int64{100, 100, 100, 100, 100, 100}

	cases := []struct {
		name    string
		current int64
		want    models.Status
	}{
		{"alive at 85% of baseline", 85, models.StatusAlive},
		{"stressed at 50% of baseline", 50, models.StatusStressed},
		{"collapsing at 10% of baseline", 10, models.StatusCollapsing},
		{"dead at zero", 0, models.StatusDead},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng, mock := newTestEngine(t)
			expectReport(mock, tc.current, steady)

			report, err := eng.Report(context.Background(), "zone-a", 10, time.Now().UTC())
			require.NoError(t, err)

			assert.Equal(t, tc.current, report.CurrentWindowTotal)
			assert.InDelta(t, 100.0, report.RecentAverage, 1e-9)
			assert.Equal(t, tc.want, report.Status)
		})
	}
}

func TestReport_FreshBucketIsAlive(t *testing.T) {
	// Weight 10 just inserted, no history: zero baseline must classify
	// alive, not dead.
	eng, mock := newTestEngine(t)
	expectReport(mock, 10, [6]int64{})

	report, err := eng.Report(context.Background(), "zone-a", 10, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, int64(10), report.CurrentWindowTotal)
	assert.Equal(t, 0.0, report.RecentAverage)
	assert.Equal(t, models.StatusAlive, report.Status)
}

func TestReport_UnknownBucketIsZeroValuedAlive(t *testing.T) {
	eng, mock := newTestEngine(t)
	expectReport(mock, 0, [6]int64{})

	report, err := eng.Report(context.Background(), "never-seen", 10, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, int64(0), report.CurrentWindowTotal)
	assert.Equal(t, 0.0, report.RecentAverage)
	assert.Equal(t, models.StatusAlive, report.Status)
}

func TestScan_SurfacesDistressedBucketsOnly(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectQuery(knownBucketsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).
			AddRow("zone-a").
			AddRow("zone-b"))

	// zone-a healthy: stays out of the feed.
	expectReport(mock, 100, [6]int64{100, 100, 100, 100, 100, 100})

	// zone-b silent with a real baseline: dead.
	expectReport(mock, 0, [6]int64{50, 50, 50, 50, 50, 50})
	lastSeen := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(lastSeenQuery).
		WithArgs("zone-b").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(lastSeen.Unix()))

	alerts, err := eng.Scan(context.Background(), 60, time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, "zone-b", alerts[0].Bucket)
	assert.Equal(t, models.StatusDead, alerts[0].Status)
	assert.InDelta(t, 50.0, alerts[0].RecentAverage, 1e-9)
	require.NotNil(t, alerts[0].LastSeenTimestamp)
	assert.True(t, alerts[0].LastSeenTimestamp.Equal(lastSeen))
	assert.Contains(t, alerts[0].Message, "CRITICAL")
	assert.Contains(t, alerts[0].Message, "zone-b")
	assert.Contains(t, alerts[0].Message, "silent")
}

func TestScan_CollapsingMessage(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectQuery(knownBucketsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).AddRow("zone-c"))

	expectReport(mock, 5, [6]int64{100, 100, 100, 100, 100, 100})
	mock.ExpectQuery(lastSeenQuery).
		WithArgs("zone-c").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(time.Now().Unix()))

	alerts, err := eng.Scan(context.Background(), 60, time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.StatusCollapsing, alerts[0].Status)
	assert.Contains(t, alerts[0].Message, "WARNING")
	assert.Contains(t, alerts[0].Message, "declining")
	assert.Contains(t, alerts[0].Message, "(100.0 per window)")
	// The message may carry bucket, status and recent average, nothing
	// else; the current-window count stays out of it.
	assert.NotContains(t, alerts[0].Message, "5")
}

func TestScan_IsolatesPerBucketFailures(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectQuery(knownBucketsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).
			AddRow("zone-a").
			AddRow("zone-b"))

	// zone-a's current-window query fails; the scan must move on.
	mock.ExpectQuery(windowTotalQuery).
		WillReturnError(errors.New("connection reset"))

	expectReport(mock, 0, [6]int64{50, 50, 50, 50, 50, 50})
	mock.ExpectQuery(lastSeenQuery).
		WithArgs("zone-b").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(time.Now().Unix()))

	alerts, err := eng.Scan(context.Background(), 60, time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, "zone-b", alerts[0].Bucket)
}

func TestScan_InvalidLookback(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Scan(context.Background(), 0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRepeatedReportsAreIdentical(t *testing.T) {
	// With no intervening inserts, repeating the same aggregation must
	// yield exactly the same result.
	eng, mock := newTestEngine(t)
	steady := [6]int64{100, 0, 50, 100, 0, 50}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expectReport(mock, 40, steady)
	expectReport(mock, 40, steady)

	first, err := eng.Report(context.Background(), "zone-a", 10, now)
	require.NoError(t, err)
	second, err := eng.Report(context.Background(), "zone-a", 10, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScan_EmptyStoreYieldsNoAlerts(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectQuery(knownBucketsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}))

	alerts, err := eng.Scan(context.Background(), 60, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.NotNil(t, alerts)
}
