package models

// Status is the liveness classification of a bucket at a point in time.
// It is purely a function of (current total, recent average) and carries
// no history of its own.
type Status string

const (
	// StatusAlive: current activity is at or above 80% of the recent
	// average, or there is no baseline to compare against.
	StatusAlive Status = "alive"

	// StatusStressed: between 20% (inclusive) and 80% of the recent average.
	StatusStressed Status = "stressed"

	// StatusCollapsing: non-zero but below 20% of the recent average.
	StatusCollapsing Status = "collapsing"

	// StatusDead: zero activity while the recent average was positive.
	StatusDead Status = "dead"
)

// Classification thresholds as fractions of the recent average.
const (
	AliveThreshold    = 0.8
	CollapseThreshold = 0.2
)

// Classify maps a current window total and a recent average onto a Status.
//
// The guards are evaluated in order and the first match wins. The order is
// load-bearing: the zero-baseline guard must run first so that a bucket with
// no history (including "current > 0, baseline = 0") classifies as alive,
// and the threshold comparisons use >= so that a total sitting exactly on
// 0.8x or 0.2x of the average lands in the less severe band. Reordering or
// nudging an inequality changes the observable classification at exact
// threshold inputs.
func Classify(currentTotal int64, recentAverage float64) Status {
	switch {
	case recentAverage <= 0:
		return StatusAlive
	case float64(currentTotal) >= AliveThreshold*recentAverage:
		return StatusAlive
	case float64(currentTotal) >= CollapseThreshold*recentAverage:
		return StatusStressed
	case currentTotal > 0:
		return StatusCollapsing
	default:
		return StatusDead
	}
}

// Distressed reports whether a status belongs in the alert feed.
func (s Status) Distressed() bool {
	return s == StatusCollapsing || s == StatusDead
}
