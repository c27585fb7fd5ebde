package runtime

import (
	"sync"
	"time"
)

// RouteInfo describes one inbound route.
type RouteInfo struct {
	Name  string      `json:"name"`
	Topic string      `json:"topic"`
	Stats *RouteStats `json:"-"`
}

// RouteStats counts frames handled by a route.
type RouteStats struct {
	mu sync.Mutex

	processed     uint64
	failed        uint64
	totalDuration time.Duration
	lastDuration  time.Duration
	lastAt        time.Time
	lastError     string
}

// RouteStatsSnapshot is a point-in-time copy of RouteStats.
type RouteStatsSnapshot struct {
	FramesProcessed     uint64    `json:"frames_processed"`
	FramesFailed        uint64    `json:"frames_failed"`
	AverageProcessingNs int64     `json:"average_processing_ns"`
	LastProcessingNs    int64     `json:"last_processing_ns"`
	LastProcessedAt     time.Time `json:"last_processed_at"`
	LastError           string    `json:"last_error,omitempty"`
}

func newRouteStats() *RouteStats {
	return &RouteStats{}
}

func (r *RouteStats) record(duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed++
	r.totalDuration += duration
	r.lastDuration = duration
	r.lastAt = time.Now()
	if err != nil {
		r.failed++
		r.lastError = err.Error()
	}
}

// Snapshot returns a consistent copy of the counters.
func (r *RouteStats) Snapshot() RouteStatsSnapshot {
	if r == nil {
		return RouteStatsSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var avg int64
	if r.processed > 0 {
		avg = r.totalDuration.Nanoseconds() / int64(r.processed)
	}
	return RouteStatsSnapshot{
		FramesProcessed:     r.processed,
		FramesFailed:        r.failed,
		AverageProcessingNs: avg,
		LastProcessingNs:    r.lastDuration.Nanoseconds(),
		LastProcessedAt:     r.lastAt,
		LastError:           r.lastError,
	}
}
