package logging

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ProgressTracker tracks progress of long-running operations with
// batching. It is safe for concurrent use.
type ProgressTracker struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	startTime time.Time
	logger    *Logger
	lastLog   time.Time
	interval  time.Duration
	batchSize int
	lastBatch int
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(ctx context.Context, name string, total int) *ProgressTracker {
	logger := FromContext(ctx)

	// fewer updates for larger datasets
	batchSize := 1
	interval := 1 * time.Second

	if total > 1000 {
		batchSize = total / 10
		interval = 3 * time.Second
	} else if total > 100 {
		batchSize = total / 20
		interval = 2 * time.Second
	}

	tracker := &ProgressTracker{
		name:      name,
		total:     total,
		startTime: time.Now(),
		logger:    logger,
		lastLog:   time.Now(),
		interval:  interval,
		batchSize: batchSize,
	}

	if total > 10 {
		logger.Info("Starting %s (%d items)", name, total)
	}

	return tracker
}

// Update increments progress and logs at batch or time boundaries
func (pt *ProgressTracker) Update(message string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.current++
	now := time.Now()

	shouldLog := pt.current == pt.total ||
		now.Sub(pt.lastLog) >= pt.interval ||
		pt.current-pt.lastBatch >= pt.batchSize

	if shouldLog {
		elapsed := now.Sub(pt.startTime)
		if pt.current == pt.total {
			pt.logger.Step(pt.name+" complete", pt.countString(), elapsed.Truncate(10*time.Millisecond).String())
		} else if pt.total > 10 {
			pt.logger.Progress(pt.name, pt.current, pt.total, elapsed)
		}
		pt.lastLog = now
		pt.lastBatch = pt.current
	}

	pt.logger.Trace("Processing %s (%d/%d): %s", pt.name, pt.current, pt.total, message)
}

// Complete marks the operation as finished
func (pt *ProgressTracker) Complete() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.current < pt.total {
		pt.current = pt.total
		elapsed := time.Since(pt.startTime)
		pt.logger.Step(pt.name+" complete", pt.countString(), elapsed.Truncate(10*time.Millisecond).String())
	}
}

func (pt *ProgressTracker) countString() string {
	if pt.total == 1 {
		return "1 item"
	}
	return strconv.Itoa(pt.total) + " items"
}
