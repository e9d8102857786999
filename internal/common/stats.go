package common

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats holds atomic ingest telemetry counters, safe for concurrent
// use by reader and writer goroutines.
type Stats struct {
	rowsProcessed uint64
	batchesSent   uint64
	batchLatency  uint64 // nanoseconds

	running  atomic.Bool
	stopCh   chan struct{}
	silent   bool
	lastRows uint64
	lastTime time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{stopCh: make(chan struct{})}
}

// AddRows atomically increments the processed row counter.
func (s *Stats) AddRows(count uint64) {
	atomic.AddUint64(&s.rowsProcessed, count)
}

// AddBatch atomically increments the sent batch counter.
func (s *Stats) AddBatch() {
	atomic.AddUint64(&s.batchesSent, 1)
}

// SetBatchLatency atomically records the latest batch latency.
func (s *Stats) SetBatchLatency(d time.Duration) {
	atomic.StoreUint64(&s.batchLatency, uint64(d.Nanoseconds()))
}

// TotalRows atomically reads the processed row counter.
func (s *Stats) TotalRows() uint64 {
	return atomic.LoadUint64(&s.rowsProcessed)
}

// TotalBatches atomically reads the sent batch counter.
func (s *Stats) TotalBatches() uint64 {
	return atomic.LoadUint64(&s.batchesSent)
}

// BatchLatency atomically reads the latest batch latency.
func (s *Stats) BatchLatency() time.Duration {
	return time.Duration(atomic.LoadUint64(&s.batchLatency))
}

// SetSilent enables or disables progress output.
func (s *Stats) SetSilent(silent bool) {
	s.silent = silent
}

// StartReporter starts a background goroutine printing progress every
// second. Newline-based output so it interleaves cleanly with
// log.Printf.
func (s *Stats) StartReporter() {
	if s.running.Load() {
		return
	}
	s.running.Store(true)
	s.lastTime = time.Now()
	s.lastRows = 0
	go s.reporterLoop()
}

// StopReporter stops the background reporter goroutine.
func (s *Stats) StopReporter() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	close(s.stopCh)
}

func (s *Stats) reporterLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.printStatus()
		}
	}
}

func (s *Stats) printStatus() {
	if s.silent {
		return
	}
	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.001 {
		return
	}

	rows := s.TotalRows()
	rate := float64(rows-s.lastRows) / elapsed
	fmt.Printf("[Progress] %.0f rows/s | Batch: %.2f ms | Total: %d rows in %d batches\n",
		rate,
		float64(s.BatchLatency().Microseconds())/1000,
		rows,
		s.TotalBatches(),
	)

	s.lastRows = rows
	s.lastTime = now
}
