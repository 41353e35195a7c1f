package common

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters for load progress.
type Stats struct {
	rows   atomic.Uint64
	bytes  atomic.Uint64
	failed atomic.Uint64

	running  atomic.Bool
	stopCh   chan struct{}
	interval time.Duration
	started  time.Time
	lastRows uint64
	lastTime time.Time
}

// NewStats creates a Stats instance reporting every interval.
func NewStats(interval time.Duration) *Stats {
	if interval <= 0 {
		interval = time.Second
	}
	return &Stats{
		interval: interval,
		started:  time.Now(),
	}
}

// AddRows atomically increments the rows counter.
func (s *Stats) AddRows(n uint64) { s.rows.Add(n) }

// AddBytes atomically increments the bytes counter.
func (s *Stats) AddBytes(n uint64) { s.bytes.Add(n) }

// AddFailed counts an input that could not be processed.
func (s *Stats) AddFailed() { s.failed.Add(1) }

func (s *Stats) Rows() uint64   { return s.rows.Load() }
func (s *Stats) Bytes() uint64  { return s.bytes.Load() }
func (s *Stats) Failed() uint64 { return s.failed.Load() }

// Elapsed returns the time since the Stats was created.
func (s *Stats) Elapsed() time.Duration { return time.Since(s.started) }

// RowsPerSec returns the average throughput since creation.
func (s *Stats) RowsPerSec() float64 {
	sec := s.Elapsed().Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(s.Rows()) / sec
}

// StartReporter starts a background goroutine that logs progress. It may be
// started again after StopReporter.
func (s *Stats) StartReporter() {
	if s.running.Swap(true) {
		return
	}
	s.lastTime = time.Now()
	s.lastRows = s.Rows()
	s.stopCh = make(chan struct{})
	go s.reporterLoop(s.stopCh)
}

// StopReporter stops the background reporter goroutine.
func (s *Stats) StopReporter() {
	if !s.running.Swap(false) {
		return
	}
	close(s.stopCh)
}

func (s *Stats) reporterLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.report()
		}
	}
}

func (s *Stats) report() {
	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.001 {
		return
	}

	rows := s.Rows()
	rate := float64(rows-s.lastRows) / elapsed

	slog.Info("progress",
		"rows", rows,
		"rows_per_sec", int64(rate),
		"bytes", s.Bytes(),
		"failed", s.Failed(),
	)

	s.lastRows = rows
	s.lastTime = now
}
