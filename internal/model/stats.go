package model

import (
	"sync"
	"time"
)

// CaptureStats holds the process-wide capture counters. It is written by the
// capture and processing workers and read by health checks, so every access
// goes through the mutex.
type CaptureStats struct {
	mu sync.Mutex

	totalPackets   uint64
	totalBytes     uint64
	droppedPackets uint64
	queueSize      int

	startedAt     time.Time
	lastPacketAt  time.Time
	captureActive bool
	degradedMsgs  []string
}

// StatsSnapshot is a point-in-time copy of the counters for health checks
// and the stats API.
type StatsSnapshot struct {
	TotalPackets   uint64   `json:"total_packets"`
	TotalBytes     uint64   `json:"total_bytes"`
	DroppedPackets uint64   `json:"dropped_packets"`
	QueueSize      int      `json:"queue_size"`
	PacketRate     float64  `json:"packet_rate"`
	ByteRate       float64  `json:"byte_rate"`
	LastPacketAge  float64  `json:"last_packet_age_seconds"`
	Healthy        bool     `json:"healthy"`
	CaptureActive  bool     `json:"capture_active"`
	Degraded       []string `json:"degraded,omitempty"`
}

// NewCaptureStats returns stats with the clock started.
func NewCaptureStats() *CaptureStats {
	return &CaptureStats{startedAt: time.Now()}
}

// RecordPacket counts one processed packet of the given size.
func (s *CaptureStats) RecordPacket(bytes int, ts time.Time) {
	s.mu.Lock()
	s.totalPackets++
	s.totalBytes += uint64(bytes)
	s.lastPacketAt = ts
	s.mu.Unlock()
}

// RecordDrop counts one dropped packet (unparseable frame or full queue).
func (s *CaptureStats) RecordDrop() {
	s.mu.Lock()
	s.droppedPackets++
	s.mu.Unlock()
}

// SetQueueSize records the current ingest queue occupancy.
func (s *CaptureStats) SetQueueSize(n int) {
	s.mu.Lock()
	s.queueSize = n
	s.mu.Unlock()
}

// SetCaptureActive flags whether the capture worker is running.
func (s *CaptureStats) SetCaptureActive(active bool) {
	s.mu.Lock()
	s.captureActive = active
	s.mu.Unlock()
}

// AddDegraded records a human-readable reason the process is running in a
// degraded mode (analysis-only, in-memory dedup, ...).
func (s *CaptureStats) AddDegraded(reason string) {
	s.mu.Lock()
	for _, r := range s.degradedMsgs {
		if r == reason {
			s.mu.Unlock()
			return
		}
	}
	s.degradedMsgs = append(s.degradedMsgs, reason)
	s.mu.Unlock()
}

// Snapshot returns the current counters with derived rates. The process is
// considered healthy while capture is active (or intentionally disabled) and
// drops stay below half the total.
func (s *CaptureStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.startedAt).Seconds()
	snap := StatsSnapshot{
		TotalPackets:   s.totalPackets,
		TotalBytes:     s.totalBytes,
		DroppedPackets: s.droppedPackets,
		QueueSize:      s.queueSize,
		CaptureActive:  s.captureActive,
		Degraded:       append([]string(nil), s.degradedMsgs...),
	}
	if elapsed > 0 {
		snap.PacketRate = float64(s.totalPackets) / elapsed
		snap.ByteRate = float64(s.totalBytes) / elapsed
	}
	if !s.lastPacketAt.IsZero() {
		snap.LastPacketAge = time.Since(s.lastPacketAt).Seconds()
	}
	snap.Healthy = len(s.degradedMsgs) == 0 &&
		(s.totalPackets == 0 || s.droppedPackets*2 < s.totalPackets)
	return snap
}
