package track

import (
	"sync"
	"time"

	"netsentry/internal/model"
)

// The auxiliary trackers keep rolling time windows keyed by source IP (or
// flow key for byte rates). Entries are pruned lazily when read, so idle
// sources cost nothing until the next lookup.

// LoginTracker counts failed login attempts per source IP over a window.
type LoginTracker struct {
	mu       sync.Mutex
	window   time.Duration
	attempts map[string][]time.Time
}

// NewLoginTracker creates a tracker with the given window (default 1h).
func NewLoginTracker(window time.Duration) *LoginTracker {
	if window <= 0 {
		window = time.Hour
	}
	return &LoginTracker{window: window, attempts: make(map[string][]time.Time)}
}

// RecordFailed notes one failed login attempt from the source.
func (lt *LoginTracker) RecordFailed(ip string) {
	lt.mu.Lock()
	lt.attempts[ip] = append(lt.attempts[ip], time.Now())
	lt.mu.Unlock()
}

// Count returns failed attempts within the window, pruning older entries.
func (lt *LoginTracker) Count(ip string) int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	cutoff := time.Now().Add(-lt.window)
	kept := pruneBefore(lt.attempts[ip], cutoff)
	if len(kept) == 0 {
		delete(lt.attempts, ip)
		return 0
	}
	lt.attempts[ip] = kept
	return len(kept)
}

// FlowRateCalc accumulates bytes per flow over a short window and derives a
// transfer rate from the span since the first byte in the window.
type FlowRateCalc struct {
	mu     sync.Mutex
	window time.Duration
	flows  map[model.FlowKey][]byteEvent
}

type byteEvent struct {
	at    time.Time
	bytes int
}

// NewFlowRateCalc creates a calculator with the given window (default 60s).
func NewFlowRateCalc(window time.Duration) *FlowRateCalc {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &FlowRateCalc{window: window, flows: make(map[model.FlowKey][]byteEvent)}
}

// Record adds bytes for the flow at the current time.
func (fc *FlowRateCalc) Record(key model.FlowKey, bytes int) {
	fc.mu.Lock()
	fc.flows[key] = append(fc.flows[key], byteEvent{at: time.Now(), bytes: bytes})
	fc.mu.Unlock()
}

// Rate returns bytes/second over the window, 0 when the elapsed span is
// not positive.
func (fc *FlowRateCalc) Rate(key model.FlowKey) float64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	cutoff := time.Now().Add(-fc.window)
	events := fc.flows[key]
	i := 0
	for i < len(events) && events[i].at.Before(cutoff) {
		i++
	}
	events = events[i:]
	if len(events) == 0 {
		delete(fc.flows, key)
		return 0
	}
	fc.flows[key] = events

	total := 0
	for _, e := range events {
		total += e.bytes
	}
	elapsed := time.Since(events[0].at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total) / elapsed
}

// AccessTracker measures how often a source IP is seen within a window.
type AccessTracker struct {
	mu       sync.Mutex
	window   time.Duration
	accesses map[string][]time.Time
}

// NewAccessTracker creates a tracker with the given window (default 5m).
func NewAccessTracker(window time.Duration) *AccessTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &AccessTracker{window: window, accesses: make(map[string][]time.Time)}
}

// Record notes one access from the source at the current time.
func (at *AccessTracker) Record(ip string) {
	at.mu.Lock()
	at.accesses[ip] = append(at.accesses[ip], time.Now())
	at.mu.Unlock()
}

// Rate returns accesses/second as (n-1)/span over the timestamps in the
// window, 0 with fewer than two events.
func (at *AccessTracker) Rate(ip string) float64 {
	at.mu.Lock()
	defer at.mu.Unlock()

	cutoff := time.Now().Add(-at.window)
	kept := pruneBefore(at.accesses[ip], cutoff)
	if len(kept) == 0 {
		delete(at.accesses, ip)
		return 0
	}
	at.accesses[ip] = kept
	if len(kept) < 2 {
		return 0
	}
	span := kept[len(kept)-1].Sub(kept[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(kept)-1) / span
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
