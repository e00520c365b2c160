// Package dedup suppresses repeated detections for the same
// (source, signature, destination port) key within a time window.
package dedup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"netsentry/internal/model"
)

// Outcome says what happened to a detection offered to the deduplicator.
type Outcome int

const (
	// Stored means the detection was new and persisted to the alert store.
	Stored Outcome = iota
	// Suppressed means a matching detection already exists in the window.
	Suppressed
)

// reprobeInterval is how long a degraded store rests before the deduper
// tries it again.
const reprobeInterval = 30 * time.Second

// Deduper filters detections before they reach the alert store. The
// in-memory map answers most lookups; the alert store is consulted as the
// cross-process check when the local map misses.
type Deduper struct {
	store   model.AlertStore
	window  time.Duration
	reprobe time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	storeDegraded bool
	degradedAt    time.Time
}

type key struct {
	srcIP   string
	sigID   string
	dstPort uint16
}

func (k key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.srcIP, k.sigID, k.dstPort)
}

// New creates a deduper over the given store and window (default 300s).
func New(store model.AlertStore, window time.Duration) *Deduper {
	if window <= 0 {
		window = 300 * time.Second
	}
	return &Deduper{
		store:   store,
		window:  window,
		reprobe: reprobeInterval,
		seen:    make(map[string]time.Time),
	}
}

// Offer decides whether the detection is a duplicate. New detections are
// persisted via the alert store; store failures degrade to in-memory-only
// dedup rather than failing the pipeline. A degraded store is left alone
// until the re-probe interval passes, then tried again.
func (d *Deduper) Offer(ctx context.Context, det *model.Detection) (Outcome, error) {
	k := key{srcIP: det.SrcIP, sigID: det.SignatureID, dstPort: det.DstPort}.String()
	now := det.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	d.mu.Lock()
	if last, ok := d.seen[k]; ok && now.Sub(last) < d.window {
		d.mu.Unlock()
		return Suppressed, nil
	}
	d.mu.Unlock()

	if d.store != nil && d.storeReady() {
		exists, err := d.store.ExistsRecent(ctx, det.SrcIP, det.SignatureID, det.DstPort, now.Add(-d.window))
		switch {
		case err != nil:
			d.degrade(err)
		case exists:
			d.recover()
			d.mu.Lock()
			d.seen[k] = now
			d.mu.Unlock()
			return Suppressed, nil
		default:
			if _, err := d.store.Insert(ctx, det); err != nil {
				d.degrade(err)
			} else {
				d.recover()
			}
		}
	}

	d.mu.Lock()
	d.seen[k] = now
	d.mu.Unlock()
	return Stored, nil
}

// storeReady reports whether the store should be consulted: always while
// healthy, and once per re-probe interval while degraded.
func (d *Deduper) storeReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.storeDegraded {
		return true
	}
	if time.Since(d.degradedAt) < d.reprobe {
		return false
	}
	// Claim this probe slot so concurrent Offers do not all hit the store.
	d.degradedAt = time.Now()
	return true
}

func (d *Deduper) degrade(err error) {
	d.mu.Lock()
	first := !d.storeDegraded
	d.storeDegraded = true
	d.degradedAt = time.Now()
	d.mu.Unlock()
	if first {
		log.Printf("alert store unavailable, deduplicating in memory only: %v", err)
	}
}

func (d *Deduper) recover() {
	d.mu.Lock()
	was := d.storeDegraded
	d.storeDegraded = false
	d.mu.Unlock()
	if was {
		log.Println("alert store reachable again, resuming shared dedup")
	}
}

// Degraded reports whether the alert store is currently unreachable and
// dedup runs on the in-memory map alone.
func (d *Deduper) Degraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.storeDegraded
}

// Prune drops cache entries older than twice the window. Called from the
// periodic eviction sweep to bound memory.
func (d *Deduper) Prune() int {
	cutoff := time.Now().Add(-2 * d.window)
	removed := 0
	d.mu.Lock()
	for k, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, k)
			removed++
		}
	}
	d.mu.Unlock()
	return removed
}

// Len returns the in-memory cache size.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
