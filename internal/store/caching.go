package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"netsentry/internal/model"
)

const recencyPrefix = "alert_recent"

// Caching wraps an AlertStore with a cache in front of ExistsRecent, so the
// hot dedup path does not hit the backing store for every repeated alert.
// Cache failures fall through to the store; the cache is an optimization,
// never a source of truth.
type Caching struct {
	store model.AlertStore
	cache model.Cache
	ttl   time.Duration
}

// NewCaching wraps store with cache. The TTL should match the dedup window
// so cached positives expire with the suppression they represent.
func NewCaching(store model.AlertStore, cache model.Cache, ttl time.Duration) *Caching {
	return &Caching{store: store, cache: cache, ttl: ttl}
}

func recencyKey(srcIP, signatureID string, dstPort uint16) string {
	return fmt.Sprintf("%s|%s|%d", srcIP, signatureID, dstPort)
}

// Insert stores the detection and marks its dedup key as recently seen.
func (c *Caching) Insert(ctx context.Context, det *model.Detection) (string, error) {
	id, err := c.store.Insert(ctx, det)
	if err != nil {
		return "", err
	}
	key := recencyKey(det.SrcIP, det.SignatureID, det.DstPort)
	if cerr := c.cache.Set(ctx, recencyPrefix, key, id, c.ttl); cerr != nil {
		log.Printf("Cache set failed for %s: %v", key, cerr)
	}
	return id, nil
}

// ExistsRecent consults the cache before the backing store.
func (c *Caching) ExistsRecent(ctx context.Context, srcIP, signatureID string, dstPort uint16, since time.Time) (bool, error) {
	key := recencyKey(srcIP, signatureID, dstPort)
	if _, ok, err := c.cache.Get(ctx, recencyPrefix, key); err == nil && ok {
		return true, nil
	}
	return c.store.ExistsRecent(ctx, srcIP, signatureID, dstPort, since)
}
