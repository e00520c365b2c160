package model

import (
	"context"
	"time"
)

// AlertStore persists detections. Implementations live outside the core
// pipeline; the in-memory implementation is the degraded fallback.
type AlertStore interface {
	// Insert persists a detection together with its packet context and
	// returns the stored alert id.
	Insert(ctx context.Context, d *Detection) (string, error)

	// ExistsRecent reports whether a detection with the same
	// (source, signature, port) key was stored since the given time.
	// Used by the deduplicator as a cross-process check.
	ExistsRecent(ctx context.Context, srcIP, signatureID string, dstPort uint16, since time.Time) (bool, error)
}

// Sample is one labeled feature vector handed to a sample collector.
type Sample struct {
	Features   FeatureVector
	SrcIP      string
	DstIP      string
	DstPort    uint16
	Label      string // "malicious" or "benign"
	LabeledBy  string
	Confidence float64
	Timestamp  time.Time
}

// SampleCollector receives auto-labeled samples for future training runs.
// The hand-off is best-effort; the pipeline never depends on it.
type SampleCollector interface {
	Collect(ctx context.Context, s Sample) error
}

// Cache is the pluggable key/value contract used for dedup state and read
// summaries. Keys are namespaced by prefix so a whole prefix can be dropped.
type Cache interface {
	Get(ctx context.Context, prefix, key string) (string, bool, error)
	Set(ctx context.Context, prefix, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, prefix, key string) error
	ClearPrefix(ctx context.Context, prefix string) error
}

// Notifier delivers a rendered notification in plain-text and HTML form.
type Notifier interface {
	Send(subject, textBody, htmlBody string) error
}
