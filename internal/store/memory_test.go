package store

import (
	"context"
	"testing"
	"time"

	"netsentry/internal/cache"
	"netsentry/internal/model"
)

func alert(srcIP, sigID string, dstPort uint16, at time.Time) *model.Detection {
	return &model.Detection{
		Kind:        model.KindSignature,
		SignatureID: sigID,
		Severity:    model.SeverityHigh,
		CreatedAt:   at,
		SrcIP:       srcIP,
		DstIP:       "10.0.0.1",
		DstPort:     dstPort,
	}
}

func TestMemory_InsertAndExistsRecent(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	now := time.Now()

	id, err := s.Insert(ctx, alert("10.0.0.5", "sql_injection", 80, now))
	if err != nil || id == "" {
		t.Fatalf("Insert = (%q, %v)", id, err)
	}

	ok, err := s.ExistsRecent(ctx, "10.0.0.5", "sql_injection", 80, now.Add(-time.Minute))
	if err != nil || !ok {
		t.Errorf("ExistsRecent = (%v, %v), want (true, nil)", ok, err)
	}

	ok, _ = s.ExistsRecent(ctx, "10.0.0.5", "sql_injection", 80, now.Add(time.Minute))
	if ok {
		t.Error("ExistsRecent matched an alert older than since")
	}
	ok, _ = s.ExistsRecent(ctx, "10.0.0.9", "sql_injection", 80, now.Add(-time.Minute))
	if ok {
		t.Error("ExistsRecent matched a different source")
	}
}

func TestMemory_Bounded(t *testing.T) {
	s := NewMemory(5)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		s.Insert(ctx, alert("10.0.0.5", "x", uint16(i), time.Now()))
	}
	if s.Len() != 5 {
		t.Errorf("store holds %d alerts, limit is 5", s.Len())
	}
	// Oldest entries were dropped; the newest survive.
	all := s.All()
	if all[len(all)-1].DstPort != 19 {
		t.Errorf("newest alert port = %d, want 19", all[len(all)-1].DstPort)
	}
}

func TestCaching_ServesRepeatsFromCache(t *testing.T) {
	mem := NewMemory(0)
	c := NewCaching(mem, cache.NewMemory(), 5*time.Minute)
	ctx := context.Background()
	now := time.Now()

	if _, err := c.Insert(ctx, alert("10.0.0.5", "sql_injection", 80, now)); err != nil {
		t.Fatal(err)
	}

	ok, err := c.ExistsRecent(ctx, "10.0.0.5", "sql_injection", 80, now.Add(-time.Minute))
	if err != nil || !ok {
		t.Errorf("ExistsRecent = (%v, %v), want cache hit", ok, err)
	}
	ok, _ = c.ExistsRecent(ctx, "10.0.0.6", "sql_injection", 80, now.Add(-time.Minute))
	if ok {
		t.Error("cache hit for an alert never inserted")
	}
}
