package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"netsentry/internal/model"
)

// Memory keeps alerts in a bounded in-process slice. It serves as the
// degraded fallback when ClickHouse is unreachable and as the test store.
type Memory struct {
	mu     sync.Mutex
	alerts []model.Detection
	nextID int
	limit  int
}

var _ model.AlertStore = (*Memory)(nil)

// NewMemory creates a store holding at most limit alerts (default 10000).
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 10000
	}
	return &Memory{limit: limit}
}

func (s *Memory) Insert(_ context.Context, d *model.Detection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.alerts = append(s.alerts, *d)
	if len(s.alerts) > s.limit {
		s.alerts = s.alerts[len(s.alerts)-s.limit:]
	}
	return fmt.Sprintf("mem-%d", s.nextID), nil
}

func (s *Memory) ExistsRecent(_ context.Context, srcIP, signatureID string, dstPort uint16, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if a.CreatedAt.Before(since) {
			break
		}
		if a.SrcIP == srcIP && a.SignatureID == signatureID && a.DstPort == dstPort {
			return true, nil
		}
	}
	return false, nil
}

// All returns a copy of the stored alerts, oldest first.
func (s *Memory) All() []model.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Detection(nil), s.alerts...)
}

// Len returns the stored alert count.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}
