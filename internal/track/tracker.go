package track

import (
	"hash/fnv"
	"sync"
	"time"

	"netsentry/internal/model"
)

const defaultShardCount = 64

// shard is one bucket of the sharded connection map with its own lock, so
// the eviction sweep never blocks the whole table.
type shard struct {
	mu    sync.RWMutex
	conns map[model.FlowKey]*model.ConnectionState
}

// ConnTracker maintains per-flow connection state. Safe for concurrent use
// by the processing worker and the eviction sweep.
type ConnTracker struct {
	shards     []*shard
	shardCount uint32
}

// NewConnTracker creates a tracker with the default shard count.
func NewConnTracker() *ConnTracker {
	t := &ConnTracker{
		shards:     make([]*shard, defaultShardCount),
		shardCount: defaultShardCount,
	}
	for i := range t.shards {
		t.shards[i] = &shard{conns: make(map[model.FlowKey]*model.ConnectionState)}
	}
	return t
}

func (t *ConnTracker) getShard(key model.FlowKey) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key.SrcIP))
	hasher.Write([]byte(key.DstIP))
	hasher.Write([]byte{byte(key.DstPort >> 8), byte(key.DstPort)})
	return t.shards[hasher.Sum32()%t.shardCount]
}

// StartOrTouch records a packet on the flow, creating the connection on
// first sight, and returns a copy of the updated state.
func (t *ConnTracker) StartOrTouch(key model.FlowKey, ts time.Time, bytes int) model.ConnectionState {
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[key]
	if !ok {
		conn = &model.ConnectionState{StartTime: ts}
		s.conns[key] = conn
	}
	if ts.After(conn.LastSeen) {
		conn.LastSeen = ts
	}
	if conn.LastSeen.Before(conn.StartTime) {
		conn.LastSeen = conn.StartTime
	}
	conn.ByteCount += uint64(bytes)
	conn.PacketCount++
	return *conn
}

// Duration returns how long the flow has been alive, 0 for unknown flows.
func (t *ConnTracker) Duration(key model.FlowKey) float64 {
	s := t.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.conns[key]
	if !ok {
		return 0
	}
	return conn.LastSeen.Sub(conn.StartTime).Seconds()
}

// End removes the flow and returns its final duration, or false if the flow
// was not tracked.
func (t *ConnTracker) End(key model.FlowKey) (float64, bool) {
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[key]
	if !ok {
		return 0, false
	}
	delete(s.conns, key)
	return conn.LastSeen.Sub(conn.StartTime).Seconds(), true
}

// SweepIdle evicts flows idle longer than the timeout and returns how many
// were removed. Each shard is locked only for its own scan.
func (t *ConnTracker) SweepIdle(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	evicted := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, conn := range s.conns {
			if conn.LastSeen.Before(cutoff) {
				delete(s.conns, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Len returns the number of tracked flows.
func (t *ConnTracker) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.conns)
		s.mu.RUnlock()
	}
	return n
}
