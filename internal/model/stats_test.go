package model

import (
	"testing"
	"time"
)

func TestSnapshot_CountsAndRates(t *testing.T) {
	s := NewCaptureStats()
	now := time.Now()
	s.RecordPacket(100, now)
	s.RecordPacket(300, now)
	s.RecordDrop()
	s.SetQueueSize(7)

	snap := s.Snapshot()
	if snap.TotalPackets != 2 || snap.TotalBytes != 400 {
		t.Errorf("totals = %d pkts / %d bytes, want 2 / 400", snap.TotalPackets, snap.TotalBytes)
	}
	if snap.DroppedPackets != 1 {
		t.Errorf("dropped = %d, want 1", snap.DroppedPackets)
	}
	if snap.QueueSize != 7 {
		t.Errorf("queue size = %d, want 7", snap.QueueSize)
	}
	if snap.PacketRate <= 0 || snap.ByteRate <= 0 {
		t.Errorf("rates = %f / %f, want positive", snap.PacketRate, snap.ByteRate)
	}
}

func TestSnapshot_HealthyWhileDropsLow(t *testing.T) {
	s := NewCaptureStats()
	if !s.Snapshot().Healthy {
		t.Error("fresh stats should be healthy")
	}

	now := time.Now()
	for i := 0; i < 10; i++ {
		s.RecordPacket(60, now)
	}
	s.RecordDrop()
	if !s.Snapshot().Healthy {
		t.Error("1 drop against 10 packets should stay healthy")
	}

	for i := 0; i < 10; i++ {
		s.RecordDrop()
	}
	if s.Snapshot().Healthy {
		t.Error("11 drops against 10 packets should be unhealthy")
	}
}

func TestAddDegraded_DeduplicatesReasons(t *testing.T) {
	s := NewCaptureStats()
	s.AddDegraded("alert store unavailable")
	s.AddDegraded("alert store unavailable")
	s.AddDegraded("capture failed permanently")

	snap := s.Snapshot()
	if len(snap.Degraded) != 2 {
		t.Fatalf("degraded reasons = %v, want 2 distinct entries", snap.Degraded)
	}
	if snap.Healthy {
		t.Error("degraded process reported healthy")
	}
}
