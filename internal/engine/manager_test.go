package engine

import (
	"net"
	"testing"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/dedup"
	"netsentry/internal/detect"
	"netsentry/internal/feature"
	"netsentry/internal/model"
	"netsentry/internal/store"
)

func testManager(queueSize int) (*Manager, *model.CaptureStats) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Capture.QueueSize = queueSize

	extractor := feature.NewWithDefaults()
	matcher := detect.NewSignatureMatcher(1000, time.Minute)
	scorer := detect.NewAnomalyScorer(detect.AnomalyConfig{MinSamples: 1 << 20})
	classifier := detect.NewClassifier(nil, 0.7)
	orch := detect.NewOrchestrator(matcher, scorer, classifier, extractor.Logins(), nil, time.Hour)
	deduper := dedup.New(store.NewMemory(0), 5*time.Minute)
	stats := model.NewCaptureStats()

	return NewManager(cfg, extractor, orch, deduper, stats, Options{}), stats
}

func testPacket(i int) *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp: time.Now(),
		SrcIP:     net.IPv4(192, 168, 1, byte(i%250+1)),
		DstIP:     net.IPv4(10, 0, 0, 1),
		DstPort:   443,
		Protocol:  model.ProtoTCP,
		Length:    100,
	}
}

func TestEnqueue_DropsNewestWhenFull(t *testing.T) {
	m, stats := testManager(3)

	// No processing worker is running, so the queue fills and stays full.
	for i := 0; i < 10; i++ {
		m.Enqueue(testPacket(i))
	}

	if got := len(m.queue); got != 3 {
		t.Errorf("queue holds %d packets, capacity is 3", got)
	}
	snap := stats.Snapshot()
	if snap.DroppedPackets != 7 {
		t.Errorf("dropped = %d, want 7", snap.DroppedPackets)
	}
}

func TestEnqueue_NeverBlocks(t *testing.T) {
	m, _ := testManager(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Enqueue(testPacket(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestProcess_CountsAndDetects(t *testing.T) {
	m, stats := testManager(10)

	rec := testPacket(0)
	rec.Payload = []byte("GET /items?id=1 union select * from users")
	rec.PayloadSize = len(rec.Payload)
	m.process(rec)

	snap := stats.Snapshot()
	if snap.TotalPackets != 1 {
		t.Errorf("total packets = %d, want 1", snap.TotalPackets)
	}
	if m.deduper.Len() == 0 {
		t.Error("SQL injection packet produced no stored detections")
	}
}

func TestBackoffFor(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second},
		{9, 60 * time.Second},
	}
	for _, c := range cases {
		if got := backoffFor(c.retry); got != c.want {
			t.Errorf("backoffFor(%d) = %v, want %v", c.retry, got, c.want)
		}
	}
}

func TestEnterAnalysisOnly(t *testing.T) {
	m, stats := testManager(10)

	m.enterAnalysisOnly("capture restart retries exhausted")
	if !m.AnalysisOnly() {
		t.Error("manager not in analysis-only mode")
	}
	snap := stats.Snapshot()
	if snap.Healthy {
		t.Error("degraded engine still reports healthy")
	}
	if len(snap.Degraded) == 0 {
		t.Error("no degradation reason recorded")
	}

	// Packets delivered through Enqueue still process.
	m.Enqueue(testPacket(1))
	if len(m.queue) != 1 {
		t.Error("analysis-only mode rejected an enqueued packet")
	}
}
