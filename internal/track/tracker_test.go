package track

import (
	"testing"
	"time"

	"netsentry/internal/model"
)

func TestConnTracker_StartOrTouch(t *testing.T) {
	tr := NewConnTracker()
	key := model.FlowKey{SrcIP: "192.168.1.10", DstIP: "10.0.0.1", DstPort: 443}
	start := time.Now()

	st := tr.StartOrTouch(key, start, 100)
	if st.PacketCount != 1 || st.ByteCount != 100 {
		t.Fatalf("first touch: got %d packets / %d bytes", st.PacketCount, st.ByteCount)
	}

	st = tr.StartOrTouch(key, start.Add(2*time.Second), 50)
	if st.PacketCount != 2 || st.ByteCount != 150 {
		t.Fatalf("second touch: got %d packets / %d bytes", st.PacketCount, st.ByteCount)
	}
	if !st.StartTime.Equal(start) {
		t.Errorf("StartTime changed on touch: %v != %v", st.StartTime, start)
	}

	got := tr.Duration(key)
	if got < 1.9 || got > 2.1 {
		t.Errorf("Duration = %.2f, want about 2.0", got)
	}
}

func TestConnTracker_DurationUnknownFlow(t *testing.T) {
	tr := NewConnTracker()
	key := model.FlowKey{SrcIP: "1.2.3.4", DstIP: "5.6.7.8", DstPort: 80}
	if d := tr.Duration(key); d != 0 {
		t.Errorf("Duration for unknown flow = %.2f, want 0", d)
	}
}

func TestConnTracker_OutOfOrderTimestamps(t *testing.T) {
	tr := NewConnTracker()
	key := model.FlowKey{SrcIP: "192.168.1.10", DstIP: "10.0.0.1", DstPort: 22}
	now := time.Now()

	tr.StartOrTouch(key, now, 10)
	// A packet with an older timestamp must not move LastSeen backwards.
	st := tr.StartOrTouch(key, now.Add(-5*time.Second), 10)
	if st.LastSeen.Before(st.StartTime) {
		t.Errorf("LastSeen %v went behind StartTime %v", st.LastSeen, st.StartTime)
	}
}

func TestConnTracker_End(t *testing.T) {
	tr := NewConnTracker()
	key := model.FlowKey{SrcIP: "192.168.1.10", DstIP: "10.0.0.1", DstPort: 443}
	now := time.Now()

	tr.StartOrTouch(key, now, 100)
	tr.StartOrTouch(key, now.Add(time.Second), 100)

	dur, ok := tr.End(key)
	if !ok {
		t.Fatal("End reported unknown flow")
	}
	if dur < 0.9 || dur > 1.1 {
		t.Errorf("final duration = %.2f, want about 1.0", dur)
	}
	if _, ok := tr.End(key); ok {
		t.Error("End succeeded twice for the same flow")
	}
	if tr.Len() != 0 {
		t.Errorf("tracker still holds %d flows after End", tr.Len())
	}
}

func TestConnTracker_SweepIdle(t *testing.T) {
	tr := NewConnTracker()
	now := time.Now()

	stale := model.FlowKey{SrcIP: "192.168.1.10", DstIP: "10.0.0.1", DstPort: 80}
	fresh := model.FlowKey{SrcIP: "192.168.1.11", DstIP: "10.0.0.2", DstPort: 443}
	tr.StartOrTouch(stale, now.Add(-10*time.Minute), 100)
	tr.StartOrTouch(fresh, now, 100)

	evicted := tr.SweepIdle(5 * time.Minute)
	if evicted != 1 {
		t.Fatalf("SweepIdle evicted %d flows, want 1", evicted)
	}
	if d := tr.Duration(stale); d != 0 {
		t.Error("stale flow still tracked after sweep")
	}
	if d := tr.Duration(fresh); d < 0 {
		t.Error("fresh flow lost in sweep")
	}
	if tr.Len() != 1 {
		t.Errorf("tracker holds %d flows, want 1", tr.Len())
	}
}
