package feature

import (
	"net"
	"testing"
	"time"

	"netsentry/internal/model"
)

func testRecord() *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp: time.Now(),
		SrcIP:     net.IPv4(192, 168, 1, 10),
		DstIP:     net.IPv4(10, 0, 0, 1),
		SrcPort:   55000,
		DstPort:   443,
		Protocol:  model.ProtoTCP,
		Length:    1200,
	}
}

func TestExtract_VectorShape(t *testing.T) {
	e := NewWithDefaults()
	v := e.Extract(testRecord())

	if len(v) != model.FeatureCount {
		t.Fatalf("vector length = %d, want %d", len(v), model.FeatureCount)
	}
	if v[model.FeatPacketSize] != 1200 {
		t.Errorf("packet size feature = %.0f, want 1200", v[model.FeatPacketSize])
	}
	if v[model.FeatProtocolType] != float64(model.ProtoTCP.Number) {
		t.Errorf("protocol feature = %.0f, want %d", v[model.FeatProtocolType], model.ProtoTCP.Number)
	}
}

func TestExtract_NilRecordYieldsZeroVector(t *testing.T) {
	e := NewWithDefaults()
	for _, rec := range []*model.PacketRecord{nil, {Timestamp: time.Now()}} {
		v := e.Extract(rec)
		for i, f := range v {
			if f != 0 {
				t.Errorf("feature %d = %.2f for unplaceable packet, want 0", i, f)
			}
		}
	}
}

func TestExtract_FailedLoginsFeature(t *testing.T) {
	e := NewWithDefaults()
	rec := testRecord()

	for i := 0; i < 3; i++ {
		e.Logins().RecordFailed(rec.SrcIP.String())
	}

	v := e.Extract(rec)
	if v[model.FeatFailedLogins] != 3 {
		t.Errorf("failed-logins feature = %.0f, want 3", v[model.FeatFailedLogins])
	}
}

func TestExtract_ConnectionDurationGrows(t *testing.T) {
	e := NewWithDefaults()
	rec := testRecord()

	first := e.Extract(rec)
	if first[model.FeatConnectionDuration] != 0 {
		t.Errorf("duration on first packet = %.2f, want 0", first[model.FeatConnectionDuration])
	}

	later := testRecord()
	later.Timestamp = rec.Timestamp.Add(3 * time.Second)
	second := e.Extract(later)
	if second[model.FeatConnectionDuration] < 2.9 {
		t.Errorf("duration after 3s = %.2f, want about 3.0", second[model.FeatConnectionDuration])
	}
}

func TestFeatureVector_NamedOrder(t *testing.T) {
	var v model.FeatureVector
	for i := range v {
		v[i] = float64(i + 1)
	}
	named := v.Named()
	if len(named) != model.FeatureCount {
		t.Fatalf("Named returned %d entries, want %d", len(named), model.FeatureCount)
	}
	for i, name := range model.FeatureNames {
		if named[name] != float64(i+1) {
			t.Errorf("named[%q] = %.0f, want %d", name, named[name], i+1)
		}
	}
}
