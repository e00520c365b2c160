package detect

import (
	"fmt"
	"net"
	"testing"
	"time"

	"netsentry/internal/model"
)

func packetWithPayload(payload string) *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp:   time.Now(),
		SrcIP:       net.IPv4(192, 168, 1, 77),
		DstIP:       net.IPv4(10, 0, 0, 1),
		SrcPort:     50000,
		DstPort:     8080,
		Protocol:    model.ProtoTCP,
		Length:      len(payload),
		Payload:     []byte(payload),
		PayloadSize: len(payload),
	}
}

func TestMatch_SQLInjectionInPayload(t *testing.T) {
	m := NewSignatureMatcher(1000, time.Minute)
	rec := packetWithPayload("GET /items?id=1 union select * from users")

	dets := m.Match(rec)
	if len(dets) == 0 {
		t.Fatal("no detection for SQL injection payload")
	}
	d := dets[0]
	if d.SignatureID != "sql_injection" {
		t.Errorf("SignatureID = %q, want sql_injection", d.SignatureID)
	}
	if d.Severity != model.SeverityHigh {
		t.Errorf("Severity = %q, want high", d.Severity)
	}
	if d.Confidence != 0.9 {
		t.Errorf("Confidence = %.2f, want 0.9 for a payload match", d.Confidence)
	}
}

func TestMatch_OneDetectionPerPatternSet(t *testing.T) {
	m := NewSignatureMatcher(1000, time.Minute)
	// Payload matches both sql_injection and xss_attack patterns; only the
	// first matching rule fires.
	rec := packetWithPayload("union select <script> document.cookie")

	count := 0
	for _, d := range m.Match(rec) {
		if d.Source == "payload" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("pattern detections = %d, want exactly 1", count)
	}
}

func TestMatch_SuspiciousUserAgent(t *testing.T) {
	m := NewSignatureMatcher(1000, time.Minute)
	rec := packetWithPayload("")
	rec.HTTP = &model.HTTPHints{Method: "GET", URI: "/index.html", UserAgent: "sqlmap/1.7"}

	dets := m.Match(rec)
	if len(dets) != 1 {
		t.Fatalf("detections = %d, want 1", len(dets))
	}
	if dets[0].SignatureID != "suspicious_scanner" || dets[0].Source != "user_agent" {
		t.Errorf("got %s/%s, want suspicious_scanner/user_agent", dets[0].SignatureID, dets[0].Source)
	}
	if dets[0].Confidence != 0.7 {
		t.Errorf("Confidence = %.2f, want 0.7 for a user-agent match", dets[0].Confidence)
	}
}

func TestMatch_PortScanPattern(t *testing.T) {
	m := NewSignatureMatcher(1000, time.Minute)
	src := net.IPv4(10, 0, 0, 5)
	now := time.Now()

	var last []model.Detection
	for port := 1; port <= 11; port++ {
		rec := &model.PacketRecord{
			Timestamp: now.Add(time.Duration(port) * time.Millisecond),
			SrcIP:     src,
			DstIP:     net.IPv4(192, 168, 1, 1),
			DstPort:   uint16(port),
			Protocol:  model.ProtoTCP,
			Length:    60,
		}
		last = m.Match(rec)
	}

	found := false
	for _, d := range last {
		if d.SignatureID == "port_scan" {
			found = true
			if d.Severity != model.SeverityMedium {
				t.Errorf("port_scan severity = %q, want medium", d.Severity)
			}
			if d.SrcIP != "10.0.0.5" {
				t.Errorf("port_scan SrcIP = %q, want 10.0.0.5", d.SrcIP)
			}
		}
	}
	if !found {
		t.Fatal("11 distinct ports did not trigger port_scan")
	}
}

func TestMatch_PortScanNeedsDistinctPorts(t *testing.T) {
	m := NewSignatureMatcher(1000, time.Minute)
	src := net.IPv4(10, 0, 0, 6)
	now := time.Now()

	var last []model.Detection
	for i := 0; i < 50; i++ {
		rec := &model.PacketRecord{
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			SrcIP:     src,
			DstIP:     net.IPv4(192, 168, 1, 1),
			DstPort:   443,
			Protocol:  model.ProtoTCP,
			Length:    60,
		}
		last = m.Match(rec)
	}

	for _, d := range last {
		if d.SignatureID == "port_scan" {
			t.Error("port_scan fired for repeated traffic to a single port")
		}
	}
}

func TestMatch_DosPattern(t *testing.T) {
	m := NewSignatureMatcher(1000, time.Minute)
	src := net.IPv4(10, 0, 0, 7)
	now := time.Now()

	var last []model.Detection
	for i := 0; i < 101; i++ {
		rec := &model.PacketRecord{
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			SrcIP:     src,
			DstIP:     net.IPv4(192, 168, 1, 1),
			DstPort:   80,
			Protocol:  model.ProtoTCP,
			Length:    60,
		}
		last = m.Match(rec)
	}

	found := false
	for _, d := range last {
		if d.SignatureID == "dos_attack" {
			found = true
			if d.Severity != model.SeverityHigh || d.Confidence != 0.9 {
				t.Errorf("dos_attack got %q/%.2f, want high/0.9", d.Severity, d.Confidence)
			}
		}
	}
	if !found {
		t.Fatal("101 packets in the window did not trigger dos_attack")
	}
}

func TestMatch_WindowEvictsOldEntries(t *testing.T) {
	// With a tiny ring the oldest packets fall out, so a slow scan spread
	// beyond the capacity never accumulates enough distinct ports.
	m := NewSignatureMatcher(5, time.Minute)
	src := net.IPv4(10, 0, 0, 8)
	now := time.Now()

	for port := 1; port <= 20; port++ {
		rec := &model.PacketRecord{
			Timestamp: now.Add(time.Duration(port) * time.Millisecond),
			SrcIP:     src,
			DstIP:     net.IPv4(192, 168, 1, 1),
			DstPort:   uint16(port),
			Protocol:  model.ProtoTCP,
			Length:    60,
		}
		for _, d := range m.Match(rec) {
			if d.SignatureID == "port_scan" {
				t.Fatalf("port_scan fired at port %d despite capacity 5", port)
			}
		}
	}
}

func TestAsciiPayload(t *testing.T) {
	got := asciiPayload([]byte{'G', 'E', 'T', 0x00, 0xff, ' ', '/'})
	want := "GET.. /"
	if got != want {
		t.Errorf("asciiPayload = %q, want %q", got, want)
	}
	if asciiPayload(nil) != "" {
		t.Error("asciiPayload(nil) should be empty")
	}
}

func BenchmarkMatch(b *testing.B) {
	m := NewSignatureMatcher(1000, time.Minute)
	recs := make([]*model.PacketRecord, 64)
	for i := range recs {
		recs[i] = packetWithPayload(fmt.Sprintf("GET /page/%d HTTP/1.1", i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Match(recs[i%len(recs)])
	}
}
