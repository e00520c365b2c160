package notification

import (
	"strings"
	"sync"
	"testing"
	"time"

	"netsentry/internal/model"
)

// recordingNotifier captures sent messages.
type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	texts    []string
	htmls    []string
}

func (n *recordingNotifier) Send(subject, textBody, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.texts = append(n.texts, textBody)
	n.htmls = append(n.htmls, htmlBody)
	return nil
}

func sampleDetection(sev model.Severity, sigID string) model.Detection {
	return model.Detection{
		Kind:        model.KindSignature,
		SignatureID: sigID,
		Severity:    sev,
		Confidence:  0.9,
		Description: "test detection",
		SrcIP:       "10.0.0.5",
		DstIP:       "10.0.0.1",
		DstPort:     80,
		CreatedAt:   time.Now(),
	}
}

func TestDigest_KeepsOnlyHighAndCritical(t *testing.T) {
	d := NewDigest(&recordingNotifier{}, time.Hour)
	d.Add(sampleDetection(model.SeverityLow, "a"))
	d.Add(sampleDetection(model.SeverityMedium, "b"))
	d.Add(sampleDetection(model.SeverityHigh, "c"))
	d.Add(sampleDetection(model.SeverityCritical, "d"))

	d.mu.Lock()
	n := len(d.pending)
	d.mu.Unlock()
	if n != 2 {
		t.Errorf("pending = %d detections, want 2 (high and critical only)", n)
	}
}

func TestDigest_FlushSendsBothRenderings(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDigest(rec, time.Hour)
	d.Add(sampleDetection(model.SeverityHigh, "sql_injection"))
	d.flush()

	if len(rec.texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rec.texts))
	}
	if !strings.Contains(rec.texts[0], "sql_injection") {
		t.Error("plain-text body missing the detection")
	}
	if !strings.Contains(rec.htmls[0], "<h1>") {
		t.Error("HTML body not rendered from markdown")
	}

	// Nothing pending means nothing sent.
	d.flush()
	if len(rec.texts) != 1 {
		t.Error("empty flush sent a message")
	}
}

func TestDigestSubject_LeadsWithTopSeverity(t *testing.T) {
	high := []model.Detection{sampleDetection(model.SeverityHigh, "a")}
	if s := digestSubject(high); !strings.HasPrefix(s, "[HIGH]") {
		t.Errorf("subject = %q, want [HIGH] prefix", s)
	}
	mixed := append(high, sampleDetection(model.SeverityCritical, "b"))
	if s := digestSubject(mixed); !strings.HasPrefix(s, "[CRITICAL]") {
		t.Errorf("subject = %q, want [CRITICAL] prefix", s)
	}
}

func TestBuildMessage_MultipartAlternative(t *testing.T) {
	msg := string(buildMessage("nids@corp", "soc@corp", "[HIGH] digest", "plain part", "<p>html part</p>"))

	for _, want := range []string{
		"Subject: [HIGH] digest",
		"multipart/alternative",
		"Content-Type: text/plain; charset=UTF-8",
		"plain part",
		"Content-Type: text/html; charset=UTF-8",
		"<p>html part</p>",
		"--" + altBoundary + "--",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Index(msg, "plain part") > strings.Index(msg, "html part") {
		t.Error("plain-text part should come before the HTML part")
	}
}
