package notification

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"netsentry/internal/model"

	"github.com/gomarkdown/markdown"
)

// Digest accumulates high and critical detections and mails a consolidated
// summary on a periodic check. Low and medium detections are dropped; they
// live in the store and the API, not in anyone's inbox.
type Digest struct {
	notifier      model.Notifier
	checkInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup

	mu      sync.Mutex
	pending []model.Detection
}

// NewDigest creates a digest notifier with the given check interval.
func NewDigest(notifier model.Notifier, checkInterval time.Duration) *Digest {
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	return &Digest{
		notifier:      notifier,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// Add queues a detection for the next digest. Only high and critical
// severities are retained.
func (d *Digest) Add(det model.Detection) {
	if det.Severity != model.SeverityHigh && det.Severity != model.SeverityCritical {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, det)
	d.mu.Unlock()
}

// Start begins the periodic digest loop.
func (d *Digest) Start() {
	log.Println("Digest notifier started")

	d.wg.Add(1)
	defer d.wg.Done()

	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.flush()
		case <-d.stopChan:
			return
		}
	}
}

// Stop gracefully stops the loop and sends any remaining detections.
func (d *Digest) Stop() {
	log.Println("Stopping digest notifier...")
	close(d.stopChan)
	d.wg.Wait()
	d.flush()
}

// flush renders and sends the pending detections, if any.
func (d *Digest) flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	log.Printf("Digest check completed. %d detection(s) to report.", len(batch))

	md := renderMarkdown(batch)
	html := string(markdown.ToHTML([]byte(md), nil, nil))

	if d.notifier != nil {
		if err := d.notifier.Send(digestSubject(batch), md, html); err != nil {
			log.Printf("ERROR: Failed to send digest notification: %v", err)
		} else {
			log.Printf("INFO: Digest notification sent successfully.")
		}
	}
}

// digestSubject leads with the highest severity in the batch so inbox
// rules can route critical digests differently.
func digestSubject(dets []model.Detection) string {
	top := model.SeverityHigh
	for _, det := range dets {
		if det.Severity == model.SeverityCritical {
			top = model.SeverityCritical
			break
		}
	}
	return fmt.Sprintf("[%s] NetSentry Detection Digest (%d Triggered)",
		strings.ToUpper(string(top)), len(dets))
}

// renderMarkdown builds the digest body as markdown, grouped by severity.
func renderMarkdown(dets []model.Detection) string {
	var b strings.Builder
	b.WriteString("# NetSentry Detection Digest\n\n")
	b.WriteString("The following detections were recorded during the last check:\n\n")

	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityHigh} {
		var section []model.Detection
		for _, det := range dets {
			if det.Severity == sev {
				section = append(section, det)
			}
		}
		if len(section) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("## %s (%d)\n\n", strings.ToUpper(string(sev)), len(section)))
		for _, det := range section {
			b.WriteString(fmt.Sprintf("- **%s** from %s to %s:%d at %s (confidence %.2f): %s\n",
				det.SignatureID, det.SrcIP, det.DstIP, det.DstPort,
				det.CreatedAt.Format(time.RFC3339), det.Confidence, det.Description))
		}
		b.WriteString("\n")
	}
	return b.String()
}
