package detect

import (
	"context"
	"log"
	"sync"
	"time"

	"netsentry/internal/model"
	"netsentry/internal/track"
)

// Orchestrator runs the three detectors over each packet and wires their
// side effects: brute-force notifications into the login tracker, sample
// collection for future training, and the periodic anomaly retrain.
type Orchestrator struct {
	signatures *SignatureMatcher
	anomaly    *AnomalyScorer
	classifier *Classifier

	logins    *track.LoginTracker
	collector model.SampleCollector // optional

	retrainEvery time.Duration
	retrainMu    sync.Mutex
	lastRetrain  time.Time
}

// NewOrchestrator assembles the detection pipeline. The sample collector
// may be nil.
func NewOrchestrator(sig *SignatureMatcher, anom *AnomalyScorer, cls *Classifier, logins *track.LoginTracker, collector model.SampleCollector, retrainEvery time.Duration) *Orchestrator {
	if retrainEvery <= 0 {
		retrainEvery = time.Hour
	}
	return &Orchestrator{
		signatures:   sig,
		anomaly:      anom,
		classifier:   cls,
		logins:       logins,
		collector:    collector,
		retrainEvery: retrainEvery,
		lastRetrain:  time.Now(),
	}
}

// Analyze runs every detector on the packet. Detectors run independently;
// one firing never short-circuits the others.
func (o *Orchestrator) Analyze(ctx context.Context, rec *model.PacketRecord, features model.FeatureVector) []model.Detection {
	detections := o.signatures.Match(rec)

	o.anomaly.Observe(features)
	if d := o.anomaly.Detect(rec, features); d != nil {
		detections = append(detections, *d)
	}
	if d := o.classifier.Detect(rec, features); d != nil {
		detections = append(detections, *d)
	}

	// A brute-force signature is also a login-failure observation for the
	// feature extractor's window.
	for _, d := range detections {
		if d.SignatureID == "brute_force" && d.SrcIP != "" {
			o.logins.RecordFailed(d.SrcIP)
		}
	}

	o.collectSample(ctx, rec, features, detections)
	o.maybeRetrain()

	return detections
}

// collectSample hands the auto-labeled sample to the external collector.
// Best-effort: failures are logged and forgotten.
func (o *Orchestrator) collectSample(ctx context.Context, rec *model.PacketRecord, features model.FeatureVector, detections []model.Detection) {
	if o.collector == nil {
		return
	}
	sample := model.Sample{
		Features:  features,
		DstPort:   rec.DstPort,
		Label:     "benign",
		LabeledBy: "auto",
		Timestamp: rec.Timestamp,
	}
	if rec.SrcIP != nil {
		sample.SrcIP = rec.SrcIP.String()
	}
	if rec.DstIP != nil {
		sample.DstIP = rec.DstIP.String()
	}
	if len(detections) > 0 {
		sample.Label = "malicious"
		sample.Confidence = 0.8
	} else {
		sample.Confidence = 0.6
	}
	if err := o.collector.Collect(ctx, sample); err != nil {
		log.Printf("sample collector unavailable: %v", err)
	}
}

// maybeRetrain refits the anomaly model once per retrain interval. Gated by
// wall clock, not packet count, so quiet links retrain just as often.
func (o *Orchestrator) maybeRetrain() {
	o.retrainMu.Lock()
	due := time.Since(o.lastRetrain) >= o.retrainEvery
	if due {
		o.lastRetrain = time.Now()
	}
	o.retrainMu.Unlock()
	if !due {
		return
	}
	go func() {
		if err := o.anomaly.Retrain(); err != nil {
			log.Printf("anomaly retrain skipped: %v", err)
		} else {
			log.Println("anomaly model retrained on current buffer")
		}
	}()
}
