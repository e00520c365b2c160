// Package engine wires capture, decoding, feature extraction, detection and
// alerting into the live ingest pipeline.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"netsentry/internal/capture"
	"netsentry/internal/config"
	"netsentry/internal/decode"
	"netsentry/internal/dedup"
	"netsentry/internal/detect"
	"netsentry/internal/feature"
	"netsentry/internal/model"
	"netsentry/internal/notification"
	"netsentry/internal/probe"

	"github.com/google/gopacket/pcap"
)

// Manager orchestrates the capture worker, the processing worker, the
// eviction sweeper and the supervisor.
type Manager struct {
	cfg       *config.Config
	extractor *feature.Extractor
	orch      *detect.Orchestrator
	deduper   *dedup.Deduper
	stats     *model.CaptureStats
	whitelist *capture.Whitelist

	publisher *probe.Publisher     // optional NATS fan-out
	digest    *notification.Digest // optional email digest

	queue chan *model.PacketRecord

	captureMu    sync.Mutex
	live         *capture.Live
	captureAlive atomic.Bool
	stopping     atomic.Bool

	// Retry count is touched only by the supervisor goroutine; the
	// analysis-only flag is read from other goroutines too.
	retries      int
	analysisOnly atomic.Bool

	done      chan struct{}
	captureWg sync.WaitGroup
	workerWg  sync.WaitGroup
	loopWg    sync.WaitGroup
}

// Options carries the optional collaborators of a Manager.
type Options struct {
	Whitelist *capture.Whitelist
	Publisher *probe.Publisher
	Digest    *notification.Digest
}

// NewManager creates a Manager around the detection pipeline. The ingest
// queue is bounded by capture.queue_size; when it is full new packets are
// dropped and counted rather than blocking the capture worker.
func NewManager(cfg *config.Config, extractor *feature.Extractor, orch *detect.Orchestrator, deduper *dedup.Deduper, stats *model.CaptureStats, opts Options) *Manager {
	return &Manager{
		cfg:       cfg,
		extractor: extractor,
		orch:      orch,
		deduper:   deduper,
		stats:     stats,
		whitelist: opts.Whitelist,
		publisher: opts.Publisher,
		digest:    opts.Digest,
		queue:     make(chan *model.PacketRecord, cfg.Capture.QueueSize),
		done:      make(chan struct{}),
	}
}

// Start opens the capture handle and launches all pipeline goroutines.
// A capture open failure does not kill the engine; it starts in
// analysis-only mode and records the degradation.
func (m *Manager) Start() {
	iface := m.cfg.Capture.Interface
	if iface == "auto-detect" {
		detected, err := capture.AutoDetect()
		if err != nil {
			log.Printf("Interface auto-detection failed: %v", err)
		} else {
			iface = detected
			log.Printf("Auto-detected capture interface %s", iface)
		}
	}

	if iface != "" && iface != "auto-detect" {
		if err := m.openCapture(iface); err != nil {
			log.Printf("Capture unavailable: %v", err)
			m.enterAnalysisOnly("capture open failed: " + err.Error())
		}
	} else {
		m.enterAnalysisOnly("no capture interface configured")
	}

	// A single processing worker keeps the connection-pattern windows in
	// arrival order.
	m.workerWg.Add(1)
	go m.processingWorker()

	m.loopWg.Add(2)
	go m.runSweeper()
	go m.runSupervisor()

	if m.digest != nil {
		go m.digest.Start()
	}

	log.Printf("Engine started (queue capacity %d)", cap(m.queue))
}

// openCapture opens the live handle and launches the capture worker.
func (m *Manager) openCapture(iface string) error {
	timeout := config.Duration(m.cfg.Capture.CaptureTimeout, 100*time.Millisecond)
	live, err := capture.Open(iface, m.cfg.Capture.SnapLen, timeout)
	if err != nil {
		return err
	}

	m.captureMu.Lock()
	m.live = live
	m.captureMu.Unlock()

	m.captureAlive.Store(true)
	m.stats.SetCaptureActive(true)

	m.captureWg.Add(1)
	go m.captureWorker(live)
	log.Printf("Capture started on %s", iface)
	return nil
}

// captureWorker reads packets until the handle errors or the engine stops.
// Read timeouts are the normal idle path; they exist so the stop flag is
// rechecked at least every capture_timeout.
func (m *Manager) captureWorker(live *capture.Live) {
	defer m.captureWg.Done()
	defer m.captureAlive.Store(false)
	defer m.stats.SetCaptureActive(false)

	for {
		if m.stopping.Load() {
			return
		}
		pkt, err := live.NextPacket()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if m.stopping.Load() {
				return
			}
			log.Printf("Capture read error on %s: %v", live.Interface(), err)
			return
		}

		rec, err := decode.Decode(pkt)
		if err != nil {
			m.stats.RecordDrop()
			packetsDropped.WithLabelValues("unparseable").Inc()
			continue
		}

		if m.whitelist.Skip(rec) {
			// Whitelisted traffic still updates connection state so
			// durations stay accurate, but skips the detectors.
			m.extractor.Conns().StartOrTouch(rec.Flow(), rec.Timestamp, rec.Length)
			continue
		}

		m.Enqueue(rec)
	}
}

// Enqueue offers a record to the bounded ingest queue. When the queue is
// full the newest packet is dropped; the queue never blocks the producer.
func (m *Manager) Enqueue(rec *model.PacketRecord) {
	select {
	case m.queue <- rec:
	default:
		m.stats.RecordDrop()
		packetsDropped.WithLabelValues("queue_full").Inc()
	}
}

// processingWorker drains the queue and runs each packet through the full
// pipeline. The receive timeout keeps the occupancy gauges fresh during
// idle periods.
func (m *Manager) processingWorker() {
	defer m.workerWg.Done()
	for {
		select {
		case rec, ok := <-m.queue:
			if !ok {
				return
			}
			m.process(rec)
		case <-time.After(time.Second):
			m.stats.SetQueueSize(len(m.queue))
			queueOccupancy.Set(float64(len(m.queue)))
		}
	}
}

// process runs one packet through extraction, detection and alerting.
func (m *Manager) process(rec *model.PacketRecord) {
	m.stats.RecordPacket(rec.Length, rec.Timestamp)
	m.stats.SetQueueSize(len(m.queue))
	packetsProcessed.Inc()
	queueOccupancy.Set(float64(len(m.queue)))

	features := m.extractor.Extract(rec)
	detections := m.orch.Analyze(context.Background(), rec, features)

	for i := range detections {
		det := &detections[i]
		detectionsTotal.WithLabelValues(string(det.Kind), string(det.Severity)).Inc()

		outcome, err := m.deduper.Offer(context.Background(), det)
		if err != nil {
			log.Printf("Alert store error for %s: %v", det.SignatureID, err)
		}
		if m.deduper.Degraded() {
			m.stats.AddDegraded("alert store unavailable, dedup is in-memory only")
		}
		if outcome == dedup.Suppressed {
			alertsSuppressed.Inc()
			continue
		}

		log.Printf("DETECTION [%s/%s] %s from %s to %s:%d (confidence %.2f)",
			det.Kind, det.Severity, det.SignatureID, det.SrcIP, det.DstIP, det.DstPort, det.Confidence)

		if m.publisher != nil {
			if err := m.publisher.PublishDetection(det); err != nil {
				log.Printf("Failed to publish detection: %v", err)
			}
		}
		if m.digest != nil {
			m.digest.Add(*det)
		}
	}
}

// runSweeper periodically evicts idle connections and prunes stale dedup
// entries. Both calls hold their locks briefly; packet processing keeps
// running between shard sweeps.
func (m *Manager) runSweeper() {
	defer m.loopWg.Done()

	interval := config.Duration(m.cfg.Capture.SweepInterval, 30*time.Second)
	idle := config.Duration(m.cfg.Capture.IdleTimeout, 5*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evicted := m.extractor.Conns().SweepIdle(idle)
			pruned := m.deduper.Prune()
			connectionsTracked.Set(float64(m.extractor.Conns().Len()))
			if evicted > 0 || pruned > 0 {
				log.Printf("Sweep evicted %d idle connections, pruned %d dedup entries", evicted, pruned)
			}
		case <-m.done:
			return
		}
	}
}

// runSupervisor watches capture liveness and restarts a dead capture worker
// with exponential backoff. After max_retries consecutive failures the
// engine stays up in analysis-only mode.
func (m *Manager) runSupervisor() {
	defer m.loopWg.Done()

	interval := config.Duration(m.cfg.Capture.StatusInterval, 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkCapture()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) checkCapture() {
	if m.analysisOnly.Load() || m.stopping.Load() || m.captureAlive.Load() {
		if m.captureAlive.Load() {
			m.retries = 0
		}
		return
	}

	if m.retries >= m.cfg.Capture.MaxRetries {
		m.enterAnalysisOnly("capture restart retries exhausted")
		return
	}

	backoff := backoffFor(m.retries)
	m.retries++
	log.Printf("Capture worker is down, restart attempt %d/%d in %s",
		m.retries, m.cfg.Capture.MaxRetries, backoff)

	select {
	case <-time.After(backoff):
	case <-m.done:
		return
	}

	m.captureWg.Wait()
	iface := m.cfg.Capture.Interface
	if iface == "auto-detect" {
		if detected, err := capture.AutoDetect(); err == nil {
			iface = detected
		}
	}
	if err := m.openCapture(iface); err != nil {
		log.Printf("Capture restart failed: %v", err)
		return
	}
	captureRestarts.Inc()
	log.Printf("Capture restarted on attempt %d", m.retries)
}

// backoffFor doubles from 5s per retry and caps at 60s.
func backoffFor(retry int) time.Duration {
	d := 5 * time.Second
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= 60*time.Second {
			return 60 * time.Second
		}
	}
	return d
}

// enterAnalysisOnly permanently disables capture for this process. The
// processing worker and all feeds through Enqueue keep working.
func (m *Manager) enterAnalysisOnly(reason string) {
	m.analysisOnly.Store(true)
	m.stats.AddDegraded("analysis-only mode: " + reason)
	log.Printf("Entering analysis-only mode: %s", reason)
}

// AnalysisOnly reports whether live capture has been permanently disabled.
func (m *Manager) AnalysisOnly() bool {
	return m.analysisOnly.Load()
}

// Stop gracefully shuts down the pipeline. Buffered packets are drained
// before the workers exit.
func (m *Manager) Stop() {
	log.Println("Engine stopping...")
	m.stopping.Store(true)

	// 1. Close the capture handle to unblock the capture worker.
	m.captureMu.Lock()
	if m.live != nil {
		m.live.Close()
	}
	m.captureMu.Unlock()
	m.captureWg.Wait()

	// 2. Stop accepting new packets and drain the queue.
	close(m.queue)
	log.Println("Waiting for the processing worker to drain the queue...")
	m.workerWg.Wait()

	// 3. Stop the sweeper and supervisor.
	close(m.done)
	m.loopWg.Wait()

	// 4. Flush the digest last so shutdown detections still get mailed.
	if m.digest != nil {
		m.digest.Stop()
	}

	log.Println("Engine stopped.")
}
