package detect

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/hed1ad/goguardml/pkg/detectors/iforest"

	"netsentry/internal/model"
)

// TrainingState is the anomaly scorer life cycle.
type TrainingState int

const (
	StateUntrained TrainingState = iota
	StateCollecting
	StateTrained
)

func (s TrainingState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateTrained:
		return "trained"
	default:
		return "untrained"
	}
}

// ConfidenceTransform converts the raw decision distance from the forest
// threshold into [0,1] confidence. Every transform here is a heuristic, not
// a calibrated probability, which is why it is kept configurable.
type ConfidenceTransform func(decision float64) float64

// AbsClamp clamps |decision| to [0,1].
func AbsClamp(decision float64) float64 {
	c := math.Abs(decision)
	if c > 1 {
		return 1
	}
	return c
}

// SpreadAbsClamp widens the decision band by the given factor before
// clamping. Forest scores cluster tightly around the threshold, so the
// default transform uses spread 2 to use more of the [0,1] range.
func SpreadAbsClamp(spread float64) ConfidenceTransform {
	return func(decision float64) float64 {
		return AbsClamp(decision * spread)
	}
}

// forestModel is the slice of the isolation-forest API the scorer uses.
type forestModel interface {
	Fit(data [][]float64) error
	Predict(data [][]float64) ([]float64, error)
	Threshold() float64
}

// AnomalyConfig tunes the scorer.
type AnomalyConfig struct {
	MinSamples int     // samples needed before the first fit
	Threshold  float64 // confidence gate for emitting a detection
	BufferCap  int     // bounded sample buffer, defaults to 4*MinSamples
	ModelPath  string  // persist location, empty disables persistence
	Transform  ConfidenceTransform
}

// AnomalyScorer is the unsupervised detector. It self-trains once enough
// samples are collected and refits periodically to follow drift.
type AnomalyScorer struct {
	mu sync.Mutex

	cfg    AnomalyConfig
	state  TrainingState
	buffer [][]float64

	scaler *standardScaler
	forest forestModel

	trainedAt time.Time
	persists  int
}

// NewAnomalyScorer creates an untrained scorer.
func NewAnomalyScorer(cfg AnomalyConfig) *AnomalyScorer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 500
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = cfg.MinSamples * 4
	}
	if cfg.Transform == nil {
		cfg.Transform = SpreadAbsClamp(2)
	}
	return &AnomalyScorer{cfg: cfg, state: StateUntrained}
}

// State returns the current life-cycle state.
func (a *AnomalyScorer) State() TrainingState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PersistCount reports how many times the model was persisted.
func (a *AnomalyScorer) PersistCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persists
}

// Observe appends a sample to the bounded buffer and fits the model once
// the training threshold is reached. The oldest samples are discarded when
// the buffer is full.
func (a *AnomalyScorer) Observe(v model.FeatureVector) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateUntrained {
		a.state = StateCollecting
	}
	a.buffer = append(a.buffer, v.Slice())
	if len(a.buffer) > a.cfg.BufferCap {
		a.buffer = a.buffer[len(a.buffer)-a.cfg.BufferCap:]
	}
	if a.state == StateCollecting && len(a.buffer) >= a.cfg.MinSamples {
		if err := a.fitLocked(); err != nil {
			log.Printf("anomaly: initial training failed: %v", err)
			return
		}
		a.state = StateTrained
		a.persistLocked()
	}
}

// Retrain refits on the current buffer contents regardless of state, as
// long as enough samples exist. Called on the periodic retrain tick.
func (a *AnomalyScorer) Retrain() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buffer) < a.cfg.MinSamples {
		return fmt.Errorf("anomaly retrain: %d samples buffered, need %d", len(a.buffer), a.cfg.MinSamples)
	}
	if err := a.fitLocked(); err != nil {
		return err
	}
	a.state = StateTrained
	return nil
}

func (a *AnomalyScorer) fitLocked() error {
	a.scaler = fitScaler(a.buffer)
	scaled := a.scaler.transformAll(a.buffer)

	forest := iforest.New(
		iforest.WithTrees(100),
		iforest.WithSampleSize(256),
		iforest.WithContamination(0.1),
	)
	if err := forest.Fit(scaled); err != nil {
		return fmt.Errorf("isolation forest fit: %w", err)
	}
	a.forest = forest
	a.trainedAt = time.Now()
	return nil
}

// Score evaluates one vector. Before the model is trained it reports
// "no anomaly" rather than an error. The returned confidence is the
// configured transform of the decision distance from the forest threshold.
func (a *AnomalyScorer) Score(v model.FeatureVector) (bool, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateTrained || a.forest == nil {
		return false, 0
	}
	scaled := a.scaler.transform(v.Slice())
	scores, err := a.forest.Predict([][]float64{scaled})
	if err != nil || len(scores) == 0 {
		log.Printf("anomaly: predict failed: %v", err)
		return false, 0
	}
	decision := scores[0] - a.forest.Threshold()
	isAnomaly := decision >= 0
	return isAnomaly, a.cfg.Transform(decision)
}

// Detect wraps Score into the detection contract: a detection is emitted
// only when the anomaly confidence clears the configured threshold.
func (a *AnomalyScorer) Detect(rec *model.PacketRecord, v model.FeatureVector) *model.Detection {
	isAnomaly, conf := a.Score(v)
	if !isAnomaly || conf <= a.cfg.Threshold {
		return nil
	}
	severity := model.SeverityMedium
	if conf >= 0.8 {
		severity = model.SeverityHigh
	}
	d := &model.Detection{
		Kind:        model.KindAnomaly,
		SignatureID: "anomaly",
		Severity:    severity,
		Confidence:  conf,
		Description: fmt.Sprintf("Traffic diverges from learned baseline (confidence %.2f)", conf),
		Source:      "isolation_forest",
		CreatedAt:   rec.Timestamp,
		DstPort:     rec.DstPort,
	}
	if rec.SrcIP != nil {
		d.SrcIP = rec.SrcIP.String()
	}
	if rec.DstIP != nil {
		d.DstIP = rec.DstIP.String()
	}
	return d
}

// persistedModel is what survives across restarts: the scaler and enough
// buffer to refit immediately. The forest itself is rebuilt on load.
type persistedModel struct {
	TrainedAt time.Time   `json:"trained_at"`
	Means     []float64   `json:"means"`
	Stddevs   []float64   `json:"stddevs"`
	Samples   [][]float64 `json:"samples"`
}

func (a *AnomalyScorer) persistLocked() {
	if a.cfg.ModelPath == "" {
		a.persists++
		return
	}
	pm := persistedModel{
		TrainedAt: a.trainedAt,
		Means:     a.scaler.means,
		Stddevs:   a.scaler.stddevs,
		Samples:   a.buffer,
	}
	data, err := json.Marshal(pm)
	if err != nil {
		log.Printf("anomaly: persist marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(a.cfg.ModelPath, data, 0o644); err != nil {
		log.Printf("anomaly: persist to %s failed: %v", a.cfg.ModelPath, err)
		return
	}
	a.persists++
	log.Printf("anomaly: model persisted to %s (%d samples)", a.cfg.ModelPath, len(a.buffer))
}

// LoadPersisted restores a previously persisted model and refits the
// forest from its samples. Missing files are not an error; the scorer just
// starts untrained.
func (a *AnomalyScorer) LoadPersisted() error {
	if a.cfg.ModelPath == "" {
		return nil
	}
	data, err := os.ReadFile(a.cfg.ModelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("anomaly load: %w", err)
	}
	var pm persistedModel
	if err := json.Unmarshal(data, &pm); err != nil {
		return fmt.Errorf("anomaly load: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = pm.Samples
	if len(a.buffer) < a.cfg.MinSamples {
		a.state = StateCollecting
		return nil
	}
	if err := a.fitLocked(); err != nil {
		return err
	}
	a.state = StateTrained
	log.Printf("anomaly: restored model trained at %s with %d samples", pm.TrainedAt.Format(time.RFC3339), len(a.buffer))
	return nil
}

// standardScaler centers and scales features column-wise.
type standardScaler struct {
	means   []float64
	stddevs []float64
}

func fitScaler(samples [][]float64) *standardScaler {
	if len(samples) == 0 {
		return &standardScaler{}
	}
	dim := len(samples[0])
	s := &standardScaler{
		means:   make([]float64, dim),
		stddevs: make([]float64, dim),
	}
	for _, row := range samples {
		for j, v := range row {
			s.means[j] += v
		}
	}
	n := float64(len(samples))
	for j := range s.means {
		s.means[j] /= n
	}
	for _, row := range samples {
		for j, v := range row {
			d := v - s.means[j]
			s.stddevs[j] += d * d
		}
	}
	for j := range s.stddevs {
		s.stddevs[j] = math.Sqrt(s.stddevs[j] / n)
		if s.stddevs[j] == 0 {
			s.stddevs[j] = 1
		}
	}
	return s
}

func (s *standardScaler) transform(row []float64) []float64 {
	if len(s.means) == 0 {
		return row
	}
	out := make([]float64, len(row))
	for j, v := range row {
		if j < len(s.means) {
			out[j] = (v - s.means[j]) / s.stddevs[j]
		} else {
			out[j] = v
		}
	}
	return out
}

func (s *standardScaler) transformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = s.transform(r)
	}
	return out
}
