package detect

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"netsentry/internal/model"
)

// FeatureSchema is negotiated once at model load and reused per call.
type FeatureSchema struct {
	Names       []string
	ExpectedLen int
}

// BinaryModel is the pluggable benign(0)/malicious(1) classifier contract.
// Training happens elsewhere; only inference is in scope here.
type BinaryModel interface {
	IsTrained() bool
	Schema() FeatureSchema
	// PredictProba returns [p_benign, p_malicious] for a vector already
	// reconciled to the schema length.
	PredictProba(features []float64) ([2]float64, error)
}

// ClassResult is the outcome of one classification call.
type ClassResult struct {
	Label         string     `json:"label"` // "benign" or "malicious"
	Confidence    float64    `json:"confidence"`
	Probabilities [2]float64 `json:"probabilities"`
}

// Classifier wraps a BinaryModel with schema reconciliation and the
// detection threshold.
type Classifier struct {
	mu        sync.RWMutex
	modelImpl BinaryModel
	threshold float64
}

// NewClassifier creates a classifier. A nil model means "not loaded": every
// input classifies as benign with zero confidence and no detection.
func NewClassifier(m BinaryModel, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Classifier{modelImpl: m, threshold: threshold}
}

// IsTrained reports whether a usable model is loaded.
func (c *Classifier) IsTrained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelImpl != nil && c.modelImpl.IsTrained()
}

// SetModel swaps the underlying model, e.g. after an external retrain.
func (c *Classifier) SetModel(m BinaryModel) {
	c.mu.Lock()
	c.modelImpl = m
	c.mu.Unlock()
}

// Reconcile maps a named-feature map onto the model's schema: named
// features missing from the map default to 0.0, and the result is always
// exactly ExpectedLen long regardless of the map's size.
func Reconcile(named map[string]float64, schema FeatureSchema) []float64 {
	out := make([]float64, schema.ExpectedLen)
	for i := 0; i < schema.ExpectedLen && i < len(schema.Names); i++ {
		out[i] = named[schema.Names[i]]
	}
	return out
}

// Classify reconciles the named features against the model schema and runs
// inference.
func (c *Classifier) Classify(named map[string]float64) (ClassResult, error) {
	c.mu.RLock()
	m := c.modelImpl
	c.mu.RUnlock()

	if m == nil || !m.IsTrained() {
		return ClassResult{Label: "benign"}, nil
	}
	features := Reconcile(named, m.Schema())
	probs, err := m.PredictProba(features)
	if err != nil {
		return ClassResult{}, fmt.Errorf("classify: %w", err)
	}
	res := ClassResult{Probabilities: probs}
	if probs[1] >= probs[0] {
		res.Label = "malicious"
		res.Confidence = probs[1]
	} else {
		res.Label = "benign"
		res.Confidence = probs[0]
	}
	return res, nil
}

// Detect emits a detection only for confident malicious classifications.
func (c *Classifier) Detect(rec *model.PacketRecord, v model.FeatureVector) *model.Detection {
	res, err := c.Classify(v.Named())
	if err != nil || res.Label != "malicious" || res.Confidence < c.threshold {
		return nil
	}
	severity := model.SeverityMedium
	if res.Confidence > 0.9 {
		severity = model.SeverityHigh
	}
	d := &model.Detection{
		Kind:        model.KindClassification,
		SignatureID: "ml_classification",
		Severity:    severity,
		Confidence:  res.Confidence,
		Description: fmt.Sprintf("Classifier labeled traffic malicious (p=%.2f)", res.Probabilities[1]),
		Source:      "binary_classifier",
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

// logisticModel is the default BinaryModel: a logistic regression whose
// weights were produced by an external training pipeline and loaded from a
// JSON file.
type logisticModel struct {
	schema    FeatureSchema
	weights   []float64
	intercept float64
}

type logisticModelFile struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Intercept    float64   `json:"intercept"`
}

// LoadLogisticModel reads model weights from disk. The schema is resolved
// once here and reused on every call.
func LoadLogisticModel(path string) (BinaryModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load classifier model: %w", err)
	}
	var mf logisticModelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("load classifier model: %w", err)
	}
	if len(mf.Weights) != len(mf.FeatureNames) || len(mf.Weights) == 0 {
		return nil, fmt.Errorf("load classifier model: %d weights for %d features", len(mf.Weights), len(mf.FeatureNames))
	}
	return &logisticModel{
		schema:    FeatureSchema{Names: mf.FeatureNames, ExpectedLen: len(mf.FeatureNames)},
		weights:   mf.Weights,
		intercept: mf.Intercept,
	}, nil
}

func (m *logisticModel) IsTrained() bool      { return len(m.weights) > 0 }
func (m *logisticModel) Schema() FeatureSchema { return m.schema }

func (m *logisticModel) PredictProba(features []float64) ([2]float64, error) {
	if len(features) != m.schema.ExpectedLen {
		return [2]float64{}, fmt.Errorf("expected %d features, got %d", m.schema.ExpectedLen, len(features))
	}
	z := m.intercept
	for i, w := range m.weights {
		z += w * features[i]
	}
	pMalicious := 1 / (1 + math.Exp(-z))
	return [2]float64{1 - pMalicious, pMalicious}, nil
}
