package detect

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"netsentry/internal/model"
)

// stubModel returns fixed probabilities for any input.
type stubModel struct {
	schema FeatureSchema
	probs  [2]float64
}

func (m *stubModel) IsTrained() bool       { return true }
func (m *stubModel) Schema() FeatureSchema { return m.schema }
func (m *stubModel) PredictProba(features []float64) ([2]float64, error) {
	return m.probs, nil
}

func fullSchema() FeatureSchema {
	return FeatureSchema{Names: model.FeatureNames[:], ExpectedLen: model.FeatureCount}
}

func TestReconcile_PadsMissingFeatures(t *testing.T) {
	schema := fullSchema()
	named := map[string]float64{model.FeatureNames[0]: 42}

	out := Reconcile(named, schema)
	if len(out) != schema.ExpectedLen {
		t.Fatalf("reconciled length = %d, want %d", len(out), schema.ExpectedLen)
	}
	if out[0] != 42 {
		t.Errorf("known feature = %.0f, want 42", out[0])
	}
	for i := 1; i < len(out); i++ {
		if out[i] != 0 {
			t.Errorf("missing feature %d = %.2f, want 0", i, out[i])
		}
	}
}

func TestReconcile_TruncatesExtraFeatures(t *testing.T) {
	schema := FeatureSchema{Names: []string{"a", "b"}, ExpectedLen: 2}
	named := map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4}

	out := Reconcile(named, schema)
	if len(out) != 2 {
		t.Fatalf("reconciled length = %d, want 2", len(out))
	}
	if out[0] != 1 || out[1] != 2 {
		t.Errorf("reconciled = %v, want [1 2]", out)
	}
}

func TestClassifier_NilModelIsBenign(t *testing.T) {
	c := NewClassifier(nil, 0.7)

	res, err := c.Classify(map[string]float64{"x": 1})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != "benign" || res.Confidence != 0 {
		t.Errorf("nil-model result = %+v, want benign/0", res)
	}
	if c.IsTrained() {
		t.Error("nil model reports trained")
	}

	rec := &model.PacketRecord{Timestamp: time.Now()}
	if d := c.Detect(rec, model.FeatureVector{}); d != nil {
		t.Errorf("nil-model Detect = %+v, want nil", d)
	}
}

func TestClassifier_DetectGating(t *testing.T) {
	rec := &model.PacketRecord{
		Timestamp: time.Now(),
		SrcIP:     net.IPv4(192, 168, 1, 5),
		DstIP:     net.IPv4(10, 0, 0, 9),
		DstPort:   443,
	}

	cases := []struct {
		name      string
		probs     [2]float64
		wantDet   bool
		wantSever model.Severity
	}{
		{"below threshold", [2]float64{0.4, 0.6}, false, ""},
		{"confident malicious", [2]float64{0.2, 0.8}, true, model.SeverityMedium},
		{"very confident malicious", [2]float64{0.05, 0.95}, true, model.SeverityHigh},
		{"benign", [2]float64{0.9, 0.1}, false, ""},
	}
	for _, tc := range cases {
		c := NewClassifier(&stubModel{schema: fullSchema(), probs: tc.probs}, 0.7)
		d := c.Detect(rec, model.FeatureVector{})
		if (d != nil) != tc.wantDet {
			t.Errorf("%s: detection = %v, want %v", tc.name, d != nil, tc.wantDet)
			continue
		}
		if d != nil {
			if d.Severity != tc.wantSever {
				t.Errorf("%s: severity = %q, want %q", tc.name, d.Severity, tc.wantSever)
			}
			if d.Kind != model.KindClassification {
				t.Errorf("%s: kind = %q, want classification", tc.name, d.Kind)
			}
		}
	}
}

func TestLoadLogisticModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classifier.json")
	content := `{
		"feature_names": ["packet_size", "protocol_type"],
		"weights": [0.01, -0.5],
		"intercept": -2.0
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadLogisticModel(path)
	if err != nil {
		t.Fatalf("LoadLogisticModel: %v", err)
	}
	if !m.IsTrained() {
		t.Error("loaded model reports untrained")
	}
	if m.Schema().ExpectedLen != 2 {
		t.Errorf("ExpectedLen = %d, want 2", m.Schema().ExpectedLen)
	}

	probs, err := m.PredictProba([]float64{0, 0})
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	// sigmoid(-2.0) is about 0.12, so p_benign must dominate.
	if probs[0] <= probs[1] {
		t.Errorf("probs = %v, want benign to dominate at the intercept", probs)
	}

	if _, err := m.PredictProba([]float64{1, 2, 3}); err == nil {
		t.Error("PredictProba accepted a wrong-length vector")
	}
}

func TestLoadLogisticModel_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"feature_names":["a"],"weights":[1,2]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLogisticModel(path); err == nil {
		t.Error("mismatched weights/names should fail to load")
	}
	if _, err := LoadLogisticModel(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing file should fail to load")
	}
}
