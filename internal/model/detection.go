package model

import "time"

// DetectionKind says which stage of the pipeline produced a detection.
type DetectionKind string

const (
	KindSignature      DetectionKind = "signature"
	KindAnomaly        DetectionKind = "anomaly"
	KindClassification DetectionKind = "classification"
	KindHeuristic      DetectionKind = "heuristic"
)

// Severity is the closed severity scale shared by all detectors.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityWeight orders severities for comparisons and risk scoring.
var severityWeight = map[Severity]int{
	SeverityLow:      6,
	SeverityMedium:   12,
	SeverityHigh:     18,
	SeverityCritical: 25,
}

// Weight returns the risk weight of a severity, 0 for unknown values.
func (s Severity) Weight() int {
	return severityWeight[s]
}

// Detection is one finding produced by a detector for a single packet.
type Detection struct {
	Kind        DetectionKind `json:"kind"`
	SignatureID string        `json:"signature_id"`
	Severity    Severity      `json:"severity"`
	Confidence  float64       `json:"confidence"`
	Description string        `json:"description"`
	Source      string        `json:"source"` // which field or model produced the match
	CreatedAt   time.Time     `json:"created_at"`

	// Packet context, filled by the orchestrator before the hand-off
	// to the alert store.
	SrcIP   string `json:"src_ip,omitempty"`
	DstIP   string `json:"dst_ip,omitempty"`
	DstPort uint16 `json:"dst_port,omitempty"`
}
