package batch

import (
	"fmt"

	"netsentry/internal/model"
)

// Risk source tags. A report never fabricates a score; when no signal is
// available the source says so explicitly.
const (
	riskSourceClassifier  = "classifier"
	riskSourceSeverity    = "severity_weights"
	riskSourceUnavailable = "unavailable"
)

// scoreRisk reduces the merged findings to one 0-100 score. Classifier
// confidences are the preferred signal; severity weights are the fallback.
func scoreRisk(findings []Finding, classifierConfs []float64, totalPackets int) Risk {
	if len(classifierConfs) > 0 {
		return classifierRisk(classifierConfs, totalPackets)
	}
	if len(findings) > 0 {
		return severityRisk(findings)
	}
	return Risk{
		Score:      0,
		Level:      "low",
		Rationale:  "no detections and no classifier output",
		RiskSource: riskSourceUnavailable,
	}
}

// classifierRisk weights the malicious-confidence distribution:
// 60% worst case, 25% average case, 15% how much of the traffic was
// flagged.
func classifierRisk(confs []float64, totalPackets int) Risk {
	maxConf, sum := 0.0, 0.0
	for _, c := range confs {
		if c > maxConf {
			maxConf = c
		}
		sum += c
	}
	avg := sum / float64(len(confs))

	ratio := 0.0
	if totalPackets > 0 {
		ratio = float64(len(confs)) / float64(totalPackets)
		if ratio > 1 {
			ratio = 1
		}
	}

	score := int(60*maxConf + 25*avg + 15*ratio)
	if score > 100 {
		score = 100
	}
	return Risk{
		Score: score,
		Level: riskLevel(score),
		Rationale: fmt.Sprintf("classifier flagged %d of %d packets (max confidence %.2f, avg %.2f)",
			len(confs), totalPackets, maxConf, avg),
		RiskSource: riskSourceClassifier,
	}
}

// severityRisk sums the severity weights of all findings, capped at 100
// with a floor of 10 when anything was found at all.
func severityRisk(findings []Finding) Risk {
	score := 0
	for _, f := range findings {
		score += model.Severity(f.Severity).Weight()
	}
	if score > 100 {
		score = 100
	}
	if score < 10 {
		score = 10
	}
	return Risk{
		Score:      score,
		Level:      riskLevel(score),
		Rationale:  fmt.Sprintf("severity-weighted sum over %d findings", len(findings)),
		RiskSource: riskSourceSeverity,
	}
}

func riskLevel(score int) string {
	switch {
	case score >= 75:
		return "critical"
	case score >= 50:
		return "high"
	case score >= 25:
		return "medium"
	default:
		return "low"
	}
}
