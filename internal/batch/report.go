package batch

import "time"

// Metadata describes the replay itself.
type Metadata struct {
	File             string  `json:"file"`
	PacketsProcessed int     `json:"packets_processed"`
	PacketsSkipped   int     `json:"packets_skipped"`
	BytesProcessed   int64   `json:"bytes_processed"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
	DurationSeconds  float64 `json:"duration_seconds"`
	CaptureWindow    string  `json:"capture_window"`
}

// CountEntry is one name with a count, used for the top-N summary lists.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FlowSample is one observed flow, kept for the first flows in the capture.
type FlowSample struct {
	SrcIP    string `json:"src_ip"`
	DstIP    string `json:"dst_ip"`
	DstPort  uint16 `json:"dst_port"`
	Protocol string `json:"protocol"`
	Packets  int    `json:"packets"`
	Bytes    int    `json:"bytes"`
}

// TimelineBucket counts packets in one minute of the capture.
type TimelineBucket struct {
	Start   time.Time `json:"start"`
	Packets int       `json:"packets"`
	Bytes   int       `json:"bytes"`
}

// Summary is the traffic overview section of the report.
type Summary struct {
	TopProtocols  []CountEntry     `json:"top_protocols"`
	TopTalkers    []CountEntry     `json:"top_talkers"`
	TopPorts      []CountEntry     `json:"top_ports"`
	DNSQueries    int              `json:"dns_queries"`
	TLSHandshakes int              `json:"tls_handshakes"`
	HTTPHosts     []string         `json:"http_hosts"`
	FlowSamples   []FlowSample     `json:"flow_samples"`
	Timeline      []TimelineBucket `json:"timeline"`
}

// Finding is one merged detection in the report. Findings from the flow
// heuristics and from the per-packet detectors share this shape.
type Finding struct {
	Title       string  `json:"title"`
	Kind        string  `json:"kind"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Description string  `json:"description"`
	Count       int     `json:"count"` // occurrences merged into this finding
}

// Risk is the composite risk assessment.
type Risk struct {
	Score      int    `json:"score"`
	Level      string `json:"level"`
	Rationale  string `json:"rationale"`
	RiskSource string `json:"risk_source"`
}

// EndpointEdge is one (source, destination) pair with traffic counts.
type EndpointEdge struct {
	SrcIP   string `json:"src_ip"`
	DstIP   string `json:"dst_ip"`
	Packets int    `json:"packets"`
	Bytes   int    `json:"bytes"`
}

// Evidence holds the raw aggregates backing the findings.
type Evidence struct {
	Timeline       []TimelineBucket `json:"timeline"`
	EndpointMatrix []EndpointEdge   `json:"endpoint_matrix"`
}

// Report is the full output document of one offline analysis.
type Report struct {
	Metadata   Metadata  `json:"metadata"`
	Summary    Summary   `json:"summary"`
	Detections []Finding `json:"detections"`
	Risk       Risk      `json:"risk"`
	Evidence   Evidence  `json:"evidence"`
}
