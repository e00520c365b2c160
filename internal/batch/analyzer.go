// Package batch implements the offline capture-file analyzer: a bounded
// replay through the detection pipeline plus flow-level heuristics and a
// composite risk score.
package batch

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/detect"
	"netsentry/internal/feature"
	"netsentry/internal/model"
	"netsentry/pkg/pcap"
)

// Flow heuristic thresholds. These are aggregate, whole-capture thresholds
// and are intentionally higher than the live sliding-window rules.
const (
	portScanMinPorts    = 25
	synFloodMinPackets  = 400
	dnsTunnelMinQueries = 10 // strictly more than this fires
	dnsLongNameChars    = 50
	dnsLongNameMin      = 2
	entropyThreshold    = 7.5

	maxFlowSamples = 50
	topN           = 10
)

// standardPorts are exempt from the high-entropy heuristic; encrypted and
// compressed traffic is expected there.
var standardPorts = map[uint16]struct{}{80: {}, 443: {}, 53: {}}

// httpExpectedPorts are where HTTP-like traffic is unremarkable.
var httpExpectedPorts = map[uint16]struct{}{80: {}, 8080: {}, 8000: {}, 443: {}}

// Analyzer replays a capture file and produces a Report. The detector
// pipeline is optional; heuristics and the summary run without it.
type Analyzer struct {
	budget       int
	maxFileSize  int64
	runDetectors bool

	extractor *feature.Extractor
	orch      *detect.Orchestrator
}

// NewAnalyzer creates an analyzer from the batch config section.
func NewAnalyzer(cfg config.BatchConfig) *Analyzer {
	return &Analyzer{
		budget:       cfg.PacketBudget,
		maxFileSize:  cfg.MaxFileSize,
		runDetectors: cfg.RunDetectors,
	}
}

// WithPipeline attaches a feature extractor and orchestrator so the replay
// also runs the per-packet detectors. Replaying the same file with the
// same pipeline state produces the same report.
func (a *Analyzer) WithPipeline(extractor *feature.Extractor, orch *detect.Orchestrator) *Analyzer {
	a.extractor = extractor
	a.orch = orch
	return a
}

// flowStat accumulates per-flow counters during the single iteration pass.
type flowStat struct {
	packets int
	bytes   int
	proto   string
}

// aggregates is everything the heuristics and the summary need, built in
// one pass over the replayed packets.
type aggregates struct {
	protoCount map[string]int
	talkBytes  map[string]int
	portCount  map[uint16]int
	flows      map[model.FlowKey]*flowStat
	flowOrder  []model.FlowKey

	portsPerSrc  map[string]map[uint16]struct{}
	synOnlyPairs map[[2]string]int
	dnsQueries   map[string]int
	dnsLongNames map[string]int
	httpHosts    map[string]struct{}

	timeline map[int64]*TimelineBucket
	edges    map[[2]string]*EndpointEdge

	dnsTotal  int
	tlsTotal  int
	bytes     int64
	firstSeen time.Time
	lastSeen  time.Time
}

func newAggregates() *aggregates {
	return &aggregates{
		protoCount:   make(map[string]int),
		talkBytes:    make(map[string]int),
		portCount:    make(map[uint16]int),
		flows:        make(map[model.FlowKey]*flowStat),
		portsPerSrc:  make(map[string]map[uint16]struct{}),
		synOnlyPairs: make(map[[2]string]int),
		dnsQueries:   make(map[string]int),
		dnsLongNames: make(map[string]int),
		httpHosts:    make(map[string]struct{}),
		timeline:     make(map[int64]*TimelineBucket),
		edges:        make(map[[2]string]*EndpointEdge),
	}
}

// Analyze replays the capture file and builds the full report.
func (a *Analyzer) Analyze(ctx context.Context, filePath string) (*Report, error) {
	started := time.Now()

	reader, err := pcap.NewReader(filePath, a.maxFileSize)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	records, skipped := reader.ReadAll(a.budget)
	log.Printf("Replayed %d packets from %s (%d skipped)", len(records), filePath, skipped)

	agg := newAggregates()
	var findings []Finding
	var classifierConfs []float64

	for _, rec := range records {
		a.observe(agg, rec)
		findings = append(findings, packetFindings(rec)...)

		if a.runDetectors && a.orch != nil && a.extractor != nil {
			features := a.extractor.Extract(rec)
			for _, det := range a.orch.Analyze(ctx, rec, features) {
				findings = append(findings, findingFromDetection(det))
				if det.Kind == model.KindClassification {
					classifierConfs = append(classifierConfs, det.Confidence)
				}
			}
		}
	}

	findings = append(findings, a.flowFindings(agg)...)
	merged := mergeFindings(findings)

	report := &Report{
		Metadata:   a.buildMetadata(filePath, agg, len(records), skipped, started),
		Summary:    buildSummary(agg),
		Detections: merged,
		Risk:       scoreRisk(merged, classifierConfs, len(records)),
		Evidence:   buildEvidence(agg),
	}
	return report, nil
}

// observe folds one packet into the aggregates.
func (a *Analyzer) observe(agg *aggregates, rec *model.PacketRecord) {
	src := rec.SrcIP.String()
	dst := rec.DstIP.String()

	agg.bytes += int64(rec.Length)
	agg.protoCount[rec.Protocol.Name]++
	if rec.DstPort != 0 {
		agg.portCount[rec.DstPort]++
	}
	agg.talkBytes[src] += rec.Length

	if agg.firstSeen.IsZero() || rec.Timestamp.Before(agg.firstSeen) {
		agg.firstSeen = rec.Timestamp
	}
	if rec.Timestamp.After(agg.lastSeen) {
		agg.lastSeen = rec.Timestamp
	}

	key := rec.Flow()
	fs, ok := agg.flows[key]
	if !ok {
		fs = &flowStat{proto: rec.Protocol.Name}
		agg.flows[key] = fs
		agg.flowOrder = append(agg.flowOrder, key)
	}
	fs.packets++
	fs.bytes += rec.Length

	if ports, ok := agg.portsPerSrc[src]; ok {
		ports[rec.DstPort] = struct{}{}
	} else {
		agg.portsPerSrc[src] = map[uint16]struct{}{rec.DstPort: {}}
	}

	if rec.Flags.SYN && !rec.Flags.ACK {
		agg.synOnlyPairs[[2]string{src, dst}]++
	}

	if len(rec.DNSNames) > 0 {
		agg.dnsTotal += len(rec.DNSNames)
		agg.dnsQueries[src] += len(rec.DNSNames)
		for _, name := range rec.DNSNames {
			if len(name) > dnsLongNameChars {
				agg.dnsLongNames[src]++
			}
		}
	}
	if rec.IsTLS {
		agg.tlsTotal++
	}
	if rec.HTTP != nil && rec.HTTP.Host != "" {
		agg.httpHosts[rec.HTTP.Host] = struct{}{}
	}

	bucket := rec.Timestamp.Truncate(time.Minute).Unix()
	tb, ok := agg.timeline[bucket]
	if !ok {
		tb = &TimelineBucket{Start: rec.Timestamp.Truncate(time.Minute)}
		agg.timeline[bucket] = tb
	}
	tb.Packets++
	tb.Bytes += rec.Length

	edgeKey := [2]string{src, dst}
	edge, ok := agg.edges[edgeKey]
	if !ok {
		edge = &EndpointEdge{SrcIP: src, DstIP: dst}
		agg.edges[edgeKey] = edge
	}
	edge.Packets++
	edge.Bytes += rec.Length
}

// flowFindings evaluates the aggregate heuristics after the single pass.
func (a *Analyzer) flowFindings(agg *aggregates) []Finding {
	var out []Finding

	for src, ports := range agg.portsPerSrc {
		if len(ports) >= portScanMinPorts {
			out = append(out, Finding{
				Title:       "port_scan",
				Kind:        string(model.KindHeuristic),
				Severity:    string(model.SeverityMedium),
				Confidence:  0.8,
				Source:      src,
				Destination: "multiple",
				Description: fmt.Sprintf("%s contacted %d distinct destination ports", src, len(ports)),
			})
		}
	}

	for pair, n := range agg.synOnlyPairs {
		if n >= synFloodMinPackets {
			out = append(out, Finding{
				Title:       "syn_flood",
				Kind:        string(model.KindHeuristic),
				Severity:    string(model.SeverityHigh),
				Confidence:  0.9,
				Source:      pair[0],
				Destination: pair[1],
				Description: fmt.Sprintf("%d SYN-only packets from %s to %s", n, pair[0], pair[1]),
			})
		}
	}

	for src, queries := range agg.dnsQueries {
		if queries > dnsTunnelMinQueries && agg.dnsLongNames[src] >= dnsLongNameMin {
			out = append(out, Finding{
				Title:       "dns_tunneling",
				Kind:        string(model.KindHeuristic),
				Severity:    string(model.SeverityHigh),
				Confidence:  0.75,
				Source:      src,
				Destination: "dns",
				Description: fmt.Sprintf("%s issued %d DNS queries, %d with names over %d chars",
					src, queries, agg.dnsLongNames[src], dnsLongNameChars),
			})
		}
	}

	return out
}

// packetFindings are the per-packet heuristics that need the raw payload:
// high-entropy payloads off the standard ports and HTTP on unexpected
// ports.
func packetFindings(rec *model.PacketRecord) []Finding {
	var out []Finding
	src := rec.SrcIP.String()
	dst := fmt.Sprintf("%s:%d", rec.DstIP.String(), rec.DstPort)

	if _, std := standardPorts[rec.DstPort]; !std && len(rec.Payload) > 0 {
		if e := shannonEntropy(rec.Payload); e > entropyThreshold {
			out = append(out, Finding{
				Title:       "high_entropy_payload",
				Kind:        string(model.KindHeuristic),
				Severity:    string(model.SeverityMedium),
				Confidence:  0.7,
				Source:      src,
				Destination: dst,
				Description: fmt.Sprintf("payload entropy %.2f bits/byte on port %d", e, rec.DstPort),
			})
		}
	}

	if rec.HTTP != nil {
		if _, std := httpExpectedPorts[rec.DstPort]; !std {
			out = append(out, Finding{
				Title:       "http_on_nonstandard_port",
				Kind:        string(model.KindHeuristic),
				Severity:    string(model.SeverityLow),
				Confidence:  0.6,
				Source:      src,
				Destination: dst,
				Description: fmt.Sprintf("%s request to %s on port %d", rec.HTTP.Method, rec.HTTP.Host, rec.DstPort),
			})
		}
	}
	return out
}

// shannonEntropy returns the byte entropy of the data in bits per byte.
func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, n := range freq {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// findingFromDetection adapts a pipeline detection into a report finding.
func findingFromDetection(det model.Detection) Finding {
	return Finding{
		Title:       det.SignatureID,
		Kind:        string(det.Kind),
		Severity:    string(det.Severity),
		Confidence:  det.Confidence,
		Source:      det.SrcIP,
		Destination: fmt.Sprintf("%s:%d", det.DstIP, det.DstPort),
		Description: det.Description,
	}
}

// mergeFindings collapses duplicates by (title, severity, source,
// destination), keeping the highest confidence and counting occurrences.
// Output order is deterministic so replays produce identical reports.
func mergeFindings(findings []Finding) []Finding {
	type mergeKey struct {
		title, severity, source, destination string
	}
	byKey := make(map[mergeKey]*Finding)
	var order []mergeKey

	for _, f := range findings {
		k := mergeKey{f.Title, f.Severity, f.Source, f.Destination}
		if existing, ok := byKey[k]; ok {
			existing.Count++
			if f.Confidence > existing.Confidence {
				existing.Confidence = f.Confidence
				existing.Description = f.Description
			}
			continue
		}
		merged := f
		merged.Count = 1
		byKey[k] = &merged
		order = append(order, k)
	}

	out := make([]Finding, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		wi := model.Severity(out[i].Severity).Weight()
		wj := model.Severity(out[j].Severity).Weight()
		if wi != wj {
			return wi > wj
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Source < out[j].Source
	})
	return out
}

func (a *Analyzer) buildMetadata(filePath string, agg *aggregates, processed, skipped int, started time.Time) Metadata {
	md := Metadata{
		File:             filePath,
		PacketsProcessed: processed,
		PacketsSkipped:   skipped,
		BytesProcessed:   agg.bytes,
		ProcessingTimeMS: time.Since(started).Milliseconds(),
	}
	if !agg.firstSeen.IsZero() {
		md.DurationSeconds = agg.lastSeen.Sub(agg.firstSeen).Seconds()
		md.CaptureWindow = fmt.Sprintf("%s - %s",
			agg.firstSeen.Format(time.RFC3339), agg.lastSeen.Format(time.RFC3339))
	}
	return md
}

func buildSummary(agg *aggregates) Summary {
	s := Summary{
		TopProtocols:  topCounts(agg.protoCount),
		TopTalkers:    topCounts(agg.talkBytes),
		DNSQueries:    agg.dnsTotal,
		TLSHandshakes: agg.tlsTotal,
	}

	portNames := make(map[string]int, len(agg.portCount))
	for port, n := range agg.portCount {
		portNames[fmt.Sprintf("%d", port)] = n
	}
	s.TopPorts = topCounts(portNames)

	for host := range agg.httpHosts {
		s.HTTPHosts = append(s.HTTPHosts, host)
	}
	sort.Strings(s.HTTPHosts)

	for i, key := range agg.flowOrder {
		if i >= maxFlowSamples {
			break
		}
		fs := agg.flows[key]
		s.FlowSamples = append(s.FlowSamples, FlowSample{
			SrcIP:    key.SrcIP,
			DstIP:    key.DstIP,
			DstPort:  key.DstPort,
			Protocol: fs.proto,
			Packets:  fs.packets,
			Bytes:    fs.bytes,
		})
	}

	s.Timeline = sortedTimeline(agg.timeline)
	return s
}

func buildEvidence(agg *aggregates) Evidence {
	ev := Evidence{Timeline: sortedTimeline(agg.timeline)}
	for _, edge := range agg.edges {
		ev.EndpointMatrix = append(ev.EndpointMatrix, *edge)
	}
	sort.Slice(ev.EndpointMatrix, func(i, j int) bool {
		if ev.EndpointMatrix[i].Packets != ev.EndpointMatrix[j].Packets {
			return ev.EndpointMatrix[i].Packets > ev.EndpointMatrix[j].Packets
		}
		if ev.EndpointMatrix[i].SrcIP != ev.EndpointMatrix[j].SrcIP {
			return ev.EndpointMatrix[i].SrcIP < ev.EndpointMatrix[j].SrcIP
		}
		return ev.EndpointMatrix[i].DstIP < ev.EndpointMatrix[j].DstIP
	})
	return ev
}

func sortedTimeline(buckets map[int64]*TimelineBucket) []TimelineBucket {
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]TimelineBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, *buckets[k])
	}
	return out
}

// topCounts returns the top-N entries of a count map, ties broken by name
// for deterministic output.
func topCounts(counts map[string]int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for name, n := range counts {
		entries = append(entries, CountEntry{Name: name, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}
