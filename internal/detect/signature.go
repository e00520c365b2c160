package detect

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"netsentry/internal/model"
)

// patternRule is one payload/URI signature with its static metadata.
type patternRule struct {
	id          string
	severity    model.Severity
	description string
	patterns    []*regexp.Regexp
}

// Confidence by match source: payload matches are strongest, URI matches
// slightly weaker, User-Agent list hits weakest.
const (
	confPayloadMatch = 0.9
	confURIMatch     = 0.8
	confUserAgent    = 0.7
)

var patternRules = []patternRule{
	{
		id:          "sql_injection",
		severity:    model.SeverityHigh,
		description: "SQL injection attempt in payload or URI",
		patterns: compileAll(
			`(?i)union\s+select`,
			`(?i)or\s+1\s*=\s*1`,
			`(?i);\s*drop\s+table`,
			`(?i)'\s*or\s*'[^']*'\s*=\s*'`,
			`(?i)select\s+.+\s+from\s+\w+`,
		),
	},
	{
		id:          "xss_attack",
		severity:    model.SeverityMedium,
		description: "Cross-site scripting attempt",
		patterns: compileAll(
			`(?i)<script[\s>]`,
			`(?i)javascript:`,
			`(?i)onerror\s*=`,
			`(?i)document\.cookie`,
		),
	},
	{
		id:          "malware_communication",
		severity:    model.SeverityCritical,
		description: "Known malware beacon or command pattern",
		patterns: compileAll(
			`(?i)/gate\.php`,
			`(?i)botnet`,
			`(?i)cmd\.exe`,
			`(?i)powershell\s+-enc`,
		),
	},
	{
		id:          "data_exfiltration",
		severity:    model.SeverityHigh,
		description: "Possible data exfiltration marker",
		patterns: compileAll(
			`(?i)passwd`,
			`(?i)/etc/shadow`,
			`(?i)BEGIN\s+RSA\s+PRIVATE\s+KEY`,
			`(?i)creditcard|card_number`,
		),
	},
	{
		id:          "suspicious_scanner",
		severity:    model.SeverityMedium,
		description: "Scanner or probing tool fingerprint",
		patterns: compileAll(
			`(?i)\.\./\.\./`,
			`(?i)/\.git/`,
			`(?i)/wp-admin`,
			`(?i)etc/passwd`,
		),
	},
	{
		id:          "brute_force",
		severity:    model.SeverityMedium,
		description: "Repeated authentication failure pattern",
		patterns: compileAll(
			`(?i)login\s+failed`,
			`(?i)authentication\s+failure`,
			`(?i)invalid\s+password`,
		),
	},
}

var suspiciousAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"hydra", "zgrab", "curl/7.1", "python-requests/1.",
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// windowEntry is one packet in the connection-pattern sliding window.
type windowEntry struct {
	at      time.Time
	srcIP   string
	dstPort uint16
}

// SignatureMatcher evaluates pattern rules and connection-pattern rules.
type SignatureMatcher struct {
	mu sync.Mutex

	// Bounded ring of recent packets for the connection-pattern rules.
	window   []windowEntry
	head     int
	size     int
	capacity int
	span     time.Duration

	portScanPorts int
	dosPackets    int
}

// NewSignatureMatcher builds a matcher with the connection-pattern window
// sized to capacity packets over span.
func NewSignatureMatcher(capacity int, span time.Duration) *SignatureMatcher {
	if capacity <= 0 {
		capacity = 1000
	}
	if span <= 0 {
		span = 60 * time.Second
	}
	return &SignatureMatcher{
		window:        make([]windowEntry, capacity),
		capacity:      capacity,
		span:          span,
		portScanPorts: 10,
		dosPackets:    100,
	}
}

// Match runs both rule classes against the packet. At most one detection is
// returned per pattern rule set and one per connection-pattern rule.
func (m *SignatureMatcher) Match(rec *model.PacketRecord) []model.Detection {
	var out []model.Detection
	if d := m.matchPatterns(rec); d != nil {
		out = append(out, *d)
	}
	out = append(out, m.matchConnectionPatterns(rec)...)
	return out
}

// matchPatterns evaluates the payload, URI and User-Agent. First rule that
// matches wins.
func (m *SignatureMatcher) matchPatterns(rec *model.PacketRecord) *model.Detection {
	payload := asciiPayload(rec.Payload)
	uri := ""
	agent := ""
	if rec.HTTP != nil {
		uri = rec.HTTP.URI
		agent = strings.ToLower(rec.HTTP.UserAgent)
	}

	for _, rule := range patternRules {
		for _, re := range rule.patterns {
			if payload != "" && re.MatchString(payload) {
				return newSignatureDetection(rec, rule, "payload", confPayloadMatch)
			}
			if uri != "" && re.MatchString(uri) {
				return newSignatureDetection(rec, rule, "uri", confURIMatch)
			}
		}
	}

	if agent != "" {
		for _, bad := range suspiciousAgents {
			if strings.Contains(agent, bad) {
				rule := patternRule{
					id:          "suspicious_scanner",
					severity:    model.SeverityMedium,
					description: fmt.Sprintf("Suspicious User-Agent %q", bad),
				}
				return newSignatureDetection(rec, rule, "user_agent", confUserAgent)
			}
		}
	}
	return nil
}

// matchConnectionPatterns records the packet in the sliding window and
// evaluates the per-source port-scan and flood rules. Each rule emits at
// most one detection per call.
func (m *SignatureMatcher) matchConnectionPatterns(rec *model.PacketRecord) []model.Detection {
	if rec.SrcIP == nil {
		return nil
	}
	src := rec.SrcIP.String()
	now := rec.Timestamp

	m.mu.Lock()
	m.window[m.head] = windowEntry{at: now, srcIP: src, dstPort: rec.DstPort}
	m.head = (m.head + 1) % m.capacity
	if m.size < m.capacity {
		m.size++
	}

	cutoff := now.Add(-m.span)
	ports := make(map[uint16]struct{})
	count := 0
	for i := 0; i < m.size; i++ {
		e := m.window[i]
		if e.srcIP != src || e.at.Before(cutoff) {
			continue
		}
		ports[e.dstPort] = struct{}{}
		count++
	}
	m.mu.Unlock()

	var out []model.Detection
	if len(ports) > m.portScanPorts {
		out = append(out, model.Detection{
			Kind:        model.KindSignature,
			SignatureID: "port_scan",
			Severity:    model.SeverityMedium,
			Confidence:  0.8,
			Description: fmt.Sprintf("Source contacted %d distinct destination ports within %s", len(ports), m.span),
			Source:      "connection_pattern",
			CreatedAt:   now,
			SrcIP:       src,
			DstIP:       rec.DstIP.String(),
			DstPort:     rec.DstPort,
		})
	}
	if count > m.dosPackets {
		out = append(out, model.Detection{
			Kind:        model.KindSignature,
			SignatureID: "dos_attack",
			Severity:    model.SeverityHigh,
			Confidence:  0.9,
			Description: fmt.Sprintf("Source sent %d packets within %s", count, m.span),
			Source:      "connection_pattern",
			CreatedAt:   now,
			SrcIP:       src,
			DstIP:       rec.DstIP.String(),
			DstPort:     rec.DstPort,
		})
	}
	return out
}

func newSignatureDetection(rec *model.PacketRecord, rule patternRule, source string, conf float64) *model.Detection {
	d := &model.Detection{
		Kind:        model.KindSignature,
		SignatureID: rule.id,
		Severity:    rule.severity,
		Confidence:  conf,
		Description: rule.description,
		Source:      source,
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

// asciiPayload renders the payload sample as printable ASCII for the regex
// rules; unprintable bytes become dots.
func asciiPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	b := make([]byte, len(payload))
	for i, c := range payload {
		if c >= 0x20 && c <= 0x7e {
			b[i] = c
		} else {
			b[i] = '.'
		}
	}
	return string(b)
}
