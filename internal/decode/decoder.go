package decode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netsentry/internal/model"
)

// ErrUnparseable marks frames the decoder cannot turn into a PacketRecord.
// Callers skip the frame and count a drop; it is never fatal.
var ErrUnparseable = errors.New("unparseable frame")

// Decode extracts a PacketRecord from a decoded gopacket.Packet.
func Decode(pkt gopacket.Packet) (*model.PacketRecord, error) {
	rec := &model.PacketRecord{
		Timestamp: time.Now(),
		Length:    len(pkt.Data()),
	}
	if meta := pkt.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		rec.Timestamp = meta.Timestamp
		if meta.Length > 0 {
			rec.Length = meta.Length
		}
	}

	// Network layer. ARP frames have no IP layer and are kept with only
	// addresses filled in.
	switch {
	case pkt.Layer(layers.LayerTypeIPv4) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		rec.SrcIP = ip.SrcIP
		rec.DstIP = ip.DstIP
		rec.Protocol = model.ProtocolFromIPNumber(uint8(ip.Protocol))
	case pkt.Layer(layers.LayerTypeIPv6) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		rec.SrcIP = ip.SrcIP
		rec.DstIP = ip.DstIP
		switch uint8(ip.NextHeader) {
		case 6, 17, 58:
			rec.Protocol = model.ProtocolFromIPNumber(uint8(ip.NextHeader))
		default:
			// Extension headers we do not chase keep the IPv6 label.
			rec.Protocol = model.ProtoIPv6
		}
	case pkt.Layer(layers.LayerTypeARP) != nil:
		arp := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
		rec.SrcIP = arp.SourceProtAddress
		rec.DstIP = arp.DstProtAddress
		rec.Protocol = model.ProtoARP
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: no network layer", ErrUnparseable)
	}

	// Transport layer.
	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		rec.SrcPort = uint16(tcp.SrcPort)
		rec.DstPort = uint16(tcp.DstPort)
		rec.Flags = model.TCPFlags{
			SYN: tcp.SYN, ACK: tcp.ACK, FIN: tcp.FIN,
			RST: tcp.RST, PSH: tcp.PSH, URG: tcp.URG,
		}
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		rec.SrcPort = uint16(udp.SrcPort)
		rec.DstPort = uint16(udp.DstPort)
	}

	if app := pkt.ApplicationLayer(); app != nil {
		payload := app.Payload()
		rec.PayloadSize = len(payload)
		n := len(payload)
		if n > model.PayloadSampleSize {
			n = model.PayloadSampleSize
		}
		rec.Payload = append([]byte(nil), payload[:n]...)

		if rec.Protocol == model.ProtoTCP {
			rec.HTTP = extractHTTP(payload)
			rec.IsTLS = isTLSClientHello(payload)
		}
	}

	if dnsLayer := pkt.Layer(layers.LayerTypeDNS); dnsLayer != nil {
		dns := dnsLayer.(*layers.DNS)
		for _, q := range dns.Questions {
			rec.DNSNames = append(rec.DNSNames, string(q.Name))
		}
	}

	return rec, nil
}

// DecodeBytes parses a raw Ethernet frame. Used where only bytes are
// available (NATS fan-in, synthetic tests).
func DecodeBytes(data []byte, ts time.Time) (*model.PacketRecord, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	rec, err := Decode(pkt)
	if err != nil {
		return nil, err
	}
	if !ts.IsZero() {
		rec.Timestamp = ts
	}
	return rec, nil
}

var httpMethods = []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH ", "CONNECT ", "TRACE "}

// extractHTTP pulls method, URI, Host and User-Agent out of a payload that
// starts with an HTTP request line. Best-effort: anything malformed returns
// nil rather than an error.
func extractHTTP(payload []byte) *model.HTTPHints {
	if len(payload) < 4 {
		return nil
	}
	text := string(payload)
	method := ""
	for _, m := range httpMethods {
		if strings.HasPrefix(text, m) {
			method = strings.TrimSpace(m)
			break
		}
	}
	if method == "" {
		return nil
	}

	lines := strings.SplitN(text, "\r\n", 32)
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 {
		return nil
	}
	hints := &model.HTTPHints{Method: method, URI: parts[1]}
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		kv := strings.SplitN(line, ": ", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "user-agent":
			hints.UserAgent = kv[1]
		case "host":
			hints.Host = kv[1]
		}
	}
	return hints
}

// isTLSClientHello recognizes the start of a TLS handshake record.
func isTLSClientHello(payload []byte) bool {
	return len(payload) >= 6 && payload[0] == 0x16 && payload[1] == 0x03 && payload[5] == 0x01
}
