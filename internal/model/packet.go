package model

import (
	"fmt"
	"net"
	"time"
)

// Protocol is the normalized transport/network protocol of a packet.
// Unknown IP protocol numbers are carried as OtherN with the raw number.
type Protocol struct {
	Name   string
	Number uint8
}

var (
	ProtoTCP    = Protocol{Name: "TCP", Number: 6}
	ProtoUDP    = Protocol{Name: "UDP", Number: 17}
	ProtoICMP   = Protocol{Name: "ICMP", Number: 1}
	ProtoARP    = Protocol{Name: "ARP"}
	ProtoIPv6   = Protocol{Name: "IPv6", Number: 41}
	ProtoICMPv6 = Protocol{Name: "ICMPv6", Number: 58}
)

// ProtocolFromIPNumber maps an IP protocol number onto the closed protocol
// set. Numbers outside the set become "Protocol-<n>" rather than an error.
func ProtocolFromIPNumber(n uint8) Protocol {
	switch n {
	case 6:
		return ProtoTCP
	case 17:
		return ProtoUDP
	case 1:
		return ProtoICMP
	case 41:
		return ProtoIPv6
	case 58:
		return ProtoICMPv6
	default:
		return Protocol{Name: fmt.Sprintf("Protocol-%d", n), Number: n}
	}
}

func (p Protocol) String() string {
	return p.Name
}

// TCPFlags holds the flag bits of a TCP segment.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
	PSH bool
	URG bool
}

// HTTPHints carries opportunistically extracted HTTP request fields.
// All fields may be empty; absence is not an error.
type HTTPHints struct {
	Method    string
	URI       string
	UserAgent string
	Host      string
}

// PacketRecord is the decoded form of one captured or replayed frame.
// It is created once by the decoder and never mutated afterwards.
type PacketRecord struct {
	Timestamp   time.Time
	SrcIP       net.IP
	DstIP       net.IP
	SrcPort     uint16
	DstPort     uint16
	Protocol    Protocol
	Length      int    // raw frame size on the wire
	PayloadSize int    // application payload size
	Payload     []byte // first PayloadSampleSize bytes of the payload
	Flags       TCPFlags
	HTTP        *HTTPHints // nil unless an HTTP request line was recognized
	DNSNames    []string   // query names when the packet decoded as DNS
	IsTLS       bool
}

// PayloadSampleSize is how much application payload the decoder keeps.
const PayloadSampleSize = 100

// FlowKey identifies one logical connection: packets from SrcIP to
// DstIP:DstPort belong to the same flow regardless of source port.
type FlowKey struct {
	SrcIP   string
	DstIP   string
	DstPort uint16
}

// Flow returns the flow key of the packet.
func (r *PacketRecord) Flow() FlowKey {
	return FlowKey{SrcIP: r.SrcIP.String(), DstIP: r.DstIP.String(), DstPort: r.DstPort}
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s->%s:%d", k.SrcIP, k.DstIP, k.DstPort)
}

// ConnectionState is the per-flow state kept by the connection tracker.
type ConnectionState struct {
	StartTime   time.Time
	LastSeen    time.Time
	ByteCount   uint64
	PacketCount uint64
}
