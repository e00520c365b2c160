// Package capture manages live pcap handles. Opening a handle needs
// elevated privileges; every error path here carries an actionable
// suggestion because these are the failures operators actually hit.
package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const (
	defaultSnapLen = 1600
	promiscuous    = true
)

// Error is a structured capture failure: what went wrong, and what the
// operator can do about it.
type Error struct {
	Kind       string
	Detail     string
	Suggestion string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Detail, e.Suggestion)
}

// InterfaceInfo describes one capture interface.
type InterfaceInfo struct {
	Name        string
	Description string
	Addresses   []string
}

// ListInterfaces returns all available capture interfaces.
func ListInterfaces() ([]InterfaceInfo, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]InterfaceInfo, 0, len(devs))
	for _, d := range devs {
		info := InterfaceInfo{Name: d.Name, Description: d.Description}
		for _, addr := range d.Addresses {
			info.Addresses = append(info.Addresses, addr.IP.String())
		}
		out = append(out, info)
	}
	return out, nil
}

// AutoDetect picks the first interface that has an address assigned.
func AutoDetect() (string, error) {
	ifaces, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	for _, i := range ifaces {
		if len(i.Addresses) > 0 && !strings.HasPrefix(i.Name, "lo") {
			return i.Name, nil
		}
	}
	return "", &Error{
		Kind:       "no capture interface",
		Detail:     "no non-loopback interface with an address was found",
		Suggestion: "pass capture.interface explicitly in the config",
	}
}

// Live wraps an open live capture handle.
type Live struct {
	handle *pcap.Handle
	iface  string
}

// Open starts a live capture on the interface. The read timeout bounds how
// long a blocking read can sit before the stop flag is rechecked.
func Open(iface string, snapLen int, timeout time.Duration) (*Live, error) {
	if snapLen <= 0 {
		snapLen = defaultSnapLen
	}
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	handle, err := pcap.OpenLive(iface, int32(snapLen), promiscuous, timeout)
	if err != nil {
		return nil, classifyOpenError(iface, err)
	}
	return &Live{handle: handle, iface: iface}, nil
}

// classifyOpenError turns raw pcap failures into structured, actionable
// errors. The interface-not-found case lists what is available.
func classifyOpenError(iface string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "permission") || strings.Contains(msg, "Operation not permitted") {
		return &Error{
			Kind:       "insufficient capture privileges",
			Detail:     msg,
			Suggestion: "run as root or grant CAP_NET_RAW (setcap cap_net_raw+ep); the engine will continue in analysis-only mode",
		}
	}
	if strings.Contains(msg, "No such device") || strings.Contains(msg, "doesn't exist") {
		names := []string{}
		if ifaces, lerr := ListInterfaces(); lerr == nil {
			for _, i := range ifaces {
				names = append(names, i.Name)
			}
		}
		return &Error{
			Kind:       "interface not found",
			Detail:     fmt.Sprintf("interface %q: %s", iface, msg),
			Suggestion: fmt.Sprintf("available interfaces: %s", strings.Join(names, ", ")),
		}
	}
	return fmt.Errorf("open live capture on %s: %w", iface, err)
}

// IsPermission reports whether the error is a privilege failure, which
// degrades the engine to analysis-only mode instead of killing it.
func IsPermission(err error) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == "insufficient capture privileges"
}

// NextPacket reads one packet. pcap.NextErrorTimeoutExpired is surfaced so
// the capture loop can recheck its stop flag.
func (l *Live) NextPacket() (gopacket.Packet, error) {
	data, ci, err := l.handle.ReadPacketData()
	if err != nil {
		return nil, err
	}
	pkt := gopacket.NewPacket(data, l.handle.LinkType(), gopacket.Default)
	md := pkt.Metadata()
	md.CaptureInfo = ci
	return pkt, nil
}

// Interface returns the interface name.
func (l *Live) Interface() string {
	return l.iface
}

// Stats returns kernel-level received/dropped counters.
func (l *Live) Stats() (received, dropped int, err error) {
	st, err := l.handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return st.PacketsReceived, st.PacketsDropped, nil
}

// Close stops the capture. A blocked read may finish its current timeout
// interval before the handle is fully released; shutdown latency is bounded
// by the read timeout passed to Open.
func (l *Live) Close() {
	if l.handle != nil {
		l.handle.Close()
	}
}
