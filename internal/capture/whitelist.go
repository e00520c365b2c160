package capture

import (
	"fmt"
	"net"

	"netsentry/internal/model"
)

// Whitelist marks traffic that should be tracked for connection state but
// skipped by the detectors. A packet matches when either endpoint falls in
// a whitelisted CIDR or the destination port is listed.
type Whitelist struct {
	nets  []*net.IPNet
	ports map[uint16]struct{}
}

// NewWhitelist parses CIDR strings and ports. A bare IP is accepted as a
// /32 (or /128) network.
func NewWhitelist(cidrs []string, ports []uint16) (*Whitelist, error) {
	w := &Whitelist{ports: make(map[uint16]struct{}, len(ports))}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			ip := net.ParseIP(c)
			if ip == nil {
				return nil, fmt.Errorf("parse whitelist entry %q: %w", c, err)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			n = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		w.nets = append(w.nets, n)
	}
	for _, p := range ports {
		w.ports[p] = struct{}{}
	}
	return w, nil
}

// Skip reports whether the packet's deep analysis should be skipped.
func (w *Whitelist) Skip(rec *model.PacketRecord) bool {
	if w == nil || rec == nil {
		return false
	}
	if _, ok := w.ports[rec.DstPort]; ok {
		return true
	}
	for _, n := range w.nets {
		if rec.SrcIP != nil && n.Contains(rec.SrcIP) {
			return true
		}
		if rec.DstIP != nil && n.Contains(rec.DstIP) {
			return true
		}
	}
	return false
}
