// Package pcap reads packet capture files for offline analysis.
package pcap

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"netsentry/internal/decode"
	"netsentry/internal/model"

	"github.com/google/gopacket"
	gpcap "github.com/google/gopacket/pcap"
)

// Recognized capture file magics: classic pcap in both byte orders (plus
// the nanosecond variants) and pcapng.
var fileMagics = [][4]byte{
	{0xd4, 0xc3, 0xb2, 0xa1},
	{0xa1, 0xb2, 0xc3, 0xd4},
	{0x4d, 0x3c, 0xb2, 0xa1},
	{0xa1, 0xb2, 0x3c, 0x4d},
	{0x0a, 0x0d, 0x0d, 0x0a},
}

// ValidateFile checks that the file exists, is within the size limit and
// starts with a known capture magic. An unknown magic logs a warning but is
// not fatal; parsing is still attempted. A zero or negative maxSize
// disables the size check.
func ValidateFile(filePath string, maxSize int64) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("stat capture file: %w", err)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return fmt.Errorf("capture file %s is %d bytes, limit is %d", filePath, info.Size(), maxSize)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := f.Read(magic[:]); err != nil {
		return fmt.Errorf("read capture file header: %w", err)
	}
	for _, m := range fileMagics {
		if magic == m {
			return nil
		}
	}
	log.Printf("Warning: %s has unrecognized capture magic %#x, attempting to parse anyway",
		filePath, binary.BigEndian.Uint32(magic[:]))
	return nil
}

// Reader reads packets from a pcap file.
type Reader struct {
	handle *gpcap.Handle
	path   string
}

// NewReader validates and opens the given capture file.
func NewReader(filePath string, maxSize int64) (*Reader, error) {
	if err := ValidateFile(filePath, maxSize); err != nil {
		return nil, err
	}
	handle, err := gpcap.OpenOffline(filePath)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return &Reader{handle: handle, path: filePath}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets decodes up to budget packets and sends them to the channel.
// It closes the channel when done. Unparseable frames are logged and
// skipped rather than aborting the run; corrupt tails are common in
// truncated captures. A budget of zero or less reads the whole file.
func (r *Reader) ReadPackets(out chan<- *model.PacketRecord, budget int) (read, skipped int) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		if budget > 0 && read >= budget {
			log.Printf("Packet budget of %d reached for %s, remaining packets ignored", budget, r.path)
			break
		}
		rec, err := decode.Decode(packet)
		if err != nil {
			log.Printf("Skipping unparseable packet: %v", err)
			skipped++
			continue
		}
		read++
		out <- rec
	}
	return read, skipped
}

// ReadAll decodes up to budget packets into a slice. Offline analysis works
// on bounded replays, so the slice stays small.
func (r *Reader) ReadAll(budget int) (records []*model.PacketRecord, skipped int) {
	out := make(chan *model.PacketRecord, 64)
	done := make(chan struct{})
	go func() {
		for rec := range out {
			records = append(records, rec)
		}
		close(done)
	}()
	_, skipped = r.ReadPackets(out, budget)
	<-done
	return records, skipped
}
