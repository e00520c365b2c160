package pcap

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// writeTestPcap writes count TCP packets into a classic pcap file.
func writeTestPcap(t *testing.T, path string, count int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}

	ts := time.Now()
	for i := 0; i < count; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version: 4, TTL: 64,
			SrcIP:    net.IPv4(192, 168, 1, byte(i%250+1)),
			DstIP:    net.IPv4(10, 0, 0, 1),
			Protocol: layers.IPProtocolTCP,
		}
		tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 14600}
		tcp.SetNetworkLayerForChecksum(ip)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp); err != nil {
			t.Fatal(err)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReader_ReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pcap")
	writeTestPcap(t, path, 10)

	r, err := NewReader(path, 0)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	records, skipped := r.ReadAll(0)
	if len(records) != 10 {
		t.Errorf("read %d packets, want 10", len(records))
	}
	if skipped != 0 {
		t.Errorf("skipped %d packets, want 0", skipped)
	}
	if records[0].DstPort != 80 {
		t.Errorf("DstPort = %d, want 80", records[0].DstPort)
	}
}

func TestReader_BudgetBoundsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.pcap")
	writeTestPcap(t, path, 50)

	r, err := NewReader(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	records, _ := r.ReadAll(20)
	if len(records) != 20 {
		t.Errorf("budget 20 read %d packets", len(records))
	}
}

func TestValidateFile_MissingFile(t *testing.T) {
	if err := ValidateFile(filepath.Join(t.TempDir(), "absent.pcap"), 0); err == nil {
		t.Error("missing file validated")
	}
}

func TestValidateFile_SizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pcap")
	writeTestPcap(t, path, 10)

	if err := ValidateFile(path, 1); err == nil {
		t.Error("oversized file validated against a 1-byte limit")
	}
	if err := ValidateFile(path, 10<<20); err != nil {
		t.Errorf("file within limit rejected: %v", err)
	}
}

func TestValidateFile_UnknownMagicIsWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-capture.bin")
	if err := os.WriteFile(path, []byte("this is not a pcap"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unknown magic warns but still validates so parsing can be attempted.
	if err := ValidateFile(path, 0); err != nil {
		t.Errorf("unknown magic rejected: %v", err)
	}
}
