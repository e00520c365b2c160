// pcapgen writes a synthetic capture file with a mix of benign traffic and
// planted attack patterns, for exercising the offline analyzer.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of benign packets to generate")
	withScan := flag.Bool("scan", false, "Plant a port scan from 10.0.0.5")
	withSQLi := flag.Bool("sqli", false, "Plant SQL injection payloads")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ts := time.Now()

	log.Printf("Generating %d packets into %s...", *packetCount, *outputFile)

	for i := 0; i < *packetCount; i++ {
		srcIP := net.IP{192, 168, 1, byte(rng.Intn(254) + 1)}
		dstIP := net.IP{10, 0, 0, byte(rng.Intn(254) + 1)}
		payload := make([]byte, rng.Intn(1400)+50)
		rng.Read(payload)
		writePacket(pcapWriter, ts, srcIP, dstIP,
			uint16(rng.Intn(65535-1024)+1024), 80, payload, true, false)
		ts = ts.Add(time.Duration(rng.Intn(20)) * time.Millisecond)
	}

	if *withScan {
		scanner := net.IP{10, 0, 0, 5}
		target := net.IP{192, 168, 1, 10}
		for port := 1; port <= 30; port++ {
			writePacket(pcapWriter, ts, scanner, target, 44321, uint16(port), nil, true, false)
			ts = ts.Add(5 * time.Millisecond)
		}
		log.Println("Planted port scan from 10.0.0.5")
	}

	if *withSQLi {
		attacker := net.IP{172, 16, 0, 9}
		victim := net.IP{192, 168, 1, 20}
		payload := []byte(fmt.Sprintf("GET /items?id=1%s HTTP/1.1\r\nHost: victim.example\r\n\r\n",
			"%20union%20select%20*%20from%20users"))
		writePacket(pcapWriter, ts, attacker, victim, 51000, 8081, payload, false, true)
		log.Println("Planted SQL injection payload")
	}

	log.Printf("Done writing %s.", *outputFile)
}

func writePacket(w *pcapgo.Writer, ts time.Time, srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte, syn, ack bool) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    srcIP,
		DstIP:    dstIP,
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     rand.Uint32(),
		SYN:     syn,
		ACK:     ack,
		PSH:     len(payload) > 0,
		Window:  14600,
	}
	tcpLayer.SetNetworkLayerForChecksum(ipLayer)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := w.WritePacket(ci, buf.Bytes()); err != nil {
		log.Fatalf("Failed to write packet: %v", err)
	}
}
