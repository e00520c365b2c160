package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netsentry/internal/capture"
	"netsentry/internal/config"
	"netsentry/internal/decode"
	"netsentry/internal/model"
	"netsentry/internal/probe"

	"github.com/google/gopacket/pcap"
)

func main() {
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print detections.")
	iface := flag.String("iface", "", "Interface to capture packets from (required for pub mode).")
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *mode {
	case "pub":
		runProbe(cfg, *iface)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe captures packets on the interface and publishes summaries to NATS.
func runProbe(cfg *config.Config, interfaceName string) {
	if interfaceName == "" {
		log.Println("Error: -iface flag is required for pub mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Starting nids-probe in PUBLISH mode on interface: %s", interfaceName)

	pub, err := probe.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	timeout := config.Duration(cfg.Capture.CaptureTimeout, 100*time.Millisecond)
	live, err := capture.Open(interfaceName, cfg.Capture.SnapLen, timeout)
	if err != nil {
		log.Fatalf("Error opening capture: %v", err)
	}
	defer live.Close()

	log.Println("Capture started successfully. Publishing packets to NATS...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		published := 0
		for {
			pkt, err := live.NextPacket()
			if err != nil {
				if err == pcap.NextErrorTimeoutExpired {
					continue
				}
				log.Printf("Capture read error: %v", err)
				return
			}
			rec, err := decode.Decode(pkt)
			if err != nil {
				continue
			}
			if err := pub.PublishPacket(rec); err != nil {
				log.Printf("Failed to publish packet: %v", err)
			}
			published++
			if published%1000 == 0 {
				log.Printf("%d packets published...", published)
			}
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}

// runSubscriber consumes the detection subject and prints each detection.
func runSubscriber(cfg *config.Config) {
	log.Println("Starting nids-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(det model.Detection) {
		log.Printf("Detection [%s/%s] %s from %s to %s:%d (confidence %.2f)",
			det.Kind, det.Severity, det.SignatureID, det.SrcIP, det.DstIP, det.DstPort, det.Confidence)
	}

	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
