package probe

import (
	"encoding/json"
	"fmt"
	"log"

	"netsentry/internal/config"
	"netsentry/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing packet and detection data to NATS.
type Publisher struct {
	nc               *nats.Conn
	packetSubject    string
	detectionSubject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{
		nc:               nc,
		packetSubject:    cfg.PacketSubject,
		detectionSubject: cfg.DetectionSubject,
	}, nil
}

// wirePacket is the packet envelope on the wire. Payload bytes stay local;
// only the summary fields cross the broker.
type wirePacket struct {
	Timestamp   int64  `json:"ts_unix_nano"`
	SrcIP       string `json:"src_ip"`
	DstIP       string `json:"dst_ip"`
	SrcPort     uint16 `json:"src_port"`
	DstPort     uint16 `json:"dst_port"`
	Protocol    string `json:"protocol"`
	Length      int    `json:"length"`
	PayloadSize int    `json:"payload_size"`
}

// PublishPacket serializes a PacketRecord summary and publishes it.
func (p *Publisher) PublishPacket(rec *model.PacketRecord) error {
	w := wirePacket{
		Timestamp:   rec.Timestamp.UnixNano(),
		SrcIP:       rec.SrcIP.String(),
		DstIP:       rec.DstIP.String(),
		SrcPort:     rec.SrcPort,
		DstPort:     rec.DstPort,
		Protocol:    rec.Protocol.Name,
		Length:      rec.Length,
		PayloadSize: rec.PayloadSize,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.packetSubject, data)
}

// PublishDetection publishes a stored detection for downstream consumers.
func (p *Publisher) PublishDetection(det *model.Detection) error {
	data, err := json.Marshal(det)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.detectionSubject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
