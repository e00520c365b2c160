package probe

import (
	"encoding/json"
	"fmt"
	"log"

	"netsentry/internal/config"
	"netsentry/internal/model"

	"github.com/nats-io/nats.go"
)

// DetectionHandler is a function that processes a received Detection.
type DetectionHandler func(det model.Detection)

// Subscriber is responsible for subscribing to the detection subject and
// processing messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber for detections.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.DetectionSubject}, nil
}

// Start subscribes and processes messages with the provided handler.
func (s *Subscriber) Start(handler DetectionHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var det model.Detection
		if err := json.Unmarshal(msg.Data, &det); err != nil {
			log.Printf("Error unmarshalling detection: %v", err)
			return
		}
		handler(det)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
