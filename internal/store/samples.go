package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"netsentry/internal/model"
)

// FileSampleCollector appends auto-labeled samples to a JSON-lines file.
// The file feeds offline training runs; losing a sample is acceptable,
// blocking the pipeline is not.
type FileSampleCollector struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSampleCollector opens (or creates) the sample file for appending.
func NewFileSampleCollector(path string) (*FileSampleCollector, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sample directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	return &FileSampleCollector{file: f}, nil
}

type sampleLine struct {
	Features   []float64 `json:"features"`
	SrcIP      string    `json:"src_ip"`
	DstIP      string    `json:"dst_ip"`
	DstPort    uint16    `json:"dst_port"`
	Label      string    `json:"label"`
	LabeledBy  string    `json:"labeled_by"`
	Confidence float64   `json:"confidence"`
	Timestamp  int64     `json:"ts_unix"`
}

// Collect writes one sample as a JSON line.
func (c *FileSampleCollector) Collect(_ context.Context, s model.Sample) error {
	line := sampleLine{
		Features:   s.Features.Slice(),
		SrcIP:      s.SrcIP,
		DstIP:      s.DstIP,
		DstPort:    s.DstPort,
		Label:      s.Label,
		LabeledBy:  s.LabeledBy,
		Confidence: s.Confidence,
		Timestamp:  s.Timestamp.Unix(),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.file.Write(data)
	return err
}

// Close closes the underlying file.
func (c *FileSampleCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
