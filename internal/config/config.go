package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig holds the capture boundary options.
type CaptureConfig struct {
	Interface      string   `yaml:"interface"` // name or "auto-detect"
	CaptureTimeout string   `yaml:"capture_timeout"`
	SnapLen        int      `yaml:"snap_len"`
	QueueSize      int      `yaml:"queue_size"`
	WhitelistIPs   []string `yaml:"whitelist_ips"` // CIDR list, tracked but not deep-analyzed
	WhitelistPorts []uint16 `yaml:"whitelist_ports"`
	IdleTimeout    string   `yaml:"idle_timeout"`
	SweepInterval  string   `yaml:"sweep_interval"`
	StatusInterval string   `yaml:"status_check_interval"`
	MaxRetries     int      `yaml:"max_retries"`
}

// DetectConfig holds thresholds for the three detectors.
type DetectConfig struct {
	AnomalyThreshold        float64 `yaml:"anomaly_threshold"`
	ClassificationThreshold float64 `yaml:"classification_threshold"`
	MinSamplesForTraining   int     `yaml:"min_samples_for_training"`
	RetrainInterval         string  `yaml:"retrain_interval"`
	ModelPath               string  `yaml:"model_path"`      // anomaly model persist location
	ClassifierPath          string  `yaml:"classifier_path"` // trained classifier file, optional
	SamplePath              string  `yaml:"sample_path"`     // auto-labeled sample sink, empty disables
	WindowPackets           int     `yaml:"window_packets"`  // connection-pattern sliding window
	WindowSpan              string  `yaml:"window_span"`
	DedupWindow             string  `yaml:"dedup_window"`
}

// ClickHouseConfig mirrors the store connection options.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig configures the optional cache backend.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// NATSConfig configures packet/detection fan-out.
type NATSConfig struct {
	Enabled          bool   `yaml:"enabled"`
	URL              string `yaml:"url"`
	PacketSubject    string `yaml:"packet_subject"`
	DetectionSubject string `yaml:"detection_subject"`
}

// SMTPConfig configures the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// NotifierConfig drives the critical-detection digest.
type NotifierConfig struct {
	Enabled       bool       `yaml:"enabled"`
	CheckInterval string     `yaml:"check_interval"`
	SMTP          SMTPConfig `yaml:"smtp"`
}

// APIConfig configures the health/stats HTTP server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// BatchConfig configures the offline analyzer.
type BatchConfig struct {
	PacketBudget int   `yaml:"packet_budget"`
	MaxFileSize  int64 `yaml:"max_file_size"`
	RunDetectors bool  `yaml:"run_detectors"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig    `yaml:"capture"`
	Detect   DetectConfig     `yaml:"detect"`
	Store    ClickHouseConfig `yaml:"store"`
	Cache    RedisConfig      `yaml:"cache"`
	NATS     NATSConfig       `yaml:"nats"`
	Notifier NotifierConfig   `yaml:"notifier"`
	API      APIConfig        `yaml:"api"`
	Batch    BatchConfig      `yaml:"batch"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct with defaults applied.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in the documented defaults for every unset option.
func (c *Config) ApplyDefaults() {
	if c.Capture.Interface == "" {
		c.Capture.Interface = "auto-detect"
	}
	if c.Capture.CaptureTimeout == "" {
		c.Capture.CaptureTimeout = "100ms"
	}
	if c.Capture.SnapLen <= 0 {
		c.Capture.SnapLen = 1600
	}
	if c.Capture.QueueSize <= 0 {
		c.Capture.QueueSize = 10000
	}
	if c.Capture.IdleTimeout == "" {
		c.Capture.IdleTimeout = "300s"
	}
	if c.Capture.SweepInterval == "" {
		c.Capture.SweepInterval = "30s"
	}
	if c.Capture.StatusInterval == "" {
		c.Capture.StatusInterval = "30s"
	}
	if c.Capture.MaxRetries <= 0 {
		c.Capture.MaxRetries = 10
	}
	if c.Detect.AnomalyThreshold <= 0 {
		c.Detect.AnomalyThreshold = 0.5
	}
	if c.Detect.ClassificationThreshold <= 0 {
		c.Detect.ClassificationThreshold = 0.7
	}
	if c.Detect.MinSamplesForTraining <= 0 {
		c.Detect.MinSamplesForTraining = 500
	}
	if c.Detect.RetrainInterval == "" {
		c.Detect.RetrainInterval = "1h"
	}
	if c.Detect.WindowPackets <= 0 {
		c.Detect.WindowPackets = 1000
	}
	if c.Detect.WindowSpan == "" {
		c.Detect.WindowSpan = "60s"
	}
	if c.Detect.DedupWindow == "" {
		c.Detect.DedupWindow = "300s"
	}
	if c.NATS.PacketSubject == "" {
		c.NATS.PacketSubject = "netsentry.packets"
	}
	if c.NATS.DetectionSubject == "" {
		c.NATS.DetectionSubject = "netsentry.detections"
	}
	if c.Notifier.CheckInterval == "" {
		c.Notifier.CheckInterval = "5m"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8090"
	}
	if c.Batch.PacketBudget <= 0 {
		c.Batch.PacketBudget = 2000
	}
	if c.Batch.MaxFileSize <= 0 {
		c.Batch.MaxFileSize = 200 << 20
	}
}

// Duration parses a duration field, falling back to the given default when
// the value is missing or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
