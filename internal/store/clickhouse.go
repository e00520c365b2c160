// Package store holds the alert store implementations. ClickHouse is the
// production backend; Memory is the degraded fallback and the test double.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"netsentry/internal/config"
	"netsentry/internal/model"
)

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS alerts (
    AlertID     String,
    CreatedAt   DateTime,
    Kind        String,
    SignatureID String,
    Severity    String,
    Confidence  Float64,
    Description String,
    Source      String,
    SrcIP       String,
    DstIP       String,
    DstPort     UInt16
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CreatedAt)
ORDER BY (SignatureID, CreatedAt);
`

// ClickHouse implements model.AlertStore on a ClickHouse table.
type ClickHouse struct {
	conn driver.Conn
}

var _ model.AlertStore = (*ClickHouse)(nil)

// NewClickHouse connects and ensures the alerts table exists.
func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createAlertsTable); err != nil {
		return nil, fmt.Errorf("failed to create alerts table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured alerts table exists.")
	return &ClickHouse{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Insert persists one detection and returns its alert id.
func (s *ClickHouse) Insert(ctx context.Context, d *model.Detection) (string, error) {
	id := uuid.NewString()
	err := s.conn.Exec(ctx,
		`INSERT INTO alerts (AlertID, CreatedAt, Kind, SignatureID, Severity, Confidence, Description, Source, SrcIP, DstIP, DstPort)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, d.CreatedAt, string(d.Kind), d.SignatureID, string(d.Severity),
		d.Confidence, d.Description, d.Source, d.SrcIP, d.DstIP, d.DstPort,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert alert: %w", err)
	}
	return id, nil
}

// ExistsRecent reports whether a matching alert was stored since the given
// time. Used by the deduplicator as the cross-process check.
func (s *ClickHouse) ExistsRecent(ctx context.Context, srcIP, signatureID string, dstPort uint16, since time.Time) (bool, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT count() FROM alerts
		 WHERE SrcIP = ? AND SignatureID = ? AND DstPort = ? AND CreatedAt >= ?`,
		srcIP, signatureID, dstPort, since,
	)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	return count > 0, nil
}

// Close releases the connection.
func (s *ClickHouse) Close() error {
	return s.conn.Close()
}
