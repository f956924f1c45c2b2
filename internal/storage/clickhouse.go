package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"adsb_tracker/internal/adsb"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseArchive is an append-only analytics mirror of position rows.
// It sits outside the core batch contract: archive writes are best-effort
// and never abort an ingestion batch.
type ClickHouseArchive struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseArchive{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (a *ClickHouseArchive) Close() error {
	return a.conn.Close()
}

// CreateSchema creates the position archive table.
func (a *ClickHouseArchive) CreateSchema(ctx context.Context) error {
	err := a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS position_archive (
			dataset      LowCardinality(String),
			icao24       String,
			flight       LowCardinality(String),
			squawk       LowCardinality(String),
			timestamp    DateTime,
			lat          Nullable(Float64),
			lon          Nullable(Float64),
			altitude     Nullable(Int32),
			ground_speed Nullable(Float64),
			track        Nullable(Float64)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (dataset, icao24, timestamp)
		SETTINGS index_granularity = 8192`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ArchivePositions appends one row per sighting to the archive.
func (a *ClickHouseArchive) ArchivePositions(ctx context.Context, dataset string, timestamp int64, sightings []adsb.Sighting) error {
	if len(sightings) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO position_archive (dataset, icao24, flight, squawk, timestamp, lat, lon, altitude, ground_speed, track)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	ts := time.Unix(timestamp, 0).UTC()
	for i := range sightings {
		s := &sightings[i]
		if s.Hex == "" {
			continue
		}
		var alt *int32
		if v := s.Altitude(); v != nil {
			a32 := int32(*v)
			alt = &a32
		}
		if err := batch.Append(dataset, s.Hex, s.Flight, s.Squawk, ts,
			s.Lat, s.Lon, alt, s.GroundSpeed, s.Track); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
