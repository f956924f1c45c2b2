// Package storage provides persistent storage for aircraft state and
// position history across one or more tracked datasets.
package storage

import (
	"context"

	"adsb_tracker/internal/adsb"
)

// AircraftState is the current-snapshot row for one aircraft.
type AircraftState struct {
	Hex       string `json:"hex"`
	Flight    string `json:"flight,omitempty"`
	Squawk    string `json:"squawk,omitempty"`
	FirstSeen int64  `json:"first_seen"` // Epoch seconds, set once at creation.
	LastSeen  int64  `json:"last_seen"`  // Epoch seconds of the most recent sighting.
}

// PositionRecord is one immutable row of the position history.
type PositionRecord struct {
	Seq         int64    `json:"seq"`
	Hex         string   `json:"hex"`
	Timestamp   int64    `json:"timestamp"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Altitude    *int     `json:"altitude,omitempty"`
	GroundSpeed *float64 `json:"ground_speed,omitempty"`
	Track       *float64 `json:"track,omitempty"`
}

// BatchResult reports what happened to one ingestion batch.
type BatchResult struct {
	Processed int // Sightings written (state upsert + history append each).
	Skipped   int // Sightings dropped for missing an ICAO address.
}

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	AircraftRemoved  int
	PositionsRemoved int
}

// Store is the backend-agnostic contract for one table pair. Every batch
// operation is atomic: either all of its writes commit or none do.
type Store interface {
	// UpsertBatch reconciles a batch of sightings into the state table and
	// appends one history row per sighting, as a single transaction.
	// Sightings without an ICAO address are skipped, not errors.
	UpsertBatch(ctx context.Context, tables Tables, sightings []adsb.Sighting, timestamp int64) (BatchResult, error)

	// Sweep removes every aircraft whose last_seen is older than
	// now - timeoutSeconds, deleting its history rows before its state row.
	Sweep(ctx context.Context, tables Tables, timeoutSeconds, now int64) (SweepResult, error)

	// LastPosition returns the most recent history row for an aircraft:
	// maximum timestamp, ties broken by maximum surrogate key.
	// Returns (nil, nil) if the aircraft has no history.
	LastPosition(ctx context.Context, tables Tables, hex string) (*PositionRecord, error)

	// GetAircraft returns the state row for an aircraft, or (nil, nil).
	GetAircraft(ctx context.Context, tables Tables, hex string) (*AircraftState, error)

	// ListAircraft returns every state row in the dataset, ordered by hex.
	ListAircraft(ctx context.Context, tables Tables) ([]AircraftState, error)

	// VerifyTables fails with a *ConfigError if the table pair is absent.
	// The engine assumes an already-migrated schema and never self-heals.
	VerifyTables(ctx context.Context, tables Tables) error

	Close() error
}
