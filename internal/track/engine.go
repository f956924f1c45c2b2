// Package track ties the dataset router, store and archive together into
// the aircraft state and position ingestion engine.
package track

import (
	"context"
	"fmt"
	"log"
	"sync"

	"adsb_tracker/internal/adsb"
	"adsb_tracker/internal/storage"
)

// Archiver receives a best-effort copy of each ingested batch. Archive
// failures are logged, never surfaced to the batch caller.
type Archiver interface {
	ArchivePositions(ctx context.Context, dataset string, timestamp int64, sightings []adsb.Sighting) error
}

// Engine routes batches and sweeps to the right table pair and serializes
// store access per dataset, so a sweep never interleaves with an in-flight
// batch for the same dataset while distinct datasets proceed independently.
type Engine struct {
	store    storage.Store
	datasets *storage.Datasets
	archive  Archiver

	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchive tees ingested batches to an analytics archive.
func WithArchive(a Archiver) Option {
	return func(e *Engine) { e.archive = a }
}

// NewEngine creates an engine over a store and a validated dataset mapping.
func NewEngine(store storage.Store, datasets *storage.Datasets, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		datasets: datasets,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, name := range datasets.Names() {
		e.locks[name] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VerifyDatasets checks every configured table pair exists. Called once at
// startup so a misconfigured dataset fails before ingestion, not mid-batch.
func (e *Engine) VerifyDatasets(ctx context.Context) error {
	for _, name := range e.datasets.Names() {
		tables, err := e.datasets.Resolve(name)
		if err != nil {
			return err
		}
		if err := e.store.VerifyTables(ctx, tables); err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
	}
	return nil
}

// Datasets returns the configured dataset names.
func (e *Engine) Datasets() []string {
	return e.datasets.Names()
}

func (e *Engine) lock(dataset string) func() {
	mu, ok := e.locks[dataset]
	if !ok {
		// Unknown dataset; Resolve will reject it before any store access.
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// ProcessBatch reconciles one batch of sightings into a dataset. The batch
// timestamp is applied to every record; sightings without an ICAO address
// are skipped. The whole batch commits or rolls back as a unit.
// The sightings are normalized in place, so the caller's slice holds the
// canonical identity fields afterwards.
func (e *Engine) ProcessBatch(ctx context.Context, dataset string, sightings []adsb.Sighting, timestamp int64) (storage.BatchResult, error) {
	tables, err := e.datasets.Resolve(dataset)
	if err != nil {
		return storage.BatchResult{}, err
	}

	for i := range sightings {
		sightings[i].Normalize()
	}

	unlock := e.lock(dataset)
	res, err := e.store.UpsertBatch(ctx, tables, sightings, timestamp)
	unlock()
	if err != nil {
		return storage.BatchResult{}, fmt.Errorf("upsert batch for %s: %w", dataset, err)
	}

	if e.archive != nil {
		if aerr := e.archive.ArchivePositions(ctx, dataset, timestamp, sightings); aerr != nil {
			log.Printf("archive: dataset %s: %v", dataset, aerr)
		}
	}
	return res, nil
}

// Sweep evicts aircraft in a dataset unseen for longer than timeoutSeconds,
// cascading through their history. timeoutSeconds = 0 evicts everything
// seen strictly before now.
func (e *Engine) Sweep(ctx context.Context, dataset string, timeoutSeconds, now int64) (storage.SweepResult, error) {
	tables, err := e.datasets.Resolve(dataset)
	if err != nil {
		return storage.SweepResult{}, err
	}

	unlock := e.lock(dataset)
	defer unlock()

	res, err := e.store.Sweep(ctx, tables, timeoutSeconds, now)
	if err != nil {
		return storage.SweepResult{}, fmt.Errorf("sweep %s: %w", dataset, err)
	}
	return res, nil
}

// SweepAll sweeps every configured dataset and returns the combined counts.
// It stops at the first failing dataset.
func (e *Engine) SweepAll(ctx context.Context, timeoutSeconds, now int64) (storage.SweepResult, error) {
	var total storage.SweepResult
	for _, name := range e.datasets.Names() {
		res, err := e.Sweep(ctx, name, timeoutSeconds, now)
		if err != nil {
			return total, err
		}
		total.AircraftRemoved += res.AircraftRemoved
		total.PositionsRemoved += res.PositionsRemoved
	}
	return total, nil
}

// LastPosition returns the most recent history row for an aircraft in a
// dataset, or (nil, nil) when it has none.
func (e *Engine) LastPosition(ctx context.Context, dataset, hex string) (*storage.PositionRecord, error) {
	tables, err := e.datasets.Resolve(dataset)
	if err != nil {
		return nil, err
	}
	return e.store.LastPosition(ctx, tables, hex)
}

// GetAircraft returns the state row for an aircraft, or (nil, nil).
func (e *Engine) GetAircraft(ctx context.Context, dataset, hex string) (*storage.AircraftState, error) {
	tables, err := e.datasets.Resolve(dataset)
	if err != nil {
		return nil, err
	}
	return e.store.GetAircraft(ctx, tables, hex)
}

// ListAircraft returns every current state row in a dataset.
func (e *Engine) ListAircraft(ctx context.Context, dataset string) ([]storage.AircraftState, error) {
	tables, err := e.datasets.Resolve(dataset)
	if err != nil {
		return nil, err
	}
	return e.store.ListAircraft(ctx, tables)
}
