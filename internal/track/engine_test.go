package track

import (
	"context"
	"errors"
	"testing"

	"adsb_tracker/internal/adsb"
	"adsb_tracker/internal/storage"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	datasets := storage.DefaultDatasets()
	ctx := context.Background()
	for _, name := range datasets.Names() {
		tables, err := datasets.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
		if err := db.CreateTables(ctx, tables); err != nil {
			t.Fatalf("CreateTables(%s): %v", name, err)
		}
	}

	return NewEngine(db, datasets, opts...)
}

func floatPtr(f float64) *float64 { return &f }

func TestProcessBatchNormalizes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	batch := []adsb.Sighting{
		{Hex: "4B1801", Flight: "SWR123  ", Lat: floatPtr(47.5), Lon: floatPtr(8.7)},
	}
	res, err := e.ProcessBatch(ctx, "civilian", batch, 1000)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Processed != 1 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 1 processed", res)
	}

	// The state row is keyed by the lowercased address.
	a, err := e.GetAircraft(ctx, "civilian", "4b1801")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a == nil {
		t.Fatal("aircraft not found under normalized address")
	}
	if a.Flight != "SWR123" {
		t.Errorf("flight = %q, want trimmed SWR123", a.Flight)
	}

	// Normalization happens in place: the caller sees canonical fields.
	if batch[0].Hex != "4b1801" || batch[0].Flight != "SWR123" {
		t.Errorf("batch after processing = %+v, want normalized in place", batch[0])
	}
}

func TestProcessBatchSkipCounting(t *testing.T) {
	e := newTestEngine(t)

	batch := []adsb.Sighting{
		{Hex: "   "}, // whitespace-only address normalizes to blank
		{Hex: "abc123"},
	}
	res, err := e.ProcessBatch(context.Background(), "civilian", batch, 1000)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Processed != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 processed / 1 skipped", res)
	}
}

func TestProcessBatchUnknownDataset(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ProcessBatch(context.Background(), "experimental", []adsb.Sighting{{Hex: "abc123"}}, 1000)
	if err == nil {
		t.Fatal("ProcessBatch succeeded for unknown dataset")
	}
	var cfgErr *storage.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error = %T, want *storage.ConfigError", err)
	}
}

func TestDatasetIsolationThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ProcessBatch(ctx, "civilian", []adsb.Sighting{{Hex: "abc123"}}, 1000); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if _, err := e.ProcessBatch(ctx, "military", []adsb.Sighting{{Hex: "ae01ce"}}, 1000); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	civ, err := e.ListAircraft(ctx, "civilian")
	if err != nil {
		t.Fatalf("ListAircraft: %v", err)
	}
	if len(civ) != 1 || civ[0].Hex != "abc123" {
		t.Errorf("civilian aircraft = %+v, want just abc123", civ)
	}

	mil, err := e.ListAircraft(ctx, "military")
	if err != nil {
		t.Fatalf("ListAircraft: %v", err)
	}
	if len(mil) != 1 || mil[0].Hex != "ae01ce" {
		t.Errorf("military aircraft = %+v, want just ae01ce", mil)
	}
}

func TestSweepAll(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ProcessBatch(ctx, "civilian", []adsb.Sighting{{Hex: "abc123"}}, 1000); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if _, err := e.ProcessBatch(ctx, "military", []adsb.Sighting{{Hex: "ae01ce"}}, 1000); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	res, err := e.SweepAll(ctx, 3600, 1000+3601)
	if err != nil {
		t.Fatalf("SweepAll: %v", err)
	}
	if res.AircraftRemoved != 2 {
		t.Errorf("aircraft removed = %d, want 2 across both datasets", res.AircraftRemoved)
	}
	if res.PositionsRemoved != 2 {
		t.Errorf("positions removed = %d, want 2", res.PositionsRemoved)
	}
}

type recordingArchiver struct {
	calls int
	last  []adsb.Sighting
	err   error
}

func (r *recordingArchiver) ArchivePositions(ctx context.Context, dataset string, timestamp int64, sightings []adsb.Sighting) error {
	r.calls++
	r.last = sightings
	return r.err
}

func TestArchiveTee(t *testing.T) {
	arch := &recordingArchiver{}
	e := newTestEngine(t, WithArchive(arch))
	ctx := context.Background()

	if _, err := e.ProcessBatch(ctx, "civilian", []adsb.Sighting{{Hex: "abc123"}}, 1000); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if arch.calls != 1 {
		t.Errorf("archive calls = %d, want 1", arch.calls)
	}
	if len(arch.last) != 1 || arch.last[0].Hex != "abc123" {
		t.Errorf("archived batch = %+v, want the normalized sightings", arch.last)
	}
}

func TestArchiveFailureDoesNotFailBatch(t *testing.T) {
	arch := &recordingArchiver{err: errors.New("clickhouse down")}
	e := newTestEngine(t, WithArchive(arch))
	ctx := context.Background()

	res, err := e.ProcessBatch(ctx, "civilian", []adsb.Sighting{{Hex: "abc123"}}, 1000)
	if err != nil {
		t.Fatalf("ProcessBatch failed on archive error: %v", err)
	}
	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1", res.Processed)
	}

	// The primary store committed regardless.
	a, err := e.GetAircraft(ctx, "civilian", "abc123")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a == nil {
		t.Error("aircraft missing after archive failure")
	}
}

func TestVerifyDatasetsMissingTables(t *testing.T) {
	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// No tables created.
	e := NewEngine(db, storage.DefaultDatasets())
	if err := e.VerifyDatasets(context.Background()); err == nil {
		t.Fatal("VerifyDatasets succeeded without tables")
	}
}

func TestLastPositionThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pos, err := e.LastPosition(ctx, "civilian", "abc123")
	if err != nil {
		t.Fatalf("LastPosition: %v", err)
	}
	if pos != nil {
		t.Errorf("got %+v, want nil before any ingestion", pos)
	}

	batch := []adsb.Sighting{{Hex: "abc123", Lat: floatPtr(47.5), Lon: floatPtr(8.7)}}
	if _, err := e.ProcessBatch(ctx, "civilian", batch, 1000); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	pos, err = e.LastPosition(ctx, "civilian", "abc123")
	if err != nil {
		t.Fatalf("LastPosition: %v", err)
	}
	if pos == nil || pos.Timestamp != 1000 {
		t.Fatalf("last position = %+v, want timestamp 1000", pos)
	}
	if pos.Lat == nil || *pos.Lat != 47.5 {
		t.Errorf("lat = %v, want 47.5", pos.Lat)
	}
}
