package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"adsb_tracker/internal/adsb"
)

// setupTestPostgres creates a test database connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestPostgres(t *testing.T) (*PostgresDB, Tables) {
	t.Helper()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "adsb"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "adsb"
	}
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "adsb_tracker"
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     user,
		Password: password,
		Database: database,
	})
	if err != nil {
		return nil, Tables{}
	}

	// Per-run table pair so concurrent test runs don't collide.
	suffix := time.Now().UnixNano()
	tables := Tables{
		State:   fmt.Sprintf("test_aircraft_%d", suffix),
		History: fmt.Sprintf("test_positions_%d", suffix),
	}
	if err := pg.CreateTables(ctx, tables); err != nil {
		pg.Close()
		return nil, Tables{}
	}

	t.Cleanup(func() {
		_, _ = pg.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", tables.History, tables.State))
		pg.Close()
	})
	return pg, tables
}

func TestPostgresUpsertAndSweep(t *testing.T) {
	pg, tables := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()

	s := adsb.Sighting{Hex: "4b1801", Flight: "SWR123", Lat: floatPtr(47.5), Lon: floatPtr(8.7)}
	res, err := pg.UpsertBatch(ctx, tables, []adsb.Sighting{s}, 1000)
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("processed = %d, want 1", res.Processed)
	}
	if _, err := pg.UpsertBatch(ctx, tables, []adsb.Sighting{{Hex: "4b1801", Flight: "SWR456"}}, 2000); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	a, err := pg.GetAircraft(ctx, tables, "4b1801")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a == nil {
		t.Fatal("aircraft not found")
	}
	if a.FirstSeen != 1000 || a.LastSeen != 2000 {
		t.Errorf("first/last seen = %d/%d, want 1000/2000", a.FirstSeen, a.LastSeen)
	}
	if a.Flight != "SWR456" {
		t.Errorf("flight = %q, want SWR456", a.Flight)
	}

	pos, err := pg.LastPosition(ctx, tables, "4b1801")
	if err != nil {
		t.Fatalf("LastPosition: %v", err)
	}
	if pos == nil || pos.Timestamp != 2000 {
		t.Fatalf("last position = %+v, want timestamp 2000", pos)
	}

	sweep, err := pg.Sweep(ctx, tables, 3600, 2000+3601)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sweep.AircraftRemoved != 1 || sweep.PositionsRemoved != 2 {
		t.Errorf("sweep = %+v, want 1 aircraft / 2 positions", sweep)
	}

	a, err = pg.GetAircraft(ctx, tables, "4b1801")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a != nil {
		t.Error("aircraft still present after sweep")
	}
}

func TestPostgresLastSeenNeverRegresses(t *testing.T) {
	pg, tables := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()

	if _, err := pg.UpsertBatch(ctx, tables, []adsb.Sighting{{Hex: "abc123"}}, 2000); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if _, err := pg.UpsertBatch(ctx, tables, []adsb.Sighting{{Hex: "abc123"}}, 1500); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	a, err := pg.GetAircraft(ctx, tables, "abc123")
	if err != nil {
		t.Fatalf("GetAircraft: %v", err)
	}
	if a.LastSeen != 2000 {
		t.Errorf("last_seen = %d, want 2000", a.LastSeen)
	}
}

func TestPostgresLastPositionNotFound(t *testing.T) {
	pg, tables := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}

	pos, err := pg.LastPosition(context.Background(), tables, "ffffff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != nil {
		t.Errorf("expected nil for aircraft with no history, got %+v", pos)
	}
}
