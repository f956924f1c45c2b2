package main

import (
	"context"
	"strings"
	"testing"

	"adsb_tracker/internal/adsb"
	"adsb_tracker/internal/storage"
)

func TestExportTrackNormalizesAddress(t *testing.T) {
	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tables := storage.Tables{State: "aircraft", History: "positions"}
	ctx := context.Background()
	if err := db.CreateTables(ctx, tables); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}

	lat, lon := 47.46, 8.55
	s := adsb.Sighting{Hex: "4B1801", Flight: "SWR123", Lat: &lat, Lon: &lon}
	s.Normalize()
	if _, err := db.UpsertBatch(ctx, tables, []adsb.Sighting{s}, 1000); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	// Mixed-case input must find the lowercased stored rows.
	kml, count, err := exportTrack(ctx, db, tables, "4B1801")
	if err != nil {
		t.Fatalf("exportTrack: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if len(kml.Document.Placemarks) == 0 {
		t.Fatal("generated KML has no placemarks")
	}
	track := kml.Document.Placemarks[0]
	if track.LineString == nil || !strings.Contains(track.LineString.Coordinates, "8.550000,47.460000") {
		t.Errorf("track coordinates = %q, want lon,lat pair present", track.LineString.Coordinates)
	}
	if !strings.Contains(track.Name, "4b1801") {
		t.Errorf("track name = %q, want the normalized address", track.Name)
	}
}

func TestExportTrackNoHistory(t *testing.T) {
	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tables := storage.Tables{State: "aircraft", History: "positions"}
	ctx := context.Background()
	if err := db.CreateTables(ctx, tables); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}

	_, count, err := exportTrack(ctx, db, tables, "ffffff")
	if err != nil {
		t.Fatalf("exportTrack: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for unknown aircraft", count)
	}
}
