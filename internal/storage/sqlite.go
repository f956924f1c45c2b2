package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"adsb_tracker/internal/adsb"
)

// SQLite's default host parameter limit is 999; keep delete chunks well
// under it so a large stale set never produces an oversized IN list.
const sqliteDeleteChunk = 500

// SQLiteDB implements Store over a SQLite database file.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each pooled connection to :memory: would see its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// WAL for concurrent readers, busy timeout for writer contention,
	// foreign keys on to match the declared schema.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateTables creates the state and history tables plus the indexes the
// sweeper and last-position lookup rely on. Intended for the one-shot init
// command and tests; the ingestion path only verifies.
func (d *SQLiteDB) CreateTables(ctx context.Context, tables Tables) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		icao24     TEXT PRIMARY KEY NOT NULL,
		flight     TEXT,
		squawk     TEXT,
		first_seen INTEGER NOT NULL,
		last_seen  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		icao24       TEXT NOT NULL,
		timestamp    INTEGER NOT NULL,
		lat          REAL,
		lon          REAL,
		altitude     INTEGER,
		ground_speed REAL,
		track        REAL
	);

	CREATE INDEX IF NOT EXISTS idx_%[2]s_icao24 ON %[2]s(icao24);
	CREATE INDEX IF NOT EXISTS idx_%[2]s_timestamp ON %[2]s(timestamp);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_last_seen ON %[1]s(last_seen);
	`, tables.State, tables.History)

	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// VerifyTables checks that both tables of the pair exist.
func (d *SQLiteDB) VerifyTables(ctx context.Context, tables Tables) error {
	for _, tbl := range []string{tables.State, tables.History} {
		var name string
		err := d.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl).Scan(&name)
		if err == sql.ErrNoRows {
			return &ConfigError{Reason: fmt.Sprintf("table %q does not exist (run init first)", tbl)}
		}
		if err != nil {
			return fmt.Errorf("verify table %s: %w", tbl, err)
		}
	}
	return nil
}

// UpsertBatch writes one batch of sightings as a single transaction.
// last_seen never regresses: an out-of-order timestamp still updates
// flight/squawk and appends history, but keeps the newer last_seen.
func (d *SQLiteDB) UpsertBatch(ctx context.Context, tables Tables, sightings []adsb.Sighting, timestamp int64) (BatchResult, error) {
	var res BatchResult

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (icao24, flight, squawk, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(icao24) DO UPDATE SET
			flight = excluded.flight,
			squawk = excluded.squawk,
			last_seen = MAX(last_seen, excluded.last_seen)
	`, tables.State))
	if err != nil {
		return res, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = upsert.Close() }()

	appendPos, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (icao24, timestamp, lat, lon, altitude, ground_speed, track)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tables.History))
	if err != nil {
		return res, fmt.Errorf("prepare append: %w", err)
	}
	defer func() { _ = appendPos.Close() }()

	for i := range sightings {
		s := &sightings[i]
		if s.Hex == "" {
			res.Skipped++
			continue
		}

		if _, err := upsert.ExecContext(ctx,
			s.Hex, nullString(s.Flight), nullString(s.Squawk), timestamp, timestamp); err != nil {
			return BatchResult{}, fmt.Errorf("upsert %s: %w", s.Hex, err)
		}

		if _, err := appendPos.ExecContext(ctx,
			s.Hex, timestamp, s.Lat, s.Lon, s.Altitude(), s.GroundSpeed, s.Track); err != nil {
			return BatchResult{}, fmt.Errorf("append position %s: %w", s.Hex, err)
		}
		res.Processed++
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("commit batch: %w", err)
	}
	return res, nil
}

// Sweep removes aircraft unseen for longer than timeoutSeconds, cascading
// through their position history first. The whole sweep is one transaction.
func (d *SQLiteDB) Sweep(ctx context.Context, tables Tables, timeoutSeconds, now int64) (SweepResult, error) {
	var res SweepResult
	cutoff := now - timeoutSeconds

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin sweep: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT icao24 FROM %s WHERE last_seen < ?`, tables.State), cutoff)
	if err != nil {
		return res, fmt.Errorf("select stale: %w", err)
	}

	var stale []string
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			_ = rows.Close()
			return res, fmt.Errorf("scan stale: %w", err)
		}
		stale = append(stale, hex)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return res, fmt.Errorf("iterate stale: %w", err)
	}
	_ = rows.Close()

	if len(stale) == 0 {
		return res, nil
	}

	// History rows must go before their owning state rows; the schema has
	// no cascading delete.
	positionsRemoved, err := deleteChunked(ctx, tx, tables.History, stale)
	if err != nil {
		return SweepResult{}, fmt.Errorf("delete history: %w", err)
	}
	aircraftRemoved, err := deleteChunked(ctx, tx, tables.State, stale)
	if err != nil {
		return SweepResult{}, fmt.Errorf("delete state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SweepResult{}, fmt.Errorf("commit sweep: %w", err)
	}

	res.PositionsRemoved = positionsRemoved
	res.AircraftRemoved = aircraftRemoved
	return res, nil
}

// deleteChunked deletes rows matching the given ICAO addresses in chunks
// that respect SQLite's parameter limit.
func deleteChunked(ctx context.Context, tx *sql.Tx, table string, hexes []string) (int, error) {
	total := 0
	for start := 0; start < len(hexes); start += sqliteDeleteChunk {
		end := start + sqliteDeleteChunk
		if end > len(hexes) {
			end = len(hexes)
		}
		chunk := hexes[start:end]

		placeholders := make([]byte, 0, 2*len(chunk))
		args := make([]interface{}, len(chunk))
		for i, hex := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = hex
		}

		result, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE icao24 IN (%s)`, table, placeholders), args...)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

// LastPosition returns the most recent history row for an aircraft, or
// (nil, nil) if it has none.
func (d *SQLiteDB) LastPosition(ctx context.Context, tables Tables, hex string) (*PositionRecord, error) {
	var p PositionRecord
	var lat, lon, gs, track sql.NullFloat64
	var alt sql.NullInt64

	err := d.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, icao24, timestamp, lat, lon, altitude, ground_speed, track
		FROM %s WHERE icao24 = ?
		ORDER BY timestamp DESC, id DESC LIMIT 1
	`, tables.History), hex).Scan(&p.Seq, &p.Hex, &p.Timestamp, &lat, &lon, &alt, &gs, &track)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last position %s: %w", hex, err)
	}

	if lat.Valid {
		p.Lat = &lat.Float64
	}
	if lon.Valid {
		p.Lon = &lon.Float64
	}
	if alt.Valid {
		a := int(alt.Int64)
		p.Altitude = &a
	}
	if gs.Valid {
		p.GroundSpeed = &gs.Float64
	}
	if track.Valid {
		p.Track = &track.Float64
	}
	return &p, nil
}

// GetAircraft returns the state row for one aircraft, or (nil, nil).
func (d *SQLiteDB) GetAircraft(ctx context.Context, tables Tables, hex string) (*AircraftState, error) {
	var a AircraftState
	var flight, squawk sql.NullString

	err := d.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT icao24, flight, squawk, first_seen, last_seen
		FROM %s WHERE icao24 = ?
	`, tables.State), hex).Scan(&a.Hex, &flight, &squawk, &a.FirstSeen, &a.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aircraft %s: %w", hex, err)
	}

	a.Flight = flight.String
	a.Squawk = squawk.String
	return &a, nil
}

// ListAircraft returns every state row in the dataset, ordered by ICAO
// address.
func (d *SQLiteDB) ListAircraft(ctx context.Context, tables Tables) ([]AircraftState, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT icao24, flight, squawk, first_seen, last_seen
		FROM %s ORDER BY icao24
	`, tables.State))
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AircraftState
	for rows.Next() {
		var a AircraftState
		var flight, squawk sql.NullString
		if err := rows.Scan(&a.Hex, &flight, &squawk, &a.FirstSeen, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scan aircraft: %w", err)
		}
		a.Flight = flight.String
		a.Squawk = squawk.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountPositions returns the number of history rows for an aircraft.
func (d *SQLiteDB) CountPositions(ctx context.Context, tables Tables, hex string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE icao24 = ?`, tables.History), hex).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count positions %s: %w", hex, err)
	}
	return n, nil
}

// Positions returns the full history track for an aircraft in insertion
// order.
func (d *SQLiteDB) Positions(ctx context.Context, tables Tables, hex string) ([]PositionRecord, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, icao24, timestamp, lat, lon, altitude, ground_speed, track
		FROM %s WHERE icao24 = ? ORDER BY id
	`, tables.History), hex)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		var lat, lon, gs, track sql.NullFloat64
		var alt sql.NullInt64
		if err := rows.Scan(&p.Seq, &p.Hex, &p.Timestamp, &lat, &lon, &alt, &gs, &track); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if lat.Valid {
			v := lat.Float64
			p.Lat = &v
		}
		if lon.Valid {
			v := lon.Float64
			p.Lon = &v
		}
		if alt.Valid {
			a := int(alt.Int64)
			p.Altitude = &a
		}
		if gs.Valid {
			v := gs.Float64
			p.GroundSpeed = &v
		}
		if track.Valid {
			v := track.Float64
			p.Track = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
