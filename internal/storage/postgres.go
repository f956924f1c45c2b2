package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adsb_tracker/internal/adsb"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB implements Store over a PostgreSQL connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// CreateTables creates the state and history tables and their indexes.
func (d *PostgresDB) CreateTables(ctx context.Context, tables Tables) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		icao24     TEXT PRIMARY KEY,
		flight     TEXT,
		squawk     TEXT,
		first_seen BIGINT NOT NULL,
		last_seen  BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		id           BIGSERIAL PRIMARY KEY,
		icao24       TEXT NOT NULL,
		timestamp    BIGINT NOT NULL,
		lat          DOUBLE PRECISION,
		lon          DOUBLE PRECISION,
		altitude     INTEGER,
		ground_speed DOUBLE PRECISION,
		track        DOUBLE PRECISION
	);

	CREATE INDEX IF NOT EXISTS idx_%[2]s_icao24 ON %[2]s(icao24);
	CREATE INDEX IF NOT EXISTS idx_%[2]s_timestamp ON %[2]s(timestamp);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_last_seen ON %[1]s(last_seen);
	`, tables.State, tables.History)

	if _, err := d.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// VerifyTables checks that both tables of the pair exist.
func (d *PostgresDB) VerifyTables(ctx context.Context, tables Tables) error {
	for _, tbl := range []string{tables.State, tables.History} {
		var exists bool
		err := d.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, tbl).Scan(&exists)
		if err != nil {
			return fmt.Errorf("verify table %s: %w", tbl, err)
		}
		if !exists {
			return &ConfigError{Reason: fmt.Sprintf("table %q does not exist (run init first)", tbl)}
		}
	}
	return nil
}

// UpsertBatch writes one batch of sightings as a single transaction.
func (d *PostgresDB) UpsertBatch(ctx context.Context, tables Tables, sightings []adsb.Sighting, timestamp int64) (BatchResult, error) {
	var res BatchResult

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	upsertSQL := fmt.Sprintf(`
		INSERT INTO %[1]s (icao24, flight, squawk, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (icao24) DO UPDATE SET
			flight = EXCLUDED.flight,
			squawk = EXCLUDED.squawk,
			last_seen = GREATEST(%[1]s.last_seen, EXCLUDED.last_seen)
	`, tables.State)
	appendSQL := fmt.Sprintf(`
		INSERT INTO %s (icao24, timestamp, lat, lon, altitude, ground_speed, track)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tables.History)

	for i := range sightings {
		s := &sightings[i]
		if s.Hex == "" {
			res.Skipped++
			continue
		}

		if _, err := tx.Exec(ctx, upsertSQL,
			s.Hex, pgNullString(s.Flight), pgNullString(s.Squawk), timestamp, timestamp); err != nil {
			return BatchResult{}, fmt.Errorf("upsert %s: %w", s.Hex, err)
		}
		if _, err := tx.Exec(ctx, appendSQL,
			s.Hex, timestamp, s.Lat, s.Lon, s.Altitude(), s.GroundSpeed, s.Track); err != nil {
			return BatchResult{}, fmt.Errorf("append position %s: %w", s.Hex, err)
		}
		res.Processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("commit batch: %w", err)
	}
	return res, nil
}

// Sweep removes aircraft unseen for longer than timeoutSeconds together
// with their position history, atomically. Postgres has no low parameter
// limit; the stale set is passed as a single array.
func (d *PostgresDB) Sweep(ctx context.Context, tables Tables, timeoutSeconds, now int64) (SweepResult, error) {
	var res SweepResult
	cutoff := now - timeoutSeconds

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin sweep: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		fmt.Sprintf(`SELECT icao24 FROM %s WHERE last_seen < $1`, tables.State), cutoff)
	if err != nil {
		return res, fmt.Errorf("select stale: %w", err)
	}
	stale, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return res, fmt.Errorf("collect stale: %w", err)
	}

	if len(stale) == 0 {
		return res, nil
	}

	// History before state: no cascading delete in the schema.
	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE icao24 = ANY($1)`, tables.History), stale)
	if err != nil {
		return SweepResult{}, fmt.Errorf("delete history: %w", err)
	}
	res.PositionsRemoved = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE icao24 = ANY($1)`, tables.State), stale)
	if err != nil {
		return SweepResult{}, fmt.Errorf("delete state: %w", err)
	}
	res.AircraftRemoved = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return SweepResult{}, fmt.Errorf("commit sweep: %w", err)
	}
	return res, nil
}

// LastPosition returns the most recent history row for an aircraft, or
// (nil, nil) if it has none.
func (d *PostgresDB) LastPosition(ctx context.Context, tables Tables, hex string) (*PositionRecord, error) {
	var p PositionRecord
	err := d.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, icao24, timestamp, lat, lon, altitude, ground_speed, track
		FROM %s WHERE icao24 = $1
		ORDER BY timestamp DESC, id DESC LIMIT 1
	`, tables.History), hex).Scan(&p.Seq, &p.Hex, &p.Timestamp, &p.Lat, &p.Lon, &p.Altitude, &p.GroundSpeed, &p.Track)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last position %s: %w", hex, err)
	}
	return &p, nil
}

// GetAircraft returns the state row for one aircraft, or (nil, nil).
func (d *PostgresDB) GetAircraft(ctx context.Context, tables Tables, hex string) (*AircraftState, error) {
	var a AircraftState
	var flight, squawk *string
	err := d.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT icao24, flight, squawk, first_seen, last_seen
		FROM %s WHERE icao24 = $1
	`, tables.State), hex).Scan(&a.Hex, &flight, &squawk, &a.FirstSeen, &a.LastSeen)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aircraft %s: %w", hex, err)
	}
	if flight != nil {
		a.Flight = *flight
	}
	if squawk != nil {
		a.Squawk = *squawk
	}
	return &a, nil
}

// ListAircraft returns every state row in the dataset, ordered by ICAO
// address.
func (d *PostgresDB) ListAircraft(ctx context.Context, tables Tables) ([]AircraftState, error) {
	rows, err := d.pool.Query(ctx, fmt.Sprintf(`
		SELECT icao24, flight, squawk, first_seen, last_seen
		FROM %s ORDER BY icao24
	`, tables.State))
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer rows.Close()

	var out []AircraftState
	for rows.Next() {
		var a AircraftState
		var flight, squawk *string
		if err := rows.Scan(&a.Hex, &flight, &squawk, &a.FirstSeen, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scan aircraft: %w", err)
		}
		if flight != nil {
			a.Flight = *flight
		}
		if squawk != nil {
			a.Squawk = *squawk
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Pool returns the underlying connection pool for advanced operations.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

func pgNullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
