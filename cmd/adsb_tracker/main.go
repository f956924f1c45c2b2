// Command-line entry point for the ADS-B tracker.
//
// The tracker maintains a rolling, deduplicated record of aircraft visible
// to a feed, plus a per-aircraft position history, across one or more
// datasets (e.g. civilian and military populations in separate table pairs).
//
// Commands:
//
//	init    create the state/history tables for every configured dataset
//	ingest  poll a feed (or subscribe to NATS) and upsert sighting batches
//	sweep   one-shot eviction of aircraft unseen beyond the timeout
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"adsb_tracker/internal/adsb"
	"adsb_tracker/internal/feed"
	"adsb_tracker/internal/storage"
	"adsb_tracker/internal/track"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "adsb_tracker - commands:")
	fmt.Fprintln(w, "  init    - create tables for every configured dataset")
	fmt.Fprintln(w, "  ingest  - poll the feed and upsert sighting batches")
	fmt.Fprintln(w, "  sweep   - evict aircraft unseen beyond the timeout")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  adsb_tracker init   -db adsb.db [-datasets SPEC]")
	fmt.Fprintln(w, "  adsb_tracker ingest -db adsb.db -dataset civilian [-interval 60s] [-once] [-silent]")
	fmt.Fprintln(w, "  adsb_tracker sweep  -db adsb.db [-dataset civilian] [-timeout 3600]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Datasets SPEC maps names to table pairs, e.g.:")
	fmt.Fprintln(w, "  civilian=aircraft,positions;military=aircraft_military,positions_military")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "init":
		runInit(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "sweep":
		runSweep(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

const defaultDatasetSpec = "civilian=aircraft,positions;military=aircraft_military,positions_military"

// parseDatasetSpec parses "name=state,history;name2=..." into the raw
// mapping validated by storage.NewDatasets.
func parseDatasetSpec(spec string) (map[string][]string, error) {
	cfg := make(map[string][]string)
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, tables, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid dataset entry %q (want name=state,history)", part)
		}
		var pair []string
		for _, tbl := range strings.Split(tables, ",") {
			if tbl = strings.TrimSpace(tbl); tbl != "" {
				pair = append(pair, tbl)
			}
		}
		cfg[strings.TrimSpace(name)] = pair
	}
	return cfg, nil
}

func openDatasets(spec string) *storage.Datasets {
	cfg, err := parseDatasetSpec(spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dataset config error: %v\n", err)
		os.Exit(1)
	}
	datasets, err := storage.NewDatasets(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dataset config error: %v\n", err)
		os.Exit(1)
	}
	return datasets
}

func openStore(path string) *storage.SQLiteDB {
	db, err := storage.OpenSQLite(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	return db
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("ADSB_DB", "adsb.db"), "SQLite database path")
	datasetSpec := fs.String("datasets", defaultDatasetSpec, "Dataset to table-pair mapping")
	_ = fs.Parse(args)

	datasets := openDatasets(*datasetSpec)
	db := openStore(*dbPath)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	for _, name := range datasets.Names() {
		tables, err := datasets.Resolve(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := db.CreateTables(ctx, tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating tables for %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("Dataset %s: tables %s, %s ready\n", name, tables.State, tables.History)
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("ADSB_DB", "adsb.db"), "SQLite database path")
	datasetSpec := fs.String("datasets", defaultDatasetSpec, "Dataset to table-pair mapping")
	dataset := fs.String("dataset", "civilian", "Dataset to ingest into")

	feedBase := fs.String("feed-url", envOrDefault("ADSB_FEED_URL", "https://api.adsb.one"), "Feed base URL")
	lat := fs.Float64("lat", 47.4999, "Point-query latitude")
	lon := fs.Float64("lon", 8.7262, "Point-query longitude")
	radius := fs.Int("radius", 10, "Point-query radius in nautical miles")

	poiRadius := fs.Float64("poi-radius", 0, "Extra point-of-interest filter radius (0 disables)")
	poiUnit := fs.String("poi-unit", "km", "Point-of-interest radius unit: km or nm")

	interval := fs.Duration("interval", time.Minute, "Polling interval")
	timeout := fs.Int64("timeout", 3600, "Staleness timeout in seconds for the sweep after each cycle")
	once := fs.Bool("once", false, "Run a single cycle and exit")
	silent := fs.Bool("silent", false, "Suppress per-cycle output")

	natsURL := fs.String("nats-url", "", "Consume batches from NATS instead of polling (e.g. nats://localhost:4222)")
	natsSubject := fs.String("nats-subject", "adsb.sightings", "NATS subject carrying feed-response JSON")

	chHost := fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse host for the position archive (empty disables)")
	chPort := fs.Int("ch-port", 9000, "ClickHouse port")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "adsb"), "ClickHouse database")
	chUser := fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
	_ = fs.Parse(args)

	datasets := openDatasets(*datasetSpec)
	db := openStore(*dbPath)
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []track.Option
	if *chHost != "" {
		archive, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open ClickHouse archive: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = archive.Close() }()
		if err := archive.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create archive schema: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, track.WithArchive(archive))
	}

	engine := track.NewEngine(db, datasets, opts...)
	if err := engine.VerifyDatasets(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var poi *adsb.PointOfInterest
	if *poiRadius > 0 {
		poi = &adsb.PointOfInterest{Lat: *lat, Lon: *lon, Distance: *poiRadius, Unit: *poiUnit}
	}

	cycle := func(sightings []adsb.Sighting) {
		if poi != nil {
			sightings = poi.Filter(sightings)
		}
		now := time.Now().Unix()

		res, err := engine.ProcessBatch(ctx, *dataset, sightings, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest error: %v\n", err)
			return
		}
		sweep, err := engine.Sweep(ctx, *dataset, *timeout, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sweep error: %v\n", err)
			return
		}
		if !*silent {
			fmt.Printf("--- %s upserted %d aircraft (skipped %d), swept %d aircraft / %d positions ---\n",
				time.Now().Format("2006-01-02 15:04:05"),
				res.Processed, res.Skipped, sweep.AircraftRemoved, sweep.PositionsRemoved)
		}
	}

	if *natsURL != "" {
		sub, err := feed.Subscribe(*natsURL, *natsSubject, cycle)
		if err != nil {
			fmt.Fprintf(os.Stderr, "NATS error: %v\n", err)
			os.Exit(1)
		}
		defer sub.Close()
		<-ctx.Done()
		return
	}

	client := feed.NewClient(feed.PointURL(*feedBase, *lat, *lon, *radius))
	for {
		sightings, err := client.Fetch(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Feed error: %v\n", err)
		} else {
			cycle(sightings)
		}
		if *once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}

func runSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("ADSB_DB", "adsb.db"), "SQLite database path")
	datasetSpec := fs.String("datasets", defaultDatasetSpec, "Dataset to table-pair mapping")
	dataset := fs.String("dataset", "", "Dataset to sweep (default: all)")
	timeout := fs.Int64("timeout", 3600, "Staleness timeout in seconds")
	_ = fs.Parse(args)

	datasets := openDatasets(*datasetSpec)
	db := openStore(*dbPath)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	engine := track.NewEngine(db, datasets)
	if err := engine.VerifyDatasets(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().Unix()
	var res storage.SweepResult
	var err error
	if *dataset != "" {
		res, err = engine.Sweep(ctx, *dataset, *timeout, now)
	} else {
		res, err = engine.SweepAll(ctx, *timeout, now)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cleanup: removed %d stale aircraft and their %d position records.\n",
		res.AircraftRemoved, res.PositionsRemoved)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
