// Package main provides the tracker-api server.
//
// This is a standalone REST API server over the aircraft tracking tables.
// It serves the current state rows and last known positions per dataset.
//
// Usage:
//
//	tracker-api [options]
//
// Options:
//
//	-backend NAME       Storage backend: sqlite or postgres (default: sqlite)
//	-db PATH            SQLite database path (default: adsb.db, env: ADSB_DB)
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: adsb, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: adsb, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (env: POSTGRES_PASSWORD)
//	-datasets SPEC      Dataset to table-pair mapping
//	-port N             HTTP port (default: 8081)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys
//
// API Endpoints:
//
//	GET /api/v1/health
//	GET /api/v1/datasets
//	GET /api/v1/{dataset}/aircraft
//	GET /api/v1/{dataset}/aircraft/{hex}
//	GET /api/v1/{dataset}/aircraft/{hex}/position
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"adsb_tracker/internal/api"
	"adsb_tracker/internal/storage"
	"adsb_tracker/internal/track"
)

func main() {
	backend := flag.String("backend", "sqlite", "Storage backend: sqlite or postgres")
	dbPath := flag.String("db", envOrDefault("ADSB_DB", "adsb.db"), "SQLite database path")

	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "adsb"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", ""), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "adsb"), "PostgreSQL database")

	datasetSpec := flag.String("datasets",
		"civilian=aircraft,positions;military=aircraft_military,positions_military",
		"Dataset to table-pair mapping")

	port := flag.Int("port", 8081, "HTTP port for API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")

	flag.Parse()

	ctx := context.Background()

	cfg := make(map[string][]string)
	for _, part := range strings.Split(*datasetSpec, ";") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		name, tables, ok := strings.Cut(part, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "Invalid dataset entry: %q\n", part)
			os.Exit(1)
		}
		cfg[strings.TrimSpace(name)] = splitTrim(tables)
	}
	datasets, err := storage.NewDatasets(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dataset config error: %v\n", err)
		os.Exit(1)
	}

	var store storage.Store
	switch *backend {
	case "sqlite":
		store, err = storage.OpenSQLite(*dbPath)
	case "postgres":
		store, err = storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
	default:
		fmt.Fprintf(os.Stderr, "Unknown backend: %s\n", *backend)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", *backend, err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	engine := track.NewEngine(store, datasets)
	if err := engine.VerifyDatasets(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var keys []string
	if *apiKeys != "" {
		keys = splitTrim(*apiKeys)
	}

	server := api.NewServer(engine, api.Config{
		Port:        *port,
		AuthEnabled: *authEnabled,
		APIKeys:     keys,
	})

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func splitTrim(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
