// Package api provides REST API access to current aircraft state and
// position history.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"adsb_tracker/internal/storage"
	"adsb_tracker/internal/track"
)

// Server exposes the tracking engine over HTTP.
type Server struct {
	engine      *track.Engine
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewServer creates a new tracker API server.
func NewServer(engine *track.Engine, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &Server{
		engine:      engine,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Mount("/api/v1", s.Router())

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("Tracker API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/datasets", s.handleDatasets)
	r.Get("/{dataset}/aircraft", s.handleListAircraft)
	r.Get("/{dataset}/aircraft/{hex}", s.handleGetAircraft)
	r.Get("/{dataset}/aircraft/{hex}/position", s.handleLastPosition)

	return r
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"datasets": s.engine.Datasets()})
}

func (s *Server) handleListAircraft(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	aircraft, err := s.engine.ListAircraft(r.Context(), dataset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if aircraft == nil {
		aircraft = []storage.AircraftState{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dataset":  dataset,
		"count":    len(aircraft),
		"aircraft": aircraft,
	})
}

func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	hex := strings.ToLower(chi.URLParam(r, "hex"))

	aircraft, err := s.engine.GetAircraft(r.Context(), dataset, hex)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if aircraft == nil {
		writeError(w, http.StatusNotFound, "Unknown aircraft")
		return
	}

	writeJSON(w, http.StatusOK, aircraft)
}

func (s *Server) handleLastPosition(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	hex := strings.ToLower(chi.URLParam(r, "hex"))

	pos, err := s.engine.LastPosition(r.Context(), dataset, hex)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if pos == nil {
		writeError(w, http.StatusNotFound, "No position history for aircraft")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// writeEngineError maps engine errors to HTTP statuses: an unknown dataset
// is the client's mistake, anything else is a storage failure.
func writeEngineError(w http.ResponseWriter, err error) {
	var cfgErr *storage.ConfigError
	if errors.As(err, &cfgErr) {
		writeError(w, http.StatusNotFound, cfgErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
