package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/markovbot/pkg/markov"
)

// MarkovAPI holds the dependencies for the Markov store API handlers.
type MarkovAPI struct {
	store     *markov.Store
	generator *GeneratorConfig
	statePath string
	maxBody   int64
	metrics   *Metrics
	logger    *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(store *markov.Store, config *Config, metrics *Metrics, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		store:     store,
		generator: config.Generator,
		statePath: config.Server.StatePath,
		maxBody:   config.Server.MaxBodyBytes,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterRoutes sets up the routing for all /api/markov endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/markov/databases", requireMarkovScope(m.handleDatabases))
	mux.HandleFunc("/api/markov/databases/", requireMarkovScope(m.handleDatabaseByName))
	mux.HandleFunc("/api/markov/export", requireMarkovScope(m.handleExport))
	mux.HandleFunc("/api/markov/import", requireMarkovScope(m.handleImport))
	mux.HandleFunc("/api/markov/save", requireMarkovScope(m.handleSave))
}

// DatabaseInfo is one entry of the database listing.
type DatabaseInfo struct {
	Name string `json:"name"`
	markov.DatabaseStats
}

// GenerateResponse is the JSON body returned by the generate endpoint.
type GenerateResponse struct {
	Database string `json:"database"`
	Text     string `json:"text"`
}

// untrackedDatabase labels metrics for requests naming a database the store
// does not hold, so arbitrary paths cannot create new series.
const untrackedDatabase = "(none)"

// statusForError maps store errors onto HTTP status codes.
func statusForError(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, markov.ErrDatabaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, markov.ErrEmptyDatabase):
		return http.StatusConflict
	case errors.Is(err, markov.ErrInvalidArgument), errors.Is(err, markov.ErrInvalidSnapshot):
		return http.StatusBadRequest
	case errors.Is(err, markov.ErrGenerationExhausted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleDatabases handles GET for listing databases and DELETE for resetting the store.
func (m *MarkovAPI) handleDatabases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		stats := m.store.Stats()
		// Convert map to slice for consistent JSON output
		list := make([]DatabaseInfo, 0, len(stats.Databases))
		for _, name := range stats.Databases {
			list = append(list, DatabaseInfo{Name: name, DatabaseStats: stats.Stats[name]})
		}
		respondWithJSON(w, http.StatusOK, list)

	case http.MethodDelete:
		m.store.Reset()
		m.metrics.ObserveStore(m.store)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleDatabaseByName routes actions for a specific database, e.g., train, generate, delete.
func (m *MarkovAPI) handleDatabaseByName(w http.ResponseWriter, r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/markov/databases/")
	parts := strings.Split(path, "/")
	database := parts[0]

	if database == "" {
		respondWithError(w, http.StatusBadRequest, "Database name not specified")
		return
	}

	if len(parts) == 1 { // Path is just /api/markov/databases/{name}
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if err := m.store.Clear(database); err != nil {
			respondWithError(w, statusForError(err), err.Error())
			return
		}
		m.metrics.ObserveStore(m.store)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	action := parts[1]
	switch action {
	case "train":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		overwrite, err := boolParam(r, "overwrite")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		err = m.store.Train(r.Context(), database, http.MaxBytesReader(w, r.Body, m.maxBody), overwrite)
		m.metrics.TrainRequestsTotal.WithLabelValues(m.databaseLabel(database), result(err)).Inc()
		if err != nil {
			m.logger.Error("Failed to train database", "database", database, "error", err)
			respondWithError(w, statusForError(err), fmt.Sprintf("Training failed: %v", err))
			return
		}
		m.metrics.ObserveStore(m.store)
		w.WriteHeader(http.StatusAccepted)

	case "generate":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		opts, err := m.generateOptions(r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		text, err := m.store.Generate(r.Context(), database, opts...)
		label := m.databaseLabel(database)
		m.metrics.GenerateLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
		m.metrics.GenerateRequestsTotal.WithLabelValues(label, result(err)).Inc()
		if err != nil {
			m.logger.Warn("Failed to generate text", "database", database, "error", err)
			respondWithError(w, statusForError(err), err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, GenerateResponse{Database: database, Text: text})

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// generateOptions builds generation options from the query string, falling
// back to the configured defaults.
func (m *MarkovAPI) generateOptions(r *http.Request) ([]markov.GenerateOption, error) {
	q := r.URL.Query()
	maxLength, err := intParam(r, "max_length", m.generator.MaxLength)
	if err != nil {
		return nil, err
	}
	maxTries, err := intParam(r, "max_tries", m.generator.MaxTries)
	if err != nil {
		return nil, err
	}
	verbose := m.generator.Verbose
	if q.Has("verbose") {
		if verbose, err = boolParam(r, "verbose"); err != nil {
			return nil, err
		}
	}
	return []markov.GenerateOption{
		markov.WithMaxLength(maxLength),
		markov.WithMaxTries(maxTries),
		markov.WithSeedWords(q["seed"]...),
		markov.WithVerbose(verbose),
	}, nil
}

// handleExport streams the whole store as a JSON snapshot.
func (m *MarkovAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\"markovbot.chain\"")
	if err := m.store.Export(r.Context(), w); err != nil {
		m.logger.Error("Failed to export store", "error", err)
	}
}

// handleImport loads an uploaded JSON snapshot, merging unless overwrite is set.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	overwrite, err := boolParam(r, "overwrite")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err = m.store.Import(r.Context(), http.MaxBytesReader(w, r.Body, m.maxBody), overwrite); err != nil {
		m.logger.Error("Failed to import store", "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Import failed: %v", err))
		return
	}

	m.metrics.ObserveStore(m.store)
	w.WriteHeader(http.StatusAccepted)
}

// handleSave persists the store to the configured state path.
func (m *MarkovAPI) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := saveStore(r.Context(), m.store, m.statePath); err != nil {
		m.logger.Error("Failed to save store", "path", m.statePath, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Save failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"path": m.statePath})
}

// databaseLabel returns database as a metric label if the store holds it.
func (m *MarkovAPI) databaseLabel(database string) string {
	if m.store.HasDatabase(database) {
		return database
	}
	return untrackedDatabase
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
