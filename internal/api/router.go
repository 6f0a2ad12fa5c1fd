package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/mirror/internal/capture"
	"github.com/kalambet/mirror/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxUploadBodySize = 10 << 20 // 10MB

type AppDeps struct {
	Store    *storage.Store
	Capture  *capture.Service
	Enricher capture.Enricher
	Gatherer prometheus.Gatherer // optional; /metrics is not mounted when nil
	Token    string
	Logger   *slog.Logger
}

// NewAppHandler returns the REST API. /health and /metrics are public,
// everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/thoughts", handleCaptureThought(deps))
		r.Get("/thoughts", handleRecentThoughts(deps))
		r.Get("/thoughts/{id}", handleGetThought(deps))
		r.Delete("/thoughts/{id}", handleDeleteThought(deps))
		r.Post("/thoughts/{id}/tags", handleAddTags(deps))
		r.Get("/thoughts/{id}/links", handleThoughtLinks(deps))
		r.Get("/thoughts/{id}/actions", handleThoughtActions(deps))
		r.Patch("/actions/{id}", handleUpdateAction(deps))
		r.Get("/tags/{name}/thoughts", handleThoughtsByTag(deps))
		r.Get("/search", handleSearch(deps))

		r.Post("/documents", handleCaptureDocument(deps))
		r.Post("/imports", handleImport(deps))
		r.Delete("/imports/{id}", handleDeleteImport(deps))
		r.Post("/enrich", handleEnrich(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// decodeRequest reads a JSON body into v and validates it. It writes the
// error response and returns false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", validationMessage(err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// serviceError maps a domain error onto a status code. Unknown errors are
// logged and reported as 500.
func serviceError(deps AppDeps, w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
	case errors.Is(err, capture.ErrEmptyContent),
		errors.Is(err, capture.ErrInvalidSource),
		errors.Is(err, storage.ErrInvalidStatus):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case isImportError(err):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, capture.ErrExtraction):
		httpError(w, http.StatusUnprocessableEntity, "extraction_error", "%v", err)
	case errors.Is(err, capture.ErrSearchUnavailable):
		httpError(w, http.StatusServiceUnavailable, "unavailable", "%v", err)
	default:
		deps.Logger.Error("request failed", "resource", what, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", what, err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
