package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mirror/internal/importer"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/pipeline"
	"github.com/kalambet/mirror/internal/storage"
)

type ImportRequest struct {
	Provider string `json:"provider" validate:"required"`
	Format   string `json:"format" validate:"required"`
	Filename string `json:"filename"`
	Content  string `json:"content" validate:"required"`
}

type ImportResponse struct {
	Conversation storage.Conversation `json:"conversation"`
	ThoughtIDs   []string             `json:"thought_ids"`
}

type EnrichRequest struct {
	Content  string             `json:"content" validate:"required"`
	Existing []linker.Candidate `json:"existing" validate:"dive"`
}

func isImportError(err error) bool {
	return errors.Is(err, importer.ErrUnsupportedProvider) ||
		errors.Is(err, importer.ErrUnsupportedFormat) ||
		errors.Is(err, importer.ErrMalformed)
}

func handleCaptureDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := filepath.Base(r.URL.Query().Get("filename"))
		if filename == "." || filename == "/" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}
		if len(data) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document body is empty")
			return
		}

		out, err := deps.Capture.CaptureDocument(r.Context(), filename, data)
		if err != nil {
			serviceError(deps, w, "document", err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !decodeRequest(w, r, maxUploadBodySize, &req) {
			return
		}

		conv, thoughts, err := deps.Capture.ImportConversation(r.Context(), req.Provider, req.Format, req.Filename, []byte(req.Content))
		if err != nil {
			serviceError(deps, w, "conversation", err)
			return
		}
		ids := make([]string, len(thoughts))
		for i, t := range thoughts {
			ids[i] = t.ID
		}
		writeJSON(w, http.StatusCreated, ImportResponse{Conversation: conv, ThoughtIDs: ids})
	}
}

func handleDeleteImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ids, err := deps.Capture.DeleteConversation(r.Context(), id)
		if err != nil {
			serviceError(deps, w, "conversation", err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "thought_ids": ids})
	}
}

// handleEnrich runs the pipeline without persisting anything.
func handleEnrich(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnrichRequest
		if !decodeRequest(w, r, maxRequestBodySize, &req) {
			return
		}

		res, err := deps.Enricher.Process(r.Context(), req.Content, req.Existing)
		if errors.Is(err, pipeline.ErrAllStagesFailed) {
			deps.Logger.Error("enrichment failed", "error", err)
			httpError(w, http.StatusInternalServerError, "enrichment_error", "%v", err)
			return
		}
		if err != nil {
			serviceError(deps, w, "enrichment", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
