package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mirror/internal/capture"
	"github.com/kalambet/mirror/internal/storage"
)

type CaptureRequest struct {
	Content  string         `json:"content" validate:"required"`
	Source   string         `json:"source" validate:"omitempty,oneof=text_note voice_note document"`
	Metadata map[string]any `json:"metadata"`
}

type TagRequest struct {
	Tags []string `json:"tags" validate:"required,min=1,dive,required"`
}

type ActionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending completed dismissed"`
}

type TagResponse struct {
	ThoughtID string   `json:"thought_id"`
	AddedTags []string `json:"added_tags"`
	AllTags   []string `json:"all_tags"`
}

func handleCaptureThought(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CaptureRequest
		if !decodeRequest(w, r, maxRequestBodySize, &req) {
			return
		}

		out, err := deps.Capture.CaptureText(r.Context(), capture.Input{
			Content:  req.Content,
			Source:   req.Source,
			Metadata: req.Metadata,
		})
		if err != nil {
			serviceError(deps, w, "thought", err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleRecentThoughts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		thoughts, err := deps.Store.RecentThoughts(limit)
		if err != nil {
			serviceError(deps, w, "thoughts", err)
			return
		}
		if thoughts == nil {
			thoughts = []storage.Thought{}
		}
		writeJSON(w, http.StatusOK, thoughts)
	}
}

func handleGetThought(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		out, err := loadEnriched(deps.Store, id)
		if err != nil {
			serviceError(deps, w, "thought", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// loadEnriched assembles a thought with its tags, actions, links and
// reflections.
func loadEnriched(store *storage.Store, id string) (storage.Enriched, error) {
	t, err := store.GetThought(id)
	if err != nil {
		return storage.Enriched{}, err
	}
	out := storage.Enriched{Thought: t, Tags: []string{}}

	tags, err := store.TagsFor(id)
	if err != nil {
		return storage.Enriched{}, err
	}
	for _, tag := range tags {
		out.Tags = append(out.Tags, tag.Name)
	}
	if out.Actions, err = store.ActionsFor(id); err != nil {
		return storage.Enriched{}, err
	}
	if out.Links, err = store.LinksFor(id); err != nil {
		return storage.Enriched{}, err
	}
	if out.Reflections, err = store.ReflectionsFor(id); err != nil {
		return storage.Enriched{}, err
	}
	return out, nil
}

func handleDeleteThought(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Capture.DeleteThought(r.Context(), id); err != nil {
			serviceError(deps, w, "thought", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleAddTags(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req TagRequest
		if !decodeRequest(w, r, maxRequestBodySize, &req) {
			return
		}

		added, all, err := deps.Capture.AddTags(r.Context(), id, req.Tags)
		if err != nil {
			serviceError(deps, w, "thought", err)
			return
		}
		if added == nil {
			added = []string{}
		}
		if all == nil {
			all = []string{}
		}
		writeJSON(w, http.StatusOK, TagResponse{ThoughtID: id, AddedTags: added, AllTags: all})
	}
}

func handleThoughtLinks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetThought(id); err != nil {
			serviceError(deps, w, "thought", err)
			return
		}
		links, err := deps.Store.LinksFor(id)
		if err != nil {
			serviceError(deps, w, "links", err)
			return
		}
		if links == nil {
			links = []storage.Link{}
		}
		writeJSON(w, http.StatusOK, links)
	}
}

func handleThoughtActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetThought(id); err != nil {
			serviceError(deps, w, "thought", err)
			return
		}
		items, err := deps.Store.ActionsFor(id)
		if err != nil {
			serviceError(deps, w, "actions", err)
			return
		}
		if items == nil {
			items = []storage.Action{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleUpdateAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req ActionStatusRequest
		if !decodeRequest(w, r, maxRequestBodySize, &req) {
			return
		}

		a, err := deps.Store.UpdateActionStatus(id, req.Status)
		if err != nil {
			serviceError(deps, w, "action", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleThoughtsByTag(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		limit := parseIntParam(r, "limit", 20, 100)

		thoughts, err := deps.Store.ThoughtsByTag(name, limit)
		if err != nil {
			serviceError(deps, w, "tag", err)
			return
		}
		if thoughts == nil {
			thoughts = []storage.Thought{}
		}
		writeJSON(w, http.StatusOK, thoughts)
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 5, 50)

		thoughts, err := deps.Capture.Search(r.Context(), q, limit)
		if err != nil {
			serviceError(deps, w, "search", err)
			return
		}
		if thoughts == nil {
			thoughts = []storage.Thought{}
		}
		writeJSON(w, http.StatusOK, thoughts)
	}
}
