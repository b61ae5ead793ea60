package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/checksum"
	"github.com/starford/tangle/internal/notestore"
	"github.com/starford/tangle/internal/sse"
)

const maxBodyBytes = 8 << 20

// Notifier receives accepted upserts.
type Notifier interface {
	NoteUpserted(sse.NoteChange)
}

// Handler holds API route handlers.
type Handler struct {
	store    notestore.Store
	notifier Notifier
}

// NewHandler creates a Handler. notifier may be nil.
func NewHandler(store notestore.Store, notifier Notifier) *Handler {
	return &Handler{store: store, notifier: notifier}
}

// ListNotes handles GET /api/notes.
//
// Query: updated_after (unix ms, exclusive) and include_deleted (1/true).
// The response is a bare JSON array ordered by updated_at. An ETag derived
// from the body allows conditional requests.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after int64
	if raw := q.Get("updated_after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("updated_after must be a non-negative integer"))
			return
		}
		after = v
	}
	includeDeleted, _ := strconv.ParseBool(q.Get("include_deleted"))

	notes, err := h.store.List(after, includeDeleted)
	if err != nil {
		slog.Error("api: list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	body, err := json.Marshal(notes)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Get(chi.URLParam(r, "id"))
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("note not found"))
		return
	}
	if err != nil {
		slog.Error("api: get note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// UpsertNote handles POST /api/notes.
func (h *Handler) UpsertNote(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("cannot read body"))
		return
	}
	var body UpsertBody
	if err := json.Unmarshal(raw, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	n, err := h.store.Upsert(body.toRequest())
	if err != nil {
		slog.Error("api: upsert failed", slog.String("id", body.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if h.notifier != nil {
		h.notifier.NoteUpserted(sse.NoteChange{ID: n.ID, UpdatedAt: n.UpdatedAt, Deleted: n.Deleted != 0})
	}
	writeJSON(w, http.StatusOK, UpsertResponse{Note: n})
}
