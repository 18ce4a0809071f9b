// Package server exposes the index lifecycle and query API over HTTP.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hupe1980/dexgo"
	"github.com/hupe1980/dexgo/artifact"
	"github.com/hupe1980/dexgo/cluster"
	"github.com/hupe1980/dexgo/codec"
	"github.com/hupe1980/dexgo/query"
)

// Handler holds the HTTP handlers for the dexgo API.
type Handler struct {
	dex    *dexgo.Dexgo
	codec  codec.Codec
	logger *slog.Logger
}

// NewHandler creates a Handler backed by the given facade. A nil codec
// selects the default codec, a nil logger the process default.
func NewHandler(dex *dexgo.Dexgo, c codec.Codec, logger *slog.Logger) *Handler {
	if c == nil {
		c = codec.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dex: dex, codec: c, logger: logger}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Index lifecycle.
	mux.HandleFunc("GET /indices", h.handleListIndices)
	mux.HandleFunc("POST /indices", h.handleSubmitIndex)
	mux.HandleFunc("GET /indices/{name}", h.handleGetIndex)
	mux.HandleFunc("PUT /indices/{name}", h.handleReplaceIndex)
	mux.HandleFunc("DELETE /indices/{name}", h.handleDeleteIndex)

	// Chunk enumeration and queries.
	mux.HandleFunc("GET /indices/{name}/keys", h.handleKeys)
	mux.HandleFunc("GET /indices/{name}/values", h.handleValues)
	mux.HandleFunc("GET /indices/{name}/query/{query...}", h.handleQuery)
}

// --- Index Lifecycle ---

func (h *Handler) handleListIndices(w http.ResponseWriter, r *http.Request) {
	names, err := h.dex.List()
	if err != nil {
		h.opError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"indices": names,
	})
}

func (h *Handler) handleSubmitIndex(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	var ds dexgo.DataSet
	if err := h.codec.Unmarshal(body, &ds); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	name, err := h.dex.Submit(r.Context(), ds)
	if err != nil {
		h.opError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"name":   name,
	})
}

func (h *Handler) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	data, err := h.dex.Read(r.Context(), name)
	if err != nil {
		h.opError(w, err)
		return
	}

	// The artifact is already the wire form.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleReplaceIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	var req struct {
		IChunks []string `json:"ichunks"`
	}
	if err := h.codec.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.dex.Replace(r.Context(), name, req.IChunks); err != nil {
		h.opError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"status": "created",
		"name":   name,
	})
}

func (h *Handler) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.dex.Delete(r.Context(), name); err != nil {
		h.opError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Enumeration and Queries ---

func (h *Handler) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.dex.Keys(r.Context(), r.PathValue("name"))
	if err != nil {
		h.opError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stringList(keys))
}

func (h *Handler) handleValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.dex.Values(r.Context(), r.PathValue("name"))
	if err != nil {
		h.opError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stringList(values))
}

// handleQuery evaluates the expression in the path tail. The mux unescapes
// the wildcard before it gets here, so '/', '|' and '~' inside a key must be
// escaped twice by the caller: once to survive URL transport, once to
// survive expression parsing.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(r.PathValue("query"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	values, err := h.dex.Query(r.Context(), r.PathValue("name"), q)
	if err != nil {
		h.opError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stringList(values))
}

// --- Helpers ---

// stringList keeps empty results encoding as [] instead of null.
func stringList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// opError maps a facade error to its response. The mapping mirrors the index
// lifecycle: not ready asks the caller to retry after a delay, a dead
// indexing job is a server-side failure, a failed ephemeral job is a bad
// upstream answer.
func (h *Handler) opError(w http.ResponseWriter, err error) {
	var (
		notReady   *dexgo.ErrNotReady
		failed     *dexgo.ErrIndexingFailed
		submission *dexgo.ErrSubmission
		jobFailed  *dexgo.ErrJobFailed
	)

	switch {
	case errors.As(err, &notReady):
		w.Header().Set("Retry-After", strconv.Itoa(int(notReady.RetryAfter.Seconds())))
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &failed):
		h.writeError(w, http.StatusInternalServerError, "Indexing failed.")
	case errors.Is(err, dexgo.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, artifact.ErrInvalidName):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &submission):
		if errors.Is(err, cluster.ErrInvalidSpec) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &jobFailed):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := h.codec.Marshal(v)
	if err != nil {
		h.logger.Error("encode response", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "message", message)
	}
	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": message,
		},
	})
}
