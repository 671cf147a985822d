package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
	"github.com/tom-jordan23/cooking-mcp/internal/resources"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
	"github.com/tom-jordan23/cooking-mcp/internal/tools"
)

// actorHeader names the caller recorded in commit attribution. It is an
// opaque label supplied by whatever sits in front of the bridge; the core
// does no authorization with it.
const actorHeader = "X-Actor"

// idempotencyHeader memoizes the response of a mutating tool call.
const idempotencyHeader = "Idempotency-Key"

// Handler holds API route handlers.
type Handler struct {
	svc       *notebook.Service
	tools     *tools.Router
	resources *resources.Router
}

// NewHandler creates a new Handler.
func NewHandler(svc *notebook.Service, toolRouter *tools.Router, resourceRouter *resources.Router) *Handler {
	return &Handler{svc: svc, tools: toolRouter, resources: resourceRouter}
}

// ListTools handles GET /api/tools.
//
//	@Summary		List the available tools with their input schemas
//	@Tags			tools
//	@Produce		json
//	@Success		200	{object}	ToolListResponse
//	@Router			/tools [get]
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": h.tools.List(),
	})
}

// CallTool handles POST /api/tools/{name}. The body is the tool's argument
// object; the result envelope is returned verbatim with the HTTP status
// derived from its error code.
//
//	@Summary		Invoke a notebook tool by name
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			name			path		string	true	"Tool name"
//	@Param			X-Actor			header		string	false	"Caller label recorded in commit messages"
//	@Param			Idempotency-Key	header		string	false	"Replay key memoizing the call"
//	@Param			body			body		object	false	"Tool arguments"
//	@Success		200				{object}	tools.Result
//	@Failure		400				{object}	tools.Result
//	@Failure		404				{object}	tools.Result
//	@Failure		409				{object}	tools.Result
//	@Router			/tools/{name} [post]
func (h *Handler) CallTool(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	args, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body", "E_SCHEMA"))
		return
	}

	res := h.tools.Call(r.Context(), tools.Request{
		Name:           tools.Name(chi.URLParam(r, "name")),
		Args:           args,
		Actor:          r.Header.Get(actorHeader),
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	writeJSON(w, statusForResult(res), res)
}

// statusForResult maps a tool result's error code onto the bridge status.
func statusForResult(res *tools.Result) int {
	if !res.IsError {
		return http.StatusOK
	}
	switch res.ErrorCode() {
	case "E_SCHEMA":
		return http.StatusBadRequest
	case "E_NOT_FOUND":
		return http.StatusNotFound
	case "E_IDEMPOTENCY":
		return http.StatusConflict
	case "E_GIT":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Resources handles GET /api/resources. Without a uri parameter it lists the
// catalog; with one it reads that resource through the TTL cache.
//
//	@Summary		List resources, or read one by its lab:// URI
//	@Tags			resources
//	@Produce		json
//	@Param			uri	query		string	false	"Resource URI to read"
//	@Success		200	{object}	ResourceListResponse
//	@Failure		404	{object}	errResponse
//	@Router			/resources [get]
func (h *Handler) Resources(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"resources": h.resources.List(r.Context()),
		})
		return
	}
	content, err := h.resources.Read(r.Context(), uri)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// ListEntries handles GET /api/entries.
//
//	@Summary		List entries with pagination
//	@Tags			entries
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	EntryListResponse
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	entries, total, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list entries failed", slog.String("error", err.Error()))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// GetEntry handles GET /api/entries/{id}. Reading an entry counts as a view.
//
//	@Summary		Get a single entry by id
//	@Tags			entries
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	models.Entry
//	@Failure		404	{object}	errResponse
//	@Router			/entries/{id} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateID(id); err != nil {
		respondError(w, err)
		return
	}
	entry, err := h.svc.Get(r.Context(), id, true)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteEntry handles DELETE /api/entries/{id}.
//
//	@Summary		Delete an entry and its mirror file
//	@Tags			entries
//	@Param			id		path	string	true	"Entry id"
//	@Param			X-Actor	header	string	false	"Caller label recorded in the commit message"
//	@Success		204		"Entry deleted"
//	@Failure		404		{object}	errResponse
//	@Router			/entries/{id} [delete]
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateID(id); err != nil {
		respondError(w, err)
		return
	}
	deleted, err := h.svc.Delete(r.Context(), id, r.Header.Get(actorHeader))
	if err != nil {
		slog.Error("delete entry failed", slog.String("id", id), slog.String("error", err.Error()))
		respondError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, errorBody("not found", "E_NOT_FOUND"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Search entries by text and filters
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	false	"Text matched against title, protocol, and tags"
//	@Param			cooking_method	query		string	false	"Filter by cooking method"
//	@Param			difficulty_min	query		int		false	"Minimum difficulty level"
//	@Param			difficulty_max	query		int		false	"Maximum difficulty level"
//	@Param			limit			query		int		false	"Max results"
//	@Param			offset			query		int		false	"Page offset"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.SearchParams{
		Query:         q.Get("q"),
		CookingMethod: q.Get("cooking_method"),
		SortBy:        q.Get("sort"),
		SortDesc:      q.Get("order") == "desc",
	}
	params.Limit, _ = strconv.Atoi(q.Get("limit"))
	params.Offset, _ = strconv.Atoi(q.Get("offset"))

	var err error
	if params.DifficultyMin, err = intQuery(q, "difficulty_min"); err != nil {
		respondError(w, err)
		return
	}
	if params.DifficultyMax, err = intQuery(q, "difficulty_max"); err != nil {
		respondError(w, err)
		return
	}
	if params.ServingsMin, err = intQuery(q, "servings_min"); err != nil {
		respondError(w, err)
		return
	}
	if params.ServingsMax, err = intQuery(q, "servings_max"); err != nil {
		respondError(w, err)
		return
	}

	results, total, err := h.svc.Search(r.Context(), params)
	if err != nil {
		slog.Error("search failed", slog.String("query", params.Query), slog.String("error", err.Error()))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   params.Query,
		"results": results,
		"total":   total,
	})
}

// Status handles GET /api/status.
//
//	@Summary		Report the mirror working-tree status
//	@Tags			mirror
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context())
	if err != nil {
		slog.Error("status failed", slog.String("error", err.Error()))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// History handles GET /api/history.
//
//	@Summary		List mirror commits, newest first
//	@Tags			mirror
//	@Produce		json
//	@Param			limit	query		int		false	"Max commits"
//	@Param			path	query		string	false	"Restrict to commits touching a path"
//	@Param			since	query		string	false	"RFC3339 lower bound"
//	@Param			until	query		string	false	"RFC3339 upper bound"
//	@Success		200		{object}	HistoryResponse
//	@Failure		400		{object}	errResponse
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := gitmirror.HistoryOptions{Path: q.Get("path")}
	opts.MaxCount, _ = strconv.Atoi(q.Get("limit"))

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, fmt.Errorf("api: since: expected RFC3339 timestamp: %w", apperr.ErrInvalid))
			return
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, fmt.Errorf("api: until: expected RFC3339 timestamp: %w", apperr.ErrInvalid))
			return
		}
		opts.Until = &t
	}

	commits, err := h.svc.History(r.Context(), opts)
	if err != nil {
		slog.Error("history failed", slog.String("error", err.Error()))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commits": commits,
	})
}

// intQuery parses an optional integer query parameter.
func intQuery(q url.Values, key string) (*int, error) {
	if !q.Has(key) {
		return nil, nil
	}
	n, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return nil, fmt.Errorf("api: %s: expected an integer: %w", key, apperr.ErrInvalid)
	}
	return &n, nil
}
