// Package api bridges the notebook's tool and resource routers onto REST
// endpoints using chi. It owns the HTTP shape only; validation, idempotency,
// and dual-write sequencing all live behind the routers it mounts.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
	"github.com/tom-jordan23/cooking-mcp/internal/resources"
	"github.com/tom-jordan23/cooking-mcp/internal/tools"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *notebook.Service, toolRouter *tools.Router, resourceRouter *resources.Router, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, toolRouter, resourceRouter)

	r := chi.NewRouter()

	// Tool surface.
	r.Get("/tools", h.ListTools)
	r.Post("/tools/{name}", h.CallTool)

	// Resource surface.
	r.Get("/resources", h.Resources)

	// Entries.
	r.Get("/entries", h.ListEntries)
	r.Get("/entries/{id}", h.GetEntry)
	r.Delete("/entries/{id}", h.DeleteEntry)

	// Attachments.
	r.Get("/entries/{id}/attachments", h.ListAttachments)
	r.Post("/entries/{id}/attachments", h.UploadAttachment)
	r.Get("/entries/{id}/attachments/{filename}", h.GetAttachment)

	// Search.
	r.Get("/search", h.Search)

	// Mirror inspection.
	r.Get("/status", h.Status)
	r.Get("/history", h.History)

	// SSE endpoint.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
