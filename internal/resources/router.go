// Package resources implements the read-only lab:// resource router backed
// by a TTL cache.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
	"github.com/tom-jordan23/cooking-mcp/internal/pathsafe"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
)

// Scheme is the resource URI scheme served by the router.
const Scheme = "lab"

// Descriptor announces one readable resource.
type Descriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType"`
}

// Content is the payload of one resource read.
type Content struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

type cacheItem struct {
	content *Content
	at      time.Time
}

// Router resolves lab:// URIs against the entry service. Successful reads
// are cached by exact URI for a fixed TTL; the cache is consulted before
// dispatch, evicted lazily on expired reads, and never invalidated by writes.
type Router struct {
	svc    *notebook.Service
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheItem
}

// NewRouter creates a resource router with the given cache TTL. A
// non-positive TTL falls back to five minutes.
func NewRouter(svc *notebook.Service, ttl time.Duration, logger *slog.Logger) *Router {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Router{
		svc:    svc,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]cacheItem),
	}
}

// List announces the two static resources plus a descriptor pair (entry and
// attachments) for up to 100 recently updated entries. Repository failures
// degrade to the static descriptors only.
func (r *Router) List(ctx context.Context) []Descriptor {
	descriptors := []Descriptor{
		{
			URI:         "lab://entries",
			Name:        "Notebook Entries",
			Description: "Paginated list of all notebook entries with metadata",
			MIMEType:    "application/json",
		},
		{
			URI:         "lab://search",
			Name:        "Search Entries",
			Description: "Search notebook entries by query parameters",
			MIMEType:    "application/json",
		},
	}

	entries, _, err := r.svc.List(ctx, 100, 0)
	if err != nil {
		r.logger.Warn("resource list: recent entries unavailable", "error", err)
		return descriptors
	}
	for _, e := range entries {
		descriptors = append(descriptors,
			Descriptor{
				URI:         "lab://entry/" + e.ID,
				Name:        "Entry: " + e.Title,
				Description: "Notebook entry from " + e.Date.Format("2006-01-02"),
				MIMEType:    "application/json",
			},
			Descriptor{
				URI:         "lab://attachments/" + e.ID + "/",
				Name:        "Attachments: " + e.Title,
				Description: "Attachments for entry " + e.ID,
				MIMEType:    "application/json",
			},
		)
	}
	return descriptors
}

// Read resolves one URI. The path component is validated before any
// dispatch; query parameters drive pagination and filters.
func (r *Router) Read(ctx context.Context, uri string) (*Content, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("resources: parse uri %q: %w", uri, apperr.ErrSecurity)
	}
	if parsed.Scheme != Scheme {
		return nil, fmt.Errorf("resources: unknown scheme %q: %w", parsed.Scheme, apperr.ErrNotFound)
	}
	path := strings.TrimPrefix(parsed.Host+parsed.Path, "/")
	if err := pathsafe.Validate(path); err != nil {
		return nil, err
	}

	if content, ok := r.cached(uri); ok {
		return content, nil
	}

	query := parsed.Query()
	var content *Content
	switch {
	case path == "entries":
		content, err = r.entriesContent(ctx, query)
	case strings.HasPrefix(path, "entry/"):
		content, err = r.entryContent(ctx, strings.TrimPrefix(path, "entry/"))
	case strings.HasPrefix(path, "attachments/"):
		id := strings.Trim(strings.TrimPrefix(path, "attachments/"), "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		content, err = r.attachmentsContent(ctx, id)
	case path == "search":
		content, err = r.searchContent(ctx, query)
	default:
		return nil, fmt.Errorf("resources: unknown resource %q: %w", uri, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	r.store(uri, content)
	return content, nil
}

// Clear drops every cached read.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cacheItem)
}

func (r *Router) cached(uri string) (*Content, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.cache[uri]
	if !ok {
		return nil, false
	}
	if time.Since(item.at) >= r.ttl {
		delete(r.cache, uri)
		return nil, false
	}
	return item.content, true
}

func (r *Router) store(uri string, content *Content) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[uri] = cacheItem{content: content, at: time.Now()}
}

func (r *Router) entriesContent(ctx context.Context, query url.Values) (*Content, error) {
	limit, err := intParam(query, "limit", 50)
	if err != nil {
		return nil, err
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := intParam(query, "offset", 0)
	if err != nil {
		return nil, err
	}

	entries, total, err := r.svc.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item, err := entryMap(e)
		if err != nil {
			return nil, err
		}
		item["uri"] = "lab://entry/" + e.ID
		items = append(items, item)
	}

	return jsonContent("lab://entries", map[string]any{
		"entries":    items,
		"pagination": pagination(limit, offset, total),
		"metadata": map[string]any{
			"last_updated": time.Now().UTC().Format(time.RFC3339),
			"entry_count":  len(items),
		},
	})
}

func (r *Router) entryContent(ctx context.Context, id string) (*Content, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, err
	}
	entry, err := r.svc.Get(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return jsonContent("lab://entry/"+id, entry)
}

func (r *Router) attachmentsContent(ctx context.Context, id string) (*Content, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, err
	}
	if _, err := r.svc.Get(ctx, id, false); err != nil {
		return nil, err
	}
	files, err := r.svc.ListAttachments(ctx, id)
	if err != nil {
		return nil, err
	}

	attachments := make([]map[string]string, 0, len(files))
	for _, path := range files {
		filename := path
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			filename = path[i+1:]
		}
		attachments = append(attachments, map[string]string{
			"filename": filename,
			"path":     path,
			"uri":      "lab://attachment/" + id + "/" + filename,
			"entry_id": id,
		})
	}

	return jsonContent("lab://attachments/"+id+"/", map[string]any{
		"entry_id":    id,
		"attachments": attachments,
		"count":       len(attachments),
		"metadata": map[string]any{
			"last_updated": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (r *Router) searchContent(ctx context.Context, query url.Values) (*Content, error) {
	q := query.Get("q")
	limit, err := intParam(query, "limit", 20)
	if err != nil {
		return nil, err
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := intParam(query, "offset", 0)
	if err != nil {
		return nil, err
	}

	params := store.SearchParams{Query: q, Limit: limit, Offset: offset}
	filters := map[string]any{}
	if v := query.Get("cooking_method"); v != "" {
		params.CookingMethod = v
		filters["cooking_method"] = v
	}
	if query.Has("difficulty_min") {
		n, err := intParam(query, "difficulty_min", 0)
		if err != nil {
			return nil, err
		}
		params.DifficultyMin = &n
		filters["difficulty_min"] = n
	}
	if query.Has("difficulty_max") {
		n, err := intParam(query, "difficulty_max", 0)
		if err != nil {
			return nil, err
		}
		params.DifficultyMax = &n
		filters["difficulty_max"] = n
	}

	entries, total, err := r.svc.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		results = append(results, map[string]any{
			"entry_id":         e.ID,
			"title":            e.Title,
			"date":             e.Date.Format(time.RFC3339),
			"tags":             e.Tags,
			"cooking_method":   e.CookingMethod,
			"difficulty_level": e.DifficultyLevel,
			"snippet":          Snippet(e),
			"uri":              "lab://entry/" + e.ID,
		})
	}

	return jsonContent("lab://search?q="+q, map[string]any{
		"query":      q,
		"results":    results,
		"pagination": pagination(limit, offset, total),
		"filters":    filters,
		"metadata": map[string]any{
			"search_timestamp": time.Now().UTC().Format(time.RFC3339),
			"result_count":     len(results),
		},
	})
}

// Snippet summarizes an entry for search results: the protocol's first 200
// characters (suffixed with "..." when cut), else the latest observation
// note's first 200, else empty.
func Snippet(e *models.Entry) string {
	if e.Protocol != "" {
		if len(e.Protocol) > 200 {
			return e.Protocol[:200] + "..."
		}
		return e.Protocol
	}
	if n := len(e.Observations); n > 0 {
		note := e.Observations[n-1].Note
		if len(note) > 200 {
			return note[:200]
		}
		return note
	}
	return ""
}

func pagination(limit, offset, total int) map[string]any {
	return map[string]any{
		"limit":       limit,
		"offset":      offset,
		"total_count": total,
		"has_more":    offset+limit < total,
	}
}

func entryMap(e *models.Entry) (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("resources: encode entry %s: %w", e.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("resources: encode entry %s: %w", e.ID, err)
	}
	return m, nil
}

func jsonContent(uri string, v any) (*Content, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("resources: encode %s: %w", uri, err)
	}
	return &Content{URI: uri, MIMEType: "application/json", Text: string(text)}, nil
}

func intParam(query url.Values, key string, def int) (int, error) {
	raw := query.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("resources: parameter %s=%q is not an integer: %w", key, raw, apperr.ErrInvalid)
	}
	return n, nil
}
