package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/idempotency"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
	"github.com/tom-jordan23/cooking-mcp/internal/resources"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
	"github.com/tom-jordan23/cooking-mcp/internal/tools"
)

// pngBytes is the PNG file signature, enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n")

// testEnv sets up a temp store, mirror, service, and router for testing.
func testEnv(t *testing.T) (*notebook.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, nil)
}

func testEnvWithSSE(t *testing.T, sseHandler http.Handler) (*notebook.Service, http.Handler) {
	t.Helper()

	f, err := os.CreateTemp("", "cooking-mcp-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := store.Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := gitmirror.New(t.TempDir(), "Lab Notebook", "lab@example.com", logger)
	if err != nil {
		t.Fatalf("gitmirror.New: %v", err)
	}
	if err := m.Initialize(true, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	svc := notebook.NewService(db, m, nil, logger)
	toolRouter := tools.NewRouter(svc, idempotency.NewMemory(), logger)
	resourceRouter := resources.NewRouter(svc, 0, logger)
	return svc, NewRouter(svc, toolRouter, resourceRouter, sseHandler)
}

func seedEntry(t *testing.T, svc *notebook.Service, title string) *models.Entry {
	t.Helper()
	e, err := svc.Create(context.Background(), &models.Entry{
		Title: title,
		Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}, "test")
	if err != nil {
		t.Fatalf("Create %s: %v", title, err)
	}
	return e
}

func do(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func callTool(t *testing.T, router http.Handler, name string, args any, key string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/tools/"+name, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(actorHeader, "api-test")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return resp
}

// toolPayload digs the JSON payload out of a successful result envelope.
func toolPayload(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decodeBody(t, w)
	content, _ := resp["content"].([]any)
	if len(content) == 0 {
		t.Fatalf("no content in %s", w.Body.String())
	}
	first, _ := content[0].(map[string]any)
	payload, _ := first["json"].(map[string]any)
	return payload
}

func TestCallToolCreateEntry(t *testing.T) {
	svc, router := testEnv(t)

	w := callTool(t, router, "create_entry", map[string]any{
		"title": "Grilled Chicken",
		"tags":  []string{"grill", "weeknight"},
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("create_entry = %d, body = %s", w.Code, w.Body.String())
	}
	payload := toolPayload(t, w)
	if payload["status"] != "success" {
		t.Errorf("status = %v", payload["status"])
	}
	id, _ := payload["entry_id"].(string)
	if !strings.HasSuffix(id, "_grilled-chicken") {
		t.Errorf("entry_id = %q", id)
	}

	n, err := svc.EntryCount(context.Background())
	if err != nil || n != 1 {
		t.Errorf("EntryCount = %d, %v", n, err)
	}
}

func TestCallToolErrors(t *testing.T) {
	_, router := testEnv(t)

	cases := []struct {
		name   string
		tool   string
		args   any
		status int
		code   string
	}{
		{"unknown tool", "drop_tables", map[string]any{}, http.StatusBadRequest, "E_SCHEMA"},
		{"missing title", "create_entry", map[string]any{}, http.StatusBadRequest, "E_SCHEMA"},
		{"absent entry", "append_observation", map[string]any{"id": "2024-01-01_ghost", "note": "x"}, http.StatusNotFound, "E_NOT_FOUND"},
		{"malformed id", "append_observation", map[string]any{"id": "nope", "note": "x"}, http.StatusBadRequest, "E_SCHEMA"},
	}
	for _, tc := range cases {
		w := callTool(t, router, tc.tool, tc.args, "")
		if w.Code != tc.status {
			t.Errorf("%s: status = %d, want %d (body %s)", tc.name, w.Code, tc.status, w.Body.String())
			continue
		}
		resp := decodeBody(t, w)
		if resp["isError"] != true {
			t.Errorf("%s: isError = %v", tc.name, resp["isError"])
		}
		content := resp["content"].([]any)
		first := content[0].(map[string]any)
		if first["code"] != tc.code {
			t.Errorf("%s: code = %v, want %s", tc.name, first["code"], tc.code)
		}
	}
}

func TestIdempotencyKeyReplay(t *testing.T) {
	svc, router := testEnv(t)

	args := map[string]any{"title": "Sourdough Pizza"}
	first := callTool(t, router, "create_entry", args, "bake-1")
	if first.Code != http.StatusOK {
		t.Fatalf("first call = %d, body = %s", first.Code, first.Body.String())
	}
	second := callTool(t, router, "create_entry", args, "bake-1")
	if second.Code != http.StatusOK {
		t.Fatalf("replay = %d, body = %s", second.Code, second.Body.String())
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replay body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	n, _ := svc.EntryCount(context.Background())
	if n != 1 {
		t.Errorf("EntryCount = %d, want 1", n)
	}

	// Same key with different arguments is a conflict.
	w := callTool(t, router, "create_entry", map[string]any{"title": "Detroit Pan Pizza"}, "bake-1")
	if w.Code != http.StatusConflict {
		t.Errorf("key reuse = %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestListToolsEndpoint(t *testing.T) {
	_, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/tools")
	if w.Code != http.StatusOK {
		t.Fatalf("list tools = %d", w.Code)
	}
	resp := decodeBody(t, w)
	list := resp["tools"].([]any)
	if len(list) != 5 {
		t.Fatalf("tools = %d, want 5", len(list))
	}
	first := list[0].(map[string]any)
	if first["name"] != "append_observation" {
		t.Errorf("first tool = %v", first["name"])
	}
	if first["inputSchema"] == nil {
		t.Error("inputSchema missing")
	}
}

func TestResourcesEndpoint(t *testing.T) {
	svc, router := testEnv(t)
	seedEntry(t, svc, "Smoked Brisket")

	w := do(t, router, http.MethodGet, "/resources")
	if w.Code != http.StatusOK {
		t.Fatalf("list resources = %d", w.Code)
	}
	resp := decodeBody(t, w)
	list := resp["resources"].([]any)
	if len(list) != 4 {
		t.Errorf("resources = %d, want 4", len(list))
	}

	w = do(t, router, http.MethodGet, "/resources?uri=lab://entries")
	if w.Code != http.StatusOK {
		t.Fatalf("read entries = %d, body = %s", w.Code, w.Body.String())
	}
	content := decodeBody(t, w)
	if content["mimeType"] != "application/json" {
		t.Errorf("mimeType = %v", content["mimeType"])
	}
	if text, _ := content["text"].(string); !strings.Contains(text, "Smoked Brisket") {
		t.Errorf("text missing entry: %q", text)
	}

	w = do(t, router, http.MethodGet, "/resources?uri=lab://entry/2024-01-01_ghost")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing entry = %d, want 404", w.Code)
	}
}

func TestListEntriesEndpoint(t *testing.T) {
	svc, router := testEnv(t)
	for _, title := range []string{"Dish A", "Dish B", "Dish C"} {
		seedEntry(t, svc, title)
	}

	w := do(t, router, http.MethodGet, "/entries?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	resp := decodeBody(t, w)
	entries := resp["entries"].([]any)
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
	if total := resp["total"].(float64); total != 3 {
		t.Errorf("total = %v, want 3", total)
	}
}

func TestGetEntryEndpoint(t *testing.T) {
	svc, router := testEnv(t)
	e := seedEntry(t, svc, "Smoked Brisket")

	w := do(t, router, http.MethodGet, "/entries/"+e.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["title"] != "Smoked Brisket" {
		t.Errorf("title = %v", resp["title"])
	}

	w = do(t, router, http.MethodGet, "/entries/2024-01-01_ghost")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing entry = %d, want 404", w.Code)
	}
	resp = decodeBody(t, w)
	if resp["code"] != "E_NOT_FOUND" {
		t.Errorf("code = %v", resp["code"])
	}

	w = do(t, router, http.MethodGet, "/entries/NOT_AN_ID")
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed id = %d, want 400", w.Code)
	}
}

func TestDeleteEntryEndpoint(t *testing.T) {
	svc, router := testEnv(t)
	e := seedEntry(t, svc, "Failed Experiment")

	w := do(t, router, http.MethodDelete, "/entries/"+e.ID)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204 (body %s)", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/entries/"+e.ID)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/entries/"+e.ID)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	svc, router := testEnv(t)

	e := seedEntry(t, svc, "Reverse Sear Ribeye")
	patch := &store.EntryPatch{Protocol: strptr("Dry brine overnight, uniquetoken sear to finish.")}
	if _, err := svc.Update(context.Background(), e.ID, patch, "test"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	seedEntry(t, svc, "Steamed Rice")

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	results := resp["results"].([]any)
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
	if total := resp["total"].(float64); total != 1 {
		t.Errorf("total = %v, want 1", total)
	}

	w = do(t, router, http.MethodGet, "/search?difficulty_min=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad filter = %d, want 400", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc, router := testEnv(t)
	seedEntry(t, svc, "Smoked Brisket")

	w := do(t, router, http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["is_dirty"] != false {
		t.Errorf("is_dirty = %v, want false", resp["is_dirty"])
	}
	if count := resp["commit_count"].(float64); count < 2 {
		t.Errorf("commit_count = %v, want >= 2", count)
	}
	if resp["latest_commit"] == nil {
		t.Error("latest_commit missing")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	svc, router := testEnv(t)
	seedEntry(t, svc, "Smoked Brisket")

	w := do(t, router, http.MethodGet, "/history")
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	commits := resp["commits"].([]any)
	if len(commits) < 2 {
		t.Fatalf("commits = %d, want >= 2", len(commits))
	}
	first := commits[0].(map[string]any)
	if sha, _ := first["sha"].(string); len(sha) != 40 {
		t.Errorf("sha = %q", sha)
	}

	w = do(t, router, http.MethodGet, "/history?limit=1")
	resp = decodeBody(t, w)
	if commits := resp["commits"].([]any); len(commits) != 1 {
		t.Errorf("limited commits = %d, want 1", len(commits))
	}

	w = do(t, router, http.MethodGet, "/history?since=yesterday")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since = %d, want 400", w.Code)
	}
}

// Attachment tests.

func uploadFile(t *testing.T, router http.Handler, target, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadListDownloadAttachment(t *testing.T) {
	svc, router := testEnv(t)
	e := seedEntry(t, svc, "Smoked Brisket")

	w := uploadFile(t, router, "/entries/"+e.ID+"/attachments", "crust.png", pngBytes)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["filename"] != "crust.png" {
		t.Errorf("filename = %v", resp["filename"])
	}
	if resp["path"] != "attachments/"+e.ID+"/crust.png" {
		t.Errorf("path = %v", resp["path"])
	}
	if sha, _ := resp["commit_sha"].(string); len(sha) != 40 {
		t.Errorf("commit_sha = %q", sha)
	}

	w = do(t, router, http.MethodGet, "/entries/"+e.ID+"/attachments")
	if w.Code != http.StatusOK {
		t.Fatalf("list attachments = %d", w.Code)
	}
	resp = decodeBody(t, w)
	if files := resp["attachments"].([]any); len(files) != 1 {
		t.Fatalf("attachments = %d, want 1", len(files))
	}

	w = do(t, router, http.MethodGet, "/entries/"+e.ID+"/attachments/crust.png")
	if w.Code != http.StatusOK {
		t.Fatalf("download = %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Error("downloaded content differs")
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestUploadAttachmentRejections(t *testing.T) {
	svc, router := testEnv(t)
	e := seedEntry(t, svc, "Focaccia")

	// Disallowed extension.
	w := uploadFile(t, router, "/entries/"+e.ID+"/attachments", "setup.exe", []byte("MZ"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("exe upload = %d, want 400", w.Code)
	}

	// Content that does not match the declared extension.
	w = uploadFile(t, router, "/entries/"+e.ID+"/attachments", "photo.jpg", pngBytes)
	if w.Code != http.StatusBadRequest {
		t.Errorf("mismatched content = %d, want 400", w.Code)
	}

	// Absent entry.
	w = uploadFile(t, router, "/entries/2024-01-01_ghost/attachments", "crust.png", pngBytes)
	if w.Code != http.StatusNotFound {
		t.Errorf("upload to missing entry = %d, want 404", w.Code)
	}

	// Missing file field.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/entries/"+e.ID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", rec.Code)
	}
}

func TestAttachmentTraversalBlocked(t *testing.T) {
	svc, router := testEnv(t)
	e := seedEntry(t, svc, "Focaccia")

	for _, name := range []string{"../secret.png", "../../etc/passwd"} {
		w := do(t, router, http.MethodGet, "/entries/"+e.ID+"/attachments/"+name)
		// chi may not route the traversal paths at all (404), or the handler
		// rejects them (400).
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}

func TestDownloadAttachment_NotFound(t *testing.T) {
	svc, router := testEnv(t)
	e := seedEntry(t, svc, "Focaccia")

	w := do(t, router, http.MethodGet, "/entries/"+e.ID+"/attachments/nope.png")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing attachment = %d, want 404", w.Code)
	}
}

// SSE mount tests.

func TestSSEEndpointMounted(t *testing.T) {
	// Minimal SSE handler stub; writes headers and blocks until context done.
	stub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	_, router := testEnvWithSSE(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("events = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}

func TestSSEEndpointAbsentWithoutHandler(t *testing.T) {
	_, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/events")
	if w.Code != http.StatusNotFound {
		t.Errorf("events without handler = %d, want 404", w.Code)
	}
}

func strptr(s string) *string { return &s }
