package resources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
)

type entriesPayload struct {
	Entries    []map[string]any `json:"entries"`
	Pagination struct {
		Limit      int  `json:"limit"`
		Offset     int  `json:"offset"`
		TotalCount int  `json:"total_count"`
		HasMore    bool `json:"has_more"`
	} `json:"pagination"`
}

type searchPayload struct {
	Query   string `json:"query"`
	Results []struct {
		EntryID string `json:"entry_id"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

type attachmentsPayload struct {
	EntryID     string `json:"entry_id"`
	Count       int    `json:"count"`
	Attachments []struct {
		Filename string `json:"filename"`
		Path     string `json:"path"`
	} `json:"attachments"`
}

func testEnv(t *testing.T) (*notebook.Service, *store.DB) {
	t.Helper()
	f, err := os.CreateTemp("", "cooking-mcp-test-*.db")
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
	return notebook.NewService(db, m, nil, logger), db
}

func testRouter(t *testing.T, svc *notebook.Service, ttl time.Duration) *Router {
	t.Helper()
	return NewRouter(svc, ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createEntry(t *testing.T, svc *notebook.Service, title string) *models.Entry {
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

func TestListDescriptors(t *testing.T) {
	svc, _ := testEnv(t)
	createEntry(t, svc, "Smoked Brisket")
	r := testRouter(t, svc, 0)

	descriptors := r.List(context.Background())
	if len(descriptors) != 4 {
		t.Fatalf("descriptors = %d, want 4 (2 static + entry + attachments)", len(descriptors))
	}
	if descriptors[0].URI != "lab://entries" || descriptors[1].URI != "lab://search" {
		t.Errorf("static descriptors = %q, %q", descriptors[0].URI, descriptors[1].URI)
	}
	if !strings.HasPrefix(descriptors[2].URI, "lab://entry/") {
		t.Errorf("entry descriptor = %q", descriptors[2].URI)
	}
	if !strings.HasPrefix(descriptors[3].URI, "lab://attachments/") {
		t.Errorf("attachments descriptor = %q", descriptors[3].URI)
	}
}

func TestReadEntriesPagination(t *testing.T) {
	svc, _ := testEnv(t)
	for _, title := range []string{"Dish A", "Dish B", "Dish C"} {
		createEntry(t, svc, title)
	}
	r := testRouter(t, svc, 0)

	content, err := r.Read(context.Background(), "lab://entries?limit=2&offset=0")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", content.MIMEType)
	}

	var payload entriesPayload
	if err := json.Unmarshal([]byte(content.Text), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(payload.Entries))
	}
	if payload.Pagination.TotalCount != 3 || !payload.Pagination.HasMore {
		t.Errorf("pagination = %+v", payload.Pagination)
	}
	if payload.Entries[0]["uri"] == "" {
		t.Error("entry missing uri")
	}
}

func TestReadEntriesCapsLimit(t *testing.T) {
	svc, _ := testEnv(t)
	createEntry(t, svc, "Dish A")
	r := testRouter(t, svc, 0)

	content, err := r.Read(context.Background(), "lab://entries?limit=500")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var payload entriesPayload
	if err := json.Unmarshal([]byte(content.Text), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Pagination.Limit != 100 {
		t.Errorf("limit = %d, want capped 100", payload.Pagination.Limit)
	}
}

func TestReadSingleEntryTouchesViewCountOnce(t *testing.T) {
	svc, db := testEnv(t)
	e := createEntry(t, svc, "Paella")
	r := testRouter(t, svc, 0)
	ctx := context.Background()

	content, err := r.Read(ctx, "lab://entry/"+e.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(content.Text, "Paella") {
		t.Errorf("content missing title:\n%s", content.Text)
	}

	// Second read is served from cache, so the view count stays at one.
	if _, err := r.Read(ctx, "lab://entry/"+e.ID); err != nil {
		t.Fatalf("Read: %v", err)
	}
	stored, _ := db.Get(e.ID, false)
	if stored.ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1", stored.ViewCount)
	}
}

func TestReadErrors(t *testing.T) {
	svc, _ := testEnv(t)
	r := testRouter(t, svc, 0)
	ctx := context.Background()

	if _, err := r.Read(ctx, "lab://entry/2024-01-01_missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing entry error = %v, want ErrNotFound", err)
	}
	if _, err := r.Read(ctx, "lab://entry/NOT_AN_ID"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad id error = %v, want ErrInvalid", err)
	}
	if _, err := r.Read(ctx, "lab://entry/../../etc/passwd"); !errors.Is(err, apperr.ErrSecurity) {
		t.Errorf("traversal error = %v, want ErrSecurity", err)
	}
	if _, err := r.Read(ctx, "lab://nonsense"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown resource error = %v, want ErrNotFound", err)
	}
	if _, err := r.Read(ctx, "http://entries"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign scheme error = %v, want ErrNotFound", err)
	}
	if _, err := r.Read(ctx, "lab://entries?limit=abc"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad limit error = %v, want ErrInvalid", err)
	}
}

func TestReadAttachments(t *testing.T) {
	svc, _ := testEnv(t)
	e := createEntry(t, svc, "Pizza Night")
	ctx := context.Background()
	if _, _, err := svc.SaveAttachment(ctx, e.ID, "crust.jpg", []byte{0xFF, 0xD8}, "test"); err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	r := testRouter(t, svc, 0)

	content, err := r.Read(ctx, "lab://attachments/"+e.ID+"/")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var payload attachmentsPayload
	if err := json.Unmarshal([]byte(content.Text), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Count != 1 || payload.EntryID != e.ID {
		t.Errorf("payload = %+v", payload)
	}
	if payload.Attachments[0].Filename != "crust.jpg" {
		t.Errorf("filename = %q", payload.Attachments[0].Filename)
	}
}

func TestReadSearchWithSnippet(t *testing.T) {
	svc, _ := testEnv(t)
	ctx := context.Background()

	long := strings.Repeat("Sear hard. ", 30) // > 200 chars
	e, err := svc.Create(ctx, &models.Entry{
		Title:           "Smoked Brisket",
		Date:            time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Protocol:        long,
		DifficultyLevel: intp(8),
	}, "test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	createEntry(t, svc, "Caesar Salad")

	r := testRouter(t, svc, 0)
	content, err := r.Read(ctx, "lab://search?q=brisket&difficulty_min=5")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var payload searchPayload
	if err := json.Unmarshal([]byte(content.Text), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Results) != 1 || payload.Results[0].EntryID != e.ID {
		t.Fatalf("results = %+v", payload.Results)
	}
	snippet := payload.Results[0].Snippet
	if !strings.HasSuffix(snippet, "...") || len(snippet) != 203 {
		t.Errorf("snippet = %d chars %q", len(snippet), snippet[:20])
	}
}

func TestSnippetFallsBackToObservation(t *testing.T) {
	e := &models.Entry{
		Observations: []models.Observation{
			{Note: "first note"},
			{Note: "latest note"},
		},
	}
	if got := Snippet(e); got != "latest note" {
		t.Errorf("Snippet = %q", got)
	}
	if got := Snippet(&models.Entry{}); got != "" {
		t.Errorf("empty Snippet = %q", got)
	}
}

func TestCacheServesStaleUntilTTL(t *testing.T) {
	svc, _ := testEnv(t)
	createEntry(t, svc, "Dish A")
	r := testRouter(t, svc, 30*time.Millisecond)
	ctx := context.Background()

	first, err := r.Read(ctx, "lab://entries")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	// Writes never invalidate: within the TTL the old payload comes back.
	createEntry(t, svc, "Dish B")
	second, err := r.Read(ctx, "lab://entries")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if second.Text != first.Text {
		t.Error("cache should serve the stale payload inside the TTL")
	}

	time.Sleep(50 * time.Millisecond)
	third, err := r.Read(ctx, "lab://entries")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if third.Text == first.Text {
		t.Error("expired read should re-dispatch")
	}
}

func TestClearDropsCache(t *testing.T) {
	svc, _ := testEnv(t)
	createEntry(t, svc, "Dish A")
	r := testRouter(t, svc, time.Minute)
	ctx := context.Background()

	first, _ := r.Read(ctx, "lab://entries")
	createEntry(t, svc, "Dish B")
	r.Clear()

	fresh, err := r.Read(ctx, "lab://entries")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if fresh.Text == first.Text {
		t.Error("Clear did not drop the cached payload")
	}
}

func intp(v int) *int { return &v }
