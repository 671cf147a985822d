package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "cooking-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEntry(title string) *models.Entry {
	return &models.Entry{
		Title: title,
		Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Tags:  []string{"grill"},
	}
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestCreateDefaults(t *testing.T) {
	db := testDB(t)
	e, err := db.Create(&models.Entry{
		Title:           "Smoked Brisket",
		Date:            time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		PrepTimeMinutes: intp(30),
		CookTimeMinutes: intp(480),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID != "2024-03-10_smoked-brisket" {
		t.Errorf("ID = %q", e.ID)
	}
	if e.Version != 1 {
		t.Errorf("Version = %d, want 1", e.Version)
	}
	if e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
	if e.TotalTimeMinutes == nil || *e.TotalTimeMinutes != 510 {
		t.Errorf("TotalTimeMinutes = %v, want 510", e.TotalTimeMinutes)
	}
}

func TestCreateDuplicate(t *testing.T) {
	db := testDB(t)
	if _, err := db.Create(sampleEntry("Roast Chicken")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := db.Create(sampleEntry("Roast Chicken"))
	if !errors.Is(err, apperr.ErrExists) {
		t.Errorf("duplicate create error = %v, want ErrExists", err)
	}
}

func TestCreateInvalid(t *testing.T) {
	db := testDB(t)
	_, err := db.Create(&models.Entry{Date: time.Now()})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}

func TestGetRoundTrip(t *testing.T) {
	db := testDB(t)
	dinner := time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)
	in := sampleEntry("Reverse Sear Ribeye")
	in.GearIDs = []string{"weber-kettle"}
	in.Servings = intp(4)
	in.DinnerTime = &dinner
	in.CookingMethod = "grilling"
	in.DifficultyLevel = intp(6)
	in.Protocol = "Salt 2h ahead. Sear 90s per side."
	in.Observations = []models.Observation{
		{At: time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC), Note: "fire lit", GrillTempC: floatp(230)},
	}
	in.Outcomes = map[string]any{"rating_10": float64(9)}
	in.Scheduling = map[string]any{"lead_minutes": float64(90)}
	in.Links = []models.Link{{Title: "method", URL: "https://example.com"}}
	in.AIMetadata = map[string]any{"model": "test"}
	in.SuccessRate = floatp(0.85)

	created, err := db.Create(in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := db.Get(created.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != in.Title || got.CookingMethod != "grilling" || got.Protocol != in.Protocol {
		t.Errorf("core fields mismatch: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "grill" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if len(got.GearIDs) != 1 || got.GearIDs[0] != "weber-kettle" {
		t.Errorf("GearIDs = %v", got.GearIDs)
	}
	if got.Servings == nil || *got.Servings != 4 {
		t.Errorf("Servings = %v", got.Servings)
	}
	if got.DinnerTime == nil || !got.DinnerTime.Equal(dinner) {
		t.Errorf("DinnerTime = %v", got.DinnerTime)
	}
	if len(got.Observations) != 1 || got.Observations[0].Note != "fire lit" {
		t.Errorf("Observations = %+v", got.Observations)
	}
	if got.Observations[0].GrillTempC == nil || *got.Observations[0].GrillTempC != 230 {
		t.Errorf("GrillTempC = %v", got.Observations[0].GrillTempC)
	}
	if got.Outcomes["rating_10"] != float64(9) {
		t.Errorf("Outcomes = %v", got.Outcomes)
	}
	if got.Scheduling["lead_minutes"] != float64(90) {
		t.Errorf("Scheduling = %v", got.Scheduling)
	}
	if len(got.Links) != 1 || got.Links[0].URL != "https://example.com" {
		t.Errorf("Links = %+v", got.Links)
	}
	if got.AIMetadata["model"] != "test" {
		t.Errorf("AIMetadata = %v", got.AIMetadata)
	}
	if got.SuccessRate == nil || *got.SuccessRate != 0.85 {
		t.Errorf("SuccessRate = %v", got.SuccessRate)
	}
}

func TestGetNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.Get("2024-01-01_missing", false)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetTouchViewCount(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Paella"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := db.Get(created.ID, true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1", first.ViewCount)
	}
	second, _ := db.Get(created.ID, true)
	if second.ViewCount != 2 {
		t.Errorf("ViewCount = %d, want 2", second.ViewCount)
	}
	if !second.UpdatedAt.Equal(created.UpdatedAt) {
		t.Error("view count touch must not bump updated_at")
	}
}

func TestUpdateFields(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Pulled Pork"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "Pulled Pork v2"
	method := "smoking"
	got, err := db.Update(created.ID, &EntryPatch{
		Title:           &title,
		CookingMethod:   &method,
		Tags:            []string{"bbq", "pork"},
		PrepTimeMinutes: intp(20),
		CookTimeMinutes: intp(600),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != title || got.CookingMethod != method {
		t.Errorf("updated fields not applied: %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.TotalTimeMinutes == nil || *got.TotalTimeMinutes != 620 {
		t.Errorf("TotalTimeMinutes = %v, want 620", got.TotalTimeMinutes)
	}
	if got.UpdatedAt.Before(created.UpdatedAt) {
		t.Error("updated_at not bumped")
	}
	if got.ID != created.ID {
		t.Errorf("ID changed to %q", got.ID)
	}
}

func TestUpdateImmutableID(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Focaccia"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	other := "2024-03-10_other"
	_, err = db.Update(created.ID, &EntryPatch{ID: &other})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	db := testDB(t)
	title := "x"
	_, err := db.Update("2024-01-01_missing", &EntryPatch{Title: &title})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Tamales"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := db.Delete(created.ID)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := db.Get(created.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	ok, err = db.Delete(created.ID)
	if err != nil || ok {
		t.Errorf("second Delete = %v, %v, want false, nil", ok, err)
	}
}

func TestSearchQueryAndFilters(t *testing.T) {
	db := testDB(t)
	brisket := sampleEntry("Smoked Brisket")
	brisket.CookingMethod = "smoking"
	brisket.DifficultyLevel = intp(8)
	if _, err := db.Create(brisket); err != nil {
		t.Fatalf("Create: %v", err)
	}
	salad := sampleEntry("Caesar Salad")
	salad.CookingMethod = "raw"
	salad.DifficultyLevel = intp(2)
	salad.Protocol = "Toss romaine with dressing."
	if _, err := db.Create(salad); err != nil {
		t.Fatalf("Create: %v", err)
	}

	hits, total, err := db.Search(SearchParams{Query: "brisket"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(hits) != 1 || hits[0].Title != "Smoked Brisket" {
		t.Errorf("query hits = %d/%d", len(hits), total)
	}

	// Substring match also covers protocol text.
	hits, _, err = db.Search(SearchParams{Query: "romaine"})
	if err != nil || len(hits) != 1 || hits[0].Title != "Caesar Salad" {
		t.Errorf("protocol search hits = %+v, err = %v", hits, err)
	}

	hits, _, err = db.Search(SearchParams{CookingMethod: "smoking"})
	if err != nil || len(hits) != 1 {
		t.Errorf("method filter hits = %d, err = %v", len(hits), err)
	}

	hits, _, err = db.Search(SearchParams{DifficultyMin: intp(5)})
	if err != nil || len(hits) != 1 || hits[0].Title != "Smoked Brisket" {
		t.Errorf("difficulty filter hits = %+v, err = %v", hits, err)
	}
}

func TestSearchHasRating(t *testing.T) {
	db := testDB(t)
	rated, err := db.Create(sampleEntry("Rated Dish"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.Create(sampleEntry("Unrated Dish")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.MergeOutcomes(rated.ID, map[string]any{"rating_10": 8}); err != nil {
		t.Fatalf("MergeOutcomes: %v", err)
	}

	yes := true
	hits, total, err := db.Search(SearchParams{HasRating: &yes})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || hits[0].ID != rated.ID {
		t.Errorf("has_rating=true hits = %d", total)
	}
	no := false
	_, total, err = db.Search(SearchParams{HasRating: &no})
	if err != nil || total != 1 {
		t.Errorf("has_rating=false total = %d, err = %v", total, err)
	}
}

func TestSearchPagination(t *testing.T) {
	db := testDB(t)
	titles := []string{"Apple Pie", "Banana Bread", "Carrot Cake", "Date Squares", "Eclairs"}
	for _, title := range titles {
		if _, err := db.Create(sampleEntry(title)); err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
	}

	hits, total, err := db.Search(SearchParams{Limit: 2, Offset: 2, SortBy: "title"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(hits) != 2 || hits[0].Title != "Carrot Cake" || hits[1].Title != "Date Squares" {
		t.Errorf("page = %v", []string{hits[0].Title, hits[1].Title})
	}
}

func TestSearchRejectsUnknownSort(t *testing.T) {
	db := testDB(t)
	_, _, err := db.Search(SearchParams{SortBy: "protocol; DROP TABLE entries"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	db := testDB(t)
	first, err := db.Create(sampleEntry("First Dish"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.Create(sampleEntry("Second Dish")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Updating the older entry moves it to the front.
	note := "still the best"
	if _, err := db.Update(first.ID, &EntryPatch{Protocol: &note}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	hits, total, err := db.List(10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(hits) != 2 {
		t.Fatalf("List = %d/%d entries", len(hits), total)
	}
	if hits[0].ID != first.ID {
		t.Errorf("most recently updated = %q, want %q", hits[0].ID, first.ID)
	}
}

func TestAddObservation(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Sourdough"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := db.AddObservation(created.ID, models.Observation{Note: "shaped and proofing"})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if len(got.Observations) != 1 || got.Observations[0].Note != "shaped and proofing" {
		t.Fatalf("Observations = %+v", got.Observations)
	}
	if got.Observations[0].At.IsZero() {
		t.Error("observation timestamp not defaulted")
	}

	got, err = db.AddObservation(created.ID, models.Observation{Note: "into the oven", InternalTempC: floatp(24)})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if len(got.Observations) != 2 || got.Observations[0].Note != "shaped and proofing" {
		t.Errorf("append order broken: %+v", got.Observations)
	}
}

func TestMergeOutcomes(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Gumbo"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := db.MergeOutcomes(created.ID, map[string]any{"rating_10": 7, "notes": "too thin"}); err != nil {
		t.Fatalf("MergeOutcomes: %v", err)
	}
	if _, err := db.MergeOutcomes(created.ID, map[string]any{"rating_10": 9}); err != nil {
		t.Fatalf("MergeOutcomes: %v", err)
	}

	got, err := db.Get(created.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Outcomes["rating_10"] != float64(9) {
		t.Errorf("rating_10 = %v, want 9", got.Outcomes["rating_10"])
	}
	if got.Outcomes["notes"] != "too thin" {
		t.Errorf("existing key lost: %v", got.Outcomes)
	}
}

func TestSetGitMetadata(t *testing.T) {
	db := testDB(t)
	created, err := db.Create(sampleEntry("Pho"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := db.SetGitMetadata(created.ID, "abc123", "entries/"+created.ID+".md"); err != nil {
		t.Fatalf("SetGitMetadata: %v", err)
	}
	got, err := db.Get(created.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.GitCommitSHA != "abc123" || got.GitFilePath != "entries/"+created.ID+".md" {
		t.Errorf("git metadata = %q, %q", got.GitCommitSHA, got.GitFilePath)
	}
	if !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Error("git metadata write must not bump updated_at")
	}

	err = db.SetGitMetadata("2024-01-01_missing", "abc", "entries/x.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpsertKeepsTimestamps(t *testing.T) {
	db := testDB(t)
	createdAt := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	e := sampleEntry("Imported Stew")
	e.ID = "2024-01-05_imported-stew"
	e.CreatedAt = createdAt
	e.UpdatedAt = createdAt

	if _, err := db.Upsert(e); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := db.Get(e.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, createdAt)
	}

	e.Title = "Imported Stew (fixed)"
	if _, err := db.Upsert(e); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, _ = db.Get(e.ID, false)
	if got.Title != "Imported Stew (fixed)" {
		t.Errorf("Title = %q after upsert", got.Title)
	}
	if n, _ := db.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestAllIDs(t *testing.T) {
	db := testDB(t)
	for _, title := range []string{"Dish A", "Dish B"} {
		if _, err := db.Create(sampleEntry(title)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	ids, err := db.AllIDs()
	if err != nil {
		t.Fatalf("AllIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "2024-03-10_dish-a" || ids[1] != "2024-03-10_dish-b" {
		t.Errorf("AllIDs = %v", ids)
	}
}
