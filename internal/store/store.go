package store

import (
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

// EntryStore defines the storage operations the rest of the system depends
// on. Consumers should take this interface rather than the concrete *DB.
type EntryStore interface {
	Create(e *models.Entry) (*models.Entry, error)
	Get(id string, touchViewCount bool) (*models.Entry, error)
	Update(id string, patch *EntryPatch) (*models.Entry, error)
	Delete(id string) (bool, error)
	Search(p SearchParams) ([]*models.Entry, int, error)
	List(limit, offset int) ([]*models.Entry, int, error)
	AddObservation(id string, obs models.Observation) (*models.Entry, error)
	MergeOutcomes(id string, patch map[string]any) (*models.Entry, error)
	SetGitMetadata(id, commitSHA, filePath string) error
	Upsert(e *models.Entry) (*models.Entry, error)
	AllIDs() ([]string, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies EntryStore at compile time.
var _ EntryStore = (*DB)(nil)

// EntryPatch carries a partial update. Nil fields are left unchanged; the
// id cannot be changed and a differing ID field is rejected.
type EntryPatch struct {
	ID              *string        `json:"id,omitempty"`
	Title           *string        `json:"title,omitempty"`
	Date            *time.Time     `json:"date,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	GearIDs         []string       `json:"gear_ids,omitempty"`
	Servings        *int           `json:"servings,omitempty"`
	DinnerTime      *time.Time     `json:"dinner_time,omitempty"`
	CookingMethod   *string        `json:"cooking_method,omitempty"`
	DifficultyLevel *int           `json:"difficulty_level,omitempty"`
	PrepTimeMinutes *int           `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes *int           `json:"cook_time_minutes,omitempty"`
	Protocol        *string        `json:"protocol,omitempty"`
	Scheduling      map[string]any `json:"scheduling,omitempty"`
	Links           []models.Link  `json:"links,omitempty"`
	AIMetadata      map[string]any `json:"ai_metadata,omitempty"`
	SuccessRate     *float64       `json:"success_rate,omitempty"`
}

// SearchParams select, filter, page, and order a search.
type SearchParams struct {
	Query         string
	CookingMethod string
	DifficultyMin *int
	DifficultyMax *int
	ServingsMin   *int
	ServingsMax   *int
	DateFrom      *time.Time
	DateTo        *time.Time
	HasRating     *bool
	Limit         int
	Offset        int
	SortBy        string
	SortDesc      bool
}
