// Package models defines the domain types for the cooking lab notebook.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
)

// Entry is one cooking session: planned protocol, live observations, and
// outcomes. The SQLite repository is the source of truth; the git mirror
// holds a markdown rendering of the same record.
type Entry struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title string    `json:"title"`
	Date  time.Time `json:"date"`

	Tags    []string `json:"tags,omitempty"`
	GearIDs []string `json:"gear_ids,omitempty"`

	Servings   *int       `json:"servings,omitempty"`
	DinnerTime *time.Time `json:"dinner_time,omitempty"`

	CookingMethod    string `json:"cooking_method,omitempty"`
	DifficultyLevel  *int   `json:"difficulty_level,omitempty"`
	PrepTimeMinutes  *int   `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes  *int   `json:"cook_time_minutes,omitempty"`
	TotalTimeMinutes *int   `json:"total_time_minutes,omitempty"`

	Protocol     string         `json:"protocol,omitempty"`
	Observations []Observation  `json:"observations,omitempty"`
	Outcomes     map[string]any `json:"outcomes,omitempty"`
	Scheduling   map[string]any `json:"scheduling,omitempty"`
	Links        []Link         `json:"links,omitempty"`
	AIMetadata   map[string]any `json:"ai_metadata,omitempty"`

	GitCommitSHA string `json:"git_commit_sha,omitempty"`
	GitFilePath  string `json:"git_file_path,omitempty"`

	ViewCount   int      `json:"view_count"`
	SuccessRate *float64 `json:"success_rate,omitempty"`
}

// Observation is a timestamped note taken during a session. The sequence on
// an entry is append-only and never reordered.
type Observation struct {
	At            time.Time `json:"at"`
	Note          string    `json:"note"`
	GrillTempC    *float64  `json:"grill_temp_c,omitempty"`
	InternalTempC *float64  `json:"internal_temp_c,omitempty"`
}

// Link is an external recipe reference.
type Link struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

var idPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_[a-z0-9-]{1,50}$`)

// ValidateID checks the YYYY-MM-DD_slug shape, including that the date part
// is a real calendar date.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("models: entry id %q does not match YYYY-MM-DD_slug: %w", id, apperr.ErrInvalid)
	}
	if _, err := time.Parse("2006-01-02", id[:10]); err != nil {
		return fmt.Errorf("models: entry id %q has an invalid date: %w", id, apperr.ErrInvalid)
	}
	return nil
}

// NewEntryID derives the canonical id for a session from its date and title.
func NewEntryID(date time.Time, title string) string {
	return date.Format("2006-01-02") + "_" + Slugify(title)
}

// Slugify lowers the title, turns spaces into hyphens, drops everything
// outside [a-z0-9-], collapses hyphen runs, and caps the result at 50
// characters. An empty result falls back to "entry".
func Slugify(title string) string {
	lowered := strings.ReplaceAll(strings.ToLower(title), " ", "-")
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	slug := b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.TrimRight(slug[:50], "-")
	}
	if slug == "" {
		slug = "entry"
	}
	return slug
}

// Validate enforces the field invariants on a populated entry.
func (e *Entry) Validate() error {
	if err := ValidateID(e.ID); err != nil {
		return err
	}
	err := validation.ValidateStruct(e,
		validation.Field(&e.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Date, validation.Required),
		validation.Field(&e.DifficultyLevel, validation.Min(1), validation.Max(10)),
		validation.Field(&e.PrepTimeMinutes, validation.Min(0)),
		validation.Field(&e.CookTimeMinutes, validation.Min(0)),
		validation.Field(&e.Servings, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("models: %v: %w", err, apperr.ErrInvalid)
	}
	return nil
}

// ComputeTotalTime derives total_time_minutes: prep+cook when both are set,
// else whichever is set, else absent.
func (e *Entry) ComputeTotalTime() {
	switch {
	case e.PrepTimeMinutes != nil && e.CookTimeMinutes != nil:
		total := *e.PrepTimeMinutes + *e.CookTimeMinutes
		e.TotalTimeMinutes = &total
	case e.PrepTimeMinutes != nil:
		v := *e.PrepTimeMinutes
		e.TotalTimeMinutes = &v
	case e.CookTimeMinutes != nil:
		v := *e.CookTimeMinutes
		e.TotalTimeMinutes = &v
	default:
		e.TotalTimeMinutes = nil
	}
}

// MirrorPath is the entry's markdown location inside the mirror.
func (e *Entry) MirrorPath() string {
	return "entries/" + e.ID + ".md"
}

// AttachmentsDir is the entry's attachment directory inside the mirror.
func (e *Entry) AttachmentsDir() string {
	return "attachments/" + e.ID
}

// CalendarPath is the entry's ICS location inside the mirror.
func (e *Entry) CalendarPath() string {
	return "calendars/" + e.ID + ".ics"
}
