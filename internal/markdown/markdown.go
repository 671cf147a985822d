// Package markdown renders entries to the mirror's frontmatter+markdown
// format and parses that format back for imports.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

const protocolHeading = "## Protocol"

// frontMatter is the YAML shape written into mirror files. It carries every
// entry field except protocol, which lives in the markdown body.
type frontMatter struct {
	ID               string         `yaml:"id"`
	Version          int            `yaml:"version"`
	CreatedAt        string         `yaml:"created_at"`
	UpdatedAt        string         `yaml:"updated_at"`
	Title            string         `yaml:"title"`
	Date             string         `yaml:"date"`
	Tags             []string       `yaml:"tags,omitempty"`
	GearIDs          []string       `yaml:"gear_ids,omitempty"`
	Servings         *int           `yaml:"servings,omitempty"`
	DinnerTime       string         `yaml:"dinner_time,omitempty"`
	CookingMethod    string         `yaml:"cooking_method,omitempty"`
	DifficultyLevel  *int           `yaml:"difficulty_level,omitempty"`
	PrepTimeMinutes  *int           `yaml:"prep_time_minutes,omitempty"`
	CookTimeMinutes  *int           `yaml:"cook_time_minutes,omitempty"`
	TotalTimeMinutes *int           `yaml:"total_time_minutes,omitempty"`
	Observations     []observation  `yaml:"observations,omitempty"`
	Outcomes         map[string]any `yaml:"outcomes,omitempty"`
	Scheduling       map[string]any `yaml:"scheduling,omitempty"`
	Links            []link         `yaml:"links,omitempty"`
	AIMetadata       map[string]any `yaml:"ai_metadata,omitempty"`
	GitCommitSHA     string         `yaml:"git_commit_sha,omitempty"`
	GitFilePath      string         `yaml:"git_file_path,omitempty"`
	ViewCount        int            `yaml:"view_count"`
	SuccessRate      *float64       `yaml:"success_rate,omitempty"`
}

type observation struct {
	At            string   `yaml:"at"`
	Note          string   `yaml:"note"`
	GrillTempC    *float64 `yaml:"grill_temp_c,omitempty"`
	InternalTempC *float64 `yaml:"internal_temp_c,omitempty"`
}

type link struct {
	Title string `yaml:"title,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

// Render serializes an entry as YAML frontmatter followed by the protocol
// under a "## Protocol" heading.
func Render(e *models.Entry) ([]byte, error) {
	fm := frontMatter{
		ID:               e.ID,
		Version:          e.Version,
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.UTC().Format(time.RFC3339),
		Title:            e.Title,
		Date:             e.Date.Format("2006-01-02"),
		Tags:             e.Tags,
		GearIDs:          e.GearIDs,
		Servings:         e.Servings,
		CookingMethod:    e.CookingMethod,
		DifficultyLevel:  e.DifficultyLevel,
		PrepTimeMinutes:  e.PrepTimeMinutes,
		CookTimeMinutes:  e.CookTimeMinutes,
		TotalTimeMinutes: e.TotalTimeMinutes,
		Outcomes:         e.Outcomes,
		Scheduling:       e.Scheduling,
		AIMetadata:       e.AIMetadata,
		GitCommitSHA:     e.GitCommitSHA,
		GitFilePath:      e.GitFilePath,
		ViewCount:        e.ViewCount,
		SuccessRate:      e.SuccessRate,
	}
	if e.DinnerTime != nil {
		fm.DinnerTime = e.DinnerTime.UTC().Format(time.RFC3339)
	}
	for _, o := range e.Observations {
		fm.Observations = append(fm.Observations, observation{
			At:            o.At.UTC().Format(time.RFC3339),
			Note:          o.Note,
			GrillTempC:    o.GrillTempC,
			InternalTempC: o.InternalTempC,
		})
	}
	for _, l := range e.Links {
		fm.Links = append(fm.Links, link{Title: l.Title, URL: l.URL})
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("markdown: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("markdown: close encoder: %w", err)
	}
	buf.WriteString("---\n")
	if e.Protocol != "" {
		buf.WriteString("\n" + protocolHeading + "\n\n")
		buf.WriteString(e.Protocol)
		if !strings.HasSuffix(e.Protocol, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// Parse reads a mirror file back into an entry. The protocol is recovered
// from the "## Protocol" section; a body without that heading is taken as
// the protocol wholesale.
func Parse(data []byte) (*models.Entry, error) {
	var fm frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm)
	if err != nil {
		return nil, fmt.Errorf("markdown: parse frontmatter: %w", apperr.ErrInvalid)
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("markdown: frontmatter missing id: %w", apperr.ErrInvalid)
	}

	e := &models.Entry{
		ID:               fm.ID,
		Version:          fm.Version,
		Title:            fm.Title,
		Tags:             fm.Tags,
		GearIDs:          fm.GearIDs,
		Servings:         fm.Servings,
		CookingMethod:    fm.CookingMethod,
		DifficultyLevel:  fm.DifficultyLevel,
		PrepTimeMinutes:  fm.PrepTimeMinutes,
		CookTimeMinutes:  fm.CookTimeMinutes,
		TotalTimeMinutes: fm.TotalTimeMinutes,
		Outcomes:         fm.Outcomes,
		Scheduling:       fm.Scheduling,
		AIMetadata:       fm.AIMetadata,
		GitCommitSHA:     fm.GitCommitSHA,
		GitFilePath:      fm.GitFilePath,
		ViewCount:        fm.ViewCount,
		SuccessRate:      fm.SuccessRate,
		Protocol:         extractProtocol(string(body)),
	}

	if e.CreatedAt, err = parseTime(fm.CreatedAt); err != nil {
		return nil, fmt.Errorf("markdown: created_at: %w", apperr.ErrInvalid)
	}
	if e.UpdatedAt, err = parseTime(fm.UpdatedAt); err != nil {
		return nil, fmt.Errorf("markdown: updated_at: %w", apperr.ErrInvalid)
	}
	if e.Date, err = parseDate(fm.Date); err != nil {
		return nil, fmt.Errorf("markdown: date: %w", apperr.ErrInvalid)
	}
	if fm.DinnerTime != "" {
		t, err := parseTime(fm.DinnerTime)
		if err != nil {
			return nil, fmt.Errorf("markdown: dinner_time: %w", apperr.ErrInvalid)
		}
		e.DinnerTime = &t
	}
	for _, o := range fm.Observations {
		at, err := parseTime(o.At)
		if err != nil {
			return nil, fmt.Errorf("markdown: observation time: %w", apperr.ErrInvalid)
		}
		e.Observations = append(e.Observations, models.Observation{
			At:            at,
			Note:          o.Note,
			GrillTempC:    o.GrillTempC,
			InternalTempC: o.InternalTempC,
		})
	}
	for _, l := range fm.Links {
		e.Links = append(e.Links, models.Link{Title: l.Title, URL: l.URL})
	}
	return e, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func extractProtocol(body string) string {
	idx := strings.Index(body, protocolHeading)
	if idx < 0 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[idx+len(protocolHeading):])
}
