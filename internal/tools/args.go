package tools

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

// AppendObservationArgs carries the arguments of the append_observation tool.
type AppendObservationArgs struct {
	ID            string   `json:"id"`
	Note          string   `json:"note"`
	Time          string   `json:"time,omitempty"`
	GrillTempC    *float64 `json:"grill_temp_c,omitempty"`
	InternalTempC *float64 `json:"internal_temp_c,omitempty"`
}

// Validate checks the append_observation schema.
func (a *AppendObservationArgs) Validate() error {
	if err := models.ValidateID(a.ID); err != nil {
		return err
	}
	return validation.ValidateStruct(a,
		validation.Field(&a.Note, validation.Required, validation.Length(1, 2000)),
		validation.Field(&a.Time, validation.Date(time.RFC3339)),
		validation.Field(&a.GrillTempC, validation.Min(0.0), validation.Max(1000.0)),
		validation.Field(&a.InternalTempC, validation.Min(0.0), validation.Max(200.0)),
	)
}

// UpdateOutcomesArgs carries the arguments of the update_outcomes tool. The
// outcomes object allows open keys; only the well-known ones are range-checked.
type UpdateOutcomesArgs struct {
	ID       string         `json:"id"`
	Outcomes map[string]any `json:"outcomes"`
}

// Validate checks the update_outcomes schema.
func (a *UpdateOutcomesArgs) Validate() error {
	if err := models.ValidateID(a.ID); err != nil {
		return err
	}
	if a.Outcomes == nil {
		return fmt.Errorf("tools: outcomes: cannot be blank: %w", apperr.ErrInvalid)
	}
	if err := outcomeNumberInRange(a.Outcomes, "rating_10", 1, 10); err != nil {
		return err
	}
	if err := outcomeNumberInRange(a.Outcomes, "success_rate", 0, 1); err != nil {
		return err
	}
	for _, key := range []string{"issues", "fixes_next_time"} {
		if err := outcomeStringList(a.Outcomes, key); err != nil {
			return err
		}
	}
	return nil
}

func outcomeNumberInRange(outcomes map[string]any, key string, min, max float64) error {
	v, ok := outcomes[key]
	if !ok {
		return nil
	}
	n, ok := v.(float64)
	if !ok {
		return fmt.Errorf("tools: outcomes.%s: must be a number: %w", key, apperr.ErrInvalid)
	}
	if n < min || n > max {
		return fmt.Errorf("tools: outcomes.%s: must be between %v and %v: %w", key, min, max, apperr.ErrInvalid)
	}
	return nil
}

func outcomeStringList(outcomes map[string]any, key string) error {
	v, ok := outcomes[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("tools: outcomes.%s: must be a list of strings: %w", key, apperr.ErrInvalid)
	}
	for _, item := range items {
		if _, ok := item.(string); !ok {
			return fmt.Errorf("tools: outcomes.%s: must be a list of strings: %w", key, apperr.ErrInvalid)
		}
	}
	return nil
}

// CreateEntryArgs carries the arguments of the create_entry tool. The entry
// date is always the call date; the id is derived from it and the title.
type CreateEntryArgs struct {
	Title      string   `json:"title"`
	Tags       []string `json:"tags,omitempty"`
	Gear       []string `json:"gear,omitempty"`
	DinnerTime string   `json:"dinner_time,omitempty"`
}

// Validate checks the create_entry schema.
func (a *CreateEntryArgs) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.Tags, validation.Length(0, 10)),
		validation.Field(&a.Gear, validation.Length(0, 10)),
		validation.Field(&a.DinnerTime, validation.Date(time.RFC3339)),
	)
}

// CommitChangesArgs carries the arguments of the commit_changes tool.
type CommitChangesArgs struct {
	Message    string `json:"message"`
	AutoAddAll bool   `json:"auto_add_all,omitempty"`
}

// Validate checks the commit_changes schema.
func (a *CommitChangesArgs) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Message, validation.Required, validation.Length(1, 500)),
	)
}

// SynthesizeCalendarArgs carries the arguments of the synthesize_calendar
// tool. A nil LeadMinutes defaults to 60.
type SynthesizeCalendarArgs struct {
	ID          string `json:"id"`
	LeadMinutes *int   `json:"lead_minutes,omitempty"`
}

// Validate checks the synthesize_calendar schema.
func (a *SynthesizeCalendarArgs) Validate() error {
	if err := models.ValidateID(a.ID); err != nil {
		return err
	}
	return validation.ValidateStruct(a,
		validation.Field(&a.LeadMinutes, validation.Min(0), validation.Max(1440)),
	)
}
