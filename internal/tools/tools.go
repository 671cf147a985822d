// Package tools exposes the notebook's mutating operations as named,
// schema-validated tools with an idempotency cache in front of them.
package tools

// Name identifies one tool. The set is closed; Router.Call rejects anything
// else before looking at the arguments.
type Name string

const (
	AppendObservation  Name = "append_observation"
	UpdateOutcomes     Name = "update_outcomes"
	CreateEntry        Name = "create_entry"
	CommitChanges      Name = "commit_changes"
	SynthesizeCalendar Name = "synthesize_calendar"
)

// entryIDPattern is the wire-schema shape of an entry id (YYYY-MM-DD_slug).
const entryIDPattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}_[a-z0-9-]{1,50}$`

// Content is one item of a tool result: a JSON payload on success, an error
// message plus boundary code on failure.
type Content struct {
	Type  string         `json:"type"`
	JSON  map[string]any `json:"json,omitempty"`
	Error string         `json:"error,omitempty"`
	Code  string         `json:"code,omitempty"`
}

// Result is the uniform tool-call envelope.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// Payload returns the JSON payload of a successful result, or nil.
func (r *Result) Payload() map[string]any {
	if r.IsError || len(r.Content) == 0 {
		return nil
	}
	return r.Content[0].JSON
}

// ErrorCode returns the boundary code of an error result, or "".
func (r *Result) ErrorCode() string {
	if !r.IsError || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Code
}

// ErrorMessage returns the message of an error result, or "".
func (r *Result) ErrorMessage() string {
	if !r.IsError || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Error
}

// Descriptor describes one tool: wire name, human description, and the JSON
// schema its arguments are validated against.
type Descriptor struct {
	Name        Name           `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var descriptors = []Descriptor{
	{
		Name:        AppendObservation,
		Description: "Add a timestamped observation to a notebook entry with optional temperature readings",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"pattern":     entryIDPattern,
					"description": "Entry ID in format YYYY-MM-DD_slug",
				},
				"note": map[string]any{
					"type":        "string",
					"minLength":   1,
					"maxLength":   2000,
					"description": "Observation note",
				},
				"time": map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "Observation timestamp (ISO 8601), defaults to now",
				},
				"grill_temp_c": map[string]any{
					"type":        "number",
					"minimum":     0,
					"maximum":     1000,
					"description": "Grill temperature in Celsius",
				},
				"internal_temp_c": map[string]any{
					"type":        "number",
					"minimum":     0,
					"maximum":     200,
					"description": "Internal food temperature in Celsius",
				},
			},
			"required": []string{"id", "note"},
		},
	},
	{
		Name:        UpdateOutcomes,
		Description: "Update the outcomes section of a notebook entry with ratings, issues, and fixes",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"pattern":     entryIDPattern,
					"description": "Entry ID in format YYYY-MM-DD_slug",
				},
				"outcomes": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"rating_10": map[string]any{
							"type":        "number",
							"minimum":     1,
							"maximum":     10,
							"description": "Overall rating out of 10",
						},
						"success_rate": map[string]any{
							"type":        "number",
							"minimum":     0,
							"maximum":     1,
							"description": "Success rate between 0 and 1",
						},
						"issues": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Problems encountered during the session",
						},
						"fixes_next_time": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Adjustments to try next time",
						},
					},
					"description": "Outcome fields to merge into the entry",
				},
			},
			"required": []string{"id", "outcomes"},
		},
	},
	{
		Name:        CreateEntry,
		Description: "Create a new notebook entry with title, tags, gear, and dinner time",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"minLength":   1,
					"maxLength":   200,
					"description": "Entry title",
				},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"maxItems":    10,
					"description": "Tags for categorization",
				},
				"gear": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"maxItems":    10,
					"description": "Gear identifiers used in the session",
				},
				"dinner_time": map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "Planned dinner time (ISO 8601)",
				},
			},
			"required": []string{"title"},
		},
	},
	{
		Name:        CommitChanges,
		Description: "Commit pending changes in the notebook mirror with a custom message",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"minLength":   1,
					"maxLength":   500,
					"description": "Commit message",
				},
				"auto_add_all": map[string]any{
					"type":        "boolean",
					"default":     false,
					"description": "Stage all modified and untracked files first",
				},
			},
			"required": []string{"message"},
		},
	},
	{
		Name:        SynthesizeCalendar,
		Description: "Generate an ICS calendar file for a notebook entry with timing information",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"pattern":     entryIDPattern,
					"description": "Entry ID in format YYYY-MM-DD_slug",
				},
				"lead_minutes": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"maximum":     1440,
					"default":     60,
					"description": "Minutes of lead time before cooking starts",
				},
			},
			"required": []string{"id"},
		},
	},
}
