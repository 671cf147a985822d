package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/checksum"
	"github.com/tom-jordan23/cooking-mcp/internal/idempotency"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
)

// Request is one tool invocation. Actor is the opaque caller identity used
// for commit attribution. IdempotencyKey is optional; when set, the
// successful response is memoized under {name}:{key} and replayed for
// identical retries.
type Request struct {
	Name           Name
	Args           json.RawMessage
	Actor          string
	IdempotencyKey string
}

type handler func(ctx context.Context, raw json.RawMessage, actor string) (map[string]any, error)

// Router validates tool arguments and dispatches them to the notebook
// service. The handler table is built once at construction; names outside it
// are rejected before any argument is inspected.
type Router struct {
	svc      *notebook.Service
	cache    idempotency.Cache
	logger   *slog.Logger
	handlers map[Name]handler
}

// NewRouter wires the five notebook tools. cache may be nil to disable
// idempotent replay.
func NewRouter(svc *notebook.Service, cache idempotency.Cache, logger *slog.Logger) *Router {
	r := &Router{svc: svc, cache: cache, logger: logger}
	r.handlers = map[Name]handler{
		AppendObservation:  r.appendObservation,
		UpdateOutcomes:     r.updateOutcomes,
		CreateEntry:        r.createEntry,
		CommitChanges:      r.commitChanges,
		SynthesizeCalendar: r.synthesizeCalendar,
	}
	return r
}

// List returns the descriptors of every registered tool.
func (r *Router) List() []Descriptor {
	return append([]Descriptor(nil), descriptors...)
}

// Call runs one tool and wraps the outcome, success or failure, in the
// uniform result envelope. Only successful responses are memoized; reusing a
// key with different arguments is a conflict.
func (r *Router) Call(ctx context.Context, req Request) *Result {
	h, ok := r.handlers[req.Name]
	if !ok {
		return errorResult(fmt.Errorf("tools: unknown tool %q: %w", req.Name, apperr.ErrInvalid))
	}

	fingerprint := ""
	if r.cache != nil && req.IdempotencyKey != "" {
		fp, err := argsFingerprint(req.Args)
		if err != nil {
			return errorResult(err)
		}
		fingerprint = fp

		cached, found, err := r.cache.Check(ctx, string(req.Name), req.IdempotencyKey, fingerprint)
		switch {
		case errors.Is(err, apperr.ErrConflict):
			return errorResult(err)
		case err != nil:
			r.logger.Warn("idempotency check failed, executing without replay",
				"tool", req.Name, "key", req.IdempotencyKey, "error", err)
		case found:
			var res Result
			if unmarshalErr := json.Unmarshal(cached, &res); unmarshalErr == nil {
				return &res
			}
			r.logger.Warn("dropping undecodable idempotency record",
				"tool", req.Name, "key", req.IdempotencyKey)
		}
	}

	payload, err := h(ctx, req.Args, req.Actor)
	if err != nil {
		r.logger.Error("tool call failed", "tool", req.Name, "error", err)
		return errorResult(err)
	}

	res := &Result{Content: []Content{{Type: "json", JSON: payload}}}
	if r.cache != nil && req.IdempotencyKey != "" {
		data, err := json.Marshal(res)
		if err == nil {
			err = r.cache.Store(ctx, string(req.Name), req.IdempotencyKey, fingerprint, data)
		}
		if err != nil {
			r.logger.Warn("idempotency store failed",
				"tool", req.Name, "key", req.IdempotencyKey, "error", err)
		}
	}
	return res
}

func (r *Router) appendObservation(ctx context.Context, raw json.RawMessage, actor string) (map[string]any, error) {
	var args AppendObservationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	obs := models.Observation{
		Note:          args.Note,
		GrillTempC:    args.GrillTempC,
		InternalTempC: args.InternalTempC,
	}
	if args.Time != "" {
		at, err := time.Parse(time.RFC3339, args.Time)
		if err != nil {
			return nil, fmt.Errorf("tools: time: %v: %w", err, apperr.ErrInvalid)
		}
		obs.At = at
	}

	e, err := r.svc.AddObservation(ctx, args.ID, obs, actor)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":            "success",
		"message":           fmt.Sprintf("Observation added to entry %s", args.ID),
		"entry_id":          args.ID,
		"observation_count": len(e.Observations),
		"commit_sha":        shaOrNil(e.GitCommitSHA),
	}, nil
}

func (r *Router) updateOutcomes(ctx context.Context, raw json.RawMessage, actor string) (map[string]any, error) {
	var args UpdateOutcomesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	e, err := r.svc.UpdateOutcomes(ctx, args.ID, args.Outcomes, actor)
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(args.Outcomes))
	for k := range args.Outcomes {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	return map[string]any{
		"status":         "success",
		"message":        fmt.Sprintf("Outcomes updated for entry %s", args.ID),
		"entry_id":       args.ID,
		"updated_fields": fields,
		"commit_sha":     shaOrNil(e.GitCommitSHA),
	}, nil
}

func (r *Router) createEntry(ctx context.Context, raw json.RawMessage, actor string) (map[string]any, error) {
	var args CreateEntryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	e := &models.Entry{
		Title:   args.Title,
		Tags:    args.Tags,
		GearIDs: args.Gear,
	}
	if args.DinnerTime != "" {
		dt, err := time.Parse(time.RFC3339, args.DinnerTime)
		if err != nil {
			return nil, fmt.Errorf("tools: dinner_time: %v: %w", err, apperr.ErrInvalid)
		}
		e.DinnerTime = &dt
	}

	created, err := r.svc.Create(ctx, e, actor)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":      "success",
		"message":     fmt.Sprintf("Entry created: %s", created.ID),
		"entry_id":    created.ID,
		"title":       created.Title,
		"date":        created.Date.Format(time.RFC3339),
		"tags":        nonNilStrings(created.Tags),
		"gear":        nonNilStrings(created.GearIDs),
		"dinner_time": timeOrNil(created.DinnerTime),
		"commit_sha":  shaOrNil(created.GitCommitSHA),
	}, nil
}

func (r *Router) commitChanges(ctx context.Context, raw json.RawMessage, actor string) (map[string]any, error) {
	var args CommitChangesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	sha, err := r.svc.Commit(ctx, args.Message, actor, args.AutoAddAll)
	if err != nil {
		return nil, err
	}
	if sha == "" {
		return map[string]any{
			"status":     "info",
			"message":    "No changes to commit",
			"commit_sha": nil,
		}, nil
	}
	return map[string]any{
		"status":         "success",
		"message":        "Changes committed successfully",
		"commit_sha":     sha,
		"commit_message": args.Message,
		"auto_add_all":   args.AutoAddAll,
	}, nil
}

func (r *Router) synthesizeCalendar(ctx context.Context, raw json.RawMessage, actor string) (map[string]any, error) {
	var args SynthesizeCalendarArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	lead := 60
	if args.LeadMinutes != nil {
		lead = *args.LeadMinutes
	}

	res, err := r.svc.SynthesizeCalendar(ctx, args.ID, lead, actor)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":       "success",
		"message":      fmt.Sprintf("ICS calendar generated for entry %s", args.ID),
		"entry_id":     res.EntryID,
		"ics_file":     res.Path,
		"lead_minutes": res.LeadMinutes,
		"dinner_time":  timeOrNil(res.DinnerTime),
		"ics_content":  res.Content,
	}, nil
}

type validatable interface{ Validate() error }

func decodeArgs(raw json.RawMessage, v validatable) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("tools: decode arguments: %v: %w", err, apperr.ErrInvalid)
	}
	if err := v.Validate(); err != nil {
		if errors.Is(err, apperr.ErrInvalid) {
			return err
		}
		return fmt.Errorf("tools: invalid arguments: %v: %w", err, apperr.ErrInvalid)
	}
	return nil
}

// argsFingerprint hashes the canonical JSON encoding of the arguments, so
// retries fingerprint identically regardless of key order on the wire.
func argsFingerprint(raw json.RawMessage) (string, error) {
	var m map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return "", fmt.Errorf("tools: decode arguments: %v: %w", err, apperr.ErrInvalid)
		}
	}
	return checksum.Fingerprint(m)
}

func errorResult(err error) *Result {
	return &Result{
		Content: []Content{{Type: "error", Error: err.Error(), Code: apperr.Code(err)}},
		IsError: true,
	}
}

func shaOrNil(sha string) any {
	if sha == "" {
		return nil
	}
	return sha
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
