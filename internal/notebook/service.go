// Package notebook orchestrates the entry repository and the git mirror so
// that every mutation lands in both stores.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/ics"
	"github.com/tom-jordan23/cooking-mcp/internal/markdown"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/sse"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
)

// CalendarResult is the outcome of synthesizing an ICS file for an entry.
type CalendarResult struct {
	EntryID     string     `json:"entry_id"`
	Path        string     `json:"ics_file"`
	Content     string     `json:"ics_content"`
	CommitSHA   string     `json:"commit_sha,omitempty"`
	LeadMinutes int        `json:"lead_minutes"`
	DinnerTime  *time.Time `json:"dinner_time,omitempty"`
}

// Service coordinates repository and mirror operations. The repository is the
// source of truth; the mirror write happens after the repository commit and
// its failure is logged, never rolled back.
type Service struct {
	store  store.EntryStore
	mirror *gitmirror.Mirror
	broker *sse.Broker
	logger *slog.Logger
}

// NewService creates a new entry service. broker may be nil when no event
// stream is wired (offline tools).
func NewService(st store.EntryStore, mirror *gitmirror.Mirror, broker *sse.Broker, logger *slog.Logger) *Service {
	return &Service{store: st, mirror: mirror, broker: broker, logger: logger}
}

// Create validates, stores, and mirrors a new entry.
func (s *Service) Create(_ context.Context, e *models.Entry, actor string) (*models.Entry, error) {
	created, err := s.store.Create(e)
	if err != nil {
		return nil, err
	}
	s.mirrorEntry(created, "Create entry", actor)
	s.publishEntry(sse.EventEntryCreated, created.ID)
	return created, nil
}

// Get loads one entry, optionally counting the read.
func (s *Service) Get(_ context.Context, id string, touchViewCount bool) (*models.Entry, error) {
	return s.store.Get(id, touchViewCount)
}

// Update applies a partial patch and re-mirrors the entry.
func (s *Service) Update(_ context.Context, id string, patch *store.EntryPatch, actor string) (*models.Entry, error) {
	updated, err := s.store.Update(id, patch)
	if err != nil {
		return nil, err
	}
	s.mirrorEntry(updated, "Update entry", actor)
	s.publishEntry(sse.EventEntryUpdated, updated.ID)
	return updated, nil
}

// Delete removes an entry from the mirror and the repository, reporting
// whether it existed.
func (s *Service) Delete(_ context.Context, id, actor string) (bool, error) {
	e, err := s.store.Get(id, false)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	path := e.GitFilePath
	if path == "" {
		path = e.MirrorPath()
	}
	_, err = s.mirror.DeleteFile(path, commitMessage("Delete entry", e.Title, actor), actor)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	return s.store.Delete(id)
}

// Search delegates to the repository.
func (s *Service) Search(_ context.Context, p store.SearchParams) ([]*models.Entry, int, error) {
	return s.store.Search(p)
}

// List returns a page of entries, most recently updated first.
func (s *Service) List(_ context.Context, limit, offset int) ([]*models.Entry, int, error) {
	return s.store.List(limit, offset)
}

// AddObservation appends an observation and re-mirrors the entry.
func (s *Service) AddObservation(_ context.Context, id string, obs models.Observation, actor string) (*models.Entry, error) {
	updated, err := s.store.AddObservation(id, obs)
	if err != nil {
		return nil, err
	}
	s.mirrorEntry(updated, "Add observation to entry", actor)
	s.publishEntry(sse.EventObservationAdded, id)
	return updated, nil
}

// UpdateOutcomes shallow-merges outcome fields and re-mirrors the entry.
func (s *Service) UpdateOutcomes(_ context.Context, id string, outcomes map[string]any, actor string) (*models.Entry, error) {
	updated, err := s.store.MergeOutcomes(id, outcomes)
	if err != nil {
		return nil, err
	}
	s.mirrorEntry(updated, "Update outcomes for entry", actor)
	s.publishEntry(sse.EventOutcomesUpdated, id)
	return updated, nil
}

// SynthesizeCalendar renders the ICS event for an entry and persists it
// through the mirror only; the repository row is untouched.
func (s *Service) SynthesizeCalendar(_ context.Context, id string, leadMinutes int, actor string) (*CalendarResult, error) {
	e, err := s.store.Get(id, false)
	if err != nil {
		return nil, err
	}
	content, err := ics.Render(e, leadMinutes)
	if err != nil {
		return nil, err
	}

	path := e.CalendarPath()
	sha, err := s.mirror.WriteFile(path, []byte(content), fmt.Sprintf("Generate calendar for %s", e.Title), actor)
	if err != nil {
		return nil, err
	}
	if sha != "" {
		s.publishCommit(sha, "Generate calendar for "+e.Title)
	}
	return &CalendarResult{
		EntryID:     e.ID,
		Path:        path,
		Content:     content,
		CommitSHA:   sha,
		LeadMinutes: leadMinutes,
		DinnerTime:  e.DinnerTime,
	}, nil
}

// Commit commits pending mirror changes; an empty sha means nothing was
// pending.
func (s *Service) Commit(_ context.Context, message, actor string, stageAll bool) (string, error) {
	sha, err := s.mirror.Commit(message, actor, stageAll)
	if err != nil {
		return "", err
	}
	if sha != "" {
		s.publishCommit(sha, message)
	}
	return sha, nil
}

// SaveAttachment stores a file under the entry's attachment directory and
// commits it. Returns the mirror path and the commit sha.
func (s *Service) SaveAttachment(_ context.Context, id, filename string, content []byte, actor string) (string, string, error) {
	e, err := s.store.Get(id, false)
	if err != nil {
		return "", "", err
	}

	path := e.AttachmentsDir() + "/" + filename
	sha, err := s.mirror.WriteFile(path, content, commitMessage("Add attachment to entry", e.Title, actor), actor)
	if err != nil {
		return "", "", err
	}
	if sha != "" {
		s.publishCommit(sha, "Add attachment to entry: "+e.Title)
	}
	return path, sha, nil
}

// ListAttachments returns the mirror paths under the entry's attachment
// directory.
func (s *Service) ListAttachments(_ context.Context, id string) ([]string, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, err
	}
	return s.mirror.ListFiles("attachments/"+id, "", true)
}

// ReadAttachment reads one attachment; absent files return ok=false.
func (s *Service) ReadAttachment(_ context.Context, id, filename string) ([]byte, bool, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, false, err
	}
	return s.mirror.ReadFile("attachments/" + id + "/" + filename)
}

// Status reports the mirror working-tree state.
func (s *Service) Status(_ context.Context) (*gitmirror.RepoStatus, error) {
	return s.mirror.Status()
}

// History returns mirror commits, newest first.
func (s *Service) History(_ context.Context, opts gitmirror.HistoryOptions) ([]gitmirror.CommitInfo, error) {
	return s.mirror.History(opts)
}

// EntryCount reports the repository size. Used by health checks.
func (s *Service) EntryCount(_ context.Context) (int, error) {
	return s.store.Count()
}

// mirrorEntry renders an entry to markdown and commits it, then records the
// commit back onto the row. Failures here are logged and swallowed: the
// repository write already succeeded and stays authoritative.
func (s *Service) mirrorEntry(e *models.Entry, verb, actor string) {
	path := e.GitFilePath
	if path == "" {
		path = e.MirrorPath()
	}

	content, err := markdown.Render(e)
	if err != nil {
		s.logger.Error("mirror render failed", "entry", e.ID, "op", verb, "error", err)
		return
	}

	msg := commitMessage(verb, e.Title, actor)
	sha, err := s.mirror.WriteFile(path, content, msg, actor)
	if err != nil {
		s.logger.Error("mirror write failed", "entry", e.ID, "op", verb, "error", err)
		return
	}
	if sha == "" {
		// Content was already committed verbatim; point the row at the
		// commit that holds it.
		ci, err := s.mirror.LatestCommit()
		if err != nil || ci == nil {
			return
		}
		sha = ci.SHA
	} else {
		s.publishCommit(sha, msg)
	}

	if err := s.store.SetGitMetadata(e.ID, sha, path); err != nil {
		s.logger.Error("record git metadata failed", "entry", e.ID, "error", err)
		return
	}
	e.GitCommitSHA = sha
	e.GitFilePath = path
}

func (s *Service) publishEntry(kind, id string) {
	if s.broker != nil {
		s.broker.PublishEntryEvent(kind, id)
	}
}

func (s *Service) publishCommit(sha, message string) {
	if s.broker != nil {
		s.broker.Publish(sse.Event{
			Type: sse.EventMirrorCommitted,
			Data: map[string]string{"sha": sha, "message": message},
		})
	}
}

func commitMessage(verb, title, actor string) string {
	msg := fmt.Sprintf("%s: %s", verb, title)
	if actor != "" {
		msg += fmt.Sprintf(" (by %s)", actor)
	}
	return msg
}
