// Package mirrorsync reconciles the repository and the markdown mirror
// while the server is offline. Sync pushes repository state out to the
// mirror; Import pulls mirror files back in. Together they are the recovery
// path for out-of-band edits the watcher can only report.
package mirrorsync

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/markdown"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
)

// SyncActor is the attribution recorded on reconciliation commits.
const SyncActor = "mirror_sync"

// Result summarizes a Sync run.
type Result struct {
	Checked   int    `json:"checked"`
	Rewritten int    `json:"rewritten"`
	CommitSHA string `json:"commit_sha,omitempty"`
}

// Sync re-renders every repository entry into the mirror. Files whose
// canonical content already matches their row are left alone; drifted or
// missing files are rewritten and covered by a single reconciliation
// commit. The repository is authoritative throughout: mirror-side edits to
// tracked entry files lose.
func Sync(st store.EntryStore, mirror *gitmirror.Mirror, logger *slog.Logger) (*Result, error) {
	ids, err := st.AllIDs()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	type rewrite struct{ id, path string }
	var rewrites []rewrite

	for _, id := range ids {
		e, err := st.Get(id, false)
		if err != nil {
			logger.Warn("sync: load failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		res.Checked++

		path := e.GitFilePath
		if path == "" {
			path = e.MirrorPath()
		}

		have, found, err := mirror.ReadFile(path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if found && equalCanonical(e, have) {
			continue
		}

		out, err := markdown.Render(e)
		if err != nil {
			logger.Warn("sync: render failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		// Stage only; one reconciliation commit covers the whole run.
		if _, err := mirror.WriteFile(path, out, "", SyncActor); err != nil {
			logger.Warn("sync: write failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		rewrites = append(rewrites, rewrite{id: id, path: path})
		res.Rewritten++
		logger.Debug("sync: rewrote", slog.String("path", path))
	}

	if res.Rewritten == 0 {
		logger.Info("sync: mirror consistent", slog.Int("checked", res.Checked))
		return res, nil
	}

	msg := fmt.Sprintf("Reconcile mirror with repository (%d entries)", res.Rewritten)
	sha, err := mirror.Commit(msg, SyncActor, false)
	if err != nil {
		return nil, err
	}
	res.CommitSHA = sha

	for _, w := range rewrites {
		if err := st.SetGitMetadata(w.id, sha, w.path); err != nil {
			logger.Warn("sync: record git metadata failed", slog.String("id", w.id), slog.String("error", err.Error()))
		}
	}

	logger.Info("sync: reconciled",
		slog.Int("checked", res.Checked),
		slog.Int("rewritten", res.Rewritten),
		slog.String("sha", sha))
	return res, nil
}

// Import parses every markdown file under entries/ and upserts it into the
// repository, making the mirror authoritative for one run. Files that fail
// to parse are skipped with a warning. Adopted files that were never
// committed are swept into an import commit so the run ends with a clean
// tree. Returns the number imported.
func Import(st store.EntryStore, mirror *gitmirror.Mirror, logger *slog.Logger) (int, error) {
	paths, err := mirror.ListFiles("entries", "*.md", false)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, p := range paths {
		data, found, err := mirror.ReadFile(p)
		if err != nil {
			logger.Warn("import: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if !found {
			continue
		}
		e, err := markdown.Parse(data)
		if err != nil {
			logger.Warn("import: parse failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		e.GitFilePath = p
		if _, err := st.Upsert(e); err != nil {
			logger.Warn("import: upsert failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		imported++
		logger.Debug("import: upserted", slog.String("id", e.ID), slog.String("path", p))
	}

	if imported > 0 {
		msg := fmt.Sprintf("Import entries from mirror (%d files)", imported)
		sha, err := mirror.Commit(msg, SyncActor, true)
		if err != nil {
			return imported, err
		}
		if sha != "" {
			logger.Info("import: committed adopted files", slog.String("sha", sha))
		}
	}

	logger.Info("import: complete", slog.Int("files", len(paths)), slog.Int("imported", imported))
	return imported, nil
}

// equalCanonical reports whether a mirror file still matches its row. Both
// sides are re-rendered with commit metadata and the view counter blanked:
// rows legitimately run ahead of their files on those fields between writes.
func equalCanonical(e *models.Entry, file []byte) bool {
	fe, err := markdown.Parse(file)
	if err != nil {
		return false
	}
	want, err := markdown.Render(normalize(*e))
	if err != nil {
		return false
	}
	got, err := markdown.Render(normalize(*fe))
	if err != nil {
		return false
	}
	return bytes.Equal(want, got)
}

func normalize(e models.Entry) *models.Entry {
	e.GitCommitSHA = ""
	e.GitFilePath = ""
	e.ViewCount = 0
	return &e
}
