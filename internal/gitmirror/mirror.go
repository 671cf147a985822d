// Package gitmirror maintains the git-backed markdown mirror of the
// notebook. Every public method serializes on one mutex: the mirror has a
// single writer, and readers pay the writer's serialization cost too.
package gitmirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/pathsafe"
)

// SeedCommitMessage is the message of the scaffold commit written by
// Initialize when seeding is requested.
const SeedCommitMessage = "Initialize cooking lab notebook"

const tmpPrefix = ".cooking-mcp-tmp-"

// IsTempFile reports whether name is one of the mirror's in-flight write
// artifacts. Watchers use it to ignore the rename dance of atomic writes.
func IsTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), tmpPrefix)
}

// Identity names a commit author or committer.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CommitStats summarizes the diff introduced by one commit.
type CommitStats struct {
	FilesChanged int `json:"files_changed"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
}

// CommitInfo describes one commit in the mirror history.
type CommitInfo struct {
	SHA           string      `json:"sha"`
	ShortSHA      string      `json:"short_sha"`
	Message       string      `json:"message"`
	Author        Identity    `json:"author"`
	Committer     Identity    `json:"committer"`
	AuthoredDate  time.Time   `json:"authored_date"`
	CommittedDate time.Time   `json:"committed_date"`
	Stats         CommitStats `json:"stats"`
}

// CommitSummary is the abbreviated form used in status reports.
type CommitSummary struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// RepoStatus describes the working tree and branch state.
type RepoStatus struct {
	Path           string         `json:"path"`
	Dirty          bool           `json:"is_dirty"`
	UntrackedFiles int            `json:"untracked_files"`
	ModifiedFiles  int            `json:"modified_files"`
	StagedFiles    int            `json:"staged_files"`
	Branch         string         `json:"branch,omitempty"`
	CommitCount    int            `json:"commit_count"`
	LatestCommit   *CommitSummary `json:"latest_commit"`
}

// HistoryOptions filter History results.
type HistoryOptions struct {
	MaxCount int
	Since    *time.Time
	Until    *time.Time
	Path     string
}

// Mirror is the versioned markdown mirror rooted at a local git repository.
type Mirror struct {
	mu     sync.Mutex
	root   string
	author string
	email  string
	logger *slog.Logger

	repo *git.Repository
}

// New creates a mirror rooted at dir. The repository is opened or created
// lazily on first use; call Initialize to scaffold it eagerly.
func New(dir, authorName, authorEmail string, logger *slog.Logger) (*Mirror, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("gitmirror: resolve root: %w", err)
	}
	return &Mirror{
		root:   abs,
		author: authorName,
		email:  authorEmail,
		logger: logger,
	}, nil
}

// Root returns the absolute path of the mirror working tree.
func (m *Mirror) Root() string {
	return m.root
}

// Initialize opens the repository, creating and scaffolding it when create
// is true. With seed true a fresh repository gets an initial commit covering
// the scaffold files. When create is false a root that is missing or not a
// repository is an error.
func (m *Mirror) Initialize(create, seed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !create {
		if m.repo != nil {
			return nil
		}
		repo, err := git.PlainOpen(m.root)
		if err != nil {
			return fmt.Errorf("gitmirror: open %s: %w: %w", m.root, apperr.ErrMirror, err)
		}
		m.repo = repo
		return nil
	}

	created, err := m.ensureRepoLocked()
	if err != nil {
		return err
	}
	if created && seed {
		sha, err := m.commitLocked(SeedCommitMessage, "system", true)
		if err != nil {
			return err
		}
		m.logger.Info("seeded mirror repository", slog.String("path", m.root), slog.String("sha", sha))
	}
	return nil
}

// WriteFile atomically writes content at relPath and stages it. A non-empty
// commitMessage also commits; the returned sha is empty when no commit was
// requested or nothing changed.
func (m *Mirror) WriteFile(relPath string, content []byte, commitMessage, actor string) (string, error) {
	clean, err := pathsafe.Clean(relPath)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return "", err
	}
	if err := m.writeRawLocked(clean, content); err != nil {
		return "", err
	}
	wt, err := m.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("gitmirror: worktree: %w: %w", apperr.ErrMirror, err)
	}
	if _, err := wt.Add(clean); err != nil {
		return "", fmt.Errorf("gitmirror: stage %s: %w: %w", clean, apperr.ErrMirror, err)
	}
	if commitMessage == "" {
		return "", nil
	}
	return m.commitLocked(commitMessage, actor, false)
}

// ReadFile returns the content at relPath. A missing file is reported as
// found=false, not as an error.
func (m *Mirror) ReadFile(relPath string) ([]byte, bool, error) {
	clean, err := pathsafe.Clean(relPath)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.root, filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("gitmirror: read %s: %w: %w", clean, apperr.ErrMirror, err)
	}
	return data, true, nil
}

// DeleteFile removes relPath from the working tree and the index. A
// non-empty commitMessage also commits the deletion.
func (m *Mirror) DeleteFile(relPath, commitMessage, actor string) (string, error) {
	clean, err := pathsafe.Clean(relPath)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return "", err
	}
	abs := filepath.Join(m.root, filepath.FromSlash(clean))
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("gitmirror: delete %s: %w", clean, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("gitmirror: stat %s: %w: %w", clean, apperr.ErrMirror, err)
	}
	wt, err := m.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("gitmirror: worktree: %w: %w", apperr.ErrMirror, err)
	}
	if _, err := wt.Remove(clean); err != nil {
		// Untracked files are not in the index; fall back to a direct remove.
		if rmErr := os.Remove(abs); rmErr != nil {
			return "", fmt.Errorf("gitmirror: delete %s: %w: %w", clean, apperr.ErrMirror, err)
		}
	}
	if commitMessage == "" {
		return "", nil
	}
	return m.commitLocked(commitMessage, actor, false)
}

// ListFiles returns sorted root-relative paths under dir matching pattern.
// An empty dir means the repository root; an empty pattern matches all. A
// missing directory yields an empty listing.
func (m *Mirror) ListFiles(dir, pattern string, recursive bool) ([]string, error) {
	clean := "."
	if dir != "" {
		var err error
		if clean, err = pathsafe.Clean(dir); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	base := filepath.Join(m.root, filepath.FromSlash(clean))
	if _, err := os.Stat(base); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitmirror: stat %s: %w: %w", clean, apperr.ErrMirror, err)
	}

	var out []string
	match := func(name string) (bool, error) {
		if pattern == "" {
			return true, nil
		}
		ok, err := path.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("gitmirror: bad pattern %q: %w", pattern, apperr.ErrInvalid)
		}
		return ok, nil
	}

	if recursive {
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), tmpPrefix) {
				return nil
			}
			ok, err := match(d.Name())
			if err != nil {
				return err
			}
			if ok {
				rel, _ := filepath.Rel(m.root, p)
				out = append(out, filepath.ToSlash(rel))
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, apperr.ErrInvalid) {
				return nil, err
			}
			return nil, fmt.Errorf("gitmirror: list %s: %w: %w", clean, apperr.ErrMirror, err)
		}
		return out, nil
	}

	dirents, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("gitmirror: list %s: %w: %w", clean, apperr.ErrMirror, err)
	}
	for _, d := range dirents {
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			continue
		}
		ok, err := match(d.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			rel, _ := filepath.Rel(m.root, filepath.Join(base, d.Name()))
			out = append(out, filepath.ToSlash(rel))
		}
	}
	return out, nil
}

// Commit commits staged changes. With stageAll every pending change is
// staged first. Returns an empty sha when there is nothing to commit.
func (m *Mirror) Commit(message, actor string, stageAll bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return "", err
	}
	return m.commitLocked(message, actor, stageAll)
}

// LatestCommit returns the HEAD commit, or nil when the repository has none.
func (m *Mirror) LatestCommit() (*CommitInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return nil, err
	}
	head, err := m.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitmirror: head: %w: %w", apperr.ErrMirror, err)
	}
	commit, err := m.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("gitmirror: head commit: %w: %w", apperr.ErrMirror, err)
	}
	info := commitInfo(commit)
	return &info, nil
}

// History returns up to opts.MaxCount commits, newest first, optionally
// bounded by time and restricted to one path.
func (m *Mirror) History(opts HistoryOptions) ([]CommitInfo, error) {
	maxCount := opts.MaxCount
	if maxCount <= 0 {
		maxCount = 50
	}
	var pathFilter func(string) bool
	if opts.Path != "" {
		clean, err := pathsafe.Clean(opts.Path)
		if err != nil {
			return nil, err
		}
		pathFilter = func(p string) bool {
			return p == clean || strings.HasPrefix(p, clean+"/")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return nil, err
	}
	head, err := m.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitmirror: head: %w: %w", apperr.ErrMirror, err)
	}

	iter, err := m.repo.Log(&git.LogOptions{
		From:       head.Hash(),
		Since:      opts.Since,
		Until:      opts.Until,
		PathFilter: pathFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("gitmirror: log: %w: %w", apperr.ErrMirror, err)
	}
	defer iter.Close()

	var out []CommitInfo
	for len(out) < maxCount {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gitmirror: iterate log: %w: %w", apperr.ErrMirror, err)
		}
		out = append(out, commitInfo(commit))
	}
	return out, nil
}

// Status reports the working tree, branch, and latest commit state.
func (m *Mirror) Status() (*RepoStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return nil, err
	}
	wt, err := m.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitmirror: worktree: %w: %w", apperr.ErrMirror, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("gitmirror: status: %w: %w", apperr.ErrMirror, err)
	}

	rs := &RepoStatus{Path: m.root, Dirty: !status.IsClean()}
	for _, fileStatus := range status {
		switch {
		case fileStatus.Staging == git.Untracked || fileStatus.Worktree == git.Untracked:
			rs.UntrackedFiles++
		default:
			if fileStatus.Staging != git.Unmodified {
				rs.StagedFiles++
			}
			if fileStatus.Worktree != git.Unmodified {
				rs.ModifiedFiles++
			}
		}
	}

	head, err := m.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			rs.Branch = m.symbolicBranchLocked()
			return rs, nil
		}
		return nil, fmt.Errorf("gitmirror: head: %w: %w", apperr.ErrMirror, err)
	}
	rs.Branch = head.Name().Short()

	iter, err := m.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("gitmirror: log: %w: %w", apperr.ErrMirror, err)
	}
	defer iter.Close()
	for {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gitmirror: iterate log: %w: %w", apperr.ErrMirror, err)
		}
		if rs.CommitCount == 0 {
			rs.LatestCommit = &CommitSummary{
				SHA:     commit.Hash.String()[:8],
				Message: strings.TrimSpace(commit.Message),
				Date:    commit.Committer.When,
			}
		}
		rs.CommitCount++
	}
	return rs, nil
}

// ChangedPaths lists the relative paths with uncommitted changes, sorted.
func (m *Mirror) ChangedPaths() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ensureRepoLocked(); err != nil {
		return nil, err
	}
	wt, err := m.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitmirror: worktree: %w: %w", apperr.ErrMirror, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("gitmirror: status: %w: %w", apperr.ErrMirror, err)
	}

	var paths []string
	for p, fileStatus := range status {
		if fileStatus.Staging == git.Unmodified && fileStatus.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// ensureRepoLocked opens the repository, creating and scaffolding it when
// absent. Reports whether it created a new repository. Callers hold mu.
func (m *Mirror) ensureRepoLocked() (bool, error) {
	if m.repo != nil {
		return false, nil
	}
	repo, err := git.PlainOpen(m.root)
	if err == nil {
		m.repo = repo
		return false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return false, fmt.Errorf("gitmirror: open %s: %w: %w", m.root, apperr.ErrMirror, err)
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return false, fmt.Errorf("gitmirror: create root: %w: %w", apperr.ErrMirror, err)
	}
	repo, err = git.PlainInit(m.root, false)
	if err != nil {
		return false, fmt.Errorf("gitmirror: init %s: %w: %w", m.root, apperr.ErrMirror, err)
	}
	m.repo = repo

	for _, dir := range []string{"entries", "attachments", "calendars"} {
		if err := os.MkdirAll(filepath.Join(m.root, dir), 0o755); err != nil {
			return false, fmt.Errorf("gitmirror: scaffold %s: %w: %w", dir, apperr.ErrMirror, err)
		}
	}
	if err := m.writeRawLocked(".gitignore", []byte(gitignoreContent)); err != nil {
		return false, err
	}
	if err := m.writeRawLocked("README.md", []byte(readmeContent)); err != nil {
		return false, err
	}
	m.logger.Info("created mirror repository", slog.String("path", m.root))
	return true, nil
}

// writeRawLocked writes content atomically: temp file, fsync, rename.
// Callers hold mu and have validated relPath.
func (m *Mirror) writeRawLocked(relPath string, content []byte) error {
	abs := filepath.Join(m.root, filepath.FromSlash(relPath))
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("gitmirror: mkdir: %w: %w", apperr.ErrMirror, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("gitmirror: create temp: %w: %w", apperr.ErrMirror, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("gitmirror: write temp: %w: %w", apperr.ErrMirror, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("gitmirror: fsync: %w: %w", apperr.ErrMirror, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("gitmirror: close temp: %w: %w", apperr.ErrMirror, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("gitmirror: rename: %w: %w", apperr.ErrMirror, err)
	}
	success = true
	return nil
}

// commitLocked creates a commit attributed to the configured identity,
// augmented with the acting caller. Returns an empty sha when the index
// matches HEAD and nothing is untracked. Callers hold mu.
func (m *Mirror) commitLocked(message, actor string, stageAll bool) (string, error) {
	wt, err := m.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("gitmirror: worktree: %w: %w", apperr.ErrMirror, err)
	}
	if stageAll {
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return "", fmt.Errorf("gitmirror: stage all: %w: %w", apperr.ErrMirror, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("gitmirror: status: %w: %w", apperr.ErrMirror, err)
	}
	if !hasPendingChanges(status) {
		m.logger.Info("no changes to commit")
		return "", nil
	}

	name := m.author
	if actor != "" {
		name = fmt.Sprintf("%s (%s)", m.author, actor)
	}
	sig := &object.Signature{Name: name, Email: m.email, When: time.Now()}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", nil
		}
		return "", fmt.Errorf("gitmirror: commit: %w: %w", apperr.ErrMirror, err)
	}
	m.logger.Info("created commit",
		slog.String("sha", hash.String()[:8]),
		slog.String("message", message))
	return hash.String(), nil
}

// symbolicBranchLocked resolves the branch name of an unborn HEAD.
func (m *Mirror) symbolicBranchLocked() string {
	ref, err := m.repo.Reference(plumbing.HEAD, false)
	if err != nil || ref.Type() != plumbing.SymbolicReference {
		return ""
	}
	return ref.Target().Short()
}

func hasPendingChanges(status git.Status) bool {
	for _, fileStatus := range status {
		if fileStatus.Staging == git.Untracked || fileStatus.Worktree == git.Untracked {
			return true
		}
		if fileStatus.Staging != git.Unmodified {
			return true
		}
	}
	return false
}

func commitInfo(c *object.Commit) CommitInfo {
	info := CommitInfo{
		SHA:           c.Hash.String(),
		ShortSHA:      c.Hash.String()[:8],
		Message:       strings.TrimSpace(c.Message),
		Author:        Identity{Name: c.Author.Name, Email: c.Author.Email},
		Committer:     Identity{Name: c.Committer.Name, Email: c.Committer.Email},
		AuthoredDate:  c.Author.When,
		CommittedDate: c.Committer.When,
	}
	if stats, err := c.Stats(); err == nil {
		info.Stats.FilesChanged = len(stats)
		for _, s := range stats {
			info.Stats.Insertions += s.Addition
			info.Stats.Deletions += s.Deletion
		}
	}
	return info
}

const gitignoreContent = `# OS noise
.DS_Store
Thumbs.db

# Editor state
*.swp
*.swo

# Temporary files
*.tmp
*.temp
.cooking-mcp-tmp-*
`

const readmeContent = `# Cooking Lab Notebook

This repository contains cooking experiments, recipes, and observations
from the lab notebook system.

## Structure

- ` + "`entries/`" + `: individual cooking session entries in Markdown format
- ` + "`attachments/`" + `: images, documents, and other attachments per entry
- ` + "`calendars/`" + `: generated ICS reminders for planned sessions

Maintained automatically by the cooking-mcp server.
`
