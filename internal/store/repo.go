package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

const entryColumns = `id, version, created_at, updated_at, title, date, tags, gear_ids,
	servings, dinner_time, cooking_method, difficulty_level, prep_time_minutes,
	cook_time_minutes, total_time_minutes, protocol, observations, outcomes,
	scheduling, links, ai_metadata, git_commit_sha, git_file_path, view_count, success_rate`

var sortColumns = map[string]string{
	"id":               "id",
	"date":             "date",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
	"title":            "title",
	"difficulty_level": "difficulty_level",
	"view_count":       "view_count",
}

// Create validates and inserts a new entry. A missing id is derived from the
// date and title; version and timestamps get defaults.
func (db *DB) Create(e *models.Entry) (*models.Entry, error) {
	if e.Date.IsZero() {
		e.Date = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = models.NewEntryID(e.Date, e.Title)
	}
	if e.Version == 0 {
		e.Version = 1
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	e.ComputeTotalTime()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM entries WHERE id = ?`, e.ID).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("store: entry %s: %w", e.ID, apperr.ErrExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: check existing: %w", err)
	}

	if err := insertRowTx(tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return e, nil
}

// Get loads one entry. With touchViewCount the read is counted and the
// returned entry carries the incremented value.
func (db *DB) Get(id string, touchViewCount bool) (*models.Entry, error) {
	if !touchViewCount {
		return scanEntry(db.conn.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id), id)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	e, err := scanEntry(tx.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id), id)
	if err != nil {
		return nil, err
	}
	e.ViewCount++
	if _, err := tx.Exec(`UPDATE entries SET view_count = ? WHERE id = ?`, e.ViewCount, id); err != nil {
		return nil, fmt.Errorf("store: touch view count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return e, nil
}

// Update applies a partial patch. The id is immutable; changed fields are
// re-validated and derived fields recomputed.
func (db *DB) Update(id string, patch *EntryPatch) (*models.Entry, error) {
	if patch.ID != nil && *patch.ID != id {
		return nil, fmt.Errorf("store: entry id is immutable: %w", apperr.ErrInvalid)
	}
	return db.updateTx(id, func(e *models.Entry) error {
		if patch.Title != nil {
			e.Title = *patch.Title
		}
		if patch.Date != nil {
			e.Date = *patch.Date
		}
		if patch.Tags != nil {
			e.Tags = patch.Tags
		}
		if patch.GearIDs != nil {
			e.GearIDs = patch.GearIDs
		}
		if patch.Servings != nil {
			e.Servings = patch.Servings
		}
		if patch.DinnerTime != nil {
			e.DinnerTime = patch.DinnerTime
		}
		if patch.CookingMethod != nil {
			e.CookingMethod = *patch.CookingMethod
		}
		if patch.DifficultyLevel != nil {
			e.DifficultyLevel = patch.DifficultyLevel
		}
		if patch.PrepTimeMinutes != nil {
			e.PrepTimeMinutes = patch.PrepTimeMinutes
		}
		if patch.CookTimeMinutes != nil {
			e.CookTimeMinutes = patch.CookTimeMinutes
		}
		if patch.Protocol != nil {
			e.Protocol = *patch.Protocol
		}
		if patch.Scheduling != nil {
			e.Scheduling = patch.Scheduling
		}
		if patch.Links != nil {
			e.Links = patch.Links
		}
		if patch.AIMetadata != nil {
			e.AIMetadata = patch.AIMetadata
		}
		if patch.SuccessRate != nil {
			e.SuccessRate = patch.SuccessRate
		}
		return nil
	})
}

// Delete removes an entry, reporting whether a row existed.
func (db *DB) Delete(id string) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: rows affected: %w", err)
	}
	return n > 0, nil
}

// Search runs a substring match over title, protocol, tags, and method with
// the given filters, returning one page plus the total match count.
func (db *DB) Search(p SearchParams) ([]*models.Entry, int, error) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(p.Query); q != "" {
		like := "%" + q + "%"
		conds = append(conds, `(title LIKE ? OR protocol LIKE ? OR tags LIKE ? OR cooking_method LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if p.CookingMethod != "" {
		conds = append(conds, `cooking_method = ?`)
		args = append(args, p.CookingMethod)
	}
	if p.DifficultyMin != nil {
		conds = append(conds, `difficulty_level >= ?`)
		args = append(args, *p.DifficultyMin)
	}
	if p.DifficultyMax != nil {
		conds = append(conds, `difficulty_level <= ?`)
		args = append(args, *p.DifficultyMax)
	}
	if p.ServingsMin != nil {
		conds = append(conds, `servings >= ?`)
		args = append(args, *p.ServingsMin)
	}
	if p.ServingsMax != nil {
		conds = append(conds, `servings <= ?`)
		args = append(args, *p.ServingsMax)
	}
	if p.DateFrom != nil {
		conds = append(conds, `date >= ?`)
		args = append(args, *p.DateFrom)
	}
	if p.DateTo != nil {
		conds = append(conds, `date <= ?`)
		args = append(args, *p.DateTo)
	}
	if p.HasRating != nil {
		if *p.HasRating {
			conds = append(conds, `json_extract(outcomes, '$.rating_10') IS NOT NULL`)
		} else {
			conds = append(conds, `json_extract(outcomes, '$.rating_10') IS NULL`)
		}
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count: %w", err)
	}

	sortBy := p.SortBy
	sortDesc := p.SortDesc
	if sortBy == "" {
		sortBy = "date"
		sortDesc = true
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, 0, fmt.Errorf("store: unknown sort field %q: %w", p.SortBy, apperr.ErrInvalid)
	}
	order := " ORDER BY " + column
	if sortDesc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.Query(`SELECT `+entryColumns+` FROM entries`+where+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows, "")
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: search rows: %w", err)
	}
	return out, total, nil
}

// List returns a page of entries ordered by updated_at descending.
func (db *DB) List(limit, offset int) ([]*models.Entry, int, error) {
	return db.Search(SearchParams{Limit: limit, Offset: offset, SortBy: "updated_at", SortDesc: true})
}

// AddObservation appends one observation. A zero timestamp is replaced with
// the server clock. The sequence order is never touched.
func (db *DB) AddObservation(id string, obs models.Observation) (*models.Entry, error) {
	return db.updateTx(id, func(e *models.Entry) error {
		if obs.At.IsZero() {
			obs.At = time.Now().UTC()
		}
		e.Observations = append(e.Observations, obs)
		return nil
	})
}

// MergeOutcomes shallow-merges patch into the outcomes map: new keys
// overwrite, untouched keys survive.
func (db *DB) MergeOutcomes(id string, patch map[string]any) (*models.Entry, error) {
	return db.updateTx(id, func(e *models.Entry) error {
		if e.Outcomes == nil {
			e.Outcomes = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			e.Outcomes[k] = v
		}
		return nil
	})
}

// SetGitMetadata records the mirror commit backing an entry. It is metadata
// bookkeeping and does not bump updated_at.
func (db *DB) SetGitMetadata(id, commitSHA, filePath string) error {
	res, err := db.conn.Exec(`UPDATE entries SET git_commit_sha = ?, git_file_path = ? WHERE id = ?`,
		nullableString(commitSHA), nullableString(filePath), id)
	if err != nil {
		return fmt.Errorf("store: set git metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: entry %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Upsert inserts or fully replaces an entry, keeping its given timestamps.
// Used by the offline import path.
func (db *DB) Upsert(e *models.Entry) (*models.Entry, error) {
	if e.Version == 0 {
		e.Version = 1
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	e.ComputeTotalTime()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	_, err := db.conn.Exec(`
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version            = excluded.version,
			created_at         = excluded.created_at,
			updated_at         = excluded.updated_at,
			title              = excluded.title,
			date               = excluded.date,
			tags               = excluded.tags,
			gear_ids           = excluded.gear_ids,
			servings           = excluded.servings,
			dinner_time        = excluded.dinner_time,
			cooking_method     = excluded.cooking_method,
			difficulty_level   = excluded.difficulty_level,
			prep_time_minutes  = excluded.prep_time_minutes,
			cook_time_minutes  = excluded.cook_time_minutes,
			total_time_minutes = excluded.total_time_minutes,
			protocol           = excluded.protocol,
			observations       = excluded.observations,
			outcomes           = excluded.outcomes,
			scheduling         = excluded.scheduling,
			links              = excluded.links,
			ai_metadata        = excluded.ai_metadata,
			git_commit_sha     = excluded.git_commit_sha,
			git_file_path      = excluded.git_file_path,
			view_count         = excluded.view_count,
			success_rate       = excluded.success_rate
	`, rowArgs(e)...)
	if err != nil {
		return nil, fmt.Errorf("store: upsert: %w", err)
	}
	return e, nil
}

// AllIDs returns every stored entry id.
func (db *DB) AllIDs() ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: all ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// updateTx loads an entry, applies mutate, revalidates, recomputes derived
// fields, bumps updated_at, and writes the row back in one transaction.
func (db *DB) updateTx(id string, mutate func(*models.Entry) error) (*models.Entry, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	e, err := scanEntry(tx.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id), id)
	if err != nil {
		return nil, err
	}
	if err := mutate(e); err != nil {
		return nil, err
	}
	if e.ID != id {
		return nil, fmt.Errorf("store: entry id is immutable: %w", apperr.ErrInvalid)
	}
	e.ComputeTotalTime()
	e.UpdatedAt = time.Now().UTC()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := updateRowTx(tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return e, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertRowTx(tx execer, e *models.Entry) error {
	_, err := tx.Exec(`
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rowArgs(e)...)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func updateRowTx(tx execer, e *models.Entry) error {
	_, err := tx.Exec(`
		UPDATE entries SET
			version = ?, created_at = ?, updated_at = ?, title = ?, date = ?,
			tags = ?, gear_ids = ?, servings = ?, dinner_time = ?, cooking_method = ?,
			difficulty_level = ?, prep_time_minutes = ?, cook_time_minutes = ?,
			total_time_minutes = ?, protocol = ?, observations = ?, outcomes = ?,
			scheduling = ?, links = ?, ai_metadata = ?, git_commit_sha = ?,
			git_file_path = ?, view_count = ?, success_rate = ?
		WHERE id = ?
	`, append(rowArgs(e)[1:], e.ID)...)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	return nil
}

// rowArgs returns the column values in entryColumns order.
func rowArgs(e *models.Entry) []any {
	return []any{
		e.ID,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
		e.Title,
		e.Date,
		marshalJSON(e.Tags, "[]"),
		marshalJSON(e.GearIDs, "[]"),
		nullableInt(e.Servings),
		nullableTime(e.DinnerTime),
		nullableString(e.CookingMethod),
		nullableInt(e.DifficultyLevel),
		nullableInt(e.PrepTimeMinutes),
		nullableInt(e.CookTimeMinutes),
		nullableInt(e.TotalTimeMinutes),
		e.Protocol,
		marshalJSON(e.Observations, "[]"),
		marshalJSON(e.Outcomes, "{}"),
		marshalJSON(e.Scheduling, "{}"),
		marshalJSON(e.Links, "[]"),
		marshalJSON(e.AIMetadata, "{}"),
		nullableString(e.GitCommitSHA),
		nullableString(e.GitFilePath),
		e.ViewCount,
		nullableFloat(e.SuccessRate),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry reads one row in entryColumns order. The id parameter is used
// only for the not-found error message.
func scanEntry(rs rowScanner, id string) (*models.Entry, error) {
	var (
		e             models.Entry
		tags, gearIDs string
		observations  string
		outcomes      string
		scheduling    string
		links         string
		aiMetadata    string
		servings      sql.NullInt64
		dinnerTime    sql.NullTime
		cookingMethod sql.NullString
		difficulty    sql.NullInt64
		prepTime      sql.NullInt64
		cookTime      sql.NullInt64
		totalTime     sql.NullInt64
		gitSHA        sql.NullString
		gitPath       sql.NullString
		successRate   sql.NullFloat64
	)
	err := rs.Scan(
		&e.ID, &e.Version, &e.CreatedAt, &e.UpdatedAt, &e.Title, &e.Date,
		&tags, &gearIDs, &servings, &dinnerTime, &cookingMethod, &difficulty,
		&prepTime, &cookTime, &totalTime, &e.Protocol, &observations,
		&outcomes, &scheduling, &links, &aiMetadata, &gitSHA, &gitPath,
		&e.ViewCount, &successRate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if id == "" {
				return nil, apperr.ErrNotFound
			}
			return nil, fmt.Errorf("store: entry %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("store: scan entry: %w", err)
	}

	for _, field := range []struct {
		raw  string
		dest any
	}{
		{tags, &e.Tags},
		{gearIDs, &e.GearIDs},
		{observations, &e.Observations},
		{outcomes, &e.Outcomes},
		{scheduling, &e.Scheduling},
		{links, &e.Links},
		{aiMetadata, &e.AIMetadata},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return nil, fmt.Errorf("store: decode entry %s: %w", e.ID, err)
		}
	}

	e.Servings = intPtr(servings)
	e.DifficultyLevel = intPtr(difficulty)
	e.PrepTimeMinutes = intPtr(prepTime)
	e.CookTimeMinutes = intPtr(cookTime)
	e.TotalTimeMinutes = intPtr(totalTime)
	e.CookingMethod = cookingMethod.String
	e.GitCommitSHA = gitSHA.String
	e.GitFilePath = gitPath.String
	if dinnerTime.Valid {
		t := dinnerTime.Time
		e.DinnerTime = &t
	}
	if successRate.Valid {
		v := successRate.Float64
		e.SuccessRate = &v
	}
	return &e, nil
}

func marshalJSON(v any, empty string) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
