// Package memory implements the fact store: scope- and project-aware
// CRUD over memory_facts with keyed upsert, lifecycle, and both keyword
// and semantic recall. Grounded on spec.md §4.2 and, for query-building
// idiom, on the teacher's internal/store query-assembly style.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mira/internal/logging"
	"mira/internal/merr"
	"mira/internal/model"
	"mira/internal/store"
)

// Store is the fact store, backed by the persistence layer.
type Store struct {
	db    *store.Store
	embed EmbedWriter
	vec   *store.VectorIndex
}

// New wraps a persistence-layer Store as a fact store.
func New(db *store.Store) *Store { return &Store{db: db} }

// EmbedWriter is the narrow fire-and-forget hook Store.Store fires after
// every successful write, per spec.md §4.3: "after a fact is stored,
// enqueue an embedding task; on success, upsert (fact_id, vector)".
// *embedding.Service satisfies this without memory needing to import it.
type EmbedWriter interface {
	EnqueueWrite(id int64, text string, target *store.VectorIndex)
}

// SetEmbedding wires the async write hook, enabling recall_semantic over
// facts. Both embed and vi are optional; leaving either nil keeps the
// store keyword-search-only, matching the embedding package's own
// NullEngine degradation.
func (s *Store) SetEmbedding(embed EmbedWriter, vi *store.VectorIndex) {
	s.embed = embed
	s.vec = vi
}

// StoreParams is the input to Store.Store, mirroring spec.md §4.2.
type StoreParams struct {
	ProjectID  *int64
	Key        *string
	Content    string
	FactType   string
	Category   *string
	Confidence float64
	SessionID  *string
	UserID     *string
	Scope      model.Scope
	Branch     *string
	TeamID     *int64
	Suspicious bool
}

func (p StoreParams) validate() error {
	if p.Content == "" {
		return merr.BadRequestf("memory.Store", "content is required")
	}
	if p.FactType == "" {
		return merr.BadRequestf("memory.Store", "fact_type is required")
	}
	switch p.Scope {
	case model.ScopePersonal:
		if p.UserID == nil || *p.UserID == "" {
			return merr.BadRequestf("memory.Store", "scope=personal requires user_id")
		}
	case model.ScopeTeam:
		if p.TeamID == nil {
			return merr.BadRequestf("memory.Store", "scope=team requires team_id")
		}
	case model.ScopeProject, model.ScopeGlobal:
		// no extra requirement
	default:
		return merr.BadRequestf("memory.Store", "unknown scope %q", p.Scope)
	}
	return nil
}

// Store inserts or, when Key is set, upserts a fact within the exact
// (project, scope, user, team) tuple. See spec.md §4.2 "Keyed upsert
// semantics" and the confidence-blend rule resolved in spec.md §9:
// new_confidence = min(0.99, average(old, incoming)).
func (s *Store) Store(ctx context.Context, p StoreParams) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	id, err := store.InteractTx(ctx, s.db, "memory.Store", func(ctx context.Context, tx *sql.Tx) (int64, error) {
		if p.Key != nil {
			id, updated, err := s.tryUpdate(ctx, tx, p)
			if err != nil {
				return 0, err
			}
			if updated {
				return id, nil
			}
		}
		return s.insert(ctx, tx, p)
	})
	if err != nil {
		return 0, err
	}
	if s.embed != nil && s.vec != nil {
		s.embed.EnqueueWrite(id, p.Content, s.vec)
	}
	return id, nil
}

func (s *Store) tryUpdate(ctx context.Context, tx *sql.Tx, p StoreParams) (int64, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, confidence, session_count, last_session_id
		FROM memory_facts
		WHERE project_id IS ? AND key = ? AND scope = ?
		  AND COALESCE(user_id,'') = COALESCE(?, '')
		  AND COALESCE(team_id,0) = COALESCE(?, 0)
	`, p.ProjectID, *p.Key, string(p.Scope), p.UserID, p.TeamID)

	var id int64
	var oldConfidence float64
	var sessionCount int
	var lastSessionID sql.NullString
	if err := row.Scan(&id, &oldConfidence, &sessionCount, &lastSessionID); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}

	newConfidence := blendConfidence(oldConfidence, p.Confidence)
	if p.SessionID != nil && (!lastSessionID.Valid || lastSessionID.String != *p.SessionID) {
		sessionCount++
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE memory_facts
		SET content = ?, fact_type = ?, category = ?, confidence = ?,
		    branch = ?, suspicious = ?, session_count = ?, last_session_id = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Content, p.FactType, p.Category, newConfidence, p.Branch, p.Suspicious, sessionCount, p.SessionID, id)
	if err != nil {
		return 0, false, err
	}
	logging.MemoryDebug("keyed upsert updated fact %d (confidence %.3f -> %.3f)", id, oldConfidence, newConfidence)
	return id, true, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, p StoreParams) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO memory_facts(
			project_id, key, content, fact_type, category, confidence, scope,
			user_id, team_id, branch, status, suspicious, session_count,
			first_session_id, last_session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'candidate', ?, ?, ?, ?)
	`,
		p.ProjectID, p.Key, p.Content, p.FactType, p.Category, p.Confidence, string(p.Scope),
		p.UserID, p.TeamID, p.Branch, p.Suspicious, sessionCountFor(p.SessionID),
		p.SessionID, p.SessionID,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.MemoryDebug("inserted fact %d (type=%s scope=%s)", id, p.FactType, p.Scope)
	return id, nil
}

func sessionCountFor(sessionID *string) int {
	if sessionID == nil {
		return 0
	}
	return 1
}

// blendConfidence implements spec.md §9's resolution of the reinforcement
// rule: average of old and incoming, capped at 0.99.
func blendConfidence(old, incoming float64) float64 {
	avg := (old + incoming) / 2
	if avg > 0.99 {
		return 0.99
	}
	return avg
}

// scopeFilter builds the canonical WHERE fragment from spec.md §4.2 plus
// its bound args, in the order they appear.
func scopeFilter(projectID *int64, userID *string, teamID *int64) (string, []any) {
	return `(project_id IS ? OR project_id IS NULL)
		AND (scope = 'project'
		     OR scope = 'global'
		     OR (scope = 'personal' AND user_id = ?)
		     OR (scope = 'team' AND team_id = ?))
		AND status != 'archived'
		AND suspicious = 0`, []any{projectID, userID, teamID}
}

// Search returns facts visible to the given identity, ranked by how many
// of the query's tokens longer than 3 characters their content contains;
// facts matching no token are still returned, ranked last. When the
// query has no such token, only facts whose content contains the whole
// query (LIKE) are returned.
func (s *Store) Search(ctx context.Context, projectID *int64, query string, userID *string, teamID *int64, limit int) ([]model.Fact, error) {
	tokens := keywordTokens(query)
	filter, args := scopeFilter(projectID, userID, teamID)

	var sqlStr string
	if len(tokens) == 0 {
		sqlStr = fmt.Sprintf(`
			SELECT %s FROM memory_facts
			WHERE %s AND content LIKE ?
			ORDER BY confidence DESC, updated_at DESC
			LIMIT ?`, factColumns, filter)
		args = append(args, "%"+query+"%", limit)
	} else {
		caseExpr, caseArgs := matchCountExpr(tokens)
		sqlStr = fmt.Sprintf(`
			SELECT %s, (%s) AS match_count FROM memory_facts
			WHERE %s
			ORDER BY match_count DESC, confidence DESC, updated_at DESC
			LIMIT ?`, factColumns, caseExpr, filter)
		args = append(args, caseArgs...)
		args = append(args, limit)
	}

	return store.Interact(ctx, s.db, "memory.Search", func(ctx context.Context, db *sql.DB) ([]model.Fact, error) {
		rows, err := db.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanFacts(rows, len(tokens) > 0)
	})
}

func keywordTokens(query string) []string {
	var out []string
	for _, tok := range strings.Fields(query) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		if len(tok) > 3 {
			out = append(out, tok)
		}
	}
	return out
}

func matchCountExpr(tokens []string) (string, []any) {
	parts := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, "CASE WHEN content LIKE ? THEN 1 ELSE 0 END")
		args = append(args, "%"+t+"%")
	}
	return strings.Join(parts, " + "), args
}

const factColumns = `id, project_id, key, content, fact_type, category, confidence, scope,
	user_id, team_id, branch, status, suspicious, session_count,
	first_session_id, last_session_id, last_recalled, recall_count, created_at, updated_at`

func scanFacts(rows *sql.Rows, hasMatchCount bool) ([]model.Fact, error) {
	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		var scope, status string
		var suspicious int
		var lastRecalled sql.NullTime
		dest := []any{
			&f.ID, &f.ProjectID, &f.Key, &f.Content, &f.FactType, &f.Category, &f.Confidence, &scope,
			&f.UserID, &f.TeamID, &f.Branch, &status, &suspicious, &f.SessionCount,
			&f.FirstSessionID, &f.LastSessionID, &lastRecalled, &f.RecallCount, &f.CreatedAt, &f.UpdatedAt,
		}
		if hasMatchCount {
			var matchCount int
			dest = append(dest, &matchCount)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, merr.Fatalf("memory.scanFacts", err, "scan row")
		}
		f.Scope = model.Scope(scope)
		f.Status = model.FactStatus(status)
		f.Suspicious = suspicious != 0
		if lastRecalled.Valid {
			t := lastRecalled.Time
			f.LastRecalled = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecallSemantic returns facts nearest to embedding, filtered by the same
// visibility rules as Search, annotated with their vector distance.
func (s *Store) RecallSemantic(ctx context.Context, vi *store.VectorIndex, embedding []float32, projectID *int64, userID *string, teamID *int64, limit int) ([]FactDistance, error) {
	neighbors, err := vi.KNN(ctx, embedding, limit*3, nil) // overfetch, then scope-filter
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(neighbors))
	distByID := make(map[int64]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
		distByID[n.ID] = n.Distance
	}

	filter, args := scopeFilter(projectID, userID, teamID)
	placeholders := make([]string, len(ids))
	idArgs := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		idArgs[i] = id
	}
	sqlStr := fmt.Sprintf(`SELECT %s FROM memory_facts WHERE id IN (%s) AND %s`,
		factColumns, strings.Join(placeholders, ","), filter)
	allArgs := append(idArgs, args...)

	facts, err := store.Interact(ctx, s.db, "memory.RecallSemantic", func(ctx context.Context, db *sql.DB) ([]model.Fact, error) {
		rows, err := db.QueryContext(ctx, sqlStr, allArgs...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanFacts(rows, false)
	})
	if err != nil {
		return nil, err
	}

	out := make([]FactDistance, 0, len(facts))
	for _, f := range facts {
		out = append(out, FactDistance{Fact: f, Distance: distByID[f.ID]})
	}
	sortByDistance(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FactDistance pairs a Fact with its vector distance from a query.
type FactDistance struct {
	Fact     model.Fact
	Distance float64
}

func sortByDistance(fd []FactDistance) {
	for i := 1; i < len(fd); i++ {
		for j := i; j > 0 && fd[j].Distance < fd[j-1].Distance; j-- {
			fd[j], fd[j-1] = fd[j-1], fd[j]
		}
	}
}

// GetScope returns the scope tuple for a fact id.
func (s *Store) GetScope(ctx context.Context, factID int64) (*int64, model.Scope, *string, *int64, error) {
	type scopeRow struct {
		ProjectID *int64
		Scope     string
		UserID    *string
		TeamID    *int64
	}
	row, err := store.Interact(ctx, s.db, "memory.GetScope", func(ctx context.Context, db *sql.DB) (scopeRow, error) {
		var r scopeRow
		err := db.QueryRowContext(ctx, `SELECT project_id, scope, user_id, team_id FROM memory_facts WHERE id = ?`, factID).
			Scan(&r.ProjectID, &r.Scope, &r.UserID, &r.TeamID)
		if err == sql.ErrNoRows {
			return r, merr.NotFoundf("memory.GetScope", "fact %d not found", factID)
		}
		return r, err
	})
	if err != nil {
		return nil, "", nil, nil, err
	}
	return row.ProjectID, model.Scope(row.Scope), row.UserID, row.TeamID, nil
}

// SetStatus updates the lifecycle status of a fact.
func (s *Store) SetStatus(ctx context.Context, factID int64, status model.FactStatus) error {
	_, err := store.Interact(ctx, s.db, "memory.SetStatus", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		res, err := db.ExecContext(ctx, `UPDATE memory_facts SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(status), factID)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, mustAffect(res, factID)
	})
	return err
}

// SetSuspicious flags or unflags a fact.
func (s *Store) SetSuspicious(ctx context.Context, factID int64, suspicious bool) error {
	_, err := store.Interact(ctx, s.db, "memory.SetSuspicious", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		res, err := db.ExecContext(ctx, `UPDATE memory_facts SET suspicious = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, suspicious, factID)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, mustAffect(res, factID)
	})
	return err
}

// Delete removes a fact permanently.
func (s *Store) Delete(ctx context.Context, factID int64) error {
	_, err := store.Interact(ctx, s.db, "memory.Delete", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		res, err := db.ExecContext(ctx, `DELETE FROM memory_facts WHERE id = ?`, factID)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, mustAffect(res, factID)
	})
	return err
}

// MarkRecalled bumps last_recalled and recall_count for a fact.
func (s *Store) MarkRecalled(ctx context.Context, factID int64) error {
	_, err := store.Interact(ctx, s.db, "memory.MarkRecalled", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`UPDATE memory_facts SET last_recalled = ?, recall_count = recall_count + 1 WHERE id = ?`,
			time.Now().UTC(), factID)
		return struct{}{}, err
	})
	return err
}

func mustAffect(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return merr.NotFoundf("memory", "fact %d not found", id)
	}
	return nil
}

// ListByCategory returns a project's visible facts in one category,
// most recently updated first (SPEC_FULL.md §4, supplemented operation).
// The pondering module's focus-area step runs its own grouping query
// and does not call it.
func (s *Store) ListByCategory(ctx context.Context, projectID int64, category string, limit int) ([]model.Fact, error) {
	sqlStr := fmt.Sprintf(`SELECT %s FROM memory_facts
		WHERE project_id = ? AND category = ? AND status != 'archived' AND suspicious = 0
		ORDER BY updated_at DESC LIMIT ?`, factColumns)
	return store.Interact(ctx, s.db, "memory.ListByCategory", func(ctx context.Context, db *sql.DB) ([]model.Fact, error) {
		rows, err := db.QueryContext(ctx, sqlStr, projectID, category, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanFacts(rows, false)
	})
}

// CrossProjectPreferences returns facts with the given key from any
// project, for surfacing as "you usually prefer X" suggestions in a new
// project. Per spec.md §9 resolved symmetrically: excludes a preference
// if either the current project's copy (projectID) or the other project's
// copy is archived or suspicious.
func (s *Store) CrossProjectPreferences(ctx context.Context, projectID int64, key string, userID *string) ([]model.Fact, error) {
	sqlStr := fmt.Sprintf(`
		SELECT %s FROM memory_facts
		WHERE key = ? AND status != 'archived' AND suspicious = 0
		  AND (scope = 'personal' AND user_id = ? OR scope = 'global')
		  AND project_id != ?
		  AND NOT EXISTS (
		    SELECT 1 FROM memory_facts same
		    WHERE same.project_id = ? AND same.key = ?
		      AND (same.status = 'archived' OR same.suspicious = 1)
		  )
		ORDER BY confidence DESC, updated_at DESC
	`, factColumns)
	return store.Interact(ctx, s.db, "memory.CrossProjectPreferences", func(ctx context.Context, db *sql.DB) ([]model.Fact, error) {
		rows, err := db.QueryContext(ctx, sqlStr, key, userID, projectID, projectID, key)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanFacts(rows, false)
	})
}
