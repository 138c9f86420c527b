// Package hooks implements the five contract-only adapters from
// spec.md §4.10: pure boundary functions of the shape (event) -> (store
// writes, optional context blob), with no transport of their own
// (MCP/WebSocket transport is out of core scope per spec.md §1).
//
// Grounded on internal/recall's engine-wraps-store construction and on
// internal/ponder's direct-SQL-against-shared-tables idiom for the
// small goal/session reads that don't warrant their own package.
package hooks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mira/internal/logging"
	"mira/internal/memory"
	"mira/internal/merr"
	"mira/internal/model"
	"mira/internal/ponder"
	"mira/internal/store"
)

// Adapters is the hook boundary, backed by the persistence layer.
type Adapters struct {
	db     *store.Store
	facts  *memory.Store
	miner  *ponder.Miner // optional; nil disables team distillation on session_stop
}

// New wraps a persistence-layer Store, fact store, and optional pattern
// miner as the hook adapters. miner may be nil.
func New(db *store.Store, facts *memory.Store, miner *ponder.Miner) *Adapters {
	return &Adapters{db: db, facts: facts, miner: miner}
}

// ContextBlob is the small, ready-to-inject context payload the host
// assistant splices into a session or subagent prompt.
type ContextBlob struct {
	Text string
}

// SessionStart writes fresh goals/recent-memory recap into a returned
// context blob, per spec.md §4.10.
func (a *Adapters) SessionStart(ctx context.Context, sessionID string, projectID *int64) (ContextBlob, error) {
	if err := a.ensureSession(ctx, sessionID, projectID); err != nil {
		return ContextBlob{}, err
	}
	if projectID == nil {
		return ContextBlob{Text: "No active project."}, nil
	}

	goals, err := a.openGoals(ctx, *projectID, 5)
	if err != nil {
		return ContextBlob{}, err
	}
	recent, err := a.facts.Search(ctx, projectID, "", nil, nil, 5)
	if err != nil {
		return ContextBlob{}, err
	}

	var b strings.Builder
	if len(goals) > 0 {
		b.WriteString("Active goals:\n")
		for _, g := range goals {
			fmt.Fprintf(&b, "- %s (%d%%)\n", g.Title, g.ProgressPercent)
		}
	}
	if len(recent) > 0 {
		b.WriteString("Recent memory:\n")
		for _, f := range recent {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
	}
	if b.Len() == 0 {
		b.WriteString("No goals or memory recorded yet.")
	}
	return ContextBlob{Text: b.String()}, nil
}

// SessionStop updates last_activity and, when the session belonged to
// a team whose session has now ended, triggers team distillation.
func (a *Adapters) SessionStop(ctx context.Context, sessionID string, reason model.SessionEndReason) error {
	_, err := store.InteractTx(ctx, a.db, "hooks.SessionStop", func(ctx context.Context, tx *sql.Tx) (struct{}, error) {
		var zero struct{}
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET last_activity_at = CURRENT_TIMESTAMP, end_reason = ? WHERE id = ?`,
			string(reason), sessionID); err != nil {
			return zero, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE team_sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ? AND ended_at IS NULL`,
			sessionID); err != nil {
			return zero, err
		}
		return zero, nil
	})
	if err != nil {
		return err
	}

	if a.miner == nil {
		return nil
	}
	teamID, err := a.teamForSession(ctx, sessionID)
	if err != nil || teamID == nil {
		return err
	}
	if _, err := a.miner.DistillTeam(ctx, *teamID); err != nil {
		logging.HooksDebug("team distillation after session_stop failed: %v", err)
	}
	return nil
}

func (a *Adapters) teamForSession(ctx context.Context, sessionID string) (*int64, error) {
	return store.Interact(ctx, a.db, "hooks.teamForSession", func(ctx context.Context, db *sql.DB) (*int64, error) {
		var teamID int64
		err := db.QueryRowContext(ctx, `SELECT team_id FROM team_sessions WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID).Scan(&teamID)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &teamID, nil
	})
}

// SubagentStart returns a small context blob (<= ~500 tokens): active
// goals + recalled memories for the task description, per spec.md §4.10.
func (a *Adapters) SubagentStart(ctx context.Context, projectID *int64, taskDescription string) (ContextBlob, error) {
	if projectID == nil {
		return ContextBlob{}, nil
	}
	goals, err := a.openGoals(ctx, *projectID, 3)
	if err != nil {
		return ContextBlob{}, err
	}
	recalled, err := a.facts.Search(ctx, projectID, taskDescription, nil, nil, 5)
	if err != nil {
		return ContextBlob{}, err
	}

	var b strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&b, "Goal: %s\n", g.Title)
	}
	for _, f := range recalled {
		fmt.Fprintf(&b, "Memory: %s\n", f.Content)
	}
	return ContextBlob{Text: truncateToApproxTokens(b.String(), 500)}, nil
}

// SubagentStop extracts code entities from subagent output (and an
// optional JSONL transcript, validated to live under the user home
// directory or /tmp); if 3 or more distinct entities are found, writes
// one subagent_discovery fact, per spec.md §4.10.
func (a *Adapters) SubagentStop(ctx context.Context, projectID *int64, sessionID *string, output string, transcriptPath *string) (bool, error) {
	entities := extractEntities(output)

	if transcriptPath != nil && *transcriptPath != "" {
		if err := validateTranscriptPath(*transcriptPath); err != nil {
			return false, err
		}
		text, err := readTranscriptText(*transcriptPath)
		if err != nil {
			logging.HooksDebug("subagent_stop: could not read transcript %s: %v", *transcriptPath, err)
		} else {
			for e := range extractEntities(text) {
				entities[e] = true
			}
		}
	}

	if len(entities) < 3 {
		return false, nil
	}

	var names []string
	for e := range entities {
		names = append(names, e)
	}
	if _, err := a.facts.Store(ctx, memory.StoreParams{
		ProjectID:  projectID,
		Content:    fmt.Sprintf("subagent discovered: %s", strings.Join(names, ", ")),
		FactType:   "subagent_discovery",
		Confidence: 0.5,
		Scope:      model.ScopeProject,
		SessionID:  sessionID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// PreCompact persists pre-compaction context to survive the assistant's
// summarization, per spec.md §4.10. Keyed by session id in server_state
// since this is transient operational state, not a durable memory fact.
func (a *Adapters) PreCompact(ctx context.Context, sessionID, contextBlob string) error {
	key := "precompact:" + sessionID
	_, err := store.Interact(ctx, a.db, "hooks.PreCompact", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO server_state(key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, contextBlob)
		return struct{}{}, err
	})
	return err
}

// RecoverPreCompact returns context previously persisted by PreCompact,
// or "" if none exists.
func (a *Adapters) RecoverPreCompact(ctx context.Context, sessionID string) (string, error) {
	key := "precompact:" + sessionID
	return store.Interact(ctx, a.db, "hooks.RecoverPreCompact", func(ctx context.Context, db *sql.DB) (string, error) {
		var value string
		err := db.QueryRowContext(ctx, `SELECT value FROM server_state WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			return "", nil
		}
		return value, err
	})
}

func (a *Adapters) ensureSession(ctx context.Context, sessionID string, projectID *int64) error {
	if sessionID == "" {
		return merr.BadRequestf("hooks.SessionStart", "session_id is required")
	}
	_, err := store.Interact(ctx, a.db, "hooks.ensureSession", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions(id, project_id, started_at, last_activity_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET last_activity_at = excluded.last_activity_at`,
			sessionID, projectID, time.Now().UTC(), time.Now().UTC())
		return struct{}{}, err
	})
	return err
}

func (a *Adapters) openGoals(ctx context.Context, projectID int64, limit int) ([]model.Goal, error) {
	return store.Interact(ctx, a.db, "hooks.openGoals", func(ctx context.Context, db *sql.DB) ([]model.Goal, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT id, project_id, title, status, priority, progress_percent, created_at
			FROM goals WHERE project_id = ? AND status IN ('open', 'in_progress')
			ORDER BY priority DESC, created_at DESC LIMIT ?`, projectID, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []model.Goal
		for rows.Next() {
			var g model.Goal
			var status string
			if err := rows.Scan(&g.ID, &g.ProjectID, &g.Title, &status, &g.Priority, &g.ProgressPercent, &g.CreatedAt); err != nil {
				return nil, err
			}
			g.Status = model.GoalStatus(status)
			out = append(out, g)
		}
		return out, rows.Err()
	})
}

// truncateToApproxTokens trims text to roughly n tokens using the same
// len/4 character estimator internal/recall uses for its budget.
func truncateToApproxTokens(text string, n int) string {
	maxChars := n * 4
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}
