// Package ponder implements the pattern miner from spec.md §4.7: a
// periodic, idle-triggered pass over recent activity that distills
// friction and focus-area patterns, optionally through an external LLM,
// and writes them back as behavior_patterns plus low-confidence facts.
//
// Grounded on internal/recall's parallel-pipeline-over-a-store idiom for
// pulling evidence, and on internal/memory's keyed-upsert pattern for
// writing behavior_patterns by a stable key.
package ponder

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mira/internal/llm"
	"mira/internal/logging"
	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/store"
)

// Config mirrors config.PonderConfig, passed in by the caller rather
// than imported directly (internal/recall does the same for its Config).
type Config struct {
	IdleMinutes      int
	CooldownHours    int
	FrictionMinCalls int
	FrictionMinRate  float64
	HeuristicConfCap float64
}

// Miner is the pattern miner, backed by the persistence layer.
type Miner struct {
	db    *store.Store
	facts *memory.Store
	chat  llm.Chatter // optional; nil means heuristic-only
	cfg   Config
}

// New wraps a persistence-layer Store and fact store as a pattern miner.
// chat may be nil, in which case insights are always heuristic.
func New(db *store.Store, facts *memory.Store, chat llm.Chatter, cfg Config) *Miner {
	return &Miner{db: db, facts: facts, chat: chat, cfg: cfg}
}

// Insight is one distilled observation, either heuristic or LLM-produced.
type Insight struct {
	Kind        string // "friction" or "focus_area" or "llm"
	Description string
	Confidence  float64
}

// Result is what one Run call produced.
type Result struct {
	Skipped    bool // cooldown still active
	Insights   []Insight
	PatternIDs []int64
}

// Run executes one pondering pass for a project, subject to the
// per-project cooldown (spec.md §4.7: "per-project cooldown of >= 6
// hours since last run").
func (m *Miner) Run(ctx context.Context, projectID int64) (*Result, error) {
	onCooldown, err := m.onCooldown(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if onCooldown {
		return &Result{Skipped: true}, nil
	}

	friction, err := m.frictionPatterns(ctx, projectID)
	if err != nil {
		return nil, err
	}
	focusAreas, err := m.focusAreas(ctx, projectID)
	if err != nil {
		return nil, err
	}

	insights := m.heuristicInsights(friction, focusAreas)
	if m.chat != nil {
		if llmInsights, err := m.llmInsights(ctx, friction, focusAreas); err != nil {
			logging.PonderDebug("llm insight generation failed, falling back to heuristic: %v", err)
		} else if len(llmInsights) > 0 {
			insights = llmInsights
		}
	}

	var ids []int64
	for _, ins := range insights {
		id, err := m.upsertPattern(ctx, projectID, ins)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		if _, err := m.facts.Store(ctx, memory.StoreParams{
			ProjectID:  &projectID,
			Content:    ins.Description,
			FactType:   "pattern_insight",
			Confidence: ins.Confidence,
			Scope:      model.ScopeProject,
		}); err != nil {
			return nil, err
		}
	}

	if err := m.markRun(ctx, projectID); err != nil {
		return nil, err
	}

	logging.Ponder("ponder run for project %d produced %d insights", projectID, len(insights))
	return &Result{Insights: insights, PatternIDs: ids}, nil
}

func (m *Miner) onCooldown(ctx context.Context, projectID int64) (bool, error) {
	key := fmt.Sprintf("ponder:last_run:%d", projectID)
	return store.Interact(ctx, m.db, "ponder.onCooldown", func(ctx context.Context, db *sql.DB) (bool, error) {
		var value string
		err := db.QueryRowContext(ctx, `SELECT value FROM server_state WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		last, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return false, nil
		}
		return time.Since(last) < time.Duration(m.cfg.CooldownHours)*time.Hour, nil
	})
}

func (m *Miner) markRun(ctx context.Context, projectID int64) error {
	key := fmt.Sprintf("ponder:last_run:%d", projectID)
	_, err := store.Interact(ctx, m.db, "ponder.markRun", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO server_state(key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, time.Now().UTC().Format(time.RFC3339))
		return struct{}{}, err
	})
	return err
}

// FrictionPattern is a tool whose recent failure rate crossed the
// configured threshold.
type FrictionPattern struct {
	ToolName    string
	TotalCalls  int
	FailureRate float64
}

func (m *Miner) frictionPatterns(ctx context.Context, projectID int64) ([]FrictionPattern, error) {
	return store.Interact(ctx, m.db, "ponder.frictionPatterns", func(ctx context.Context, db *sql.DB) ([]FrictionPattern, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT tool_name,
			       COUNT(*) AS total,
			       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) AS failures
			FROM tool_invocations
			WHERE project_id = ? AND created_at >= datetime('now', '-24 hours')
			GROUP BY tool_name
			ORDER BY total DESC
			LIMIT 100`, projectID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []FrictionPattern
		for rows.Next() {
			var name string
			var total, failures int
			if err := rows.Scan(&name, &total, &failures); err != nil {
				return nil, err
			}
			rate := 0.0
			if total > 0 {
				rate = float64(failures) / float64(total)
			}
			if total >= m.cfg.FrictionMinCalls && rate >= m.cfg.FrictionMinRate {
				out = append(out, FrictionPattern{ToolName: name, TotalCalls: total, FailureRate: rate})
			}
		}
		return out, rows.Err()
	})
}

// FocusArea is a fact category with high recent activity.
type FocusArea struct {
	Category string
	Count    int
}

func (m *Miner) focusAreas(ctx context.Context, projectID int64) ([]FocusArea, error) {
	return store.Interact(ctx, m.db, "ponder.focusAreas", func(ctx context.Context, db *sql.DB) ([]FocusArea, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT COALESCE(category, 'uncategorized') AS cat, COUNT(*) AS n
			FROM memory_facts
			WHERE project_id = ? AND updated_at >= datetime('now', '-7 days') AND status != 'archived'
			GROUP BY cat
			ORDER BY n DESC
			LIMIT 10`, projectID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []FocusArea
		for rows.Next() {
			var fa FocusArea
			if err := rows.Scan(&fa.Category, &fa.Count); err != nil {
				return nil, err
			}
			out = append(out, fa)
		}
		return out, rows.Err()
	})
}

func (m *Miner) heuristicInsights(friction []FrictionPattern, focus []FocusArea) []Insight {
	var out []Insight
	for _, f := range friction {
		conf := capConfidence(0.5+f.FailureRate*0.5, m.cfg.HeuristicConfCap)
		out = append(out, Insight{
			Kind: "friction",
			Description: fmt.Sprintf("%q failed %.0f%% of %d calls in the last 24h",
				f.ToolName, f.FailureRate*100, f.TotalCalls),
			Confidence: conf,
		})
	}
	if len(focus) > 0 {
		top := focus[0]
		out = append(out, Insight{
			Kind:        "focus_area",
			Description: fmt.Sprintf("most activity this week is in %q facts (%d updated)", top.Category, top.Count),
			Confidence:  capConfidence(0.4+float64(top.Count)*0.02, m.cfg.HeuristicConfCap),
		})
	}
	return out
}

func capConfidence(c, ceiling float64) float64 {
	if ceiling <= 0 {
		ceiling = 0.85
	}
	if c > ceiling {
		return ceiling
	}
	if c < 0.1 {
		return 0.1
	}
	return c
}

// llmInsights asks the configured chat model for 1-3 insights from the
// summarized evidence, per spec.md §4.7 step 4. Confidence for an
// LLM-sourced insight is not heuristic-capped, since it reflects the
// model's own judgment rather than the fallback formula.
func (m *Miner) llmInsights(ctx context.Context, friction []FrictionPattern, focus []FocusArea) ([]Insight, error) {
	var sb strings.Builder
	sb.WriteString("Summarize 1-3 behavioral insights from this evidence as a JSON array of {\"description\":string,\"confidence\":number 0-1}.\n\n")
	sb.WriteString("Friction:\n")
	for _, f := range friction {
		fmt.Fprintf(&sb, "- %s: %d calls, %.0f%% failure\n", f.ToolName, f.TotalCalls, f.FailureRate*100)
	}
	sb.WriteString("Focus areas:\n")
	for _, fa := range focus {
		fmt.Fprintf(&sb, "- %s: %d updates\n", fa.Category, fa.Count)
	}

	text, _, _, err := m.chat.Chat(ctx, []llm.Message{{Role: "user", Content: sb.String()}}, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Description string  `json:"description"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse llm insight response: %w", err)
	}

	var out []Insight
	for i, r := range raw {
		if i >= 3 {
			break
		}
		out = append(out, Insight{Kind: "llm", Description: r.Description, Confidence: capConfidence(r.Confidence, 1.0)})
	}
	return out, nil
}

// upsertPattern implements spec.md §4.7 step 5: keyed by a SHA-derived
// 16-char hex of the description, occurrence_count increments, and
// confidence moves toward the new reading by averaging.
func (m *Miner) upsertPattern(ctx context.Context, projectID int64, ins Insight) (int64, error) {
	key := patternKey(ins.Description)
	payload, err := json.Marshal(ins)
	if err != nil {
		return 0, err
	}

	return store.InteractTx(ctx, m.db, "ponder.upsertPattern", func(ctx context.Context, tx *sql.Tx) (int64, error) {
		var id int64
		var existingConf float64
		var occurrences int
		err := tx.QueryRowContext(ctx, `
			SELECT id, confidence, occurrence_count FROM behavior_patterns
			WHERE project_id = ? AND pattern_type = ? AND pattern_key = ?`,
			projectID, ins.Kind, key).Scan(&id, &existingConf, &occurrences)
		switch {
		case err == nil:
			newConf := (existingConf + ins.Confidence) / 2
			if _, err := tx.ExecContext(ctx, `
				UPDATE behavior_patterns
				SET confidence = ?, occurrence_count = ?, last_triggered = CURRENT_TIMESTAMP, payload = ?
				WHERE id = ?`, newConf, occurrences+1, string(payload), id); err != nil {
				return 0, err
			}
			return id, nil
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO behavior_patterns(project_id, pattern_type, pattern_key, payload, confidence)
				VALUES (?, ?, ?, ?, ?)`,
				projectID, ins.Kind, key, string(payload), ins.Confidence)
			if err != nil {
				return 0, err
			}
			return res.LastInsertId()
		default:
			return 0, err
		}
	})
}

func patternKey(description string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(description)))
	return hex.EncodeToString(sum[:])[:16]
}
