// Package intervene implements the intervention queue from spec.md
// §4.9: a gated, rate-limited surface of proactive suggestions drawn
// from ponder's behavior_patterns plus stale/missing-documentation
// findings, and the confidence feedback loop on user response.
//
// Grounded on internal/recall's budget-and-trim idiom (cap the output
// set, prefer the strongest signal) and internal/memory's keyed-upsert
// style for the response-driven confidence update.
package intervene

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mira/internal/logging"
	"mira/internal/merr"
	"mira/internal/model"
	"mira/internal/store"
)

// Config mirrors config.InterventionConfig.
type Config struct {
	ConfidenceThreshold float64
	CooldownMinutes     int
	HourlyCap           int
	RecencyWindowDays   int
	MaxQueueSize        int
}

// Queue is the intervention queue, backed by the persistence layer.
type Queue struct {
	db  *store.Store
	cfg Config
}

// New wraps a persistence-layer Store as an intervention queue.
func New(db *store.Store, cfg Config) *Queue { return &Queue{db: db, cfg: cfg} }

// PendingIntervention is one surfaced suggestion, not yet persisted
// until Enqueue writes it.
type PendingIntervention struct {
	Type             model.InterventionType
	Summary          string
	IconHint         string
	Confidence       float64
	SourcePatternID  *int64
}

// Build computes up to Config.MaxQueueSize pending interventions for a
// project, subject to the per-project cooldown and hourly cap, per
// spec.md §4.9.
func (q *Queue) Build(ctx context.Context, projectID int64) ([]PendingIntervention, error) {
	onCooldown, err := q.onCooldown(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if onCooldown {
		return nil, nil
	}
	remaining, err := q.hourlyBudgetRemaining(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		return nil, nil
	}

	var out []PendingIntervention

	patterns, err := q.eligiblePatterns(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, p := range patterns {
		out = append(out, fromPattern(p))
	}

	missing, err := q.missingDocFindings(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out = append(out, missing...)

	stale, err := q.staleDocFindings(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out = append(out, stale...)

	limit := q.cfg.MaxQueueSize
	if limit <= 0 {
		limit = 5
	}
	if limit > remaining {
		limit = remaining
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *Queue) onCooldown(ctx context.Context, projectID int64) (bool, error) {
	cooldown := time.Duration(q.cfg.CooldownMinutes) * time.Minute
	return store.Interact(ctx, q.db, "intervene.onCooldown", func(ctx context.Context, db *sql.DB) (bool, error) {
		var lastShown time.Time
		err := db.QueryRowContext(ctx, `
			SELECT created_at FROM proactive_interventions
			WHERE project_id = ? ORDER BY created_at DESC LIMIT 1`, projectID).Scan(&lastShown)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return time.Since(lastShown) < cooldown, nil
	})
}

func (q *Queue) hourlyBudgetRemaining(ctx context.Context, projectID int64) (int, error) {
	hourlyCap := q.cfg.HourlyCap
	if hourlyCap <= 0 {
		hourlyCap = 3
	}
	return store.Interact(ctx, q.db, "intervene.hourlyBudgetRemaining", func(ctx context.Context, db *sql.DB) (int, error) {
		var count int
		if err := db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM proactive_interventions
			WHERE project_id = ? AND created_at >= datetime('now', '-1 hour')`, projectID).Scan(&count); err != nil {
			return 0, err
		}
		remaining := hourlyCap - count
		if remaining < 0 {
			remaining = 0
		}
		return remaining, nil
	})
}

type eligiblePattern struct {
	id          int64
	patternType string
	payload     string
	confidence  float64
}

// eligiblePatterns implements spec.md §4.9's input gate: confidence >=
// threshold, last_triggered within the recency window, and no
// intervention produced from this pattern in the last 24h.
func (q *Queue) eligiblePatterns(ctx context.Context, projectID int64) ([]eligiblePattern, error) {
	days := q.cfg.RecencyWindowDays
	if days <= 0 {
		days = 7
	}
	return store.Interact(ctx, q.db, "intervene.eligiblePatterns", func(ctx context.Context, db *sql.DB) ([]eligiblePattern, error) {
		rows, err := db.QueryContext(ctx, fmt.Sprintf(`
			SELECT bp.id, bp.pattern_type, bp.payload, bp.confidence
			FROM behavior_patterns bp
			WHERE bp.project_id = ?
			  AND bp.confidence >= ?
			  AND bp.last_triggered >= datetime('now', '-%d days')
			  AND NOT EXISTS (
			    SELECT 1 FROM proactive_interventions pi
			    WHERE pi.trigger_pattern_id = bp.id
			      AND pi.created_at >= datetime('now', '-24 hours')
			  )
			ORDER BY bp.confidence DESC`, days), projectID, q.cfg.ConfidenceThreshold)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []eligiblePattern
		for rows.Next() {
			var p eligiblePattern
			if err := rows.Scan(&p.id, &p.patternType, &p.payload, &p.confidence); err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, rows.Err()
	})
}

// fromPattern maps a ponder pattern_type onto an InterventionType and a
// human-readable summary. friction patterns read as bug-risk warnings;
// focus-area and llm-sourced patterns read as context predictions.
func fromPattern(p eligiblePattern) PendingIntervention {
	id := p.id
	switch p.patternType {
	case "friction":
		return PendingIntervention{
			Type: model.InterventionBugWarning, Summary: p.payload, IconHint: "warning",
			Confidence: p.confidence, SourcePatternID: &id,
		}
	default:
		return PendingIntervention{
			Type: model.InterventionContextPrediction, Summary: p.payload, IconHint: "lightbulb",
			Confidence: p.confidence, SourcePatternID: &id,
		}
	}
}

// Enqueue persists a computed PendingIntervention so future Build calls
// see it for cooldown/hourly-cap accounting.
func (q *Queue) Enqueue(ctx context.Context, projectID int64, p PendingIntervention) (int64, error) {
	return store.Interact(ctx, q.db, "intervene.Enqueue", func(ctx context.Context, db *sql.DB) (int64, error) {
		res, err := db.ExecContext(ctx, `
			INSERT INTO proactive_interventions(project_id, type, content, confidence, trigger_pattern_id)
			VALUES (?, ?, ?, ?, ?)`,
			projectID, string(p.Type), p.Summary, p.Confidence, p.SourcePatternID)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
}

// Respond records a user's reaction to a surfaced intervention and
// adjusts the source pattern's confidence by the response multiplier,
// clamped to [0.1, 1.0], per spec.md §4.9.
func (q *Queue) Respond(ctx context.Context, interventionID int64, response model.InterventionResponse) error {
	_, err := store.InteractTx(ctx, q.db, "intervene.Respond", func(ctx context.Context, tx *sql.Tx) (struct{}, error) {
		var zero struct{}
		var triggerPatternID sql.NullInt64
		if err := tx.QueryRowContext(ctx, `
			SELECT trigger_pattern_id FROM proactive_interventions WHERE id = ?`, interventionID).
			Scan(&triggerPatternID); err != nil {
			if err == sql.ErrNoRows {
				return zero, merr.NotFoundf("intervene.Respond", "intervention %d not found", interventionID)
			}
			return zero, err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE proactive_interventions SET response = ?, responded_at = CURRENT_TIMESTAMP WHERE id = ?`,
			string(response), interventionID); err != nil {
			return zero, err
		}

		if !triggerPatternID.Valid {
			return zero, nil
		}
		var confidence float64
		if err := tx.QueryRowContext(ctx, `SELECT confidence FROM behavior_patterns WHERE id = ?`, triggerPatternID.Int64).
			Scan(&confidence); err != nil {
			return zero, err
		}
		newConf := model.ClampConfidence(confidence * model.ResponseMultiplier(response))
		_, err := tx.ExecContext(ctx, `UPDATE behavior_patterns SET confidence = ? WHERE id = ?`, newConf, triggerPatternID.Int64)
		return zero, err
	})
	if err == nil {
		logging.Intervene("intervention %d responded %s", interventionID, response)
	}
	return err
}
