package intervene

import (
	"context"
	"database/sql"
	"fmt"

	"mira/internal/model"
	"mira/internal/store"
)

// missingDocFindings surfaces exported symbols with no documentation
// comment, per spec.md §4.9's "missing documentation" tasks. Capped at
// one finding per file to avoid flooding the queue with every bare
// function in a large undocumented file.
func (q *Queue) missingDocFindings(ctx context.Context, projectID int64) ([]PendingIntervention, error) {
	return store.Interact(ctx, q.db, "intervene.missingDocFindings", func(ctx context.Context, db *sql.DB) ([]PendingIntervention, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT file_path, COUNT(*) FROM code_symbols
			WHERE project_id = ? AND visibility IN ('public', 'exported')
			  AND (documentation IS NULL OR documentation = '')
			  AND is_test = 0
			GROUP BY file_path
			ORDER BY COUNT(*) DESC
			LIMIT 5`, projectID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []PendingIntervention
		for rows.Next() {
			var file string
			var count int
			if err := rows.Scan(&file, &count); err != nil {
				return nil, err
			}
			out = append(out, PendingIntervention{
				Type:       model.InterventionMissingDoc,
				Summary:    fmt.Sprintf("%s has %d undocumented exported symbol(s)", file, count),
				IconHint:   "book",
				Confidence: 0.6,
			})
		}
		return out, rows.Err()
	})
}

// staleDocFindings surfaces symbols whose signature changed since the
// last time this package recorded it. The last-known signature is
// cached in behavior_patterns (pattern_type = "doc_signature", keyed by
// qualified_name) since there is no dedicated signature-history table;
// the first observation of a symbol seeds the cache without flagging
// it stale.
func (q *Queue) staleDocFindings(ctx context.Context, projectID int64) ([]PendingIntervention, error) {
	return store.InteractTx(ctx, q.db, "intervene.staleDocFindings", func(ctx context.Context, tx *sql.Tx) ([]PendingIntervention, error) {
		rows, err := tx.QueryContext(ctx, `
			SELECT qualified_name, signature FROM code_symbols
			WHERE project_id = ? AND signature IS NOT NULL AND documentation IS NOT NULL AND documentation != ''
			LIMIT 500`, projectID)
		if err != nil {
			return nil, err
		}
		type symSig struct{ name, sig string }
		var symbols []symSig
		for rows.Next() {
			var s symSig
			if err := rows.Scan(&s.name, &s.sig); err != nil {
				rows.Close()
				return nil, err
			}
			symbols = append(symbols, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		var out []PendingIntervention
		for _, s := range symbols {
			var cached string
			err := tx.QueryRowContext(ctx, `
				SELECT payload FROM behavior_patterns
				WHERE project_id = ? AND pattern_type = 'doc_signature' AND pattern_key = ?`,
				projectID, s.name).Scan(&cached)
			switch {
			case err == sql.ErrNoRows:
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO behavior_patterns(project_id, pattern_type, pattern_key, payload, confidence)
					VALUES (?, 'doc_signature', ?, ?, 1.0)`, projectID, s.name, s.sig); err != nil {
					return nil, err
				}
			case err != nil:
				return nil, err
			case cached != s.sig:
				if _, err := tx.ExecContext(ctx, `
					UPDATE behavior_patterns SET payload = ?, last_triggered = CURRENT_TIMESTAMP
					WHERE project_id = ? AND pattern_type = 'doc_signature' AND pattern_key = ?`,
					s.sig, projectID, s.name); err != nil {
					return nil, err
				}
				out = append(out, PendingIntervention{
					Type:       model.InterventionStaleDoc,
					Summary:    fmt.Sprintf("%s's signature changed; its documentation may be stale", s.name),
					IconHint:   "alert",
					Confidence: 0.55,
				})
				if len(out) >= 5 {
					break
				}
			}
		}
		return out, nil
	})
}
