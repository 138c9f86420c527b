package recall

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"mira/internal/model"
	"mira/internal/store"
)

// CochangeSuggestion names a file that historically changes alongside
// one of the focal files, per spec.md §4.6's cochange source.
type CochangeSuggestion struct {
	FilePath     string
	CommitCount  int
	CochangedWith string
}

// HistoricalFix is a past resolution for an error, per spec.md §4.6:
// "if error is set, hash-match first, then error-code match, then
// category match; dedup by error_hash".
type HistoricalFix struct {
	ErrorHash    string
	Message      string
	Category     model.ErrorCategory
	Resolution   string
	FilesChanged []string
}

// errorHash hashes the trimmed message alone. builderr.HashError also
// hashes file, line and code, so the two differ for the same error and
// the exact-hash tier matches only rows hashed from the message alone.
func errorHash(message string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(message)))
	return hex.EncodeToString(sum[:])[:16]
}

// cochangeSuggestions returns other files that historically change
// alongside any of files, ranked by commit_count, excluding files
// already in the focal set.
func (e *Engine) cochangeSuggestions(ctx context.Context, projectID int64, files []string, limit int) ([]CochangeSuggestion, error) {
	if limit <= 0 || len(files) == 0 {
		return nil, nil
	}
	focal := make(map[string]bool, len(files))
	for _, f := range files {
		focal[f] = true
	}

	return store.Interact(ctx, e.db, "recall.cochangeSuggestions", func(ctx context.Context, db *sql.DB) ([]CochangeSuggestion, error) {
		placeholders := make([]string, len(files))
		fileArgs := make([]any, len(files))
		for i, f := range files {
			placeholders[i] = "?"
			fileArgs[i] = f
		}
		inList := strings.Join(placeholders, ",")

		args := make([]any, 0, len(files)*2+1)
		args = append(args, projectID)
		args = append(args, fileArgs...)
		args = append(args, fileArgs...)

		rows, err := db.QueryContext(ctx, `
			SELECT file_a, file_b, commit_count FROM file_cochange
			WHERE project_id = ? AND (file_a IN (`+inList+`) OR file_b IN (`+inList+`))
			ORDER BY commit_count DESC`, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []CochangeSuggestion
		seen := make(map[string]bool)
		for rows.Next() {
			var a, b string
			var count int
			if err := rows.Scan(&a, &b, &count); err != nil {
				return nil, err
			}
			other, with := b, a
			if focal[b] && !focal[a] {
				other, with = a, b
			} else if focal[a] {
				other, with = b, a
			} else {
				continue
			}
			if focal[other] || seen[other] {
				continue
			}
			seen[other] = true
			out = append(out, CochangeSuggestion{FilePath: other, CommitCount: count, CochangedWith: with})
			if len(out) >= limit {
				break
			}
		}
		return out, rows.Err()
	})
}

// historicalFixes implements spec.md §4.6's three-tier lookup: exact
// error_hash match first, then error_code, then category, deduping by
// error_hash so the same past fix never appears twice.
func (e *Engine) historicalFixes(ctx context.Context, projectID int64, errorText string, limit int) ([]HistoricalFix, error) {
	if limit <= 0 {
		return nil, nil
	}
	hash := errorHash(errorText)

	return store.Interact(ctx, e.db, "recall.historicalFixes", func(ctx context.Context, db *sql.DB) ([]HistoricalFix, error) {
		seen := make(map[string]bool)
		var out []HistoricalFix

		appendRows := func(rows *sql.Rows) error {
			defer rows.Close()
			for rows.Next() {
				var hf HistoricalFix
				var category string
				var filesChanged sql.NullString
				var resolution sql.NullString
				if err := rows.Scan(&hf.ErrorHash, &hf.Message, &category, &resolution, &filesChanged); err != nil {
					return err
				}
				if seen[hf.ErrorHash] {
					continue
				}
				seen[hf.ErrorHash] = true
				hf.Category = model.ErrorCategory(category)
				hf.Resolution = resolution.String
				if filesChanged.Valid && filesChanged.String != "" {
					hf.FilesChanged = strings.Split(filesChanged.String, ",")
				}
				out = append(out, hf)
			}
			return rows.Err()
		}

		exact, err := db.QueryContext(ctx, `
			SELECT be.error_hash, be.message, be.category, er.notes, er.files_changed
			FROM build_errors be
			LEFT JOIN error_resolutions er ON er.error_hash = be.error_hash
			WHERE be.project_id = ? AND be.error_hash = ? AND be.resolved_at IS NOT NULL
			ORDER BY be.last_seen DESC LIMIT ?`, projectID, hash, limit)
		if err != nil {
			return nil, err
		}
		if err := appendRows(exact); err != nil {
			return nil, err
		}

		if len(out) >= limit {
			return out[:limit], nil
		}

		code := errorCodeFromMessage(errorText)
		if code != "" {
			byCode, err := db.QueryContext(ctx, `
				SELECT be.error_hash, be.message, be.category, er.notes, er.files_changed
				FROM build_errors be
				LEFT JOIN error_resolutions er ON er.error_hash = be.error_hash
				WHERE be.project_id = ? AND be.error_code = ? AND be.resolved_at IS NOT NULL
				ORDER BY be.last_seen DESC LIMIT ?`, projectID, code, limit-len(out))
			if err != nil {
				return nil, err
			}
			if err := appendRows(byCode); err != nil {
				return nil, err
			}
		}

		if len(out) >= limit {
			return out[:limit], nil
		}

		category := categorizeError(errorText)
		byCategory, err := db.QueryContext(ctx, `
			SELECT be.error_hash, be.message, be.category, er.notes, er.files_changed
			FROM build_errors be
			LEFT JOIN error_resolutions er ON er.error_hash = be.error_hash
			WHERE be.project_id = ? AND be.category = ? AND be.resolved_at IS NOT NULL
			ORDER BY be.last_seen DESC LIMIT ?`, projectID, string(category), limit-len(out))
		if err != nil {
			return nil, err
		}
		if err := appendRows(byCategory); err != nil {
			return nil, err
		}

		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

// errorCodeFromMessage extracts a leading bracketed or colon-delimited
// code token (e.g. "TS2345", "E0382") if present.
func errorCodeFromMessage(msg string) string {
	fields := strings.FieldsFunc(msg, func(r rune) bool {
		return r == ':' || r == ' ' || r == '[' || r == ']'
	})
	for _, f := range fields {
		if len(f) >= 4 && len(f) <= 10 && strings.ToUpper(f) == f {
			return f
		}
	}
	return ""
}

// categorizeError applies the same keyword fallback internal/builderr
// uses when no code-table entry matches, so recall and builderr agree
// on category without an import cycle between them.
func categorizeError(msg string) model.ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "borrow") || strings.Contains(lower, "moved"):
		return model.CategoryBorrow
	case strings.Contains(lower, "lifetime"):
		return model.CategoryLifetime
	case strings.Contains(lower, "import") || strings.Contains(lower, "module not found") || strings.Contains(lower, "cannot find package"):
		return model.CategoryImport
	case strings.Contains(lower, "undefined") || strings.Contains(lower, "not defined") || strings.Contains(lower, "undeclared") || strings.Contains(lower, "cannot find name"):
		return model.CategoryUndefined
	case strings.Contains(lower, "unused"):
		return model.CategoryUnused
	case strings.Contains(lower, "syntax") || strings.Contains(lower, "unexpected token"):
		return model.CategorySyntax
	case strings.Contains(lower, "assert"):
		return model.CategoryAssertion
	case strings.Contains(lower, "test") && strings.Contains(lower, "fail"):
		return model.CategoryTestFailure
	case strings.Contains(lower, "type") || strings.Contains(lower, "mismatched"):
		return model.CategoryType
	default:
		return model.CategoryOther
	}
}

// behaviorPatterns returns patterns above a confidence floor, scoped to
// project and, unless includeReasoning, excluding the "reasoning" and
// "design" pattern types (the Full/ForError-gated categories).
func (e *Engine) behaviorPatterns(ctx context.Context, projectID int64, includeReasoning bool) ([]model.BehaviorPattern, error) {
	const confidenceFloor = 0.5

	return store.Interact(ctx, e.db, "recall.behaviorPatterns", func(ctx context.Context, db *sql.DB) ([]model.BehaviorPattern, error) {
		sqlStr := `
			SELECT id, project_id, pattern_type, pattern_key, payload, confidence,
			       occurrence_count, first_seen, last_triggered
			FROM behavior_patterns
			WHERE project_id = ? AND confidence >= ?`
		args := []any{projectID, confidenceFloor}
		if !includeReasoning {
			sqlStr += ` AND pattern_type NOT IN ('reasoning', 'design')`
		}
		sqlStr += ` ORDER BY confidence DESC, last_triggered DESC LIMIT 25`

		rows, err := db.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []model.BehaviorPattern
		for rows.Next() {
			var p model.BehaviorPattern
			if err := rows.Scan(&p.ID, &p.ProjectID, &p.PatternType, &p.PatternKey, &p.Payload,
				&p.Confidence, &p.OccurrenceCount, &p.FirstSeen, &p.LastTriggered); err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, rows.Err()
	})
}

// recentBuildErrors returns unresolved build_errors for the project,
// most recently seen first.
func (e *Engine) recentBuildErrors(ctx context.Context, projectID int64) ([]model.BuildError, error) {
	return store.Interact(ctx, e.db, "recall.recentBuildErrors", func(ctx context.Context, db *sql.DB) ([]model.BuildError, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT id, project_id, build_run_id, error_hash, severity, error_code, message,
			       file_path, line, column, suggestion, category, first_seen, last_seen, occurrence_count
			FROM build_errors
			WHERE project_id = ? AND resolved_at IS NULL
			ORDER BY last_seen DESC LIMIT 20`, projectID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []model.BuildError
		for rows.Next() {
			var be model.BuildError
			var errorCode, filePath, suggestion sql.NullString
			var line, column sql.NullInt64
			var category string
			if err := rows.Scan(&be.ID, &be.ProjectID, &be.BuildRunID, &be.ErrorHash, &be.Severity,
				&errorCode, &be.Message, &filePath, &line, &column, &suggestion, &category,
				&be.FirstSeen, &be.LastSeen, &be.OccurrenceCount); err != nil {
				return nil, err
			}
			be.ErrorCode = errorCode.String
			be.FilePath = filePath.String
			be.Line = int(line.Int64)
			be.Column = int(column.Int64)
			be.Category = model.ErrorCategory(category)
			if suggestion.Valid {
				s := suggestion.String
				be.Suggestion = &s
			}
			out = append(out, be)
		}
		return out, rows.Err()
	})
}
