package builderr

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mira/internal/logging"
	"mira/internal/model"
	"mira/internal/store"
)

// Tracker is the build-error tracker from spec.md §4.8, backed by the
// persistence layer.
type Tracker struct {
	db *store.Store
}

// New wraps a persistence-layer Store as a build-error tracker.
func New(db *store.Store) *Tracker { return &Tracker{db: db} }

// HashError computes the deterministic error_hash from file + primary
// line + code + a trimmed message fingerprint, per spec.md §4.8.
func HashError(filePath string, line int, code, message string) string {
	signature := fmt.Sprintf("%s|%d|%s|%s", filePath, line, strings.ToUpper(code), strings.TrimSpace(message))
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])[:16]
}

// RecordBuildRun inserts a build_runs row and returns its id.
func (t *Tracker) RecordBuildRun(ctx context.Context, projectID int64, operationID, buildType, command string, exitCode int, duration time.Duration, started, finished time.Time) (int64, error) {
	return store.Interact(ctx, t.db, "builderr.RecordBuildRun", func(ctx context.Context, db *sql.DB) (int64, error) {
		res, err := db.ExecContext(ctx, `
			INSERT INTO build_runs(project_id, operation_id, build_type, command, exit_code, duration_millis, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, operationID, buildType, command, exitCode, duration.Milliseconds(), started, finished)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
}

// IngestOutput parses output with the parser registered for buildType,
// and upserts each parsed error into build_errors by hash: a fresh hash
// inserts a new row, a repeat hash bumps occurrence_count and last_seen
// rather than creating a duplicate row (spec.md §4.8, testable property
// spec.md §8.6). Also updates the owning build_runs row's error/warning
// counts.
func (t *Tracker) IngestOutput(ctx context.Context, projectID, buildRunID int64, buildType, output string) ([]model.BuildError, error) {
	parsed := ParserFor(buildType).Parse(output)
	if len(parsed) == 0 {
		return nil, nil
	}

	return store.InteractTx(ctx, t.db, "builderr.IngestOutput", func(ctx context.Context, tx *sql.Tx) ([]model.BuildError, error) {
		var out []model.BuildError
		var errCount, warnCount int
		for _, pe := range parsed {
			category := Categorize(pe.ErrorCode, pe.Message)
			hash := HashError(pe.FilePath, pe.Line, pe.ErrorCode, pe.Message)

			be, err := t.upsertError(ctx, tx, projectID, buildRunID, hash, pe, category)
			if err != nil {
				return nil, err
			}
			out = append(out, be)
			if pe.Severity == model.SeverityWarning {
				warnCount++
			} else {
				errCount++
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE build_runs SET error_count = error_count + ?, warning_count = warning_count + ? WHERE id = ?`,
			errCount, warnCount, buildRunID); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (t *Tracker) upsertError(ctx context.Context, tx *sql.Tx, projectID, buildRunID int64, hash string, pe ParsedError, category model.ErrorCategory) (model.BuildError, error) {
	var be model.BuildError
	row := tx.QueryRowContext(ctx, `
		SELECT id, occurrence_count FROM build_errors WHERE project_id = ? AND error_hash = ?`,
		projectID, hash)
	var id int64
	var occurrences int
	err := row.Scan(&id, &occurrences)
	switch {
	case err == nil:
		occurrences++
		if _, err := tx.ExecContext(ctx, `
			UPDATE build_errors SET occurrence_count = ?, last_seen = CURRENT_TIMESTAMP, build_run_id = ?
			WHERE id = ?`, occurrences, buildRunID, id); err != nil {
			return be, err
		}
		logging.BuildErrDebug("build error %s occurrence bumped to %d", hash, occurrences)
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO build_errors(
				project_id, build_run_id, error_hash, severity, error_code, message,
				file_path, line, column, suggestion, category
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, buildRunID, hash, string(pe.Severity), nullIfEmpty(pe.ErrorCode), pe.Message,
			nullIfEmpty(pe.FilePath), pe.Line, pe.Column, nullIfEmpty(pe.Suggestion), string(category))
		if err != nil {
			return be, err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return be, err
		}
		occurrences = 1
		logging.BuildErr("new build error %s: [%s] %s", hash, category, pe.Message)
	default:
		return be, err
	}

	be = model.BuildError{
		ID: id, ProjectID: projectID, BuildRunID: buildRunID, ErrorHash: hash,
		Severity: pe.Severity, ErrorCode: pe.ErrorCode, Message: pe.Message,
		FilePath: pe.FilePath, Line: pe.Line, Column: pe.Column, Category: category,
		OccurrenceCount: occurrences,
	}
	if pe.Suggestion != "" {
		s := pe.Suggestion
		be.Suggestion = &s
	}
	return be, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecordResolution inserts a resolution for errorHash and flips resolved_at
// on any still-unresolved build_errors row carrying that hash, per
// spec.md §4.8.
func (t *Tracker) RecordResolution(ctx context.Context, errorHash string, resType model.ResolutionType, filesChanged []string, commitHash *string, duration *time.Duration, notes *string) (int64, error) {
	return store.InteractTx(ctx, t.db, "builderr.RecordResolution", func(ctx context.Context, tx *sql.Tx) (int64, error) {
		var durationMillis *int64
		if duration != nil {
			ms := duration.Milliseconds()
			durationMillis = &ms
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO error_resolutions(error_hash, type, files_changed, commit_hash, duration_millis, notes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			errorHash, string(resType), strings.Join(filesChanged, ","), commitHash, durationMillis, notes)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE build_errors SET resolved_at = CURRENT_TIMESTAMP
			WHERE error_hash = ? AND resolved_at IS NULL`, errorHash); err != nil {
			return 0, err
		}
		return id, nil
	})
}

// LinkBuildToResolutions implements spec.md §4.8's auto-resolution scan:
// for a successful build following a failure, any unresolved error whose
// file suffix-matches (either direction) a changed file is auto-resolved
// exactly once, per the testable property in spec.md §8.7.
func (t *Tracker) LinkBuildToResolutions(ctx context.Context, projectID int64, commitHash *string, filesChanged []string) ([]model.ErrorResolution, error) {
	if len(filesChanged) == 0 {
		return nil, nil
	}

	return store.InteractTx(ctx, t.db, "builderr.LinkBuildToResolutions", func(ctx context.Context, tx *sql.Tx) ([]model.ErrorResolution, error) {
		rows, err := tx.QueryContext(ctx, `
			SELECT error_hash, file_path FROM build_errors
			WHERE project_id = ? AND resolved_at IS NULL`, projectID)
		if err != nil {
			return nil, err
		}
		type unresolved struct {
			hash, file string
		}
		var candidates []unresolved
		for rows.Next() {
			var u unresolved
			var file sql.NullString
			if err := rows.Scan(&u.hash, &file); err != nil {
				rows.Close()
				return nil, err
			}
			u.file = file.String
			candidates = append(candidates, u)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		var out []model.ErrorResolution
		resolvedHashes := make(map[string]bool)
		for _, c := range candidates {
			if c.file == "" || resolvedHashes[c.hash] {
				continue
			}
			if !suffixMatchesAny(c.file, filesChanged) {
				continue
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO error_resolutions(error_hash, type, files_changed, commit_hash)
				VALUES (?, ?, ?, ?)`,
				c.hash, string(model.ResolutionAutoResolved), strings.Join(filesChanged, ","), commitHash)
			if err != nil {
				return nil, err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE build_errors SET resolved_at = CURRENT_TIMESTAMP
				WHERE error_hash = ? AND resolved_at IS NULL`, c.hash); err != nil {
				return nil, err
			}
			resolvedHashes[c.hash] = true
			out = append(out, model.ErrorResolution{
				ID: id, ErrorHash: c.hash, Type: model.ResolutionAutoResolved,
				FilesChanged: filesChanged, CommitHash: commitHash,
			})
			logging.BuildErr("auto-resolved error %s via files_changed match on %s", c.hash, c.file)
		}
		return out, nil
	})
}

// suffixMatchesAny reports whether file matches any of changed by path
// suffix in either direction, per spec.md §4.8: "suffix-match either
// direction".
func suffixMatchesAny(file string, changed []string) bool {
	fileNorm := strings.ReplaceAll(file, "\\", "/")
	for _, c := range changed {
		cNorm := strings.ReplaceAll(c, "\\", "/")
		if strings.HasSuffix(fileNorm, cNorm) || strings.HasSuffix(cNorm, fileNorm) {
			return true
		}
	}
	return false
}

// SimilarResolution pairs a found resolution with its similarity score.
type SimilarResolution struct {
	model.ErrorResolution
	Score float64
}

// FindSimilarResolutions implements spec.md §4.8's fan-out: exact-hash
// (1.0) -> same error_code (0.8) -> same category (0.5), deduped by
// error_hash, sorted by score descending.
func (t *Tracker) FindSimilarResolutions(ctx context.Context, be model.BuildError) ([]SimilarResolution, error) {
	return store.Interact(ctx, t.db, "builderr.FindSimilarResolutions", func(ctx context.Context, db *sql.DB) ([]SimilarResolution, error) {
		seen := make(map[string]bool)
		var out []SimilarResolution

		collect := func(rows *sql.Rows, score float64) error {
			defer rows.Close()
			for rows.Next() {
				var r model.ErrorResolution
				var filesChanged string
				var resType string
				if err := rows.Scan(&r.ID, &r.ErrorHash, &resType, &filesChanged, &r.CommitHash, &r.Notes, &r.CreatedAt); err != nil {
					return err
				}
				if seen[r.ErrorHash] {
					continue
				}
				seen[r.ErrorHash] = true
				r.Type = model.ResolutionType(resType)
				if filesChanged != "" {
					r.FilesChanged = strings.Split(filesChanged, ",")
				}
				out = append(out, SimilarResolution{ErrorResolution: r, Score: score})
			}
			return rows.Err()
		}

		exact, err := db.QueryContext(ctx, `
			SELECT id, error_hash, type, files_changed, commit_hash, notes, created_at
			FROM error_resolutions WHERE error_hash = ? ORDER BY created_at DESC`, be.ErrorHash)
		if err != nil {
			return nil, err
		}
		if err := collect(exact, 1.0); err != nil {
			return nil, err
		}

		if be.ErrorCode != "" {
			byCode, err := db.QueryContext(ctx, `
				SELECT er.id, er.error_hash, er.type, er.files_changed, er.commit_hash, er.notes, er.created_at
				FROM error_resolutions er
				JOIN build_errors be2 ON be2.error_hash = er.error_hash
				WHERE be2.error_code = ? ORDER BY er.created_at DESC`, be.ErrorCode)
			if err != nil {
				return nil, err
			}
			if err := collect(byCode, 0.8); err != nil {
				return nil, err
			}
		}

		byCategory, err := db.QueryContext(ctx, `
			SELECT er.id, er.error_hash, er.type, er.files_changed, er.commit_hash, er.notes, er.created_at
			FROM error_resolutions er
			JOIN build_errors be2 ON be2.error_hash = er.error_hash
			WHERE be2.category = ? ORDER BY er.created_at DESC`, string(be.Category))
		if err != nil {
			return nil, err
		}
		if err := collect(byCategory, 0.5); err != nil {
			return nil, err
		}

		sortSimilarByScore(out)
		return out, nil
	})
}

func sortSimilarByScore(s []SimilarResolution) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// LineFromRaw extracts a leading integer for callers that only have a
// string form of a line number (kept small and local; no strconv import
// needed at call sites).
func LineFromRaw(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
