package tool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mira/internal/merr"
	"mira/internal/model"
	"mira/internal/store"
)

// SessionHistoryReq paginates prior sessions for a project, per spec.md
// §6.
type SessionHistoryReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type SessionHistoryResp struct {
	Sessions []model.Session `json:"sessions"`
}

func handleSessionHistory(ctx context.Context, d *Deps, req SessionHistoryReq) (SessionHistoryResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return SessionHistoryResp{}, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	sessions, err := store.Interact(ctx, d.DB, "tool.session_history", func(ctx context.Context, db *sql.DB) ([]model.Session, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT id, project_id, started_at, last_activity_at, end_reason FROM sessions
			WHERE project_id = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`,
			projectID, limit, req.Offset)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.Session
		for rows.Next() {
			var s model.Session
			var endReason sql.NullString
			if err := rows.Scan(&s.ID, &s.ProjectID, &s.StartedAt, &s.LastActivityAt, &endReason); err != nil {
				return nil, err
			}
			if endReason.Valid {
				r := model.SessionEndReason(endReason.String)
				s.EndReason = &r
			}
			out = append(out, s)
		}
		return out, rows.Err()
	})
	if err != nil {
		return SessionHistoryResp{}, err
	}
	return SessionHistoryResp{Sessions: sessions}, nil
}

// SummarizeCodebaseReq renders a project-wide overview, per spec.md §6.
type SummarizeCodebaseReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
}

type SummarizeCodebaseResp struct {
	Markdown string `json:"markdown"`
}

func handleSummarizeCodebase(ctx context.Context, d *Deps, req SummarizeCodebaseReq) (SummarizeCodebaseResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return SummarizeCodebaseResp{}, err
	}

	type counts struct {
		Files, Symbols, Funcs, Types int
	}
	c, err := store.Interact(ctx, d.DB, "tool.summarize_codebase", func(ctx context.Context, db *sql.DB) (counts, error) {
		var c counts
		if err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT file_path) FROM code_symbols WHERE project_id = ?`, projectID).Scan(&c.Files); err != nil {
			return c, err
		}
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ?`, projectID).Scan(&c.Symbols); err != nil {
			return c, err
		}
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND symbol_type IN ('function','method')`, projectID).Scan(&c.Funcs); err != nil {
			return c, err
		}
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND symbol_type IN ('struct','class','interface','enum','trait','type')`, projectID).Scan(&c.Types); err != nil {
			return c, err
		}
		return c, nil
	})
	if err != nil {
		return SummarizeCodebaseResp{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Codebase summary\n\n")
	fmt.Fprintf(&b, "- %d files indexed\n", c.Files)
	fmt.Fprintf(&b, "- %d symbols (%d functions/methods, %d types)\n", c.Symbols, c.Funcs, c.Types)
	return SummarizeCodebaseResp{Markdown: b.String()}, nil
}

// GetSessionRecapReq renders a single session's activity, per spec.md
// §6.
type GetSessionRecapReq struct {
	SessionID string `json:"session_id"`
}

type GetSessionRecapResp struct {
	Markdown string `json:"markdown"`
}

func handleGetSessionRecap(ctx context.Context, d *Deps, req GetSessionRecapReq) (GetSessionRecapResp, error) {
	if req.SessionID == "" {
		return GetSessionRecapResp{}, merr.BadRequestf("tool.get_session_recap", "session_id is required")
	}

	type recap struct {
		ToolCalls int
		Facts     int
		EndReason sql.NullString
	}
	r, err := store.Interact(ctx, d.DB, "tool.get_session_recap", func(ctx context.Context, db *sql.DB) (recap, error) {
		var r recap
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_invocations WHERE session_id = ?`, req.SessionID).Scan(&r.ToolCalls); err != nil {
			return r, err
		}
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_facts WHERE last_session_id = ? OR first_session_id = ?`, req.SessionID, req.SessionID).Scan(&r.Facts); err != nil {
			return r, err
		}
		if err := db.QueryRowContext(ctx, `SELECT end_reason FROM sessions WHERE id = ?`, req.SessionID).Scan(&r.EndReason); err != nil && err != sql.ErrNoRows {
			return r, err
		}
		return r, nil
	})
	if err != nil {
		return GetSessionRecapResp{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Session %s\n\n", req.SessionID)
	fmt.Fprintf(&b, "- %d tool calls\n", r.ToolCalls)
	fmt.Fprintf(&b, "- %d facts touched\n", r.Facts)
	if r.EndReason.Valid {
		fmt.Fprintf(&b, "- ended: %s\n", r.EndReason.String)
	}
	return GetSessionRecapResp{Markdown: b.String()}, nil
}
