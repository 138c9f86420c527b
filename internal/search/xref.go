package search

import (
	"context"
	"database/sql"

	"mira/internal/store"
)

// XRef is one cross-reference hit: a name at a location with an
// occurrence count, per spec.md §4.5's "(name, file_path, line, count)".
type XRef struct {
	Name     string
	FilePath string
	Line     int
	Count    int
}

// stdlibDenylist filters obvious builtin/stdlib callee names out of
// callee listings at query time, per spec.md §4.4 ("filtered at query
// time, not at extraction time").
var stdlibDenylist = map[string]bool{
	"len": true, "cap": true, "make": true, "new": true, "append": true,
	"panic": true, "recover": true, "print": true, "println": true,
	"copy": true, "delete": true, "close": true,
}

// Callers returns every call edge whose callee_name matches name, joined
// to the caller symbol for its location.
func (e *Engine) Callers(ctx context.Context, projectID int64, name string) ([]XRef, error) {
	return store.Interact(ctx, e.db, "search.Callers", func(ctx context.Context, db *sql.DB) ([]XRef, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT s.qualified_name, s.file_path, cg.line, cg.count
			FROM call_graph cg
			JOIN code_symbols s ON s.id = cg.caller_id
			WHERE cg.project_id = ? AND cg.callee_name = ?
			ORDER BY cg.count DESC, s.qualified_name ASC`,
			projectID, name)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanXRefs(rows)
	})
}

// Callees returns every outgoing call edge from the symbols whose name
// or qualified_name is callerName, filtered through the stdlib denylist.
func (e *Engine) Callees(ctx context.Context, projectID int64, callerName string) ([]XRef, error) {
	return store.Interact(ctx, e.db, "search.Callees", func(ctx context.Context, db *sql.DB) ([]XRef, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT cg.callee_name, s.file_path, cg.line, cg.count
			FROM call_graph cg
			JOIN code_symbols s ON s.id = cg.caller_id
			WHERE cg.project_id = ? AND (s.name = ? OR s.qualified_name = ?)
			ORDER BY cg.count DESC, cg.callee_name ASC`,
			projectID, callerName, callerName)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		refs, err := scanXRefs(rows)
		if err != nil {
			return nil, err
		}
		filtered := refs[:0]
		for _, r := range refs {
			if !stdlibDenylist[r.Name] {
				filtered = append(filtered, r)
			}
		}
		return filtered, nil
	})
}

func scanXRefs(rows *sql.Rows) ([]XRef, error) {
	var out []XRef
	for rows.Next() {
		var x XRef
		if err := rows.Scan(&x.Name, &x.FilePath, &x.Line, &x.Count); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}
