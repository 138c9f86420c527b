// Package search implements the three query modes from spec.md §4.5:
// symbol lookup, semantic code search, and cross-references, plus rank
// fusion and query-pattern detection for recall routing.
//
// Keyword/ranking idiom grounded on the teacher's
// internal/retrieval/sparse.go (ExtractKeywords, weighted scoring) and
// internal/memory's keyword-token/LIKE-fallback style.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"mira/internal/model"
	"mira/internal/store"
)

// Engine is the search facade, backed by the persistence layer.
type Engine struct {
	db *store.Store
}

func New(db *store.Store) *Engine { return &Engine{db: db} }

// SymbolQuery filters a symbol-name lookup.
type SymbolQuery struct {
	ProjectID  int64
	NamePattern string
	SymbolType *model.SymbolType
	Limit      int
}

// SymbolMatch is one ranked symbol lookup result.
type SymbolMatch struct {
	Symbol model.Symbol
	Rank   int // 0=exact, 1=prefix, 2=substring
}

// LookupSymbols ranks symbols exact > prefix > substring, per spec.md
// §4.5. SQLite has no native "rank" function for this, so three
// passes are unioned with an explicit rank literal and ordered by it.
func (e *Engine) LookupSymbols(ctx context.Context, q SymbolQuery) ([]SymbolMatch, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	typeFilter := ""
	if q.SymbolType != nil {
		typeFilter = " AND symbol_type = ?"
	}

	cols := symbolColumns
	sqlStr := fmt.Sprintf(`
		SELECT %s, 0 AS rank FROM code_symbols
		WHERE project_id = ? AND name = ?%s
		UNION ALL
		SELECT %s, 1 AS rank FROM code_symbols
		WHERE project_id = ? AND name LIKE ? || '%%' AND name != ?%s
		UNION ALL
		SELECT %s, 2 AS rank FROM code_symbols
		WHERE project_id = ? AND name LIKE '%%' || ? || '%%' AND name NOT LIKE ? || '%%'%s
		ORDER BY rank ASC, name ASC
		LIMIT ?`,
		cols, typeFilter,
		cols, typeFilter,
		cols, typeFilter,
	)

	allArgs := make([]any, 0, 12)
	allArgs = append(allArgs, q.ProjectID, q.NamePattern)
	if q.SymbolType != nil {
		allArgs = append(allArgs, string(*q.SymbolType))
	}
	allArgs = append(allArgs, q.ProjectID, q.NamePattern, q.NamePattern)
	if q.SymbolType != nil {
		allArgs = append(allArgs, string(*q.SymbolType))
	}
	allArgs = append(allArgs, q.ProjectID, q.NamePattern, q.NamePattern)
	if q.SymbolType != nil {
		allArgs = append(allArgs, string(*q.SymbolType))
	}
	allArgs = append(allArgs, q.Limit)

	return store.Interact(ctx, e.db, "search.LookupSymbols", func(ctx context.Context, db *sql.DB) ([]SymbolMatch, error) {
		rows, err := db.QueryContext(ctx, sqlStr, allArgs...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []SymbolMatch
		for rows.Next() {
			var sym model.Symbol
			var rank int
			if err := scanSymbol(rows, &sym, &rank); err != nil {
				return nil, err
			}
			out = append(out, SymbolMatch{Symbol: sym, Rank: rank})
		}
		return out, rows.Err()
	})
}

const symbolColumns = `id, project_id, file_path, name, qualified_name, symbol_type, language,
	start_line, end_line, signature, visibility, documentation, return_type, decorators, is_test, is_async`

func scanSymbol(rows *sql.Rows, sym *model.Symbol, rank *int) error {
	var symType, visibility, decorators sql.NullString
	var isTest, isAsync int
	dest := []any{
		&sym.ID, &sym.ProjectID, &sym.FilePath, &sym.Name, &sym.QualifiedName, &symType, &sym.Language,
		&sym.StartLine, &sym.EndLine, &sym.Signature, &visibility, &sym.Documentation, &sym.ReturnType,
		&decorators, &isTest, &isAsync,
	}
	if rank != nil {
		dest = append(dest, rank)
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	sym.Type = model.SymbolType(symType.String)
	sym.Visibility = visibility.String
	sym.IsTest = isTest != 0
	sym.IsAsync = isAsync != 0
	if decorators.Valid && decorators.String != "" {
		_ = json.Unmarshal([]byte(decorators.String), &sym.Decorators)
	}
	return nil
}
