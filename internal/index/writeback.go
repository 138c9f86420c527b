package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"mira/internal/logging"
	"mira/internal/model"
	"mira/internal/store"
)

// Indexer owns the parser registry and writes extraction results into the
// persistence layer. Per spec.md §4.4, indexing a single file runs in a
// transaction: delete prior symbols/imports/calls for the file, then
// insert the fresh rows.
type Indexer struct {
	db  *store.Store
	reg *Registry
}

func New(db *store.Store, reg *Registry) *Indexer {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Indexer{db: db, reg: reg}
}

// IndexFile parses path and atomically replaces its rows in code_symbols,
// code_imports, and call_graph. Call edges are resolved to the caller's
// symbol id by qualified name within the same file's new row set, per
// spec.md §4.4 ("resolved within the new row set").
func (ix *Indexer) IndexFile(ctx context.Context, projectID int64, path string, content []byte) error {
	p := ix.reg.For(path)
	if p == nil {
		return nil
	}
	result, err := p.Parse(path, content)
	if err != nil {
		logging.IndexError("parse failed for %s: %v", path, err)
		return err
	}

	_, err = store.InteractTx(ctx, ix.db, "index.write_file", func(ctx context.Context, tx *sql.Tx) (struct{}, error) {
		if err := deleteFileRows(ctx, tx, projectID, path); err != nil {
			return struct{}{}, err
		}
		qualifiedToID := make(map[string]int64, len(result.Symbols))
		for _, sym := range result.Symbols {
			id, err := insertSymbol(ctx, tx, projectID, path, p.Language(), sym)
			if err != nil {
				return struct{}{}, err
			}
			qualifiedToID[sym.QualifiedName] = id
		}
		for _, imp := range result.Imports {
			if err := insertImport(ctx, tx, projectID, path, imp); err != nil {
				return struct{}{}, err
			}
		}
		for _, call := range result.Calls {
			callerID, ok := qualifiedToID[call.CallerQualifiedName]
			if !ok {
				continue
			}
			if err := upsertCallEdge(ctx, tx, projectID, callerID, call); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}
	logging.IndexDebug("indexed %s: %d symbols, %d imports, %d calls", path, len(result.Symbols), len(result.Imports), len(result.Calls))
	return nil
}

// RemoveFile deletes all rows for path, used when the watcher observes a
// deletion (spec.md §4.4: "Deletions remove all rows for the path").
func (ix *Indexer) RemoveFile(ctx context.Context, projectID int64, path string) error {
	_, err := store.InteractTx(ctx, ix.db, "index.remove_file", func(ctx context.Context, tx *sql.Tx) (struct{}, error) {
		return struct{}{}, deleteFileRows(ctx, tx, projectID, path)
	})
	return err
}

func deleteFileRows(ctx context.Context, tx *sql.Tx, projectID int64, path string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM call_graph WHERE project_id = ? AND caller_id IN (SELECT id FROM code_symbols WHERE project_id = ? AND file_path = ?)`,
		projectID, projectID, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_symbols WHERE project_id = ? AND file_path = ?`, projectID, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_imports WHERE project_id = ? AND file_path = ?`, projectID, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE project_id = ? AND file_path = ?`, projectID, path); err != nil {
		return err
	}
	return nil
}

func insertSymbol(ctx context.Context, tx *sql.Tx, projectID int64, path, language string, sym ParsedSymbol) (int64, error) {
	var decorators *string
	if len(sym.Decorators) > 0 {
		b, _ := json.Marshal(sym.Decorators)
		s := string(b)
		decorators = &s
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO code_symbols(
			project_id, file_path, name, qualified_name, symbol_type, language,
			start_line, end_line, signature, visibility, documentation, return_type,
			decorators, is_test, is_async
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, path, sym.Name, sym.QualifiedName, sym.Type, language,
		sym.StartLine, sym.EndLine, nullIfEmpty(sym.Signature), nullIfEmpty(sym.Visibility),
		nullIfEmpty(sym.Documentation), nullIfEmpty(sym.ReturnType), decorators, sym.IsTest, sym.IsAsync)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertImport(ctx context.Context, tx *sql.Tx, projectID int64, path string, imp ParsedImport) error {
	var names *string
	if len(imp.ImportedNames) > 0 {
		s := strings.Join(imp.ImportedNames, ",")
		names = &s
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO code_imports(project_id, file_path, import_path, imported_names, is_external)
		VALUES (?, ?, ?, ?, ?)`,
		projectID, path, imp.ImportPath, names, imp.IsExternal)
	return err
}

func upsertCallEdge(ctx context.Context, tx *sql.Tx, projectID, callerID int64, call ParsedCall) error {
	callType := call.CallType
	if callType == "" {
		callType = string(model.CallDirect)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO call_graph(project_id, caller_id, callee_name, line, call_type, count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(caller_id, callee_name) DO UPDATE SET count = count + 1, line = excluded.line`,
		projectID, callerID, call.CalleeName, call.Line, callType)
	return err
}

// insertChunk records a code chunk row for later embedding, returning its
// id so the caller can key the vector-index upsert.
func insertChunk(ctx context.Context, db *store.Store, projectID int64, path string, startLine, endLine int, text string) (int64, error) {
	return store.InteractTx(ctx, db, "index.insert_chunk", func(ctx context.Context, tx *sql.Tx) (int64, error) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO code_chunks(project_id, file_path, start_line, end_line, text)
			VALUES (?, ?, ?, ?, ?)`,
			projectID, path, startLine, endLine, text)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
