package index

import (
	"context"
	"path/filepath"
	"testing"

	"mira/internal/store"
)

func openTestIndexer(t *testing.T) (*Indexer, int64) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "mira.db"), 2000)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	proj, err := store.EnsureProject(context.Background(), db, dir, "test")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	return New(db, NewRegistry()), proj.ID
}

const goSample = `package sample

func Helper() int {
	return 1
}

type Widget struct {
	Name string
}

func (w *Widget) Greet() string {
	return Helper2(w.Name)
}

func Helper2(name string) string {
	return name
}
`

func TestGoParser_ExtractsSymbolsImportsCalls(t *testing.T) {
	p := NewGoParser()
	result, err := p.Parse("sample.go", []byte(goSample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Symbols) < 3 {
		t.Fatalf("expected at least 3 symbols, got %d: %+v", len(result.Symbols), result.Symbols)
	}

	var foundGreet bool
	for _, sym := range result.Symbols {
		if sym.Name == "Greet" && sym.Type == "method" {
			foundGreet = true
		}
	}
	if !foundGreet {
		t.Fatalf("expected to find Greet as a method, got %+v", result.Symbols)
	}

	var foundCall bool
	for _, c := range result.Calls {
		if c.CalleeName == "Helper2" {
			foundCall = true
		}
	}
	if !foundCall {
		t.Fatalf("expected a call edge to Helper2, got %+v", result.Calls)
	}
}

func TestIndexer_IndexFile_WriteBackIsTransactional(t *testing.T) {
	ix, projectID := openTestIndexer(t)
	ctx := context.Background()

	if err := ix.IndexFile(ctx, projectID, "sample.go", []byte(goSample)); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	var symbolCount int
	row := ix.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND file_path = ?`, projectID, "sample.go")
	if err := row.Scan(&symbolCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if symbolCount == 0 {
		t.Fatalf("expected symbols to be written")
	}

	// Re-indexing with fewer symbols should leave exactly the new set, not
	// append to the old one (spec.md §4.4: delete-then-insert).
	smaller := []byte("package sample\n\nfunc OnlyOne() {}\n")
	if err := ix.IndexFile(ctx, projectID, "sample.go", smaller); err != nil {
		t.Fatalf("re-index: %v", err)
	}
	row = ix.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND file_path = ?`, projectID, "sample.go")
	if err := row.Scan(&symbolCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if symbolCount != 1 {
		t.Fatalf("expected exactly 1 symbol after re-index, got %d", symbolCount)
	}
}

func TestIndexer_RemoveFile_DeletesAllRows(t *testing.T) {
	ix, projectID := openTestIndexer(t)
	ctx := context.Background()

	if err := ix.IndexFile(ctx, projectID, "sample.go", []byte(goSample)); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if err := ix.RemoveFile(ctx, projectID, "sample.go"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	var count int
	row := ix.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND file_path = ?`, projectID, "sample.go")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 symbols after remove, got %d", count)
	}
}

func TestCSharpParser_ExtractsClassAndMethod(t *testing.T) {
	src := `using System;

namespace Demo
{
    /// Greets the caller.
    [Obsolete]
    public class Greeter
    {
        public string Greet(string name)
        {
            return name;
        }
    }
}
`
	p := NewCSharpParser()
	result, err := p.Parse("greeter.cs", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var foundClass, foundMethod bool
	for _, sym := range result.Symbols {
		if sym.Name == "Greeter" && sym.Type == "class" {
			foundClass = true
			if len(sym.Decorators) == 0 {
				t.Fatalf("expected pending attribute to attach to class, got %+v", sym)
			}
		}
		if sym.Name == "Greet" && sym.Type == "method" {
			foundMethod = true
		}
	}
	if !foundClass || !foundMethod {
		t.Fatalf("expected class+method symbols, got %+v", result.Symbols)
	}
	if len(result.Imports) != 1 || result.Imports[0].ImportPath != "System" {
		t.Fatalf("expected a single using System import, got %+v", result.Imports)
	}
}
