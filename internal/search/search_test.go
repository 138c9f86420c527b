package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mira/internal/store"
)

func openTestEngine(t *testing.T) (*Engine, *store.Store, int64) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "mira.db"), 2000)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	proj, err := store.EnsureProject(context.Background(), db, dir, "p")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	return New(db), db, proj.ID
}

func insertSymbol(t *testing.T, db *store.Store, projectID int64, name, symType string) int64 {
	t.Helper()
	res, err := db.DB().Exec(`
		INSERT INTO code_symbols(project_id, file_path, name, qualified_name, symbol_type, language, start_line, end_line)
		VALUES (?, 'f.go', ?, ?, ?, 'go', 1, 5)`, projectID, name, "pkg."+name, symType)
	if err != nil {
		t.Fatalf("insert symbol: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestLookupSymbols_RanksExactBeforePrefixBeforeSubstring(t *testing.T) {
	e, db, projectID := openTestEngine(t)
	insertSymbol(t, db, projectID, "Handle", "function")
	insertSymbol(t, db, projectID, "HandleRequest", "function")
	insertSymbol(t, db, projectID, "PreHandle", "function")

	matches, err := e.LookupSymbols(context.Background(), SymbolQuery{ProjectID: projectID, NamePattern: "Handle", Limit: 10})
	if err != nil {
		t.Fatalf("LookupSymbols: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(matches), matches)
	}
	if matches[0].Symbol.Name != "Handle" || matches[0].Rank != 0 {
		t.Fatalf("expected exact match first, got %+v", matches[0])
	}
	if matches[1].Symbol.Name != "HandleRequest" || matches[1].Rank != 1 {
		t.Fatalf("expected prefix match second, got %+v", matches[1])
	}
	if matches[2].Symbol.Name != "PreHandle" || matches[2].Rank != 2 {
		t.Fatalf("expected substring match third, got %+v", matches[2])
	}
}

func TestCallersAndCallees(t *testing.T) {
	e, db, projectID := openTestEngine(t)
	callerID := insertSymbol(t, db, projectID, "Main", "function")

	if _, err := db.DB().Exec(`
		INSERT INTO call_graph(project_id, caller_id, callee_name, line, call_type, count)
		VALUES (?, ?, 'DoWork', 10, 'direct', 1)`, projectID, callerID); err != nil {
		t.Fatalf("insert call edge: %v", err)
	}
	if _, err := db.DB().Exec(`
		INSERT INTO call_graph(project_id, caller_id, callee_name, line, call_type, count)
		VALUES (?, ?, 'len', 11, 'direct', 1)`, projectID, callerID); err != nil {
		t.Fatalf("insert builtin call edge: %v", err)
	}

	callers, err := e.Callers(context.Background(), projectID, "DoWork")
	if err != nil {
		t.Fatalf("Callers: %v", err)
	}
	if len(callers) != 1 || callers[0].Name != "pkg.Main" {
		t.Fatalf("expected Main as caller of DoWork, got %+v", callers)
	}

	callees, err := e.Callees(context.Background(), projectID, "pkg.Main")
	if err != nil {
		t.Fatalf("Callees: %v", err)
	}
	if len(callees) != 1 || callees[0].Name != "DoWork" {
		t.Fatalf("expected only DoWork (len filtered by denylist), got %+v", callees)
	}

	calleesByBareName, err := e.Callees(context.Background(), projectID, "Main")
	if err != nil {
		t.Fatalf("Callees(bare name): %v", err)
	}
	if len(calleesByBareName) != 1 || calleesByBareName[0].Name != "DoWork" {
		t.Fatalf("expected bare caller name to resolve the same as the qualified name, got %+v", calleesByBareName)
	}
}

func TestRankFusion_OrdersByWeightedScore(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: 1, VectorSimilarity: 0.9, KeywordScore: 0.1, Confidence: 0.5},
		{ID: 2, VectorSimilarity: 0.2, KeywordScore: 0.9, Confidence: 0.9},
	}
	scored := RankFusion(candidates, DefaultFusionWeights, now)
	if scored[0].Candidate.ID != 1 {
		t.Fatalf("expected candidate 1 (higher vector weight) to rank first, got %+v", scored)
	}
}

func TestDetectIntent_CallerCalleeRouting(t *testing.T) {
	intent, name := DetectIntent("who calls ProcessOrder")
	if intent != IntentCallers || name != "ProcessOrder" {
		t.Fatalf("expected callers intent for ProcessOrder, got %v %q", intent, name)
	}
	intent, name = DetectIntent("what does ProcessOrder call")
	if intent != IntentCallees || name != "ProcessOrder" {
		t.Fatalf("expected callees intent for ProcessOrder, got %v %q", intent, name)
	}
	intent, _ = DetectIntent("how does retry logic work")
	if intent != IntentSemantic {
		t.Fatalf("expected semantic intent fallback, got %v", intent)
	}
}

