package recall

import (
	"context"
	"path/filepath"
	"testing"

	"mira/internal/embedding"
	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/search"
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

	chunkVec, err := store.NewVectorIndex(context.Background(), db, "recall_test_chunk_vec", "chunk_id", 16)
	if err != nil {
		t.Fatalf("NewVectorIndex chunk: %v", err)
	}
	factVec, err := store.NewVectorIndex(context.Background(), db, "recall_test_fact_vec", "fact_id", 16)
	if err != nil {
		t.Fatalf("NewVectorIndex fact: %v", err)
	}

	embedSvc := embedding.NewService(embedding.NewDeterministicEngine(16), embedding.Config{})
	t.Cleanup(func() { embedSvc.Close() })

	facts := memory.New(db)
	se := search.New(db)
	return New(db, facts, se, embedSvc, chunkVec, factVec), db, proj.ID
}

func TestDegrade(t *testing.T) {
	if got := Degrade(Full, 0.95); got.MaxContextTokens != Minimal.MaxContextTokens {
		t.Fatalf("expected degrade to Minimal at 0.95 usage, got %+v", got)
	}
	if got := Degrade(Full, 0.8); got.MaxContextTokens != Default.MaxContextTokens {
		t.Fatalf("expected degrade to Default at 0.8 usage, got %+v", got)
	}
	if got := Degrade(Full, 0.5); got.MaxContextTokens != Full.MaxContextTokens {
		t.Fatalf("expected no degrade at 0.5 usage, got %+v", got)
	}
}

func TestGather_FactsOnlyByDefault(t *testing.T) {
	e, db, projectID := openTestEngine(t)

	if _, err := db.DB().Exec(`
		INSERT INTO memory_facts(project_id, content, fact_type, confidence, scope, status)
		VALUES (?, 'uses postgres for storage', 'architecture', 0.9, 'project', 'active')`, projectID); err != nil {
		t.Fatalf("insert fact: %v", err)
	}

	cfg := Config{}
	got, err := e.Gather(context.Background(), Input{Query: "postgres", ProjectID: &projectID, Config: cfg})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(got.Facts) != 1 {
		t.Fatalf("expected 1 fact, got %+v", got.Facts)
	}
	if len(got.SourcesUsed) != 1 || got.SourcesUsed[0] != "facts" {
		t.Fatalf("expected sources_used=[facts], got %+v", got.SourcesUsed)
	}
}

func TestGather_FactsHybridSemanticFallback(t *testing.T) {
	e, db, projectID := openTestEngine(t)

	res, err := db.DB().Exec(`
		INSERT INTO memory_facts(project_id, content, fact_type, confidence, scope, status)
		VALUES (?, 'totally unrelated words zzz', 'architecture', 0.9, 'project', 'active')`, projectID)
	if err != nil {
		t.Fatalf("insert fact: %v", err)
	}
	factID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId: %v", err)
	}

	query := "database schema"
	vec, err := e.embedSvc.EmbedQuery(context.Background(), query)
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if err := e.factVec.Upsert(context.Background(), factID, vec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := e.Gather(context.Background(), Input{Query: query, ProjectID: &projectID, Config: Config{}})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(got.Facts) != 1 || got.Facts[0].ID != factID {
		t.Fatalf("expected the semantically-nearest fact despite no keyword overlap, got %+v", got.Facts)
	}
}

func TestCochangeSuggestions(t *testing.T) {
	e, db, projectID := openTestEngine(t)
	if _, err := db.DB().Exec(`
		INSERT INTO file_cochange(project_id, file_a, file_b, commit_count)
		VALUES (?, 'a.go', 'b.go', 5)`, projectID); err != nil {
		t.Fatalf("insert cochange: %v", err)
	}

	got, err := e.cochangeSuggestions(context.Background(), projectID, []string{"a.go"}, 5)
	if err != nil {
		t.Fatalf("cochangeSuggestions: %v", err)
	}
	if len(got) != 1 || got[0].FilePath != "b.go" {
		t.Fatalf("expected b.go suggested, got %+v", got)
	}
}

func TestHistoricalFixes_ExactHashMatch(t *testing.T) {
	e, db, projectID := openTestEngine(t)
	msg := "undefined variable foo"
	hash := errorHash(msg)

	if _, err := db.DB().Exec(`
		INSERT INTO build_runs(project_id, operation_id, build_type, exit_code, duration_millis, started_at, finished_at)
		VALUES (?, 'op1', 'generic', 1, 10, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, projectID); err != nil {
		t.Fatalf("insert build run: %v", err)
	}
	var runID int64
	if err := db.DB().QueryRow(`SELECT id FROM build_runs WHERE operation_id = 'op1'`).Scan(&runID); err != nil {
		t.Fatalf("select run id: %v", err)
	}
	if _, err := db.DB().Exec(`
		INSERT INTO build_errors(project_id, build_run_id, error_hash, severity, message, category, resolved_at)
		VALUES (?, ?, ?, 'error', ?, 'undefined', CURRENT_TIMESTAMP)`, projectID, runID, hash, msg); err != nil {
		t.Fatalf("insert build error: %v", err)
	}
	if _, err := db.DB().Exec(`
		INSERT INTO error_resolutions(error_hash, type, files_changed, notes)
		VALUES (?, 'manual', 'foo.go', 'declared foo before use')`, hash); err != nil {
		t.Fatalf("insert resolution: %v", err)
	}

	got, err := e.historicalFixes(context.Background(), projectID, msg, 5)
	if err != nil {
		t.Fatalf("historicalFixes: %v", err)
	}
	if len(got) != 1 || got[0].Resolution != "declared foo before use" {
		t.Fatalf("expected exact-hash historical fix, got %+v", got)
	}
}

func TestTrim_RemovesCochangeBeforeFacts(t *testing.T) {
	g := &GatheredContext{
		Cochange: make([]CochangeSuggestion, 50),
		Facts:    []model.Fact{{Content: "x"}},
	}
	for i := range g.Cochange {
		g.Cochange[i] = CochangeSuggestion{FilePath: "file.go", CochangedWith: "other.go", CommitCount: i}
	}
	trim(g, 5)
	if len(g.Cochange) != 0 {
		t.Fatalf("expected cochange trimmed to fit small budget, got %d entries", len(g.Cochange))
	}
	if len(g.Facts) != 1 {
		t.Fatalf("expected facts kept once dropping cochange fits the budget, got %d entries", len(g.Facts))
	}
}

func TestRender_OmitsEmptySections(t *testing.T) {
	g := &GatheredContext{}
	if got := Render(g); got != "" {
		t.Fatalf("expected empty render for empty context, got %q", got)
	}
}
