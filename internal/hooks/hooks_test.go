package hooks

import (
	"context"
	"path/filepath"
	"testing"

	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/store"
)

func newTestAdapters(t *testing.T) (*Adapters, *store.Store, int64) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "mira.db"), 2000)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	proj, err := store.EnsureProject(context.Background(), db, "/p", "p")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	return New(db, memory.New(db), nil), db, proj.ID
}

func TestSessionStart_ReturnsGoalsAndMemory(t *testing.T) {
	a, db, projectID := newTestAdapters(t)
	ctx := context.Background()

	if _, err := db.DB().Exec(`INSERT INTO goals(project_id, title, status, priority) VALUES (?, ?, 'open', 1)`, projectID, "ship v1"); err != nil {
		t.Fatalf("seed goal: %v", err)
	}
	if _, err := a.facts.Store(ctx, memory.StoreParams{
		ProjectID: &projectID, Content: "uses postgres", FactType: "architecture",
		Confidence: 0.9, Scope: model.ScopeProject,
	}); err != nil {
		t.Fatalf("seed fact: %v", err)
	}

	blob, err := a.SessionStart(ctx, "sess-1", &projectID)
	if err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if blob.Text == "" {
		t.Fatal("expected a non-empty context blob")
	}

	var count int
	if err := db.DB().QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = 'sess-1'`).Scan(&count); err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	if count != 1 {
		t.Fatal("expected session_start to create a sessions row")
	}
}

func TestSubagentStop_WritesDiscoveryFactAtThreeEntities(t *testing.T) {
	a, _, projectID := newTestAdapters(t)
	ctx := context.Background()

	output := "Touched `pkg.Foo`, `pkg.Bar`, and `pkg.Baz` while investigating."
	wrote, err := a.SubagentStop(ctx, &projectID, nil, output, nil)
	if err != nil {
		t.Fatalf("SubagentStop: %v", err)
	}
	if !wrote {
		t.Fatal("expected a discovery fact to be written at 3 entities")
	}

	facts, err := a.facts.Search(ctx, &projectID, "", nil, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, f := range facts {
		if f.FactType == "subagent_discovery" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a subagent_discovery fact")
	}
}

func TestSubagentStop_BelowThresholdNoWrite(t *testing.T) {
	a, _, projectID := newTestAdapters(t)
	ctx := context.Background()

	wrote, err := a.SubagentStop(ctx, &projectID, nil, "Touched `pkg.Foo` only.", nil)
	if err != nil {
		t.Fatalf("SubagentStop: %v", err)
	}
	if wrote {
		t.Fatal("expected no discovery fact below the 3-entity threshold")
	}
}

func TestPreCompact_RoundTrips(t *testing.T) {
	a, _, _ := newTestAdapters(t)
	ctx := context.Background()

	if err := a.PreCompact(ctx, "sess-1", "context before compaction"); err != nil {
		t.Fatalf("PreCompact: %v", err)
	}
	recovered, err := a.RecoverPreCompact(ctx, "sess-1")
	if err != nil {
		t.Fatalf("RecoverPreCompact: %v", err)
	}
	if recovered != "context before compaction" {
		t.Fatalf("expected round-tripped context, got %q", recovered)
	}
}

func TestValidateTranscriptPath_RejectsOutsideHomeAndTmp(t *testing.T) {
	if err := validateTranscriptPath("/etc/passwd"); err == nil {
		t.Fatal("expected /etc/passwd to be rejected")
	}
}

func TestValidateTranscriptPath_AllowsTmp(t *testing.T) {
	dir := t.TempDir()
	if err := validateTranscriptPath(filepath.Join(dir, "transcript.jsonl")); err != nil {
		t.Fatalf("expected a path under a temp dir to be allowed: %v", err)
	}
}
