package memory

import (
	"context"
	"path/filepath"
	"testing"

	"mira/internal/model"
	"mira/internal/store"
)

func newTestFactStore(t *testing.T) (*Store, *store.Store, int64) {
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
	return New(db), db, proj.ID
}

func strPtr(s string) *string { return &s }

func TestScopeIsolation(t *testing.T) {
	fs, _, projectID := newTestFactStore(t)
	ctx := context.Background()

	alice := "alice"
	bob := "bob"

	if _, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "blue", FactType: "preference",
		Confidence: 0.8, Scope: model.ScopeProject,
	}); err != nil {
		t.Fatalf("store project fact: %v", err)
	}
	if _, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "red", FactType: "preference",
		Confidence: 0.8, Scope: model.ScopePersonal, UserID: &alice,
	}); err != nil {
		t.Fatalf("store personal fact: %v", err)
	}

	aliceResults, err := fs.Search(ctx, &projectID, "theme color", &alice, nil, 10)
	if err != nil {
		t.Fatalf("search alice: %v", err)
	}
	if len(aliceResults) != 2 {
		t.Fatalf("expected alice to see both facts, got %d: %+v", len(aliceResults), aliceResults)
	}

	bobResults, err := fs.Search(ctx, &projectID, "theme color", &bob, nil, 10)
	if err != nil {
		t.Fatalf("search bob: %v", err)
	}
	if len(bobResults) != 1 {
		t.Fatalf("expected bob to see only the project fact, got %d: %+v", len(bobResults), bobResults)
	}
}

func TestKeyedUpsert_DistinctScopesYieldDistinctRows(t *testing.T) {
	fs, _, projectID := newTestFactStore(t)
	ctx := context.Background()
	alice := "alice"
	key := "theme"

	id1, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Key: &key, Content: "blue", FactType: "preference",
		Confidence: 0.8, Scope: model.ScopeProject,
	})
	if err != nil {
		t.Fatalf("store scope=project: %v", err)
	}
	id2, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Key: &key, Content: "red", FactType: "preference",
		Confidence: 0.8, Scope: model.ScopePersonal, UserID: &alice,
	})
	if err != nil {
		t.Fatalf("store scope=personal: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct rows for distinct scopes, got same id %d", id1)
	}
}

func TestKeyedUpsert_SameScopeUpdatesInPlace(t *testing.T) {
	fs, _, projectID := newTestFactStore(t)
	ctx := context.Background()
	key := "setting"

	id1, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Key: &key, Content: "v1", FactType: "config",
		Confidence: 0.5, Scope: model.ScopeProject,
	})
	if err != nil {
		t.Fatalf("store v1: %v", err)
	}
	id2, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Key: &key, Content: "v2", FactType: "config",
		Confidence: 0.9, Scope: model.ScopeProject,
	})
	if err != nil {
		t.Fatalf("store v2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected update in place, got distinct ids %d and %d", id1, id2)
	}

	results, err := fs.Search(ctx, &projectID, "v2", nil, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "v2" {
		t.Fatalf("expected single row with content=v2, got %+v", results)
	}
	wantConfidence := blendConfidence(0.5, 0.9)
	if results[0].Confidence != wantConfidence {
		t.Fatalf("confidence = %v, want %v", results[0].Confidence, wantConfidence)
	}
}

func TestArchivedAndSuspiciousAreInvisible(t *testing.T) {
	fs, _, projectID := newTestFactStore(t)
	ctx := context.Background()

	id, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "secret plan details", FactType: "context",
		Confidence: 0.8, Scope: model.ScopeProject,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := fs.SetStatus(ctx, id, model.FactArchived); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	results, err := fs.Search(ctx, &projectID, "secret plan", nil, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected archived fact to be invisible, got %+v", results)
	}

	if err := fs.SetStatus(ctx, id, model.FactConfirmed); err != nil {
		t.Fatalf("SetStatus restore: %v", err)
	}
	if err := fs.SetSuspicious(ctx, id, true); err != nil {
		t.Fatalf("SetSuspicious: %v", err)
	}
	results, err = fs.Search(ctx, &projectID, "secret plan", nil, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected suspicious fact to be invisible, got %+v", results)
	}
}

func TestInvalidScopeCombinationsRejected(t *testing.T) {
	fs, _, projectID := newTestFactStore(t)
	ctx := context.Background()

	_, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "x", FactType: "preference",
		Confidence: 0.5, Scope: model.ScopePersonal,
	})
	if err == nil {
		t.Fatalf("expected error for scope=personal without user_id")
	}

	_, err = fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "x", FactType: "preference",
		Confidence: 0.5, Scope: model.ScopeTeam,
	})
	if err == nil {
		t.Fatalf("expected error for scope=team without team_id")
	}
}

type recordingEmbedWriter struct {
	calls []struct {
		id   int64
		text string
	}
}

func (r *recordingEmbedWriter) EnqueueWrite(id int64, text string, target *store.VectorIndex) {
	r.calls = append(r.calls, struct {
		id   int64
		text string
	}{id, text})
}

func TestStore_FiresEmbeddingWriteHookWhenWired(t *testing.T) {
	fs, db, projectID := newTestFactStore(t)
	ctx := context.Background()

	rec := &recordingEmbedWriter{}
	vi, err := store.NewVectorIndex(ctx, db, "facts_test_fact_vec", "fact_id", 8)
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	fs.SetEmbedding(rec, vi)

	id, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "uses redis for caching", FactType: "architecture",
		Confidence: 0.9, Scope: model.ScopeProject,
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].id != id || rec.calls[0].text != "uses redis for caching" {
		t.Fatalf("expected exactly one write-hook enqueue for the stored fact, got %+v", rec.calls)
	}
}

func TestStore_NoEmbeddingWriteHookWhenUnwired(t *testing.T) {
	fs, _, projectID := newTestFactStore(t)
	ctx := context.Background()

	if _, err := fs.Store(ctx, StoreParams{
		ProjectID: &projectID, Content: "uses redis for caching", FactType: "architecture",
		Confidence: 0.9, Scope: model.ScopeProject,
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// No assertion beyond "doesn't panic": Store must tolerate a nil
	// embed/vec pair, the default for any Store built without SetEmbedding.
}
