package intervene

import (
	"context"
	"path/filepath"
	"testing"

	"mira/internal/model"
	"mira/internal/store"
)

func newTestQueue(t *testing.T, cfg Config) (*Queue, *store.Store, int64) {
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
	return New(db, cfg), db, proj.ID
}

func defaultConfig() Config {
	return Config{ConfidenceThreshold: 0.6, CooldownMinutes: 30, HourlyCap: 3, RecencyWindowDays: 7, MaxQueueSize: 5}
}

func seedPattern(t *testing.T, db *store.Store, projectID int64, confidence float64) int64 {
	t.Helper()
	res, err := db.DB().Exec(`
		INSERT INTO behavior_patterns(project_id, pattern_type, pattern_key, payload, confidence)
		VALUES (?, 'friction', 'k1', 'tool X keeps failing', ?)`, projectID, confidence)
	if err != nil {
		t.Fatalf("seed behavior_patterns: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestBuild_SurfacesEligiblePattern(t *testing.T) {
	q, db, projectID := newTestQueue(t, defaultConfig())
	ctx := context.Background()
	seedPattern(t, db, projectID, 0.8)

	out, err := q.Build(ctx, projectID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 pending intervention, got %d: %+v", len(out), out)
	}
	if out[0].Type != model.InterventionBugWarning {
		t.Fatalf("expected friction pattern to map to BugWarning, got %s", out[0].Type)
	}
}

func TestBuild_BelowThresholdExcluded(t *testing.T) {
	q, db, projectID := newTestQueue(t, defaultConfig())
	ctx := context.Background()
	seedPattern(t, db, projectID, 0.3)

	out, err := q.Build(ctx, projectID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected low-confidence pattern to be excluded, got %+v", out)
	}
}

func TestBuild_RespectsCooldown(t *testing.T) {
	q, db, projectID := newTestQueue(t, defaultConfig())
	ctx := context.Background()
	seedPattern(t, db, projectID, 0.8)

	if _, err := db.DB().Exec(`
		INSERT INTO proactive_interventions(project_id, type, content, confidence)
		VALUES (?, 'bug_warning', 'recent', 0.9)`, projectID); err != nil {
		t.Fatalf("seed proactive_interventions: %v", err)
	}

	out, err := q.Build(ctx, projectID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected cooldown to suppress all output, got %+v", out)
	}
}

func TestRespond_AdjustsPatternConfidence(t *testing.T) {
	q, db, projectID := newTestQueue(t, defaultConfig())
	ctx := context.Background()
	patternID := seedPattern(t, db, projectID, 0.5)

	id, err := q.Enqueue(ctx, projectID, PendingIntervention{
		Type: model.InterventionBugWarning, Summary: "x", Confidence: 0.5, SourcePatternID: &patternID,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.Respond(ctx, id, model.ResponseAccepted); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	var confidence float64
	if err := db.DB().QueryRow(`SELECT confidence FROM behavior_patterns WHERE id = ?`, patternID).Scan(&confidence); err != nil {
		t.Fatalf("query pattern: %v", err)
	}
	if confidence != 0.55 {
		t.Fatalf("expected 0.5 * 1.1 = 0.55, got %v", confidence)
	}
}

func TestMissingDocFindings_FlagsUndocumentedExportedSymbol(t *testing.T) {
	q, db, projectID := newTestQueue(t, defaultConfig())
	ctx := context.Background()

	if _, err := db.DB().Exec(`
		INSERT INTO code_symbols(project_id, file_path, name, qualified_name, symbol_type, language, start_line, end_line, visibility, documentation)
		VALUES (?, 'pkg/a.go', 'Foo', 'pkg.Foo', 'function', 'go', 1, 5, 'public', NULL)`, projectID); err != nil {
		t.Fatalf("seed code_symbols: %v", err)
	}

	out, err := q.missingDocFindings(ctx, projectID)
	if err != nil {
		t.Fatalf("missingDocFindings: %v", err)
	}
	if len(out) != 1 || out[0].Type != model.InterventionMissingDoc {
		t.Fatalf("expected 1 missing-doc finding, got %+v", out)
	}
}
