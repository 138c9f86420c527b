package ponder

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/store"
)

func newTestMiner(t *testing.T, cfg Config) (*Miner, *store.Store, int64) {
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
	return New(db, memory.New(db), nil, cfg), db, proj.ID
}

func defaultConfig() Config {
	return Config{IdleMinutes: 10, CooldownHours: 6, FrictionMinCalls: 5, FrictionMinRate: 0.2, HeuristicConfCap: 0.85}
}

func TestRun_SurfacesFrictionPattern(t *testing.T) {
	m, db, projectID := newTestMiner(t, defaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		success := 1
		if i < 3 {
			success = 0 // 30% failure, above the 20% threshold
		}
		if _, err := db.DB().ExecContext(ctx, `
			INSERT INTO tool_invocations(project_id, tool_name, success) VALUES (?, ?, ?)`,
			projectID, "search_code", success); err != nil {
			t.Fatalf("seed tool_invocations: %v", err)
		}
	}

	result, err := m.Run(ctx, projectID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Skipped {
		t.Fatal("expected first run not to be on cooldown")
	}

	found := false
	for _, ins := range result.Insights {
		if ins.Kind == "friction" {
			found = true
			if ins.Confidence > 0.85 {
				t.Fatalf("expected confidence capped at 0.85, got %v", ins.Confidence)
			}
		}
	}
	if !found {
		t.Fatalf("expected a friction insight, got %+v", result.Insights)
	}
}

func TestRun_SecondCallWithinCooldownIsSkipped(t *testing.T) {
	m, _, projectID := newTestMiner(t, defaultConfig())
	ctx := context.Background()

	if _, err := m.Run(ctx, projectID); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	result, err := m.Run(ctx, projectID)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected second run within cooldown window to be skipped")
	}
}

func TestUpsertPattern_OccurrenceIncrementsAndConfidenceAverages(t *testing.T) {
	m, _, projectID := newTestMiner(t, defaultConfig())
	ctx := context.Background()

	id1, err := m.upsertPattern(ctx, projectID, Insight{Kind: "friction", Description: "same pattern", Confidence: 0.4})
	if err != nil {
		t.Fatalf("upsertPattern 1: %v", err)
	}
	id2, err := m.upsertPattern(ctx, projectID, Insight{Kind: "friction", Description: "same pattern", Confidence: 0.8})
	if err != nil {
		t.Fatalf("upsertPattern 2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected identical keyed pattern to update in place, got ids %d and %d", id1, id2)
	}

	var confidence float64
	var occurrences int
	if err := m.db.DB().QueryRowContext(ctx, `SELECT confidence, occurrence_count FROM behavior_patterns WHERE id = ?`, id1).
		Scan(&confidence, &occurrences); err != nil {
		t.Fatalf("query behavior_patterns: %v", err)
	}
	if occurrences != 2 {
		t.Fatalf("expected occurrence_count 2, got %d", occurrences)
	}
	if math.Abs(confidence-0.6) > 1e-9 {
		t.Fatalf("expected averaged confidence 0.6, got %v", confidence)
	}
}

func TestDistillTeam_DedupesSimilarFindingsAndCapsAtTen(t *testing.T) {
	m, db, projectID := newTestMiner(t, defaultConfig())
	ctx := context.Background()

	teamID := int64(1)
	if _, err := db.DB().ExecContext(ctx, `INSERT INTO teams(id, name) VALUES (?, ?)`, teamID, "core"); err != nil {
		t.Fatalf("seed team: %v", err)
	}

	contents := []string{
		"the team prefers tabs over spaces",
		"the team prefers tabs over spaces for indentation",
		"code reviews should happen within a day",
	}
	for _, c := range contents {
		if _, err := db.DB().ExecContext(ctx, `
			INSERT INTO memory_facts(project_id, content, fact_type, confidence, scope, team_id, status)
			VALUES (?, ?, 'preference', 0.7, 'team', ?, 'confirmed')`,
			projectID, c, teamID); err != nil {
			t.Fatalf("seed memory_facts: %v", err)
		}
	}

	ids, err := m.DistillTeam(ctx, teamID)
	if err != nil {
		t.Fatalf("DistillTeam: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distilled facts (near-duplicate tabs/spaces findings merged), got %d", len(ids))
	}

	var factType string
	var scope string
	if err := db.DB().QueryRowContext(ctx, `SELECT fact_type, scope FROM memory_facts WHERE id = ?`, ids[0]).
		Scan(&factType, &scope); err != nil {
		t.Fatalf("query distilled fact: %v", err)
	}
	if factType != "distilled" || scope != string(model.ScopeTeam) {
		t.Fatalf("expected fact_type=distilled scope=team, got %s/%s", factType, scope)
	}
}
