package builderr

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mira/internal/model"
	"mira/internal/store"
)

func newTestTracker(t *testing.T) (*Tracker, int64) {
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
	return New(db), proj.ID
}

const cargoDoubleError = `error[E0308]: mismatched types
 --> src/main.rs:10:5
  |
10|     return x;
  |

error[E0308]: mismatched types
 --> src/main.rs:10:5
  |
10|     return x;
  |
`

func TestCargoParser_ParsesErrorsWithLocations(t *testing.T) {
	out := CargoParser{}.Parse(cargoDoubleError)
	if len(out) != 2 {
		t.Fatalf("expected 2 parsed errors, got %d: %+v", len(out), out)
	}
	for _, pe := range out {
		if pe.ErrorCode != "E0308" || pe.FilePath != "src/main.rs" || pe.Line != 10 || pe.Column != 5 {
			t.Fatalf("unexpected parse: %+v", pe)
		}
	}
}

func TestIngestOutput_DedupsRepeatedError(t *testing.T) {
	tr, projectID := newTestTracker(t)
	ctx := context.Background()

	runID, err := tr.RecordBuildRun(ctx, projectID, "op1", "cargo", "cargo build", 1, time.Second, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("RecordBuildRun: %v", err)
	}

	out, err := tr.IngestOutput(ctx, projectID, runID, "cargo", cargoDoubleError)
	if err != nil {
		t.Fatalf("IngestOutput: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 ingested errors, got %d", len(out))
	}
	if out[0].ErrorHash != out[1].ErrorHash {
		t.Fatalf("expected identical errors to share a hash: %q vs %q", out[0].ErrorHash, out[1].ErrorHash)
	}
	if out[1].OccurrenceCount != 2 {
		t.Fatalf("expected second occurrence to bump count to 2, got %d", out[1].OccurrenceCount)
	}
	if out[1].Category != model.CategoryType {
		t.Fatalf("expected E0308 to categorize as type, got %s", out[1].Category)
	}
}

func TestLinkBuildToResolutions_AutoResolvesBySuffixMatch(t *testing.T) {
	tr, projectID := newTestTracker(t)
	ctx := context.Background()

	runID, err := tr.RecordBuildRun(ctx, projectID, "op1", "cargo", "cargo build", 1, time.Second, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("RecordBuildRun: %v", err)
	}
	if _, err := tr.IngestOutput(ctx, projectID, runID, "cargo", cargoDoubleError); err != nil {
		t.Fatalf("IngestOutput: %v", err)
	}

	resolved, err := tr.LinkBuildToResolutions(ctx, projectID, nil, []string{"main.rs"})
	if err != nil {
		t.Fatalf("LinkBuildToResolutions: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected exactly 1 auto-resolution (deduped by hash), got %d", len(resolved))
	}
	if resolved[0].Type != model.ResolutionAutoResolved {
		t.Fatalf("expected AutoResolved, got %s", resolved[0].Type)
	}

	// A second call should not create a duplicate resolution for an
	// already-resolved error.
	resolvedAgain, err := tr.LinkBuildToResolutions(ctx, projectID, nil, []string{"main.rs"})
	if err != nil {
		t.Fatalf("LinkBuildToResolutions (second call): %v", err)
	}
	if len(resolvedAgain) != 0 {
		t.Fatalf("expected no further resolutions once resolved, got %d", len(resolvedAgain))
	}
}

func TestFindSimilarResolutions_ExactHashOutranksCategory(t *testing.T) {
	tr, projectID := newTestTracker(t)
	ctx := context.Background()

	runID, err := tr.RecordBuildRun(ctx, projectID, "op1", "cargo", "cargo build", 1, time.Second, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("RecordBuildRun: %v", err)
	}
	ingested, err := tr.IngestOutput(ctx, projectID, runID, "cargo", cargoDoubleError)
	if err != nil {
		t.Fatalf("IngestOutput: %v", err)
	}
	be := ingested[0]

	if _, err := tr.RecordResolution(ctx, be.ErrorHash, model.ResolutionManual, []string{"src/main.rs"}, nil, nil, nil); err != nil {
		t.Fatalf("RecordResolution: %v", err)
	}

	similar, err := tr.FindSimilarResolutions(ctx, be)
	if err != nil {
		t.Fatalf("FindSimilarResolutions: %v", err)
	}
	if len(similar) == 0 {
		t.Fatal("expected at least one similar resolution")
	}
	if similar[0].Score != 1.0 {
		t.Fatalf("expected the exact-hash match to rank first with score 1.0, got %v", similar[0].Score)
	}
}

func TestHashError_StableAcrossCalls(t *testing.T) {
	a := HashError("src/main.rs", 10, "E0308", "mismatched types")
	b := HashError("src/main.rs", 10, "E0308", "mismatched types")
	if a != b {
		t.Fatalf("expected deterministic hash, got %q vs %q", a, b)
	}
	c := HashError("src/main.rs", 11, "E0308", "mismatched types")
	if a == c {
		t.Fatal("expected a different line to produce a different hash")
	}
}
