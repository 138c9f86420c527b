package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"mira/internal/merr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "mira.db"), 2000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrationsIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mira.db")

	s1, err := Open(path, 2000)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(path, 2000)
	if err != nil {
		t.Fatalf("second Open (re-running migrations): %v", err)
	}
	defer s2.Close()
}

func TestEnsureProject_IdempotentByPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p1, err := EnsureProject(ctx, s, "/repo/a", "a")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	p2, err := EnsureProject(ctx, s, "/repo/a", "a-renamed")
	if err != nil {
		t.Fatalf("EnsureProject (again): %v", err)
	}
	if p1.ID != p2.ID {
		t.Fatalf("expected same project id, got %d and %d", p1.ID, p2.ID)
	}
}

func TestInteractTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := InteractTx(ctx, s, "test.rollback", func(ctx context.Context, tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO projects(path, name) VALUES ('/rollback-me', 'x')`); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, sql.ErrConnDone
	})
	if err == nil {
		t.Fatalf("expected error from failing interact_tx")
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE path = '/rollback-me'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the insert, found %d rows", count)
	}
}

func TestVectorIndex_UpsertAndKNN(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	vi, err := NewVectorIndex(ctx, s, "test_vec", "owner_id", 4)
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}

	if err := vi.Upsert(ctx, 1, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Upsert 1: %v", err)
	}
	if err := vi.Upsert(ctx, 2, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Upsert 2: %v", err)
	}

	neighbors, err := vi.KNN(ctx, []float32{1, 0, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != 1 {
		t.Fatalf("expected nearest neighbor id=1, got %+v", neighbors)
	}

	if err := vi.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	neighbors, err = vi.KNN(ctx, []float32{1, 0, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("KNN after delete: %v", err)
	}
	for _, n := range neighbors {
		if n.ID == 1 {
			t.Fatalf("expected id=1 to be deleted, still present: %+v", neighbors)
		}
	}
}

func TestGetProject_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := GetProject(context.Background(), s, 999)
	if !merr.Is(err, merr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
