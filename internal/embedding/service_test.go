package embedding

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mira/internal/store"
)

func openTestVectorIndex(t *testing.T) (*store.Store, *store.VectorIndex) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "mira.db"), 2000)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	vi, err := store.NewVectorIndex(context.Background(), s, "svc_test_vec", "owner_id", 32)
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	return s, vi
}

func TestService_EnqueueWrite_UpsertsEventually(t *testing.T) {
	_, vi := openTestVectorIndex(t)
	svc := NewService(NewDeterministicEngine(32), Config{QueueCapacity: 4, MaxRetries: 1})
	defer svc.Close()

	svc.EnqueueWrite(1, "hello world", vi)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		neighbors, err := vi.KNN(context.Background(), mustEmbed(t, "hello world"), 1, nil)
		if err != nil {
			t.Fatalf("KNN: %v", err)
		}
		if len(neighbors) == 1 && neighbors[0].ID == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected async write to upsert embedding within deadline")
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	e := NewDeterministicEngine(32)
	v, err := e.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	return v
}

func TestService_EmbedQuery_NullEngineReturnsErrNoProvider(t *testing.T) {
	svc := NewService(NewNullEngine(32), Config{})
	defer svc.Close()

	_, err := svc.EmbedQuery(context.Background(), "anything")
	if err != ErrNoProvider {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestBackfiller_EmbedsMissingRows(t *testing.T) {
	_, vi := openTestVectorIndex(t)
	svc := NewService(NewDeterministicEngine(32), Config{})
	defer svc.Close()
	bf := NewBackfiller(svc)

	fetch := func(ctx context.Context, limit int) ([]MissingRow, error) {
		return []MissingRow{{ID: 10, Text: "alpha"}, {ID: 11, Text: "beta"}}, nil
	}

	n, err := bf.Backfill(context.Background(), 10, vi, fetch)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 embedded, got %d", n)
	}

	neighbors, err := vi.KNN(context.Background(), mustEmbed(t, "alpha"), 1, nil)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != 10 {
		t.Fatalf("expected nearest id=10, got %+v", neighbors)
	}
}
