package embedding

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mira/internal/logging"
	"mira/internal/store"
)

// Service is the async facade over an Engine: a fire-and-forget write
// hook, backfill of missing vectors, and embed_query for recall. Failure
// policy per spec.md §4.3: transient errors retry with exponential
// backoff up to a cap; persistent failures leave the fact/chunk without
// an embedding rather than widening None to a zero vector.
type Service struct {
	engine     Engine
	maxRetries int
	backoffMin time.Duration
	backoffCap time.Duration

	queue chan job
	wg    sync.WaitGroup
	done  chan struct{}
}

type job struct {
	id     int64
	text   string
	target *store.VectorIndex
}

// Config tunes the async queue and retry policy.
type Config struct {
	QueueCapacity int
	MaxRetries    int
	BackoffBaseMs int
	BackoffCapMs  int
}

// NewService starts a Service with a single background worker draining the
// write-hook queue. The queue is bounded; back-pressure is exerted by
// blocking the producer when full, per spec.md §5.
func NewService(engine Engine, cfg Config) *Service {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffBaseMs <= 0 {
		cfg.BackoffBaseMs = 250
	}
	if cfg.BackoffCapMs <= 0 {
		cfg.BackoffCapMs = 30000
	}

	s := &Service{
		engine:     engine,
		maxRetries: cfg.MaxRetries,
		backoffMin: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		backoffCap: time.Duration(cfg.BackoffCapMs) * time.Millisecond,
		queue:      make(chan job, cfg.QueueCapacity),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// EnqueueWrite is the fire-and-forget write hook: after a fact (or code
// chunk) is stored, enqueue its text for embedding. Blocks if the queue is
// at capacity, per spec.md §5's back-pressure policy.
func (s *Service) EnqueueWrite(id int64, text string, target *store.VectorIndex) {
	select {
	case s.queue <- job{id: id, text: text, target: target}:
	case <-s.done:
	}
}

// Close stops the background worker, draining what's already queued.
func (s *Service) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case j := <-s.queue:
			s.processWithRetry(j)
		case <-s.done:
			for {
				select {
				case j := <-s.queue:
					s.processWithRetry(j)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) processWithRetry(j job) {
	ctx := context.Background()
	backoff := s.backoffMin
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		vec, err := s.engine.Embed(ctx, j.text)
		if err == nil {
			if uerr := j.target.Upsert(ctx, j.id, vec); uerr != nil {
				logging.EmbeddingError("upsert failed for id=%d: %v", j.id, uerr)
			}
			return
		}
		if err == ErrNoProvider {
			// Not transient: no amount of retrying will configure a
			// provider. Leave unembedded; keyword search still works.
			return
		}
		if attempt == s.maxRetries {
			logging.EmbeddingError("embedding permanently failed for id=%d after %d attempts: %v", j.id, attempt+1, err)
			return
		}
		jittered := backoff + time.Duration(rand.Int63n(int64(backoff/2+1)))
		logging.EmbeddingDebug("embedding attempt %d failed for id=%d, retrying in %s: %v", attempt+1, j.id, jittered, err)
		time.Sleep(jittered)
		backoff *= 2
		if backoff > s.backoffCap {
			backoff = s.backoffCap
		}
	}
}

// EmbedQuery embeds text synchronously for use at recall time.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.engine.Embed(ctx, text)
}

// Backfiller scans rows with no embedding and embeds them in batches.
type Backfiller struct {
	svc *Service
}

func NewBackfiller(svc *Service) *Backfiller { return &Backfiller{svc: svc} }

// MissingRow is a single row a backfill source needs embedded.
type MissingRow struct {
	ID   int64
	Text string
}

// Backfill embeds up to limit rows returned by fetchMissing, upserting
// into target. fetchMissing is supplied by the caller (fact store or code
// index) since each has its own "which rows lack a vector" query.
func (b *Backfiller) Backfill(ctx context.Context, limit int, target *store.VectorIndex, fetchMissing func(ctx context.Context, limit int) ([]MissingRow, error)) (int, error) {
	rows, err := fetchMissing(ctx, limit)
	if err != nil {
		return 0, err
	}
	embedded := 0
	for _, r := range rows {
		vec, err := b.svc.engine.Embed(ctx, r.Text)
		if err != nil {
			logging.EmbeddingDebug("backfill skip id=%d: %v", r.ID, err)
			continue
		}
		if err := target.Upsert(ctx, r.ID, vec); err != nil {
			logging.EmbeddingError("backfill upsert failed id=%d: %v", r.ID, err)
			continue
		}
		embedded++
	}
	return embedded, nil
}
