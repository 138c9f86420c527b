// Package embedding is the embeddings service: a small provider-agnostic
// capability interface, an async write hook, backfill of missing vectors,
// and embed_query for recall-time queries. Concrete provider SDKs are out
// of core scope (spec.md §1); NullEngine and DeterministicEngine stand in.
//
// Grounded on the teacher's internal/embedding/engine.go Engine interface
// and CosineSimilarity/FindTopK helpers.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"

	"mira/internal/logging"
)

// ErrNoProvider is returned by NullEngine: no embedding provider is
// configured, so callers should fall back to keyword-only search.
var ErrNoProvider = errors.New("embedding: no provider configured")

// Engine is the capability interface the core consumes. A concrete
// provider (OpenAI, etc.) would implement this; none ships in core.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// NullEngine always fails with ErrNoProvider. Selected when no API key is
// configured (spec.md §6: "absent → keyword-only mode").
type NullEngine struct{ dim int }

func NewNullEngine(dim int) *NullEngine { return &NullEngine{dim: dim} }

func (n *NullEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNoProvider
}
func (n *NullEngine) Dimensions() int { return n.dim }
func (n *NullEngine) Name() string    { return "null" }

// DeterministicEngine produces stable, hash-projected vectors for a given
// text without calling any external provider. It exists purely for tests
// and local development where semantic fidelity doesn't matter but a
// reproducible, non-zero vector does — mirroring the role the teacher's
// CosineSimilarity/FindTopK test helpers play for its own engine.
type DeterministicEngine struct{ dim int }

func NewDeterministicEngine(dim int) *DeterministicEngine {
	if dim <= 0 {
		dim = 32
	}
	return &DeterministicEngine{dim: dim}
}

func (d *DeterministicEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, d.dim)
	for i := 0; i < d.dim; i++ {
		b := sum[i%len(sum)]
		// Spread the byte across [-1, 1] so the resulting vector isn't
		// degenerate (all-positive) under cosine similarity.
		vec[i] = (float32(b)/127.5 - 1) / float32(1+i%7)
	}
	normalize(vec)
	return vec, nil
}
func (d *DeterministicEngine) Dimensions() int { return d.dim }
func (d *DeterministicEngine) Name() string    { return "deterministic" }

func normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

// New selects an Engine by provider name, matching the teacher's
// NewEngine(cfg) factory switch.
func New(provider string, dim int) Engine {
	switch provider {
	case "deterministic":
		logging.Embedding("using deterministic embedding engine (dim=%d)", dim)
		return NewDeterministicEngine(dim)
	default:
		logging.Embedding("no embedding provider configured; keyword-only mode")
		return NewNullEngine(dim)
	}
}

// CosineSimilarity mirrors the teacher's helper of the same name, kept for
// components (search rank fusion) that compare two in-memory vectors
// directly rather than going through the store's vector index.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVec(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
