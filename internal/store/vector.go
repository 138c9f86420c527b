package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"mira/internal/merr"
)

// VectorIndex is a thin wrapper around a vec0 virtual table keyed by an
// integer id, per spec.md §4.1: Upsert(id, vector), Delete(id),
// KNN(vector, k, filter). When sqlite-vec isn't available it falls back to
// a brute-force cosine scan over a plain table, so recall still works
// (slower) without the cgo extension.
//
// Grounded on the teacher's internal/store/vector_store.go upsert/knn idiom
// and init_vec.go's vec0 registration.
type VectorIndex struct {
	store     *Store
	table     string // backing table name, e.g. "fact_vec"
	ownerCol  string // the id column referencing the owning entity
	dim       int
	usingVec0 bool
}

// NewVectorIndex creates (if needed) the backing table for a named vector
// index and returns a handle to it. dim is the embedding dimensionality;
// it's only enforced when sqlite-vec's vec0 module is active (vec0 requires
// a fixed width per table).
func NewVectorIndex(ctx context.Context, s *Store, name, ownerCol string, dim int) (*VectorIndex, error) {
	vi := &VectorIndex{store: s, table: name, ownerCol: ownerCol, dim: dim, usingVec0: s.HasVectorExtension()}

	var ddl string
	if vi.usingVec0 {
		ddl = fmt.Sprintf(
			`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(%s INTEGER PRIMARY KEY, embedding float[%d])`,
			name, ownerCol, dim,
		)
	} else {
		ddl = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY, embedding BLOB NOT NULL)`,
			name, ownerCol,
		)
	}
	if _, err := Interact(ctx, s, "vector.New", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, ddl)
		return struct{}{}, err
	}); err != nil {
		return nil, err
	}
	return vi, nil
}

// Upsert stores or replaces the vector for id.
func (vi *VectorIndex) Upsert(ctx context.Context, id int64, vec []float32) error {
	blob := encodeVector(vec)
	query := fmt.Sprintf(`INSERT INTO %s(%s, embedding) VALUES (?, ?)
		ON CONFLICT(%s) DO UPDATE SET embedding = excluded.embedding`, vi.table, vi.ownerCol, vi.ownerCol)
	if vi.usingVec0 {
		// vec0 virtual tables do not accept ON CONFLICT; replace by delete + insert.
		query = fmt.Sprintf(`INSERT INTO %s(%s, embedding) VALUES (?, ?)`, vi.table, vi.ownerCol)
	}
	_, err := Interact(ctx, vi.store, "vector.Upsert", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		if vi.usingVec0 {
			del := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, vi.table, vi.ownerCol)
			if _, err := db.ExecContext(ctx, del, id); err != nil {
				return struct{}{}, err
			}
		}
		_, err := db.ExecContext(ctx, query, id, blob)
		return struct{}{}, err
	})
	return err
}

// Delete removes the vector for id, if present.
func (vi *VectorIndex) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, vi.table, vi.ownerCol)
	_, err := Interact(ctx, vi.store, "vector.Delete", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, query, id)
		return struct{}{}, err
	})
	return err
}

// Neighbor is one KNN result.
type Neighbor struct {
	ID       int64
	Distance float64
}

// KNN returns the k nearest neighbors to query, optionally restricted to
// the given candidate ids (filter). A nil filter searches the whole table.
func (vi *VectorIndex) KNN(ctx context.Context, query []float32, k int, filter []int64) ([]Neighbor, error) {
	if vi.usingVec0 {
		return vi.knnVec0(ctx, query, k, filter)
	}
	return vi.knnBruteForce(ctx, query, k, filter)
}

func (vi *VectorIndex) knnVec0(ctx context.Context, query []float32, k int, filter []int64) ([]Neighbor, error) {
	blob := encodeVector(query)
	sqlStr := fmt.Sprintf(
		`SELECT %s, distance FROM %s WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		vi.ownerCol, vi.table,
	)
	rows, err := Interact(ctx, vi.store, "vector.KNN", func(ctx context.Context, db *sql.DB) (*sql.Rows, error) {
		return db.QueryContext(ctx, sqlStr, blob, k)
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	filterSet := toSet(filter)
	var out []Neighbor
	for rows.Next() {
		var id int64
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, merr.Fatalf("vector.KNN", err, "scan row")
		}
		if filterSet != nil && !filterSet[id] {
			continue
		}
		out = append(out, Neighbor{ID: id, Distance: dist})
	}
	return out, rows.Err()
}

func (vi *VectorIndex) knnBruteForce(ctx context.Context, query []float32, k int, filter []int64) ([]Neighbor, error) {
	sqlStr := fmt.Sprintf(`SELECT %s, embedding FROM %s`, vi.ownerCol, vi.table)
	rows, err := Interact(ctx, vi.store, "vector.KNN", func(ctx context.Context, db *sql.DB) (*sql.Rows, error) {
		return db.QueryContext(ctx, sqlStr)
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	filterSet := toSet(filter)
	var out []Neighbor
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, merr.Fatalf("vector.KNN", err, "scan row")
		}
		if filterSet != nil && !filterSet[id] {
			continue
		}
		vec := decodeVector(blob)
		out = append(out, Neighbor{ID: id, Distance: cosineDistance(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func toSet(ids []int64) map[int64]bool {
	if ids == nil {
		return nil
	}
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// cosineDistance returns 1 - cosine_similarity, matching sqlite-vec's
// distance convention (smaller is closer).
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2 // maximal distance for incomparable vectors
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - sim
}
