package search

import (
	"context"
	"database/sql"

	"mira/internal/embedding"
	"mira/internal/store"
)

// CodeMatch is one semantic code-search hit.
type CodeMatch struct {
	ChunkID  int64
	FilePath string
	Text     string
	Distance float64
}

// SemanticCodeSearch embeds query and ANN-queries the code-chunk vector
// store, filtered to projectID, per spec.md §4.5.
func (e *Engine) SemanticCodeSearch(ctx context.Context, svc *embedding.Service, chunkVec *store.VectorIndex, projectID int64, query string, limit int) ([]CodeMatch, error) {
	vec, err := svc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	neighbors, err := chunkVec.KNN(ctx, vec, limit*3, nil)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	distByID := make(map[int64]float64, len(neighbors))
	ids := make([]any, len(neighbors))
	placeholders := make([]string, len(neighbors))
	for i, n := range neighbors {
		distByID[n.ID] = n.Distance
		ids[i] = n.ID
		placeholders[i] = "?"
	}

	return store.Interact(ctx, e.db, "search.SemanticCodeSearch", func(ctx context.Context, db *sql.DB) ([]CodeMatch, error) {
		sqlStr := `SELECT id, file_path, text FROM code_chunks WHERE project_id = ? AND id IN (` + joinPlaceholders(placeholders) + `)`
		args := append([]any{projectID}, ids...)
		rows, err := db.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []CodeMatch
		for rows.Next() {
			var m CodeMatch
			if err := rows.Scan(&m.ChunkID, &m.FilePath, &m.Text); err != nil {
				return nil, err
			}
			m.Distance = distByID[m.ChunkID]
			out = append(out, m)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		insertionSortByDistance(out)
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func insertionSortByDistance(m []CodeMatch) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].Distance < m[j-1].Distance; j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}
