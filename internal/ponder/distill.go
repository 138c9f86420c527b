package ponder

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/store"
)

// DistillTeam implements spec.md §4.7's team distillation: when a team
// session ends, the memories created by team-scoped sessions are
// distilled into at most 10 summarized "team findings", grouped by
// category, deduplicated by containment + word-overlap (Jaccard > 0.7
// is "same"), and written back as fact_type = 'distilled', scope =
// 'team'.
func (m *Miner) DistillTeam(ctx context.Context, teamID int64) ([]int64, error) {
	facts, err := m.teamFacts(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}

	grouped := make(map[string][]model.Fact)
	var categories []string
	for _, f := range facts {
		cat := "uncategorized"
		if f.Category != nil && *f.Category != "" {
			cat = *f.Category
		}
		if _, ok := grouped[cat]; !ok {
			categories = append(categories, cat)
		}
		grouped[cat] = append(grouped[cat], f)
	}
	sort.Strings(categories)

	var kept []model.Fact
	for _, cat := range categories {
		kept = append(kept, dedupeByContainmentAndJaccard(grouped[cat])...)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
	if len(kept) > 10 {
		kept = kept[:10]
	}

	var ids []int64
	for _, f := range kept {
		id, err := m.facts.Store(ctx, memory.StoreParams{
			ProjectID:  f.ProjectID,
			Content:    f.Content,
			FactType:   "distilled",
			Category:   f.Category,
			Confidence: f.Confidence,
			Scope:      model.ScopeTeam,
			TeamID:     &teamID,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Miner) teamFacts(ctx context.Context, teamID int64) ([]model.Fact, error) {
	return store.Interact(ctx, m.db, "ponder.teamFacts", func(ctx context.Context, db *sql.DB) ([]model.Fact, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT id, project_id, content, fact_type, category, confidence
			FROM memory_facts
			WHERE team_id = ? AND scope = 'team' AND fact_type != 'distilled'
			  AND status != 'archived' AND suspicious = 0
			ORDER BY confidence DESC`, teamID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []model.Fact
		for rows.Next() {
			var f model.Fact
			if err := rows.Scan(&f.ID, &f.ProjectID, &f.Content, &f.FactType, &f.Category, &f.Confidence); err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, rows.Err()
	})
}

// dedupeByContainmentAndJaccard keeps the first occurrence of each
// "distinct" fact in order, dropping later facts whose content either
// contains/is-contained-by, or word-overlaps above 0.7 Jaccard with, a
// fact already kept.
func dedupeByContainmentAndJaccard(facts []model.Fact) []model.Fact {
	var kept []model.Fact
	for _, f := range facts {
		dup := false
		for _, k := range kept {
			if isSameFinding(f.Content, k.Content) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, f)
		}
	}
	return kept
}

func isSameFinding(a, b string) bool {
	normA, normB := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if normA == "" || normB == "" {
		return normA == normB
	}
	if strings.Contains(normA, normB) || strings.Contains(normB, normA) {
		return true
	}
	return jaccard(wordSet(normA), wordSet(normB)) > 0.7
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
