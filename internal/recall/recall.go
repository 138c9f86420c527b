// Package recall implements the recall engine from spec.md §4.6: a
// parallel fan-out over seven context sources, merge/trim into a budget,
// and a deterministic Markdown renderer.
//
// Pipeline fan-out grounded on golang.org/x/sync/errgroup (the pack-wide
// idiom for joined parallel I/O); the tiered budget/trim idea is
// grounded on the teacher's internal/retrieval/tiered_context.go
// (4-tier percentage budget), generalized from "files" to the eight
// recall categories spec.md §4.6 names.
package recall

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mira/internal/embedding"
	"mira/internal/logging"
	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/search"
	"mira/internal/store"
)

// Input is the recall request, per spec.md §4.6.
type Input struct {
	Query     string
	SessionID string
	ProjectID *int64
	UserID    *string
	TeamID    *int64
	Files     []string
	Topics    []string
	Task      *string
	Error     *string
	Config    Config
}

// Config enumerates what to include and the budget limits, per spec.md
// §4.6's literal field list.
type Config struct {
	IncludeCodeSearch        bool
	IncludeCallGraph         bool
	IncludeCochange          bool
	IncludeHistoricalFixes   bool
	IncludePatterns          bool
	IncludeReasoningPatterns bool
	IncludeBuildErrors       bool
	IncludeExpertise         bool

	MaxContextTokens      int
	MaxCodeResults        int
	MaxCochangeSuggestions int
	MaxHistoricalFixes    int
}

// Presets, per spec.md §4.6.
var (
	Minimal = Config{
		IncludeCodeSearch: true,
		MaxContextTokens:  2000, MaxCodeResults: 3, MaxCochangeSuggestions: 0, MaxHistoricalFixes: 0,
	}
	Default = Config{
		IncludeCodeSearch: true, IncludeCallGraph: true, IncludeCochange: true,
		IncludePatterns: true, IncludeBuildErrors: true,
		MaxContextTokens: 8000, MaxCodeResults: 8, MaxCochangeSuggestions: 5, MaxHistoricalFixes: 3,
	}
	Full = Config{
		IncludeCodeSearch: true, IncludeCallGraph: true, IncludeCochange: true,
		IncludeHistoricalFixes: true, IncludePatterns: true, IncludeReasoningPatterns: true,
		IncludeBuildErrors: true, IncludeExpertise: true,
		MaxContextTokens: 20000, MaxCodeResults: 20, MaxCochangeSuggestions: 15, MaxHistoricalFixes: 10,
	}
	ForError = Config{
		IncludeCodeSearch: true, IncludeCallGraph: true, IncludeHistoricalFixes: true,
		IncludeBuildErrors: true, IncludePatterns: true,
		MaxContextTokens: 12000, MaxCodeResults: 10, MaxCochangeSuggestions: 3, MaxHistoricalFixes: 10,
	}
)

// Degrade steps a config down one tier when the caller's usage ratio
// (used_tokens/budget) crosses a threshold, per spec.md §4.6's
// "budget-aware selectors that degrade from full -> default -> minimal".
func Degrade(current Config, usageRatio float64) Config {
	switch {
	case usageRatio >= 0.9:
		return Minimal
	case usageRatio >= 0.75:
		return Default
	default:
		return current
	}
}

// Engine wires the recall pipeline to its backing stores.
type Engine struct {
	db       *store.Store
	facts    *memory.Store
	search   *search.Engine
	embedSvc *embedding.Service
	chunkVec *store.VectorIndex
	factVec  *store.VectorIndex
}

func New(db *store.Store, facts *memory.Store, se *search.Engine, embedSvc *embedding.Service, chunkVec, factVec *store.VectorIndex) *Engine {
	return &Engine{db: db, facts: facts, search: se, embedSvc: embedSvc, chunkVec: chunkVec, factVec: factVec}
}

// Gather runs the pipeline and returns the merged, trimmed, rendered
// context. Each sub-query may suspend on I/O; errgroup joins them with a
// soft end-to-end deadline.
func (e *Engine) Gather(ctx context.Context, in Input) (*GatheredContext, error) {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	gathered := &GatheredContext{SourcesUsed: []string{}}
	var mu sync.Mutex
	set := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	if in.Config.IncludeCodeSearch && e.embedSvc != nil && e.chunkVec != nil {
		g.Go(func() error {
			matches, err := e.search.SemanticCodeSearch(gctx, e.embedSvc, e.chunkVec, projectIDOr(in.ProjectID), in.Query, in.Config.MaxCodeResults)
			if err != nil {
				logging.RecallDebug("code search failed: %v", err)
				return nil
			}
			set(func() { gathered.CodeSearch = matches; gathered.mark("code_search") })
			return nil
		})
	}

	if in.Config.IncludeCallGraph {
		g.Go(func() error {
			name := focalSymbol(in)
			if name == "" {
				return nil
			}
			callers, _ := e.search.Callers(gctx, projectIDOr(in.ProjectID), name)
			callees, _ := e.search.Callees(gctx, projectIDOr(in.ProjectID), name)
			if len(callers) == 0 && len(callees) == 0 {
				return nil
			}
			set(func() {
				gathered.Callers = callers
				gathered.Callees = callees
				gathered.mark("call_graph")
			})
			return nil
		})
	}

	if in.Config.IncludeCochange && len(in.Files) > 0 {
		g.Go(func() error {
			suggestions, err := e.cochangeSuggestions(gctx, projectIDOr(in.ProjectID), in.Files, in.Config.MaxCochangeSuggestions)
			if err != nil || len(suggestions) == 0 {
				return nil
			}
			set(func() { gathered.Cochange = suggestions; gathered.mark("cochange") })
			return nil
		})
	}

	if in.Config.IncludeHistoricalFixes && in.Error != nil {
		g.Go(func() error {
			fixes, err := e.historicalFixes(gctx, projectIDOr(in.ProjectID), *in.Error, in.Config.MaxHistoricalFixes)
			if err != nil || len(fixes) == 0 {
				return nil
			}
			set(func() { gathered.HistoricalFixes = fixes; gathered.mark("historical_fixes") })
			return nil
		})
	}

	if in.Config.IncludePatterns || in.Config.IncludeReasoningPatterns {
		g.Go(func() error {
			patterns, err := e.behaviorPatterns(gctx, projectIDOr(in.ProjectID), in.Config.IncludeReasoningPatterns)
			if err != nil || len(patterns) == 0 {
				return nil
			}
			set(func() { gathered.Patterns = patterns; gathered.mark("patterns") })
			return nil
		})
	}

	if in.Config.IncludeBuildErrors {
		g.Go(func() error {
			errs, err := e.recentBuildErrors(gctx, projectIDOr(in.ProjectID))
			if err != nil || len(errs) == 0 {
				return nil
			}
			set(func() { gathered.BuildErrors = errs; gathered.mark("build_errors") })
			return nil
		})
	}

	g.Go(func() error {
		facts, err := e.facts.Search(gctx, in.ProjectID, in.Query, in.UserID, in.TeamID, 10)
		if err != nil {
			facts = nil
		}
		// Preference/context facts via hybrid (semantic + keyword), per
		// spec.md §4.6 step 7: fold RecallSemantic's nearest-neighbor hits
		// into the keyword results whenever embeddings are available.
		if in.Query != "" && e.embedSvc != nil && e.factVec != nil {
			if vec, embErr := e.embedSvc.EmbedQuery(gctx, in.Query); embErr == nil {
				if semantic, semErr := e.facts.RecallSemantic(gctx, e.factVec, vec, in.ProjectID, in.UserID, in.TeamID, 10); semErr == nil {
					facts = mergeFacts(facts, semantic)
				}
			}
		}
		if len(facts) == 0 {
			return nil
		}
		set(func() { gathered.Facts = facts; gathered.mark("facts") })
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	trim(gathered, in.Config.MaxContextTokens)
	return gathered, nil
}

// mergeFacts unions keyword hits with semantic neighbors, keyword order
// first (it already reflects relevance), then any additional facts the
// vector search surfaced that keyword matching missed.
func mergeFacts(keyword []model.Fact, semantic []memory.FactDistance) []model.Fact {
	seen := make(map[int64]bool, len(keyword))
	out := make([]model.Fact, 0, len(keyword)+len(semantic))
	for _, f := range keyword {
		seen[f.ID] = true
		out = append(out, f)
	}
	for _, fd := range semantic {
		if seen[fd.Fact.ID] {
			continue
		}
		seen[fd.Fact.ID] = true
		out = append(out, fd.Fact)
	}
	return out
}

func focalSymbol(in Input) string {
	_, name := search.DetectIntent(in.Query)
	if name != "" {
		return name
	}
	if len(in.Topics) > 0 {
		return in.Topics[0]
	}
	return ""
}

func projectIDOr(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// GatheredContext is the typed bundle spec.md §4.6 calls for: per-category
// lists plus a sources_used audit trail.
type GatheredContext struct {
	CodeSearch      []search.CodeMatch
	Callers         []search.XRef
	Callees         []search.XRef
	Cochange        []CochangeSuggestion
	HistoricalFixes []HistoricalFix
	Patterns        []model.BehaviorPattern
	BuildErrors     []model.BuildError
	Facts           []model.Fact
	SourcesUsed     []string
}

func (g *GatheredContext) mark(source string) {
	g.SourcesUsed = append(g.SourcesUsed, source)
}

