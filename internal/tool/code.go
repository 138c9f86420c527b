package tool

import (
	"context"

	"mira/internal/model"
	"mira/internal/search"
)

// GetSymbolsReq looks up symbols by name pattern, per spec.md §4.5.
type GetSymbolsReq struct {
	ProjectID   *int64  `json:"project_id,omitempty"`
	NamePattern string  `json:"name_pattern"`
	SymbolType  *string `json:"symbol_type,omitempty"`
	Limit       int     `json:"limit,omitempty"`
}

type GetSymbolsResp struct {
	Matches []search.SymbolMatch `json:"matches"`
}

func handleGetSymbols(ctx context.Context, d *Deps, req GetSymbolsReq) (GetSymbolsResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return GetSymbolsResp{}, err
	}
	var st *model.SymbolType
	if req.SymbolType != nil {
		t := model.SymbolType(*req.SymbolType)
		st = &t
	}
	matches, err := d.Search.LookupSymbols(ctx, search.SymbolQuery{
		ProjectID:   projectID,
		NamePattern: req.NamePattern,
		SymbolType:  st,
		Limit:       req.Limit,
	})
	if err != nil {
		return GetSymbolsResp{}, err
	}
	return GetSymbolsResp{Matches: matches}, nil
}

// SearchCodeReq runs semantic code search, per spec.md §4.5.
type SearchCodeReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
}

type SearchCodeResp struct {
	Matches []search.CodeMatch `json:"matches"`
}

func handleSearchCode(ctx context.Context, d *Deps, req SearchCodeReq) (SearchCodeResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return SearchCodeResp{}, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if d.Embed == nil || d.ChunkVec == nil {
		return SearchCodeResp{}, nil
	}
	matches, err := d.Search.SemanticCodeSearch(ctx, d.Embed, d.ChunkVec, projectID, req.Query, limit)
	if err != nil {
		return SearchCodeResp{}, err
	}
	return SearchCodeResp{Matches: matches}, nil
}

// FindCallersReq/FindCalleesReq walk the call graph, per spec.md §4.5.
type FindCallersReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	Name      string `json:"name"`
}

type FindCallersResp struct {
	Callers []search.XRef `json:"callers"`
}

func handleFindCallers(ctx context.Context, d *Deps, req FindCallersReq) (FindCallersResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return FindCallersResp{}, err
	}
	xrefs, err := d.Search.Callers(ctx, projectID, req.Name)
	if err != nil {
		return FindCallersResp{}, err
	}
	return FindCallersResp{Callers: xrefs}, nil
}

type FindCalleesReq struct {
	ProjectID  *int64 `json:"project_id,omitempty"`
	CallerName string `json:"caller_name"`
}

type FindCalleesResp struct {
	Callees []search.XRef `json:"callees"`
}

func handleFindCallees(ctx context.Context, d *Deps, req FindCalleesReq) (FindCalleesResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return FindCalleesResp{}, err
	}
	xrefs, err := d.Search.Callees(ctx, projectID, req.CallerName)
	if err != nil {
		return FindCalleesResp{}, err
	}
	return FindCalleesResp{Callees: xrefs}, nil
}

// CheckCapabilityReq answers "does a function like X exist?" by
// layering a symbol name lookup over a semantic fallback, per spec.md
// §6's one-line description of the tool.
type CheckCapabilityReq struct {
	ProjectID   *int64 `json:"project_id,omitempty"`
	Description string `json:"description"`
}

type CheckCapabilityResp struct {
	Exists      bool                 `json:"exists"`
	BestMatches []search.SymbolMatch `json:"best_matches,omitempty"`
	CodeMatches []search.CodeMatch  `json:"code_matches,omitempty"`
}

func handleCheckCapability(ctx context.Context, d *Deps, req CheckCapabilityReq) (CheckCapabilityResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return CheckCapabilityResp{}, err
	}

	symMatches, err := d.Search.LookupSymbols(ctx, search.SymbolQuery{
		ProjectID:   projectID,
		NamePattern: req.Description,
		Limit:       5,
	})
	if err != nil {
		return CheckCapabilityResp{}, err
	}

	var codeMatches []search.CodeMatch
	if d.Embed != nil && d.ChunkVec != nil {
		codeMatches, err = d.Search.SemanticCodeSearch(ctx, d.Embed, d.ChunkVec, projectID, req.Description, 5)
		if err != nil {
			return CheckCapabilityResp{}, err
		}
	}

	return CheckCapabilityResp{
		Exists:      len(symMatches) > 0 || len(codeMatches) > 0,
		BestMatches: symMatches,
		CodeMatches: codeMatches,
	}, nil
}
