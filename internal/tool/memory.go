package tool

import (
	"context"

	"mira/internal/memory"
	"mira/internal/model"
	"mira/internal/recall"
)

// RememberReq is the assistant-facing fact-write request, per spec.md
// §4.2/§6.
type RememberReq struct {
	ProjectID  *int64  `json:"project_id,omitempty"`
	Key        *string `json:"key,omitempty"`
	Content    string  `json:"content"`
	FactType   string  `json:"fact_type"`
	Category   *string `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	SessionID  *string `json:"session_id,omitempty"`
	UserID     *string `json:"user_id,omitempty"`
	Scope      string  `json:"scope"`
	Branch     *string `json:"branch,omitempty"`
	TeamID     *int64  `json:"team_id,omitempty"`
	Suspicious bool    `json:"suspicious,omitempty"`
}

type RememberResp struct {
	FactID int64 `json:"fact_id"`
}

func handleRemember(ctx context.Context, d *Deps, req RememberReq) (RememberResp, error) {
	projectID := req.ProjectID
	if projectID == nil {
		projectID = d.ActiveProjectID
	}
	scope := model.Scope(req.Scope)
	if scope == "" {
		scope = model.ScopeProject
	}
	id, err := d.Facts.Store(ctx, memory.StoreParams{
		ProjectID:  projectID,
		Key:        req.Key,
		Content:    req.Content,
		FactType:   req.FactType,
		Category:   req.Category,
		Confidence: req.Confidence,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		Scope:      scope,
		Branch:     req.Branch,
		TeamID:     req.TeamID,
		Suspicious: req.Suspicious,
	})
	if err != nil {
		return RememberResp{}, err
	}
	return RememberResp{FactID: id}, nil
}

// RecallReq drives the recall engine's Gather, per spec.md §4.6/§6.
type RecallReq struct {
	Query     string   `json:"query"`
	SessionID string   `json:"session_id,omitempty"`
	ProjectID *int64   `json:"project_id,omitempty"`
	UserID    *string  `json:"user_id,omitempty"`
	TeamID    *int64   `json:"team_id,omitempty"`
	Files     []string `json:"files,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	Task      *string  `json:"task,omitempty"`
	Error     *string  `json:"error,omitempty"`
	Preset    string   `json:"preset,omitempty"` // minimal|default|full|for_error
}

type RecallResp struct {
	Markdown    string   `json:"markdown"`
	SourcesUsed []string `json:"sources_used"`
}

func handleRecall(ctx context.Context, d *Deps, req RecallReq) (RecallResp, error) {
	projectID := req.ProjectID
	if projectID == nil {
		projectID = d.ActiveProjectID
	}
	cfg := presetConfig(req.Preset, req.Error != nil)
	gathered, err := d.Recall.Gather(ctx, recall.Input{
		Query:     req.Query,
		SessionID: req.SessionID,
		ProjectID: projectID,
		UserID:    req.UserID,
		TeamID:    req.TeamID,
		Files:     req.Files,
		Topics:    req.Topics,
		Task:      req.Task,
		Error:     req.Error,
		Config:    cfg,
	})
	if err != nil {
		// spec.md §7: a failed recall returns an empty bundle with a
		// diagnostic, never propagates a tool-boundary panic.
		return RecallResp{Markdown: "", SourcesUsed: nil}, err
	}
	return RecallResp{Markdown: recall.Render(gathered), SourcesUsed: gathered.SourcesUsed}, nil
}

func presetConfig(preset string, isError bool) recall.Config {
	switch preset {
	case "minimal":
		return recall.Minimal
	case "full":
		return recall.Full
	case "for_error":
		return recall.ForError
	case "default", "":
		if isError {
			return recall.ForError
		}
		return recall.Default
	default:
		return recall.Default
	}
}

// ForgetReq archives or deletes a fact by id, per spec.md §4.2's
// lifecycle (candidate -> confirmed -> archived).
type ForgetReq struct {
	FactID int64 `json:"fact_id"`
	Hard   bool  `json:"hard,omitempty"` // true: delete row; false: archive
}

type ForgetResp struct {
	OK bool `json:"ok"`
}

func handleForget(ctx context.Context, d *Deps, req ForgetReq) (ForgetResp, error) {
	if req.Hard {
		if err := d.Facts.Delete(ctx, req.FactID); err != nil {
			return ForgetResp{}, err
		}
		return ForgetResp{OK: true}, nil
	}
	if err := d.Facts.SetStatus(ctx, req.FactID, model.FactArchived); err != nil {
		return ForgetResp{}, err
	}
	return ForgetResp{OK: true}, nil
}
