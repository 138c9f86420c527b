package tool

import (
	"context"

	"mira/internal/model"
	"mira/internal/store"
)

// SessionStartReq mirrors internal/hooks.SessionStart's inputs.
type SessionStartReq struct {
	SessionID string `json:"session_id"`
	ProjectID *int64 `json:"project_id,omitempty"`
}

// SessionStartResp carries the bootstrap context blob back to the host.
type SessionStartResp struct {
	Context string `json:"context"`
}

func handleSessionStart(ctx context.Context, d *Deps, req SessionStartReq) (SessionStartResp, error) {
	projectID := req.ProjectID
	if projectID == nil {
		projectID = d.ActiveProjectID
	}
	blob, err := d.Hooks.SessionStart(ctx, req.SessionID, projectID)
	if err != nil {
		return SessionStartResp{}, err
	}
	return SessionStartResp{Context: blob.Text}, nil
}

// SetProjectReq binds the active project for subsequent tool calls that
// omit an explicit project_id, per spec.md §6's "context bootstrapping".
type SetProjectReq struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

type SetProjectResp struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
	Name      string `json:"name"`
}

func handleSetProject(ctx context.Context, d *Deps, req SetProjectReq) (SetProjectResp, error) {
	name := req.Name
	if name == "" {
		name = req.Path
	}
	proj, err := store.EnsureProject(ctx, d.DB, req.Path, name)
	if err != nil {
		return SetProjectResp{}, err
	}
	d.ActiveProjectID = &proj.ID
	return SetProjectResp{ProjectID: proj.ID, Path: proj.Path, Name: proj.Name}, nil
}

type GetProjectReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
}

type GetProjectResp struct {
	Project *model.Project `json:"project"`
}

func handleGetProject(ctx context.Context, d *Deps, req GetProjectReq) (GetProjectResp, error) {
	id, err := requireProject(d, req.ProjectID)
	if err != nil {
		return GetProjectResp{}, err
	}
	proj, err := store.GetProject(ctx, d.DB, id)
	if err != nil {
		return GetProjectResp{}, err
	}
	return GetProjectResp{Project: &proj}, nil
}
