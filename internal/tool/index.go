package tool

import (
	"context"

	"mira/internal/merr"
	"mira/internal/store"
)

// IndexReq triggers a project-wide re-index, per spec.md §4.4/§6.
// Path defaults to the bound project's root when omitted.
type IndexReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	Path      string `json:"path,omitempty"`
	NoEmbed   bool   `json:"no_embed,omitempty"`
}

type IndexResp struct {
	FilesIndexed int `json:"files_indexed"`
	FilesFailed  int `json:"files_failed"`
}

func handleIndex(ctx context.Context, d *Deps, req IndexReq) (IndexResp, error) {
	projectID, err := requireProject(d, req.ProjectID)
	if err != nil {
		return IndexResp{}, err
	}
	path := req.Path
	if path == "" {
		proj, err := store.GetProject(ctx, d.DB, projectID)
		if err != nil {
			return IndexResp{}, err
		}
		path = proj.Path
	}
	if d.Index == nil {
		return IndexResp{}, merr.Fatalf("tool.index", nil, "indexer not configured")
	}

	embed, chunkVec := d.Embed, d.ChunkVec
	if req.NoEmbed {
		embed, chunkVec = nil, nil
	}
	res, err := d.Index.IndexProject(ctx, projectID, path, embed, chunkVec)
	if err != nil {
		return IndexResp{}, err
	}
	return IndexResp{FilesIndexed: res.FilesIndexed, FilesFailed: res.FilesFailed}, nil
}
