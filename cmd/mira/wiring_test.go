package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"mira/internal/tool"
)

func TestBuildDeps_WiresAFullDispatchableStack(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MIRA_DB", filepath.Join(dir, "mira.db"))

	ctx := context.Background()
	deps, closeFn, err := buildDeps(ctx, dir)
	if err != nil {
		t.Fatalf("buildDeps: %v", err)
	}
	defer closeFn()

	raw, err := json.Marshal(tool.SetProjectReq{Path: dir, Name: "test-project"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	result, err := tool.Dispatch(ctx, deps, "set_project", raw)
	if err != nil {
		t.Fatalf("Dispatch(set_project): %v", err)
	}
	var resp tool.SetProjectResp
	if err := json.Unmarshal(result, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ProjectID == 0 {
		t.Fatal("expected a non-zero project id from a fully wired stack")
	}
}
