package tool

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"mira/internal/embedding"
	"mira/internal/hooks"
	"mira/internal/intervene"
	"mira/internal/memory"
	"mira/internal/ponder"
	"mira/internal/search"
	"mira/internal/store"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "mira.db"), 2000)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	facts := memory.New(db)
	se := search.New(db)
	miner := ponder.New(db, facts, nil, ponder.Config{CooldownHours: 6, HeuristicConfCap: 0.85})
	queue := intervene.New(db, intervene.Config{ConfidenceThreshold: 0.6, CooldownMinutes: 30, HourlyCap: 3, RecencyWindowDays: 7, MaxQueueSize: 5})
	h := hooks.New(db, facts, miner)
	embedSvc := embedding.NewService(embedding.NewDeterministicEngine(32), embedding.Config{})

	return &Deps{
		DB:     db,
		Facts:  facts,
		Search: se,
		Embed:  embedSvc,
		Miner:  miner,
		Queue:  queue,
		Hooks:  h,
	}
}

func callTool(t *testing.T, d *Deps, name string, req any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	out, err := Dispatch(context.Background(), d, name, raw)
	if err != nil {
		t.Fatalf("Dispatch(%s): %v", name, err)
	}
	return out
}

func TestDispatch_SetProjectThenGetProject(t *testing.T) {
	d := newTestDeps(t)

	raw := callTool(t, d, "set_project", SetProjectReq{Path: "/p", Name: "p"})
	var setResp SetProjectResp
	if err := json.Unmarshal(raw, &setResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if setResp.ProjectID == 0 {
		t.Fatal("expected a non-zero project id")
	}
	if d.ActiveProjectID == nil || *d.ActiveProjectID != setResp.ProjectID {
		t.Fatal("expected set_project to bind the active project")
	}

	raw = callTool(t, d, "get_project", GetProjectReq{})
	var getResp GetProjectResp
	if err := json.Unmarshal(raw, &getResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if getResp.Project == nil || getResp.Project.ID != setResp.ProjectID {
		t.Fatal("expected get_project to resolve the bound active project")
	}
}

func TestDispatch_RememberForgetRoundTrip(t *testing.T) {
	d := newTestDeps(t)
	callTool(t, d, "set_project", SetProjectReq{Path: "/p", Name: "p"})

	raw := callTool(t, d, "remember", RememberReq{
		Content: "uses postgres", FactType: "architecture", Confidence: 0.8, Scope: "project",
	})
	var rememberResp RememberResp
	if err := json.Unmarshal(raw, &rememberResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rememberResp.FactID == 0 {
		t.Fatal("expected a non-zero fact id")
	}

	raw = callTool(t, d, "forget", ForgetReq{FactID: rememberResp.FactID})
	var forgetResp ForgetResp
	if err := json.Unmarshal(raw, &forgetResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !forgetResp.OK {
		t.Fatal("expected forget to succeed")
	}

	var status string
	if err := d.DB.DB().QueryRow(`SELECT status FROM memory_facts WHERE id = ?`, rememberResp.FactID).Scan(&status); err != nil {
		t.Fatalf("query fact: %v", err)
	}
	if status != "archived" {
		t.Fatalf("expected archived status, got %q", status)
	}
}

func TestDispatch_TaskCreateListComplete(t *testing.T) {
	d := newTestDeps(t)
	callTool(t, d, "set_project", SetProjectReq{Path: "/p", Name: "p"})

	raw := callTool(t, d, "task", TaskReq{Action: "create", Title: "ship v1", Priority: 2})
	var createResp TaskResp
	if err := json.Unmarshal(raw, &createResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if createResp.Task == nil || createResp.Task.ID == 0 {
		t.Fatal("expected a created task")
	}

	raw = callTool(t, d, "task", TaskReq{Action: "list"})
	var listResp TaskResp
	if err := json.Unmarshal(raw, &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listResp.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(listResp.Tasks))
	}

	raw = callTool(t, d, "task", TaskReq{Action: "complete", TaskID: &createResp.Task.ID})
	var completeResp TaskResp
	if err := json.Unmarshal(raw, &completeResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if completeResp.Task.Status != "completed" {
		t.Fatalf("expected completed status, got %q", completeResp.Task.Status)
	}
}

func TestDispatch_GoalCreateAddMilestoneCompletesProgress(t *testing.T) {
	d := newTestDeps(t)
	callTool(t, d, "set_project", SetProjectReq{Path: "/p", Name: "p"})

	raw := callTool(t, d, "goal", GoalReq{Action: "create", Title: "launch"})
	var createResp GoalResp
	if err := json.Unmarshal(raw, &createResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	raw = callTool(t, d, "goal", GoalReq{Action: "add_milestone", GoalID: &createResp.Goal.ID, MilestoneTitle: "write tests", Weight: 1})
	var addResp GoalResp
	if err := json.Unmarshal(raw, &addResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(addResp.Milestones) != 1 {
		t.Fatalf("expected 1 milestone, got %d", len(addResp.Milestones))
	}

	raw = callTool(t, d, "goal", GoalReq{Action: "complete_milestone", MilestoneID: &addResp.Milestones[0].ID})
	var completeResp GoalResp
	if err := json.Unmarshal(raw, &completeResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if completeResp.Goal.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress after completing the only milestone, got %d", completeResp.Goal.ProgressPercent)
	}
}

func TestDispatch_UnknownToolIsBadRequest(t *testing.T) {
	d := newTestDeps(t)
	if _, err := Dispatch(context.Background(), d, "no_such_tool", nil); err == nil {
		t.Fatal("expected an error for an unknown tool name")
	}
}

func TestDispatch_GetSymbolsEmptyProjectReturnsNoMatches(t *testing.T) {
	d := newTestDeps(t)
	callTool(t, d, "set_project", SetProjectReq{Path: "/p", Name: "p"})

	raw := callTool(t, d, "get_symbols", GetSymbolsReq{NamePattern: "Foo"})
	var resp GetSymbolsResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Matches) != 0 {
		t.Fatalf("expected no matches in an empty project, got %+v", resp.Matches)
	}
}
