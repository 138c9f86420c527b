package tool

import (
	"context"
	"database/sql"

	"mira/internal/merr"
	"mira/internal/model"
	"mira/internal/store"
)

// TaskReq is the single-dispatcher request for the flat task list, per
// spec.md §6: action in {create, list, update, complete}.
type TaskReq struct {
	Action    string  `json:"action"`
	ProjectID *int64  `json:"project_id,omitempty"`
	TaskID    *int64  `json:"task_id,omitempty"`
	Title     string  `json:"title,omitempty"`
	Status    string  `json:"status,omitempty"`
	Priority  int     `json:"priority,omitempty"`
}

type TaskResp struct {
	Task  *model.Task  `json:"task,omitempty"`
	Tasks []model.Task `json:"tasks,omitempty"`
}

func handleTask(ctx context.Context, d *Deps, req TaskReq) (TaskResp, error) {
	switch req.Action {
	case "create":
		projectID, err := requireProject(d, req.ProjectID)
		if err != nil {
			return TaskResp{}, err
		}
		if req.Title == "" {
			return TaskResp{}, merr.BadRequestf("tool.task", "title is required")
		}
		status := req.Status
		if status == "" {
			status = string(model.TaskPending)
		}
		t, err := store.Interact(ctx, d.DB, "tool.task.create", func(ctx context.Context, db *sql.DB) (model.Task, error) {
			res, err := db.ExecContext(ctx, `
				INSERT INTO tasks(project_id, title, status, priority) VALUES (?, ?, ?, ?)`,
				projectID, req.Title, status, req.Priority)
			if err != nil {
				return model.Task{}, err
			}
			id, _ := res.LastInsertId()
			return getTask(ctx, db, id)
		})
		if err != nil {
			return TaskResp{}, err
		}
		return TaskResp{Task: &t}, nil

	case "list":
		projectID, err := requireProject(d, req.ProjectID)
		if err != nil {
			return TaskResp{}, err
		}
		tasks, err := store.Interact(ctx, d.DB, "tool.task.list", func(ctx context.Context, db *sql.DB) ([]model.Task, error) {
			rows, err := db.QueryContext(ctx, `
				SELECT id, project_id, title, status, priority, created_at FROM tasks
				WHERE project_id = ? ORDER BY priority DESC, created_at DESC`, projectID)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			var out []model.Task
			for rows.Next() {
				var t model.Task
				var status string
				if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &status, &t.Priority, &t.CreatedAt); err != nil {
					return nil, err
				}
				t.Status = model.TaskStatus(status)
				out = append(out, t)
			}
			return out, rows.Err()
		})
		if err != nil {
			return TaskResp{}, err
		}
		return TaskResp{Tasks: tasks}, nil

	case "update", "complete":
		if req.TaskID == nil {
			return TaskResp{}, merr.BadRequestf("tool.task", "task_id is required")
		}
		status := req.Status
		if req.Action == "complete" {
			status = string(model.TaskCompleted)
		}
		if status == "" {
			return TaskResp{}, merr.BadRequestf("tool.task", "status is required for update")
		}
		t, err := store.Interact(ctx, d.DB, "tool.task.update", func(ctx context.Context, db *sql.DB) (model.Task, error) {
			if _, err := db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, status, *req.TaskID); err != nil {
				return model.Task{}, err
			}
			return getTask(ctx, db, *req.TaskID)
		})
		if err != nil {
			return TaskResp{}, err
		}
		return TaskResp{Task: &t}, nil

	default:
		return TaskResp{}, merr.BadRequestf("tool.task", "unknown action %q", req.Action)
	}
}

func getTask(ctx context.Context, db *sql.DB, id int64) (model.Task, error) {
	var t model.Task
	var status string
	err := db.QueryRowContext(ctx, `
		SELECT id, project_id, title, status, priority, created_at FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.ProjectID, &t.Title, &status, &t.Priority, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Task{}, merr.NotFoundf("tool.task", "task %d not found", id)
	}
	if err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	return t, nil
}

// GoalReq is the single-dispatcher request for hierarchical goals plus
// milestones, per spec.md §6: action in {create, list, update,
// add_milestone, complete_milestone}.
type GoalReq struct {
	Action      string `json:"action"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	GoalID      *int64 `json:"goal_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	MilestoneTitle string `json:"milestone_title,omitempty"`
	Weight      int    `json:"weight,omitempty"`
	MilestoneID *int64 `json:"milestone_id,omitempty"`
	SessionID   *string `json:"session_id,omitempty"`
}

type GoalResp struct {
	Goal       *model.Goal        `json:"goal,omitempty"`
	Goals      []model.Goal       `json:"goals,omitempty"`
	Milestones []model.Milestone  `json:"milestones,omitempty"`
}

func handleGoal(ctx context.Context, d *Deps, req GoalReq) (GoalResp, error) {
	switch req.Action {
	case "create":
		projectID, err := requireProject(d, req.ProjectID)
		if err != nil {
			return GoalResp{}, err
		}
		if req.Title == "" {
			return GoalResp{}, merr.BadRequestf("tool.goal", "title is required")
		}
		status := req.Status
		if status == "" {
			status = string(model.GoalOpen)
		}
		g, err := store.Interact(ctx, d.DB, "tool.goal.create", func(ctx context.Context, db *sql.DB) (model.Goal, error) {
			res, err := db.ExecContext(ctx, `
				INSERT INTO goals(project_id, title, status, priority) VALUES (?, ?, ?, ?)`,
				projectID, req.Title, status, req.Priority)
			if err != nil {
				return model.Goal{}, err
			}
			id, _ := res.LastInsertId()
			return getGoal(ctx, db, id)
		})
		if err != nil {
			return GoalResp{}, err
		}
		return GoalResp{Goal: &g}, nil

	case "list":
		projectID, err := requireProject(d, req.ProjectID)
		if err != nil {
			return GoalResp{}, err
		}
		goals, err := store.Interact(ctx, d.DB, "tool.goal.list", func(ctx context.Context, db *sql.DB) ([]model.Goal, error) {
			rows, err := db.QueryContext(ctx, `
				SELECT id, project_id, title, status, priority, progress_percent, created_at FROM goals
				WHERE project_id = ? ORDER BY priority DESC, created_at DESC`, projectID)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			var out []model.Goal
			for rows.Next() {
				var g model.Goal
				var status string
				if err := rows.Scan(&g.ID, &g.ProjectID, &g.Title, &status, &g.Priority, &g.ProgressPercent, &g.CreatedAt); err != nil {
					return nil, err
				}
				g.Status = model.GoalStatus(status)
				out = append(out, g)
			}
			return out, rows.Err()
		})
		if err != nil {
			return GoalResp{}, err
		}
		return GoalResp{Goals: goals}, nil

	case "update":
		if req.GoalID == nil {
			return GoalResp{}, merr.BadRequestf("tool.goal", "goal_id is required")
		}
		if req.Status == "" {
			return GoalResp{}, merr.BadRequestf("tool.goal", "status is required for update")
		}
		g, err := store.Interact(ctx, d.DB, "tool.goal.update", func(ctx context.Context, db *sql.DB) (model.Goal, error) {
			if _, err := db.ExecContext(ctx, `UPDATE goals SET status = ? WHERE id = ?`, req.Status, *req.GoalID); err != nil {
				return model.Goal{}, err
			}
			return getGoal(ctx, db, *req.GoalID)
		})
		if err != nil {
			return GoalResp{}, err
		}
		return GoalResp{Goal: &g}, nil

	case "add_milestone":
		if req.GoalID == nil || req.MilestoneTitle == "" {
			return GoalResp{}, merr.BadRequestf("tool.goal", "goal_id and milestone_title are required")
		}
		weight := req.Weight
		if weight <= 0 {
			weight = 1
		}
		_, err := store.Interact(ctx, d.DB, "tool.goal.add_milestone", func(ctx context.Context, db *sql.DB) (struct{}, error) {
			_, err := db.ExecContext(ctx, `
				INSERT INTO milestones(goal_id, title, weight) VALUES (?, ?, ?)`,
				*req.GoalID, req.MilestoneTitle, weight)
			return struct{}{}, err
		})
		if err != nil {
			return GoalResp{}, err
		}
		return goalWithMilestones(ctx, d, *req.GoalID)

	case "complete_milestone":
		if req.MilestoneID == nil {
			return GoalResp{}, merr.BadRequestf("tool.goal", "milestone_id is required")
		}
		goalID, err := store.InteractTx(ctx, d.DB, "tool.goal.complete_milestone", func(ctx context.Context, tx *sql.Tx) (int64, error) {
			var goalID int64
			if err := tx.QueryRowContext(ctx, `SELECT goal_id FROM milestones WHERE id = ?`, *req.MilestoneID).Scan(&goalID); err != nil {
				if err == sql.ErrNoRows {
					return 0, merr.NotFoundf("tool.goal", "milestone %d not found", *req.MilestoneID)
				}
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE milestones SET completed = 1, completion_session_id = ? WHERE id = ?`,
				req.SessionID, *req.MilestoneID); err != nil {
				return 0, err
			}
			return goalID, updateGoalProgress(ctx, tx, goalID)
		})
		if err != nil {
			return GoalResp{}, err
		}
		return goalWithMilestones(ctx, d, goalID)

	default:
		return GoalResp{}, merr.BadRequestf("tool.goal", "unknown action %q", req.Action)
	}
}

func getGoal(ctx context.Context, db *sql.DB, id int64) (model.Goal, error) {
	var g model.Goal
	var status string
	err := db.QueryRowContext(ctx, `
		SELECT id, project_id, title, status, priority, progress_percent, created_at FROM goals WHERE id = ?`, id).
		Scan(&g.ID, &g.ProjectID, &g.Title, &status, &g.Priority, &g.ProgressPercent, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Goal{}, merr.NotFoundf("tool.goal", "goal %d not found", id)
	}
	if err != nil {
		return model.Goal{}, err
	}
	g.Status = model.GoalStatus(status)
	return g, nil
}

// updateGoalProgress recomputes progress_percent from milestone weights,
// per model.MilestoneProgress.
func updateGoalProgress(ctx context.Context, tx *sql.Tx, goalID int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT weight, completed FROM milestones WHERE goal_id = ?`, goalID)
	if err != nil {
		return err
	}
	var milestones []model.Milestone
	for rows.Next() {
		var m model.Milestone
		var completed int
		if err := rows.Scan(&m.Weight, &completed); err != nil {
			rows.Close()
			return err
		}
		m.Completed = completed != 0
		milestones = append(milestones, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	pct := model.MilestoneProgress(milestones)
	_, err = tx.ExecContext(ctx, `UPDATE goals SET progress_percent = ? WHERE id = ?`, pct, goalID)
	return err
}

func goalWithMilestones(ctx context.Context, d *Deps, goalID int64) (GoalResp, error) {
	return store.Interact(ctx, d.DB, "tool.goal.withMilestones", func(ctx context.Context, db *sql.DB) (GoalResp, error) {
		g, err := getGoal(ctx, db, goalID)
		if err != nil {
			return GoalResp{}, err
		}
		rows, err := db.QueryContext(ctx, `
			SELECT id, goal_id, title, weight, completed, completion_session_id FROM milestones
			WHERE goal_id = ? ORDER BY id ASC`, goalID)
		if err != nil {
			return GoalResp{}, err
		}
		defer rows.Close()
		var milestones []model.Milestone
		for rows.Next() {
			var m model.Milestone
			var completed int
			if err := rows.Scan(&m.ID, &m.GoalID, &m.Title, &m.Weight, &completed, &m.CompletionSessionID); err != nil {
				return GoalResp{}, err
			}
			m.Completed = completed != 0
			milestones = append(milestones, m)
		}
		return GoalResp{Goal: &g, Milestones: milestones}, rows.Err()
	})
}
