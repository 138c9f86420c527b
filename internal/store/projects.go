package store

import (
	"context"
	"database/sql"
	"time"

	"mira/internal/merr"
	"mira/internal/model"
)

// EnsureProject returns the project row for path, creating it on first
// reference. Projects are never deleted silently per spec.md §3.
func EnsureProject(ctx context.Context, s *Store, path, name string) (model.Project, error) {
	return InteractTx(ctx, s, "store.EnsureProject", func(ctx context.Context, tx *sql.Tx) (model.Project, error) {
		var p model.Project
		row := tx.QueryRowContext(ctx, `SELECT id, path, name, created_at, updated_at FROM projects WHERE path = ?`, path)
		err := row.Scan(&p.ID, &p.Path, &p.Name, &p.CreatedAt, &p.UpdatedAt)
		if err == nil {
			return p, nil
		}
		if err != sql.ErrNoRows {
			return p, err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO projects(path, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			path, name, now, now,
		)
		if err != nil {
			return p, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return p, err
		}
		return model.Project{ID: id, Path: path, Name: name, CreatedAt: now, UpdatedAt: now}, nil
	})
}

// GetProject looks up a project by id.
func GetProject(ctx context.Context, s *Store, id int64) (model.Project, error) {
	return Interact(ctx, s, "store.GetProject", func(ctx context.Context, db *sql.DB) (model.Project, error) {
		var p model.Project
		row := db.QueryRowContext(ctx, `SELECT id, path, name, created_at, updated_at FROM projects WHERE id = ?`, id)
		err := row.Scan(&p.ID, &p.Path, &p.Name, &p.CreatedAt, &p.UpdatedAt)
		if err == sql.ErrNoRows {
			return p, merr.NotFoundf("store.GetProject", "project %d not found", id)
		}
		return p, err
	})
}
