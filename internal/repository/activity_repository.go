package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// sqlxActivityRepository is the read model over task_activities. The append
// path lives inside the task repository's transactions; nothing here mutates.
type sqlxActivityRepository struct {
	db *sqlx.DB
}

func (r *sqlxActivityRepository) FindByTaskID(ctx context.Context, taskID string, limit, offset int) ([]*TaskActivity, int, error) {
	if err := validID(taskID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM task_activities WHERE task_id = $1`, taskID); err != nil {
		return nil, 0, err
	}

	var activities []*TaskActivity
	err := r.db.SelectContext(ctx, &activities, `
		SELECT id, task_id, project_id, actor, action, from_state, to_state, metadata, created_at
		FROM task_activities
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		taskID, limit, offset)
	return activities, total, err
}

func (r *sqlxActivityRepository) FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]*TaskActivity, int, error) {
	if err := validID(projectID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM task_activities WHERE project_id = $1`, projectID); err != nil {
		return nil, 0, err
	}

	var activities []*TaskActivity
	err := r.db.SelectContext(ctx, &activities, `
		SELECT id, task_id, project_id, actor, action, from_state, to_state, metadata, created_at
		FROM task_activities
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		projectID, limit, offset)
	return activities, total, err
}

func (r *sqlxActivityRepository) FindByActor(ctx context.Context, actor string, limit, offset int) ([]*TaskActivity, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM task_activities WHERE actor = $1`, actor); err != nil {
		return nil, 0, err
	}

	var activities []*TaskActivity
	err := r.db.SelectContext(ctx, &activities, `
		SELECT id, task_id, project_id, actor, action, from_state, to_state, metadata, created_at
		FROM task_activities
		WHERE actor = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		actor, limit, offset)
	return activities, total, err
}
