package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTaskRepository struct {
	pool *pgxpool.Pool
}

const taskColumns = `
	id, project_id, title, description, status, priority, creator, assignee,
	due_date, labels, watchers, is_deleted, last_status_change_at, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	t := &Task{}
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Creator, &t.Assignee, &t.DueDate, &t.Labels, &t.Watchers,
		&t.IsDeleted, &t.LastStatusChangeAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translatePgErr(err)
	}
	return t, nil
}

// insertActivity appends the audit record inside the mutation's transaction.
// Commit of the mutation and its activity is all-or-nothing.
func insertActivity(ctx context.Context, tx pgx.Tx, a *TaskActivity) error {
	if a == nil {
		return nil
	}
	from, err := marshalState(a.From)
	if err != nil {
		return err
	}
	to, err := marshalState(a.To)
	if err != nil {
		return err
	}
	meta, err := marshalState(a.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO task_activities (task_id, project_id, actor, action, from_state, to_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return translatePgErr(tx.QueryRow(ctx, query,
		a.TaskID, a.ProjectID, a.Actor, a.Action, from, to, meta,
	).Scan(&a.ID, &a.CreatedAt))
}

func marshalState(m JSONMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (r *pgTaskRepository) Create(ctx context.Context, task *Task, activity *TaskActivity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO tasks (project_id, title, description, status, priority, creator,
			assignee, due_date, labels, watchers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, last_status_change_at, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		task.ProjectID, task.Title, task.Description, task.Status, task.Priority,
		task.Creator, task.Assignee, task.DueDate, task.Labels, task.Watchers,
	).Scan(&task.ID, &task.LastStatusChangeAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return translatePgErr(err)
	}

	if activity != nil {
		activity.TaskID = task.ID
		if err := insertActivity(ctx, tx, activity); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *pgTaskRepository) FindByID(ctx context.Context, id string) (*Task, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	query := `SELECT` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

var taskSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"status":    "status",
	"priority":  "priority",
	"dueDate":   "due_date",
}

func (r *pgTaskRepository) FindByProjectID(ctx context.Context, projectID string, f *TaskFilters) ([]*Task, int, error) {
	if err := validID(projectID); err != nil {
		return nil, 0, err
	}
	if f == nil {
		f = &TaskFilters{Limit: 20}
	}

	where := []string{"project_id = $1"}
	args := []interface{}{projectID}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if !f.IncludeDeleted {
		where = append(where, "NOT is_deleted")
	}
	if len(f.Status) > 0 {
		add("status = ANY($%d)", f.Status)
	}
	if len(f.Assignee) > 0 {
		add("assignee = ANY($%d)", f.Assignee)
	}
	if len(f.Priority) > 0 {
		add("priority = ANY($%d)", f.Priority)
	}
	if len(f.Labels) > 0 {
		// matches any of the requested labels
		add("labels && $%d", f.Labels)
	}
	if f.DueFrom != nil {
		add("due_date >= $%d", *f.DueFrom)
	}
	if f.DueTo != nil {
		add("due_date <= $%d", *f.DueTo)
	}

	order := orderClause(f.Sort, "-createdAt", taskSortColumns)
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		// title is weighted above description in the search index
		where = append(where, fmt.Sprintf(
			"(search @@ plainto_tsquery('english', $%d) OR title ILIKE '%%' || $%d || '%%')", n, n))
		if f.Sort == "" {
			order = fmt.Sprintf("ts_rank(search, plainto_tsquery('english', $%d)) DESC, created_at DESC", n)
		}
	}

	base := `FROM tasks WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, translatePgErr(err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf("SELECT%s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		taskColumns, base, order, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translatePgErr(err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
			&t.Creator, &t.Assignee, &t.DueDate, &t.Labels, &t.Watchers,
			&t.IsDeleted, &t.LastStatusChangeAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

func (r *pgTaskRepository) Update(ctx context.Context, task *Task, activity *TaskActivity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// the caller's diff was computed against a snapshot; if another writer
	// committed since, overwriting from the snapshot would silently revert
	// their fields
	var committedAt time.Time
	if err := tx.QueryRow(ctx, `SELECT updated_at FROM tasks WHERE id = $1 FOR UPDATE`, task.ID).Scan(&committedAt); err != nil {
		return translatePgErr(err)
	}
	if !committedAt.Equal(task.UpdatedAt) {
		return ErrConflict
	}

	query := `
		UPDATE tasks
		SET title = $2, description = $3, priority = $4, assignee = $5,
			due_date = $6, labels = $7, watchers = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, query,
		task.ID, task.Title, task.Description, task.Priority, task.Assignee,
		task.DueDate, task.Labels, task.Watchers,
	).Scan(&task.UpdatedAt)
	if err != nil {
		return translatePgErr(err)
	}

	if err := insertActivity(ctx, tx, activity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgTaskRepository) UpdateStatus(ctx context.Context, taskID, from, to string, activity *TaskActivity) (*Task, error) {
	if err := validID(taskID); err != nil {
		return nil, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// the transition was validated against a read; re-check the committed
	// status under lock so concurrent writers serialize
	var committed string
	if err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&committed); err != nil {
		return nil, translatePgErr(err)
	}
	if committed != from {
		return nil, ErrConflict
	}

	query := `
		UPDATE tasks
		SET status = $2, last_status_change_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING` + taskColumns
	task, err := scanTask(tx.QueryRow(ctx, query, taskID, to))
	if err != nil {
		return nil, err
	}

	if err := insertActivity(ctx, tx, activity); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *pgTaskRepository) SoftDelete(ctx context.Context, taskID string, activity *TaskActivity) error {
	if err := validID(taskID); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`,
		taskID)
	if err != nil {
		return translatePgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if err := insertActivity(ctx, tx, activity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgTaskRepository) ArchiveByProject(ctx context.Context, projectID string) (int, error) {
	if err := validID(projectID); err != nil {
		return 0, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// the CTE keeps the pre-update status for the activity snapshots
	rows, err := tx.Query(ctx, `
		WITH live AS (
			SELECT id, status FROM tasks
			WHERE project_id = $1 AND NOT is_deleted AND status <> 'archived'
			FOR UPDATE
		)
		UPDATE tasks
		SET status = 'archived', last_status_change_at = NOW(), updated_at = NOW()
		FROM live
		WHERE tasks.id = live.id
		RETURNING tasks.id, live.status
	`, projectID)
	if err != nil {
		return 0, translatePgErr(err)
	}
	type archivedTask struct{ id, prev string }
	var moved []archivedTask
	for rows.Next() {
		var a archivedTask
		if err := rows.Scan(&a.id, &a.prev); err != nil {
			rows.Close()
			return 0, err
		}
		moved = append(moved, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, a := range moved {
		act := &TaskActivity{
			TaskID:    a.id,
			ProjectID: projectID,
			Action:    "archive",
			From:      JSONMap{"status": a.prev},
			To:        JSONMap{"status": "archived"},
			Metadata:  JSONMap{"reason": "project_archived"},
		}
		if err := insertActivity(ctx, tx, act); err != nil {
			return 0, err
		}
	}
	n := len(moved)
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *pgTaskRepository) FindDueSoon(ctx context.Context, within time.Duration) ([]*Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE NOT is_deleted
		  AND status NOT IN ('done', 'archived')
		  AND assignee IS NOT NULL
		  AND due_date IS NOT NULL
		  AND due_date BETWEEN NOW() AND NOW() + make_interval(secs => $1)
		ORDER BY due_date ASC`
	rows, err := r.pool.Query(ctx, query, within.Seconds())
	if err != nil {
		return nil, translatePgErr(err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
			&t.Creator, &t.Assignee, &t.DueDate, &t.Labels, &t.Watchers,
			&t.IsDeleted, &t.LastStatusChangeAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
