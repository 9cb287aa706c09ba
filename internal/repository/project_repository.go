package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgProjectRepository struct {
	pool *pgxpool.Pool
}

// translatePgErr classifies driver errors into the repository sentinels.
func translatePgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "22P02":
			return ErrInvalidID
		}
	}
	return err
}

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

const projectColumns = `
	p.id, p.name, p.description, p.created_by, p.status, p.invitation_code,
	p.is_public, p.allow_member_invite, p.max_members, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id AND NOT t.is_deleted) AS total_tasks,
	(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id AND NOT t.is_deleted AND t.status = 'done') AS completed_tasks`

func scanProject(row pgx.Row) (*Project, error) {
	p := &Project{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.Status, &p.InvitationCode,
		&p.IsPublic, &p.AllowMemberInvite, &p.MaxMembers, &p.CreatedAt, &p.UpdatedAt,
		&p.TotalTasks, &p.CompletedTasks,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translatePgErr(err)
	}
	return p, nil
}

func (r *pgProjectRepository) Create(ctx context.Context, project *Project, creator *Member) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO projects (name, description, created_by, status, invitation_code,
			is_public, allow_member_invite, max_members)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		project.Name, project.Description, project.CreatedBy, project.Status,
		project.InvitationCode, project.IsPublic, project.AllowMemberInvite, project.MaxMembers,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return translatePgErr(err)
	}

	creator.ProjectID = project.ID
	memberQuery := `
		INSERT INTO project_members (project_id, user_id, email, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRow(ctx, memberQuery,
		creator.ProjectID, creator.UserID, creator.Email, creator.Role, creator.Status, creator.JoinedAt,
	).Scan(&creator.ID)
	if err != nil {
		return translatePgErr(err)
	}

	return tx.Commit(ctx)
}

func (r *pgProjectRepository) FindByID(ctx context.Context, id string) (*Project, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	query := `SELECT` + projectColumns + ` FROM projects p WHERE p.id = $1`
	return scanProject(r.pool.QueryRow(ctx, query, id))
}

func (r *pgProjectRepository) FindByInvitationCode(ctx context.Context, code string) (*Project, error) {
	query := `SELECT` + projectColumns + `
		FROM projects p
		WHERE LOWER(p.invitation_code) = LOWER($1) AND p.status <> 'deleted'`
	return scanProject(r.pool.QueryRow(ctx, query, code))
}

var projectSortColumns = map[string]string{
	"name":      "p.name",
	"createdAt": "p.created_at",
	"updatedAt": "p.updated_at",
}

func orderClause(sort, fallback string, columns map[string]string) string {
	if sort == "" {
		sort = fallback
	}
	dir := "ASC"
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		sort = sort[1:]
	}
	col, ok := columns[sort]
	if !ok {
		return orderClause(fallback, fallback, columns)
	}
	return col + " " + dir
}

func (r *pgProjectRepository) FindByUserID(ctx context.Context, userID string, opts *ProjectListOptions) ([]*Project, int, error) {
	if opts == nil {
		opts = &ProjectListOptions{Limit: 20}
	}

	where := []string{
		"m.user_id = $1",
		"m.status = 'active'",
	}
	args := []interface{}{userID}

	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	} else {
		where = append(where, "p.status <> 'deleted'")
	}
	if opts.Role != "" {
		args = append(args, opts.Role)
		where = append(where, fmt.Sprintf("m.role = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, opts.Search)
		where = append(where, fmt.Sprintf(
			"(p.search @@ plainto_tsquery('english', $%d) OR p.name ILIKE '%%' || $%d || '%%')",
			len(args), len(args)))
	}

	base := `FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, translatePgErr(err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf("SELECT%s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		projectColumns, base,
		orderClause(opts.Sort, "-updatedAt", projectSortColumns),
		len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translatePgErr(err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.Status, &p.InvitationCode,
			&p.IsPublic, &p.AllowMemberInvite, &p.MaxMembers, &p.CreatedAt, &p.UpdatedAt,
			&p.TotalTasks, &p.CompletedTasks,
		); err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}

func (r *pgProjectRepository) Update(ctx context.Context, project *Project) error {
	query := `
		UPDATE projects
		SET name = $2, description = $3, status = $4, is_public = $5,
			allow_member_invite = $6, max_members = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		project.ID, project.Name, project.Description, project.Status,
		project.IsPublic, project.AllowMemberInvite, project.MaxMembers,
	).Scan(&project.UpdatedAt)
	return translatePgErr(err)
}

const memberColumns = `
	id, project_id, user_id, email, role, status, joined_at,
	invited_by, invitation_sent_at, last_active`

func scanMember(row pgx.Row) (*Member, error) {
	m := &Member{}
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.UserID, &m.Email, &m.Role, &m.Status,
		&m.JoinedAt, &m.InvitedBy, &m.InvitationSentAt, &m.LastActive,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translatePgErr(err)
	}
	return m, nil
}

func (r *pgProjectRepository) FindMembers(ctx context.Context, projectID, status string) ([]*Member, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	query := `SELECT` + memberColumns + ` FROM project_members WHERE project_id = $1`
	args := []interface{}{projectID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	// admins first, then join order
	query += ` ORDER BY (role = 'admin') DESC, joined_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgErr(err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(
			&m.ID, &m.ProjectID, &m.UserID, &m.Email, &m.Role, &m.Status,
			&m.JoinedAt, &m.InvitedBy, &m.InvitationSentAt, &m.LastActive,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *pgProjectRepository) FindMember(ctx context.Context, projectID, userID string) (*Member, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	query := `SELECT` + memberColumns + `
		FROM project_members WHERE project_id = $1 AND user_id = $2`
	return scanMember(r.pool.QueryRow(ctx, query, projectID, userID))
}

func (r *pgProjectRepository) FindMemberByEmail(ctx context.Context, projectID, email string) (*Member, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	query := `SELECT` + memberColumns + `
		FROM project_members WHERE project_id = $1 AND LOWER(email) = LOWER($2) AND email <> ''`
	return scanMember(r.pool.QueryRow(ctx, query, projectID, email))
}

// lockAndCountActive locks the project row and returns the active member
// count, serializing concurrent member inserts against the cap check.
func lockAndCountActive(ctx context.Context, tx pgx.Tx, projectID string) (int, error) {
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&id); err != nil {
		return 0, translatePgErr(err)
	}
	var count int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND status = 'active'`,
		projectID,
	).Scan(&count)
	return count, translatePgErr(err)
}

func (r *pgProjectRepository) AddMember(ctx context.Context, member *Member, maxMembers *int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if member.Status == "active" && maxMembers != nil {
		count, err := lockAndCountActive(ctx, tx, member.ProjectID)
		if err != nil {
			return err
		}
		if count >= *maxMembers {
			return ErrMemberLimit
		}
	}

	query := `
		INSERT INTO project_members (project_id, user_id, email, role, status,
			joined_at, invited_by, invitation_sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		member.ProjectID, member.UserID, member.Email, member.Role, member.Status,
		member.JoinedAt, member.InvitedBy, member.InvitationSentAt,
	).Scan(&member.ID)
	if err != nil {
		return translatePgErr(err)
	}
	return tx.Commit(ctx)
}

func (r *pgProjectRepository) UpdateMember(ctx context.Context, member *Member, maxMembers *int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if member.Status == "active" && maxMembers != nil {
		count, err := lockAndCountActive(ctx, tx, member.ProjectID)
		if err != nil {
			return err
		}
		// the entry itself may already be counted
		var current string
		err = tx.QueryRow(ctx, `SELECT status FROM project_members WHERE id = $1`, member.ID).Scan(&current)
		if err != nil {
			return translatePgErr(err)
		}
		if current != "active" && count >= *maxMembers {
			return ErrMemberLimit
		}
	}

	query := `
		UPDATE project_members
		SET user_id = $2, email = $3, role = $4, status = $5, joined_at = $6,
			invited_by = $7, invitation_sent_at = $8, last_active = $9
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, query,
		member.ID, member.UserID, member.Email, member.Role, member.Status,
		member.JoinedAt, member.InvitedBy, member.InvitationSentAt, member.LastActive,
	)
	if err != nil {
		return translatePgErr(err)
	}
	return tx.Commit(ctx)
}

func (r *pgProjectRepository) ExpireInvitedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE project_members
		SET status = 'removed'
		WHERE status = 'invited' AND invitation_sent_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, translatePgErr(err)
	}
	return int(tag.RowsAffected()), nil
}
