package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// Classified storage errors. Services translate these into API error codes;
// anything else is treated as an internal error.
var (
	ErrDuplicate   = errors.New("duplicate resource")
	ErrInvalidID   = errors.New("invalid id")
	ErrConflict    = errors.New("concurrent modification")
	ErrMemberLimit = errors.New("member limit reached")
)

// ============================================
// Models / Entities
// ============================================

type Project struct {
	ID                string
	Name              string
	Description       *string
	CreatedBy         string
	Status            string
	InvitationCode    string
	IsPublic          bool
	AllowMemberInvite bool
	MaxMembers        *int
	TotalTasks        int
	CompletedTasks    int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Members           []*Member
}

// Progress returns the completed-task percentage, 0 when there are no tasks.
func (p *Project) Progress() int {
	if p.TotalTasks == 0 {
		return 0
	}
	return int(float64(p.CompletedTasks)/float64(p.TotalTasks)*100 + 0.5)
}

type Member struct {
	ID               string
	ProjectID        string
	UserID           string
	Email            string
	Role             string
	Status           string
	JoinedAt         time.Time
	InvitedBy        *string
	InvitationSentAt *time.Time
	LastActive       *time.Time
}

type Task struct {
	ID                 string
	ProjectID          string
	Title              string
	Description        *string
	Status             string
	Priority           string
	Creator            string
	Assignee           *string
	DueDate            *time.Time
	Labels             []string
	Watchers           []string
	IsDeleted          bool
	LastStatusChangeAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TaskActivity is an append-only audit record. Actor is nil for system
// actions (e.g. project archival). From/To hold field snapshots.
type TaskActivity struct {
	ID        string    `db:"id"`
	TaskID    string    `db:"task_id"`
	ProjectID string    `db:"project_id"`
	Actor     *string   `db:"actor"`
	Action    string    `db:"action"`
	From      JSONMap   `db:"from_state"`
	To        JSONMap   `db:"to_state"`
	Metadata  JSONMap   `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// ============================================
// Query options
// ============================================

type ProjectListOptions struct {
	Search string
	Status string // "" means every non-deleted status
	Role   string
	Sort   string
	Limit  int
	Offset int
}

type TaskFilters struct {
	Status         []string
	Assignee       []string
	Priority       []string
	Labels         []string
	Search         string
	DueFrom        *time.Time
	DueTo          *time.Time
	IncludeDeleted bool
	Sort           string
	Limit          int
	Offset         int
}

// ============================================
// Repository Interfaces
// ============================================

type ProjectRepository interface {
	// Create inserts the project and its creator member entry in one
	// transaction. Returns ErrDuplicate on an invitation code collision.
	Create(ctx context.Context, project *Project, creator *Member) error
	FindByID(ctx context.Context, id string) (*Project, error)
	// FindByInvitationCode matches case-insensitively against non-deleted projects.
	FindByInvitationCode(ctx context.Context, code string) (*Project, error)
	// FindByUserID lists projects where userID has an active member entry.
	FindByUserID(ctx context.Context, userID string, opts *ProjectListOptions) ([]*Project, int, error)
	Update(ctx context.Context, project *Project) error

	FindMembers(ctx context.Context, projectID, status string) ([]*Member, error)
	FindMember(ctx context.Context, projectID, userID string) (*Member, error)
	FindMemberByEmail(ctx context.Context, projectID, email string) (*Member, error)
	// AddMember inserts a member entry. When maxMembers is set and the new
	// entry is active, the active count is checked under a project row lock;
	// ErrMemberLimit is returned on overshoot, ErrDuplicate on a uniqueness
	// violation.
	AddMember(ctx context.Context, member *Member, maxMembers *int) error
	// UpdateMember rewrites role/status/invitation fields of an existing entry.
	// Activation against a full project returns ErrMemberLimit.
	UpdateMember(ctx context.Context, member *Member, maxMembers *int) error
	// ExpireInvitedBefore marks invited entries older than cutoff as removed.
	ExpireInvitedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type TaskRepository interface {
	// Create inserts the task and its create activity in one transaction.
	Create(ctx context.Context, task *Task, activity *TaskActivity) error
	FindByID(ctx context.Context, id string) (*Task, error)
	FindByProjectID(ctx context.Context, projectID string, filters *TaskFilters) ([]*Task, int, error)
	// Update persists field changes and the activity atomically. The task row
	// is locked for the duration of the transaction; when its committed
	// updated_at no longer matches the snapshot the caller diffed against,
	// the write is rejected with ErrConflict.
	Update(ctx context.Context, task *Task, activity *TaskActivity) error
	// UpdateStatus transitions the task only if the committed status still
	// equals from; otherwise ErrConflict. The activity is written in the same
	// transaction.
	UpdateStatus(ctx context.Context, taskID, from, to string, activity *TaskActivity) (*Task, error)
	// SoftDelete tombstones the task and appends the delete activity.
	SoftDelete(ctx context.Context, taskID string, activity *TaskActivity) error
	// ArchiveByProject archives every live task of the project, appending one
	// archive activity per task. Returns the number of archived tasks.
	ArchiveByProject(ctx context.Context, projectID string) (int, error)
	FindDueSoon(ctx context.Context, within time.Duration) ([]*Task, error)
}

// TaskActivityRepository is the read side of the activity log. Writes happen
// inside task repository transactions; activities are never updated or deleted.
type TaskActivityRepository interface {
	FindByTaskID(ctx context.Context, taskID string, limit, offset int) ([]*TaskActivity, int, error)
	FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]*TaskActivity, int, error)
	FindByActor(ctx context.Context, actor string, limit, offset int) ([]*TaskActivity, int, error)
}

// ============================================
// Repositories Container
// ============================================

type Repositories struct {
	ProjectRepo  ProjectRepository
	TaskRepo     TaskRepository
	ActivityRepo TaskActivityRepository
}

// NewRepositories creates in-memory repositories (for testing/fallback)
func NewRepositories() *Repositories {
	store := newMemoryStore()
	return &Repositories{
		ProjectRepo:  &memProjectRepository{store: store},
		TaskRepo:     &memTaskRepository{store: store},
		ActivityRepo: &memActivityRepository{store: store},
	}
}

// NewPgRepositories creates PostgreSQL-backed repositories. The pgx pool
// serves the transactional write paths; the sqlx handle serves the activity
// read model.
func NewPgRepositories(pool *pgxpool.Pool, db *sqlx.DB) *Repositories {
	return &Repositories{
		ProjectRepo:  &pgProjectRepository{pool: pool},
		TaskRepo:     &pgTaskRepository{pool: pool},
		ActivityRepo: &sqlxActivityRepository{db: db},
	}
}
