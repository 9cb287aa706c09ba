// Package service implements the domain operations for projects, members
// and tasks on top of the repository layer. Every exported operation
// returns either a result or a coded *Error.
package service

import (
	"context"

	"github.com/orastack/taskboard-backend/internal/repository"
)

// RoleResolver resolves a caller's project role. The project service answers
// from its own repository; the task service goes through the permission
// bridge client.
type RoleResolver interface {
	Role(ctx context.Context, projectID, userID string) (role string, isMember bool, err error)
}

// ArchiveEmitter propagates a project archival to the task domain.
type ArchiveEmitter interface {
	ArchiveProjectTasks(ctx context.Context, projectID string) error
}

// Notifier receives domain events for out-of-band delivery. Implementations
// never block and never fail the calling operation.
type Notifier interface {
	ProjectInvitation(toEmail, inviterName, projectName, role, inviteURL string)
	ProjectUpdated(toEmail, projectName, change string)
	ProjectDeleted(toEmail, projectName string)
	TaskDueSoon(toEmail, taskTitle, dueDate, priority string)
}

// Services bundles the domain services for handler wiring.
type Services struct {
	Project *ProjectService
	Member  *MemberService
	Task    *TaskService
}

// ProjectDeps is the wiring for the project-side services.
type ProjectDeps struct {
	Repos       *repository.Repositories
	Notifier    Notifier
	TaskEmitter ArchiveEmitter
	FrontendURL string
}

// TaskDeps is the wiring for the task-side service.
type TaskDeps struct {
	Repos  *repository.Repositories
	Bridge RoleResolver
}

// NewProjectServices builds the services hosted by the project binary.
func NewProjectServices(deps ProjectDeps) *Services {
	project := NewProjectService(deps.Repos.ProjectRepo, deps.TaskEmitter, deps.Notifier)
	member := NewMemberService(deps.Repos.ProjectRepo, deps.Notifier, deps.FrontendURL)
	return &Services{Project: project, Member: member}
}

// NewTaskServices builds the services hosted by the task binary.
func NewTaskServices(deps TaskDeps) *Services {
	task := NewTaskService(deps.Repos.TaskRepo, deps.Repos.ActivityRepo, deps.Bridge)
	return &Services{Task: task}
}
