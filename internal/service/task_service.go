package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/types"
)

// ============================================
// Task Service
// ============================================

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
	maxLabelLen       = 50
	maxLabels         = 10

	defaultTaskLimit     = 20
	defaultActivityLimit = 50
	maxPageLimit         = 100
)

type TaskService struct {
	taskRepo     repository.TaskRepository
	activityRepo repository.TaskActivityRepository
	bridge       RoleResolver
}

func NewTaskService(taskRepo repository.TaskRepository, activityRepo repository.TaskActivityRepository, bridge RoleResolver) *TaskService {
	return &TaskService{
		taskRepo:     taskRepo,
		activityRepo: activityRepo,
		bridge:       bridge,
	}
}

// callerRole resolves the caller's project role through the permission
// bridge. A bridge outage fails the operation; never fall open.
func (s *TaskService) callerRole(ctx context.Context, projectID, userID string) (string, error) {
	role, isMember, err := s.bridge.Role(ctx, projectID, userID)
	if err != nil {
		return "", Internal(err)
	}
	if !isMember {
		return "", Forbidden("you are not a member of this project")
	}
	return role, nil
}

func (s *TaskService) requirePermission(ctx context.Context, projectID, userID, permission string) (string, error) {
	role, err := s.callerRole(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	if !types.RoleAllows(role, permission) {
		return "", Forbidden("insufficient role for this operation")
	}
	return role, nil
}

// isActiveMember checks a third party's membership (assignment targets).
func (s *TaskService) isActiveMember(ctx context.Context, projectID, userID string) (bool, error) {
	_, isMember, err := s.bridge.Role(ctx, projectID, userID)
	if err != nil {
		return false, Internal(err)
	}
	return isMember, nil
}

// ============================================
// Validation
// ============================================

// validateTitle trims and bounds the title. Lengths are counted in
// characters, not bytes.
func validateTitle(title string) (string, string) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < 1 || n > maxTitleLen {
		return "", "title must be between 1 and 200 characters"
	}
	return title, ""
}

// normalizeLabels trims, deduplicates and validates the label set.
func normalizeLabels(labels []string) ([]string, string) {
	out := make([]string, 0, len(labels))
	seen := map[string]bool{}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		if utf8.RuneCountInString(l) > maxLabelLen {
			return nil, "each label must be at most 50 characters"
		}
		seen[l] = true
		out = append(out, l)
	}
	if len(out) > maxLabels {
		return nil, "at most 10 labels are allowed"
	}
	return out, ""
}

// ============================================
// Operations
// ============================================

// Create inserts a task with its create activity. The assignee, when given,
// must be an active member of the project.
func (s *TaskService) Create(ctx context.Context, callerID, projectID string, req *models.CreateTaskRequest) (*repository.Task, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermCreateTask); err != nil {
		return nil, err
	}

	fields := map[string]string{}
	title, msg := validateTitle(req.Title)
	if msg != "" {
		fields["title"] = msg
	}
	if req.Description != nil && utf8.RuneCountInString(*req.Description) > maxDescriptionLen {
		fields["description"] = "description must be at most 2000 characters"
	}
	priority := types.PriorityMedium
	if req.Priority != nil {
		if !types.IsValidPriority(*req.Priority) {
			fields["priority"] = "priority must be low, medium, high or critical"
		} else {
			priority = *req.Priority
		}
	}
	labels, msg := normalizeLabels(req.Labels)
	if msg != "" {
		fields["labels"] = msg
	}
	if len(fields) > 0 {
		return nil, Validation("invalid task fields", fields)
	}

	if req.Assignee != nil {
		isMember, err := s.isActiveMember(ctx, projectID, *req.Assignee)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, AssigneeNotMember(*req.Assignee)
		}
	}

	now := time.Now()
	task := &repository.Task{
		ProjectID:          projectID,
		Title:              title,
		Description:        req.Description,
		Status:             types.StatusBacklog,
		Priority:           priority,
		Creator:            callerID,
		Assignee:           req.Assignee,
		DueDate:            req.DueDate,
		Labels:             labels,
		Watchers:           []string{callerID},
		LastStatusChangeAt: now,
	}
	if req.Assignee != nil && *req.Assignee != callerID {
		task.Watchers = append(task.Watchers, *req.Assignee)
	}

	activity := &repository.TaskActivity{
		ProjectID: projectID,
		Actor:     &callerID,
		Action:    types.ActionCreate,
		To:        taskSnapshot(task),
	}
	if err := s.taskRepo.Create(ctx, task, activity); err != nil {
		return nil, fromRepo(err)
	}
	return task, nil
}

// List returns the project's tasks under the given filters and pagination.
func (s *TaskService) List(ctx context.Context, callerID, projectID string, filters *repository.TaskFilters) ([]*repository.Task, int, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermViewTasks); err != nil {
		return nil, 0, err
	}

	if filters.Limit == 0 {
		filters.Limit = defaultTaskLimit
	}
	if filters.Limit < 1 || filters.Limit > maxPageLimit {
		return nil, 0, Validation("invalid pagination", map[string]string{"limit": "limit must be between 1 and 100"})
	}
	for _, st := range filters.Status {
		if !types.IsValidTaskStatus(st) {
			return nil, 0, Validation("invalid status filter", map[string]string{"status": "unknown status " + st})
		}
	}
	for _, p := range filters.Priority {
		if !types.IsValidPriority(p) {
			return nil, 0, Validation("invalid priority filter", map[string]string{"priority": "unknown priority " + p})
		}
	}

	tasks, total, err := s.taskRepo.FindByProjectID(ctx, projectID, filters)
	if err != nil {
		return nil, 0, fromRepo(err)
	}
	return tasks, total, nil
}

// Get returns a single task. Deleted tasks and tasks of other projects are
// not found.
func (s *TaskService) Get(ctx context.Context, callerID, projectID, taskID string) (*repository.Task, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermViewTasks); err != nil {
		return nil, err
	}
	return s.visibleTask(ctx, projectID, taskID)
}

// Update patches task fields. The activity records only the fields that
// actually changed; a no-op patch writes nothing.
func (s *TaskService) Update(ctx context.Context, callerID, projectID, taskID string, req *models.UpdateTaskRequest) (*repository.Task, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermEditTask); err != nil {
		return nil, err
	}
	task, err := s.visibleTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	from := repository.JSONMap{}
	to := repository.JSONMap{}
	changed := []string{}

	if req.Title != nil {
		title, msg := validateTitle(*req.Title)
		if msg != "" {
			fields["title"] = msg
		} else if title != task.Title {
			from["title"] = task.Title
			to["title"] = title
			task.Title = title
			changed = append(changed, "title")
		}
	}
	if req.Description.Set {
		if req.Description.Value != nil && utf8.RuneCountInString(*req.Description.Value) > maxDescriptionLen {
			fields["description"] = "description must be at most 2000 characters"
		} else if !equalStringPtr(task.Description, req.Description.Value) {
			from["description"] = strPtrValue(task.Description)
			to["description"] = strPtrValue(req.Description.Value)
			task.Description = req.Description.Value
			changed = append(changed, "description")
		}
	}
	if req.Priority != nil {
		if !types.IsValidPriority(*req.Priority) {
			fields["priority"] = "priority must be low, medium, high or critical"
		} else if *req.Priority != task.Priority {
			from["priority"] = task.Priority
			to["priority"] = *req.Priority
			task.Priority = *req.Priority
			changed = append(changed, "priority")
		}
	}
	if req.DueDate.Set {
		if !equalTimePtr(task.DueDate, req.DueDate.Value) {
			from["dueDate"] = timePtrValue(task.DueDate)
			to["dueDate"] = timePtrValue(req.DueDate.Value)
			task.DueDate = req.DueDate.Value
			changed = append(changed, "dueDate")
		}
	}
	if req.Labels != nil {
		labels, msg := normalizeLabels(*req.Labels)
		if msg != "" {
			fields["labels"] = msg
		} else if !equalStringSlices(task.Labels, labels) {
			from["labels"] = task.Labels
			to["labels"] = labels
			task.Labels = labels
			changed = append(changed, "labels")
		}
	}
	if len(fields) > 0 {
		return nil, Validation("invalid task fields", fields)
	}
	if len(changed) == 0 {
		return task, nil
	}

	activity := &repository.TaskActivity{
		TaskID:    task.ID,
		ProjectID: projectID,
		Actor:     &callerID,
		Action:    types.ActionEdit,
		From:      from,
		To:        to,
		Metadata:  repository.JSONMap{"changedFields": changed},
	}
	if err := s.taskRepo.Update(ctx, task, activity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, Conflict("task changed concurrently, retry the request")
		}
		return nil, fromRepo(err)
	}
	return task, nil
}

// ChangeStatus transitions the task through the state machine. Admins may
// transition any task; members only tasks assigned to them. The transition
// is validated and applied against the committed status.
func (s *TaskService) ChangeStatus(ctx context.Context, callerID, projectID, taskID, newStatus string) (*repository.Task, error) {
	role, err := s.callerRole(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	if !types.IsValidTaskStatus(newStatus) {
		return nil, Validation("invalid status", map[string]string{"status": "unknown status " + newStatus})
	}

	task, err := s.visibleTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	isAssignee := task.Assignee != nil && *task.Assignee == callerID
	if !types.CanChangeStatus(role, isAssignee) {
		return nil, Forbidden("you cannot change the status of this task")
	}
	if !types.CanTransition(task.Status, newStatus) {
		return nil, InvalidTransition(task.Status, newStatus)
	}

	activity := &repository.TaskActivity{
		TaskID:    task.ID,
		ProjectID: projectID,
		Actor:     &callerID,
		Action:    types.ActionUpdateStatus,
		From:      repository.JSONMap{"status": task.Status},
		To:        repository.JSONMap{"status": newStatus},
	}
	updated, err := s.taskRepo.UpdateStatus(ctx, task.ID, task.Status, newStatus, activity)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, Conflict("task status changed concurrently, retry the request")
		}
		return nil, fromRepo(err)
	}
	return updated, nil
}

// Assign sets or clears the task's assignee. A new assignee must be an
// active project member and joins the watcher set.
func (s *TaskService) Assign(ctx context.Context, callerID, projectID, taskID string, assignee *string) (*repository.Task, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermAssignTask); err != nil {
		return nil, err
	}
	task, err := s.visibleTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}

	if assignee != nil {
		isMember, err := s.isActiveMember(ctx, projectID, *assignee)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, AssigneeNotMember(*assignee)
		}
	}
	if equalStringPtr(task.Assignee, assignee) {
		return task, nil
	}

	action := types.ActionAssign
	if assignee == nil {
		action = types.ActionUnassign
	}
	activity := &repository.TaskActivity{
		TaskID:    task.ID,
		ProjectID: projectID,
		Actor:     &callerID,
		Action:    action,
		From:      repository.JSONMap{"assignee": strPtrValue(task.Assignee)},
		To:        repository.JSONMap{"assignee": strPtrValue(assignee)},
	}

	task.Assignee = assignee
	if assignee != nil && !containsString(task.Watchers, *assignee) {
		task.Watchers = append(task.Watchers, *assignee)
	}
	if err := s.taskRepo.Update(ctx, task, activity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, Conflict("task changed concurrently, retry the request")
		}
		return nil, fromRepo(err)
	}
	return task, nil
}

// SoftDelete tombstones the task. The activity log survives.
func (s *TaskService) SoftDelete(ctx context.Context, callerID, projectID, taskID string) error {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermDeleteTask); err != nil {
		return err
	}
	task, err := s.visibleTask(ctx, projectID, taskID)
	if err != nil {
		return err
	}

	activity := &repository.TaskActivity{
		TaskID:    task.ID,
		ProjectID: projectID,
		Actor:     &callerID,
		Action:    types.ActionDelete,
		From:      repository.JSONMap{"isDeleted": false},
		To:        repository.JSONMap{"isDeleted": true},
	}
	if err := s.taskRepo.SoftDelete(ctx, task.ID, activity); err != nil {
		return fromRepo(err)
	}
	return nil
}

// ListActivity returns a task's activity log newest-first.
func (s *TaskService) ListActivity(ctx context.Context, callerID, projectID, taskID string, limit, offset int) ([]*repository.TaskActivity, int, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermViewTasks); err != nil {
		return nil, 0, err
	}
	// the task must belong to the project, but deleted tasks keep their log
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, 0, fromRepo(err)
	}
	if task == nil || task.ProjectID != projectID {
		return nil, 0, NotFound("task not found")
	}

	limit, err2 := activityLimit(limit)
	if err2 != nil {
		return nil, 0, err2
	}
	activities, total, err := s.activityRepo.FindByTaskID(ctx, taskID, limit, offset)
	if err != nil {
		return nil, 0, fromRepo(err)
	}
	return activities, total, nil
}

// ListProjectActivity returns the activity feed across a project's tasks.
func (s *TaskService) ListProjectActivity(ctx context.Context, callerID, projectID string, limit, offset int) ([]*repository.TaskActivity, int, error) {
	if _, err := s.requirePermission(ctx, projectID, callerID, types.PermViewTasks); err != nil {
		return nil, 0, err
	}
	limit, err := activityLimit(limit)
	if err != nil {
		return nil, 0, err
	}
	activities, total, err2 := s.activityRepo.FindByProjectID(ctx, projectID, limit, offset)
	if err2 != nil {
		return nil, 0, fromRepo(err2)
	}
	return activities, total, nil
}

// ArchiveProjectTasks archives every live task of the project. Called by the
// project service when a project is archived; authorization is the service
// token, checked in the handler.
func (s *TaskService) ArchiveProjectTasks(ctx context.Context, projectID string) (int, error) {
	n, err := s.taskRepo.ArchiveByProject(ctx, projectID)
	if err != nil {
		return 0, fromRepo(err)
	}
	return n, nil
}

// ============================================
// helpers
// ============================================

func (s *TaskService) visibleTask(ctx context.Context, projectID, taskID string) (*repository.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fromRepo(err)
	}
	if task == nil || task.IsDeleted || task.ProjectID != projectID {
		return nil, NotFound("task not found")
	}
	return task, nil
}

func activityLimit(limit int) (int, *Error) {
	if limit == 0 {
		return defaultActivityLimit, nil
	}
	if limit < 1 || limit > maxPageLimit {
		return 0, Validation("invalid pagination", map[string]string{"limit": "limit must be between 1 and 100"})
	}
	return limit, nil
}

// taskSnapshot captures the task's initial state for the create activity.
func taskSnapshot(t *repository.Task) repository.JSONMap {
	snap := repository.JSONMap{
		"title":    t.Title,
		"status":   t.Status,
		"priority": t.Priority,
		"labels":   t.Labels,
	}
	if t.Description != nil {
		snap["description"] = *t.Description
	}
	if t.Assignee != nil {
		snap["assignee"] = *t.Assignee
	}
	if t.DueDate != nil {
		snap["dueDate"] = t.DueDate.Format(time.RFC3339)
	}
	return snap
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func strPtrValue(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func timePtrValue(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return p.Format(time.RFC3339)
}
