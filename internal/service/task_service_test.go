package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/types"
)

// stubBridge resolves roles from a fixed map, keyed projectID+"/"+userID.
type stubBridge struct {
	roles map[string]string
	err   error
}

func (b *stubBridge) Role(ctx context.Context, projectID, userID string) (string, bool, error) {
	if b.err != nil {
		return "", false, b.err
	}
	role, ok := b.roles[projectID+"/"+userID]
	return role, ok, nil
}

const testProject = "p1"

func newTaskFixture(t *testing.T) (*TaskService, *stubBridge, *repository.Repositories) {
	t.Helper()
	repos := repository.NewRepositories()
	bridge := &stubBridge{roles: map[string]string{
		testProject + "/admin":  types.RoleAdmin,
		testProject + "/member": types.RoleMember,
		testProject + "/viewer": types.RoleViewer,
	}}
	return NewTaskService(repos.TaskRepo, repos.ActivityRepo, bridge), bridge, repos
}

func createTask(t *testing.T, svc *TaskService, title string) *repository.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), "admin", testProject, &models.CreateTaskRequest{Title: title})
	require.NoError(t, err)
	return task
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok, "expected a service error, got %v", err)
	assert.Equal(t, code, svcErr.Code)
}

func TestCreateTaskDefaults(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{Title: "  Ship it  "})
	require.NoError(t, err)
	assert.Equal(t, "Ship it", task.Title)
	assert.Equal(t, types.StatusBacklog, task.Status)
	assert.Equal(t, types.PriorityMedium, task.Priority)
	assert.Equal(t, []string{"admin"}, task.Watchers)

	got, err := svc.Get(ctx, "viewer", testProject, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.Priority, got.Priority)
}

func TestCreateTaskWithAssigneeAddsWatcher(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	assignee := "member"

	task, err := svc.Create(context.Background(), "admin", testProject, &models.CreateTaskRequest{
		Title:    "Review PR",
		Assignee: &assignee,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"admin", "member"}, task.Watchers)
}

func TestCreateTaskAssigneeMustBeMember(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()
	outsider := "stranger"

	_, err := svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{
		Title:    "T2",
		Assignee: &outsider,
	})
	assertCode(t, err, CodeAssigneeNotMember)

	// nothing was created
	tasks, total, err := svc.List(ctx, "admin", testProject, &repository.TaskFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tasks)
}

func TestCreateTaskPermission(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	for _, caller := range []string{"member", "viewer", "stranger"} {
		_, err := svc.Create(context.Background(), caller, testProject, &models.CreateTaskRequest{Title: "nope"})
		assertCode(t, err, CodeForbidden)
	}
}

func TestTitleBoundaries(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	// bounds count characters, not bytes
	for _, title := range []string{"x", strings.Repeat("a", 200), strings.Repeat("й", 200)} {
		_, err := svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{Title: title})
		assert.NoError(t, err, "title of %d characters should be accepted", utf8.RuneCountInString(title))
	}
	for _, title := range []string{"", "   ", strings.Repeat("a", 201), strings.Repeat("й", 201)} {
		_, err := svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{Title: title})
		assertCode(t, err, CodeValidation)
	}
}

func TestLabelBoundaries(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	labels := make([]string, 10)
	for i := range labels {
		labels[i] = "label-" + string(rune('a'+i))
	}
	_, err := svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{Title: "ok", Labels: labels})
	assert.NoError(t, err)

	labels = append(labels, "one-too-many")
	_, err = svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{Title: "nope", Labels: labels})
	assertCode(t, err, CodeValidation)
}

func TestListLimitBoundaries(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	_, _, err := svc.List(ctx, "admin", testProject, &repository.TaskFilters{Limit: 100})
	assert.NoError(t, err)

	_, _, err = svc.List(ctx, "admin", testProject, &repository.TaskFilters{Limit: 101})
	assertCode(t, err, CodeValidation)
}

func TestChangeStatusLifecycle(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()
	assignee := "member"

	task := createTask(t, svc, "T1")
	task, err := svc.Assign(ctx, "admin", testProject, task.ID, &assignee)
	require.NoError(t, err)

	// assignee walks the happy path
	task, err = svc.ChangeStatus(ctx, "member", testProject, task.ID, types.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, task.Status)

	task, err = svc.ChangeStatus(ctx, "member", testProject, task.ID, types.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, task.Status)

	// activity log in order: create, assign, update_status, update_status
	activities, _, err := svc.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, activities, 4)
	// newest first
	assert.Equal(t, types.ActionUpdateStatus, activities[0].Action)
	assert.Equal(t, types.StatusInProgress, activities[0].From["status"])
	assert.Equal(t, types.StatusDone, activities[0].To["status"])
	assert.Equal(t, types.ActionUpdateStatus, activities[1].Action)
	assert.Equal(t, types.StatusBacklog, activities[1].From["status"])
	assert.Equal(t, types.ActionAssign, activities[2].Action)
	assert.Equal(t, types.ActionCreate, activities[3].Action)
}

func TestInvalidTransition(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task := createTask(t, svc, "T1")
	_, err := svc.ChangeStatus(ctx, "admin", testProject, task.ID, types.StatusDone)
	assertCode(t, err, CodeInvalidTransition)
	assert.Contains(t, err.Error(), types.StatusBacklog)
	assert.Contains(t, err.Error(), types.StatusDone)

	// status unchanged, no activity appended
	got, err := svc.Get(ctx, "admin", testProject, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusBacklog, got.Status)

	activities, _, err := svc.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, activities, 1) // only the create
}

func TestViewerCannotChangeStatus(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task := createTask(t, svc, "T1")
	_, err := svc.ChangeStatus(ctx, "viewer", testProject, task.ID, types.StatusArchived)
	assertCode(t, err, CodeForbidden)

	got, err := svc.Get(ctx, "admin", testProject, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusBacklog, got.Status)
}

func TestMemberCanOnlyMoveOwnTasks(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task := createTask(t, svc, "unassigned")
	_, err := svc.ChangeStatus(ctx, "member", testProject, task.ID, types.StatusInProgress)
	assertCode(t, err, CodeForbidden)
}

func TestUpdateRecordsChangedFields(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task := createTask(t, svc, "Old title")
	high := types.PriorityHigh
	updated, err := svc.Update(ctx, "admin", testProject, task.ID, &models.UpdateTaskRequest{
		Title:    strPtr("New title"),
		Priority: &high,
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, types.PriorityHigh, updated.Priority)

	activities, _, err := svc.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	edit := activities[0]
	assert.Equal(t, types.ActionEdit, edit.Action)
	assert.Equal(t, "Old title", edit.From["title"])
	assert.Equal(t, "New title", edit.To["title"])
	changed, ok := edit.Metadata["changedFields"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"title", "priority"}, changed)
}

func TestNoopUpdateWritesNoActivity(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task := createTask(t, svc, "Same title")
	_, err := svc.Update(ctx, "admin", testProject, task.ID, &models.UpdateTaskRequest{
		Title: strPtr("Same title"),
	})
	require.NoError(t, err)

	activities, _, err := svc.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, activities, 1)
}

func TestUpdateClearsDescriptionAndDueDate(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	due := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	task, err := svc.Create(ctx, "admin", testProject, &models.CreateTaskRequest{
		Title:       "with extras",
		Description: strPtr("details"),
		DueDate:     &due,
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "admin", testProject, task.ID, &models.UpdateTaskRequest{
		Description: models.NullableString{Set: true, Value: nil},
		DueDate:     models.NullableTime{Set: true, Value: nil},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Description)
	assert.Nil(t, updated.DueDate)
}

func TestAssignAndUnassign(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()
	member := "member"

	task := createTask(t, svc, "T1")
	task, err := svc.Assign(ctx, "admin", testProject, task.ID, &member)
	require.NoError(t, err)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "member", *task.Assignee)

	task, err = svc.Assign(ctx, "admin", testProject, task.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, task.Assignee)

	activities, _, err := svc.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, activities, 3)
	assert.Equal(t, types.ActionUnassign, activities[0].Action)
	assert.Equal(t, types.ActionAssign, activities[1].Action)
}

func TestAssignNonMemberRejected(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	outsider := "stranger"

	task := createTask(t, svc, "T2")
	_, err := svc.Assign(context.Background(), "admin", testProject, task.ID, &outsider)
	assertCode(t, err, CodeAssigneeNotMember)
}

func TestSoftDelete(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	task := createTask(t, svc, "doomed")
	require.NoError(t, svc.SoftDelete(ctx, "admin", testProject, task.ID))

	_, err := svc.Get(ctx, "admin", testProject, task.ID)
	assertCode(t, err, CodeNotFound)

	// excluded from default listings
	_, total, err := svc.List(ctx, "admin", testProject, &repository.TaskFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)

	// visible when explicitly requested
	_, total, err = svc.List(ctx, "admin", testProject, &repository.TaskFilters{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// the activity log outlives the task
	activities, _, err := svc.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, types.ActionDelete, activities[0].Action)
}

func TestGetCrossProjectIsNotFound(t *testing.T) {
	svc, bridge, _ := newTaskFixture(t)
	bridge.roles["p2/admin"] = types.RoleAdmin

	task := createTask(t, svc, "T1")
	_, err := svc.Get(context.Background(), "admin", "p2", task.ID)
	assertCode(t, err, CodeNotFound)
}

func TestBridgeFailsClosed(t *testing.T) {
	svc, bridge, _ := newTaskFixture(t)
	task := createTask(t, svc, "T1")

	bridge.err = errors.New("project service unreachable")
	_, err := svc.Get(context.Background(), "admin", testProject, task.ID)
	assertCode(t, err, CodeInternal)

	_, err = svc.ChangeStatus(context.Background(), "admin", testProject, task.ID, types.StatusInProgress)
	assertCode(t, err, CodeInternal)
}

func TestArchiveProjectTasks(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	t1 := createTask(t, svc, "T1")
	t2 := createTask(t, svc, "T2")
	_, err := svc.ChangeStatus(ctx, "admin", testProject, t2.ID, types.StatusInProgress)
	require.NoError(t, err)

	n, err := svc.ArchiveProjectTasks(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{t1.ID, t2.ID} {
		got, err := svc.Get(ctx, "admin", testProject, id)
		require.NoError(t, err)
		assert.Equal(t, types.StatusArchived, got.Status)

		// archived is terminal
		_, err = svc.ChangeStatus(ctx, "admin", testProject, id, types.StatusInProgress)
		assertCode(t, err, CodeInvalidTransition)
	}

	// idempotent: nothing left to archive
	n, err = svc.ArchiveProjectTasks(ctx, testProject)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProjectActivityFeed(t *testing.T) {
	svc, _, _ := newTaskFixture(t)
	ctx := context.Background()

	createTask(t, svc, "T1")
	createTask(t, svc, "T2")

	activities, total, err := svc.ListProjectActivity(ctx, "viewer", testProject, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, activities, 2)
}

// racingTaskRepo lets a test interleave a competing write between the
// service's read of a task and its subsequent update.
type racingTaskRepo struct {
	repository.TaskRepository
	onRead func()
}

func (r *racingTaskRepo) FindByID(ctx context.Context, id string) (*repository.Task, error) {
	task, err := r.TaskRepository.FindByID(ctx, id)
	if err == nil && r.onRead != nil {
		r.onRead()
	}
	return task, err
}

func TestUpdateConflictsWithConcurrentEdit(t *testing.T) {
	repos := repository.NewRepositories()
	bridge := &stubBridge{roles: map[string]string{
		testProject + "/admin":  types.RoleAdmin,
		testProject + "/member": types.RoleMember,
	}}
	racing := &racingTaskRepo{TaskRepository: repos.TaskRepo}
	svc := NewTaskService(racing, repos.ActivityRepo, bridge)
	direct := NewTaskService(repos.TaskRepo, repos.ActivityRepo, bridge)
	ctx := context.Background()

	task := createTask(t, svc, "Original")

	racing.onRead = func() {
		racing.onRead = nil
		_, err := direct.Update(ctx, "admin", testProject, task.ID, &models.UpdateTaskRequest{
			Description: models.NullableString{Set: true, Value: strPtr("written first")},
		})
		require.NoError(t, err)
	}

	_, err := svc.Update(ctx, "admin", testProject, task.ID, &models.UpdateTaskRequest{
		Title: strPtr("stale edit"),
	})
	assertCode(t, err, CodeConflict)

	// the winning write is untouched by the losing one
	got, err := direct.Get(ctx, "admin", testProject, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "written first", *got.Description)

	activities, _, err := direct.ListActivity(ctx, "admin", testProject, task.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2) // create plus the one edit that landed
	assert.Equal(t, types.ActionEdit, activities[0].Action)
}

func strPtr(s string) *string { return &s }
