package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProject(t *testing.T, repos *Repositories, code string) *Project {
	t.Helper()
	project := &Project{
		Name:           "Alpha",
		CreatedBy:      "alice",
		Status:         "active",
		InvitationCode: code,
	}
	creator := &Member{UserID: "alice", Role: "admin", Status: "active", JoinedAt: time.Now()}
	require.NoError(t, repos.ProjectRepo.Create(context.Background(), project, creator))
	return project
}

func TestInvitationCodeUniqueness(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	seedProject(t, repos, "ABCD1234")

	dup := &Project{Name: "Beta", CreatedBy: "bob", Status: "active", InvitationCode: "abcd1234"}
	err := repos.ProjectRepo.Create(ctx, dup, &Member{UserID: "bob", Role: "admin", Status: "active"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// codes of deleted projects are reusable
	first, err := repos.ProjectRepo.FindByInvitationCode(ctx, "ABCD1234")
	require.NoError(t, err)
	first.Status = "deleted"
	require.NoError(t, repos.ProjectRepo.Update(ctx, first))

	err = repos.ProjectRepo.Create(ctx, dup, &Member{UserID: "bob", Role: "admin", Status: "active"})
	assert.NoError(t, err)
}

func TestFindByInvitationCodeCaseInsensitive(t *testing.T) {
	repos := NewRepositories()
	seedProject(t, repos, "AbCd1234")

	got, err := repos.ProjectRepo.FindByInvitationCode(context.Background(), "aBcD1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alpha", got.Name)
}

func TestDuplicateMemberRejected(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	project := seedProject(t, repos, "CODE0001")

	member := &Member{ProjectID: project.ID, UserID: "bob", Role: "member", Status: "active"}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, member, nil))

	again := &Member{ProjectID: project.ID, UserID: "bob", Role: "viewer", Status: "invited"}
	assert.ErrorIs(t, repos.ProjectRepo.AddMember(ctx, again, nil), ErrDuplicate)

	byEmail := &Member{ProjectID: project.ID, Email: "b@x", Role: "member", Status: "invited"}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, byEmail, nil))
	emailAgain := &Member{ProjectID: project.ID, Email: "B@X", Role: "member", Status: "invited"}
	assert.ErrorIs(t, repos.ProjectRepo.AddMember(ctx, emailAgain, nil), ErrDuplicate)
}

func TestActiveMemberCap(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	project := seedProject(t, repos, "CODE0002")
	maxMembers := 2

	bob := &Member{ProjectID: project.ID, UserID: "bob", Role: "member", Status: "active"}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, bob, &maxMembers))

	carol := &Member{ProjectID: project.ID, UserID: "carol", Role: "member", Status: "active"}
	assert.ErrorIs(t, repos.ProjectRepo.AddMember(ctx, carol, &maxMembers), ErrMemberLimit)

	// invited entries do not count against the cap
	carol.Status = "invited"
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, carol, &maxMembers))

	// but activating one against a full project fails
	carol.Status = "active"
	assert.ErrorIs(t, repos.ProjectRepo.UpdateMember(ctx, carol, &maxMembers), ErrMemberLimit)
}

func TestUpdateStatusConflict(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	task := &Task{ProjectID: "p1", Title: "T1", Status: "backlog", Priority: "medium", Creator: "alice"}
	require.NoError(t, repos.TaskRepo.Create(ctx, task, nil))

	_, err := repos.TaskRepo.UpdateStatus(ctx, task.ID, "backlog", "in_progress", &TaskActivity{
		TaskID: task.ID, ProjectID: "p1", Action: "update_status",
	})
	require.NoError(t, err)

	// a second writer holding the stale status loses
	_, err = repos.TaskRepo.UpdateStatus(ctx, task.ID, "backlog", "archived", &TaskActivity{
		TaskID: task.ID, ProjectID: "p1", Action: "update_status",
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repos.TaskRepo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)
}

func TestUpdateRejectsStaleSnapshot(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	task := &Task{ProjectID: "p1", Title: "T1", Status: "backlog", Priority: "medium", Creator: "alice"}
	require.NoError(t, repos.TaskRepo.Create(ctx, task, nil))

	first, err := repos.TaskRepo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	second, err := repos.TaskRepo.FindByID(ctx, task.ID)
	require.NoError(t, err)

	first.Title = "renamed"
	require.NoError(t, repos.TaskRepo.Update(ctx, first, &TaskActivity{
		TaskID: task.ID, ProjectID: "p1", Action: "edit",
	}))

	// the second snapshot predates the committed write
	second.Title = "stale rename"
	second.Priority = "high"
	err = repos.TaskRepo.Update(ctx, second, &TaskActivity{
		TaskID: task.ID, ProjectID: "p1", Action: "edit",
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repos.TaskRepo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, "medium", got.Priority)

	activities, _, err := repos.ActivityRepo.FindByTaskID(ctx, task.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, activities, 1) // the rejected write logged nothing
}

func TestArchiveByProjectSnapshotsPreviousStatus(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	t1 := &Task{ProjectID: "p1", Title: "T1", Status: "backlog", Priority: "medium", Creator: "alice"}
	t2 := &Task{ProjectID: "p1", Title: "T2", Status: "backlog", Priority: "medium", Creator: "alice"}
	require.NoError(t, repos.TaskRepo.Create(ctx, t1, nil))
	require.NoError(t, repos.TaskRepo.Create(ctx, t2, nil))
	_, err := repos.TaskRepo.UpdateStatus(ctx, t2.ID, "backlog", "in_progress", nil)
	require.NoError(t, err)

	n, err := repos.TaskRepo.ArchiveByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	activities, _, err := repos.ActivityRepo.FindByTaskID(ctx, t2.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	archive := activities[0]
	assert.Equal(t, "archive", archive.Action)
	assert.Nil(t, archive.Actor) // system action
	assert.Equal(t, "in_progress", archive.From["status"])
	assert.Equal(t, "archived", archive.To["status"])
}

func TestFindDueSoon(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	assignee := "bob"

	soon := time.Now().Add(12 * time.Hour)
	later := time.Now().Add(72 * time.Hour)
	past := time.Now().Add(-time.Hour)

	mk := func(title string, due *time.Time, done bool) {
		task := &Task{ProjectID: "p1", Title: title, Status: "backlog", Priority: "medium",
			Creator: "alice", Assignee: &assignee, DueDate: due}
		require.NoError(t, repos.TaskRepo.Create(ctx, task, nil))
		if done {
			_, err := repos.TaskRepo.UpdateStatus(ctx, task.ID, "backlog", "in_progress", nil)
			require.NoError(t, err)
			_, err = repos.TaskRepo.UpdateStatus(ctx, task.ID, "in_progress", "done", nil)
			require.NoError(t, err)
		}
	}
	mk("due soon", &soon, false)
	mk("due later", &later, false)
	mk("overdue", &past, false)
	mk("already done", &soon, true)

	due, err := repos.TaskRepo.FindDueSoon(ctx, 24*time.Hour)
	require.NoError(t, err)
	titles := make([]string, 0, len(due))
	for _, task := range due {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"due soon"}, titles)
}

func TestActivityPaginationNewestFirst(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	task := &Task{ProjectID: "p1", Title: "T1", Status: "backlog", Priority: "medium", Creator: "alice"}
	actor := "alice"
	require.NoError(t, repos.TaskRepo.Create(ctx, task, &TaskActivity{
		ProjectID: "p1", Actor: &actor, Action: "create",
	}))
	for _, pair := range [][2]string{{"backlog", "in_progress"}, {"in_progress", "done"}} {
		_, err := repos.TaskRepo.UpdateStatus(ctx, task.ID, pair[0], pair[1], &TaskActivity{
			TaskID: task.ID, ProjectID: "p1", Actor: &actor, Action: "update_status",
			From: JSONMap{"status": pair[0]}, To: JSONMap{"status": pair[1]},
		})
		require.NoError(t, err)
	}

	page, total, err := repos.ActivityRepo.FindByTaskID(ctx, task.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "done", page[0].To["status"])

	rest, _, err := repos.ActivityRepo.FindByTaskID(ctx, task.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "create", rest[0].Action)

	byActor, total, err := repos.ActivityRepo.FindByActor(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, byActor, 3)
}
