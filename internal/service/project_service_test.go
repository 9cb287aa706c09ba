package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/types"
)

// stubEmitter records archive fan-outs.
type stubEmitter struct {
	mu       sync.Mutex
	archived []string
}

func (e *stubEmitter) ArchiveProjectTasks(ctx context.Context, projectID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.archived = append(e.archived, projectID)
	return nil
}

func (e *stubEmitter) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.archived...)
}

func newProjectFixture(t *testing.T) (*ProjectService, *stubEmitter, *stubNotifier, *repository.Repositories) {
	t.Helper()
	repos := repository.NewRepositories()
	emitter := &stubEmitter{}
	notifier := &stubNotifier{}
	return NewProjectService(repos.ProjectRepo, emitter, notifier), emitter, notifier, repos
}

func TestCreateProjectSeedsCreatorAdmin(t *testing.T) {
	svc, _, _, repos := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)
	assert.Equal(t, types.ProjectActive, project.Status)
	assert.Len(t, project.InvitationCode, 8)
	assert.Equal(t, "alice", project.CreatedBy)

	member, err := repos.ProjectRepo.FindMember(ctx, project.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, types.RoleAdmin, member.Role)
	assert.Equal(t, types.MemberActive, member.Status)
}

func TestCreateProjectValidation(t *testing.T) {
	svc, _, _, _ := newProjectFixture(t)
	ctx := context.Background()

	cases := []models.CreateProjectRequest{
		{Name: "ab"},                             // too short
		{Name: strings.Repeat("a", 101)},         // too long
		{Name: "  a  "},                          // too short after trim
		{Name: "Valid", MaxMembers: intPtr(0)},   // 0 is not unlimited
		{Name: "Valid", Description: strPtr(strings.Repeat("d", 501))},
	}
	for _, req := range cases {
		_, err := svc.Create(ctx, "alice", &req)
		assertCode(t, err, CodeValidation)
	}

	// boundary values pass
	_, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "abc", MaxMembers: intPtr(1)})
	assert.NoError(t, err)
	_, err = svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: strings.Repeat("a", 100)})
	assert.NoError(t, err)
}

func TestInvitationCodesAreDistinct(t *testing.T) {
	svc, _, _, _ := newProjectFixture(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Project"})
		require.NoError(t, err)
		code := strings.ToUpper(project.InvitationCode)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestGetProjectRequiresMembership(t *testing.T) {
	svc, _, _, repos := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "mallory", project.ID)
	assertCode(t, err, CodeForbidden)

	// invited but not yet active is still forbidden
	invited := &repository.Member{
		ProjectID: project.ID, UserID: "bob", Role: types.RoleMember,
		Status: types.MemberInvited, JoinedAt: time.Now(),
	}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, invited, nil))
	_, err = svc.Get(ctx, "bob", project.ID)
	assertCode(t, err, CodeForbidden)

	got, err := svc.Get(ctx, "alice", project.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Members)
}

func TestUpdateProjectRequiresAdmin(t *testing.T) {
	svc, _, _, repos := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)

	viewer := &repository.Member{
		ProjectID: project.ID, UserID: "vera", Role: types.RoleViewer,
		Status: types.MemberActive, JoinedAt: time.Now(),
	}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, viewer, nil))

	_, err = svc.Update(ctx, "vera", project.ID, &models.UpdateProjectRequest{Name: strPtr("Beta")})
	assertCode(t, err, CodeForbidden)

	updated, err := svc.Update(ctx, "alice", project.ID, &models.UpdateProjectRequest{Name: strPtr("Beta")})
	require.NoError(t, err)
	assert.Equal(t, "Beta", updated.Name)
}

func TestArchiveProjectEmitsEvent(t *testing.T) {
	svc, emitter, _, _ := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)

	archived := types.ProjectArchived
	updated, err := svc.Update(ctx, "alice", project.ID, &models.UpdateProjectRequest{Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, types.ProjectArchived, updated.Status)

	require.Eventually(t, func() bool {
		return len(emitter.calls()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, project.ID, emitter.calls()[0])

	// archiving an already-archived project does not emit again
	_, err = svc.Update(ctx, "alice", project.ID, &models.UpdateProjectRequest{Status: &archived})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, emitter.calls(), 1)
}

func TestDeleteProjectCreatorOnly(t *testing.T) {
	svc, _, _, repos := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)

	admin := &repository.Member{
		ProjectID: project.ID, UserID: "bob", Role: types.RoleAdmin,
		Status: types.MemberActive, JoinedAt: time.Now(),
	}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, admin, nil))

	// even another admin cannot delete
	err = svc.Delete(ctx, "bob", project.ID)
	assertCode(t, err, CodeForbidden)

	require.NoError(t, svc.Delete(ctx, "alice", project.ID))

	// deleted projects vanish from reads and listings
	_, err = svc.Get(ctx, "alice", project.ID)
	assertCode(t, err, CodeNotFound)

	projects, total, err := svc.List(ctx, "alice", &repository.ProjectListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, projects)
}

func TestListProjectsFilters(t *testing.T) {
	svc, _, _, _ := newProjectFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Website Relaunch"})
	require.NoError(t, err)
	p2, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Mobile App"})
	require.NoError(t, err)

	archived := types.ProjectArchived
	_, err = svc.Update(ctx, "alice", p2.ID, &models.UpdateProjectRequest{Status: &archived})
	require.NoError(t, err)

	// default: everything not deleted
	_, total, err := svc.List(ctx, "alice", &repository.ProjectListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, total, err = svc.List(ctx, "alice", &repository.ProjectListOptions{Status: types.ProjectArchived})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	projects, total, err := svc.List(ctx, "alice", &repository.ProjectListOptions{Search: "website"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "Website Relaunch", projects[0].Name)

	// non-member sees nothing
	_, total, err = svc.List(ctx, "mallory", &repository.ProjectListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpdateProjectNotifiesMembers(t *testing.T) {
	svc, _, notifier, repos := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)

	members := []*repository.Member{
		{ProjectID: project.ID, UserID: "bob", Email: "bob@x", Role: types.RoleMember,
			Status: types.MemberActive, JoinedAt: time.Now()},
		{ProjectID: project.ID, UserID: "carol", Role: types.RoleMember,
			Status: types.MemberActive, JoinedAt: time.Now()}, // no email on file
		{ProjectID: project.ID, Email: "dave@x", Role: types.RoleMember,
			Status: types.MemberInvited, JoinedAt: time.Now()},
	}
	for _, m := range members {
		require.NoError(t, repos.ProjectRepo.AddMember(ctx, m, nil))
	}

	_, err = svc.Update(ctx, "alice", project.ID, &models.UpdateProjectRequest{Name: strPtr("Beta")})
	require.NoError(t, err)

	// only active members with a known email hear about it; the actor does not
	assert.Equal(t, []string{"bob@x"}, notifier.updated())
	assert.Empty(t, notifier.deleted())
}

func TestDeleteProjectNotifiesMembers(t *testing.T) {
	svc, _, notifier, repos := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)
	bob := &repository.Member{
		ProjectID: project.ID, UserID: "bob", Email: "bob@x", Role: types.RoleMember,
		Status: types.MemberActive, JoinedAt: time.Now(),
	}
	require.NoError(t, repos.ProjectRepo.AddMember(ctx, bob, nil))

	// a rejected delete emits nothing
	err = svc.Delete(ctx, "bob", project.ID)
	assertCode(t, err, CodeForbidden)
	assert.Empty(t, notifier.deleted())

	require.NoError(t, svc.Delete(ctx, "alice", project.ID))
	assert.Equal(t, []string{"bob@x"}, notifier.deleted())
}

func TestProjectLengthsCountCharacters(t *testing.T) {
	svc, _, _, _ := newProjectFixture(t)
	ctx := context.Background()

	// 100 characters, well over 100 bytes
	_, err := svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: strings.Repeat("ü", 100)})
	assert.NoError(t, err)
	_, err = svc.Create(ctx, "alice", &models.CreateProjectRequest{Name: strings.Repeat("ü", 101)})
	assertCode(t, err, CodeValidation)

	_, err = svc.Create(ctx, "alice", &models.CreateProjectRequest{
		Name:        "Unicode",
		Description: strPtr(strings.Repeat("é", 500)),
	})
	assert.NoError(t, err)
}

func intPtr(n int) *int { return &n }
