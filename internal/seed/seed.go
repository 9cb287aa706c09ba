// Package seed inserts demo data for local development.
package seed

import (
	"context"
	"log"
	"time"

	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/types"
)

// Demo user ids match the dev tokens issued by the local auth service.
const (
	userAlice = "dev-user-alice"
	userBob   = "dev-user-bob"
	userCara  = "dev-user-cara"
)

// SeedData creates a demo project with members and tasks. It is a no-op when
// the store already has data for the demo admin.
func SeedData(repos *repository.Repositories) {
	ctx := context.Background()

	existing, _, err := repos.ProjectRepo.FindByUserID(ctx, userAlice, &repository.ProjectListOptions{Limit: 1})
	if err != nil {
		log.Printf("[Seed] Skipping, store not reachable: %v", err)
		return
	}
	if len(existing) > 0 {
		log.Println("[Seed] Data already exists, skipping...")
		return
	}

	log.Println("[Seed] 🌱 Creating demo project and tasks...")

	now := time.Now()
	project := &repository.Project{
		Name:              "Website Relaunch",
		Description:       strPtr("Demo project seeded for local development"),
		CreatedBy:         userAlice,
		Status:            types.ProjectActive,
		InvitationCode:    "DEMO1234",
		IsPublic:          false,
		AllowMemberInvite: true,
	}
	creator := &repository.Member{
		UserID:   userAlice,
		Email:    "alice@example.test",
		Role:     types.RoleAdmin,
		Status:   types.MemberActive,
		JoinedAt: now,
	}
	if err := repos.ProjectRepo.Create(ctx, project, creator); err != nil {
		log.Printf("[Seed] Failed to create demo project: %v", err)
		return
	}

	bob := &repository.Member{
		ProjectID: project.ID,
		UserID:    userBob,
		Email:     "bob@example.test",
		Role:      types.RoleMember,
		Status:    types.MemberActive,
		JoinedAt:  now,
		InvitedBy: strPtr(userAlice),
	}
	repos.ProjectRepo.AddMember(ctx, bob, nil)

	cara := &repository.Member{
		ProjectID:        project.ID,
		UserID:           userCara,
		Email:            "cara@example.test",
		Role:             types.RoleViewer,
		Status:           types.MemberInvited,
		JoinedAt:         now,
		InvitedBy:        strPtr(userAlice),
		InvitationSentAt: &now,
	}
	repos.ProjectRepo.AddMember(ctx, cara, nil)

	due := now.Add(72 * time.Hour)
	tasks := []*repository.Task{
		{
			ProjectID:          project.ID,
			Title:              "Draft new landing page copy",
			Description:        strPtr("Hero section, pricing, and testimonials"),
			Status:             types.StatusInProgress,
			Priority:           types.PriorityHigh,
			Creator:            userAlice,
			Assignee:           strPtr(userBob),
			DueDate:            &due,
			Labels:             []string{"content", "launch"},
			Watchers:           []string{userAlice, userBob},
			LastStatusChangeAt: now,
		},
		{
			ProjectID:          project.ID,
			Title:              "Set up staging environment",
			Status:             types.StatusBacklog,
			Priority:           types.PriorityMedium,
			Creator:            userAlice,
			Labels:             []string{"infra"},
			Watchers:           []string{userAlice},
			LastStatusChangeAt: now,
		},
	}
	for _, t := range tasks {
		activity := &repository.TaskActivity{
			ProjectID: project.ID,
			Actor:     strPtr(t.Creator),
			Action:    types.ActionCreate,
			To:        repository.JSONMap{"title": t.Title, "status": t.Status},
		}
		if err := repos.TaskRepo.Create(ctx, t, activity); err != nil {
			log.Printf("[Seed] Failed to create demo task %q: %v", t.Title, err)
		}
	}

	log.Printf("[Seed] ✅ Demo project %s ready (code %s)", project.ID, project.InvitationCode)
}

func strPtr(s string) *string { return &s }
