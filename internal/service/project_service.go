package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/types"
)

// ============================================
// Project Service
// ============================================

const (
	codeLength   = 8
	codeCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts = 5
)

type ProjectService struct {
	projectRepo repository.ProjectRepository
	taskEmitter ArchiveEmitter
	notifier    Notifier
}

func NewProjectService(projectRepo repository.ProjectRepository, taskEmitter ArchiveEmitter, notifier Notifier) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		taskEmitter: taskEmitter,
		notifier:    notifier,
	}
}

// generateInvitationCode returns a random 8-character alphanumeric code.
func generateInvitationCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}

func validateProjectName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 100 {
		return "", "name must be between 3 and 100 characters"
	}
	return name, ""
}

// Create inserts a new project with a unique invitation code and the caller
// seeded as an active admin. Code collisions are retried a bounded number of
// times before giving up.
func (s *ProjectService) Create(ctx context.Context, callerID string, req *models.CreateProjectRequest) (*repository.Project, error) {
	fields := map[string]string{}
	name, msg := validateProjectName(req.Name)
	if msg != "" {
		fields["name"] = msg
	}
	if req.Description != nil && utf8.RuneCountInString(*req.Description) > 500 {
		fields["description"] = "description must be at most 500 characters"
	}
	if req.MaxMembers != nil && *req.MaxMembers < 1 {
		fields["maxMembers"] = "maxMembers must be at least 1"
	}
	if len(fields) > 0 {
		return nil, Validation("invalid project fields", fields)
	}

	project := &repository.Project{
		Name:              name,
		Description:       req.Description,
		CreatedBy:         callerID,
		Status:            types.ProjectActive,
		IsPublic:          req.IsPublic != nil && *req.IsPublic,
		AllowMemberInvite: req.AllowMemberInvite != nil && *req.AllowMemberInvite,
		MaxMembers:        req.MaxMembers,
	}
	creator := &repository.Member{
		ProjectID: "",
		UserID:    callerID,
		Role:      types.RoleAdmin,
		Status:    types.MemberActive,
		JoinedAt:  time.Now(),
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := generateInvitationCode()
		if err != nil {
			return nil, Internal(err)
		}
		project.InvitationCode = code

		err = s.projectRepo.Create(ctx, project, creator)
		if err == nil {
			return project, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fromRepo(err)
		}
		log.Printf("⚠️ Invitation code collision on %q, regenerating", code)
	}
	return nil, Internal(errors.New("could not generate a unique invitation code"))
}

// List returns the caller's projects (any project with an active member entry
// for them), filtered and paginated.
func (s *ProjectService) List(ctx context.Context, callerID string, opts *repository.ProjectListOptions) ([]*repository.Project, int, error) {
	if opts.Limit == 0 {
		opts.Limit = 20
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		return nil, 0, Validation("invalid pagination", map[string]string{"limit": "limit must be between 1 and 100"})
	}
	if opts.Status != "" && opts.Status != types.ProjectActive && opts.Status != types.ProjectArchived {
		return nil, 0, Validation("invalid status filter", map[string]string{"status": "must be active or archived"})
	}
	if opts.Role != "" && !types.IsValidRole(opts.Role) {
		return nil, 0, Validation("invalid role filter", map[string]string{"role": "must be admin, member or viewer"})
	}
	projects, total, err := s.projectRepo.FindByUserID(ctx, callerID, opts)
	if err != nil {
		return nil, 0, fromRepo(err)
	}
	return projects, total, nil
}

// Get returns the project with its member entries. Callers without an active
// member entry are rejected.
func (s *ProjectService) Get(ctx context.Context, callerID, projectID string) (*repository.Project, error) {
	project, err := s.visibleProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	member, err := s.projectRepo.FindMember(ctx, projectID, callerID)
	if err != nil {
		return nil, fromRepo(err)
	}
	if member == nil || member.Status != types.MemberActive {
		return nil, Forbidden("you are not a member of this project")
	}

	members, err := s.projectRepo.FindMembers(ctx, projectID, "")
	if err != nil {
		return nil, fromRepo(err)
	}
	project.Members = members
	return project, nil
}

// Update patches the project. Requires the admin role. Archiving the project
// emits an archive event to the task domain, fire-and-forget.
func (s *ProjectService) Update(ctx context.Context, callerID, projectID string, req *models.UpdateProjectRequest) (*repository.Project, error) {
	project, err := s.visibleProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, projectID, callerID, types.RoleAdmin); err != nil {
		return nil, err
	}

	fields := map[string]string{}
	var changed []string
	if req.Name != nil {
		name, msg := validateProjectName(*req.Name)
		if msg != "" {
			fields["name"] = msg
		} else {
			project.Name = name
			changed = append(changed, "name")
		}
	}
	if req.Description.Set {
		if req.Description.Value != nil && utf8.RuneCountInString(*req.Description.Value) > 500 {
			fields["description"] = "description must be at most 500 characters"
		} else {
			project.Description = req.Description.Value
			changed = append(changed, "description")
		}
	}
	wasArchived := project.Status == types.ProjectArchived
	if req.Status != nil {
		switch *req.Status {
		case types.ProjectActive, types.ProjectArchived:
			project.Status = *req.Status
			changed = append(changed, "status")
		default:
			fields["status"] = "status must be active or archived"
		}
	}
	if req.IsPublic != nil {
		project.IsPublic = *req.IsPublic
		changed = append(changed, "isPublic")
	}
	if req.AllowMemberInvite != nil {
		project.AllowMemberInvite = *req.AllowMemberInvite
		changed = append(changed, "allowMemberInvite")
	}
	if req.MaxMembers != nil {
		if *req.MaxMembers < 1 {
			fields["maxMembers"] = "maxMembers must be at least 1"
		} else {
			project.MaxMembers = req.MaxMembers
			changed = append(changed, "maxMembers")
		}
	}
	if len(fields) > 0 {
		return nil, Validation("invalid project fields", fields)
	}

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, fromRepo(err)
	}

	if !wasArchived && project.Status == types.ProjectArchived && s.taskEmitter != nil {
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.taskEmitter.ArchiveProjectTasks(ctx, id); err != nil {
				log.Printf("⚠️ Failed to propagate archive of project %s: %v", id, err)
			}
		}(project.ID)
	}
	if len(changed) > 0 {
		s.notifyMembers(ctx, project, callerID, func(toEmail string) {
			s.notifier.ProjectUpdated(toEmail, project.Name, strings.Join(changed, ", "))
		})
	}

	return project, nil
}

// Delete soft-deletes the project. Only the creator may delete.
func (s *ProjectService) Delete(ctx context.Context, callerID, projectID string) error {
	project, err := s.visibleProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.CreatedBy != callerID {
		return Forbidden("only the project creator can delete the project")
	}

	project.Status = types.ProjectDeleted
	if err := s.projectRepo.Update(ctx, project); err != nil {
		return fromRepo(err)
	}

	s.notifyMembers(ctx, project, callerID, func(toEmail string) {
		s.notifier.ProjectDeleted(toEmail, project.Name)
	})
	return nil
}

// notifyMembers fans a project event out to every active member with a known
// email, skipping the actor. Delivery is the notifier's problem; failures
// never reach the caller.
func (s *ProjectService) notifyMembers(ctx context.Context, project *repository.Project, actorID string, send func(toEmail string)) {
	if s.notifier == nil {
		return
	}
	members, err := s.projectRepo.FindMembers(ctx, project.ID, types.MemberActive)
	if err != nil {
		log.Printf("⚠️ Could not load members of project %s for notification: %v", project.ID, err)
		return
	}
	for _, m := range members {
		if m.UserID == actorID || m.Email == "" {
			continue
		}
		send(m.Email)
	}
}

// visibleProject loads a project that is not soft-deleted.
func (s *ProjectService) visibleProject(ctx context.Context, projectID string) (*repository.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, fromRepo(err)
	}
	if project == nil || project.Status == types.ProjectDeleted {
		return nil, NotFound("project not found")
	}
	return project, nil
}

func (s *ProjectService) requireRole(ctx context.Context, projectID, userID, minRole string) error {
	member, err := s.projectRepo.FindMember(ctx, projectID, userID)
	if err != nil {
		return fromRepo(err)
	}
	if member == nil || member.Status != types.MemberActive {
		return Forbidden("you are not a member of this project")
	}
	if !types.HasMinimumRole(member.Role, minRole) {
		return Forbidden("insufficient role for this operation")
	}
	return nil
}
