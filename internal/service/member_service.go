package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/types"
)

// ============================================
// Member Service
// ============================================

type MemberService struct {
	projectRepo repository.ProjectRepository
	notifier    Notifier
	frontendURL string
}

func NewMemberService(projectRepo repository.ProjectRepository, notifier Notifier, frontendURL string) *MemberService {
	return &MemberService{
		projectRepo: projectRepo,
		notifier:    notifier,
		frontendURL: frontendURL,
	}
}

// Invite adds or resurrects an invited member entry. Admins can always
// invite; members can when the project allows member invites. The invited
// role is member or viewer, never admin.
func (s *MemberService) Invite(ctx context.Context, callerID, callerName, projectID string, req *models.InviteMemberRequest) (*repository.Member, error) {
	project, err := s.visibleProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	caller, err := s.activeMember(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	canInvite := caller.Role == types.RoleAdmin ||
		(caller.Role == types.RoleMember && project.AllowMemberInvite)
	if !canInvite {
		return nil, Forbidden("you cannot invite members to this project")
	}

	if req.Role != types.RoleMember && req.Role != types.RoleViewer {
		return nil, Validation("invalid role", map[string]string{"role": "must be member or viewer"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" && req.UserID == "" {
		return nil, Validation("invite target missing", map[string]string{"email": "email or userId is required"})
	}

	existing, err := s.findEntry(ctx, projectID, req.UserID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case types.MemberActive:
			return nil, Duplicate("user is already a member of this project")
		case types.MemberInvited:
			return nil, Duplicate("user is already invited to this project")
		}
	}

	if err := s.checkCapacity(ctx, projectID, project.MaxMembers); err != nil {
		return nil, err
	}

	now := time.Now()
	var member *repository.Member
	if existing != nil {
		// removed entry, resurrect in place with the fresh invitation
		existing.Role = req.Role
		existing.Status = types.MemberInvited
		existing.InvitedBy = &callerID
		existing.InvitationSentAt = &now
		if err := s.projectRepo.UpdateMember(ctx, existing, project.MaxMembers); err != nil {
			return nil, fromRepo(err)
		}
		member = existing
	} else {
		member = &repository.Member{
			ProjectID:        projectID,
			UserID:           req.UserID,
			Email:            email,
			Role:             req.Role,
			Status:           types.MemberInvited,
			JoinedAt:         now,
			InvitedBy:        &callerID,
			InvitationSentAt: &now,
		}
		if err := s.projectRepo.AddMember(ctx, member, project.MaxMembers); err != nil {
			return nil, fromRepo(err)
		}
	}

	if s.notifier != nil && email != "" {
		inviteURL := fmt.Sprintf("%s/join/%s", s.frontendURL, project.InvitationCode)
		s.notifier.ProjectInvitation(email, callerName, project.Name, member.Role, inviteURL)
	}

	return member, nil
}

// JoinByCode activates membership through an invitation code. An existing
// entry for the caller (by id or invited email) is upgraded in place keeping
// its role; otherwise a new active member entry is appended.
func (s *MemberService) JoinByCode(ctx context.Context, callerID, callerEmail, code string) (*repository.Project, error) {
	project, err := s.projectRepo.FindByInvitationCode(ctx, code)
	if err != nil {
		return nil, fromRepo(err)
	}
	if project == nil || project.Status != types.ProjectActive {
		return nil, NotFound("invalid invitation code")
	}

	entry, err := s.findEntry(ctx, project.ID, callerID, strings.ToLower(callerEmail))
	if err != nil {
		return nil, err
	}
	if entry != nil && entry.Status == types.MemberActive {
		return nil, Duplicate("you are already a member of this project")
	}

	now := time.Now()
	if entry != nil {
		entry.UserID = callerID
		entry.Status = types.MemberActive
		entry.JoinedAt = now
		if err := s.projectRepo.UpdateMember(ctx, entry, project.MaxMembers); err != nil {
			return nil, fromRepo(err)
		}
		return project, nil
	}

	member := &repository.Member{
		ProjectID: project.ID,
		UserID:    callerID,
		Email:     strings.ToLower(callerEmail),
		Role:      types.RoleMember,
		Status:    types.MemberActive,
		JoinedAt:  now,
	}
	if err := s.projectRepo.AddMember(ctx, member, project.MaxMembers); err != nil {
		return nil, fromRepo(err)
	}
	return project, nil
}

// List returns the project's member entries, admins first then by join time.
func (s *MemberService) List(ctx context.Context, callerID, projectID, status string) ([]*repository.Member, error) {
	if _, err := s.visibleProject(ctx, projectID); err != nil {
		return nil, err
	}
	if _, err := s.activeMember(ctx, projectID, callerID); err != nil {
		return nil, err
	}
	if status != "" && !types.IsValidMemberStatus(status) {
		return nil, Validation("invalid status filter", map[string]string{"status": "must be active, invited or removed"})
	}

	members, err := s.projectRepo.FindMembers(ctx, projectID, status)
	if err != nil {
		return nil, fromRepo(err)
	}
	sort.SliceStable(members, func(i, j int) bool {
		ai, aj := members[i].Role == types.RoleAdmin, members[j].Role == types.RoleAdmin
		if ai != aj {
			return ai
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

// UpdateRole changes a member's role. The creator's entry is pinned to admin.
func (s *MemberService) UpdateRole(ctx context.Context, callerID, projectID, memberUserID, newRole string) (*repository.Member, error) {
	project, err := s.visibleProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	caller, err := s.activeMember(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != types.RoleAdmin {
		return nil, Forbidden("only admins can change member roles")
	}
	if !types.IsValidRole(newRole) {
		return nil, Validation("invalid role", map[string]string{"role": "must be admin, member or viewer"})
	}
	if memberUserID == project.CreatedBy && newRole != types.RoleAdmin {
		return nil, Forbidden("the project creator's role cannot be changed")
	}

	member, err := s.projectRepo.FindMember(ctx, projectID, memberUserID)
	if err != nil {
		return nil, fromRepo(err)
	}
	if member == nil || member.Status == types.MemberRemoved {
		return nil, NotFound("member not found")
	}

	member.Role = newRole
	if err := s.projectRepo.UpdateMember(ctx, member, project.MaxMembers); err != nil {
		return nil, fromRepo(err)
	}
	return member, nil
}

// Remove marks a member entry removed. Admins can remove anyone but the
// creator; non-admins can only remove themselves. Removing an invited entry
// rescinds the invitation.
func (s *MemberService) Remove(ctx context.Context, callerID, projectID, memberUserID string) error {
	project, err := s.visibleProject(ctx, projectID)
	if err != nil {
		return err
	}
	caller, err := s.activeMember(ctx, projectID, callerID)
	if err != nil {
		return err
	}
	if memberUserID == project.CreatedBy {
		if callerID == memberUserID {
			return Validation("project creator cannot leave", nil)
		}
		return Forbidden("the project creator cannot be removed")
	}
	if callerID != memberUserID && caller.Role != types.RoleAdmin {
		return Forbidden("only admins can remove other members")
	}

	member, err := s.projectRepo.FindMember(ctx, projectID, memberUserID)
	if err != nil {
		return fromRepo(err)
	}
	if member == nil || member.Status == types.MemberRemoved {
		return NotFound("member not found")
	}

	member.Status = types.MemberRemoved
	if err := s.projectRepo.UpdateMember(ctx, member, project.MaxMembers); err != nil {
		return fromRepo(err)
	}
	return nil
}

// Leave removes the caller's own membership.
func (s *MemberService) Leave(ctx context.Context, callerID, projectID string) error {
	return s.Remove(ctx, callerID, projectID, callerID)
}

// ============================================
// Permission predicates (cross-service surface)
// ============================================

// Role resolves a user's role in a project. role is "" for non-members.
func (s *MemberService) Role(ctx context.Context, projectID, userID string) (string, bool, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return "", false, fromRepo(err)
	}
	if project == nil || project.Status == types.ProjectDeleted {
		return "", false, NotFound("project not found")
	}
	member, err := s.projectRepo.FindMember(ctx, projectID, userID)
	if err != nil {
		return "", false, fromRepo(err)
	}
	if member == nil || member.Status != types.MemberActive {
		return "", false, nil
	}
	return member.Role, true, nil
}

// IsMember reports whether the user has an active member entry.
func (s *MemberService) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	_, isMember, err := s.Role(ctx, projectID, userID)
	return isMember, err
}

// HasAtLeast reports whether the user's role meets minRole.
func (s *MemberService) HasAtLeast(ctx context.Context, projectID, userID, minRole string) (bool, error) {
	role, isMember, err := s.Role(ctx, projectID, userID)
	if err != nil {
		return false, err
	}
	return isMember && types.HasMinimumRole(role, minRole), nil
}

// ExpireInvitations marks invitations older than ttl as removed.
func (s *MemberService) ExpireInvitations(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := s.projectRepo.ExpireInvitedBefore(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, fromRepo(err)
	}
	return n, nil
}

// ============================================
// helpers
// ============================================

func (s *MemberService) visibleProject(ctx context.Context, projectID string) (*repository.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, fromRepo(err)
	}
	if project == nil || project.Status == types.ProjectDeleted {
		return nil, NotFound("project not found")
	}
	return project, nil
}

func (s *MemberService) activeMember(ctx context.Context, projectID, userID string) (*repository.Member, error) {
	member, err := s.projectRepo.FindMember(ctx, projectID, userID)
	if err != nil {
		return nil, fromRepo(err)
	}
	if member == nil || member.Status != types.MemberActive {
		return nil, Forbidden("you are not a member of this project")
	}
	return member, nil
}

// findEntry locates a member entry by user id first, then by invited email.
func (s *MemberService) findEntry(ctx context.Context, projectID, userID, email string) (*repository.Member, error) {
	if userID != "" {
		member, err := s.projectRepo.FindMember(ctx, projectID, userID)
		if err != nil {
			return nil, fromRepo(err)
		}
		if member != nil {
			return member, nil
		}
	}
	if email != "" {
		member, err := s.projectRepo.FindMemberByEmail(ctx, projectID, email)
		if err != nil {
			return nil, fromRepo(err)
		}
		return member, nil
	}
	return nil, nil
}

// checkCapacity rejects when the active member count has already reached the
// cap. The hard guarantee lives in the repository's locked check; this is the
// early answer for invitations, which do not count until accepted.
func (s *MemberService) checkCapacity(ctx context.Context, projectID string, maxMembers *int) error {
	if maxMembers == nil {
		return nil
	}
	active, err := s.projectRepo.FindMembers(ctx, projectID, types.MemberActive)
	if err != nil {
		return fromRepo(err)
	}
	if len(active) >= *maxMembers {
		return Validation("project member limit reached", nil)
	}
	return nil
}
