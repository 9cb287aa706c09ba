// Package handlers holds the gin HTTP handlers for both services: request
// parsing, the response envelope, and the mapping from service errors to
// HTTP statuses.
package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orastack/taskboard-backend/internal/client"
	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/service"
)

// Handlers bundles the handler sets for route registration.
type Handlers struct {
	Project *ProjectHandler
	Member  *MemberHandler
	Task    *TaskHandler
}

// NewProjectHandlers builds the handlers hosted by the project binary.
func NewProjectHandlers(services *service.Services, users client.UserResolver) *Handlers {
	return &Handlers{
		Project: &ProjectHandler{projects: services.Project, members: services.Member, users: users},
		Member:  &MemberHandler{members: services.Member, users: users},
	}
}

// NewTaskHandlers builds the handlers hosted by the task binary.
func NewTaskHandlers(services *service.Services, users client.UserResolver) *Handlers {
	return &Handlers{
		Task: &TaskHandler{tasks: services.Task, users: users},
	}
}

// ============================================
// Envelope helpers
// ============================================

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func respondCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func respondPage(c *gin.Context, data interface{}, page, limit, total int) {
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success:    true,
		Data:       data,
		Pagination: models.NewPagination(page, limit, total),
	})
}

// handleServiceError maps a service error to its HTTP status and writes the
// error envelope. Unclassified errors become 500s with a generic message.
func handleServiceError(c *gin.Context, action string, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		svcErr = service.Internal(err)
	}
	status := http.StatusInternalServerError
	switch svcErr.Code {
	case service.CodeUnauthorized:
		status = http.StatusUnauthorized
	case service.CodeForbidden:
		status = http.StatusForbidden
	case service.CodeNotFound:
		status = http.StatusNotFound
	case service.CodeValidation, service.CodeInvalidTransition, service.CodeAssigneeNotMember:
		status = http.StatusBadRequest
	case service.CodeDuplicateResource, service.CodeConflict:
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Printf("[API_ERROR] action=%s error=%v", action, err)
	}
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.ErrorBody{
			Code:    svcErr.Code,
			Message: svcErr.Message,
			Details: svcErr.Details,
		},
	})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.ErrorBody{
			Code:    service.CodeValidation,
			Message: "invalid request body",
			Details: err.Error(),
		},
	})
}

// ============================================
// Profile resolution
// ============================================

// resolveProfiles looks up display profiles, degrading to an empty map when
// the user service is unavailable. Profile decoration never fails a request.
func resolveProfiles(ctx context.Context, users client.UserResolver, ids []string) map[string]*client.UserProfile {
	if users == nil || len(ids) == 0 {
		return map[string]*client.UserProfile{}
	}
	profiles, err := users.Resolve(ctx, ids)
	if err != nil {
		log.Printf("⚠️ Failed to resolve user profiles: %v", err)
		return map[string]*client.UserProfile{}
	}
	return profiles
}

func toUserResponse(p *client.UserProfile) *models.UserResponse {
	if p == nil {
		return nil
	}
	return &models.UserResponse{ID: p.ID, Email: p.Email, Name: p.Name, Avatar: p.Avatar}
}

// ============================================
// DTO mappers
// ============================================

func toProjectResponse(p *repository.Project, profiles map[string]*client.UserProfile) models.ProjectResponse {
	resp := models.ProjectResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		CreatedBy:      p.CreatedBy,
		Status:         p.Status,
		InvitationCode: p.InvitationCode,
		Settings: models.ProjectSettingsResponse{
			IsPublic:          p.IsPublic,
			AllowMemberInvite: p.AllowMemberInvite,
			MaxMembers:        p.MaxMembers,
		},
		Metadata: models.ProjectMetadataResponse{
			TotalTasks:     p.TotalTasks,
			CompletedTasks: p.CompletedTasks,
			Progress:       p.Progress(),
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, m := range p.Members {
		resp.Members = append(resp.Members, toMemberResponse(m, profiles))
	}
	return resp
}

func toMemberResponse(m *repository.Member, profiles map[string]*client.UserProfile) models.MemberResponse {
	resp := models.MemberResponse{
		ID:               m.ID,
		UserID:           m.UserID,
		Email:            m.Email,
		Role:             m.Role,
		Status:           m.Status,
		JoinedAt:         m.JoinedAt,
		InvitedBy:        m.InvitedBy,
		InvitationSentAt: m.InvitationSentAt,
		LastActive:       m.LastActive,
	}
	if m.UserID != "" {
		resp.User = toUserResponse(profiles[m.UserID])
	}
	if m.InvitedBy != nil {
		resp.Inviter = toUserResponse(profiles[*m.InvitedBy])
	}
	return resp
}

func toTaskResponse(t *repository.Task, profiles map[string]*client.UserProfile) models.TaskResponse {
	resp := models.TaskResponse{
		ID:                 t.ID,
		ProjectID:          t.ProjectID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             t.Status,
		Priority:           t.Priority,
		Creator:            t.Creator,
		Assignee:           t.Assignee,
		DueDate:            t.DueDate,
		Labels:             t.Labels,
		Watchers:           t.Watchers,
		IsDeleted:          t.IsDeleted,
		LastStatusChangeAt: t.LastStatusChangeAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if resp.Labels == nil {
		resp.Labels = []string{}
	}
	if resp.Watchers == nil {
		resp.Watchers = []string{}
	}
	resp.CreatorUser = toUserResponse(profiles[t.Creator])
	if t.Assignee != nil {
		resp.AssigneeUser = toUserResponse(profiles[*t.Assignee])
	}
	for _, w := range t.Watchers {
		if u := toUserResponse(profiles[w]); u != nil {
			resp.WatcherUsers = append(resp.WatcherUsers, u)
		}
	}
	return resp
}

func toActivityResponse(a *repository.TaskActivity, profiles map[string]*client.UserProfile) models.ActivityResponse {
	resp := models.ActivityResponse{
		ID:        a.ID,
		TaskID:    a.TaskID,
		ProjectID: a.ProjectID,
		Actor:     a.Actor,
		Action:    a.Action,
		From:      a.From,
		To:        a.To,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
	if a.Actor != nil {
		resp.ActorUser = toUserResponse(profiles[*a.Actor])
	}
	return resp
}

// taskProfileIDs collects the user ids referenced by a batch of tasks.
func taskProfileIDs(tasks []*repository.Task) []string {
	seen := map[string]bool{}
	ids := []string{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, t := range tasks {
		add(t.Creator)
		if t.Assignee != nil {
			add(*t.Assignee)
		}
		for _, w := range t.Watchers {
			add(w)
		}
	}
	return ids
}

func memberProfileIDs(members []*repository.Member) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, m := range members {
		if m.UserID != "" && !seen[m.UserID] {
			seen[m.UserID] = true
			ids = append(ids, m.UserID)
		}
		if m.InvitedBy != nil && !seen[*m.InvitedBy] {
			seen[*m.InvitedBy] = true
			ids = append(ids, *m.InvitedBy)
		}
	}
	return ids
}

func activityProfileIDs(activities []*repository.TaskActivity) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, a := range activities {
		if a.Actor != nil && !seen[*a.Actor] {
			seen[*a.Actor] = true
			ids = append(ids, *a.Actor)
		}
	}
	return ids
}
