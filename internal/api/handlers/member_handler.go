package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/orastack/taskboard-backend/internal/api/middleware"
	"github.com/orastack/taskboard-backend/internal/client"
	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/service"
)

type MemberHandler struct {
	members *service.MemberService
	users   client.UserResolver
}

// POST /api/projects/:projectId/invite
func (h *MemberHandler) Invite(c *gin.Context) {
	var req models.InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	member, err := h.members.Invite(c.Request.Context(),
		middleware.UserID(c), c.GetString(middleware.CtxUserName),
		c.Param("projectId"), &req)
	if err != nil {
		handleServiceError(c, "invite_member", err)
		return
	}
	respondCreated(c, "invitation sent", toMemberResponse(member, nil))
}

// POST /api/projects/join/:invitationCode
func (h *MemberHandler) JoinByCode(c *gin.Context) {
	project, err := h.members.JoinByCode(c.Request.Context(),
		middleware.UserID(c), c.GetString(middleware.CtxUserEmail),
		c.Param("invitationCode"))
	if err != nil {
		handleServiceError(c, "join_by_code", err)
		return
	}
	respondOK(c, "joined project", gin.H{"projectId": project.ID})
}

// GET /api/projects/:projectId/members
func (h *MemberHandler) List(c *gin.Context) {
	members, err := h.members.List(c.Request.Context(),
		middleware.UserID(c), c.Param("projectId"), c.Query("status"))
	if err != nil {
		handleServiceError(c, "list_members", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, memberProfileIDs(members))
	resp := make([]models.MemberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m, profiles))
	}
	respondOK(c, "", resp)
}

// PUT /api/projects/:projectId/members/:memberId/role
func (h *MemberHandler) UpdateRole(c *gin.Context) {
	var req models.UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	member, err := h.members.UpdateRole(c.Request.Context(),
		middleware.UserID(c), c.Param("projectId"), c.Param("memberId"), req.Role)
	if err != nil {
		handleServiceError(c, "update_member_role", err)
		return
	}
	respondOK(c, "member role updated", toMemberResponse(member, nil))
}

// DELETE /api/projects/:projectId/members/:memberId
func (h *MemberHandler) Remove(c *gin.Context) {
	err := h.members.Remove(c.Request.Context(),
		middleware.UserID(c), c.Param("projectId"), c.Param("memberId"))
	if err != nil {
		handleServiceError(c, "remove_member", err)
		return
	}
	respondOK(c, "member removed", nil)
}

// POST /api/projects/:projectId/leave
func (h *MemberHandler) Leave(c *gin.Context) {
	err := h.members.Leave(c.Request.Context(), middleware.UserID(c), c.Param("projectId"))
	if err != nil {
		handleServiceError(c, "leave_project", err)
		return
	}
	respondOK(c, "left project", nil)
}

// GET /api/projects/:projectId/members/:memberId/role
// Internal lookup for the task service's permission bridge.
func (h *MemberHandler) GetRole(c *gin.Context) {
	role, isMember, err := h.members.Role(c.Request.Context(), c.Param("projectId"), c.Param("memberId"))
	if err != nil {
		handleServiceError(c, "get_member_role", err)
		return
	}

	resp := models.MemberRoleResponse{IsMember: isMember}
	if isMember {
		resp.Role = &role
	}
	respondOK(c, "", resp)
}
