package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orastack/taskboard-backend/internal/api/middleware"
	"github.com/orastack/taskboard-backend/internal/client"
	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/service"
)

type ProjectHandler struct {
	projects *service.ProjectService
	members  *service.MemberService
	users    client.UserResolver
}

// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	project, err := h.projects.Create(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		handleServiceError(c, "create_project", err)
		return
	}
	respondCreated(c, "project created", toProjectResponse(project, nil))
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	page, limit, ok := parsePagination(c, 20)
	if !ok {
		return
	}
	opts := &repository.ProjectListOptions{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Role:   c.Query("role"),
		Sort:   c.Query("sort"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	projects, total, err := h.projects.List(c.Request.Context(), middleware.UserID(c), opts)
	if err != nil {
		handleServiceError(c, "list_projects", err)
		return
	}

	resp := make([]models.ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p, nil))
	}
	respondPage(c, resp, page, limit, total)
}

// GET /api/projects/:projectId
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.Get(c.Request.Context(), middleware.UserID(c), c.Param("projectId"))
	if err != nil {
		handleServiceError(c, "get_project", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, memberProfileIDs(project.Members))
	respondOK(c, "", toProjectResponse(project, profiles))
}

// PUT /api/projects/:projectId
func (h *ProjectHandler) Update(c *gin.Context) {
	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	project, err := h.projects.Update(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), &req)
	if err != nil {
		handleServiceError(c, "update_project", err)
		return
	}
	respondOK(c, "project updated", toProjectResponse(project, nil))
}

// DELETE /api/projects/:projectId
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), middleware.UserID(c), c.Param("projectId")); err != nil {
		handleServiceError(c, "delete_project", err)
		return
	}
	respondOK(c, "project deleted", nil)
}

// parsePagination reads page and limit query params. An out-of-range limit
// is rejected here; it must never reach the envelope math.
func parsePagination(c *gin.Context, defaultLimit int) (page, limit int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			handleServiceError(c, "parse_pagination", service.Validation(
				"invalid pagination", map[string]string{"limit": "limit must be between 1 and 100"}))
			return 0, 0, false
		}
	}
	return page, limit, true
}
