package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orastack/taskboard-backend/internal/api/middleware"
	"github.com/orastack/taskboard-backend/internal/client"
	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/service"
)

type TaskHandler struct {
	tasks *service.TaskService
	users client.UserResolver
}

// POST /api/projects/:projectId/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), &req)
	if err != nil {
		handleServiceError(c, "create_task", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, taskProfileIDs([]*repository.Task{task}))
	respondCreated(c, "task created", toTaskResponse(task, profiles))
}

// GET /api/projects/:projectId/tasks
func (h *TaskHandler) List(c *gin.Context) {
	page, limit, ok := parsePagination(c, 20)
	if !ok {
		return
	}
	filters := &repository.TaskFilters{
		Status:         splitParam(c.Query("status")),
		Assignee:       splitParam(c.Query("assignee")),
		Priority:       splitParam(c.Query("priority")),
		Labels:         splitParam(c.Query("label")),
		Search:         c.Query("search"),
		IncludeDeleted: c.Query("isDeleted") == "true",
		// sort stays empty unless the caller asked; search queries then rank
		// by relevance instead of a fixed column
		Sort:   c.Query("sort"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if t, ok := parseTimeParam(c.Query("dueDateFrom")); ok {
		filters.DueFrom = t
	}
	if t, ok := parseTimeParam(c.Query("dueDateTo")); ok {
		filters.DueTo = t
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), filters)
	if err != nil {
		handleServiceError(c, "list_tasks", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, taskProfileIDs(tasks))
	resp := make([]models.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t, profiles))
	}
	respondPage(c, resp, page, limit, total)
}

// GET /api/projects/:projectId/tasks/:taskId
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		handleServiceError(c, "get_task", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, taskProfileIDs([]*repository.Task{task}))
	respondOK(c, "", toTaskResponse(task, profiles))
}

// PATCH /api/projects/:projectId/tasks/:taskId
func (h *TaskHandler) Update(c *gin.Context) {
	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), c.Param("taskId"), &req)
	if err != nil {
		handleServiceError(c, "update_task", err)
		return
	}
	respondOK(c, "task updated", toTaskResponse(task, nil))
}

// PATCH /api/projects/:projectId/tasks/:taskId/status
func (h *TaskHandler) ChangeStatus(c *gin.Context) {
	var req models.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	task, err := h.tasks.ChangeStatus(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), c.Param("taskId"), req.Status)
	if err != nil {
		handleServiceError(c, "change_task_status", err)
		return
	}
	respondOK(c, "task status updated", toTaskResponse(task, nil))
}

// PATCH /api/projects/:projectId/tasks/:taskId/assignee
func (h *TaskHandler) Assign(c *gin.Context) {
	var req models.AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	task, err := h.tasks.Assign(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), c.Param("taskId"), req.Assignee.Value)
	if err != nil {
		handleServiceError(c, "assign_task", err)
		return
	}
	respondOK(c, "task assignee updated", toTaskResponse(task, nil))
}

// DELETE /api/projects/:projectId/tasks/:taskId
func (h *TaskHandler) Delete(c *gin.Context) {
	err := h.tasks.SoftDelete(c.Request.Context(), middleware.UserID(c), c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		handleServiceError(c, "delete_task", err)
		return
	}
	respondOK(c, "task deleted", nil)
}

// GET /api/projects/:projectId/tasks/:taskId/activity
func (h *TaskHandler) ListActivity(c *gin.Context) {
	page, limit, ok := parsePagination(c, 50)
	if !ok {
		return
	}
	activities, total, err := h.tasks.ListActivity(c.Request.Context(),
		middleware.UserID(c), c.Param("projectId"), c.Param("taskId"), limit, (page-1)*limit)
	if err != nil {
		handleServiceError(c, "list_task_activity", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, activityProfileIDs(activities))
	resp := make([]models.ActivityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, toActivityResponse(a, profiles))
	}
	respondPage(c, resp, page, limit, total)
}

// GET /api/projects/:projectId/activities
func (h *TaskHandler) ListProjectActivity(c *gin.Context) {
	page, limit, ok := parsePagination(c, 50)
	if !ok {
		return
	}
	activities, total, err := h.tasks.ListProjectActivity(c.Request.Context(),
		middleware.UserID(c), c.Param("projectId"), limit, (page-1)*limit)
	if err != nil {
		handleServiceError(c, "list_project_activity", err)
		return
	}

	profiles := resolveProfiles(c.Request.Context(), h.users, activityProfileIDs(activities))
	resp := make([]models.ActivityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, toActivityResponse(a, profiles))
	}
	respondPage(c, resp, page, limit, total)
}

// POST /internal/projects/:projectId/archive-tasks
// Service-token only; invoked by the project service on project archival.
func (h *TaskHandler) ArchiveProjectTasks(c *gin.Context) {
	n, err := h.tasks.ArchiveProjectTasks(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		handleServiceError(c, "archive_project_tasks", err)
		return
	}
	respondOK(c, "project tasks archived", gin.H{"archived": n})
}

// splitParam turns a comma-separated query value into a slice.
func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTimeParam(v string) (*time.Time, bool) {
	if v == "" {
		return nil, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, true
		}
	}
	return nil, false
}
