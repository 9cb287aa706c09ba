package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orastack/taskboard-backend/internal/api/middleware"
	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/service"
	"github.com/orastack/taskboard-backend/internal/types"
)

// fixedRoles grants every caller the same role.
type fixedRoles struct{ role string }

func (r fixedRoles) Role(ctx context.Context, projectID, userID string) (string, bool, error) {
	return r.role, true, nil
}

// identity stands in for the Auth middleware, stamping a fixed caller.
func identity(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxUserID, userID)
		c.Next()
	}
}

func newTaskRouter(t *testing.T) (*gin.Engine, *service.TaskService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := repository.NewRepositories()
	svc := service.NewTaskService(repos.TaskRepo, repos.ActivityRepo, fixedRoles{role: types.RoleAdmin})
	h := &TaskHandler{tasks: svc}

	router := gin.New()
	router.GET("/api/projects/:projectId/tasks", identity("admin"), h.List)
	return router, svc
}

func listTasks(t *testing.T, router *gin.Engine, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/projects/p1/tasks"+query, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListTasksRejectsOutOfRangeLimit(t *testing.T) {
	router, svc := newTaskRouter(t)
	_, err := svc.Create(context.Background(), "admin", "p1", &models.CreateTaskRequest{Title: "T1"})
	require.NoError(t, err)

	for _, query := range []string{"?limit=0", "?limit=-3", "?limit=101", "?limit=abc"} {
		w := listTasks(t, router, query)
		require.Equal(t, http.StatusBadRequest, w.Code, "query %s", query)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, service.CodeValidation, resp.Error.Code)
	}

	// an omitted limit falls back to the default
	w := listTasks(t, router, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 20, resp.Pagination.Limit)
	assert.Equal(t, 1, resp.Pagination.Total)
}

func listedTitles(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var resp struct {
		Data []models.TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	titles := make([]string, 0, len(resp.Data))
	for _, task := range resp.Data {
		titles = append(titles, task.Title)
	}
	return titles
}

func TestListTasksSortPassthrough(t *testing.T) {
	router, svc := newTaskRouter(t)
	ctx := context.Background()

	for _, title := range []string{"Alpha", "Beta"} {
		_, err := svc.Create(ctx, "admin", "p1", &models.CreateTaskRequest{Title: title})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // distinct creation timestamps
	}

	// no sort parameter: newest first
	w := listTasks(t, router, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Beta", "Alpha"}, listedTitles(t, w))

	// explicit sort is forwarded as-is
	w = listTasks(t, router, "?sort=title")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Alpha", "Beta"}, listedTitles(t, w))
}
