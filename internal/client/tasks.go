package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TaskClient lets the project service emit task-domain events, currently only
// the archive fan-out when a project transitions to archived.
type TaskClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewTaskClient(baseURL, secret string) *TaskClient {
	return &TaskClient{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ArchiveProjectTasks asks the task service to archive every live task of the
// project. Callers treat failures as non-fatal and log them.
func (c *TaskClient) ArchiveProjectTasks(ctx context.Context, projectID string) error {
	url := fmt.Sprintf("%s/internal/projects/%s/archive-tasks", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if err := signServiceRequest(req, c.secret); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("task service returned %d", resp.StatusCode)
	}
	return nil
}
