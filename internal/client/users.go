// Package client holds the HTTP clients for the external collaborators: the
// user service (profile resolution) and the sibling project/task services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// UserProfile is the display profile resolved from the user service.
type UserProfile struct {
	ID     string  `json:"id"`
	Email  string  `json:"email"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// UserResolver resolves user ids to display profiles. Resolution is display
// sugar: implementations degrade to an empty result instead of failing the
// request when the user service is unavailable.
type UserResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]*UserProfile, error)
}

type UserClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewUserClient(baseURL, secret string) *UserClient {
	return &UserClient{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type lookupRequest struct {
	IDs []string `json:"ids"`
}

type lookupResponse struct {
	Success bool           `json:"success"`
	Data    []*UserProfile `json:"data"`
}

func (c *UserClient) Resolve(ctx context.Context, ids []string) (map[string]*UserProfile, error) {
	if len(ids) == 0 {
		return map[string]*UserProfile{}, nil
	}

	body, err := json.Marshal(lookupRequest{IDs: ids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/users/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := signServiceRequest(req, c.secret); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user service returned %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	profiles := make(map[string]*UserProfile, len(out.Data))
	for _, p := range out.Data {
		profiles[p.ID] = p
	}
	return profiles, nil
}
