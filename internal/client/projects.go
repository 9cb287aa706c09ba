package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orastack/taskboard-backend/internal/auth"
)

// ErrBridgeUnavailable means the project service could not be reached; task
// authorization fails closed on it.
var ErrBridgeUnavailable = errors.New("project service unreachable")

func signServiceRequest(req *http.Request, secret string) error {
	token, err := auth.MintServiceToken(secret, "taskboard")
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// RoleCache is the read-through cache behind the permission bridge. Entries
// expire after the configured TTL; a stale entry is never returned.
type RoleCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// redisRoleCache backs the bridge with Redis so role lookups survive bursts
// across task-service replicas.
type redisRoleCache struct {
	client *redis.Client
}

func NewRedisRoleCache(client *redis.Client) RoleCache {
	return &redisRoleCache{client: client}
}

func (c *redisRoleCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *redisRoleCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.client.Set(ctx, key, value, ttl)
}

// memoryRoleCache is the in-process fallback used when Redis is not configured.
type memoryRoleCache struct {
	mu      sync.Mutex
	entries map[string]memoryRoleEntry
}

type memoryRoleEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryRoleCache() RoleCache {
	return &memoryRoleCache{entries: make(map[string]memoryRoleEntry)}
}

func (c *memoryRoleCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *memoryRoleCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryRoleEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// ProjectClient is the task service's permission bridge: it resolves a
// caller's project role through the project service, caching per
// (projectID, userID) for a bounded TTL.
type ProjectClient struct {
	baseURL string
	secret  string
	ttl     time.Duration
	cache   RoleCache
	http    *http.Client
}

func NewProjectClient(baseURL, secret string, ttl time.Duration, cache RoleCache) *ProjectClient {
	if cache == nil {
		cache = NewMemoryRoleCache()
	}
	return &ProjectClient{
		baseURL: baseURL,
		secret:  secret,
		ttl:     ttl,
		cache:   cache,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type roleEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Role     *string `json:"role"`
		IsMember bool    `json:"isMember"`
	} `json:"data"`
}

// Role returns the caller's role in the project and whether they are an
// active member. role is "" for non-members. The project service being
// unreachable is an error: the bridge fails closed.
func (c *ProjectClient) Role(ctx context.Context, projectID, userID string) (string, bool, error) {
	key := fmt.Sprintf("role:%s:%s", projectID, userID)
	if cached, ok := c.cache.Get(ctx, key); ok {
		return decodeRole(cached)
	}

	url := fmt.Sprintf("%s/api/projects/%s/members/%s/role", c.baseURL, projectID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	if err := signServiceRequest(req, c.secret); err != nil {
		return "", false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var env roleEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		}
		role := ""
		if env.Data.Role != nil {
			role = *env.Data.Role
		}
		c.cache.Set(ctx, key, encodeRole(role, env.Data.IsMember), c.ttl)
		return role, env.Data.IsMember, nil
	case http.StatusNotFound, http.StatusForbidden:
		// caller has no standing in this project
		c.cache.Set(ctx, key, encodeRole("", false), c.ttl)
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: status %d", ErrBridgeUnavailable, resp.StatusCode)
	}
}

func encodeRole(role string, isMember bool) string {
	if !isMember {
		return "none"
	}
	return "member:" + role
}

func decodeRole(cached string) (string, bool, error) {
	if cached == "none" {
		return "", false, nil
	}
	return strings.TrimPrefix(cached, "member:"), true, nil
}
