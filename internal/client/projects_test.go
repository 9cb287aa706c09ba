package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func roleServer(t *testing.T, hits *int32, role string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		require.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "),
			"bridge calls must carry a service token")

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":{"role":%q,"isMember":true}}`, role)
	}))
}

func TestRoleReadThroughCache(t *testing.T) {
	var hits int32
	srv := roleServer(t, &hits, "member", http.StatusOK)
	defer srv.Close()

	bridge := NewProjectClient(srv.URL, testSecret, time.Minute, NewMemoryRoleCache())
	ctx := context.Background()

	role, isMember, err := bridge.Role(ctx, "p1", "bob")
	require.NoError(t, err)
	assert.True(t, isMember)
	assert.Equal(t, "member", role)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// second lookup inside the TTL is served from cache
	role, isMember, err = bridge.Role(ctx, "p1", "bob")
	require.NoError(t, err)
	assert.True(t, isMember)
	assert.Equal(t, "member", role)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// different key is a fresh lookup
	_, _, err = bridge.Role(ctx, "p1", "carol")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRoleCacheExpiry(t *testing.T) {
	var hits int32
	srv := roleServer(t, &hits, "admin", http.StatusOK)
	defer srv.Close()

	bridge := NewProjectClient(srv.URL, testSecret, 20*time.Millisecond, NewMemoryRoleCache())
	ctx := context.Background()

	_, _, err := bridge.Role(ctx, "p1", "alice")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	_, _, err = bridge.Role(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits), "expired entry must not be served")
}

func TestRoleNonMember(t *testing.T) {
	var hits int32
	srv := roleServer(t, &hits, "", http.StatusNotFound)
	defer srv.Close()

	bridge := NewProjectClient(srv.URL, testSecret, time.Minute, NewMemoryRoleCache())

	role, isMember, err := bridge.Role(context.Background(), "p1", "stranger")
	require.NoError(t, err)
	assert.False(t, isMember)
	assert.Empty(t, role)

	// the negative answer is cached too
	_, _, err = bridge.Role(context.Background(), "p1", "stranger")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestRoleFailsClosedOnServerError(t *testing.T) {
	var hits int32
	srv := roleServer(t, &hits, "", http.StatusInternalServerError)
	defer srv.Close()

	bridge := NewProjectClient(srv.URL, testSecret, time.Minute, NewMemoryRoleCache())

	_, _, err := bridge.Role(context.Background(), "p1", "bob")
	assert.ErrorIs(t, err, ErrBridgeUnavailable)
}

func TestRoleFailsClosedWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	bridge := NewProjectClient(srv.URL, testSecret, time.Minute, NewMemoryRoleCache())
	_, _, err := bridge.Role(context.Background(), "p1", "bob")
	assert.ErrorIs(t, err, ErrBridgeUnavailable)
}

func TestMemoryRoleCache(t *testing.T) {
	cache := NewMemoryRoleCache()
	ctx := context.Background()

	_, ok := cache.Get(ctx, "missing")
	assert.False(t, ok)

	cache.Set(ctx, "role:p1:bob", "member:admin", time.Minute)
	val, ok := cache.Get(ctx, "role:p1:bob")
	assert.True(t, ok)
	assert.Equal(t, "member:admin", val)

	cache.Set(ctx, "short", "none", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok = cache.Get(ctx, "short")
	assert.False(t, ok)
}
