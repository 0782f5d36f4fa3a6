package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:   baseURL,
		Timeout:   time.Second,
		RateLimit: 100,
		CacheSize: 16,
		CacheTTL:  time.Minute,
	}, testLogger())
	require.NoError(t, err)
	return client
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")
}

func TestClientFindProfileByID(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/profiles/dr-1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"id":"dr-1","display_name":"Dr. Osei","role":"PHYSICIAN"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	profile, err := client.FindProfileByID(context.Background(), "dr-1")
	require.NoError(t, err)
	assert.Equal(t, "dr-1", profile.ID)
	assert.Equal(t, "Dr. Osei", profile.DisplayName)
	assert.Equal(t, domain.ROLE_PHYSICIAN, profile.Role)

	// Second lookup is served from cache without touching the server.
	again, err := client.FindProfileByID(context.Background(), "dr-1")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, again.ID)
	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, 1, client.CacheLen())
}

func TestClientProfileNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FindProfileByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, client.CacheLen())
}

func TestClientRejectsUnknownRole(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x-1","display_name":"X","role":"WIZARD"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FindProfileByID(context.Background(), "x-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestClientRejectsEmptyID(t *testing.T) {
	client := newTestClient(t, "http://directory.invalid")

	_, err := client.FindProfileByID(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FindProfileByID(context.Background(), "dr-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestStaticDirectory(t *testing.T) {
	static := NewStatic(domain.Profile{ID: "dr-1", DisplayName: "Dr. Osei", Role: domain.ROLE_PHYSICIAN})

	profile, err := static.FindProfileByID(context.Background(), "dr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ROLE_PHYSICIAN, profile.Role)

	_, err = static.FindProfileByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDevProfilesCoverEveryRole(t *testing.T) {
	seen := make(map[domain.Role]bool)
	for _, profile := range DevProfiles() {
		assert.True(t, profile.Role.IsValid())
		seen[profile.Role] = true
	}
	assert.Len(t, seen, 4)
}
