package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(DefaultConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	return c, srv
}

func TestFetchPostsQuery(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/neo4j/movies", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MATCH (n) RETURN n", body["query"])
		w.Write([]byte(`[{"n": {"id": 1}}]`))
	})

	data, err := c.Fetch(context.Background(), "movies", "MATCH (n) RETURN n")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"n": {"id": 1}}]`, string(data))
}

func TestFetchWithoutQueryUsesGet(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`[]`))
	})

	_, err := c.Fetch(context.Background(), "movies", "")
	require.NoError(t, err)
}

func TestFetchErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"api error body", http.StatusBadRequest, `{"error": "Invalid database name"}`, "Invalid database name"},
		{"plain body", http.StatusBadGateway, `oops`, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Fetch(context.Background(), "db", "q")
			var ferr *FetchError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.status, ferr.Status)
			assert.Equal(t, tt.message, ferr.Message)
		})
	}
}

func TestFetchTransportError(t *testing.T) {
	c, srv := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Fetch(context.Background(), "db", "q")
	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Zero(t, ferr.Status)
	assert.True(t, ferr.Temporary())
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.MinRequests = 3
	cfg.FailureRatio = 0.5
	cfg.OpenTimeout = time.Minute
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), "db", "q")
		require.Error(t, err)
	}
	_, err = c.Fetch(context.Background(), "db", "q")
	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "query service temporarily unavailable", ferr.Message)
	assert.Equal(t, int32(3), hits.Load(), "open breaker short-circuits")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), "db", "q")
		var ferr *FetchError
		require.True(t, errors.As(err, &ferr))
		require.Equal(t, http.StatusBadRequest, ferr.Status, "attempt %d", i)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(DefaultConfig("not a url"), zap.NewNop())
	assert.Error(t, err)
}
