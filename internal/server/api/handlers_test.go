package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/metrics"
	"github.com/systemshift/cypherview/internal/server/graph"
	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/render"
	"github.com/systemshift/cypherview/internal/viz/session"
)

const alicePayload = `[{"n":{"id":1,"labels":["Person"],"properties":{"name":"Alice"}}}]`

type fakeExecutor struct {
	mu      sync.Mutex
	records []graph.Record
	err     error
	queries []string
}

func (f *fakeExecutor) Run(_ context.Context, query string) ([]graph.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.records, f.err
}

func (f *fakeExecutor) Close(context.Context) error { return nil }

type testEnv struct {
	ts      *httptest.Server
	exec    *fakeExecutor
	metrics *metrics.Collector
	fetch   func(ctx context.Context, database, query string) ([]byte, error)
}

func newTestEnv(t *testing.T, tweaks ...func(*session.Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		exec:    &fakeExecutor{},
		metrics: metrics.New("test"),
		fetch: func(context.Context, string, string) ([]byte, error) {
			return []byte(alicePayload), nil
		},
	}

	pool := graph.NewPool(map[string]graph.Config{
		"movies": {URI: "bolt://movies:7687", Username: "neo4j", Password: "pw"},
	}, func(context.Context, graph.Config) (graph.Executor, error) {
		return env.exec, nil
	}, zap.NewNop(), env.metrics)

	opts := session.DefaultOptions()
	opts.TickInterval = time.Hour
	opts.Palette.Seed = 1
	for _, tw := range tweaks {
		tw(&opts)
	}
	mgr := session.NewManager(session.FetcherFunc(func(ctx context.Context, db, q string) ([]byte, error) {
		return env.fetch(ctx, db, q)
	}), opts, zap.NewNop(), env.metrics)
	t.Cleanup(mgr.Shutdown)

	srv := New(pool, mgr, env.metrics, zap.NewNop(), Options{MetricsPath: "/metrics"})
	env.ts = httptest.NewServer(srv.Router())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","sessions":0,"databases":["movies"]}`, body)
}

func TestCustomQuery(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		records    []graph.Record
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unknown database",
			path:       "/neo4j/nope",
			body:       `{"query":"RETURN 1"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid database name or missing credentials for nope"}`,
		},
		{
			name:       "no body",
			path:       "/neo4j/movies",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"No query provided"}`,
		},
		{
			name:       "empty query",
			path:       "/neo4j/movies",
			body:       `{"query":""}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"No query provided"}`,
		},
		{
			name:       "no results",
			path:       "/neo4j/movies",
			body:       `{"query":"CREATE (n:Person)"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Query executed successfully."}`,
		},
		{
			name:       "records",
			path:       "/neo4j/movies",
			body:       `{"query":"MATCH (n) RETURN n"}`,
			records:    []graph.Record{{"n": graph.NodeJSON{ID: 1, Labels: []string{"Person"}, Properties: map[string]any{}}}},
			wantStatus: http.StatusOK,
			wantBody:   `[{"n":{"id":1,"labels":["Person"],"properties":{}}}]`,
		},
		{
			name:       "query error",
			path:       "/neo4j/movies",
			body:       `{"query":"MATCH"}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Internal server error during custom query: boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.exec.records, env.exec.err = tt.records, tt.err

			resp, body := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.JSONEq(t, tt.wantBody, body)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestCustomQueryInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPost, "/neo4j/movies", `{invalid`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Invalid JSON in request body: ")
}

func TestDefaultQuery(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/neo4j/movies", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)
	assert.Equal(t, []string{graph.DefaultQuery}, env.exec.queries)
}

func TestRoutingErrors(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/elsewhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, body)

	resp, body = env.do(t, http.MethodPut, "/neo4j/movies", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Method Not Allowed"}`, body)
}

func TestOptions(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/neo4j/movies", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://viewer.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = env.do(t, http.MethodOptions, "/neo4j/movies", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func openSession(t *testing.T, env *testEnv, body string) string {
	t.Helper()
	resp, data := env.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, data)

	var out OpenSessionResponse
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	require.NotEmpty(t, out.ID)
	assert.Equal(t, "/api/sessions/"+out.ID, resp.Header.Get("Location"))
	return out.ID
}

func waitFrame(t *testing.T, env *testEnv, id string) render.Frame {
	t.Helper()
	var frame render.Frame
	require.Eventually(t, func() bool {
		_, data := env.do(t, http.MethodGet, "/api/sessions/"+id, "")
		frame = render.Frame{}
		return json.Unmarshal([]byte(data), &frame) == nil && frame.Status != render.StatusLoading
	}, 2*time.Second, 5*time.Millisecond)
	return frame
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := openSession(t, env, `{"database":"movies","query":"MATCH (n) RETURN n"}`)

	frame := waitFrame(t, env, id)
	require.Equal(t, render.StatusReady, frame.Status)
	require.Len(t, frame.Nodes, 1)
	assert.Equal(t, "movies", frame.Database)
	node := frame.Nodes[0]
	assert.Equal(t, "Person", node.Label)

	resp, svg := env.do(t, http.MethodGet, "/api/sessions/"+id+"/svg", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "<circle")

	_, text := env.do(t, http.MethodGet, "/api/sessions/"+id+"/inspector", "")
	assert.Equal(t, interact.EmptyInspector, text)

	ev, _ := json.Marshal(session.Event{Type: session.EventClick, X: node.X, Y: node.Y})
	resp, data := env.do(t, http.MethodPost, "/api/sessions/"+id+"/events", string(ev))
	require.Equal(t, http.StatusOK, resp.StatusCode, data)
	var out EventResponse
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	assert.Equal(t, interact.HitNode, out.Hit.Kind)
	assert.Equal(t, interact.HitNode, out.Inspector.Kind)

	_, text = env.do(t, http.MethodGet, "/api/sessions/"+id+"/inspector", "")
	assert.Contains(t, text, "ID: 1\nLabel: Person\n")

	resp, _ = env.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fetch = func(context.Context, string, string) ([]byte, error) {
		return nil, errors.New("Network response was not ok: 500 - down")
	}
	id := openSession(t, env, `{"database":"movies"}`)

	frame := waitFrame(t, env, id)
	assert.Equal(t, render.StatusFailed, frame.Status)
	assert.Equal(t, "Error fetching data: Network response was not ok: 500 - down.", frame.Message)

	_, svg := env.do(t, http.MethodGet, "/api/sessions/"+id+"/svg", "")
	assert.Contains(t, svg, render.FailedHint)
}

func TestSessionRequery(t *testing.T) {
	env := newTestEnv(t)
	var mu sync.Mutex
	var seen []string
	env.fetch = func(_ context.Context, db, q string) ([]byte, error) {
		mu.Lock()
		seen = append(seen, db+"|"+q)
		mu.Unlock()
		return []byte(alicePayload), nil
	}
	id := openSession(t, env, `{"database":"movies","query":"Q1"}`)
	waitFrame(t, env, id)

	resp, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/query", `{"query":"Q2"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	frame := waitFrame(t, env, id)
	assert.Equal(t, "Q2", frame.Query)
	assert.Equal(t, "movies", frame.Database)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"movies|Q1", "movies|Q2"}, seen)
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/sessions", `{"query":"RETURN 1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, session.ErrNoDatabase.Error())

	resp, _ = env.do(t, http.MethodPost, "/api/sessions", `nope`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/sessions/missing/svg", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventBeforeLoad(t *testing.T) {
	env := newTestEnv(t)
	gate := make(chan struct{})
	defer close(gate)
	env.fetch = func(ctx context.Context, _, _ string) ([]byte, error) {
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return []byte(alicePayload), nil
	}
	id := openSession(t, env, `{"database":"movies"}`)

	resp, body := env.do(t, http.MethodPost, "/api/sessions/"+id+"/events", `{"type":"click","x":1,"y":1}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, session.ErrNotReady.Error())

	resp, _ = env.do(t, http.MethodPost, "/api/sessions/"+id+"/events", `{"type":"spin"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "not ready wins over the unknown type")
}

func TestVisualise(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/visualise?db=movies&query=MATCH%20(n)%20RETURN%20n", "")

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/api/sessions/"))
	assert.True(t, strings.HasSuffix(loc, "/svg"))

	resp, _ = env.do(t, http.MethodGet, "/visualise?query=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeepLinkSessionsExpire(t *testing.T) {
	env := newTestEnv(t, func(o *session.Options) { o.IdleTimeout = 20 * time.Millisecond })
	for i := 0; i < 5; i++ {
		resp, _ := env.do(t, http.MethodGet, "/visualise?db=movies&query=MATCH%20(n)%20RETURN%20n", "")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	assert.Eventually(t, func() bool {
		_, body := env.do(t, http.MethodGet, "/health", "")
		var health struct {
			Sessions int `json:"sessions"`
		}
		return json.Unmarshal([]byte(body), &health) == nil && health.Sessions == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5.0, testutil.ToFloat64(env.metrics.SessionsExpired))
}

func TestSessionFailedStatus(t *testing.T) {
	srv := &Server{logger: zap.NewNop()}
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{session.ErrClosed, http.StatusGone},
		{session.ErrNoDatabase, http.StatusBadRequest},
		{session.ErrTooMany, http.StatusTooManyRequests},
		{session.ErrNotReady, http.StatusConflict},
		{session.ErrCommandPanicked, http.StatusInternalServerError},
		{&session.EventError{Type: session.EventDrag, Err: errors.New("no drag")}, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.sessionFailed(w, tt.err)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.err.Error())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("GET", "/health", "200")))

	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "test_http_requests_total")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusTeapot, "short and stout")

	assert.Equal(t, http.StatusTeapot, w.Code)
	var got map[string]string
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&got))
	assert.Equal(t, "short and stout", got["error"])
}
