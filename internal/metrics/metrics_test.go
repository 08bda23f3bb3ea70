package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := New("cypherview")
	b := New("cypherview")

	a.Ticks.Inc()
	a.Ticks.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Ticks))
}

func TestObserveHTTP(t *testing.T) {
	c := New("cypherview")
	c.ObserveHTTP(http.MethodGet, "/neo4j/{db}", 200, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/neo4j/{db}", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New("cypherview")
	c.SessionsOpen.Set(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cypherview_sessions_open 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
