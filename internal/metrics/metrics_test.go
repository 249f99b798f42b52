package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.RouteDecision("pending", "data_agent")
	c.RouteDecision("pending", "data_agent")
	c.InvalidRequest("data_agent", "repair_agent")
	c.ToolCall("get_pricing", "error", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.routeDecisions.WithLabelValues("pending", "data_agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invalidRequests.WithLabelValues("data_agent", "repair_agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("get_pricing", "error")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RouteDecision("model", "repair_agent")
	c.Turn("ok", time.Second, 3)
	assert.Nil(t, c.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.Turn("ok", 2*time.Second, 4)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `counterman_turns_total{status="ok"} 1`)
}
