// Package metrics holds the Prometheus collectors for routing, model calls,
// tool calls and turns. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "counterman"

type Collector struct {
	reg *prometheus.Registry

	routeDecisions     *prometheus.CounterVec
	invalidRequests    *prometheus.CounterVec
	selfRouteOverrides *prometheus.CounterVec

	modelCalls    *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec
	modelTokens   *prometheus.CounterVec

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	turnsTotal   *prometheus.CounterVec
	turnDuration prometheus.Histogram
	turnSteps    prometheus.Histogram
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		reg: reg,

		routeDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Supervisor routing decisions by branch and target.",
		}, []string{"branch", "target"}),
		invalidRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_requests_total",
			Help:      "Agent requests rejected by the allow-list.",
		}, []string{"requesting_agent", "target_agent"}),
		selfRouteOverrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_route_overrides_total",
			Help:      "Model routes back to the current agent redirected to human interaction.",
		}, []string{"agent"}),

		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model invocations by node and status.",
		}, []string{"node", "status"}),
		modelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Language model invocation duration, tool rounds included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"node"}),
		modelTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens used by node and direction.",
		}, []string{"node", "type"}),

		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "External tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "External tool call duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by status.",
		}, []string{"status"}),
		turnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of a turn.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
		}),
		turnSteps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_steps",
			Help:      "Graph steps executed per turn.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

func (c *Collector) RouteDecision(branch, target string) {
	if c == nil {
		return
	}
	c.routeDecisions.WithLabelValues(branch, target).Inc()
}

func (c *Collector) InvalidRequest(from, to string) {
	if c == nil {
		return
	}
	c.invalidRequests.WithLabelValues(from, to).Inc()
}

func (c *Collector) SelfRouteOverride(agent string) {
	if c == nil {
		return
	}
	c.selfRouteOverrides.WithLabelValues(agent).Inc()
}

func (c *Collector) ModelCall(node, status string, d time.Duration, inputTokens, outputTokens int) {
	if c == nil {
		return
	}
	c.modelCalls.WithLabelValues(node, status).Inc()
	c.modelDuration.WithLabelValues(node).Observe(d.Seconds())
	c.modelTokens.WithLabelValues(node, "input").Add(float64(inputTokens))
	c.modelTokens.WithLabelValues(node, "output").Add(float64(outputTokens))
}

func (c *Collector) ToolCall(tool, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (c *Collector) Turn(status string, d time.Duration, steps int) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(status).Inc()
	c.turnDuration.Observe(d.Seconds())
	c.turnSteps.Observe(float64(steps))
}
