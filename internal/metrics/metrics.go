package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcp_sql_build_info",
		Help: "Build information of the SQL tool server",
	}, []string{"version", "commit", "date"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_sql_tool_calls_total", Help: "Total tool calls by tool and status.",
	}, []string{"tool", "status"})
	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_sql_tool_duration_seconds",
		Help:    "Tool call duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"tool"})

	BackendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_sql_backend_failures_total", Help: "Total backend failures by stage.",
	}, []string{"stage"})

	SubprocessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_sql_subprocess_duration_seconds",
		Help:    "External backend subprocess duration in seconds by phase.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"phase"})
)
