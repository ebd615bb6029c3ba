// Package prometheus implements the metrics collector on the Prometheus
// client library. Metrics register against the default registry and are
// exposed through the HTTP server's /metrics endpoint.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taskmesh/taskmesh/internal/ports"
)

// Collector implements ports.MetricsCollector.
type Collector struct {
	workflowsCreated   *prometheus.CounterVec
	workflowsCompleted *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	tasksExecuted      *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	planningTotal      *prometheus.CounterVec
	planningDuration   prometheus.Histogram
	activeWorkflows    prometheus.Gauge
}

// NewCollector creates and registers all taskmesh metrics. Call it once
// per process; promauto panics on duplicate registration.
func NewCollector() *Collector {
	return &Collector{
		workflowsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmesh_workflows_created_total",
				Help: "Total number of workflows created",
			},
			[]string{"status"},
		),
		workflowsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmesh_workflows_completed_total",
				Help: "Total number of workflow runs finished",
			},
			[]string{"status"},
		),
		workflowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskmesh_workflow_duration_seconds",
				Help:    "End to end workflow run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"status"},
		),
		tasksExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmesh_tasks_executed_total",
				Help: "Total number of tasks dispatched to executors",
			},
			[]string{"agent_type", "status"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskmesh_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"agent_type"},
		),
		planningTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmesh_planning_total",
				Help: "Total number of planning calls",
			},
			[]string{"status"},
		),
		planningDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskmesh_planning_duration_seconds",
				Help:    "Planner call duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		activeWorkflows: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskmesh_active_workflows",
				Help: "Number of workflow runs currently in progress",
			},
		),
	}
}

var _ ports.MetricsCollector = (*Collector)(nil)

func (c *Collector) RecordWorkflowCreated(status string) {
	c.workflowsCreated.WithLabelValues(status).Inc()
}

func (c *Collector) RecordWorkflowCompleted(status string, duration time.Duration) {
	c.workflowsCompleted.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (c *Collector) RecordTaskExecuted(agentType, status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(agentType, status).Inc()
	c.taskDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

func (c *Collector) RecordPlanning(status string, duration time.Duration) {
	c.planningTotal.WithLabelValues(status).Inc()
	c.planningDuration.Observe(duration.Seconds())
}

func (c *Collector) SetActiveWorkflows(count int) {
	c.activeWorkflows.Set(float64(count))
}
