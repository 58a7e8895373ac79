package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务指标
	TasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
		[]string{"priority"},
	)

	TasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"status"},
	)

	TaskRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskflow_task_retries_total",
			Help: "Total number of retry attempts scheduled",
		},
	)

	TaskExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskflow_task_execution_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// 调度器指标
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_tasks_running",
			Help: "Number of tasks currently occupying an execution slot",
		},
	)

	ReadyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_ready_queue_depth",
			Help: "Number of tasks waiting in the ready queue",
		},
	)

	EffectiveConcurrency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_effective_concurrency",
			Help: "Concurrency width chosen by the active strategy",
		},
	)

	// 快照指标
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_snapshots_total",
			Help: "Total number of snapshot save attempts",
		},
		[]string{"result"},
	)

	// 数据库连接池指标
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_db_connections_in_use",
			Help: "Number of database connections in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBConnectionsMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_db_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 错误指标
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "type"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path string, status int, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskSubmitted 记录任务提交
func RecordTaskSubmitted(priority string) {
	TasksSubmittedTotal.WithLabelValues(priority).Inc()
}

// RecordTaskFinished 记录任务终态
func RecordTaskFinished(status string, duration float64) {
	TasksFinishedTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		TaskExecutionDuration.WithLabelValues(status).Observe(duration)
	}
}

// RecordTaskRetry 记录一次退避重试排期
func RecordTaskRetry() {
	TaskRetriesTotal.Inc()
}

// UpdateSchedulerStats 更新调度器实时状态
func UpdateSchedulerStats(running, readyDepth, effective int) {
	TasksRunning.Set(float64(running))
	ReadyQueueDepth.Set(float64(readyDepth))
	EffectiveConcurrency.Set(float64(effective))
}

// RecordSnapshot 记录一次快照保存结果（result: ok / error）
func RecordSnapshot(result string) {
	SnapshotsTotal.WithLabelValues(result).Inc()
}

// UpdateDBPoolStats 更新数据库连接池统计
func UpdateDBPoolStats(inUse, idle, max int32) {
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
	DBConnectionsMax.Set(float64(max))
}

// RecordError 记录错误
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// statusClass 将 HTTP 状态码转为类别
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
