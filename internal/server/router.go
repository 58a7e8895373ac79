package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azhengyongqin/taskflow/internal/engine"
	"github.com/azhengyongqin/taskflow/internal/healthcheck"
	"github.com/azhengyongqin/taskflow/internal/middleware"
	"github.com/azhengyongqin/taskflow/internal/server/handler"
)

// Deps 路由依赖。
type Deps struct {
	// Engine 调度引擎
	Engine *engine.Engine

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker
}

// NewRouter 提供 Gin HTTP API
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	r.Use(middleware.CORSMiddleware())

	// 创建各个 handler 实例
	healthHandler := handler.NewHealthHandler(deps.HealthChecker)
	taskHandler := handler.NewTaskHandler(deps.Engine)
	workflowHandler := handler.NewWorkflowHandler(deps.Engine)
	queueHandler := handler.NewQueueHandler(deps.Engine)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由
	api := r.Group("/api/v1")
	{
		// Task 相关路由
		api.POST("/tasks", taskHandler.SubmitTask)
		api.GET("/tasks", taskHandler.ListTasks)
		api.GET("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.GetTask)
		api.POST("/tasks/clear-completed", taskHandler.ClearCompleted)

		// Queue 相关路由
		api.GET("/queue/stats", queueHandler.GetQueueStats)

		// Workflow 生命周期路由
		api.GET("/workflow", workflowHandler.GetWorkflow)
		api.GET("/workflow/levels", workflowHandler.Levels)
		api.POST("/workflow/pause", workflowHandler.Pause)
		api.POST("/workflow/resume", workflowHandler.Resume)
		api.POST("/workflow/cancel", workflowHandler.Cancel)
		api.DELETE("/workflow/snapshot", workflowHandler.DeleteSnapshot)
	}

	return r
}
