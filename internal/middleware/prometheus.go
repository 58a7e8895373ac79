package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/azhengyongqin/taskflow/internal/metrics"
)

// PrometheusMiddleware 记录 HTTP 请求指标。
// /metrics 自身的抓取不计入，避免监控流量污染控制面指标。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start).Seconds())
		if status >= 500 {
			metrics.RecordError("http", "server_error")
		}
	}
}

// RequestIDMiddleware 为每个请求生成唯一 ID，透传调用方自带的 X-Request-ID。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}
