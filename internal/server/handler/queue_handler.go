package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/taskflow/internal/engine"
)

// QueueHandler 队列统计 API Handler
type QueueHandler struct {
	engine *engine.Engine
}

// NewQueueHandler 创建 QueueHandler
func NewQueueHandler(eng *engine.Engine) *QueueHandler {
	return &QueueHandler{engine: eng}
}

// GetQueueStats 查询队列实时统计：各状态计数、就绪队列深度、并发宽度。
func (h *QueueHandler) GetQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetQueueStats())
}
