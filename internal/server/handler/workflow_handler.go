package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/taskflow/internal/engine"
	"github.com/azhengyongqin/taskflow/internal/server/dto"
)

// WorkflowHandler 工作流生命周期 API Handler
type WorkflowHandler struct {
	engine *engine.Engine
}

// NewWorkflowHandler 创建 WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// GetWorkflow 查询工作流状态与汇总。
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	summary := h.engine.Summary()
	c.JSON(http.StatusOK, dto.WorkflowResponse{
		WorkflowID: summary.WorkflowID,
		Status:     string(summary.Status),
		Summary:    summary,
	})
}

// Pause 暂停派发。在途任务执行完本次尝试，不再出队新任务。
func (h *WorkflowHandler) Pause(c *gin.Context) {
	if err := h.engine.Pause(); err != nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "工作流已暂停"})
}

// Resume 从暂停恢复派发。
func (h *WorkflowHandler) Resume(c *gin.Context) {
	if err := h.engine.Resume(); err != nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "工作流已恢复"})
}

// Cancel 取消工作流（不可逆）。
func (h *WorkflowHandler) Cancel(c *gin.Context) {
	if err := h.engine.Cancel(); err != nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "工作流已取消"})
}

// Levels 查询依赖层级分组（诊断用）。
func (h *WorkflowHandler) Levels(c *gin.Context) {
	c.JSON(http.StatusOK, dto.WorkflowLevelsResponse{Levels: h.engine.Levels()})
}

// DeleteSnapshot 清理终态工作流的持久化快照。
func (h *WorkflowHandler) DeleteSnapshot(c *gin.Context) {
	if err := h.engine.DeleteSnapshot(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "快照已清理"})
}
