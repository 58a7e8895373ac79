package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/taskflow/internal/engine"
	"github.com/azhengyongqin/taskflow/internal/middleware"
	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/server/dto"
)

// TaskHandler 任务相关 API Handler
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// SubmitTask 提交任务到队列。依赖必须引用已提交的任务。
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	var req dto.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	// 验证 task_id 格式（如果提供）
	if req.TaskID != "" && !middleware.ValidateTaskID(req.TaskID) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "task_id 格式无效"})
		return
	}

	// 验证标签格式
	for _, tag := range req.Tags {
		if !middleware.ValidateTag(tag) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "tag 格式无效: " + tag})
			return
		}
	}

	// 验证 payload 大小
	if len(req.Payload) > middleware.MaxPayloadSize {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "payload 过大，最大 2MB"})
		return
	}

	spec := engine.TaskSpec{
		ID:           req.TaskID,
		Payload:      req.Payload,
		Priority:     req.Priority,
		Dependencies: req.Dependencies,
		Tags:         req.Tags,
		MaxAttempts:  req.MaxAttempts,
	}
	if req.TimeoutMs > 0 {
		spec.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	id, err := h.engine.AddTask(spec)
	if err != nil {
		// 校验失败只影响本次提交
		if errors.Is(err, model.ErrValidation) {
			c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}

	task, _ := h.engine.GetTask(id)
	c.JSON(http.StatusCreated, dto.SubmitTaskResponse{
		TaskID:   id,
		Priority: task.Priority.String(),
		Status:   string(task.Status),
	})
}

// ListTasks 查询任务列表，支持 status / tag 过滤。
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req dto.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	var tasks []*model.Task
	switch {
	case req.Status != "":
		if !middleware.ValidateStatus(req.Status) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "status 格式无效: " + req.Status})
			return
		}
		status := model.TaskStatus(req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "未知 status: " + req.Status})
			return
		}
		tasks = h.engine.TasksByStatus(status)
	case req.Tag != "":
		if !middleware.ValidateTag(req.Tag) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "tag 格式无效"})
			return
		}
		tasks = h.engine.TasksByTag(req.Tag)
	default:
		tasks = h.engine.Tasks()
	}

	items := make([]dto.TaskView, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, dto.TaskToView(t))
	}
	c.JSON(http.StatusOK, dto.TaskListResponse{Items: items, Total: len(items)})
}

// GetTask 查询任务详情。
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")
	task, ok := h.engine.GetTask(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在: " + taskID})
		return
	}
	c.JSON(http.StatusOK, dto.TaskToView(task))
}

// ClearCompleted 清理已完成任务。
func (h *TaskHandler) ClearCompleted(c *gin.Context) {
	cleared := h.engine.ClearCompleted()
	c.JSON(http.StatusOK, dto.ClearCompletedResponse{Status: "ok", Cleared: cleared})
}
