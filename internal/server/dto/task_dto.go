package dto

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/taskflow/internal/model"
)

// SubmitTaskRequest 提交任务请求
type SubmitTaskRequest struct {
	TaskID       string          `json:"task_id" example:"extract-users"` // 可选，默认生成
	Priority     string          `json:"priority" example:"normal"`       // critical / high / normal / low / background
	Dependencies []string        `json:"dependencies"`
	Tags         []string        `json:"tags"`
	MaxAttempts  int             `json:"max_attempts" example:"3"`
	TimeoutMs    int64           `json:"timeout_ms" example:"30000"`
	Payload      json.RawMessage `json:"payload"`
}

// SubmitTaskResponse 提交任务响应
type SubmitTaskResponse struct {
	TaskID   string `json:"task_id" example:"extract-users"`
	Priority string `json:"priority" example:"normal"`
	Status   string `json:"status" example:"pending"`
}

// TaskListRequest 任务列表查询请求
type TaskListRequest struct {
	Status string `form:"status" example:"running"`
	Tag    string `form:"tag" example:"etl"`
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	Items []TaskView `json:"items"`
	Total int        `json:"total"`
}

// TaskView 任务详情视图
type TaskView struct {
	TaskID       string          `json:"task_id"`
	Status       string          `json:"status"`
	Priority     string          `json:"priority"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Attempt      int             `json:"attempt"`
	MaxAttempts  int             `json:"max_attempts"`
	TimeoutMs    int64           `json:"timeout_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	WakeAt       *time.Time      `json:"wake_at,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	ErrorHistory []string        `json:"error_history,omitempty"`
}

// TaskToView model.Task 转详情视图
func TaskToView(t *model.Task) TaskView {
	return TaskView{
		TaskID:       t.ID,
		Status:       string(t.Status),
		Priority:     t.Priority.String(),
		Dependencies: t.Dependencies,
		Tags:         t.Tags,
		Attempt:      t.Attempt,
		MaxAttempts:  t.MaxAttempts,
		TimeoutMs:    t.Timeout.Milliseconds(),
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		FinishedAt:   t.FinishedAt,
		WakeAt:       t.WakeAt,
		DurationMs:   t.Duration().Milliseconds(),
		Result:       t.Result,
		LastError:    t.LastError,
		ErrorHistory: t.ErrorHistory,
	}
}

// ClearCompletedResponse 清理完成任务响应
type ClearCompletedResponse struct {
	Status  string `json:"status" example:"ok"`
	Cleared int    `json:"cleared" example:"10"`
}
