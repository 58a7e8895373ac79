// Package sdk 控制面 HTTP 客户端：任务提交、状态查询与工作流生命周期控制。
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client HTTP 客户端，用于与控制面通信
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SubmitTaskRequest 任务提交请求
type SubmitTaskRequest struct {
	TaskID       string          `json:"task_id,omitempty"`
	Priority     string          `json:"priority,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
	TimeoutMs    int64           `json:"timeout_ms,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// SubmitTaskResponse 任务提交响应
type SubmitTaskResponse struct {
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// Task 任务详情
type Task struct {
	TaskID       string          `json:"task_id"`
	Status       TaskStatus      `json:"status"`
	Priority     string          `json:"priority"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Attempt      int             `json:"attempt"`
	MaxAttempts  int             `json:"max_attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	ErrorHistory []string        `json:"error_history,omitempty"`
}

// UnmarshalResult 解析任务结果到用户结构。
func (t *Task) UnmarshalResult(v any) error {
	return json.Unmarshal(t.Result, v)
}

// TaskList 任务列表
type TaskList struct {
	Items []Task `json:"items"`
	Total int    `json:"total"`
}

// QueueStats 队列统计
type QueueStats struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Strategy   string `json:"strategy"`

	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Ready        int `json:"ready"`
	Running      int `json:"running"`
	RetryPending int `json:"retry_pending"`
	Success      int `json:"success"`
	Failed       int `json:"failed"`
	Blocked      int `json:"blocked"`
	Cancelled    int `json:"cancelled"`

	ReadyQueueDepth      int `json:"ready_queue_depth"`
	MaxConcurrent        int `json:"max_concurrent"`
	EffectiveConcurrency int `json:"effective_concurrency"`
}

// Workflow 工作流状态与汇总
type Workflow struct {
	WorkflowID string          `json:"workflow_id"`
	Status     WorkflowStatus  `json:"status"`
	Summary    json.RawMessage `json:"summary"`
}

// SubmitTask 提交任务
func (c *Client) SubmitTask(ctx context.Context, req SubmitTaskRequest) (*SubmitTaskResponse, error) {
	var resp SubmitTaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask 查询任务详情
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks 查询任务列表。status / tag 为空表示不过滤。
func (c *Client) ListTasks(ctx context.Context, status TaskStatus, tag string) (*TaskList, error) {
	path := "/api/v1/tasks"
	switch {
	case status != "":
		path += "?status=" + string(status)
	case tag != "":
		path += "?tag=" + tag
	}
	var list TaskList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetQueueStats 查询队列统计
func (c *Client) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	var stats QueueStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetWorkflow 查询工作流状态
func (c *Client) GetWorkflow(ctx context.Context) (*Workflow, error) {
	var wf Workflow
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflow", nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// PauseWorkflow 暂停派发
func (c *Client) PauseWorkflow(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/workflow/pause", nil, nil)
}

// ResumeWorkflow 恢复派发
func (c *Client) ResumeWorkflow(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/workflow/resume", nil, nil)
}

// CancelWorkflow 取消工作流（不可逆）
func (c *Client) CancelWorkflow(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/workflow/cancel", nil, nil)
}

// DeleteSnapshot 清理终态工作流的持久化快照
func (c *Client) DeleteSnapshot(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/workflow/snapshot", nil, nil)
}

// GetLevels 查询依赖层级分组
func (c *Client) GetLevels(ctx context.Context) ([][]string, error) {
	var resp struct {
		Levels [][]string `json:"levels"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflow/levels", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Levels, nil
}

// ClearCompleted 清理已完成任务，返回清理数量
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/clear-completed", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

// do 发送请求并解析响应。2xx 以外的状态码返回带响应体的错误。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
