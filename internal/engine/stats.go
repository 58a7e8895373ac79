package engine

import (
	"time"

	"github.com/azhengyongqin/taskflow/internal/model"
)

// QueueStats 队列实时统计。
type QueueStats struct {
	WorkflowID string               `json:"workflow_id"`
	Status     model.WorkflowStatus `json:"status"`
	Strategy   model.Strategy       `json:"strategy"`

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

// GetQueueStats 返回当前队列统计快照。
func (e *Engine) GetQueueStats() QueueStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := QueueStats{
		WorkflowID:           e.workflowID,
		Status:               e.status,
		Strategy:             e.strategy,
		ReadyQueueDepth:      e.ready.Len(),
		MaxConcurrent:        e.maxConcurrent,
		EffectiveConcurrency: e.effectiveWidthLocked(),
	}
	for _, t := range e.resolver.Tasks() {
		s.Total++
		switch t.Status {
		case model.TaskStatusPending:
			s.Pending++
		case model.TaskStatusReady:
			s.Ready++
		case model.TaskStatusRunning:
			s.Running++
		case model.TaskStatusRetryPending:
			s.RetryPending++
		case model.TaskStatusSuccess:
			s.Success++
		case model.TaskStatusFailed:
			s.Failed++
		case model.TaskStatusBlocked:
			s.Blocked++
		case model.TaskStatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// GetTask 按 id 返回任务副本。
func (e *Engine) GetTask(id string) (*model.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.resolver.Get(id)
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// GetTaskStatus 按 id 返回任务状态。
func (e *Engine) GetTaskStatus(id string) (model.TaskStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.resolver.Get(id)
	if !ok {
		return "", false
	}
	return t.Status, true
}

// Tasks 按提交顺序返回全部任务副本。
func (e *Engine) Tasks() []*model.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloneTasksLocked(nil)
}

// TasksByStatus 按状态过滤任务。
func (e *Engine) TasksByStatus(status model.TaskStatus) []*model.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloneTasksLocked(func(t *model.Task) bool { return t.Status == status })
}

// TasksByTag 按标签过滤任务。
func (e *Engine) TasksByTag(tag string) []*model.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloneTasksLocked(func(t *model.Task) bool { return t.HasTag(tag) })
}

func (e *Engine) cloneTasksLocked(keep func(*model.Task) bool) []*model.Task {
	var out []*model.Task
	for _, t := range e.resolver.Tasks() {
		if keep == nil || keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// ClearCompleted 清理 success 任务（仅下游也全部终态的），返回清理数量。
func (e *Engine) ClearCompleted() int {
	e.mu.Lock()
	removed := e.resolver.RemoveCompleted()
	e.mu.Unlock()
	if len(removed) > 0 {
		e.log.Info().
			Str("workflow_id", e.workflowID).
			Int("cleared", len(removed)).
			Msg("已清理完成任务")
	}
	return len(removed)
}

// Levels 按依赖层级分组任务 id（诊断用）。
func (e *Engine) Levels() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.Levels()
}

// WorkflowStatus 当前工作流状态。
func (e *Engine) WorkflowStatus() model.WorkflowStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Summary 工作流汇总。终态前调用返回执行中的阶段性计数。
func (e *Engine) Summary() *model.WorkflowSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked()
}

func (e *Engine) summaryLocked() *model.WorkflowSummary {
	s := &model.WorkflowSummary{
		WorkflowID: e.workflowID,
		Status:     e.status,
	}
	for _, t := range e.resolver.Tasks() {
		s.Total++
		switch t.Status {
		case model.TaskStatusSuccess:
			s.Completed++
		case model.TaskStatusFailed:
			s.Failed++
			s.RootCauses = append(s.RootCauses, t.ID)
		case model.TaskStatusBlocked:
			s.Blocked++
		case model.TaskStatusCancelled:
			s.Cancelled++
		}
	}
	if e.startedAt != nil {
		if e.finishedAt != nil {
			s.Duration = e.finishedAt.Sub(*e.startedAt)
		} else {
			s.Duration = time.Since(*e.startedAt)
		}
	}
	return s
}
