package engine

import (
	"context"
	"time"

	"github.com/azhengyongqin/taskflow/internal/metrics"
	"github.com/azhengyongqin/taskflow/internal/model"
)

// refillLocked 重算就绪集并入队：pending 依赖满足、retry_pending 退避到期
// 的任务迁移为 ready。队列按 (priority, seq) 排序，重复发现由队列去重。
func (e *Engine) refillLocked(now time.Time) {
	for _, t := range e.resolver.ReadySet(now) {
		t.Status = model.TaskStatusReady
		t.WakeAt = nil
		e.ready.Push(t)
	}
}

// effectiveWidthLocked 按策略计算本 tick 的并发宽度：
// - sequential: 恒为 1
// - parallel:   恒为 max_concurrent
// - adaptive:   min(max_concurrent, max(1, |ready|))，每个 tick 重算；
//   strict 模式下只统计依赖全部 success 的就绪任务
func (e *Engine) effectiveWidthLocked() int {
	switch e.strategy {
	case model.StrategySequential:
		return 1
	case model.StrategyParallel:
		return e.maxConcurrent
	}

	width := 0
	for _, t := range e.resolver.Tasks() {
		if t.Status != model.TaskStatusReady {
			continue
		}
		if e.adaptiveStrict && !e.resolver.DepsAllSuccess(t) {
			continue
		}
		width++
	}
	if width < 1 {
		width = 1
	}
	if width > e.maxConcurrent {
		width = e.maxConcurrent
	}
	return width
}

// dispatchLocked 在并发宽度内出队派发。宽度在 tick 开始时计算一次，
// 派发过程中不随队列变短收缩。
func (e *Engine) dispatchLocked(ctx context.Context, executor Executor) {
	width := e.effectiveWidthLocked()

	for len(e.running) < width {
		t := e.ready.Pop()
		if t == nil {
			break
		}
		now := time.Now()
		t.Status = model.TaskStatusRunning
		t.Attempt++
		t.StartedAt = &now
		t.FinishedAt = nil

		runCtx, cancel := context.WithCancel(ctx)
		e.running[t.ID] = cancel
		go e.runTask(runCtx, t.Clone(), executor)

		e.log.Debug().
			Str("workflow_id", e.workflowID).
			Str("task_id", t.ID).
			Str("status", string(t.Status)).
			Str("priority", t.Priority.String()).
			Int("attempt", t.Attempt).
			Msg("任务开始执行")
	}

	metrics.UpdateSchedulerStats(len(e.running), e.ready.Len(), width)
}
