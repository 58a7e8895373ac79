// Package engine 调度核心：单一协调循环驱动依赖解析、优先级派发、
// 并发槽管理、重试退避与工作流生命周期。注册表只有协调循环与加锁的
// 控制方法写入，worker goroutine 通过 results channel 回报，不直接改状态。
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/azhengyongqin/taskflow/internal/graph"
	"github.com/azhengyongqin/taskflow/internal/metrics"
	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/readyqueue"
	"github.com/azhengyongqin/taskflow/internal/retry"
	"github.com/azhengyongqin/taskflow/internal/store"
)

// Executor 任务执行回调，由调用方注入。Payload 的解释完全由 executor 负责。
// ctx 携带任务超时与取消信号，executor 必须协作式观察退出；
// 超时/取消后调度器立即回收执行槽，不等待也不强杀在途执行。
type Executor func(ctx context.Context, task *model.Task) (json.RawMessage, error)

// TaskSpec 任务提交描述。Priority 为空时取 normal；
// MaxAttempts/Timeout 为零时取引擎级默认值。
type TaskSpec struct {
	ID           string
	Payload      json.RawMessage
	Priority     string
	Dependencies []string
	Tags         []string
	MaxAttempts  int
	Timeout      time.Duration
}

// Options 引擎配置。
type Options struct {
	WorkflowID        string
	Strategy          model.Strategy
	MaxConcurrent     int
	ContinueOnFailure bool

	// AdaptiveStrict 为 true 时 adaptive 宽度只统计依赖全部 success 的
	// 就绪任务；continue_on_failure 下靠失败依赖放行的任务照常执行，
	// 但不撑大并发宽度。
	AdaptiveStrict bool

	Retry          retry.Config
	DefaultTimeout time.Duration

	// Store 快照后端，nil 时不做持久化。
	Store            store.Store
	SnapshotInterval time.Duration

	Logger zerolog.Logger

	// 任务终态钩子，在协调循环外以任务副本调用。
	OnTaskComplete func(task *model.Task)
	OnTaskFailed   func(task *model.Task)
}

// ErrAlreadyProcessing 同一引擎同时只能有一个 ProcessQueue 在驱动。
var ErrAlreadyProcessing = errors.New("queue is already being processed")

// taskResult worker 回报的单次执行结果。
type taskResult struct {
	id       string
	result   json.RawMessage
	err      error
	started  time.Time
	finished time.Time
}

// Engine 任务队列调度引擎。
type Engine struct {
	mu sync.Mutex

	workflowID        string
	strategy          model.Strategy
	maxConcurrent     int
	continueOnFailure bool
	adaptiveStrict    bool
	retry             retry.Config
	defaultTimeout    time.Duration

	resolver *graph.Resolver
	ready    *readyqueue.Queue
	running  map[string]context.CancelFunc

	status     model.WorkflowStatus
	startedAt  *time.Time
	finishedAt *time.Time
	processing bool

	results chan taskResult
	kick    chan struct{}

	st               store.Store
	snapshotInterval time.Duration

	log            zerolog.Logger
	onTaskComplete func(task *model.Task)
	onTaskFailed   func(task *model.Task)
}

// New 创建引擎。MaxConcurrent <= 0 时取 1；WorkflowID 为空时自动生成。
func New(opts Options) *Engine {
	if opts.WorkflowID == "" {
		opts.WorkflowID = uuid.NewString()
	}
	if !opts.Strategy.Valid() {
		opts.Strategy = model.StrategyAdaptive
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	cfg := opts.Retry.Normalize()

	return &Engine{
		workflowID:        opts.WorkflowID,
		strategy:          opts.Strategy,
		maxConcurrent:     opts.MaxConcurrent,
		continueOnFailure: opts.ContinueOnFailure,
		adaptiveStrict:    opts.AdaptiveStrict,
		retry:             cfg,
		defaultTimeout:    opts.DefaultTimeout,
		resolver:          graph.New(opts.ContinueOnFailure),
		ready:             readyqueue.New(),
		running:           make(map[string]context.CancelFunc),
		status:            model.WorkflowStatusPending,
		results:           make(chan taskResult, opts.MaxConcurrent+1),
		kick:              make(chan struct{}, 1),
		st:                opts.Store,
		snapshotInterval:  opts.SnapshotInterval,
		log:               opts.Logger,
		onTaskComplete:    opts.OnTaskComplete,
		onTaskFailed:      opts.OnTaskFailed,
	}
}

// WorkflowID 返回工作流标识。
func (e *Engine) WorkflowID() string { return e.workflowID }

// AddTask 提交任务。依赖必须引用已提交的任务；校验失败返回
// *model.ValidationError 且不影响已注册任务。运行期间也可继续提交。
func (e *Engine) AddTask(spec TaskSpec) (string, error) {
	e.mu.Lock()
	if e.status.Terminal() {
		st := e.status
		e.mu.Unlock()
		return "", fmt.Errorf("workflow %s is %s: not accepting tasks", e.workflowID, st)
	}

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.retry.MaxAttempts
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	t := &model.Task{
		ID:           id,
		Payload:      spec.Payload,
		Priority:     model.ParsePriority(spec.Priority),
		Dependencies: append([]string(nil), spec.Dependencies...),
		Tags:         append([]string(nil), spec.Tags...),
		Status:       model.TaskStatusPending,
		MaxAttempts:  maxAttempts,
		Timeout:      timeout,
	}
	if err := e.resolver.Add(t); err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.mu.Unlock()

	metrics.RecordTaskSubmitted(t.Priority.String())
	e.log.Debug().
		Str("workflow_id", e.workflowID).
		Str("task_id", id).
		Str("priority", t.Priority.String()).
		Strs("dependencies", spec.Dependencies).
		Msg("任务已提交")
	e.wake()
	return id, nil
}

// ProcessQueue 驱动协调循环直到所有任务终态（或工作流被取消并排空在途
// 任务）。paused 状态下循环保持挂起，等待 Resume/Cancel。ctx 取消等价于
// 工作流取消。同一引擎并发调用返回 ErrAlreadyProcessing。
func (e *Engine) ProcessQueue(ctx context.Context, executor Executor) (*model.WorkflowSummary, error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return nil, ErrAlreadyProcessing
	}
	e.processing = true
	if e.status == model.WorkflowStatusPending {
		now := time.Now()
		e.status = model.WorkflowStatusRunning
		e.startedAt = &now
		e.log.Info().
			Str("workflow_id", e.workflowID).
			Str("strategy", string(e.strategy)).
			Int("max_concurrent", e.maxConcurrent).
			Int("tasks", e.resolver.Len()).
			Msg("工作流开始执行")
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.processing = false
		e.mu.Unlock()
	}()

	var snapTick <-chan time.Time
	if e.st != nil && e.snapshotInterval > 0 {
		ticker := time.NewTicker(e.snapshotInterval)
		defer ticker.Stop()
		snapTick = ticker.C
	}
	ctxDone := ctx.Done()

	for {
		e.mu.Lock()
		if e.status == model.WorkflowStatusRunning {
			e.refillLocked(time.Now())
			e.dispatchLocked(ctx, executor)
		}
		// 收束判定：本轮刚收束，或工作流已处于终态且无在途执行。
		// 后者覆盖取消收尾、以及从终态快照恢复后被再次驱动的情况，
		// 此时不存在任何唤醒源，必须立即退出而不是进 select 挂死。
		finished := e.finishIfDoneLocked()
		done := finished || (e.status.Terminal() && len(e.running) == 0)

		var wakeTimer *time.Timer
		var wakeCh <-chan time.Time
		if !done && e.status == model.WorkflowStatusRunning {
			if next, ok := e.resolver.NextWake(); ok {
				d := time.Until(next)
				if d < 0 {
					d = 0
				}
				wakeTimer = time.NewTimer(d)
				wakeCh = wakeTimer.C
			}
		}
		e.mu.Unlock()

		if done {
			break
		}

		select {
		case res := <-e.results:
			e.handleResult(res)
		case <-wakeCh:
			// 退避到期，回到循环头重算就绪集
		case <-e.kick:
		case <-snapTick:
			e.snapshot("periodic")
		case <-ctxDone:
			_ = e.Cancel()
			ctxDone = nil
		}
		if wakeTimer != nil {
			wakeTimer.Stop()
		}
	}

	e.snapshot("final")

	e.mu.Lock()
	summary := e.summaryLocked()
	e.mu.Unlock()
	e.log.Info().
		Str("workflow_id", summary.WorkflowID).
		Str("status", string(summary.Status)).
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Int("blocked", summary.Blocked).
		Int("cancelled", summary.Cancelled).
		Int64("duration(ms)", summary.Duration.Milliseconds()).
		Msg("工作流执行结束")
	return summary, nil
}

// finishIfDoneLocked 所有任务终态且无在途执行时收束工作流：
// continue_on_failure=false 下存在 failed 任务则 failed，否则 completed
// （continue_on_failure=true 时失败视为已容忍的终态，汇总里仍带失败清单）。
// paused 下不收束。
func (e *Engine) finishIfDoneLocked() bool {
	if e.status != model.WorkflowStatusRunning || len(e.running) > 0 {
		return false
	}
	anyFailed := false
	for _, t := range e.resolver.Tasks() {
		if !t.Status.Terminal() {
			return false
		}
		if t.Status == model.TaskStatusFailed {
			anyFailed = true
		}
	}
	now := time.Now()
	e.finishedAt = &now
	if anyFailed && !e.continueOnFailure {
		e.status = model.WorkflowStatusFailed
	} else {
		e.status = model.WorkflowStatusCompleted
	}
	return true
}

// handleResult 处理 worker 回报：成功落终态、失败走重试或传播、
// 取消落 cancelled。执行槽在这里统一回收。
func (e *Engine) handleResult(res taskResult) {
	var completeHook, failedHook *model.Task

	e.mu.Lock()
	if cancel, ok := e.running[res.id]; ok {
		cancel()
		delete(e.running, res.id)
	}
	t, ok := e.resolver.Get(res.id)
	if !ok || t.Status != model.TaskStatusRunning {
		// 取消路径已落终态的迟到回报，丢弃
		e.mu.Unlock()
		return
	}

	duration := res.finished.Sub(res.started)
	switch {
	case res.err == nil:
		t.Status = model.TaskStatusSuccess
		t.Result = res.result
		t.FinishedAt = &res.finished
		metrics.RecordTaskFinished(string(t.Status), duration.Seconds())
		if e.onTaskComplete != nil {
			completeHook = t.Clone()
		}
		e.log.Info().
			Str("workflow_id", e.workflowID).
			Str("task_id", t.ID).
			Str("status", string(t.Status)).
			Int("attempt", t.Attempt).
			Int64("duration(ms)", duration.Milliseconds()).
			Msg("任务执行成功")

	case errors.Is(res.err, model.ErrCancelled) || errors.Is(res.err, context.Canceled):
		t.Status = model.TaskStatusCancelled
		t.FinishedAt = &res.finished
		metrics.RecordTaskFinished(string(t.Status), duration.Seconds())
		e.log.Info().
			Str("workflow_id", e.workflowID).
			Str("task_id", t.ID).
			Str("status", string(t.Status)).
			Msg("任务已取消")

	default:
		msg := res.err.Error()
		t.LastError = msg
		t.ErrorHistory = append(t.ErrorHistory, fmt.Sprintf("attempt %d: %s", t.Attempt, msg))

		if t.Attempt < t.MaxAttempts {
			delay := e.retry.NextDelay(t.Attempt)
			wake := res.finished.Add(delay)
			t.Status = model.TaskStatusRetryPending
			t.WakeAt = &wake
			metrics.RecordTaskRetry()
			e.log.Warn().
				Str("workflow_id", e.workflowID).
				Str("task_id", t.ID).
				Str("status", string(t.Status)).
				Int("attempt", t.Attempt).
				Int("max_attempts", t.MaxAttempts).
				Dur("backoff", delay).
				Str("errors", msg).
				Msg("任务失败，等待退避重试")
		} else {
			t.Status = model.TaskStatusFailed
			t.FinishedAt = &res.finished
			metrics.RecordTaskFinished(string(t.Status), duration.Seconds())
			if e.onTaskFailed != nil {
				failedHook = t.Clone()
			}
			e.log.Error().
				Str("workflow_id", e.workflowID).
				Str("task_id", t.ID).
				Str("status", string(t.Status)).
				Int("attempt", t.Attempt).
				Str("errors", msg).
				Msg("任务重试耗尽，标记失败")

			blocked := e.resolver.PropagateFailure(t.ID)
			for _, b := range blocked {
				e.ready.Remove(b.ID)
				metrics.RecordTaskFinished(string(b.Status), 0)
				e.log.Warn().
					Str("workflow_id", e.workflowID).
					Str("task_id", b.ID).
					Str("status", string(b.Status)).
					Str("errors", b.LastError).
					Msg("上游失败传播，任务被阻塞")
			}
		}
	}
	e.mu.Unlock()

	if completeHook != nil {
		e.onTaskComplete(completeHook)
	}
	if failedHook != nil {
		e.onTaskFailed(failedHook)
	}
}

// runTask worker goroutine：执行单次尝试并回报。超时/取消时立即回报并
// 放弃在途 executor（内层 goroutine 写入带缓冲 channel 后自行退出）。
func (e *Engine) runTask(ctx context.Context, t *model.Task, executor Executor) {
	started := time.Now()
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
	}
	defer cancel()

	done := make(chan taskResult, 1)
	go func() {
		result, err := executor(runCtx, t)
		done <- taskResult{result: result, err: err}
	}()

	var res taskResult
	select {
	case res = <-done:
		if res.err != nil {
			res.err = e.classify(runCtx, t, res.err)
		}
	case <-runCtx.Done():
		res.err = e.classify(runCtx, t, runCtx.Err())
	}
	res.id = t.ID
	res.started = started
	res.finished = time.Now()
	e.results <- res
}

// classify 把裸错误归到错误分类体系：deadline 超限 → TimeoutError，
// 上游取消 → ErrCancelled，其余 → ExecutionError。
func (e *Engine) classify(runCtx context.Context, t *model.Task, err error) error {
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return &model.TimeoutError{TaskID: t.ID, Timeout: t.Timeout.String()}
	case errors.Is(runCtx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return fmt.Errorf("task %s: %w", t.ID, model.ErrCancelled)
	default:
		return &model.ExecutionError{TaskID: t.ID, Attempt: t.Attempt, Cause: err}
	}
}

// Pause 暂停派发。在途任务继续执行到本次尝试结束，不再出队新任务。
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.status != model.WorkflowStatusRunning {
		st := e.status
		e.mu.Unlock()
		return fmt.Errorf("workflow %s is %s: cannot pause", e.workflowID, st)
	}
	e.status = model.WorkflowStatusPaused
	snap := e.buildSnapshotLocked()
	e.mu.Unlock()

	e.log.Info().Str("workflow_id", e.workflowID).Msg("工作流已暂停")
	e.saveSnapshot(snap, "pause")
	e.wake()
	return nil
}

// Resume 从 paused 恢复派发。
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.status != model.WorkflowStatusPaused {
		st := e.status
		e.mu.Unlock()
		return fmt.Errorf("workflow %s is %s: cannot resume", e.workflowID, st)
	}
	e.status = model.WorkflowStatusRunning
	e.mu.Unlock()

	e.log.Info().Str("workflow_id", e.workflowID).Msg("工作流已恢复")
	e.wake()
	return nil
}

// Cancel 取消工作流（不可逆）。未开始的任务直接落 cancelled，在途任务
// 收到取消信号后由回报路径落终态。重复取消是空操作。
func (e *Engine) Cancel() error {
	e.mu.Lock()
	if e.status == model.WorkflowStatusCancelled {
		e.mu.Unlock()
		return nil
	}
	if e.status.Terminal() {
		st := e.status
		e.mu.Unlock()
		return fmt.Errorf("workflow %s is %s: cannot cancel", e.workflowID, st)
	}
	now := time.Now()
	e.status = model.WorkflowStatusCancelled
	e.finishedAt = &now
	for _, cancel := range e.running {
		cancel()
	}
	for _, t := range e.resolver.Tasks() {
		switch t.Status {
		case model.TaskStatusPending, model.TaskStatusReady, model.TaskStatusRetryPending:
			t.Status = model.TaskStatusCancelled
			t.FinishedAt = &now
			t.WakeAt = nil
			metrics.RecordTaskFinished(string(t.Status), 0)
		}
	}
	e.ready.Clear()
	inFlight := len(e.running)
	snap := e.buildSnapshotLocked()
	e.mu.Unlock()

	e.log.Info().
		Str("workflow_id", e.workflowID).
		Int("in_flight", inFlight).
		Msg("工作流已取消")
	e.saveSnapshot(snap, "cancel")
	e.wake()
	return nil
}

// wake 唤醒协调循环（非阻塞，合并重复信号）。
func (e *Engine) wake() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}
