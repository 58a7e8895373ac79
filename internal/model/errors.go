package model

import (
	"errors"
	"fmt"
)

// 错误分类哨兵。调用方可用 errors.Is 判断类别：
// - ErrValidation: add_task 提交的任务图非法（仅影响该次提交）
// - ErrExecution: executor 上报执行失败
// - ErrTimeout: 超过任务 deadline
// - ErrCancelled: 工作流或任务级取消
// - ErrDependencyFailed: 上游任务终态失败传播到下游
var (
	ErrValidation       = errors.New("validation error")
	ErrExecution        = errors.New("execution error")
	ErrTimeout          = errors.New("timeout error")
	ErrCancelled        = errors.New("cancellation error")
	ErrDependencyFailed = errors.New("dependency failed")
)

// ValidationError 任务提交校验失败。Reason 取值：
// duplicate_id / unknown_dependency / cycle_detected / invalid_descriptor
type ValidationError struct {
	TaskID string
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %s rejected (%s): %s", e.TaskID, e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ExecutionError executor 上报的失败，带上尝试序号。
type ExecutionError struct {
	TaskID  string
	Attempt int
	Cause   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s attempt %d failed: %v", e.TaskID, e.Attempt, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return ErrExecution }

// TimeoutError 任务超过 deadline。执行槽已回收，但 executor 需自行观察
// ctx 退出，调度器不强杀在途执行。
type TimeoutError struct {
	TaskID  string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// DependencyFailedError 依赖传播失败：上游终态失败，下游被置为 blocked。
type DependencyFailedError struct {
	TaskID       string
	DependencyID string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("task %s blocked: dependency %s failed", e.TaskID, e.DependencyID)
}

func (e *DependencyFailedError) Unwrap() error { return ErrDependencyFailed }
