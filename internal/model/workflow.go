package model

import "time"

// WorkflowStatus 工作流状态。
// pending → running → {completed|failed|cancelled}，running ⇄ paused 可逆。
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusRunning, WorkflowStatusPaused,
		WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal 终态工作流不可再迁移（cancel 不可逆）。
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Strategy 执行策略。
// - sequential: 并发度固定为 1，严格按优先级+FIFO 串行
// - parallel: 并发度 = 配置的 max_concurrent
// - adaptive: 并发度 = min(max_concurrent, max(1, |ready|))，每个调度 tick 重算
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyAdaptive   Strategy = "adaptive"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyAdaptive:
		return true
	default:
		return false
	}
}

// ParseStrategy 解析策略名称，未知值回落到 adaptive。
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategySequential, StrategyParallel, StrategyAdaptive:
		return Strategy(s)
	default:
		return StrategyAdaptive
	}
}

// WorkflowSummary 工作流终态汇总，ProcessQueue 返回给调用方。
// 工作流以 failed 结束时 RootCauses 指出根因任务 id（不含被传播 blocked 的任务）。
type WorkflowSummary struct {
	WorkflowID string         `json:"workflow_id"`
	Status     WorkflowStatus `json:"status"`
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Blocked    int            `json:"blocked"`
	Cancelled  int            `json:"cancelled"`
	Duration   time.Duration  `json:"duration"`
	RootCauses []string       `json:"root_causes,omitempty"`
}
