package model

// TaskStatus 统一任务状态枚举（用于调度器/API/快照）。
// 约定：
// - pending: 已提交，依赖尚未全部满足
// - ready: 依赖已满足，等待空闲执行槽
// - running: 已占用执行槽，executor 正在处理
// - retry_pending: 本次尝试失败，等待退避时间到期后重新进入 ready
// - success: 成功（终态）
// - failed: 重试耗尽或超时（终态）
// - blocked: 上游依赖终态失败导致永远无法执行（终态）
// - cancelled: 被工作流取消（终态）
type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "pending"
	TaskStatusReady        TaskStatus = "ready"
	TaskStatusRunning      TaskStatus = "running"
	TaskStatusRetryPending TaskStatus = "retry_pending"
	TaskStatusSuccess      TaskStatus = "success"
	TaskStatusFailed       TaskStatus = "failed"
	TaskStatusBlocked      TaskStatus = "blocked"
	TaskStatusCancelled    TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning, TaskStatusRetryPending,
		TaskStatusSuccess, TaskStatusFailed, TaskStatusBlocked, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal 判断是否为终态。终态任务不再参与调度。
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusBlocked, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// transitions 状态机允许的迁移边。
// pending → ready → running → {success|retry_pending|failed|cancelled}
// retry_pending → ready；pending/ready/retry_pending 可被 blocked/cancelled 截断。
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:      {TaskStatusReady, TaskStatusBlocked, TaskStatusCancelled},
	TaskStatusReady:        {TaskStatusRunning, TaskStatusBlocked, TaskStatusCancelled},
	TaskStatusRunning:      {TaskStatusSuccess, TaskStatusRetryPending, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusRetryPending: {TaskStatusReady, TaskStatusBlocked, TaskStatusCancelled},
}

// CanTransition 判断 s → next 是否为状态机允许的迁移。终态没有出边。
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
