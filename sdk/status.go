package sdk

// TaskStatus 统一状态枚举，避免用户侧写错字符串。
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

// Terminal 判断状态是否为终态。
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusBlocked, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStatus 工作流状态枚举。
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)
