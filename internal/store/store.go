// Package store 队列状态快照的持久化。
// 快照在协调循环的单写者边界处生成（生命周期迁移点 + 周期性），
// 恢复时 running 任务一律回退为 pending：崩溃后不假设任何部分执行进度。
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/azhengyongqin/taskflow/internal/model"
)

// Snapshot 完整队列状态：任务注册表（含状态/尝试次数/时间戳/依赖边）
// 与工作流级配置。Tasks 按提交顺序排列，Seq 保证恢复后 FIFO 决胜不变。
type Snapshot struct {
	WorkflowID        string               `json:"workflow_id"`
	Strategy          model.Strategy       `json:"strategy"`
	MaxConcurrent     int                  `json:"max_concurrent"`
	ContinueOnFailure bool                 `json:"continue_on_failure"`
	Status            model.WorkflowStatus `json:"status"`
	Seq               uint64               `json:"seq"`
	Tasks             []*model.Task        `json:"tasks"`
	TakenAt           time.Time            `json:"taken_at"`
}

// NormalizeForRestore 恢复前修正非持久状态：
// - running 回退 pending（崩溃恢复策略：at-most-once-attempt，不回放进度）
// - ready 回退 pending（就绪集恢复后重算）
// - 暂停中的工作流恢复为 paused，运行中的恢复为 pending 等待重新驱动
func (s *Snapshot) NormalizeForRestore() {
	for _, t := range s.Tasks {
		switch t.Status {
		case model.TaskStatusRunning:
			t.Status = model.TaskStatusPending
			t.StartedAt = nil
		case model.TaskStatusReady:
			t.Status = model.TaskStatusPending
		}
	}
	if s.Status == model.WorkflowStatusRunning {
		s.Status = model.WorkflowStatusPending
	}
}

// ErrNotFound 指定工作流没有持久化快照。
var ErrNotFound = fmt.Errorf("snapshot not found")

// Store 快照后端。实现：FileStore（本地 JSON）、RedisStore、PostgresStore。
type Store interface {
	// Save 覆盖写入工作流快照。
	Save(ctx context.Context, snap *Snapshot) error

	// Load 读取工作流快照；不存在返回 ErrNotFound。
	Load(ctx context.Context, workflowID string) (*Snapshot, error)

	// Delete 删除工作流快照，快照不存在时也返回 nil。
	Delete(ctx context.Context, workflowID string) error

	// Close 释放后端连接。
	Close() error
}
