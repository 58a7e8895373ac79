package repository

import (
	"context"
	"errors"

	"github.com/azhengyongqin/taskflow/internal/store"
)

// ErrNotFound 指定工作流在数据库中没有快照记录。
var ErrNotFound = errors.New("snapshot record not found")

// SnapshotRepository 快照仓储接口。
// 抽象持久化层，支持未来迁移到 ClickHouse 等其它后端。
type SnapshotRepository interface {
	// SaveSnapshot 覆盖写入工作流快照（头记录 + 任务行，事务内完成）
	SaveSnapshot(ctx context.Context, snap *store.Snapshot) error

	// LoadSnapshot 读取工作流快照；不存在返回 ErrNotFound
	LoadSnapshot(ctx context.Context, workflowID string) (*store.Snapshot, error)

	// DeleteSnapshot 删除工作流快照（终态清理）
	DeleteSnapshot(ctx context.Context, workflowID string) error
}
