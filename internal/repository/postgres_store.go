package repository

import (
	"context"
	"errors"

	"github.com/azhengyongqin/taskflow/internal/storage/postgres"
	"github.com/azhengyongqin/taskflow/internal/store"
)

// PostgresStore 把 SnapshotRepo 适配成 store.Store，
// 供 engine 在不感知数据库细节的情况下做快照持久化。
type PostgresStore struct {
	repo *SnapshotRepo
	db   *postgres.DB
}

// NewPostgresStore 创建 PostgreSQL 快照后端。
func NewPostgresStore(db *postgres.DB) *PostgresStore {
	return &PostgresStore{
		repo: NewSnapshotRepo(db.DB),
		db:   db,
	}
}

// Save 覆盖写入快照。
func (s *PostgresStore) Save(ctx context.Context, snap *store.Snapshot) error {
	return s.repo.SaveSnapshot(ctx, snap)
}

// Load 读取快照；不存在返回 store.ErrNotFound。
func (s *PostgresStore) Load(ctx context.Context, workflowID string) (*store.Snapshot, error) {
	snap, err := s.repo.LoadSnapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return snap, nil
}

// Delete 删除快照头记录与任务行。
func (s *PostgresStore) Delete(ctx context.Context, workflowID string) error {
	return s.repo.DeleteSnapshot(ctx, workflowID)
}

// Close 关闭数据库连接。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
