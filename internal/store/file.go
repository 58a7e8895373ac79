package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore 本地 JSON 快照。每个工作流一个文件：<dir>/<workflow_id>.json。
// 写入先落临时文件再 rename，避免进程中途崩溃留下半截快照。
type FileStore struct {
	dir string
}

// NewFileStore 创建文件快照存储，目录不存在则创建。
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot dir 不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".json")
}

// Save 覆盖写入快照文件。
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if snap.WorkflowID == "" {
		return fmt.Errorf("workflow_id 不能为空")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path(snap.WorkflowID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path(snap.WorkflowID)); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load 读取快照文件；文件不存在返回 ErrNotFound。
func (s *FileStore) Load(_ context.Context, workflowID string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete 删除快照文件（工作流终态后的清理入口），文件不存在视为已删除。
func (s *FileStore) Delete(_ context.Context, workflowID string) error {
	if err := os.Remove(s.path(workflowID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Close 文件存储无需释放。
func (s *FileStore) Close() error { return nil }
