package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore Redis 快照后端。快照整体序列化为 JSON 存单 key，
// 适合多个调度进程共享一套快照存储的部署形态。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 快照存储（redisURL 形如 redis://host:port/db）。
// ttl <= 0 表示快照不过期。
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// snapshotKey 生成快照 key。
func snapshotKey(workflowID string) string {
	return "taskflow:snapshot:" + workflowID
}

// Save 覆盖写入快照。
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap.WorkflowID == "" {
		return fmt.Errorf("workflow_id 不能为空")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, snapshotKey(snap.WorkflowID), data, s.ttl).Err()
}

// Load 读取快照；key 不存在返回 ErrNotFound。
func (s *RedisStore) Load(ctx context.Context, workflowID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(workflowID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete 删除快照（工作流终态后的清理入口）。
func (s *RedisStore) Delete(ctx context.Context, workflowID string) error {
	return s.client.Del(ctx, snapshotKey(workflowID)).Err()
}

// Client 暴露底层客户端（健康检查复用同一连接）。
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
