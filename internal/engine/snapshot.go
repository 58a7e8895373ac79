package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azhengyongqin/taskflow/internal/graph"
	"github.com/azhengyongqin/taskflow/internal/metrics"
	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/store"
)

// snapshotSaveTimeout 单次快照写入的上限，避免后端抖动拖住调度。
const snapshotSaveTimeout = 5 * time.Second

// buildSnapshotLocked 在单写者边界内构建一致性快照。任务深拷贝，
// 写入过程与调度互不影响。
func (e *Engine) buildSnapshotLocked() *store.Snapshot {
	if e.st == nil {
		return nil
	}
	tasks := e.resolver.Tasks()
	cloned := make([]*model.Task, 0, len(tasks))
	for _, t := range tasks {
		cloned = append(cloned, t.Clone())
	}
	return &store.Snapshot{
		WorkflowID:        e.workflowID,
		Strategy:          e.strategy,
		MaxConcurrent:     e.maxConcurrent,
		ContinueOnFailure: e.continueOnFailure,
		Status:            e.status,
		Seq:               e.resolver.Seq(),
		Tasks:             cloned,
		TakenAt:           time.Now(),
	}
}

// snapshot 加锁构建快照后写入后端。
func (e *Engine) snapshot(reason string) {
	if e.st == nil {
		return
	}
	e.mu.Lock()
	snap := e.buildSnapshotLocked()
	e.mu.Unlock()
	e.saveSnapshot(snap, reason)
}

// saveSnapshot 持久化失败只记日志与指标，不影响调度。
func (e *Engine) saveSnapshot(snap *store.Snapshot, reason string) {
	if e.st == nil || snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()
	if err := e.st.Save(ctx, snap); err != nil {
		metrics.RecordSnapshot("error")
		metrics.RecordError("snapshot", "save")
		e.log.Error().
			Str("workflow_id", e.workflowID).
			Str("reason", reason).
			Err(err).
			Msg("快照写入失败")
		return
	}
	metrics.RecordSnapshot("ok")
	e.log.Debug().
		Str("workflow_id", e.workflowID).
		Str("reason", reason).
		Int("tasks", len(snap.Tasks)).
		Msg("快照已写入")
}

// Snapshot 手动触发一次快照写入。
func (e *Engine) Snapshot() error {
	if e.st == nil {
		return errors.New("snapshot store is not configured")
	}
	e.snapshot("manual")
	return nil
}

// DeleteSnapshot 清理持久化快照。只允许在工作流终态后调用，
// 运行中的快照是崩溃恢复的依据，不能删。
func (e *Engine) DeleteSnapshot(ctx context.Context) error {
	if e.st == nil {
		return errors.New("snapshot store is not configured")
	}
	e.mu.Lock()
	workflowID := e.workflowID
	status := e.status
	e.mu.Unlock()
	if !status.Terminal() {
		return fmt.Errorf("workflow %s 处于 %s，只有终态工作流可以清理快照", workflowID, status)
	}
	if err := e.st.Delete(ctx, workflowID); err != nil {
		metrics.RecordError("snapshot", "delete")
		return fmt.Errorf("delete snapshot: %w", err)
	}
	e.log.Info().Str("workflow_id", workflowID).Msg("快照已清理")
	return nil
}

// Restore 用持久化快照重建引擎状态，只能在空引擎上调用。
// running/ready 回退为 pending（崩溃后不假设部分执行进度），
// 运行中的工作流恢复为 pending，等待 ProcessQueue 重新驱动。
func (e *Engine) Restore(snap *store.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processing || e.resolver.Len() > 0 {
		return fmt.Errorf("workflow %s: restore requires a fresh engine", e.workflowID)
	}

	snap.NormalizeForRestore()
	resolver := graph.New(snap.ContinueOnFailure)
	if err := resolver.Load(snap.Tasks, snap.Seq); err != nil {
		return fmt.Errorf("restore workflow %s: %w", snap.WorkflowID, err)
	}

	e.resolver = resolver
	e.workflowID = snap.WorkflowID
	e.strategy = snap.Strategy
	if e.maxConcurrent = snap.MaxConcurrent; e.maxConcurrent <= 0 {
		e.maxConcurrent = 1
	}
	e.continueOnFailure = snap.ContinueOnFailure
	e.status = snap.Status
	e.startedAt = nil
	e.finishedAt = nil

	e.log.Info().
		Str("workflow_id", e.workflowID).
		Str("status", string(e.status)).
		Int("tasks", len(snap.Tasks)).
		Time("taken_at", snap.TakenAt).
		Msg("已从快照恢复工作流")
	return nil
}
