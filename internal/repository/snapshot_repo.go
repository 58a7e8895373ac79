package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/store"
)

// SnapshotRepo SnapshotRepository 的 GORM/PostgreSQL 实现。
type SnapshotRepo struct {
	db *gorm.DB
}

var _ SnapshotRepository = (*SnapshotRepo)(nil)

// NewSnapshotRepo 创建 SnapshotRepo
func NewSnapshotRepo(db *gorm.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// SaveSnapshot 覆盖写入快照。头记录 upsert，任务行先删后插，整体一个事务，
// 避免读到半新半旧的快照。
func (r *SnapshotRepo) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	if snap.WorkflowID == "" {
		return errors.New("workflow_id 不能为空")
	}

	head := WorkflowSnapshotModel{
		WorkflowID:        snap.WorkflowID,
		Strategy:          string(snap.Strategy),
		MaxConcurrent:     snap.MaxConcurrent,
		ContinueOnFailure: snap.ContinueOnFailure,
		Status:            string(snap.Status),
		Seq:               int64(snap.Seq),
		TakenAt:           snap.TakenAt,
	}

	rows := make([]SnapshotTaskModel, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		rows = append(rows, TaskToModel(snap.WorkflowID, t))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "workflow_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"strategy", "max_concurrent", "continue_on_failure", "status", "seq", "taken_at", "updated_at",
			}),
		}).Create(&head).Error; err != nil {
			return fmt.Errorf("upsert snapshot head: %w", err)
		}

		if err := tx.Where("workflow_id = ?", snap.WorkflowID).Delete(&SnapshotTaskModel{}).Error; err != nil {
			return fmt.Errorf("clear snapshot tasks: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert snapshot tasks: %w", err)
			}
		}
		return nil
	})
}

// LoadSnapshot 读取快照；不存在返回 ErrNotFound。
func (r *SnapshotRepo) LoadSnapshot(ctx context.Context, workflowID string) (*store.Snapshot, error) {
	var head WorkflowSnapshotModel
	err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).First(&head).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot head: %w", err)
	}

	var rows []SnapshotTaskModel
	if err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("seq asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load snapshot tasks: %w", err)
	}

	snap := &store.Snapshot{
		WorkflowID:        head.WorkflowID,
		Strategy:          model.Strategy(head.Strategy),
		MaxConcurrent:     head.MaxConcurrent,
		ContinueOnFailure: head.ContinueOnFailure,
		Status:            model.WorkflowStatus(head.Status),
		Seq:               uint64(head.Seq),
		TakenAt:           head.TakenAt,
	}
	for i := range rows {
		snap.Tasks = append(snap.Tasks, rows[i].ToTask())
	}
	return snap, nil
}

// DeleteSnapshot 删除快照头记录与任务行。
func (r *SnapshotRepo) DeleteSnapshot(ctx context.Context, workflowID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", workflowID).Delete(&SnapshotTaskModel{}).Error; err != nil {
			return err
		}
		return tx.Where("workflow_id = ?", workflowID).Delete(&WorkflowSnapshotModel{}).Error
	})
}
