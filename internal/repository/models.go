package repository

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/taskflow/internal/model"
)

// WorkflowSnapshotModel GORM 模型 - 对应 workflow_snapshot 表（快照头记录）
type WorkflowSnapshotModel struct {
	ID                int64     `gorm:"primaryKey;autoIncrement;column:id"`
	WorkflowID        string    `gorm:"column:workflow_id;uniqueIndex;type:text;not null"`
	Strategy          string    `gorm:"column:strategy;type:text;not null"`
	MaxConcurrent     int       `gorm:"column:max_concurrent;default:1"`
	ContinueOnFailure bool      `gorm:"column:continue_on_failure;default:false"`
	Status            string    `gorm:"column:status;type:text;not null"`
	Seq               int64     `gorm:"column:seq;default:0"`
	TakenAt           time.Time `gorm:"column:taken_at;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (WorkflowSnapshotModel) TableName() string { return "workflow_snapshot" }

// SnapshotTaskModel GORM 模型 - 对应 workflow_snapshot_task 表（快照任务行）
type SnapshotTaskModel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement;column:id"`
	WorkflowID   string          `gorm:"column:workflow_id;type:text;not null;uniqueIndex:uq_snapshot_task,priority:1;index:idx_snapshot_task_workflow"`
	TaskID       string          `gorm:"column:task_id;type:text;not null;uniqueIndex:uq_snapshot_task,priority:2"`
	Priority     int             `gorm:"column:priority;default:2"`
	Seq          int64           `gorm:"column:seq;not null"`
	Status       string          `gorm:"column:status;type:text;not null"`
	Attempt      int             `gorm:"column:attempt;default:0"`
	MaxAttempts  int             `gorm:"column:max_attempts;default:3"`
	TimeoutMs    int64           `gorm:"column:timeout_ms;default:0"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb"`
	Dependencies json.RawMessage `gorm:"column:dependencies;type:jsonb;not null"`
	Tags         json.RawMessage `gorm:"column:tags;type:jsonb"`
	Result       json.RawMessage `gorm:"column:result;type:jsonb"`
	LastError    *string         `gorm:"column:last_error;type:text"`
	ErrorHistory json.RawMessage `gorm:"column:error_history;type:jsonb"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	FinishedAt   *time.Time      `gorm:"column:finished_at"`
	WakeAt       *time.Time      `gorm:"column:wake_at"`
}

// TableName 指定表名
func (SnapshotTaskModel) TableName() string { return "workflow_snapshot_task" }

// ToTask 转换为 Task 实体
func (m *SnapshotTaskModel) ToTask() *model.Task {
	t := &model.Task{
		ID:          m.TaskID,
		Priority:    model.Priority(m.Priority),
		Seq:         uint64(m.Seq),
		Status:      model.TaskStatus(m.Status),
		Attempt:     m.Attempt,
		MaxAttempts: m.MaxAttempts,
		Timeout:     time.Duration(m.TimeoutMs) * time.Millisecond,
		Payload:     m.Payload,
		Result:      m.Result,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		WakeAt:      m.WakeAt,
	}
	if m.LastError != nil {
		t.LastError = *m.LastError
	}
	if m.Dependencies != nil {
		_ = json.Unmarshal(m.Dependencies, &t.Dependencies)
	}
	if m.Tags != nil {
		_ = json.Unmarshal(m.Tags, &t.Tags)
	}
	if m.ErrorHistory != nil {
		_ = json.Unmarshal(m.ErrorHistory, &t.ErrorHistory)
	}
	return t
}

// TaskToModel 从 Task 实体创建模型
func TaskToModel(workflowID string, t *model.Task) SnapshotTaskModel {
	m := SnapshotTaskModel{
		WorkflowID:  workflowID,
		TaskID:      t.ID,
		Priority:    int(t.Priority),
		Seq:         int64(t.Seq),
		Status:      string(t.Status),
		Attempt:     t.Attempt,
		MaxAttempts: t.MaxAttempts,
		TimeoutMs:   t.Timeout.Milliseconds(),
		Payload:     t.Payload,
		Result:      t.Result,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
		WakeAt:      t.WakeAt,
	}
	if t.LastError != "" {
		m.LastError = &t.LastError
	}
	// 依赖边必须落库，恢复时据此重建图
	deps := t.Dependencies
	if deps == nil {
		deps = []string{}
	}
	m.Dependencies, _ = json.Marshal(deps)
	if len(t.Tags) > 0 {
		m.Tags, _ = json.Marshal(t.Tags)
	}
	if len(t.ErrorHistory) > 0 {
		m.ErrorHistory, _ = json.Marshal(t.ErrorHistory)
	}
	return m
}
