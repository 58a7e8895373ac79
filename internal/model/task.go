package model

import (
	"encoding/json"
	"time"
)

// Task 调度单元。Payload 对调度器完全不透明，由调用方注入的
// executor 负责解释；调度器只关心优先级、依赖和状态机。
type Task struct {
	ID           string          `json:"id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Priority     Priority        `json:"priority"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Tags         []string        `json:"tags,omitempty"`

	Status      TaskStatus    `json:"status"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Timeout     time.Duration `json:"timeout"`

	// Seq 提交顺序号，同优先级任务按 FIFO 决胜。
	Seq uint64 `json:"seq"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// WakeAt retry_pending 状态的唤醒时间（退避到期点）。
	WakeAt *time.Time `json:"wake_at,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`

	LastError    string   `json:"last_error,omitempty"`
	ErrorHistory []string `json:"error_history,omitempty"`
}

// Clone 深拷贝，用于对外返回一致性快照而不暴露内部指针。
func (t *Task) Clone() *Task {
	c := *t
	if t.Payload != nil {
		c.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	if t.Result != nil {
		c.Result = append(json.RawMessage(nil), t.Result...)
	}
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.Tags = append([]string(nil), t.Tags...)
	c.ErrorHistory = append([]string(nil), t.ErrorHistory...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.FinishedAt != nil {
		v := *t.FinishedAt
		c.FinishedAt = &v
	}
	if t.WakeAt != nil {
		v := *t.WakeAt
		c.WakeAt = &v
	}
	return &c
}

// HasTag 判断任务是否带有指定标签。
func (t *Task) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// Duration 返回执行耗时；尚未结束返回 0。
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}
