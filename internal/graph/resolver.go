// Package graph 维护任务注册表与依赖图：提交校验（重复 id / 未知依赖 / 成环）、
// 就绪集计算、失败传播。所有方法都不做内部加锁，注册表由 engine 的协调循环
// 单写者持有，并发控制在上层完成。
package graph

import (
	"fmt"
	"time"

	"github.com/azhengyongqin/taskflow/internal/model"
)

// Resolver 依赖图解析器。
type Resolver struct {
	tasks      map[string]*model.Task
	dependents map[string][]string // task_id -> 依赖它的任务
	order      []string            // 提交顺序（FIFO 决胜与快照稳定输出）
	seq        uint64

	// continueOnFailure 为 true 时，依赖处于任意终态即视为"已满足"，
	// 失败不再向下游传播 blocked。
	continueOnFailure bool
}

// New 创建空的解析器。
func New(continueOnFailure bool) *Resolver {
	return &Resolver{
		tasks:             make(map[string]*model.Task),
		dependents:        make(map[string][]string),
		continueOnFailure: continueOnFailure,
	}
}

// Add 提交任务。校验失败返回 *model.ValidationError，且不产生任何局部修改。
// 依赖必须引用同一队列中已存在的任务，因此按提交序构图天然无环；
// 这里仍做一次 DFS 校验，兜住自依赖与快照恢复出来的异常图。
func (r *Resolver) Add(t *model.Task) error {
	if t == nil || t.ID == "" {
		return &model.ValidationError{Reason: "invalid_descriptor", Detail: "task id 不能为空"}
	}
	if !t.Priority.Valid() {
		return &model.ValidationError{TaskID: t.ID, Reason: "invalid_descriptor", Detail: fmt.Sprintf("priority %d 越界", t.Priority)}
	}
	if _, ok := r.tasks[t.ID]; ok {
		return &model.ValidationError{TaskID: t.ID, Reason: "duplicate_id", Detail: "同名任务已存在"}
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return &model.ValidationError{TaskID: t.ID, Reason: "cycle_detected", Detail: "任务不能依赖自身"}
		}
		if _, ok := r.tasks[dep]; !ok {
			return &model.ValidationError{TaskID: t.ID, Reason: "unknown_dependency", Detail: fmt.Sprintf("依赖 %s 未注册", dep)}
		}
	}

	// 试插入后整图查环；发现环则回滚，保证无局部修改。
	r.tasks[t.ID] = t
	if cycleNode, ok := r.findCycle(); ok {
		delete(r.tasks, t.ID)
		return &model.ValidationError{TaskID: t.ID, Reason: "cycle_detected", Detail: fmt.Sprintf("依赖成环，涉及任务 %s", cycleNode)}
	}

	r.seq++
	t.Seq = r.seq
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = model.TaskStatusPending
	}
	r.order = append(r.order, t.ID)
	for _, dep := range t.Dependencies {
		r.dependents[dep] = append(r.dependents[dep], t.ID)
	}
	return nil
}

// findCycle 三色 DFS 查环，返回环上的一个节点 id。
func (r *Resolver) findCycle() (string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.tasks))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		color[id] = gray
		for _, dep := range r.tasks[id].Dependencies {
			if _, ok := r.tasks[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				return dep, true
			case white:
				if n, found := visit(dep); found {
					return n, true
				}
			}
		}
		color[id] = black
		return "", false
	}

	for id := range r.tasks {
		if color[id] == white {
			if n, found := visit(id); found {
				return n, true
			}
		}
	}
	return "", false
}

// Get 按 id 取任务。
func (r *Resolver) Get(id string) (*model.Task, bool) {
	t, ok := r.tasks[id]
	return t, ok
}

// Len 注册任务总数。
func (r *Resolver) Len() int { return len(r.tasks) }

// Tasks 按提交顺序返回全部任务。
func (r *Resolver) Tasks() []*model.Task {
	out := make([]*model.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// Seq 当前提交序号计数，随快照持久化。
func (r *Resolver) Seq() uint64 { return r.seq }

// RemoveCompleted 清理 success 任务，仅移除下游全部终态的任务：
// 未完成的下游还要靠依赖状态做就绪判断，上游不能悬空。返回被移除的 id。
func (r *Resolver) RemoveCompleted() []string {
	removed := make(map[string]bool)
	for _, id := range r.order {
		t := r.tasks[id]
		if t.Status != model.TaskStatusSuccess {
			continue
		}
		safe := true
		for _, depID := range r.dependents[id] {
			if d, ok := r.tasks[depID]; ok && !d.Status.Terminal() {
				safe = false
				break
			}
		}
		if safe {
			removed[id] = true
		}
	}
	if len(removed) == 0 {
		return nil
	}

	var out []string
	order := r.order[:0]
	for _, id := range r.order {
		if removed[id] {
			out = append(out, id)
			delete(r.tasks, id)
			delete(r.dependents, id)
			continue
		}
		order = append(order, id)
	}
	r.order = order
	for id, deps := range r.dependents {
		kept := deps[:0]
		for _, d := range deps {
			if !removed[d] {
				kept = append(kept, d)
			}
		}
		r.dependents[id] = kept
	}
	return out
}

// Dependents 直接依赖 id 的任务列表。
func (r *Resolver) Dependents(id string) []string {
	return append([]string(nil), r.dependents[id]...)
}

// DepsSatisfied 判断任务的全部依赖是否满足调度条件：
// 依赖 success；或 continue_on_failure 下依赖处于任意终态。
func (r *Resolver) DepsSatisfied(t *model.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := r.tasks[dep]
		if !ok {
			return false
		}
		if d.Status == model.TaskStatusSuccess {
			continue
		}
		if r.continueOnFailure && d.Status.Terminal() {
			continue
		}
		return false
	}
	return true
}

// DepsAllSuccess 判断任务的全部依赖是否都以 success 结束。
// 与 DepsSatisfied 的区别：不把 continue_on_failure 下的失败终态算作满足，
// 供 adaptive 严格并发宽度统计使用。
func (r *Resolver) DepsAllSuccess(t *model.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := r.tasks[dep]
		if !ok || d.Status != model.TaskStatusSuccess {
			return false
		}
	}
	return true
}

// Load 从快照整体重建注册表（跳过逐条校验，但仍整图查环兜底）。
// seq 恢复为快照中的计数，保证后续新任务的 FIFO 决胜顺序延续。
func (r *Resolver) Load(tasks []*model.Task, seq uint64) error {
	for _, t := range tasks {
		if t.ID == "" {
			return &model.ValidationError{Reason: "invalid_descriptor", Detail: "快照中存在空 id 任务"}
		}
		if _, ok := r.tasks[t.ID]; ok {
			return &model.ValidationError{TaskID: t.ID, Reason: "duplicate_id", Detail: "快照中任务 id 重复"}
		}
		r.tasks[t.ID] = t
	}
	if cycleNode, ok := r.findCycle(); ok {
		r.tasks = make(map[string]*model.Task)
		return &model.ValidationError{Reason: "cycle_detected", Detail: fmt.Sprintf("快照依赖图成环，涉及任务 %s", cycleNode)}
	}
	for _, t := range tasks {
		r.order = append(r.order, t.ID)
		for _, dep := range t.Dependencies {
			r.dependents[dep] = append(r.dependents[dep], t.ID)
		}
	}
	if seq > r.seq {
		r.seq = seq
	}
	return nil
}

// ReadySet 当前可派发候选：pending 且依赖满足，或 retry_pending 且退避已到期
// （依赖同样需满足）。每次任务完成、依赖解除或退避到期后都应重新计算。
func (r *Resolver) ReadySet(now time.Time) []*model.Task {
	var out []*model.Task
	for _, id := range r.order {
		t := r.tasks[id]
		switch t.Status {
		case model.TaskStatusPending:
			if r.DepsSatisfied(t) {
				out = append(out, t)
			}
		case model.TaskStatusRetryPending:
			if t.WakeAt != nil && !t.WakeAt.After(now) && r.DepsSatisfied(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// NextWake 最早的 retry_pending 唤醒时间；没有等待退避的任务时 ok=false。
func (r *Resolver) NextWake() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, t := range r.tasks {
		if t.Status != model.TaskStatusRetryPending || t.WakeAt == nil {
			continue
		}
		if !found || t.WakeAt.Before(earliest) {
			earliest = *t.WakeAt
			found = true
		}
	}
	return earliest, found
}

// PropagateFailure 上游任务终态失败后，将其所有直接与间接的非终态下游
// 置为 blocked 并记录传播来源。返回被 block 的任务。
// continue_on_failure 为 true 时失败不传播，返回空。
func (r *Resolver) PropagateFailure(failedID string) []*model.Task {
	if r.continueOnFailure {
		return nil
	}

	var blocked []*model.Task
	queue := []string{failedID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, depID := range r.dependents[cur] {
			t, ok := r.tasks[depID]
			if !ok || t.Status.Terminal() || t.Status == model.TaskStatusRunning {
				continue
			}
			t.Status = model.TaskStatusBlocked
			t.LastError = (&model.DependencyFailedError{TaskID: t.ID, DependencyID: cur}).Error()
			now := time.Now()
			t.FinishedAt = &now
			blocked = append(blocked, t)
			queue = append(queue, depID)
		}
	}
	return blocked
}

// Levels 按依赖层级分组（第 0 层无依赖，第 n 层只依赖前 n-1 层），
// 用于诊断接口展示可并行的任务组。
func (r *Resolver) Levels() [][]string {
	placed := make(map[string]bool, len(r.tasks))
	var levels [][]string

	for len(placed) < len(r.tasks) {
		var level []string
		for _, id := range r.order {
			if placed[id] {
				continue
			}
			ok := true
			for _, dep := range r.tasks[id].Dependencies {
				if !placed[dep] {
					ok = false
					break
				}
			}
			if ok {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			// 图在校验后不应出现环，这里只防御快照损坏导致的死循环。
			break
		}
		for _, id := range level {
			placed[id] = true
		}
		levels = append(levels, level)
	}
	return levels
}
