// Package readyqueue 就绪任务的派发队列。
// 排序键固定为 (priority 升序, seq 升序)：高优先级先出队，同优先级按提交顺序
// FIFO 决胜，派发顺序完全确定。
package readyqueue

import (
	"container/heap"

	"github.com/azhengyongqin/taskflow/internal/model"
)

// Queue 优先级就绪队列。非并发安全，由 engine 协调循环独占。
type Queue struct {
	h taskHeap
	// member 去重：就绪集按事件重算，同一任务可能被重复发现。
	member map[string]bool
}

// New 创建空队列。
func New() *Queue {
	return &Queue{member: make(map[string]bool)}
}

// Push 入队；同一任务重复 Push 是空操作。
func (q *Queue) Push(t *model.Task) {
	if q.member[t.ID] {
		return
	}
	q.member[t.ID] = true
	heap.Push(&q.h, t)
}

// Pop 取出当前最高优先级任务；队列为空返回 nil。
func (q *Queue) Pop() *model.Task {
	if q.h.Len() == 0 {
		return nil
	}
	t := heap.Pop(&q.h).(*model.Task)
	delete(q.member, t.ID)
	return t
}

// Remove 按 id 移除（任务被取消/阻塞后从队列剔除）。
func (q *Queue) Remove(id string) bool {
	if !q.member[id] {
		return false
	}
	for i, t := range q.h {
		if t.ID == id {
			heap.Remove(&q.h, i)
			delete(q.member, id)
			return true
		}
	}
	return false
}

// Len 队列长度。
func (q *Queue) Len() int { return q.h.Len() }

// Contains 判断任务是否已在队列中。
func (q *Queue) Contains(id string) bool { return q.member[id] }

// Clear 清空队列，返回被清出的任务。
func (q *Queue) Clear() []*model.Task {
	out := make([]*model.Task, 0, q.h.Len())
	for q.h.Len() > 0 {
		out = append(out, heap.Pop(&q.h).(*model.Task))
	}
	q.member = make(map[string]bool)
	return out
}

type taskHeap []*model.Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*model.Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
