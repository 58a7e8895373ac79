package readyqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/taskflow/internal/model"
)

func task(id string, p model.Priority, seq uint64) *model.Task {
	return &model.Task{ID: id, Priority: p, Seq: seq}
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := New()
	q.Push(task("bg", model.PriorityBackground, 1))
	q.Push(task("crit", model.PriorityCritical, 2))
	q.Push(task("norm", model.PriorityNormal, 3))
	q.Push(task("high", model.PriorityHigh, 4))

	var got []string
	for q.Len() > 0 {
		got = append(got, q.Pop().ID)
	}
	assert.Equal(t, []string{"crit", "high", "norm", "bg"}, got, "数值小的优先级先出队")
}

func TestQueue_FIFOTieBreak(t *testing.T) {
	q := New()
	q.Push(task("third", model.PriorityNormal, 30))
	q.Push(task("first", model.PriorityNormal, 10))
	q.Push(task("second", model.PriorityNormal, 20))

	assert.Equal(t, "first", q.Pop().ID)
	assert.Equal(t, "second", q.Pop().ID)
	assert.Equal(t, "third", q.Pop().ID, "同优先级按提交顺序出队")
}

func TestQueue_DedupAndRemove(t *testing.T) {
	q := New()
	a := task("a", model.PriorityNormal, 1)
	q.Push(a)
	q.Push(a)
	assert.Equal(t, 1, q.Len(), "重复Push不生效")

	q.Push(task("b", model.PriorityNormal, 2))
	require.True(t, q.Remove("a"))
	assert.False(t, q.Contains("a"))
	assert.False(t, q.Remove("a"), "重复Remove返回false")

	assert.Equal(t, "b", q.Pop().ID)
	assert.Nil(t, q.Pop(), "空队列Pop返回nil")
}

func TestQueue_Clear(t *testing.T) {
	q := New()
	q.Push(task("a", model.PriorityLow, 1))
	q.Push(task("b", model.PriorityCritical, 2))

	cleared := q.Clear()
	assert.Len(t, cleared, 2)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "b", cleared[0].ID, "清空按优先级顺序吐出")
}
