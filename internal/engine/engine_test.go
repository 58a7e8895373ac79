package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/retry"
	"github.com/azhengyongqin/taskflow/internal/store"
)

// fastRetry 测试用的快速退避配置。
func fastRetry(maxAttempts int) retry.Config {
	return retry.Config{
		MaxAttempts:       maxAttempts,
		BackoffBase:       5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        50 * time.Millisecond,
	}
}

func okExecutor(ctx context.Context, t *model.Task) (json.RawMessage, error) {
	return json.RawMessage(`"ok"`), nil
}

func TestProcessQueueEmpty(t *testing.T) {
	e := New(Options{WorkflowID: "wf-empty"})
	summary, err := e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status, "空队列应直接收束为 completed")
	assert.Equal(t, 0, summary.Total)
}

func TestSequentialDispatchOrder(t *testing.T) {
	e := New(Options{
		WorkflowID: "wf-order",
		Strategy:   model.StrategySequential,
	})

	// 提交顺序与优先级刻意错开
	_, err := e.AddTask(TaskSpec{ID: "bg", Priority: "background"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "n1", Priority: "normal"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "crit", Priority: "critical"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "n2", Priority: "normal"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "high", Priority: "high"})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
	// 高优先级先出队，同优先级按提交顺序 FIFO 决胜
	assert.Equal(t, []string{"crit", "high", "n1", "n2", "bg"}, order, "派发顺序应为优先级升序 + FIFO 决胜")
}

func TestParallelConcurrencyCap(t *testing.T) {
	e := New(Options{
		WorkflowID:    "wf-cap",
		Strategy:      model.StrategyParallel,
		MaxConcurrent: 2,
	})
	for i := 0; i < 6; i++ {
		_, err := e.AddTask(TaskSpec{ID: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}

	var current, peak int64
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
	assert.Equal(t, 6, summary.Completed)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2), "并发执行数不能超过 max_concurrent")
	assert.Equal(t, int64(2), atomic.LoadInt64(&peak), "有积压时应打满并发槽")
}

func TestDependencyOrdering(t *testing.T) {
	e := New(Options{
		WorkflowID:    "wf-deps",
		Strategy:      model.StrategyParallel,
		MaxConcurrent: 4,
	})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "b", Dependencies: []string{"a"}})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "c", Dependencies: []string{"a", "b"}})
	require.NoError(t, err)

	var mu sync.Mutex
	started := make(map[string]time.Time)
	finished := make(map[string]time.Time)
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		mu.Lock()
		started[task.ID] = time.Now()
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		finished[task.ID] = time.Now()
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
	assert.True(t, finished["a"].Before(started["b"]), "b 必须在 a 结束后才开始")
	assert.True(t, finished["b"].Before(started["c"]), "c 必须在 b 结束后才开始")
}

func TestRetryThenSuccess(t *testing.T) {
	e := New(Options{
		WorkflowID: "wf-retry",
		Retry:      fastRetry(3),
	})
	_, err := e.AddTask(TaskSpec{ID: "flaky"})
	require.NoError(t, err)

	var calls int32
	start := time.Now()
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient failure")
		}
		return json.RawMessage(`"done"`), nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "前两次失败后应重试到第三次")
	// 两次退避：5ms + 10ms
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond, "重试前必须等待指数退避")

	task, ok := e.GetTask("flaky")
	require.True(t, ok)
	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, 3, task.Attempt)
	assert.Len(t, task.ErrorHistory, 2, "每次失败尝试都应记录错误历史")
	assert.Contains(t, task.ErrorHistory[0], "attempt 1")
}

func TestRetryExhaustedPropagatesBlocked(t *testing.T) {
	e := New(Options{
		WorkflowID: "wf-fail",
		Retry:      fastRetry(2),
	})
	_, err := e.AddTask(TaskSpec{ID: "root"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "child", Dependencies: []string{"root"}})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "grandchild", Dependencies: []string{"child"}})
	require.NoError(t, err)

	var failedHook []string
	e.onTaskFailed = func(task *model.Task) { failedHook = append(failedHook, task.ID) }

	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusFailed, summary.Status, "存在失败任务时工作流应收束为 failed")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Blocked, "失败应传播到全部直接与间接下游")
	assert.Equal(t, []string{"root"}, summary.RootCauses, "根因只包含 failed 任务，不含被传播的 blocked")
	assert.Equal(t, []string{"root"}, failedHook)

	root, _ := e.GetTask("root")
	assert.Equal(t, model.TaskStatusFailed, root.Status)
	assert.Equal(t, 2, root.Attempt, "重试耗尽前应打满 max_attempts")

	child, _ := e.GetTask("child")
	assert.Equal(t, model.TaskStatusBlocked, child.Status)
	assert.Contains(t, child.LastError, "dependency root failed")
}

func TestContinueOnFailure(t *testing.T) {
	e := New(Options{
		WorkflowID:        "wf-cof",
		ContinueOnFailure: true,
		Retry:             fastRetry(1),
	})
	_, err := e.AddTask(TaskSpec{ID: "bad"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "after", Dependencies: []string{"bad"}})
	require.NoError(t, err)

	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		if task.ID == "bad" {
			return nil, errors.New("boom")
		}
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Blocked, "continue_on_failure 下失败不传播")
	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status, "被容忍的失败不应让工作流 failed")
	assert.Equal(t, []string{"bad"}, summary.RootCauses, "汇总仍需带失败清单")
	after, _ := e.GetTask("after")
	assert.Equal(t, model.TaskStatusSuccess, after.Status, "下游在上游失败后仍应执行")
}

func TestTaskTimeout(t *testing.T) {
	e := New(Options{
		WorkflowID: "wf-timeout",
		Retry:      fastRetry(1),
	})
	_, err := e.AddTask(TaskSpec{ID: "slow", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		select {
		case <-time.After(500 * time.Millisecond):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusFailed, summary.Status)
	assert.Less(t, time.Since(start), 300*time.Millisecond, "超时后应立即回收执行槽，不等待 executor 退出")

	task, _ := e.GetTask("slow")
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.LastError, "timed out", "超时应归类为 timeout 错误")
	assert.ErrorIs(t, &model.TimeoutError{}, model.ErrTimeout)
}

func TestTimeoutRetries(t *testing.T) {
	e := New(Options{
		WorkflowID: "wf-timeout-retry",
		Retry:      fastRetry(2),
	})
	_, err := e.AddTask(TaskSpec{ID: "slow-then-fast", Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	var calls int32
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status, "超时与执行失败一样参与重试")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCancelWorkflow(t *testing.T) {
	e := New(Options{
		WorkflowID:    "wf-cancel",
		Strategy:      model.StrategyParallel,
		MaxConcurrent: 2,
	})
	for i := 0; i < 4; i++ {
		_, err := e.AddTask(TaskSpec{ID: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}

	started := make(chan string, 4)
	done := make(chan *model.WorkflowSummary, 1)
	go func() {
		summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
			started <- task.ID
			<-ctx.Done()
			return nil, ctx.Err()
		})
		assert.NoError(t, err)
		done <- summary
	}()

	// 等两个槽都被占用后取消
	<-started
	<-started
	require.NoError(t, e.Cancel())

	select {
	case summary := <-done:
		assert.Equal(t, model.WorkflowStatusCancelled, summary.Status)
		assert.Equal(t, 4, summary.Cancelled, "在途与未开始的任务都应落 cancelled")
		assert.Equal(t, 0, summary.Completed)
	case <-time.After(2 * time.Second):
		t.Fatal("取消后协调循环未退出")
	}

	// 取消不可逆
	assert.NoError(t, e.Cancel(), "重复取消应为空操作")
	assert.Error(t, e.Resume(), "取消后不能恢复")
	_, err := e.AddTask(TaskSpec{ID: "late"})
	assert.Error(t, err, "终态工作流不再接收任务")
}

func TestContextCancellation(t *testing.T) {
	e := New(Options{WorkflowID: "wf-ctx"})
	_, err := e.AddTask(TaskSpec{ID: "hang"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	summary, err := e.ProcessQueue(ctx, func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusCancelled, summary.Status, "ctx 取消等价于工作流取消")
}

func TestPauseResume(t *testing.T) {
	e := New(Options{
		WorkflowID: "wf-pause",
		Strategy:   model.StrategySequential,
	})
	_, err := e.AddTask(TaskSpec{ID: "first"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "second"})
	require.NoError(t, err)

	started := make(chan string, 2)
	release := make(chan struct{})
	done := make(chan *model.WorkflowSummary, 1)
	go func() {
		summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
			started <- task.ID
			if task.ID == "first" {
				<-release
			}
			return nil, nil
		})
		assert.NoError(t, err)
		done <- summary
	}()

	require.Equal(t, "first", <-started)
	require.NoError(t, e.Pause())
	close(release) // 在途任务继续执行到本次尝试结束

	// 暂停期间不派发新任务
	select {
	case id := <-started:
		t.Fatalf("暂停期间不应派发任务，但 %s 已开始", id)
	case <-time.After(50 * time.Millisecond):
	}
	first, _ := e.GetTask("first")
	assert.Equal(t, model.TaskStatusSuccess, first.Status, "在途任务不被暂停打断")
	assert.Equal(t, model.WorkflowStatusPaused, e.WorkflowStatus())

	require.NoError(t, e.Resume())
	assert.Equal(t, "second", <-started)

	select {
	case summary := <-done:
		assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
		assert.Equal(t, 2, summary.Completed)
	case <-time.After(2 * time.Second):
		t.Fatal("恢复后协调循环未收束")
	}
}

func TestPauseResumeStateGuards(t *testing.T) {
	e := New(Options{WorkflowID: "wf-guards"})
	assert.Error(t, e.Pause(), "pending 状态不能暂停")
	assert.Error(t, e.Resume(), "非 paused 状态不能恢复")
}

func TestAddTaskValidation(t *testing.T) {
	e := New(Options{WorkflowID: "wf-validate"})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)

	_, err = e.AddTask(TaskSpec{ID: "a"})
	assert.ErrorIs(t, err, model.ErrValidation, "重复 id 应拒绝")

	_, err = e.AddTask(TaskSpec{ID: "b", Dependencies: []string{"ghost"}})
	assert.ErrorIs(t, err, model.ErrValidation, "未知依赖应拒绝")

	_, err = e.AddTask(TaskSpec{ID: "c", Dependencies: []string{"c"}})
	assert.ErrorIs(t, err, model.ErrValidation, "自依赖应拒绝")

	// 校验失败不影响已注册任务
	id, err := e.AddTask(TaskSpec{ID: "b", Dependencies: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestAddTaskGeneratesID(t *testing.T) {
	e := New(Options{WorkflowID: "wf-genid"})
	id, err := e.AddTask(TaskSpec{})
	require.NoError(t, err)
	assert.NotEmpty(t, id, "未指定 id 时应自动生成")

	task, ok := e.GetTask(id)
	require.True(t, ok)
	assert.Equal(t, model.PriorityNormal, task.Priority, "未指定优先级时默认 normal")
}

func TestAddTaskWhileRunning(t *testing.T) {
	e := New(Options{WorkflowID: "wf-dynamic"})
	_, err := e.AddTask(TaskSpec{ID: "seed"})
	require.NoError(t, err)

	var added int32
	summary, err := e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		if task.ID == "seed" && atomic.CompareAndSwapInt32(&added, 0, 1) {
			_, err := e.AddTask(TaskSpec{ID: "late", Dependencies: []string{"seed"}})
			require.NoError(t, err)
		}
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed, "运行期间提交的任务也应被调度")
}

func TestAdaptiveWidth(t *testing.T) {
	e := New(Options{
		WorkflowID:    "wf-adaptive",
		Strategy:      model.StrategyAdaptive,
		MaxConcurrent: 4,
	})
	for i := 0; i < 2; i++ {
		_, err := e.AddTask(TaskSpec{ID: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}

	e.mu.Lock()
	e.refillLocked(time.Now())
	width := e.effectiveWidthLocked()
	e.mu.Unlock()
	assert.Equal(t, 2, width, "adaptive 宽度应为 min(max_concurrent, |ready|)")

	for i := 2; i < 8; i++ {
		_, err := e.AddTask(TaskSpec{ID: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}
	e.mu.Lock()
	e.refillLocked(time.Now())
	width = e.effectiveWidthLocked()
	e.mu.Unlock()
	assert.Equal(t, 4, width, "就绪任务超过 max_concurrent 时封顶")
}

func TestAdaptiveStrictWidth(t *testing.T) {
	e := New(Options{
		WorkflowID:        "wf-strict",
		Strategy:          model.StrategyAdaptive,
		MaxConcurrent:     4,
		ContinueOnFailure: true,
		AdaptiveStrict:    true,
	})
	_, err := e.AddTask(TaskSpec{ID: "dead"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "salvage", Dependencies: []string{"dead"}})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "clean"})
	require.NoError(t, err)

	e.mu.Lock()
	dead, _ := e.resolver.Get("dead")
	dead.Status = model.TaskStatusFailed
	e.refillLocked(time.Now())
	width := e.effectiveWidthLocked()
	e.mu.Unlock()

	// salvage 靠失败依赖放行，可以执行但不计入宽度
	assert.Equal(t, 1, width, "strict 模式下宽度只统计依赖全部 success 的就绪任务")
}

func TestQueueStats(t *testing.T) {
	e := New(Options{WorkflowID: "wf-stats", MaxConcurrent: 3})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "b", Dependencies: []string{"a"}})
	require.NoError(t, err)

	stats := e.GetQueueStats()
	assert.Equal(t, "wf-stats", stats.WorkflowID)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, model.WorkflowStatusPending, stats.Status)

	_, err = e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)
	stats = e.GetQueueStats()
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, model.WorkflowStatusCompleted, stats.Status)
}

func TestTasksByStatusAndTag(t *testing.T) {
	e := New(Options{WorkflowID: "wf-filter", Retry: fastRetry(1)})
	_, err := e.AddTask(TaskSpec{ID: "good", Tags: []string{"etl", "daily"}})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "bad", Tags: []string{"etl"}})
	require.NoError(t, err)

	_, err = e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		if task.ID == "bad" {
			return nil, errors.New("boom")
		}
		return nil, nil
	})
	require.NoError(t, err)

	failed := e.TasksByStatus(model.TaskStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].ID)

	etl := e.TasksByTag("etl")
	assert.Len(t, etl, 2)
	daily := e.TasksByTag("daily")
	require.Len(t, daily, 1)
	assert.Equal(t, "good", daily[0].ID)
}

func TestClearCompleted(t *testing.T) {
	e := New(Options{WorkflowID: "wf-clear"})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)
	_, err = e.AddTask(TaskSpec{ID: "b", Dependencies: []string{"a"}})
	require.NoError(t, err)

	_, err = e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)

	cleared := e.ClearCompleted()
	assert.Equal(t, 2, cleared)
	assert.Empty(t, e.Tasks(), "清理后注册表应为空")
}

func TestOnTaskCompleteHook(t *testing.T) {
	var mu sync.Mutex
	var completed []string
	e := New(Options{
		WorkflowID: "wf-hook",
		OnTaskComplete: func(task *model.Task) {
			mu.Lock()
			completed = append(completed, task.ID)
			mu.Unlock()
		},
	})
	_, err := e.AddTask(TaskSpec{ID: "x"})
	require.NoError(t, err)

	_, err = e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, completed)
}

func TestResultsAreStored(t *testing.T) {
	e := New(Options{WorkflowID: "wf-result"})
	_, err := e.AddTask(TaskSpec{ID: "calc", Payload: json.RawMessage(`{"x":21}`)})
	require.NoError(t, err)

	_, err = e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
		var in struct {
			X int `json:"x"`
		}
		require.NoError(t, json.Unmarshal(task.Payload, &in))
		return json.RawMessage(fmt.Sprintf(`{"y":%d}`, in.X*2)), nil
	})
	require.NoError(t, err)

	task, _ := e.GetTask("calc")
	assert.JSONEq(t, `{"y":42}`, string(task.Result))
}

// memStore 记录快照写入的内存后端。
type memStore struct {
	mu    sync.Mutex
	saves []*store.Snapshot
}

func (m *memStore) Save(_ context.Context, snap *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, snap)
	return nil
}

func (m *memStore) Load(_ context.Context, workflowID string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.saves) - 1; i >= 0; i-- {
		if m.saves[i].WorkflowID == workflowID {
			return m.saves[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Delete(_ context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.saves[:0]
	for _, s := range m.saves {
		if s.WorkflowID != workflowID {
			kept = append(kept, s)
		}
	}
	m.saves = kept
	return nil
}

func (m *memStore) Close() error { return nil }

func TestSnapshotOnLifecycle(t *testing.T) {
	ms := &memStore{}
	e := New(Options{WorkflowID: "wf-snap", Store: ms})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)

	_, err = e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	require.NotEmpty(t, ms.saves, "收束时应写入最终快照")
	last := ms.saves[len(ms.saves)-1]
	assert.Equal(t, model.WorkflowStatusCompleted, last.Status)
	require.Len(t, last.Tasks, 1)
	assert.Equal(t, model.TaskStatusSuccess, last.Tasks[0].Status)
}

func TestRestoreFromSnapshot(t *testing.T) {
	now := time.Now()
	snap := &store.Snapshot{
		WorkflowID:    "wf-restore",
		Strategy:      model.StrategyParallel,
		MaxConcurrent: 3,
		Status:        model.WorkflowStatusRunning,
		Seq:           3,
		Tasks: []*model.Task{
			{ID: "done", Status: model.TaskStatusSuccess, Seq: 1, CreatedAt: now, MaxAttempts: 3},
			{ID: "mid", Status: model.TaskStatusRunning, Seq: 2, CreatedAt: now, MaxAttempts: 3, StartedAt: &now, Dependencies: []string{"done"}},
			{ID: "tail", Status: model.TaskStatusPending, Seq: 3, CreatedAt: now, MaxAttempts: 3, Dependencies: []string{"mid"}},
		},
		TakenAt: now,
	}

	e := New(Options{})
	require.NoError(t, e.Restore(snap))
	assert.Equal(t, "wf-restore", e.WorkflowID())

	// 崩溃恢复：running 回退 pending，不回放进度
	mid, ok := e.GetTask("mid")
	require.True(t, ok)
	assert.Equal(t, model.TaskStatusPending, mid.Status)
	assert.Nil(t, mid.StartedAt)

	summary, err := e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.Completed, "恢复后应继续执行剩余任务")
}

func TestDeleteSnapshot(t *testing.T) {
	ms := &memStore{}
	e := New(Options{WorkflowID: "wf-cleanup", Store: ms})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)

	// 未收束前不允许清理
	err = e.DeleteSnapshot(context.Background())
	require.Error(t, err, "运行前的快照是恢复依据，不能删")

	_, err = e.ProcessQueue(context.Background(), okExecutor)
	require.NoError(t, err)

	require.NoError(t, e.DeleteSnapshot(context.Background()))
	_, err = ms.Load(context.Background(), "wf-cleanup")
	assert.ErrorIs(t, err, store.ErrNotFound, "清理后后端不应再有快照")
}

func TestProcessQueueAfterTerminalRestore(t *testing.T) {
	now := time.Now()
	for _, status := range []model.WorkflowStatus{
		model.WorkflowStatusCompleted,
		model.WorkflowStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			taskStatus := model.TaskStatusSuccess
			if status == model.WorkflowStatusFailed {
				taskStatus = model.TaskStatusFailed
			}
			snap := &store.Snapshot{
				WorkflowID:    "wf-terminal-" + string(status),
				Strategy:      model.StrategySequential,
				MaxConcurrent: 1,
				Status:        status,
				Seq:           1,
				Tasks: []*model.Task{
					{ID: "only", Status: taskStatus, Seq: 1, CreatedAt: now, MaxAttempts: 3},
				},
				TakenAt: now,
			}

			e := New(Options{})
			require.NoError(t, e.Restore(snap))

			// 终态工作流没有任何唤醒源，重启后再驱动必须立即返回
			type result struct {
				summary *model.WorkflowSummary
				err     error
			}
			done := make(chan result, 1)
			go func() {
				summary, err := e.ProcessQueue(context.Background(), okExecutor)
				done <- result{summary, err}
			}()

			select {
			case res := <-done:
				require.NoError(t, res.err)
				assert.Equal(t, status, res.summary.Status, "终态恢复后状态不应改变")
			case <-time.After(2 * time.Second):
				t.Fatal("ProcessQueue 在终态工作流上未退出")
			}
		})
	}
}

func TestRestoreRequiresFreshEngine(t *testing.T) {
	e := New(Options{WorkflowID: "wf-used"})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)
	err = e.Restore(&store.Snapshot{WorkflowID: "other"})
	assert.Error(t, err, "已有任务的引擎不能再恢复快照")
}

func TestProcessQueueReentry(t *testing.T) {
	e := New(Options{WorkflowID: "wf-reentry"})
	_, err := e.AddTask(TaskSpec{ID: "a"})
	require.NoError(t, err)

	block := make(chan struct{})
	go func() {
		_, _ = e.ProcessQueue(context.Background(), func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
			<-block
			return nil, nil
		})
	}()

	// 等第一个循环占住 processing
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.processing
	}, time.Second, 5*time.Millisecond)

	_, err = e.ProcessQueue(context.Background(), okExecutor)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
	close(block)
}
