package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/azhengyongqin/taskflow/internal/engine"
	"github.com/azhengyongqin/taskflow/internal/logger"
	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/retry"
	"github.com/azhengyongqin/taskflow/sdk"
)

// 示例程序，两种运行模式：
//
//	go run ./cmd/example            # 内嵌引擎：构建 ETL 依赖图并本地执行
//	go run ./cmd/example client     # SDK 客户端：向控制面提交任务并轮询
func main() {
	if len(os.Args) > 1 && os.Args[1] == "client" {
		runClient()
		return
	}
	runEmbedded()
}

// runEmbedded 演示库形态用法：构建带依赖的任务图，注入 executor 本地执行。
func runEmbedded() {
	if err := logger.Init(false); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	eng := engine.New(engine.Options{
		WorkflowID:    "etl-demo",
		Strategy:      model.StrategyAdaptive,
		MaxConcurrent: 3,
		Retry: retry.Config{
			MaxAttempts:       3,
			BackoffBase:       200 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxBackoff:        2 * time.Second,
		},
		Logger: logger.L,
		OnTaskComplete: func(t *model.Task) {
			fmt.Printf("  ✓ %s 完成（耗时 %s）\n", t.ID, t.Duration().Round(time.Millisecond))
		},
		OnTaskFailed: func(t *model.Task) {
			fmt.Printf("  ✗ %s 失败: %s\n", t.ID, t.LastError)
		},
	})

	// 典型 ETL 依赖图：抽取并行 → 转换 → 汇总报表
	mustAdd(eng, engine.TaskSpec{ID: "extract-users", Priority: "high", Tags: []string{"extract"}})
	mustAdd(eng, engine.TaskSpec{ID: "extract-orders", Priority: "high", Tags: []string{"extract"}})
	mustAdd(eng, engine.TaskSpec{ID: "extract-events", Priority: "normal", Tags: []string{"extract"}})
	mustAdd(eng, engine.TaskSpec{
		ID:           "transform-users",
		Dependencies: []string{"extract-users"},
		Tags:         []string{"transform"},
	})
	mustAdd(eng, engine.TaskSpec{
		ID:           "transform-orders",
		Dependencies: []string{"extract-orders"},
		Tags:         []string{"transform"},
	})
	mustAdd(eng, engine.TaskSpec{
		ID:           "join-datasets",
		Dependencies: []string{"transform-users", "transform-orders", "extract-events"},
		Priority:     "critical",
	})
	mustAdd(eng, engine.TaskSpec{
		ID:           "build-report",
		Dependencies: []string{"join-datasets"},
		Priority:     "low",
		Tags:         []string{"report"},
	})

	fmt.Println("依赖层级:")
	for i, level := range eng.Levels() {
		fmt.Printf("  第 %d 层: %v\n", i, level)
	}

	// executor 模拟不稳定的工作负载：随机耗时，偶发一次瞬时失败
	summary, err := eng.ProcessQueue(context.Background(), func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		delay := time.Duration(50+rand.Intn(150)) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if t.ID == "extract-events" && t.Attempt == 1 {
			return nil, errors.New("upstream api returned 503")
		}
		return json.RawMessage(fmt.Sprintf(`{"rows":%d}`, rand.Intn(10000))), nil
	})
	if err != nil {
		log.Fatalf("执行失败: %v", err)
	}

	fmt.Printf("\n工作流 %s: %s\n", summary.WorkflowID, summary.Status)
	fmt.Printf("  完成 %d / 失败 %d / 阻塞 %d，总耗时 %s\n",
		summary.Completed, summary.Failed, summary.Blocked, summary.Duration.Round(time.Millisecond))

	stats := eng.GetQueueStats()
	fmt.Printf("  重试后成功示例: extract-events（尝试 %d 次）\n", mustGet(eng, "extract-events").Attempt)
	fmt.Printf("  最终状态分布: success=%d failed=%d blocked=%d\n", stats.Success, stats.Failed, stats.Blocked)
}

// runClient 演示 SDK 客户端：向运行中的控制面提交任务并轮询状态。
func runClient() {
	baseURL := sdk.BaseURLFromEnv()
	client := sdk.NewClient(baseURL)
	ctx := context.Background()

	fmt.Printf("控制面: %s\n", baseURL)

	// 提交一条带依赖的流水线，payload 走服务端内置执行器
	tasks := []sdk.SubmitTaskRequest{
		{TaskID: "fetch", Priority: "high", Payload: json.RawMessage(`{"sleep_ms":300,"echo":{"rows":1200}}`)},
		{TaskID: "clean", Dependencies: []string{"fetch"}, Payload: json.RawMessage(`{"sleep_ms":200,"fail_attempts":1}`)},
		{TaskID: "load", Dependencies: []string{"clean"}, Priority: "critical", Payload: json.RawMessage(`{"sleep_ms":100}`)},
	}
	for _, req := range tasks {
		resp, err := client.SubmitTask(ctx, req)
		if err != nil {
			log.Fatalf("提交 %s 失败: %v", req.TaskID, err)
		}
		fmt.Printf("已提交 %s (priority=%s)\n", resp.TaskID, resp.Priority)
	}

	// 轮询直到工作流收束
	for {
		wf, err := client.GetWorkflow(ctx)
		if err != nil {
			log.Fatalf("查询工作流失败: %v", err)
		}
		stats, err := client.GetQueueStats(ctx)
		if err != nil {
			log.Fatalf("查询统计失败: %v", err)
		}
		fmt.Printf("workflow=%s running=%d success=%d failed=%d retry_pending=%d\n",
			wf.Status, stats.Running, stats.Success, stats.Failed, stats.RetryPending)

		switch wf.Status {
		case sdk.WorkflowStatusCompleted, sdk.WorkflowStatusFailed, sdk.WorkflowStatusCancelled:
			task, err := client.GetTask(ctx, "clean")
			if err == nil {
				fmt.Printf("clean: status=%s attempt=%d errors=%v\n", task.Status, task.Attempt, task.ErrorHistory)
			}
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func mustAdd(eng *engine.Engine, spec engine.TaskSpec) {
	if _, err := eng.AddTask(spec); err != nil {
		log.Fatalf("提交任务 %s 失败: %v", spec.ID, err)
	}
}

func mustGet(eng *engine.Engine, id string) *model.Task {
	t, ok := eng.GetTask(id)
	if !ok {
		log.Fatalf("任务 %s 不存在", id)
	}
	return t
}
