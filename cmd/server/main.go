package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/azhengyongqin/taskflow/internal/config"
	"github.com/azhengyongqin/taskflow/internal/engine"
	"github.com/azhengyongqin/taskflow/internal/healthcheck"
	"github.com/azhengyongqin/taskflow/internal/logger"
	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/repository"
	httpserver "github.com/azhengyongqin/taskflow/internal/server"
	"github.com/azhengyongqin/taskflow/internal/storage/postgres"
	"github.com/azhengyongqin/taskflow/internal/store"
)

// 说明：
// - 单进程托管调度引擎与 Gin(HTTP) 控制面，便于本地与容器部署。
// - executor 为内置的 payload 驱动执行器，用于演示与联调；
//   作为库使用时由调用方注入自己的 executor。

// demoPayload 内置执行器的 payload 约定。
type demoPayload struct {
	// SleepMs 模拟执行耗时
	SleepMs int64 `json:"sleep_ms"`
	// FailAttempts 前 N 次尝试返回失败（验证重试与退避）
	FailAttempts int `json:"fail_attempts"`
	// Echo 原样作为任务结果返回
	Echo json.RawMessage `json:"echo"`
}

func demoExecutor(ctx context.Context, t *model.Task) (json.RawMessage, error) {
	var p demoPayload
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}
	if p.SleepMs > 0 {
		select {
		case <-time.After(time.Duration(p.SleepMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.Attempt <= p.FailAttempts {
		return nil, fmt.Errorf("simulated failure (attempt %d/%d)", t.Attempt, p.FailAttempts)
	}
	if p.Echo != nil {
		return p.Echo, nil
	}
	return json.RawMessage(`{"status":"done"}`), nil
}

func main() {
	// 初始化结构化日志（开发模式）
	if err := logger.Init(false); err != nil {
		logger.L.Fatal().Err(err).Msg("初始化日志失败")
		os.Exit(1)
	}
	defer logger.Sync()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("加载配置失败")
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		logger.L.Fatal().Err(err).Msg("配置验证失败")
	}

	logger.L.Info().
		Str("http", cfg.HTTP.Addr).
		Str("strategy", string(cfg.Scheduler.Strategy)).
		Str("snapshot_backend", cfg.Snapshot.Backend).
		Msg("服务启动")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 快照后端
	var (
		snapStore   store.Store
		pgPool      *pgxpool.Pool
		redisClient *redis.Client
	)
	switch cfg.Snapshot.Backend {
	case "file":
		snapStore, err = store.NewFileStore(cfg.Snapshot.Dir)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("初始化文件快照存储失败")
		}

	case "redis":
		rs, err := store.NewRedisStore(cfg.Redis.URL, cfg.Snapshot.RedisTTL)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("连接 Redis 失败")
		}
		snapStore = rs
		redisClient = rs.Client()

	case "postgres":
		dbCfg := postgres.DBConfig{
			MaxOpenConns:    cfg.DBPool.MaxConns,
			MaxIdleConns:    cfg.DBPool.MinConns,
			ConnMaxLifetime: cfg.DBPool.MaxConnLifetime,
			ConnMaxIdleTime: cfg.DBPool.MaxConnIdleTime,
		}
		pgPool, err = postgres.NewPgxPool(ctx, cfg.Postgres.DSN, dbCfg)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("连接数据库失败")
		}
		defer pgPool.Close()
		if err := postgres.EnsureSchema(ctx, pgPool); err != nil {
			logger.L.Fatal().Err(err).Msg("初始化快照表失败")
		}
		db, err := postgres.NewDBWithConfig(ctx, cfg.Postgres.DSN, dbCfg)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("创建 GORM 连接失败")
		}
		snapStore = repository.NewPostgresStore(db)

	case "none":
		// 不做持久化
	}
	if snapStore != nil {
		defer snapStore.Close()
	}

	// 调度引擎
	eng := engine.New(engine.Options{
		WorkflowID:        cfg.Scheduler.WorkflowID,
		Strategy:          cfg.Scheduler.Strategy,
		MaxConcurrent:     cfg.Scheduler.MaxConcurrent,
		ContinueOnFailure: cfg.Scheduler.ContinueOnFailure,
		AdaptiveStrict:    cfg.Scheduler.AdaptiveStrict,
		Retry:             cfg.Retry,
		DefaultTimeout:    cfg.Scheduler.DefaultTimeout,
		Store:             snapStore,
		SnapshotInterval:  cfg.Snapshot.Interval,
		Logger:            logger.L,
	})

	// 崩溃恢复：指定了 workflow_id 且存在快照时恢复
	if snapStore != nil && cfg.Scheduler.WorkflowID != "" {
		snap, err := snapStore.Load(ctx, cfg.Scheduler.WorkflowID)
		switch {
		case err == nil:
			if err := eng.Restore(snap); err != nil {
				logger.L.Fatal().Err(err).Msg("从快照恢复失败")
			}
		case errors.Is(err, store.ErrNotFound):
			logger.L.Info().Str("workflow_id", cfg.Scheduler.WorkflowID).Msg("没有历史快照，全新启动")
		default:
			logger.L.Fatal().Err(err).Msg("读取快照失败")
		}
	}

	// 创建健康检查器
	healthChecker := healthcheck.NewHealthChecker(pgPool, redisClient, eng)

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Engine:        eng,
			HealthChecker: healthChecker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 等第一个任务提交后再驱动协调循环，空引擎不立刻收束
	go func() {
		for eng.GetQueueStats().Total == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
		summary, err := eng.ProcessQueue(ctx, demoExecutor)
		if err != nil {
			logger.L.Error().Err(err).Msg("协调循环异常退出")
			return
		}
		logger.L.Info().
			Str("workflow_id", summary.WorkflowID).
			Str("status", string(summary.Status)).
			Msg("工作流收束，控制面继续提供查询服务")
	}()

	go func() {
		logger.L.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal().Err(err).Msg("HTTP 服务错误")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	logger.L.Info().Msg("服务已优雅关闭")
}
