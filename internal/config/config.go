package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/azhengyongqin/taskflow/internal/model"
	"github.com/azhengyongqin/taskflow/internal/retry"
)

// Config 应用配置
type Config struct {
	HTTP       HTTPConfig
	Scheduler  SchedulerConfig
	Retry      retry.Config
	Snapshot   SnapshotConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	DBPool     DBPoolConfig
	Monitoring MonitoringConfig
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	WorkflowID        string
	Strategy          model.Strategy
	MaxConcurrent     int
	ContinueOnFailure bool
	AdaptiveStrict    bool
	DefaultTimeout    time.Duration
}

// SnapshotConfig 快照持久化配置。Backend 取值 file / redis / postgres / none。
type SnapshotConfig struct {
	Backend  string
	Dir      string
	Interval time.Duration
	RedisTTL time.Duration
}

// RedisConfig Redis 配置
type RedisConfig struct {
	URL string
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string
}

// DBPoolConfig 数据库连接池配置
type DBPoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Enabled bool
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")

	// 允许从环境变量读取（优先级最高）
	v.AutomaticEnv()

	// 读取配置文件（如果存在）
	_ = v.ReadInConfig() // 忽略错误，因为可能只使用环境变量

	cfg := &Config{}

	// HTTP 配置
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":28080"
	}

	// 调度器配置
	cfg.Scheduler.WorkflowID = v.GetString("SCHEDULER_WORKFLOW_ID")
	cfg.Scheduler.Strategy = model.ParseStrategy(v.GetString("SCHEDULER_STRATEGY"))
	cfg.Scheduler.MaxConcurrent = v.GetInt("SCHEDULER_MAX_CONCURRENT")
	if cfg.Scheduler.MaxConcurrent <= 0 {
		cfg.Scheduler.MaxConcurrent = 4
	}
	cfg.Scheduler.ContinueOnFailure = v.GetBool("SCHEDULER_CONTINUE_ON_FAILURE")
	cfg.Scheduler.AdaptiveStrict = v.GetBool("SCHEDULER_ADAPTIVE_STRICT")
	cfg.Scheduler.DefaultTimeout = v.GetDuration("TASK_DEFAULT_TIMEOUT")

	// 重试配置
	cfg.Retry.MaxAttempts = v.GetInt("RETRY_MAX_ATTEMPTS")
	cfg.Retry.BackoffBase = v.GetDuration("RETRY_BACKOFF_BASE")
	cfg.Retry.BackoffMultiplier = v.GetFloat64("RETRY_BACKOFF_MULTIPLIER")
	cfg.Retry.MaxBackoff = v.GetDuration("RETRY_MAX_BACKOFF")
	cfg.Retry = cfg.Retry.Normalize()

	// 快照配置
	cfg.Snapshot.Backend = v.GetString("SNAPSHOT_BACKEND")
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = "file"
	}
	cfg.Snapshot.Dir = v.GetString("SNAPSHOT_DIR")
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = "./snapshots"
	}
	cfg.Snapshot.Interval = v.GetDuration("SNAPSHOT_INTERVAL")
	if cfg.Snapshot.Interval == 0 {
		cfg.Snapshot.Interval = 30 * time.Second
	}
	cfg.Snapshot.RedisTTL = v.GetDuration("SNAPSHOT_REDIS_TTL")
	if cfg.Snapshot.RedisTTL == 0 {
		cfg.Snapshot.RedisTTL = 24 * time.Hour
	}

	// Redis 配置
	cfg.Redis.URL = v.GetString("REDIS_URL")
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}

	// PostgreSQL 配置
	cfg.Postgres.DSN = v.GetString("POSTGRES_DSN")

	// 数据库连接池配置
	cfg.DBPool.MaxConns = v.GetInt("DB_MAX_CONNS")
	if cfg.DBPool.MaxConns == 0 {
		cfg.DBPool.MaxConns = 20
	}

	cfg.DBPool.MinConns = v.GetInt("DB_MIN_CONNS")
	if cfg.DBPool.MinConns == 0 {
		cfg.DBPool.MinConns = 5
	}

	cfg.DBPool.MaxConnLifetime = v.GetDuration("DB_MAX_CONN_LIFETIME")
	if cfg.DBPool.MaxConnLifetime == 0 {
		cfg.DBPool.MaxConnLifetime = 30 * time.Minute
	}

	cfg.DBPool.MaxConnIdleTime = v.GetDuration("DB_MAX_CONN_IDLE_TIME")
	if cfg.DBPool.MaxConnIdleTime == 0 {
		cfg.DBPool.MaxConnIdleTime = 5 * time.Minute
	}

	// 监控配置
	cfg.Monitoring.Enabled = v.GetBool("MONITORING_ENABLED")

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Snapshot.Backend {
	case "file", "redis", "postgres", "none":
	default:
		return fmt.Errorf("unknown SNAPSHOT_BACKEND %q (expected file/redis/postgres/none)", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required when SNAPSHOT_BACKEND=postgres")
	}
	if c.Snapshot.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when SNAPSHOT_BACKEND=redis")
	}
	if !c.Scheduler.Strategy.Valid() {
		return fmt.Errorf("invalid SCHEDULER_STRATEGY %q", c.Scheduler.Strategy)
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("SCHEDULER_MAX_CONCURRENT must be positive")
	}
	return nil
}
