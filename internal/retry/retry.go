// Package retry 重试控制：尝试计数与指数退避。
// 退避公式 delay = min(base * multiplier^(attempt-1), max)。
package retry

import (
	"math"
	"time"
)

// Config 重试配置。
type Config struct {
	MaxAttempts       int           // 最大尝试次数（含首次），默认 3
	BackoffBase       time.Duration // 初始退避时间，默认 1秒
	BackoffMultiplier float64       // 退避因子，默认 2.0（指数退避）
	MaxBackoff        time.Duration // 最大退避时间，默认 60秒
}

// Default 默认重试配置。
func Default() Config {
	return Config{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}
}

// Normalize 补齐非法/缺省字段。
func (c Config) Normalize() Config {
	d := Default()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// ShouldRetry 第 attempt 次尝试失败后是否还有重试额度。
func (c Config) ShouldRetry(attempt int) bool {
	return attempt < c.MaxAttempts
}

// NextDelay 第 attempt 次尝试失败后的退避时间。
// attempt 从 1 开始计：第 1 次失败退避 base，之后按 multiplier 指数增长，封顶 max。
func (c Config) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(c.BackoffBase) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}
