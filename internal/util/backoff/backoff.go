// Package backoff 实现行情失败后的重试等待策略。
// base == max 时为固定间隔（默认 30s），否则按指数增长到 max，可叠加 ±jitter 抖动。
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Backoff 重试等待计算器
// 每次调用 Next() 返回下一次重试的等待时间
type Backoff struct {
	// base 首次等待时间
	base time.Duration
	// max 最大等待时间
	max time.Duration
	// jitter 抖动比例（0-1），例如 0.2 表示 ±20%
	jitter float64
	// attempt 连续失败次数
	attempt int
}

// New 创建重试等待计算器
// 参数 base: 首次等待时间
// 参数 max: 最大等待时间，小于 base 时按 base 处理
// 参数 jitter: 抖动比例
func New(base, max time.Duration, jitter float64) *Backoff {
	if max < base {
		max = base
	}
	return &Backoff{
		base:   base,
		max:    max,
		jitter: jitter,
	}
}

// FromMillis 按毫秒配置创建
func FromMillis(baseMs, maxMs int, jitter float64) *Backoff {
	return New(time.Duration(baseMs)*time.Millisecond, time.Duration(maxMs)*time.Millisecond, jitter)
}

// NewFixed 创建固定间隔的等待策略
func NewFixed(d time.Duration) *Backoff {
	return New(d, d, 0)
}

// Next 获取下次重试的等待时间
// 计算公式: min(base * 2^attempt, max)，然后应用抖动
func (b *Backoff) Next() time.Duration {
	delay := b.max
	// 位移超过 30 位后必然已到上限
	if b.attempt < 31 {
		if d := b.base * time.Duration(int64(1)<<b.attempt); d > 0 && d < b.max {
			delay = d
		}
	}

	if b.jitter > 0 {
		jitterFactor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	b.attempt++
	return delay
}

// Wait 等待下一次重试时间
// 返回: ctx 取消时返回 ctx.Err()
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset 重置连续失败次数
// 在一次成功请求后调用
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 获取当前连续失败次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
