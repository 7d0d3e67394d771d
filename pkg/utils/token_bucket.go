package utils

import (
	"sync"
	"time"
)

// TokenBucket 进程内令牌桶
// 懒惰补充：每次取令牌时按流逝时间折算新令牌，不需要后台协程
type TokenBucket struct {
	mu       sync.Mutex
	capacity int64 // 桶容量（突发上限）
	tokens   int64 // 当前令牌数
	rate     int64 // 每秒补充的令牌数
	last     time.Time
}

// NewTokenBucket 创建令牌桶，初始为满
func NewTokenBucket(capacity, rate int64) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if rate <= 0 {
		rate = 1
	}
	return &TokenBucket{
		capacity: capacity,
		tokens:   capacity,
		rate:     rate,
		last:     time.Now(),
	}
}

// refillLocked 按流逝时间补充令牌，调用方必须持锁
func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	refill := int64(elapsed.Seconds() * float64(b.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
}

// TryTakeN 尝试取 n 个令牌，不足立即返回 false
func (b *TokenBucket) TryTakeN(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// WaitN 等待直到取到 n 个令牌或超时
// 轮询间隔取补满 n 个令牌所需时间的估计值，避免空转
func (b *TokenBucket) WaitN(n int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if b.TryTakeN(n) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}

		interval := time.Duration(n) * time.Second / time.Duration(b.rate)
		if interval > 50*time.Millisecond {
			interval = 50 * time.Millisecond
		}
		if interval <= 0 {
			interval = time.Millisecond
		}
		if remaining := time.Until(deadline); interval > remaining {
			interval = remaining
		}
		time.Sleep(interval)
	}
}

// Available 当前可用令牌数（用于观测）
func (b *TokenBucket) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}
