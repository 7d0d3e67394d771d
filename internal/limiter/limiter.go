package limiter

import (
	"context"
	"time"
)

// CountFunc 统计某个主体在 [since, now] 内已发生的事件数
// 计数查询应当在调用方的事务里执行，这样限流判定和写入共享同一个一致性视图
type CountFunc func(ctx context.Context, actorKey string, since time.Time) (int64, error)

// Window 滑动窗口限流器
// 只统计"先前"的事件：检查和随后的写入不是原子的（check-then-act），
// 极端并发下允许轻微超卖，由外层事务限定影响范围
type Window struct {
	Duration time.Duration // 窗口时长
	Max      int           // 窗口内最大事件数
	count    CountFunc
	now      func() time.Time
}

// NewWindow 创建滑动窗口限流器
func NewWindow(duration time.Duration, max int, count CountFunc) *Window {
	return &Window{
		Duration: duration,
		Max:      max,
		count:    count,
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试用
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// Allow 检查主体是否还有配额
// 返回 false 表示窗口内的事件数已达上限
func (w *Window) Allow(ctx context.Context, actorKey string) (bool, error) {
	since := w.now().Add(-w.Duration)
	n, err := w.count(ctx, actorKey, since)
	if err != nil {
		return false, err
	}
	return n < int64(w.Max), nil
}

// Remaining 返回窗口内剩余配额
func (w *Window) Remaining(ctx context.Context, actorKey string) (int, error) {
	since := w.now().Add(-w.Duration)
	n, err := w.count(ctx, actorKey, since)
	if err != nil {
		return 0, err
	}
	remaining := w.Max - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
