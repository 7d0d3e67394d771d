package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// eventLog 按时间记录事件的假计数源
type eventLog struct {
	times []time.Time
}

func (l *eventLog) count(ctx context.Context, actorKey string, since time.Time) (int64, error) {
	var n int64
	for _, ts := range l.times {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}

func TestWindow_Allow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("allows below the limit", func(t *testing.T) {
		log := &eventLog{}
		w := NewWindow(time.Hour, 3, log.count).WithClock(func() time.Time { return base })

		allowed, err := w.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowed)

		log.times = append(log.times, base.Add(-10*time.Minute), base.Add(-20*time.Minute))
		allowed, err = w.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("rejects at the limit", func(t *testing.T) {
		log := &eventLog{times: []time.Time{
			base.Add(-5 * time.Minute),
			base.Add(-15 * time.Minute),
			base.Add(-25 * time.Minute),
		}}
		w := NewWindow(time.Hour, 3, log.count).WithClock(func() time.Time { return base })

		allowed, err := w.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("events outside the window do not count", func(t *testing.T) {
		log := &eventLog{times: []time.Time{
			base.Add(-2 * time.Hour),
			base.Add(-90 * time.Minute),
			base.Add(-61 * time.Minute),
		}}
		w := NewWindow(time.Hour, 1, log.count).WithClock(func() time.Time { return base })

		allowed, err := w.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("propagates count errors", func(t *testing.T) {
		countErr := errors.New("db down")
		w := NewWindow(time.Hour, 3, func(ctx context.Context, key string, since time.Time) (int64, error) {
			return 0, countErr
		})

		_, err := w.Allow(ctx, "u1")
		assert.ErrorIs(t, err, countErr)
	})
}

func TestWindow_Remaining(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	log := &eventLog{times: []time.Time{
		base.Add(-5 * time.Minute),
		base.Add(-15 * time.Minute),
	}}
	w := NewWindow(time.Hour, 3, log.count).WithClock(func() time.Time { return base })

	remaining, err := w.Remaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	// 超卖时剩余配额不为负
	log.times = append(log.times, base.Add(-1*time.Minute), base.Add(-2*time.Minute))
	remaining, err = w.Remaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

// Property: Allow 的判定只取决于窗口内的事件数和上限
func TestProperty_WindowDecision(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property test in short mode")
	}

	rapid.Check(t, func(rt *rapid.T) {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		windowMinutes := rapid.IntRange(1, 24*60).Draw(rt, "windowMinutes")
		max := rapid.IntRange(1, 50).Draw(rt, "max")
		duration := time.Duration(windowMinutes) * time.Minute

		// 生成窗口内外的事件
		numEvents := rapid.IntRange(0, 100).Draw(rt, "numEvents")
		log := &eventLog{}
		inWindow := 0
		for i := 0; i < numEvents; i++ {
			offsetMinutes := rapid.IntRange(0, 2*24*60).Draw(rt, "offset")
			ts := base.Add(-time.Duration(offsetMinutes) * time.Minute)
			log.times = append(log.times, ts)
			if !ts.Before(base.Add(-duration)) {
				inWindow++
			}
		}

		w := NewWindow(duration, max, log.count).WithClock(func() time.Time { return base })
		allowed, err := w.Allow(context.Background(), "actor")
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		expected := inWindow < max
		if allowed != expected {
			rt.Fatalf("inWindow=%d max=%d: expected allowed=%v, got %v", inWindow, max, expected, allowed)
		}

		remaining, err := w.Remaining(context.Background(), "actor")
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		expectedRemaining := max - inWindow
		if expectedRemaining < 0 {
			expectedRemaining = 0
		}
		if remaining != expectedRemaining {
			rt.Fatalf("expected remaining=%d, got %d", expectedRemaining, remaining)
		}
	})
}
