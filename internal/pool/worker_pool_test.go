package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// 所有测试都会 Close 池，worker 与 job ticker 不应残留
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPool(t *testing.T, cfg Config) *WorkerPool {
	t.Helper()
	p := NewWorkerPool(cfg, zaptest.NewLogger(t))
	t.Cleanup(p.Close)
	return p
}

func TestWorkerPool_SubmitWait(t *testing.T) {
	p := newTestPool(t, DefaultConfig())

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), "ok", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())

	boom := errors.New("boom")
	err = p.SubmitWait(context.Background(), "fail", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	s := p.Stats()
	assert.Equal(t, int64(2), s.Submitted)
	assert.Equal(t, int64(1), s.Completed)
	assert.Equal(t, int64(1), s.Failed)
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	p := newTestPool(t, DefaultConfig())

	err := p.SubmitWait(context.Background(), "panic", func(ctx context.Context) error {
		panic("kaboom")
	})
	assert.ErrorIs(t, err, ErrTaskPanic)

	// 池仍可用
	require.NoError(t, p.SubmitWait(context.Background(), "after", func(ctx context.Context) error { return nil }))
}

func TestWorkerPool_SubmitFull(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), "queued", func(ctx context.Context) error { return nil }))

	err := p.Submit(context.Background(), "rejected", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)
	close(release)
}

func TestWorkerPool_Closed(t *testing.T) {
	p := NewWorkerPool(DefaultConfig(), zaptest.NewLogger(t))
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, p.Schedule(Job{Name: "j", Interval: time.Second, Run: func(context.Context) error { return nil }}), ErrPoolClosed)
}

func TestWorkerPool_CloseDrainsQueue(t *testing.T) {
	p := NewWorkerPool(Config{Workers: 1, QueueSize: 8}, zaptest.NewLogger(t))

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), "n", func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}
	p.Close()
	assert.Equal(t, int32(5), count.Load())
}

func TestWorkerPool_Schedule(t *testing.T) {
	p := newTestPool(t, DefaultConfig())

	var runs atomic.Int32
	require.NoError(t, p.Schedule(Job{
		Name:       "tick",
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	js := p.Stats().Jobs["tick"]
	assert.GreaterOrEqual(t, js.Runs, int64(3))
	assert.Empty(t, js.LastError)
}

func TestWorkerPool_ScheduleSkipsOverlappingRuns(t *testing.T) {
	p := newTestPool(t, Config{Workers: 2, QueueSize: 8})

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, p.Schedule(Job{
		Name:       "slow",
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return errors.New("slow failed")
		},
	}))

	assert.Eventually(t, func() bool { return p.Stats().Jobs["slow"].Skipped >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	close(release)

	assert.Eventually(t, func() bool { return p.Stats().Jobs["slow"].LastError == "slow failed" }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerPool_ScheduleValidation(t *testing.T) {
	p := newTestPool(t, DefaultConfig())
	noop := func(context.Context) error { return nil }

	assert.Error(t, p.Schedule(Job{Interval: time.Second, Run: noop}))
	assert.Error(t, p.Schedule(Job{Name: "x", Run: noop}))
	require.NoError(t, p.Schedule(Job{Name: "x", Interval: time.Hour, Run: noop}))
	assert.Error(t, p.Schedule(Job{Name: "x", Interval: time.Hour, Run: noop}))
}

func TestWorkerPool_JobTimeout(t *testing.T) {
	p := newTestPool(t, DefaultConfig())

	done := make(chan error, 1)
	require.NoError(t, p.Schedule(Job{
		Name:       "timeout",
		Interval:   time.Hour,
		Timeout:    20 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		},
	}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not time out")
	}
}
