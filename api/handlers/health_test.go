package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/persistence"
)

func okCheck(name string) HealthCheck {
	return NewCheckFunc(name, func(context.Context) error { return nil })
}

func failingCheck(name string, err error) HealthCheck {
	return NewCheckFunc(name, func(context.Context) error { return err })
}

func ready(t *testing.T, h *HealthHandler) (int, ServiceHealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var resp ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	for _, fn := range []http.HandlerFunc{h.HandleHealth, h.HandleHealthz} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp ServiceHealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, statusHealthy, resp.Status)
		assert.False(t, resp.Timestamp.IsZero())
	}
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*HealthHandler)
		wantCode int
		want     string
		results  map[string]string
	}{
		{
			name:     "no checks",
			setup:    func(*HealthHandler) {},
			wantCode: http.StatusOK,
			want:     statusHealthy,
		},
		{
			name: "all pass",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(okCheck("kernel"))
				h.RegisterOptionalCheck(okCheck("redis"))
			},
			wantCode: http.StatusOK,
			want:     statusHealthy,
			results:  map[string]string{"kernel": "pass", "redis": "pass"},
		},
		{
			name: "critical failure",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(okCheck("kernel"))
				h.RegisterCheck(failingCheck("snapshot_store", errors.New("store is closed")))
			},
			wantCode: http.StatusServiceUnavailable,
			want:     statusUnhealthy,
			results:  map[string]string{"kernel": "pass", "snapshot_store": "fail"},
		},
		{
			name: "optional failure degrades",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(okCheck("kernel"))
				h.RegisterOptionalCheck(failingCheck("redis", errors.New("connection refused")))
			},
			wantCode: http.StatusOK,
			want:     statusDegraded,
			results:  map[string]string{"kernel": "pass", "redis": "fail"},
		},
		{
			name: "critical warning degrades",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(failingCheck("kernel", fmt.Errorf("%w: request queue 60/64", ErrDegraded)))
			},
			wantCode: http.StatusOK,
			want:     statusDegraded,
			results:  map[string]string{"kernel": "warn"},
		},
		{
			name: "unhealthy wins over degraded",
			setup: func(h *HealthHandler) {
				h.RegisterOptionalCheck(failingCheck("redis", errors.New("down")))
				h.RegisterCheck(failingCheck("database", errors.New("down")))
			},
			wantCode: http.StatusServiceUnavailable,
			want:     statusUnhealthy,
			results:  map[string]string{"redis": "fail", "database": "fail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil)
			tt.setup(h)

			code, resp := ready(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.results))
			for name, status := range tt.results {
				assert.Equal(t, status, resp.Checks[name].Status, name)
			}
		})
	}
}

func TestHealthHandler_ChecksRunConcurrently(t *testing.T) {
	h := NewHealthHandler(nil)
	// 两个检查互相等待对方开始，串行执行会超时
	var started sync.WaitGroup
	started.Add(2)
	rendezvous := func(ctx context.Context) error {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.timeout = time.Second
	h.RegisterCheck(NewCheckFunc("a", rendezvous))
	h.RegisterCheck(NewCheckFunc("b", rendezvous))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, statusHealthy, resp.Status)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	w := httptest.NewRecorder()
	h.HandleVersion("1.0.0", "2024-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_ConcurrentReady(t *testing.T) {
	h := NewHealthHandler(nil)
	for i := 0; i < 5; i++ {
		h.RegisterCheck(okCheck(fmt.Sprintf("c%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

func TestKernelHealthCheck(t *testing.T) {
	owner := kernel.NewOwner(kernel.New(kernel.DefaultConfig()), 4)

	check := NewKernelHealthCheck(owner)
	assert.Equal(t, "kernel", check.Name())
	require.NoError(t, check.Check(context.Background()))

	require.NoError(t, owner.Close())
	assert.Error(t, check.Check(context.Background()))
}

func TestKernelHealthCheck_Saturated(t *testing.T) {
	owner := kernel.NewOwner(kernel.New(kernel.DefaultConfig()), 2)
	t.Cleanup(func() { _ = owner.Close() })
	ctx := context.Background()

	// 占住所有者 goroutine，再排队一个请求，使队列占用达到 1/2
	release := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_ = owner.Do(ctx, func(context.Context, *kernel.Kernel) error {
			close(busy)
			<-release
			return nil
		})
	}()
	<-busy
	go func() { _ = owner.Do(ctx, func(context.Context, *kernel.Kernel) error { return nil }) }()
	require.Eventually(t, func() bool { return owner.QueueStats().Length == 1 }, time.Second, 5*time.Millisecond)

	check := NewKernelHealthCheck(owner)
	check.SaturationThreshold = 0.5
	errc := make(chan error, 1)
	go func() { errc <- check.Check(ctx) }()
	// 探测请求入队说明采样已完成
	require.Eventually(t, func() bool { return owner.QueueStats().Length == 2 }, time.Second, 5*time.Millisecond)

	close(release)
	assert.ErrorIs(t, <-errc, ErrDegraded)

	// 积压清空后恢复
	require.NoError(t, check.Check(ctx))
}

func TestStoreHealthCheck(t *testing.T) {
	store := persistence.NewMemorySnapshotStore(persistence.DefaultStoreConfig(), zap.NewNop())
	check := NewStoreHealthCheck("snapshot_store", store)

	assert.Equal(t, "snapshot_store", check.Name())
	require.NoError(t, check.Check(context.Background()))

	require.NoError(t, store.Close())
	assert.ErrorIs(t, check.Check(context.Background()), persistence.ErrStoreClosed)
}

func TestHealthHandler_Register(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(nil).Register(mux, "1.0.0", "now", "abc")

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/version"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
