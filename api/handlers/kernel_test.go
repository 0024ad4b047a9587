package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

type testServer struct {
	mux   *http.ServeMux
	owner *kernel.Owner
}

func newKernelServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := kernel.DefaultConfig()
	cfg.ID = "k-http"
	owner := kernel.NewOwner(kernel.New(cfg, kernel.WithLogger(logger)), 16)
	t.Cleanup(func() { _ = owner.Close() })

	mux := http.NewServeMux()
	NewKernelHandler(owner, logger).Register(mux)
	return &testServer{mux: mux, owner: owner}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, r)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeData[T any](t *testing.T, env apiEnvelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestKernelHandler_FactsRulesInfer(t *testing.T) {
	s := newKernelServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/facts", map[string]any{"subject": "socrates", "predicate": "human"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"premises":   []map[string]string{{"subject": "socrates", "predicate": "human"}},
		"conclusion": map[string]string{"subject": "socrates", "predicate": "mortal"},
		"confidence": 0.9,
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/infer", nil)
	require.Equal(t, http.StatusOK, code)
	infer := decodeData[struct {
		Method  string `json:"method"`
		Count   int    `json:"count"`
		Derived []struct {
			Subject   string `json:"subject"`
			Predicate string `json:"predicate"`
		} `json:"derived"`
	}](t, env)
	assert.Equal(t, "forward_chaining", infer.Method)
	require.Equal(t, 1, infer.Count)
	assert.Equal(t, "mortal", infer.Derived[0].Predicate)

	code, env = s.do(t, http.MethodGet, "/api/v1/query?subject=socrates", nil)
	require.Equal(t, http.StatusOK, code)
	query := decodeData[struct {
		Assertions []struct {
			Predicate  string  `json:"predicate"`
			Confidence float64 `json:"confidence"`
		} `json:"assertions"`
	}](t, env)
	require.Len(t, query.Assertions, 2)
	assert.Equal(t, "human", query.Assertions[0].Predicate)
	assert.InDelta(t, 0.9, query.Assertions[1].Confidence, 1e-9)

	code, env = s.do(t, http.MethodPost, "/api/v1/explain", map[string]string{"subject": "socrates", "predicate": "mortal"})
	require.Equal(t, http.StatusOK, code)
	explain := decodeData[struct {
		Explanation string `json:"explanation"`
	}](t, env)
	assert.Contains(t, explain.Explanation, "socrates->human")

	code, env = s.do(t, http.MethodPost, "/api/v1/prove", map[string]string{"subject": "socrates", "predicate": "mortal"})
	require.Equal(t, http.StatusOK, code)
	proof := decodeData[struct {
		Proved bool `json:"proved"`
	}](t, env)
	assert.True(t, proof.Proved)
}

func TestKernelHandler_Validation(t *testing.T) {
	s := newKernelServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/facts", map[string]any{"subject": "a", "predicate": "b", "confidence": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/query", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/prove", map[string]string{"subject": "a"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/memory", map[string]any{"type": "dreams", "payload": map[string]any{"a": 1}})
	assert.Equal(t, http.StatusBadRequest, code)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/facts", bytes.NewBufferString(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	s.mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestKernelHandler_PlanAndDecide(t *testing.T) {
	s := newKernelServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/plan", map[string]any{
		"initial": map[string]any{"door": "closed", "inside": false},
		"goal":    map[string]any{"inside": true},
		"actions": []map[string]any{
			{"name": "open", "requires": map[string]any{"door": "closed"}, "assign": map[string]any{"door": "open"}, "cost": 1},
			{"name": "enter", "requires": map[string]any{"door": "open"}, "assign": map[string]any{"inside": true}, "cost": 1},
		},
	})
	require.Equal(t, http.StatusOK, code)
	plan := decodeData[struct {
		Plan      []string `json:"plan"`
		Found     bool     `json:"found"`
		Algorithm string   `json:"algorithm"`
		Cost      float64  `json:"cost"`
	}](t, env)
	assert.True(t, plan.Found)
	assert.Equal(t, []string{"open", "enter"}, plan.Plan)
	assert.Equal(t, "a_star", plan.Algorithm)
	assert.InDelta(t, 2.0, plan.Cost, 1e-9)

	// 未找到计划不是错误
	code, env = s.do(t, http.MethodPost, "/api/v1/plan", map[string]any{
		"initial": map[string]any{"door": "closed"},
		"goal":    map[string]any{"flying": true},
	})
	require.Equal(t, http.StatusOK, code)
	missing := decodeData[struct {
		Plan  []string `json:"plan"`
		Found bool     `json:"found"`
	}](t, env)
	assert.False(t, missing.Found)
	assert.Empty(t, missing.Plan)

	code, _ = s.do(t, http.MethodPost, "/api/v1/actions", map[string]any{"name": "", "assign": map[string]any{"x": 1}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/actions", map[string]any{"name": "fly", "assign": map[string]any{"flying": true}})
	assert.Equal(t, http.StatusCreated, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/decide", map[string]any{"state": map[string]any{}, "actions": []string{"wait"}})
	require.Equal(t, http.StatusOK, code)
	decided := decodeData[struct {
		Action  string `json:"action"`
		Decided bool   `json:"decided"`
	}](t, env)
	assert.Equal(t, "wait", decided.Action)

	code, env = s.do(t, http.MethodPost, "/api/v1/decide", map[string]any{"actions": []string{}})
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[struct {
		Decided bool `json:"decided"`
	}](t, env).Decided)
}

func TestKernelHandler_Memory(t *testing.T) {
	s := newKernelServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/memory", map[string]any{
		"type": "episodic", "payload": map[string]any{"event": "met socrates"}, "priority": 1,
	})
	require.Equal(t, http.StatusCreated, code)
	item := decodeData[struct {
		ID string `json:"id"`
	}](t, env)
	assert.NotEmpty(t, item.ID)

	code, env = s.do(t, http.MethodPost, "/api/v1/memory/recall", map[string]any{
		"type": "episodic", "query": map[string]any{"event": "met socrates"}, "limit": 5,
	})
	require.Equal(t, http.StatusOK, code)
	items := decodeData[[]map[string]any](t, env)
	assert.Len(t, items, 1)

	code, _ = s.do(t, http.MethodPost, "/api/v1/memory/clear", map[string]any{"types": []string{"episodic"}})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/memory/recall", map[string]any{
		"type": "episodic", "query": map[string]any{"event": "met socrates"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeData[[]map[string]any](t, env))

	code, _ = s.do(t, http.MethodPost, "/api/v1/memory/clear", map[string]any{"types": []string{"dreams"}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestKernelHandler_MemoryDefaults(t *testing.T) {
	s := newKernelServer(t)

	type recalled struct {
		Payload     map[string]any `json:"payload"`
		Priority    float64        `json:"priority"`
		AccessCount int            `json:"access_count"`
	}

	code, env := s.do(t, http.MethodPost, "/api/v1/memory", map[string]any{
		"type": "episodic", "payload": map[string]any{"topic": "greek", "kind": "teacher"},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1.0, decodeData[recalled](t, env).Priority, "omitted priority stores at 1.0")

	for i := 0; i < 6; i++ {
		code, _ = s.do(t, http.MethodPost, "/api/v1/memory", map[string]any{
			"type": "episodic", "payload": map[string]any{"topic": "greek", "kind": "student"},
		})
		require.Equal(t, http.StatusCreated, code)
	}

	// 缺省阈值 0.5：只有一个字段匹配的 teacher 条目通过，其余得分为 0
	code, env = s.do(t, http.MethodPost, "/api/v1/memory/recall", map[string]any{
		"type": "episodic", "query": map[string]any{"topic": "roman", "kind": "teacher"},
	})
	require.Equal(t, http.StatusOK, code)
	items := decodeData[[]recalled](t, env)
	require.Len(t, items, 1)
	assert.Equal(t, "teacher", items[0].Payload["kind"])

	// 所有条目得分至少 0.5，缺省 limit 为 5
	code, env = s.do(t, http.MethodPost, "/api/v1/memory/recall", map[string]any{
		"type": "episodic", "query": map[string]any{"topic": "greek", "kind": "teacher"},
	})
	require.Equal(t, http.StatusOK, code)
	items = decodeData[[]recalled](t, env)
	require.Len(t, items, 5)
	assert.Equal(t, "teacher", items[0].Payload["kind"])
	assert.Equal(t, 2, items[0].AccessCount, "counted by both recalls")
	for _, it := range items[1:] {
		assert.Equal(t, 1, it.AccessCount, "students scored 0 on the first recall and were not counted")
	}

	// 显式阈值 0 仍然生效
	code, env = s.do(t, http.MethodPost, "/api/v1/memory/recall", map[string]any{
		"type": "episodic", "query": map[string]any{"topic": "roman", "kind": "none"}, "threshold": 0, "limit": 10,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]recalled](t, env), 7)
}

func TestKernelHandler_TuneAndStats(t *testing.T) {
	s := newKernelServer(t)

	code, env := s.do(t, http.MethodPut, "/api/v1/tuning", map[string]any{"algorithm": "warp_drive"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNKNOWN_STRATEGY", env.Error.Code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/tuning", map[string]any{"algorithm": "bfs", "strategy": "rule_based"})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, code)
	stats := decodeData[StatsResponse](t, env)
	assert.Equal(t, "k-http", stats.Kernel.ID)
	assert.Equal(t, "bfs", string(stats.Kernel.Planning.Algorithm))
	assert.Equal(t, 16, stats.Queue.Size)
}

func TestKernelHandler_ClosedKernel(t *testing.T) {
	s := newKernelServer(t)
	require.NoError(t, s.owner.Close())

	code, env := s.do(t, http.MethodGet, "/api/v1/query?subject=x", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "KERNEL_CLOSED", env.Error.Code)
}
