package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentkernel/config"
)

func newConfigServer(t *testing.T) (*testServer, *config.HotReloadManager) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.JWT.Secret = "top-secret"
	manager := config.NewHotReloadManager(cfg, config.WithHotReloadLogger(zaptest.NewLogger(t)))

	mux := http.NewServeMux()
	NewConfigHandler(manager, zaptest.NewLogger(t)).Register(mux)
	return &testServer{mux: mux}, manager
}

func TestConfigHandler_GetRedactsSecrets(t *testing.T) {
	s, _ := newConfigServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, code)
	view := decodeData[ConfigView](t, env)

	jwt, ok := view.Config["JWT"].(map[string]any)
	require.True(t, ok)
	assert.NotEqual(t, "top-secret", jwt["Secret"])
}

func TestConfigHandler_UpdateAndRollback(t *testing.T) {
	s, manager := newConfigServer(t)
	var reloaded []string
	manager.OnReload(func(_, next *config.Config) error {
		reloaded = append(reloaded, next.Kernel.Planner.Algorithm)
		return nil
	})

	code, _ := s.do(t, http.MethodPut, "/api/v1/config", map[string]any{"path": "Kernel.Planner.Algorithm", "value": "bfs"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bfs", manager.GetConfig().Kernel.Planner.Algorithm)
	assert.Equal(t, []string{"bfs"}, reloaded)

	code, env := s.do(t, http.MethodGet, "/api/v1/config/changes?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	changes := decodeData[[]config.ConfigChange](t, env)
	require.NotEmpty(t, changes)
	assert.Equal(t, "Kernel.Planner.Algorithm", changes[len(changes)-1].Path)

	code, _ = s.do(t, http.MethodPost, "/api/v1/config/rollback", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a_star", manager.GetConfig().Kernel.Planner.Algorithm)
}

func TestConfigHandler_Rejections(t *testing.T) {
	s, _ := newConfigServer(t)

	code, env := s.do(t, http.MethodPut, "/api/v1/config", map[string]any{"path": "Kernel.Planner.Algorithm", "value": "teleport"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/config", map[string]any{"path": "Server.Nope", "value": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/config/rollback", map[string]any{"version": 999})
	assert.Equal(t, http.StatusBadRequest, code)

	// 未设置配置文件路径
	code, _ = s.do(t, http.MethodPost, "/api/v1/config/reload", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfigHandler_Fields(t *testing.T) {
	s, _ := newConfigServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/config/fields", nil)
	require.Equal(t, http.StatusOK, code)
	fields := decodeData[map[string]config.HotReloadableField](t, env)
	assert.False(t, fields["Kernel.Planner.Algorithm"].RequiresRestart)
	assert.True(t, fields["JWT.Secret"].Sensitive)
}
