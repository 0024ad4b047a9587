package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/api"
	"github.com/BaSui01/agentkernel/config"
	"github.com/BaSui01/agentkernel/types"
)

// =============================================================================
// ⚙️ 配置管理 Handler
// =============================================================================

// ConfigHandler 运行时配置查看、修改与回滚
type ConfigHandler struct {
	manager *config.HotReloadManager
	logger  *zap.Logger
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(manager *config.HotReloadManager, logger *zap.Logger) *ConfigHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHandler{manager: manager, logger: logger.With(zap.String("handler", "config"))}
}

// Register 注册 /api/v1/config 路由
func (h *ConfigHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/config", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/config", h.HandleUpdate)
	mux.HandleFunc("POST /api/v1/config/reload", h.HandleReload)
	mux.HandleFunc("POST /api/v1/config/rollback", h.HandleRollback)
	mux.HandleFunc("GET /api/v1/config/changes", h.HandleChanges)
	mux.HandleFunc("GET /api/v1/config/fields", h.HandleFields)
}

// 配置变更失败均为调用方输入问题（未知字段、类型不符、校验失败、版本不存在）
func (h *ConfigHandler) reject(w http.ResponseWriter, r *http.Request, message string, err error) {
	writeErrorFor(w, r, types.NewError(types.ErrInvalidRequest, message).WithCause(err), h.logger)
}

// ConfigView 脱敏配置与版本号
type ConfigView struct {
	Version int            `json:"version"`
	Config  map[string]any `json:"config"`
}

func (h *ConfigHandler) view() ConfigView {
	return ConfigView{Version: h.manager.GetCurrentVersion(), Config: h.manager.SanitizedConfig()}
}

// HandleGet 返回脱敏后的当前配置
// @Summary 获取配置
// @Tags 配置
// @Produce json
// @Success 200 {object} ConfigView
// @Router /api/v1/config [get]
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeSuccessStatus(w, r, http.StatusOK, h.view())
}

// HandleUpdate 修改单个已登记字段
// @Summary 更新配置字段
// @Tags 配置
// @Accept json
// @Produce json
// @Param request body api.ConfigFieldUpdate true "字段"
// @Success 200 {object} ConfigView
// @Failure 400 {object} Response
// @Router /api/v1/config [put]
func (h *ConfigHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ConfigFieldUpdate
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Path == "" {
		h.reject(w, r, "path is required", nil)
		return
	}
	if err := h.manager.UpdateField(req.Path, req.Value); err != nil {
		h.reject(w, r, "config update rejected", err)
		return
	}
	h.logger.Info("config field updated", zap.String("path", req.Path))
	writeSuccessStatus(w, r, http.StatusOK, h.view())
}

// HandleReload 从配置文件重新加载
// @Summary 重新加载配置文件
// @Tags 配置
// @Produce json
// @Success 200 {object} ConfigView
// @Router /api/v1/config/reload [post]
func (h *ConfigHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ReloadFromFile(); err != nil {
		h.reject(w, r, "config reload failed", err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, h.view())
}

// HandleRollback 回滚到上一版本或指定版本
// @Summary 回滚配置
// @Tags 配置
// @Accept json
// @Produce json
// @Param request body api.ConfigRollbackRequest false "版本"
// @Success 200 {object} ConfigView
// @Router /api/v1/config/rollback [post]
func (h *ConfigHandler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	var req api.ConfigRollbackRequest
	if r.ContentLength != 0 {
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	var err error
	if req.Version > 0 {
		err = h.manager.RollbackToVersion(req.Version)
	} else {
		err = h.manager.Rollback()
	}
	if err != nil {
		h.reject(w, r, "config rollback failed", err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, h.view())
}

// HandleChanges 返回最近的变更记录
// @Summary 配置变更记录
// @Tags 配置
// @Produce json
// @Param limit query int false "数量上限"
// @Success 200 {object} Response
// @Router /api/v1/config/changes [get]
func (h *ConfigHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.reject(w, r, "limit must be an integer", err)
			return
		}
		limit = n
	}
	changes := h.manager.GetChangeLog(limit)
	if changes == nil {
		changes = []config.ConfigChange{}
	}
	writeSuccessStatus(w, r, http.StatusOK, changes)
}

// HandleFields 返回可修改字段的登记表
// @Summary 可热更新字段
// @Tags 配置
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/config/fields [get]
func (h *ConfigHandler) HandleFields(w http.ResponseWriter, r *http.Request) {
	writeSuccessStatus(w, r, http.StatusOK, config.GetHotReloadableFields())
}
