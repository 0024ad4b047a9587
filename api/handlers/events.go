package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/internal/events"
	"github.com/BaSui01/agentkernel/types"
)

// =============================================================================
// 📡 事件流 Handler
// =============================================================================

// EventsConfig 事件流配置
type EventsConfig struct {
	// 每个连接的事件缓冲，满时丢弃
	Buffer int
	// 心跳间隔
	PingInterval time.Duration
	// 单条事件写超时
	WriteTimeout time.Duration
	// 允许的跨域 Origin 模式，空表示仅同源
	OriginPatterns []string
}

// DefaultEventsConfig returns a 64-event buffer with a 30s ping.
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Buffer:       events.DefaultBufferSize,
		PingInterval: 30 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// EventsHandler 通过 WebSocket 推送内核事件
type EventsHandler struct {
	hub    *events.Hub
	config EventsConfig
	logger *zap.Logger
}

// NewEventsHandler 创建事件流处理器
func NewEventsHandler(hub *events.Hub, config EventsConfig, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultEventsConfig()
	if config.Buffer <= 0 {
		config.Buffer = def.Buffer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	return &EventsHandler{hub: hub, config: config, logger: logger.With(zap.String("handler", "events"))}
}

// Register 注册事件路由
func (h *EventsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/events", h.HandleEvents)
	mux.HandleFunc("GET /api/v1/events/stats", h.HandleStats)
}

func parseEventTypes(raw string) ([]events.Type, error) {
	if raw == "" {
		return nil, nil
	}
	var out []events.Type
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t, ok := events.ParseType(name)
		if !ok {
			return nil, types.NewInvalidRequestError("unknown event type %q", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// HandleEvents 升级为 WebSocket 并推送事件，每条消息是一个 JSON 编码的事件
// @Summary 内核事件流（WebSocket）
// @Tags 事件
// @Param types query string false "逗号分隔的事件类型"
// @Success 101
// @Failure 400 {object} Response
// @Router /api/v1/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		writeErrorFor(w, r, toAPIError(err), h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.config.OriginPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.hub.Subscribe(h.config.Buffer, filter...)
	defer sub.Close()

	// 客户端不发送数据，CloseRead 负责处理控制帧并在断开时取消 ctx
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	h.logger.Debug("event stream opened", zap.Int("filters", len(filter)))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, e); err != nil {
				h.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("event stream ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, e events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

// HandleStats 事件中心统计
// @Summary 事件中心统计
// @Tags 事件
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/events/stats [get]
func (h *EventsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeSuccessStatus(w, r, http.StatusOK, h.hub.Stats())
}
