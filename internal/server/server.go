package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrStopped        = errors.New("server is stopped")
)

// Config 单个监听器的参数
type Config struct {
	// Name 出现在日志里，例如 api、metrics
	Name string `yaml:"name" json:"name"`
	// Addr 监听地址，":0" 由系统分配端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// MaxConnections 限制同时打开的连接数，超出的连接在 accept 处等待；0 不限
	MaxConnections int `yaml:"max_connections" json:"max_connections"`

	// TLS 非 nil 时以 HTTPS 提供服务
	TLS *tls.Config `yaml:"-" json:"-"`
}

func DefaultConfig() Config {
	return Config{
		Name:              "api",
		Addr:              ":8080",
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// ConnStats 连接计数，来自 http.Server.ConnState 回调
type ConnStats struct {
	Active   int64  `json:"active"`
	Accepted uint64 `json:"accepted"`
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// =============================================================================
// 🌐 Server
// =============================================================================

// Server 管理一个 http.Server 的监听、服务与关闭。Serve 失败会发到 Errors。
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *zap.Logger
	errs   chan error

	active   atomic.Int64
	accepted atomic.Uint64

	mu    sync.Mutex
	state state
	ln    net.Listener
}

func New(handler http.Handler, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", cfg.Name)),
		errs:   make(chan error, 1),
	}
	s.srv = &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		TLSConfig:         cfg.TLS,
		ConnState:         s.trackConn,
	}
	// TLS 握手失败等 net/http 内部错误走 zap
	if l, err := zap.NewStdLogAt(s.logger, zap.WarnLevel); err == nil {
		s.srv.ErrorLog = l
	}
	return s
}

func (s *Server) Name() string { return s.cfg.Name }

func (s *Server) trackConn(_ net.Conn, st http.ConnState) {
	switch st {
	case http.StateNew:
		s.accepted.Add(1)
		s.active.Add(1)
	case http.StateHijacked, http.StateClosed:
		s.active.Add(-1)
	}
}

// Start 绑定端口并在后台服务，立即返回。只能启动一次。
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", s.cfg.Name, s.cfg.Addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.ln = ln
	s.state = stateRunning

	s.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.cfg.TLS != nil),
		zap.Int("max_connections", s.cfg.MaxConnections))

	go func() {
		err := s.srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.logger.Error("serve failed", zap.Error(err))
		select {
		case s.errs <- fmt.Errorf("%s: %w", s.cfg.Name, err):
		default:
		}
	}()
	return nil
}

// Errors 只会收到 Serve 的异常退出，正常关闭不发送
func (s *Server) Errors() <-chan error { return s.errs }

// Shutdown 在 ShutdownTimeout 内排空请求；未启动或已关闭时直接返回 nil
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		s.state = stateStopped
		return nil
	}
	s.state = stateStopped

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown incomplete", zap.Int64("active_connections", s.active.Load()), zap.Error(err))
		return fmt.Errorf("%s: shutdown: %w", s.cfg.Name, err)
	}
	s.logger.Info("stopped", zap.Uint64("connections_served", s.accepted.Load()))
	return nil
}

// BoundAddr 实际监听地址；未运行时为空
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *Server) ConnStats() ConnStats {
	return ConnStats{Active: s.active.Load(), Accepted: s.accepted.Load()}
}
