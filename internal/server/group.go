package server

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Group 把 API 与 metrics 等监听器作为一个整体启动、等待和关闭。
type Group struct {
	servers []*Server
	logger  *zap.Logger
}

func NewGroup(logger *zap.Logger, servers ...*Server) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{servers: servers, logger: logger}
}

// Start 依次启动；任何一个失败时关闭已启动的并返回该错误
func (g *Group) Start() error {
	for i, s := range g.servers {
		if err := s.Start(); err != nil {
			for _, started := range g.servers[:i] {
				_ = started.Shutdown(context.Background())
			}
			return err
		}
	}
	return nil
}

// Wait 阻塞到 ctx 结束（返回 nil）或任一监听器异常退出（返回其错误），不负责关闭。
func (g *Group) Wait(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)
	for _, s := range g.servers {
		errs := s.Errors()
		eg.Go(func() error {
			select {
			case err := <-errs:
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}
	err := eg.Wait()
	if err != nil {
		g.logger.Error("listener failed", zap.Error(err))
	}
	return err
}

// Shutdown 并发关闭全部监听器，合并错误
func (g *Group) Shutdown(ctx context.Context) error {
	errs := make([]error, len(g.servers))
	var wg sync.WaitGroup
	for i, s := range g.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Shutdown(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Run = Start + Wait + Shutdown
func (g *Group) Run(ctx context.Context) error {
	if err := g.Start(); err != nil {
		return err
	}
	runErr := g.Wait(ctx)
	return errors.Join(runErr, g.Shutdown(context.WithoutCancel(ctx)))
}
