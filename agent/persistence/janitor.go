package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// janitor 定期删除过期快照，stop 关闭后退出
type janitor struct {
	stop chan struct{}
	done chan struct{}
}

func startJanitor(store SnapshotStore, cfg CleanupConfig, logger *zap.Logger) *janitor {
	if !cfg.Enabled || cfg.Interval <= 0 || cfg.Retention <= 0 {
		return nil
	}
	j := &janitor{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
				n, err := store.Cleanup(ctx, cfg.Retention)
				cancel()
				if err != nil {
					logger.Warn("snapshot cleanup failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("removed stale snapshots", zap.Int("count", n))
				}
			}
		}
	}()
	return j
}

// halt is safe on a nil janitor.
func (j *janitor) halt() {
	if j == nil {
		return
	}
	close(j.stop)
	<-j.done
}
