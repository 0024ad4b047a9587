package persistence

import (
	"context"
	"time"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

// OpRecorder receives one event per store operation; metrics.Collector implements it.
type OpRecorder interface {
	RecordSnapshotOp(backend, operation string, err error, duration time.Duration)
}

// InstrumentedSnapshotStore reports every operation of inner to a recorder.
type InstrumentedSnapshotStore struct {
	inner    SnapshotStore
	backend  string
	recorder OpRecorder
}

// NewInstrumentedSnapshotStore wraps inner; backend labels the events.
func NewInstrumentedSnapshotStore(inner SnapshotStore, backend StoreType, recorder OpRecorder) *InstrumentedSnapshotStore {
	return &InstrumentedSnapshotStore{inner: inner, backend: string(backend), recorder: recorder}
}

func (s *InstrumentedSnapshotStore) observe(op string, start time.Time, err error) {
	s.recorder.RecordSnapshotOp(s.backend, op, err, time.Since(start))
}

func (s *InstrumentedSnapshotStore) Close() error {
	return s.inner.Close()
}

func (s *InstrumentedSnapshotStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *InstrumentedSnapshotStore) Save(ctx context.Context, id string, snap *kernel.Snapshot) error {
	start := time.Now()
	err := s.inner.Save(ctx, id, snap)
	s.observe("save", start, err)
	return err
}

func (s *InstrumentedSnapshotStore) Load(ctx context.Context, id string) (*kernel.Snapshot, error) {
	start := time.Now()
	snap, err := s.inner.Load(ctx, id)
	s.observe("load", start, err)
	return snap, err
}

func (s *InstrumentedSnapshotStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

func (s *InstrumentedSnapshotStore) List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error) {
	start := time.Now()
	infos, err := s.inner.List(ctx, filter)
	s.observe("list", start, err)
	return infos, err
}

func (s *InstrumentedSnapshotStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	start := time.Now()
	n, err := s.inner.Cleanup(ctx, olderThan)
	s.observe("cleanup", start, err)
	return n, err
}
