package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

var _ kernel.Recorder = (*Hub)(nil)

func recv(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestHub_PublishToSubscribers(t *testing.T) {
	h := NewHub("k1", zaptest.NewLogger(t))
	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.RecordPlan("a_star", true, 7, 2*time.Millisecond)

	for _, s := range []*Subscription{a, b} {
		e := recv(t, s)
		assert.Equal(t, TypePlan, e.Type)
		assert.Equal(t, "k1", e.KernelID)
		assert.Equal(t, uint64(1), e.Seq)
		assert.Equal(t, 2.0, e.DurationMS)
		assert.Equal(t, "a_star", e.Attrs["algorithm"])
		assert.Equal(t, true, e.Attrs["found"])
		assert.Equal(t, 7, e.Attrs["nodes_explored"])
	}
	assert.Equal(t, Stats{Subscribers: 2, Published: 1}, h.Stats())
}

func TestHub_Filter(t *testing.T) {
	h := NewHub("k1", nil)
	s := h.Subscribe(4, TypeCycle)

	h.RecordFactAdded("fact")
	h.RecordCycle(true, false, time.Millisecond)

	e := recv(t, s)
	assert.Equal(t, TypeCycle, e.Type)
	assert.Equal(t, uint64(2), e.Seq)
	assert.Empty(t, s.Events())
}

func TestHub_SetKernelID(t *testing.T) {
	h := NewHub("", nil)
	s := h.Subscribe(2)

	h.RecordFactAdded("fact")
	h.SetKernelID("k-late")
	h.RecordFactAdded("fact")

	assert.Empty(t, recv(t, s).KernelID)
	assert.Equal(t, "k-late", recv(t, s).KernelID)
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub("k1", nil)
	s := h.Subscribe(1)

	h.RecordFactAdded("fact")
	h.RecordFactAdded("rule")
	h.RecordFactAdded("rule")

	assert.Equal(t, int64(2), s.Dropped())
	assert.Equal(t, int64(2), h.Stats().Dropped)
	assert.Equal(t, "fact", recv(t, s).Attrs["kind"])
}

func TestHub_CloseSubscription(t *testing.T) {
	h := NewHub("k1", nil)
	s := h.Subscribe(1)
	s.Close()
	s.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Stats().Subscribers)

	h.RecordFactAdded("fact")
}

func TestHub_Close(t *testing.T) {
	h := NewHub("k1", nil)
	s := h.Subscribe(1)
	h.Close()
	h.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)

	late := h.Subscribe(1)
	_, ok = <-late.Events()
	assert.False(t, ok)
	late.Close()
}

func TestHub_ConcurrentPublish(t *testing.T) {
	h := NewHub("k1", nil)
	s := h.Subscribe(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.RecordAction("success", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Events(), 500)
	assert.Equal(t, uint64(500), h.Stats().Published)
}

func TestParseType(t *testing.T) {
	for _, typ := range AllTypes {
		got, ok := ParseType(string(typ))
		assert.True(t, ok)
		assert.Equal(t, typ, got)
	}
	_, ok := ParseType("bogus")
	assert.False(t, ok)
}
