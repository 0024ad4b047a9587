package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSubject(ctx, "alice")
	ctx = WithTraceID(ctx, "trace-1")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	sub, ok := Subject(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", sub)

	tid, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", tid)
}

func TestContextKeys_EmptyValue(t *testing.T) {
	ctx := WithSubject(context.Background(), "")
	_, ok := Subject(ctx)
	assert.False(t, ok)
}
