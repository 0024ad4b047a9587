package kernel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/internal/channel"
	"github.com/BaSui01/agentkernel/types"
)

// Op is an operation run by the owner goroutine with exclusive access to the kernel.
type Op func(ctx context.Context, k *Kernel) error

type request struct {
	ctx  context.Context
	op   Op
	resp chan error
}

// Owner 内核所有者 - 单一 goroutine 持有 Kernel，按到达顺序串行执行请求
//
// 多个调用方通过 Do 提交闭包，而不是共享锁。Close 之后排队中的请求收到 KERNEL_CLOSED。
type Owner struct {
	kernel *Kernel
	inbox  *channel.Mailbox[request]
	done   chan struct{}
	logger *zap.Logger
}

// NewOwner starts the owner goroutine for k. queueSize bounds pending requests.
func NewOwner(k *Kernel, queueSize int) *Owner {
	o := &Owner{
		kernel: k,
		inbox:  channel.NewMailbox[request](queueSize),
		done:   make(chan struct{}),
		logger: k.logger.With(zap.String("role", "owner")),
	}
	go o.loop()
	return o
}

func errClosed() error {
	return types.NewError(types.ErrKernelClosed, "kernel owner is closed").WithHTTPStatus(503)
}

// Do runs op on the owner goroutine and waits for its result.
//
// 若 ctx 在排队期间结束，请求被跳过；若在执行期间结束，Do 立即返回 ctx 错误，op 仍会执行完毕。
func (o *Owner) Do(ctx context.Context, op Op) error {
	req := request{ctx: ctx, op: op, resp: make(chan error, 1)}
	if err := o.inbox.Send(ctx, req); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return errClosed()
		}
		return err
	}

	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		select {
		case err := <-req.resp:
			return err
		default:
			return errClosed()
		}
	}
}

// Call runs fn on the owner goroutine and returns its value.
func Call[T any](ctx context.Context, o *Owner, fn func(ctx context.Context, k *Kernel) (T, error)) (T, error) {
	var out T
	err := o.Do(ctx, func(ctx context.Context, k *Kernel) error {
		v, err := fn(ctx, k)
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (o *Owner) loop() {
	defer close(o.done)
	for {
		req, err := o.inbox.Receive(context.Background())
		if err != nil {
			o.drain()
			o.logger.Info("kernel owner stopped")
			return
		}
		select {
		case <-o.inbox.Done():
			req.resp <- errClosed()
		default:
			req.resp <- o.serve(req)
		}
	}
}

func (o *Owner) drain() {
	for {
		req, ok := o.inbox.TryReceive()
		if !ok {
			return
		}
		req.resp <- errClosed()
	}
}

func (o *Owner) serve(req request) (err error) {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("kernel operation panicked", zap.Any("panic", r))
			err = types.NewError(types.ErrInternalError, "kernel operation panicked").
				WithCause(fmt.Errorf("%v", r))
		}
	}()
	return req.op(req.ctx, o.kernel)
}

// Close stops accepting requests and waits for the owner goroutine to exit.
func (o *Owner) Close() error {
	o.inbox.Close()
	<-o.done
	return nil
}

// QueueStats returns the request queue statistics.
func (o *Owner) QueueStats() channel.MailboxStats {
	return o.inbox.Stats()
}
