package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const keyKernelID contextKey = "kernel_id"

// WithKernelID tags the context with the kernel instance serving the call.
// Action callbacks and strategies receive the tagged context.
func WithKernelID(ctx context.Context, kernelID string) context.Context {
	return context.WithValue(ctx, keyKernelID, kernelID)
}

// KernelID extracts kernel ID from context.
func KernelID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyKernelID).(string)
	return v, ok && v != ""
}
