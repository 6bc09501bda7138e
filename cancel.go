package apireq

import "context"

type contextCancelProvider struct{}

// DefaultCancelProvider returns the provider used when none is configured.
// It derives each call context with context.WithCancelCause.
func DefaultCancelProvider() CancelProvider {
	return contextCancelProvider{}
}

func (contextCancelProvider) Create(parent context.Context) (context.Context, context.CancelCauseFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithCancelCause(parent)
}
