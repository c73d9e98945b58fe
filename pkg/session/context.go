package session

import "context"

type ctxKey struct{}

// WithContext stores s in ctx.
func WithContext(ctx context.Context, s SessionContainer) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by the application's verify
// middleware, or nil.
func FromContext(ctx context.Context) SessionContainer {
	s, _ := ctx.Value(ctxKey{}).(SessionContainer)
	return s
}
