package shared

import "context"

// RequestScope identifies who performs an operation and in which branch. It is
// handed explicitly to every settlement operation.
type RequestScope struct {
	ActorID  int64
	BranchID int64
}

type scopeContextKey struct{}

// ContextWithScope stores the request scope resolved by transport middleware.
func ContextWithScope(ctx context.Context, scope RequestScope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the request scope stored by ContextWithScope.
func ScopeFromContext(ctx context.Context) (RequestScope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(RequestScope)
	return scope, ok
}
