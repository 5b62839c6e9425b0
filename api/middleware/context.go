package middleware

import "context"

type contextKey string

const (
	ctxServiceName contextKey = "service_name"
	ctxScopes      contextKey = "scopes"
)

func ServiceNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxServiceName).(string); ok {
		return v
	}
	return ""
}

func ScopesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxScopes).([]string); ok {
		return v
	}
	return nil
}

func HasScope(ctx context.Context, scope string) bool {
	for _, s := range ScopesFromContext(ctx) {
		if s == scope {
			return true
		}
	}
	return false
}

// WithServiceIdentity injects the calling service's name and scopes into the context.
func WithServiceIdentity(ctx context.Context, name string, scopes []string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxServiceName, name)
	return context.WithValue(ctx, ctxScopes, scopes)
}
