// Package tenantctx carries the authenticated client identity through request
// contexts so services and the audit trail agree on who acted.
package tenantctx

import "context"

type contextKey string

const (
	clientIDKey contextKey = "client_id"
	tenantKey   contextKey = "tenant"
	scopesKey   contextKey = "scopes"
)

func WithClient(ctx context.Context, clientID, tenant string, scopes []string) context.Context {
	ctx = context.WithValue(ctx, clientIDKey, clientID)
	ctx = context.WithValue(ctx, tenantKey, tenant)
	ctx = context.WithValue(ctx, scopesKey, scopes)
	return ctx
}

func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey).(string); ok {
		return v
	}
	return ""
}

func ScopesFromContext(ctx context.Context) []string {
	if v, ok := ctx.Value(scopesKey).([]string); ok {
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
