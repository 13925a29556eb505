package auth

import "context"

type ctxKey string

const (
	principalKey ctxKey = "auth_principal"
	tokenKey     ctxKey = "auth_token"
)

// ContextWithPrincipal stores the verified principal in the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the verified principal, if present.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// ContextWithToken stores the raw bearer token in the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext extracts the raw bearer token, if present.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	if !ok || t == "" {
		return "", false
	}
	return t, true
}
