package domain

import (
	"context"
)

type ctxKey int

// PrincipalCtxKey carries the caller principal extracted by the REST
// middleware.
const PrincipalCtxKey ctxKey = iota

// PrincipalFrom returns the caller principal bound to ctx, or the empty
// string when the request was anonymous.
func PrincipalFrom(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalCtxKey).(string); ok {
		return principal
	}
	return ""
}
