package middleware

import (
	"context"
	"strings"

	"github.com/ayo6706/token-ledger/internal/domain"
)

type contextKey int

const (
	authContextKey contextKey = iota
	holderContextKey
	traceContextKey
)

func withAuthorization(ctx context.Context, auth domain.Authorization) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthorizationFromContext returns the identities proven by the request
// token. The zero value proves nothing.
func AuthorizationFromContext(ctx context.Context) domain.Authorization {
	if v, ok := ctx.Value(authContextKey).(domain.Authorization); ok {
		return v
	}
	return domain.NewAuthorization()
}

// AccountFromContext returns the proven identities joined with "+". It scopes
// rate limits and idempotency keys.
func AccountFromContext(ctx context.Context) string {
	signers := AuthorizationFromContext(ctx).Signers()
	parts := make([]string, len(signers))
	for i, n := range signers {
		parts[i] = n.String()
	}
	return strings.Join(parts, "+")
}

// accountHolder lets the access log learn the signer that auth resolved
// further down the chain.
type accountHolder struct {
	account string
}

func withAccountHolder(ctx context.Context, h *accountHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

func holderFromContext(ctx context.Context) *accountHolder {
	h, _ := ctx.Value(holderContextKey).(*accountHolder)
	return h
}

func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceContextKey).(string)
	return id
}
