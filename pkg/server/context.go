package server

import (
	"context"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

type contextKey string

const tokenContextKey contextKey = "token_context"

func withTokenContext(ctx context.Context, tok *runbook.TokenContext) context.Context {
	return context.WithValue(ctx, tokenContextKey, tok)
}

// tokenContextFrom extracts the *runbook.TokenContext the auth middleware
// injected. Handlers downstream of the middleware can always assume one is
// present, even when auth is disabled (an anonymous context is injected).
func tokenContextFrom(ctx context.Context) *runbook.TokenContext {
	tok, _ := ctx.Value(tokenContextKey).(*runbook.TokenContext)
	return tok
}
