package server

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/runbook-engine/pkg/auth"
	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// authMiddleware validates the bearer token (when auth is enabled) and
// injects the resulting runbook.TokenContext into the request context.
// Per-runbook Required Claims authorization happens downstream inside the
// core Service; this middleware only establishes who the caller is.
type authMiddleware struct {
	log       logrus.FieldLogger
	validator auth.Validator
	enabled   bool
}

func newAuthMiddleware(log logrus.FieldLogger, validator auth.Validator, enabled bool) *authMiddleware {
	return &authMiddleware{
		log:       log.WithField("component", "auth-middleware"),
		validator: validator,
		enabled:   enabled,
	}
}

func (m *authMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		if !m.enabled {
			ctx := withTokenContext(r.Context(), &runbook.TokenContext{RemoteAddr: remoteAddr})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}

		rawBearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		tok, err := m.validator.Validate(r.Context(), rawBearer)
		if err != nil {
			m.log.WithError(err).Debug("bearer token rejected")
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		tok.RemoteAddr = remoteAddr

		ctx := withTokenContext(r.Context(), tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
