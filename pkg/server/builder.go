package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/runbook-engine/pkg/auth"
	"github.com/ethpandaops/runbook-engine/pkg/config"
	"github.com/ethpandaops/runbook-engine/pkg/middleware"
	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// Builder constructs and wires all dependencies for the runbook engine's
// HTTP server.
type Builder struct {
	log     logrus.FieldLogger
	cfg     *config.Config
	version string
}

// NewBuilder creates a new server builder.
func NewBuilder(log logrus.FieldLogger, cfg *config.Config, version string) *Builder {
	return &Builder{
		log:     log.WithField("component", "builder"),
		cfg:     cfg,
		version: version,
	}
}

// Build constructs the core runbook.Service, auth validator, and rate
// limiter, then returns the runnable HTTP Service.
func (b *Builder) Build() (Service, error) {
	b.log.Info("building runbook engine server dependencies")

	runbookSvc := runbook.NewService(b.buildServiceConfig(), b.log)

	authValid := b.buildAuth()

	rateLimiter, err := middleware.NewRateLimiter(b.log, b.cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("building rate limiter: %w", err)
	}

	return NewService(b.log, *b.cfg, runbookSvc, authValid, rateLimiter, b.version), nil
}

func (b *Builder) buildServiceConfig() runbook.ServiceConfig {
	return runbook.ServiceConfig{
		RunbooksDir:       b.cfg.Runbooks.Dir,
		Shell:             b.cfg.Runbooks.Shell,
		ScriptTimeoutSecs: b.cfg.Execution.ScriptTimeoutSeconds,
		MaxOutputBytes:    b.cfg.Execution.MaxOutputBytes,
		MaxRecursionDepth: b.cfg.Execution.MaxRecursionDepth,
		APIBaseURL:        b.cfg.API.BaseURL(),
	}
}

// buildAuth creates the JWT validator. When auth is disabled in config the
// validator is still constructed (so Start/Stop are safe to call
// unconditionally) but the HTTP middleware never invokes Validate.
func (b *Builder) buildAuth() auth.Validator {
	return auth.NewValidator(b.log, auth.ValidatorConfig{
		JWKSURL:       b.cfg.Auth.JWKSURL,
		Issuer:        b.cfg.Auth.Issuer,
		Audience:      b.cfg.Auth.Audience,
		AllowedGroups: b.cfg.Auth.AllowedGroups,
	})
}
