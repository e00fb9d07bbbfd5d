// Package auth adapts bearer JWTs into the runbook core's TokenContext.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// Validator validates bearer JWTs using JWKS fetched from an issuer and
// produces the core's runbook.TokenContext.
type Validator interface {
	// Validate validates rawBearer and returns the resulting token context.
	Validate(ctx context.Context, rawBearer string) (*runbook.TokenContext, error)

	// Start begins the background JWKS refresh loop.
	Start(ctx context.Context) error

	// Stop ends the background JWKS refresh loop.
	Stop() error
}

// ValidatorConfig configures the JWT validator.
type ValidatorConfig struct {
	// JWKSURL is the URL to fetch JWKS from.
	JWKSURL string `yaml:"jwks_url"`

	// Issuer is the expected token issuer.
	Issuer string `yaml:"issuer"`

	// Audience is the expected token audience (optional).
	Audience string `yaml:"audience,omitempty"`

	// AllowedGroups restricts access to tokens whose groups claim
	// intersects this list. Empty means group membership is not checked
	// here; per-runbook Required Claims still apply downstream.
	AllowedGroups []string `yaml:"allowed_groups,omitempty"`

	// RefreshInterval is how often to refresh the JWKS cache.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
}

// ApplyDefaults sets default values for the validator config.
func (c *ValidatorConfig) ApplyDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 1 * time.Hour
	}
}

type jwtValidator struct {
	log    logrus.FieldLogger
	cfg    ValidatorConfig
	client *http.Client

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey

	stopCh  chan struct{}
	stopped bool
}

var _ Validator = (*jwtValidator)(nil)

// NewValidator creates a new JWT validator bound to cfg.
func NewValidator(log logrus.FieldLogger, cfg ValidatorConfig) Validator {
	cfg.ApplyDefaults()

	return &jwtValidator{
		log:    log.WithField("component", "jwt-validator"),
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		keys:   make(map[string]*rsa.PublicKey, 4),
		stopCh: make(chan struct{}),
	}
}

func (v *jwtValidator) Start(ctx context.Context) error {
	if v.cfg.JWKSURL == "" {
		v.log.Debug("JWT validator has no JWKS URL configured, skipping key refresh")
		return nil
	}

	if err := v.refreshJWKS(ctx); err != nil {
		return fmt.Errorf("initial JWKS fetch: %w", err)
	}

	go v.refreshLoop()

	v.log.WithField("jwks_url", v.cfg.JWKSURL).Info("JWT validator started")
	return nil
}

func (v *jwtValidator) Stop() error {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return nil
	}
	v.stopped = true
	v.mu.Unlock()

	close(v.stopCh)
	v.log.Info("JWT validator stopped")
	return nil
}

// Validate parses and validates rawBearer, then maps its claims into a
// runbook.TokenContext. The roles/groups claim is normalized to a
// []string at this boundary, per the core's "claims are opaque" contract.
func (v *jwtValidator) Validate(_ context.Context, rawBearer string) (*runbook.TokenContext, error) {
	token, err := jwt.Parse(rawBearer, v.keyFunc, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	issuer, _ := claims["iss"].(string)
	if v.cfg.Issuer != "" && issuer != v.cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer: got %q, expected %q", issuer, v.cfg.Issuer)
	}

	if v.cfg.Audience != "" {
		aud := extractAudience(claims)
		if !containsString(aud, v.cfg.Audience) {
			return nil, fmt.Errorf("invalid audience: %v does not contain %q", aud, v.cfg.Audience)
		}
	}

	subject := getString(claims, "sub")
	normalized := normalizeClaims(claims)

	if len(v.cfg.AllowedGroups) > 0 {
		groups := normalized["groups"]
		if !anyIntersects(groups, v.cfg.AllowedGroups) {
			return nil, fmt.Errorf("user not in any allowed group")
		}
	}

	return &runbook.TokenContext{
		Subject:   subject,
		Claims:    normalized,
		RawBearer: rawBearer,
	}, nil
}

// normalizeClaims maps every JWT claim into map[string][]string, treating
// a bare string as a one-element list and comma-splitting the conventional
// "roles" claim when it arrives as a single string, matching the
// dialect's Required Claims comma-separated value convention.
func normalizeClaims(claims jwt.MapClaims) map[string][]string {
	out := make(map[string][]string, len(claims))
	for key, raw := range claims {
		switch v := raw.(type) {
		case string:
			out[key] = []string{v}
		case []any:
			var list []string
			for _, item := range v {
				if s, ok := item.(string); ok {
					list = append(list, s)
				}
			}
			out[key] = list
		}
	}
	if roles, ok := out["roles"]; ok && len(roles) == 1 {
		out["roles"] = splitComma(roles[0])
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func anyIntersects(held, allowed []string) bool {
	for _, h := range held {
		if slices.Contains(allowed, h) {
			return true
		}
	}
	return false
}

func (v *jwtValidator) keyFunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing kid in token header")
	}

	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("key not found for kid: %s", kid)
	}
	return key, nil
}

func (v *jwtValidator) refreshLoop() {
	ticker := time.NewTicker(v.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := v.refreshJWKS(ctx); err != nil {
				v.log.WithError(err).Warn("failed to refresh JWKS")
			}
			cancel()
		}
	}
}

func (v *jwtValidator) refreshJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("decoding JWKS: %w", err)
	}

	newKeys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || key.Use != "sig" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key)
		if err != nil {
			v.log.WithError(err).WithField("kid", key.Kid).Warn("failed to parse RSA key")
			continue
		}
		newKeys[key.Kid] = pubKey
	}

	v.mu.Lock()
	v.keys = newKeys
	v.mu.Unlock()

	v.log.WithField("key_count", len(newKeys)).Debug("refreshed JWKS cache")
	return nil
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseRSAPublicKey(key jwkKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)

	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}

func getString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func extractAudience(claims jwt.MapClaims) []string {
	switch aud := claims["aud"].(type) {
	case string:
		return []string{aud}
	case []any:
		var result []string
		for _, a := range aud {
			if s, ok := a.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

func containsString(list []string, target string) bool {
	return slices.Contains(list, target)
}
