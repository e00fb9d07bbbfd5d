// Package config provides configuration loading for the runbook execution engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Runbooks      RunbooksConfig      `yaml:"runbooks"`
	Execution     ExecutionConfig     `yaml:"execution"`
	API           APIConfig           `yaml:"api"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RunbooksConfig holds the on-disk runbook repository configuration.
type RunbooksConfig struct {
	// Dir is the directory containing runbook markdown files.
	Dir string `yaml:"dir"`
	// Shell is the interpreter path used to run a runbook's script.
	Shell string `yaml:"shell"`
}

// ExecutionConfig holds the script execution resource limits.
type ExecutionConfig struct {
	ScriptTimeoutSeconds int `yaml:"script_timeout_seconds"`
	MaxOutputBytes       int `yaml:"max_output_bytes"`
	MaxRecursionDepth    int `yaml:"max_recursion_depth"`
}

// APIConfig describes how this service's own address is advertised to
// scripts via RUNBOOK_URL / RUNBOOK_API_BASE_URL.
type APIConfig struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// BaseURL returns the {protocol}://{host}:{port}/api/runbooks base URL
// exported to scripts as RUNBOOK_URL.
func (c APIConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d/api/runbooks", c.Protocol, c.Host, c.Port)
}

// AuthConfig holds JWT bearer verification configuration.
type AuthConfig struct {
	Enabled       bool     `yaml:"enabled"`
	JWKSURL       string   `yaml:"jwks_url"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience,omitempty"`
	AllowedGroups []string `yaml:"allowed_groups,omitempty"`
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Logging        LoggingSettings `yaml:"logging"`
	MetricsEnabled bool            `yaml:"metrics_enabled"`
	MetricsPort    int             `yaml:"metrics_port"`
}

// LoggingSettings configures the structured logger.
type LoggingSettings struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path,omitempty"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
	// Backend is the rate limiting backend: "memory" (default) or "redis".
	Backend string `yaml:"backend"`
	// Redis configuration (only used when backend is "redis").
	Redis *RateLimitRedisConfig `yaml:"redis,omitempty"`
	// Default limits applied to all operations.
	Default RateLimitRule `yaml:"default"`
	// PerOperation allows configuring different limits for specific
	// operations (e.g. "execute", "validate").
	PerOperation map[string]RateLimitRule `yaml:"per_operation,omitempty"`
	// TrustedProxies is a list of IP addresses or CIDR ranges of trusted
	// reverse proxies, used to trust X-Forwarded-For.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// RateLimitRule defines rate limit parameters for an operation or default.
type RateLimitRule struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size"`
	BlockDuration     time.Duration `yaml:"block_duration"`
}

// RateLimitRedisConfig holds Redis backend configuration for distributed
// rate limiting. No Redis limiter exists: middleware.NewRateLimiter logs
// a warning and uses the memory backend when backend is "redis".
type RateLimitRedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	Database  int    `yaml:"database"`
	KeyPrefix string `yaml:"key_prefix"`
	TLS       bool   `yaml:"tls"`
}

// GetRequestsPerSecond returns the effective requests per second rate.
func (r RateLimitRule) GetRequestsPerSecond() float64 {
	if r.RequestsPerSecond > 0 {
		return r.RequestsPerSecond
	}
	if r.RequestsPerMinute > 0 {
		return float64(r.RequestsPerMinute) / 60.0
	}
	return 1.0
}

// GetBurstSize returns the effective burst size.
func (r RateLimitRule) GetBurstSize() int {
	if r.BurstSize > 0 {
		return r.BurstSize
	}
	burst := int(r.GetRequestsPerSecond())
	if burst < 1 {
		return 1
	}
	return burst
}

// GetBlockDuration returns the effective block duration.
func (r RateLimitRule) GetBlockDuration() time.Duration {
	if r.BlockDuration > 0 {
		return r.BlockDuration
	}
	return 60 * time.Second
}

// Load loads configuration from a YAML file with environment variable substitution.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	substituted, err := substituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("substituting env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarWithDefaultPattern matches ${VAR_NAME:-default} patterns.
var envVarWithDefaultPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns
// with environment variable values. Lines that are YAML comments are
// skipped. Missing environment variables without defaults are replaced
// with an empty string (lenient mode).
func substituteEnvVars(content string) (string, error) {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		lines[i] = envVarWithDefaultPattern.ReplaceAllStringFunc(line, func(match string) string {
			parts := envVarWithDefaultPattern.FindStringSubmatch(match)
			varName := parts[1]
			defaultVal := ""
			if len(parts) > 2 {
				defaultVal = parts[2]
			}

			value := os.Getenv(varName)
			if value == "" {
				return defaultVal
			}
			return value
		})
	}

	return strings.Join(lines, "\n"), nil
}

// applyDefaults sets default values for configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Runbooks.Shell == "" {
		cfg.Runbooks.Shell = "/bin/zsh"
	}

	if cfg.Execution.ScriptTimeoutSeconds == 0 {
		cfg.Execution.ScriptTimeoutSeconds = 600
	}
	if cfg.Execution.MaxOutputBytes == 0 {
		cfg.Execution.MaxOutputBytes = 10 * 1024 * 1024
	}
	if cfg.Execution.MaxRecursionDepth == 0 {
		cfg.Execution.MaxRecursionDepth = 50
	}

	if cfg.API.Protocol == "" {
		cfg.API.Protocol = "http"
	}
	if cfg.API.Host == "" {
		cfg.API.Host = cfg.Server.Host
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = cfg.Server.Port
	}

	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.MetricsPort == 0 {
		cfg.Observability.MetricsPort = 9090
	}

	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Backend == "redis" && cfg.RateLimit.Redis == nil {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Default.RequestsPerSecond == 0 && cfg.RateLimit.Default.RequestsPerMinute == 0 {
		cfg.RateLimit.Default.RequestsPerSecond = 10
	}
	if cfg.RateLimit.Default.BurstSize == 0 {
		cfg.RateLimit.Default.BurstSize = 20
	}
}

// ApplyDefaults fills zero-valued fields with their defaults. Exported so
// callers that construct a Config without going through Load (the CLI's
// no-config-file fallback) still get production defaults.
func ApplyDefaults(cfg *Config) {
	applyDefaults(cfg)
}

// MaxScriptTimeout is the maximum allowed script timeout in seconds.
const MaxScriptTimeout = 3600

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Runbooks.Dir == "" {
		return errors.New("runbooks.dir is required")
	}
	if c.Execution.ScriptTimeoutSeconds > MaxScriptTimeout {
		return fmt.Errorf("execution.script_timeout_seconds cannot exceed %d seconds", MaxScriptTimeout)
	}
	if c.Auth.Enabled && c.Auth.JWKSURL == "" {
		return errors.New("auth.jwks_url is required when auth.enabled is true")
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.Redis == nil {
		return errors.New("rate_limit.redis is required when rate_limit.backend is \"redis\"")
	}
	return nil
}
