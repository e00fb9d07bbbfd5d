package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError bool
	}{
		{
			name: "valid minimal config",
			content: `
server:
  host: 0.0.0.0
  port: 8080
runbooks:
  dir: /tmp/runbooks
`,
			expectError: false,
		},
		{
			name: "config with env substitution",
			content: `
server:
  host: 0.0.0.0
  port: ${PORT:-8080}
runbooks:
  dir: ${RUNBOOKS_DIR:-/tmp/runbooks}
`,
			expectError: false,
		},
		{
			name: "config with missing runbooks dir",
			content: `
runbooks:
  dir: ""
`,
			expectError: true,
		},
		{
			name: "config with timeout too high",
			content: `
runbooks:
  dir: /tmp/runbooks
execution:
  script_timeout_seconds: 999999
`,
			expectError: true,
		},
		{
			name: "auth enabled without jwks url",
			content: `
runbooks:
  dir: /tmp/runbooks
auth:
  enabled: true
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.content), 0644)
			require.NoError(t, err)

			os.Unsetenv("PORT")
			os.Unsetenv("RUNBOOKS_DIR")

			cfg, err := Load(configPath)
			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, cfg)
		})
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	content := `
server:
  host: 0.0.0.0
  port: ${TEST_PORT:-3000}
runbooks:
  dir: ${TEST_DIR:-/tmp/fallback}
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_PORT", "9999")
	t.Setenv("TEST_DIR", "/var/runbooks")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/var/runbooks", cfg.Runbooks.Dir)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		Runbooks: RunbooksConfig{Dir: "/tmp/runbooks"},
	}

	applyDefaults(cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/bin/zsh", cfg.Runbooks.Shell)
	assert.Equal(t, 600, cfg.Execution.ScriptTimeoutSeconds)
	assert.Equal(t, 10*1024*1024, cfg.Execution.MaxOutputBytes)
	assert.Equal(t, 50, cfg.Execution.MaxRecursionDepth)
	assert.Equal(t, "http", cfg.API.Protocol)
	assert.Equal(t, 9090, cfg.Observability.MetricsPort)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name:        "valid config",
			cfg:         Config{Runbooks: RunbooksConfig{Dir: "/tmp/runbooks"}, Execution: ExecutionConfig{ScriptTimeoutSeconds: 60}},
			expectError: false,
		},
		{
			name:        "missing dir",
			cfg:         Config{Execution: ExecutionConfig{ScriptTimeoutSeconds: 60}},
			expectError: true,
		},
		{
			name:        "timeout exceeds max",
			cfg:         Config{Runbooks: RunbooksConfig{Dir: "/tmp/runbooks"}, Execution: ExecutionConfig{ScriptTimeoutSeconds: MaxScriptTimeout + 1}},
			expectError: true,
		},
		{
			name:        "timeout at max boundary",
			cfg:         Config{Runbooks: RunbooksConfig{Dir: "/tmp/runbooks"}, Execution: ExecutionConfig{ScriptTimeoutSeconds: MaxScriptTimeout}},
			expectError: false,
		},
		{
			name: "auth enabled without jwks",
			cfg: Config{
				Runbooks: RunbooksConfig{Dir: "/tmp/runbooks"},
				Auth:     AuthConfig{Enabled: true},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "no substitution needed",
			content:  "key: value",
			expected: "key: value",
		},
		{
			name:     "simple substitution",
			content:  "key: ${TEST_VAR}",
			envVars:  map[string]string{"TEST_VAR": "replaced"},
			expected: "key: replaced",
		},
		{
			name:     "substitution with default",
			content:  "key: ${MISSING_VAR:-default_value}",
			expected: "key: default_value",
		},
		{
			name:     "comment lines skipped",
			content:  "# ${IGNORED}\nkey: value",
			expected: "# ${IGNORED}\nkey: value",
		},
		{
			name:     "multiple substitutions",
			content:  "a: ${VAR1}\nb: ${VAR2:-default}",
			envVars:  map[string]string{"VAR1": "one"},
			expected: "a: one\nb: default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			if _, exists := tt.envVars["TEST_VAR"]; !exists {
				os.Unsetenv("TEST_VAR")
			}
			if _, exists := tt.envVars["VAR1"]; !exists {
				os.Unsetenv("VAR1")
			}

			result, err := substituteEnvVars(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAPIConfigBaseURL(t *testing.T) {
	cfg := APIConfig{Protocol: "http", Host: "localhost", Port: 8080}
	assert.Equal(t, "http://localhost:8080/api/runbooks", cfg.BaseURL())
}

func TestRateLimitRuleDefaults(t *testing.T) {
	rule := RateLimitRule{}
	assert.Equal(t, 1.0, rule.GetRequestsPerSecond())
	assert.Equal(t, 1, rule.GetBurstSize())
	assert.Equal(t, 60e9, float64(rule.GetBlockDuration()))
}
