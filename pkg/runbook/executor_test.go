package runbook

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir, script string) string {
	t.Helper()
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func TestExecute_Success(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, "#!/bin/sh\necho hello\n")

	outcome, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	require.Equal(t, 0, outcome.ReturnCode)
	require.Contains(t, outcome.Stdout, "hello")
}

func TestExecute_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, "#!/bin/sh\nexit 7\n")

	outcome, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	require.Equal(t, 7, outcome.ReturnCode)
}

func TestExecute_Timeout(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, "#!/bin/sh\nsleep 5\n")

	outcome, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 1,
	})
	require.NoError(t, err)
	require.Equal(t, ReturnCodeTimeout, outcome.ReturnCode)
	require.Contains(t, outcome.Stderr, "timed out")
}

func TestExecute_EnvironmentIsolation(t *testing.T) {
	require.NoError(t, os.Setenv("RUNBOOK_TEST_HOST_VAR", "leaked"))
	defer os.Unsetenv("RUNBOOK_TEST_HOST_VAR")

	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, `#!/bin/sh
echo "host=$RUNBOOK_TEST_HOST_VAR"
echo "caller=$MY_VAR"
echo "token=$RUNBOOK_API_TOKEN"
`)

	outcome, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 5,
		RawBearer:      "secret-token",
		CallerEnv:      map[string]string{"MY_VAR": "value"},
	})
	require.NoError(t, err)
	require.Contains(t, outcome.Stdout, "host=\n")
	require.Contains(t, outcome.Stdout, "caller=value")
	require.Contains(t, outcome.Stdout, "token=secret-token")
}

func TestExecute_CallerSuppliedPATHIsHonored(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, "#!/bin/sh\necho \"path=$PATH\"\n")

	outcome, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 5,
		CallerEnv:      map[string]string{"PATH": "/custom/bin"},
	})
	require.NoError(t, err)
	require.Contains(t, outcome.Stdout, "path=/custom/bin")
}

func TestExecute_InvalidCallerEnvName(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, "#!/bin/sh\necho hi\n")

	_, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 5,
		CallerEnv:      map[string]string{"1BAD": "x"},
	})
	require.Error(t, err)
	require.Equal(t, KindInvalidEnvVarName, KindOf(err))
}

func TestExecute_SystemManagedOverrideIgnored(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeExecutable(t, dir, "#!/bin/sh\necho \"token=$RUNBOOK_API_TOKEN\"\n")

	outcome, err := Execute(context.Background(), scriptPath, dir, ExecutorConfig{
		Shell:          "sh",
		TimeoutSeconds: 5,
		RawBearer:      "real-token",
		CallerEnv:      map[string]string{"RUNBOOK_API_TOKEN": "forged"},
	})
	require.NoError(t, err)
	require.Contains(t, outcome.Stdout, "token=real-token")
	require.Contains(t, outcome.Warnings[0], "RUNBOOK_API_TOKEN")
}

func TestComposeEnvironment_RecursionStackEncoded(t *testing.T) {
	env, _, err := composeEnvironment(ExecutorConfig{RecursionStack: []string{"a.md", "b.md"}})
	require.NoError(t, err)
	found := false
	for _, kv := range env {
		if kv == `RUNBOOK_RECURSION_STACK=["a.md","b.md"]` {
			found = true
		}
	}
	require.True(t, found)
}

func TestComposeEnvironment_DefaultPATHWhenCallerOmitsIt(t *testing.T) {
	env, _, err := composeEnvironment(ExecutorConfig{})
	require.NoError(t, err)
	found := false
	for _, kv := range env {
		if kv == "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin" {
			found = true
		}
	}
	require.True(t, found)
}

func TestComposeEnvironment_CallerPATHOverridesDefault(t *testing.T) {
	env, _, err := composeEnvironment(ExecutorConfig{CallerEnv: map[string]string{"PATH": "/custom/bin"}})
	require.NoError(t, err)
	found := false
	for _, kv := range env {
		if kv == "PATH=/custom/bin" {
			found = true
		}
	}
	require.True(t, found)
}

func TestSanitizeControlChars(t *testing.T) {
	require.Equal(t, "abc", sanitizeControlChars("a\x00b\x01c"))
	require.Equal(t, "line1\nline2\ttabbed", sanitizeControlChars("line1\nline2\ttabbed"))
}

func TestTruncateUTF8(t *testing.T) {
	data := []byte("hello world")
	out, truncated := truncateUTF8(data, 100)
	require.False(t, truncated)
	require.Equal(t, "hello world", out)

	out, truncated = truncateUTF8(data, 5)
	require.True(t, truncated)
	require.Contains(t, out, "hello")
	require.Contains(t, out, "truncated")
}

func TestTruncateUTF8_Disabled(t *testing.T) {
	out, truncated := truncateUTF8([]byte("anything"), 0)
	require.False(t, truncated)
	require.Equal(t, "anything", out)
}
