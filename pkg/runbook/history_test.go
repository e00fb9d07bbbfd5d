package runbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *ExecutionRecord {
	return &ExecutionRecord{
		Start:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Finish:     time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		ReturnCode: 0,
		Operation:  OperationExecute,
		Runbook:    "sample.md",
		ConfigItems: []ConfigItem{
			{Name: "API_TOKEN", Value: "abc123", Source: "env"},
			{Name: "WORKER_POOL", Value: "workers", Source: "env"},
		},
	}
}

func TestAppendHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# Sample\n\n# History\n"), 0o644))

	require.NoError(t, AppendHistory(path, sampleRecord()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"runbook":"sample.md"`)
	require.Contains(t, string(data), `"value":"***"`)
	require.Contains(t, string(data), `"value":"workers"`)
}

func TestAppendHistory_CreatesHeadingWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# Sample\n\nno history heading here"), 0o644))

	require.NoError(t, AppendHistory(path, sampleRecord()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# History")
}

func TestMaskSecrets(t *testing.T) {
	rec := sampleRecord()
	masked := maskSecrets(rec)
	require.Equal(t, "***", masked.ConfigItems[0].Value)
	require.Equal(t, "workers", masked.ConfigItems[1].Value)
	require.Equal(t, "abc123", rec.ConfigItems[0].Value, "original record must not be mutated")
}

func TestIsSecretConfigItem(t *testing.T) {
	require.True(t, isSecretConfigItem("API_TOKEN"))
	require.True(t, isSecretConfigItem("db_password"))
	require.True(t, isSecretConfigItem("ssh_key"))
	require.False(t, isSecretConfigItem("WORKER_POOL"))
}

func TestParseLastHistoryEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# Sample\n\n# History\n"), 0o644))

	require.NoError(t, AppendHistory(path, sampleRecord()))
	second := sampleRecord()
	second.ReturnCode = 1
	require.NoError(t, AppendHistory(path, second))

	rec, err := ParseLastHistoryEntry(path)
	require.NoError(t, err)
	require.Equal(t, 1, rec.ReturnCode)
}

func TestParseLastHistoryEntry_NoEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# Sample\n\n# History\n"), 0o644))

	_, err := ParseLastHistoryEntry(path)
	require.Error(t, err)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestLogHistory(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	LogHistory(logger, sampleRecord())

	require.Len(t, hook.Entries, 1)
	require.Equal(t, "runbook execution record", hook.LastEntry().Message)
	require.Equal(t, "sample.md", hook.LastEntry().Data["runbook"])
}
