package runbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_OK(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o600))

	text := `# Ok Runbook

# Environment Requirements

` + "```yaml\nWORKER_POOL: pool name\n```" + `

# File System Requirements

` + "```yaml\nInput:\n  - config.json\n```" + `

# Script

` + "```sh\necho hi\n```" + `

# History
`
	rb, err := ParseRunbook("ok.md", text)
	require.NoError(t, err)

	result := Validate(rb, dir, map[string]string{"WORKER_POOL": "workers"})
	require.True(t, result.OK)
	require.Empty(t, result.Errors)
}

func TestValidate_MissingSection(t *testing.T) {
	text := "# No Sections At All\n\nsome body text"
	rb := &Runbook{Filename: "bad.md", Name: "No Sections At All", RawText: text}

	result := Validate(rb, t.TempDir(), nil)
	require.False(t, result.OK)
	require.NotEmpty(t, result.Errors)
}

func TestValidate_EmptyRequiredSection(t *testing.T) {
	text := `# Empty Script

# Environment Requirements

# File System Requirements

# Script

# History
`
	rb, err := ParseRunbook("empty-script.md", text)
	require.NoError(t, err)

	result := Validate(rb, t.TempDir(), nil)
	require.False(t, result.OK)
	require.Contains(t, result.Errors, `required section "Script" is empty`)
}

func TestValidate_MissingEnvVar(t *testing.T) {
	text := `# Needs Env

# Environment Requirements

` + "```yaml\nAPI_TOKEN: the token\n```" + `

# File System Requirements

# Script

` + "```sh\necho hi\n```" + `

# History
`
	rb, err := ParseRunbook("needs-env.md", text)
	require.NoError(t, err)

	result := Validate(rb, t.TempDir(), map[string]string{})
	require.False(t, result.OK)
	require.Contains(t, result.Errors, `required environment variable "API_TOKEN" is not set`)
}

func TestValidate_MissingInputFile(t *testing.T) {
	text := `# Needs File

# Environment Requirements

# File System Requirements

` + "```yaml\nInput:\n  - missing.json\n```" + `

# Script

` + "```sh\necho hi\n```" + `

# History
`
	rb, err := ParseRunbook("needs-file.md", text)
	require.NoError(t, err)

	result := Validate(rb, t.TempDir(), nil)
	require.False(t, result.OK)
	require.Contains(t, result.Errors, `input path "missing.json" does not exist`)
}

func TestResolveWithinDir(t *testing.T) {
	dir := t.TempDir()

	_, err := resolveWithinDir(dir, "../escape.json")
	require.Error(t, err)

	_, err = resolveWithinDir(dir, "/absolute.json")
	require.Error(t, err)

	resolved, err := resolveWithinDir(dir, "nested/file.json")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "nested", "file.json"), resolved)
}
