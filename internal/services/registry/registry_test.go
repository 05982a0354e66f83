package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

const alphaDef = `
name = "alpha"

[[tasks]]
name = "alpha-docs"
entry = "https://alpha.test/docs"
match = ["https://alpha.test/docs/**"]
selector = "main"

[[tasks]]
name = "alpha-api"
entry = "https://alpha.test/api"
match = ["https://alpha.test/api/**"]
selector = "article"
output_file_name = "alpha-api.json"
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "alpha.toml", alphaDef)

	r, err := Load(dir, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	tasks, ok := r.Get("alpha")
	require.True(t, ok)
	require.Len(t, tasks, 2)
	assert.Equal(t, "alpha-docs", tasks[0].Name)
	assert.Equal(t, "https://alpha.test/docs", tasks[0].Entry)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestLoadMissingDirectory(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope"), arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestLoadRejectsDuplicateTaskNames(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "alpha.toml", alphaDef)
	writeDefinition(t, dir, "beta.toml", `
name = "beta"

[[tasks]]
name = "alpha-docs"
entry = "https://beta.test/"
match = ["https://beta.test/**"]
selector = "main"
`)

	_, err := Load(dir, arbor.NewLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha-docs")
}

func TestLoadRejectsInvalidTask(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "bad.toml", `
name = "bad"

[[tasks]]
name = "bad-task"
entry = "http://insecure.test/"
match = ["http://insecure.test/**"]
selector = "main"
`)

	_, err := Load(dir, arbor.NewLogger())
	require.Error(t, err)
}

func TestListSummaries(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "alpha.toml", alphaDef)

	r, err := Load(dir, arbor.NewLogger())
	require.NoError(t, err)

	summaries := r.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "alpha", summaries[0].Name)
	assert.Equal(t, 2, summaries[0].ConfigCount)
	assert.Equal(t, "alpha.json", summaries[0].OutputFileName)
}
