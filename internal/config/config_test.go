package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points discovery away from the developer's machine and the repo.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefaults(t *testing.T) {
	isolate(t)
	require.NoError(t, Initialize())

	assert.Equal(t, "PlatformPlatform.slnx", GetString("solution-name"))
	assert.Equal(t, 9000, GetInt("app.port"))
	assert.Equal(t, 9001, GetInt("dashboard.port"))
	assert.Equal(t, 5*time.Minute, GetDuration("run.startup-timeout"))
	assert.Equal(t, "ollama", GetString("translate.provider"))
	assert.False(t, GetBool("json"))
	assert.Empty(t, ConfigFileUsed())
}

func TestEnvironmentBinding(t *testing.T) {
	isolate(t)
	t.Setenv("PP_APP_PORT", "9100")
	t.Setenv("PP_TRANSLATE_MODEL", "gemma2:9b")
	t.Setenv("PP_RUN_STARTUP_TIMEOUT", "90s")
	t.Setenv("PP_UPDATE_PACKAGES_EXCLUDE", "Aspire.Hosting, Microsoft.Identity.Web")
	require.NoError(t, Initialize())

	assert.Equal(t, 9100, GetInt("app.port"))
	assert.Equal(t, "gemma2:9b", GetString("translate.model"))
	assert.Equal(t, 90*time.Second, GetDuration("run.startup-timeout"))
	assert.Equal(t, []string{"Aspire.Hosting", "Microsoft.Identity.Web"}, GetStringSlice("update-packages.exclude"))
	assert.True(t, IsSet("app.port"))
}

func TestProjectConfigDiscoveredFromSubdirectory(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".pp", "config.yaml"), "solution-name: Acme.slnx\ndashboard:\n  port: 19001\n")
	sub := filepath.Join(dir, "application", "account-management")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	require.NoError(t, Initialize())
	assert.Equal(t, "Acme.slnx", GetString("solution-name"))
	assert.Equal(t, 19001, GetInt("dashboard.port"))
	assert.Equal(t, 9000, GetInt("app.port"))
	assert.Contains(t, ConfigFileUsed(), filepath.Join(".pp", "config.yaml"))
}

func TestProjectConfigOverridesUserConfig(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "xdg", "pp", "config.yaml"), "translate:\n  provider: anthropic\n  concurrency: 8\n")
	writeFile(t, filepath.Join(dir, ".pp", "config.yaml"), "translate:\n  concurrency: 2\n")

	require.NoError(t, Initialize())
	assert.Equal(t, "anthropic", GetString("translate.provider"))
	assert.Equal(t, 2, GetInt("translate.concurrency"))
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".pp", "config.yaml"), "app:\n  port: 9100\n")
	t.Setenv("PP_APP_PORT", "9200")

	require.NoError(t, Initialize())
	assert.Equal(t, 9200, GetInt("app.port"))
}

func TestSetOverridesEverything(t *testing.T) {
	isolate(t)
	t.Setenv("PP_SOLUTION_NAME", "FromEnv.slnx")
	require.NoError(t, Initialize())

	Set("solution-name", "FromFlag.slnx")
	assert.Equal(t, "FromFlag.slnx", GetString("solution-name"))
}

func TestInvalidProjectConfig(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".pp", "config.yaml"), "app: [unterminated\n")
	assert.Error(t, Initialize())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PP_TRANSLATE_ANTHROPIC_MODEL", EnvName("translate.anthropic-model"))
	assert.Equal(t, "PP_SOLUTION_NAME", EnvName("solution-name"))
}

func TestKnownKeysSorted(t *testing.T) {
	keys := KnownKeys()
	require.NotEmpty(t, keys)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}
