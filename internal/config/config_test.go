package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir string, name string, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("mode", "client", "")
	flags.StringSlice("ext", []string{".svelte"}, "")
	flags.String("css", "injected", "")
	flags.Bool("debug", false, "")
	flags.Bool("no-style", false, "")
	flags.Duration("node-timeout", 30*time.Second, "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "client", config.Mode)
	assert.Equal(t, []string{".svelte"}, config.Extensions)
	assert.Equal(t, "injected", config.CSS)
	assert.Equal(t, "node", config.Node.Executable)
	assert.Equal(t, 30*time.Second, config.Node.Timeout)
	assert.True(t, config.Preprocess.Script)
	assert.True(t, config.Preprocess.Style)
	assert.Equal(t, []string{"client"}, config.Modes())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svelte-prebundle.yaml", `
mode: both
extensions: [.svelte, .svx]
css: none
node:
  timeout: 5s
preprocess:
  style: false
  style_config: style.yaml
`)

	config, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"client", "ssr"}, config.Modes())
	assert.Equal(t, []string{".svelte", ".svx"}, config.Extensions)
	assert.Equal(t, "none", config.CSS)
	assert.Equal(t, 5*time.Second, config.Node.Timeout)
	assert.False(t, config.Preprocess.Style)
	assert.True(t, config.Preprocess.Script)
	assert.Equal(t, "style.yaml", config.Preprocess.StyleConfig)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svelte-prebundle.yaml", "mode: client\n")
	t.Setenv("SVELTE_PREBUNDLE_MODE", "ssr")
	t.Setenv("SVELTE_PREBUNDLE_NODE_EXECUTABLE", "/opt/node/bin/node")

	config, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "ssr", config.Mode)
	assert.Equal(t, "/opt/node/bin/node", config.Node.Executable)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SVELTE_PREBUNDLE_CSS=external\n")
	t.Setenv("SVELTE_PREBUNDLE_CSS", "")
	os.Unsetenv("SVELTE_PREBUNDLE_CSS")

	config, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "external", config.CSS)
}

func TestLoadFlagsWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svelte-prebundle.yaml", "mode: both\ncss: none\n")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--mode=ssr", "--ext=.svelte,.svx", "--no-style", "--node-timeout=2s"}))

	config, err := Load(LoadOptions{Dir: dir, Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, "ssr", config.Mode)
	assert.Equal(t, []string{".svelte", ".svx"}, config.Extensions)
	assert.Equal(t, 2*time.Second, config.Node.Timeout)
	assert.False(t, config.Preprocess.Style)

	// Unset flags do not hide the file
	assert.Equal(t, "none", config.CSS)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", "debug: true\n")

	config, err := Load(LoadOptions{Dir: t.TempDir(), ConfigFile: path})
	require.NoError(t, err)
	assert.True(t, config.Debug)

	_, err = Load(LoadOptions{Dir: dir, ConfigFile: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for _, text := range []string{
		"mode: watch\n",
		"css: inline\n",
		"extensions: [svelte]\n",
		"extensions: []\n",
		"color: sometimes\n",
	} {
		dir := t.TempDir()
		writeFile(t, dir, "svelte-prebundle.yaml", text)

		_, err := Load(LoadOptions{Dir: dir})
		assert.ErrorContains(t, err, "invalid configuration", text)
	}
}
