package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pitwall/internal/ir"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pitwall", cmd.Use)
	assert.Contains(t, cmd.Long, "watermark")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"load", "validate", "compile", "plan", "watermark", "runs", "test"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, ir.EngineVersion)
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	envFile := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFile)
	assert.Equal(t, ".env", envFile.DefValue)
}

func TestLoadCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	load, _, err := cmd.Find([]string{"load"})
	require.NoError(t, err)

	defaults := map[string]string{
		"db":          "",
		"source":      "",
		"skew":        "5m0s",
		"retries":     "1",
		"retry-delay": "1m0s",
		"timeout":     "1h0m0s",
		"lease":       "false",
		"lease-ttl":   "2h0m0s",
		"entity":      "[]",
	}
	for name, def := range defaults {
		f := load.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, def, f.DefValue, name)
	}
}

func TestWatermarkSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"get", "set"} {
		sub, _, err := cmd.Find([]string{"watermark", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))

	_, err := execute(t, "--format", "invalid", "validate", miniCatalog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing default file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env"), false))
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		err := loadEnvFile(filepath.Join(t.TempDir(), "prod.env"), true)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		assert.NoError(t, loadEnvFile("", true))
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		t.Setenv("PITWALL_TEST_KEEP", "from-env")
		t.Cleanup(func() { os.Unsetenv("PITWALL_TEST_NEW") })

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("PITWALL_TEST_NEW=from-file\nPITWALL_TEST_KEEP=from-file\n"), 0644))

		require.NoError(t, loadEnvFile(path, false))
		assert.Equal(t, "from-file", os.Getenv("PITWALL_TEST_NEW"))
		assert.Equal(t, "from-env", os.Getenv("PITWALL_TEST_KEEP"))
	})
}

func TestEnvDefault(t *testing.T) {
	t.Setenv(EnvDatabase, "env.db")
	assert.Equal(t, "flag.db", envDefault("flag.db", EnvDatabase))
	assert.Equal(t, "env.db", envDefault("", EnvDatabase))
}
