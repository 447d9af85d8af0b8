package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaultsWhenFileAbsent(t *testing.T) {
	viper.Reset()

	// Empty configPath exercises the search-path branch, which tolerates
	// a missing config.toml (viper.ConfigFileNotFoundError); this
	// package's test directory has none, so defaults should apply.
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, UniquenessMetadata, cfg.Httm.UniquenessLevel)
	require.Equal(t, RestoreCopy, cfg.Httm.RestoreMode)
	require.Equal(t, "snap", cfg.Httm.SnapPrefix)
}

func TestLoadConfigReadsTOMLFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[httm]
uniquenessLevel = "contents"
restoreMode = "guard"
snapPrefix = "myprefix"
workerCount = 4
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, UniquenessContents, cfg.Httm.UniquenessLevel)
	require.Equal(t, RestoreGuard, cfg.Httm.RestoreMode)
	require.Equal(t, "myprefix", cfg.Httm.SnapPrefix)
	require.Equal(t, 4, cfg.Httm.WorkerCount)
}

func TestLoadConfigEnvOverridesRestoreMode(t *testing.T) {
	viper.Reset()
	t.Setenv("HTTM_RESTORE_MODE", "yolo")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, RestoreMode("yolo"), cfg.Httm.RestoreMode)
}
