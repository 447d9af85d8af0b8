// Package config loads httm's configuration the way the teacher's
// vvfs/config package does: viper reading a config file with path search
// and environment-variable overrides, unmarshalled into a typed struct.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/httm-go/httm/internal/httm"

	"github.com/spf13/viper"
)

// UniquenessLevel mirrors pathdata.UniquenessLevel's string form so config
// files stay decoupled from the pathdata package.
type UniquenessLevel string

const (
	UniquenessMetadata UniquenessLevel = "metadata"
	UniquenessContents UniquenessLevel = "contents"
	UniquenessAll      UniquenessLevel = "all"
)

// RestoreMode mirrors restore.Mode as a config-file string.
type RestoreMode string

const (
	RestoreCopy      RestoreMode = "copy"
	RestoreOverwrite RestoreMode = "overwrite"
	RestoreGuard     RestoreMode = "guard"
	RestoreYolo      RestoreMode = "yolo"
)

// AliasPair is one `live-prefix:snapshot-prefix` mapping (spec.md §4.C).
type AliasPair struct {
	LivePrefix     string `mapstructure:"livePrefix"`
	SnapshotPrefix string `mapstructure:"snapshotPrefix"`
}

// Config stores all configuration httm reads from file/env.
type Config struct {
	Httm HttmConfig `mapstructure:"httm"`
}

// HttmConfig stores httm-specific configuration.
type HttmConfig struct {
	UniquenessLevel  UniquenessLevel `mapstructure:"uniquenessLevel"`
	RestoreMode      RestoreMode     `mapstructure:"restoreMode"`
	Aliases          []AliasPair     `mapstructure:"aliases"`
	SnapPrefix       string          `mapstructure:"snapPrefix"`
	SnapSuffix       string          `mapstructure:"snapSuffix"`
	UTCTimestamps    bool            `mapstructure:"utcTimestamps"`
	WorkerCount      int             `mapstructure:"workerCount"`
	OutputFormat     string          `mapstructure:"outputFormat"`
	EscalationTool   string          `mapstructure:"escalationTool"` // sudo, doas, pkexec
	OmitDitto        bool            `mapstructure:"omitDitto"`
	NoLive           bool            `mapstructure:"noLive"`
	NoSnap           bool            `mapstructure:"noSnap"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables,
// searching the same kind of candidate paths the teacher's LoadConfig
// does: cwd, parent, and the XDG-style config dir.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", httm.DefaultAppName))
		viper.AddConfigPath(httm.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetDefault("httm.uniquenessLevel", string(UniquenessMetadata))
	viper.SetDefault("httm.restoreMode", string(RestoreCopy))
	viper.SetDefault("httm.snapPrefix", "snap")
	viper.SetDefault("httm.snapSuffix", httm.DefaultSnapSuffix)
	viper.SetDefault("httm.utcTimestamps", false)
	viper.SetDefault("httm.workerCount", 0) // 0 == derive from runtime.NumCPU
	viper.SetDefault("httm.outputFormat", "columnar")
	viper.SetDefault("httm.escalationTool", "sudo")
	viper.SetDefault("httm.omitDitto", false)
	viper.SetDefault("httm.noLive", false)
	viper.SetDefault("httm.noSnap", false)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.BindEnv("httm.restoreMode", "HTTM_RESTORE_MODE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
