// Package httm holds process-wide defaults shared by every component:
// default config search paths, the snapshot naming convention, and the
// structured logger every other package pulls from.
package httm

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	DefaultAppName    = "httm"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)

	// DefaultSnapSuffix is appended to every snapshot httm creates itself,
	// per spec.md §6 ("Snapshot naming convention emitted").
	DefaultSnapSuffix = "httmSnapFileMount"

	// DefaultWorkerMultiplier bounds the stat/traversal pool width relative
	// to the number of logical processors (spec.md §5).
	DefaultWorkerMultiplier = 2
)

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return "/tmp"
		}
		return cwd
	}
	return home
}

// Logger returns a properly configured zerolog logger instance, writing to
// stderr so stdout stays reserved for the Output Sink's record stream.
func Logger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
