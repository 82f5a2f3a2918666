// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// WebServiceCmdName is the name of the web service command.
	WebServiceCmdName = "cargodocs-web-service"

	// DefaultLogLevel is the default log level when no verbosity flag is set.
	DefaultLogLevel = slog.LevelWarn
)

// Service constants.
const (
	// DefaultServiceFolder is the name of the default root folder for the service.
	DefaultServiceFolder = "cargodocs"

	// DefaultServiceWorkFolder is the name of the default folder for per-job staging data.
	DefaultServiceWorkFolder = "jobs"
)

// Service variables.
var (
	// DefaultServiceDataDir is the default data directory for the service.
	DefaultServiceDataDir = DefaultServiceFolder

	// DefaultServiceWorkDir is the default job staging directory for the service.
	DefaultServiceWorkDir = filepath.Join(DefaultServiceDataDir, DefaultServiceWorkFolder)
)

func init() {
	if dir := userCacheDir(os.UserCacheDir); dir != "" {
		DefaultServiceDataDir = filepath.Join(dir, DefaultServiceFolder)
	}
	DefaultServiceWorkDir = filepath.Join(DefaultServiceDataDir, DefaultServiceWorkFolder)
}

// userCacheDir returns the user cache directory, or "" if it can't be fetched.
func userCacheDir(cacheDir func() (string, error)) string {
	dir, err := cacheDir()
	if err != nil {
		slog.Warn("Could not fetch cache directory", "error", err)
		return ""
	}
	return dir
}
