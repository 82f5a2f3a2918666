package cli

import (
	"log/slog"
	"os"

	"github.com/cargodocs/cargodocs/internal/constants"
)

// SetVerbosity sets the logging level for the default logger based on the verbose flag count.
//
// This function has the same behaviors as slog.SetLogLoggerLevel.
func SetVerbosity(verbosity int) {
	slog.SetLogLoggerLevel(logLevel(verbosity))
}

// SetSlog sets the logging level and format for the default logger. With
// jsonLogs the default logger is replaced by a JSON handler on stdout.
func SetSlog(verbosity int, jsonLogs bool) {
	if !jsonLogs {
		SetVerbosity(verbosity)
		return
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(verbosity)})
	slog.SetDefault(slog.New(h))
}

func logLevel(verbosity int) slog.Level {
	switch verbosity {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
