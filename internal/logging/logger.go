// Package logging wires the process-wide slog logger. Records go to stdout as
// JSON for the log collector; once the database is up, main swaps in a
// MultiHandler that additionally batches ERROR and above into system_logs so
// sync failures are queryable next to the runs that produced them.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Level reads LOG_LEVEL from the environment. Unset or unrecognized values
// fall back to info so a typo never silences the logs.
func Level() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the stdout JSON handler as the default logger. Called before
// config loads, so it only consults the environment.
func Setup() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: Level(),
	})
	slog.SetDefault(slog.New(handler))
}
