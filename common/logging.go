// Package common provides shared utilities for the key vault agent,
// primarily logger setup.
package common

import (
	"log/slog"
	"os"
)

// Version is the service version, overridable at build time with
// -ldflags "-X github.com/ruteri/keyvault-secrets-agent/common.Version=...".
var Version = "dev"

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Service name, added as a 'service' tag to all log messages.
	Service string

	// JSON enables JSON log output instead of text.
	JSON bool

	// Debug enables debug-level messages.
	Debug bool

	// Version is added as a 'version' tag to all log messages.
	Version string
}

// SetupLogger creates a structured logger according to the given options.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
