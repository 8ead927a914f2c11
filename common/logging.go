// Package common holds service-wide helpers shared by every binary:
// logger setup and build metadata.
package common

import (
	"log/slog"
	"os"
)

// LoggingOpts configures the service logger.
type LoggingOpts struct {
	// Debug lowers the log level to debug.
	Debug bool

	// JSON enables the JSON handler instead of text.
	JSON bool

	// Service is added as a 'service' tag to all log lines.
	Service string

	// Version is added as a 'version' tag to all log lines.
	Version string
}

// SetupLogger builds the process-wide slog logger. Every component takes
// the logger via its constructor; nothing reads the slog default.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}

	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	return log
}
