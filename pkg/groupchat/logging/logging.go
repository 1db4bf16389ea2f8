// Package logging configures the process logger and the per-request logger
// handed to gin handlers through the request context.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup points the global logger at stderr, or stderr plus logFile, at the
// given level. With jsonOutput the console gets raw JSON lines instead of
// zerolog's human-readable format. The returned closer releases the log file.
func Setup(level, logFile string, jsonOutput bool) (io.Closer, error) {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	var console io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if jsonOutput {
		console = os.Stderr
	}

	output := console
	var closer io.Closer = nopCloser{}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		output = io.MultiWriter(console, file)
		closer = file
	}

	log.Logger = zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
