package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger
)

// Init initializes the file logger, writing to advisord.log in the current directory.
// It should be called once at application startup.
// Log level can be configured via LOG_LEVEL environment variable (debug, info, warn, error).
func Init() (zerolog.Logger, error) {
	return InitWithOptions("advisord.log", false)
}

// InitWithOptions initializes the logger with the specified options.
// If logFile is empty, logs to stdout/stderr.
// If pretty is true, uses ConsoleWriter for human-readable output (only valid when logFile is empty).
// The level is applied globally so it can be changed at runtime via SetLevel.
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	// Get log level from environment variable
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	var logPath string

	switch {
	case logFile != "":
		// Log to file
		logPath = logFile
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logPath, err)
		}
		output = file
		// Create file logger - JSON structured logs
		log = zerolog.New(output).
			With().
			Timestamp().
			Logger()
	case pretty:
		// Log to stdout with pretty console output
		output = zerolog.ConsoleWriter{Out: os.Stdout}
		log = zerolog.New(output).
			With().
			Timestamp().
			Logger()
	default:
		// Log to stdout/stderr (default)
		output = os.Stdout
		log = zerolog.New(output).
			With().
			Timestamp().
			Logger()
	}

	// Log initialization
	switch {
	case logFile != "":
		log.Info().Str("path", logPath).Str("level", level.String()).Msg("Logger initialized")
	case pretty:
		log.Info().Str("output", "stdout").Str("format", "pretty").Str("level", level.String()).Msg("Logger initialized")
	default:
		log.Info().Str("output", "stdout/stderr").Str("level", level.String()).Msg("Logger initialized")
	}

	return log, nil
}

// SetLevel changes the effective log level at runtime. Returns an error for
// unrecognized level names so API callers get a synchronous rejection.
func SetLevel(level string) error {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "debug", "info", "warn", "warning", "error", "trace":
		zerolog.SetGlobalLevel(parseLogLevel(normalized))
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// CurrentLevel returns the name of the effective log level.
func CurrentLevel() string {
	return zerolog.GlobalLevel().String()
}

// Helper functions
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
