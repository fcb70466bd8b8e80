package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the root logger for the crawler. Level comes from
// LOG_LEVEL (default info); debug logs one line per fetched course,
// which is useful but loud across a whole term.
func New() zerolog.Logger {
	// Cloud Logging parses the level automatically when the field is
	// named "severity".
	zerolog.LevelFieldName = "severity"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level)
}
