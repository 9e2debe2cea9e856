package config

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger initializes and returns a structured logger. The server logs
// JSON to stdout; CLI commands pass console=true so logs go to stderr in a
// human readable form and stdout stays free for results.
func InitLogger(level string, console bool) zerolog.Logger {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsedLevel == zerolog.NoLevel {
		parsedLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(parsedLevel)

	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}
