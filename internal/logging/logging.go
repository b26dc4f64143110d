// Package logging configures the global zerolog logger and carries request correlation ids.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	LevelKey   = "log.level"
	FormatKey  = "log.format"
	NoColorKey = "log.no_color"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// InitDefault sets up a console logger used until the configuration has been read.
func InitDefault() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger from viper. A nil out writes to stderr.
func Init(out io.Writer) {
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString(LevelKey)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(viper.GetString(FormatKey)) {
	case FormatJSON:
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	default:
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    viper.GetBool(NoColorKey),
		}).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger

	if err != nil {
		log.Warn().Err(err).Msg("invalid log level, falling back to info")
	}
}

type correlationIDKey struct{}

// WithCorrelationID returns a copy of ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID retrieves the correlation id from the context.
func CorrelationID(ctx context.Context) string {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok {
		return ""
	}
	return id
}
