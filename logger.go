package dispatch

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logger the client writes debug output to.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger adapts a zerolog.Logger to Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{log: l}
}

// NewSimpleLogger returns a human readable console logger on stderr.
func NewSimpleLogger() Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return NewZerologLogger(zerolog.New(out).With().Timestamp().Logger())
}

func (z *zerologLogger) Debug(msg string, keysAndValues ...any) {
	z.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (z *zerologLogger) Info(msg string, keysAndValues ...any) {
	z.log.Info().Fields(keysAndValues).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, keysAndValues ...any) {
	z.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (z *zerologLogger) Error(msg string, keysAndValues ...any) {
	z.log.Error().Fields(keysAndValues).Msg(msg)
}
