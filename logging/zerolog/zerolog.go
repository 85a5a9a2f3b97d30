package zerolog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-query-cache/logging"
)

var _ logging.Logger = Logger{}

// Logger adapts a zerolog.Logger.
type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f logging.Fields) { z.L.Debug().Fields(map[string]any(f)).Msg(msg) }
func (z Logger) Info(msg string, f logging.Fields)  { z.L.Info().Fields(map[string]any(f)).Msg(msg) }
func (z Logger) Warn(msg string, f logging.Fields)  { z.L.Warn().Fields(map[string]any(f)).Msg(msg) }
func (z Logger) Error(msg string, f logging.Fields) { z.L.Error().Fields(map[string]any(f)).Msg(msg) }

// New builds a zerolog logger writing to out. When console is true output is
// human readable. An unknown level falls back to info.
func New(out io.Writer, level string, console bool) Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return Logger{L: zerolog.New(out).Level(lvl).With().Timestamp().Logger()}
}
