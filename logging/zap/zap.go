package zap

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-query-cache/logging"
)

var _ logging.Logger = Logger{}

// Logger adapts a *zap.Logger.
type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f logging.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f logging.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f logging.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f logging.Fields) { z.L.Error(msg, zf(f)...) }

// New builds a zap logger writing to out at level. Output is JSON unless
// console is true. An unknown level falls back to info.
func New(out io.Writer, level string, console bool) Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if console {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), zap.NewAtomicLevelAt(lvl))
	return Logger{L: zap.New(core)}
}

func zf(f logging.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
