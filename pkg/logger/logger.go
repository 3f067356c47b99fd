// Package logger is the process-wide leveled logger.
//
// Call sites use printf-style helpers (Infof, Warnf, ...); output is produced
// by a zap core so the format and level filtering stay consistent across the
// CLI and the background runtimes.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (wire frames, FSM inputs).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// traceLevel sits one step below zap's Debug level.
const traceLevel = zapcore.DebugLevel - 1

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelTrace:
		return traceLevel
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stderr
	level            = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  *zap.SugaredLogger
)

func init() {
	rebuild()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(l, enc)
}

// rebuild must be called with mu held for writing, or from init.
func rebuild() {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = encodeLevel
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(out)), level)
	sugar = zap.New(core).Sugar()
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	level.SetLevel(l.zap())
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(l Level) bool {
	return level.Enabled(l.zap())
}

// Sync flushes buffered output.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Sync()
}

func logf(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	mu.RLock()
	s := sugar
	mu.RUnlock()
	s.Logf(l.zap(), format, args...)
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
