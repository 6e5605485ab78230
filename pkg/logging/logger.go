// Package logging provides a small leveled-logging facade used throughout
// lumencore. The call-site shape (global singleton, level-gated
// Info/Debug/Trace, an Error that always prints) mirrors the logger the
// console's ancestor project hand-rolled over log.Logger; here it is backed
// by zap so the fabric, patcher, mixer and output pipeline all get
// structured, allocation-light logging instead of fmt.Sprintf fan-out.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the logging verbosity.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelDebug, LogLevelTrace:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger wraps a zap.SugaredLogger with the level-gating the rest of the
// console relies on (Trace is a level beyond what zap models natively, so
// it's gated here and emitted at Debug).
type Logger struct {
	mu     sync.RWMutex
	level  LogLevel
	sugar  *zap.SugaredLogger
	atom   zap.AtomicLevel
}

var (
	globalLogger *Logger
	once         sync.Once
)

func newLogger() *Logger {
	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atom)
	return &Logger{
		level: LogLevelInfo,
		sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(),
		atom:  atom,
	}
}

// GetLogger returns the global logger instance.
func GetLogger() *Logger {
	once.Do(func() {
		globalLogger = newLogger()
	})
	return globalLogger
}

// SetVerbosity sets the global log level.
func SetVerbosity(level LogLevel) {
	GetLogger().SetLevel(level)
}

// SetLevel sets the level for this logger.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.atom.SetLevel(level.zapLevel())
}

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func (l *Logger) allow(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

// Error logs an error message regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.allow(LogLevelInfo) {
		l.sugar.Infof(format, args...)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.allow(LogLevelDebug) {
		l.sugar.Debugf(format, args...)
	}
}

// Trace logs extremely detailed diagnostics.
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.allow(LogLevelTrace) {
		l.sugar.Debugf(format, args...)
	}
}

// Named returns a logger tagged with the given component name, e.g. for a
// specific driver or plugin.
func (l *Logger) Named(name string) *zap.SugaredLogger {
	return l.sugar.Named(name)
}

// Global convenience functions.

func Error(format string, args ...interface{}) { GetLogger().Error(format, args...) }
func Info(format string, args ...interface{})  { GetLogger().Info(format, args...) }
func Debug(format string, args ...interface{}) { GetLogger().Debug(format, args...) }
func Trace(format string, args ...interface{}) { GetLogger().Trace(format, args...) }
