// Package logger holds the process wide zap logger. Logs go to stderr so that
// stdout carries only the check report.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	globalSugar  *zap.SugaredLogger
)

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(logLevel string) zapcore.Level {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes the global zap logger. An empty logFile logs to stderr.
func Init(logLevel string, logFile string) error {
	level := ParseLevel(logLevel)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if logFile != "" {
		fileConfig := zap.Config{
			Level:            zap.NewAtomicLevelAt(level),
			Encoding:         "json",
			EncoderConfig:    encoderConfig,
			OutputPaths:      []string{logFile},
			ErrorOutputPaths: []string{logFile},
		}
		l, err := fileConfig.Build()
		if err != nil {
			return err
		}
		set(l)
		return nil
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
	set(zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

// Set replaces the global logger, used by tests to observe log output
func Set(l *zap.Logger) {
	set(l)
}

func set(l *zap.Logger) {
	globalLogger = l
	globalSugar = l.Sugar()
}

// L returns the global zap logger
func L() *zap.Logger {
	if globalLogger == nil {
		_ = Init("INFO", "")
	}
	return globalLogger
}

// S returns the global sugared zap logger
func S() *zap.SugaredLogger {
	if globalSugar == nil {
		_ = Init("INFO", "")
	}
	return globalSugar
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
