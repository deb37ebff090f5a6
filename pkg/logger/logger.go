// Package logger is the process-wide log sink. Before Init every call is a
// no-op, so library code can log unconditionally.
package logger

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	logFile      *lumberjack.Logger
	mu           sync.Mutex
)

// Options configures the sinks.
type Options struct {
	File       string    // JSON log file, rotated by size; empty disables
	Level      string    // debug, info, warn, error; default info
	MaxSizeMB  int       // Rotation threshold; default 10
	MaxBackups int       // Rotated files kept; default 3
	Console    io.Writer // Human-readable copy; nil disables
}

// Init initializes the global logger writing to the specified log file.
func Init(logPath string) error {
	return InitWithOptions(Options{File: logPath})
}

// InitWithOptions initializes the global logger. It may be called again to
// replace the sinks; the previous file is closed.
func InitWithOptions(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	var file *lumberjack.Logger
	if opts.File != "" {
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		}
		// Open eagerly so a bad path fails here, not on the first write
		if _, err := file.Write(nil); err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}
	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(opts.Console), level))
	}

	closeLocked()
	logFile = file
	if len(cores) == 0 {
		globalLogger.Store(nil)
		return nil
	}
	globalLogger.Store(zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)))
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	globalLogger.Store(nil)
}

func closeLocked() {
	if l := globalLogger.Load(); l != nil {
		_ = l.Sync()
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// L returns the global logger, or a no-op logger before Init.
func L() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Named returns a structured logger for a component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	L().Sugar().Infof(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	L().Sugar().Debugf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	L().Sugar().Errorf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	L().Sugar().Warnf(format, v...)
}

// GetWriter returns the underlying log file for raw command output.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
