package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color" // Colored console output per log level
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Console printers for each level. Messages follow the "[LEVEL] text\n" convention
// used throughout the codebase, so callers pass the prefix and the trailing newline.
var (
	infoPrinter  = color.New(color.FgGreen).PrintfFunc()
	warnPrinter  = color.New(color.FgHiMagenta).PrintfFunc()
	errorPrinter = color.New(color.FgRed).PrintfFunc()
	debugPrinter = color.New(color.FgCyan).PrintfFunc()
)

// fileLog receives a copy of every message when a log file is configured.
// It stays a no-op logger until Init opens the file.
var fileLog = zap.NewNop()

// debugEnabled gates the console Debug output.
var debugEnabled bool

// Info logs informational messages in green.
var Info = func(format string, a ...any) {
	infoPrinter(format, a...)
	fileLog.Info(clean(format, a...))
}

// Warn logs warnings in bright magenta. Used when a step fails but the run continues.
var Warn = func(format string, a ...any) {
	warnPrinter(format, a...)
	fileLog.Warn(clean(format, a...))
}

// Error logs errors in red.
var Error = func(format string, a ...any) {
	errorPrinter(format, a...)
	fileLog.Error(clean(format, a...))
}

// Debug logs debug messages in cyan when enabled through Init.
// The log file gets debug entries only when debug is on as well.
var Debug = func(format string, a ...any) {
	if !debugEnabled {
		return
	}
	debugPrinter(format, a...)
	fileLog.Debug(clean(format, a...))
}

// Init enables or disables debug output and, when logFile is non-empty,
// opens a JSON-lines log file that mirrors every console message.
func Init(enableDebug bool, logFile string) error {
	debugEnabled = enableDebug

	if logFile == "" {
		fileLog = zap.NewNop()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logFile}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if enableDebug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("initialize log file %s: %w", logFile, err)
	}
	fileLog = l
	return nil
}

// Sync flushes the log file. Safe to call when no file is configured.
func Sync() {
	_ = fileLog.Sync()
}

// clean formats a console message for the log file: the level prefix and the
// surrounding whitespace are dropped since zap records the level itself.
func clean(format string, a ...any) string {
	msg := strings.TrimSpace(fmt.Sprintf(format, a...))
	if strings.HasPrefix(msg, "[") {
		if end := strings.Index(msg, "]"); end > 0 && end < 8 {
			msg = strings.TrimSpace(msg[end+1:])
		}
	}
	return msg
}
