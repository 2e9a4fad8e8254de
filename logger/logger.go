package logger

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go/dirhook/config"
)

// New builds the process logger. With format "auto" a terminal on stderr gets
// the console encoder and anything else gets JSON.
func New(verbose bool, format string) (*zap.Logger, error) {
	var cfg zap.Config
	switch resolveFormat(format, os.Stderr.Fd()) {
	case config.LogFormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	case config.LogFormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

func resolveFormat(format string, fd uintptr) string {
	if format != config.LogFormatAuto && format != "" {
		return format
	}
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return config.LogFormatConsole
	}
	return config.LogFormatJSON
}
