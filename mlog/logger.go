// Package mlog builds the zap loggers used by gddns.
package mlog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	// Level, See also zapcore.ParseLevel.
	Level string `mapstructure:"level"`

	// File that logger will be writen into.
	// Default is stderr.
	File string `mapstructure:"file"`

	// Production enables json output.
	Production bool `mapstructure:"production"`
}

var (
	stderr = zapcore.Lock(os.Stderr)
	lvl    = zap.NewAtomicLevelAt(zap.InfoLevel)
	l      = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), stderr, lvl))
	s      = l.Sugar()
)

// NewLogger builds a logger from lc.
func NewLogger(lc *LogConfig) (*zap.Logger, error) {
	level := zap.InfoLevel
	if len(lc.Level) > 0 {
		var err error
		level, err = zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	out := stderr
	if len(lc.File) > 0 {
		f, _, err := zap.Open(lc.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = zapcore.Lock(f)
	}

	var encoder zapcore.Encoder
	if lc.Production {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	return zap.New(zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))), nil
}

// L is the global logger, used before the config file is loaded.
func L() *zap.Logger {
	return l
}

// SetLevel sets the level of the global logger.
func SetLevel(level zapcore.Level) {
	lvl.SetLevel(level)
}

// S is the sugared global logger.
func S() *zap.SugaredLogger {
	return s
}
