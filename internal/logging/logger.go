// Package logging builds the zap loggers used across podfs.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelDebug logs every pod request
	LevelDebug = "debug"

	// LevelInfo logs one line per operation
	LevelInfo = "info"

	// LevelNone disables logging
	LevelNone = "none"
)

// GetLogger returns a console zap logger at the given level
// ("debug", "info", "warn", "error" or "none").
func GetLogger(level string) (*zap.Logger, error) {
	if level == LevelNone {
		return zap.NewNop(), nil
	}
	if level == "" {
		level = LevelInfo
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// MustGetLogger returns a logger with the specified level or panics
func MustGetLogger(level string) *zap.Logger {
	l, err := GetLogger(level)
	if err != nil {
		panic(err)
	}
	return l
}
