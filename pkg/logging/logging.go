// Package logging provides the zap logger factory and a kratos log
// adapter so both logging styles share a single backend.
package logging

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
)

// Options controls logger construction.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Level          string // debug, info, warn, error
	Format         string // json or console
}

// NewLogger builds a zap logger from the given options.
// Unknown levels fall back to info.
func NewLogger(opts Options) (*zap.Logger, error) {
	var config zap.Config
	if opts.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(opts.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	config.Level = level

	config.InitialFields = map[string]interface{}{
		"service":     opts.ServiceName,
		"version":     opts.ServiceVersion,
		"environment": opts.Environment,
	}

	return config.Build()
}

// kratosAdapter bridges kratos structured logging onto zap.
type kratosAdapter struct {
	logger *zap.Logger
}

// NewKratosLogger wraps a zap logger as a kratos log.Logger.
func NewKratosLogger(logger *zap.Logger) log.Logger {
	return &kratosAdapter{logger: logger.WithOptions(zap.AddCallerSkip(2))}
}

// Log implements log.Logger. Keyvals are paired into zap fields;
// a trailing unpaired value is recorded under "extra".
func (a *kratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	msg := ""
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	if len(keyvals)%2 == 1 {
		fields = append(fields, zap.Any("extra", keyvals[len(keyvals)-1]))
	}

	switch level {
	case log.LevelDebug:
		a.logger.Debug(msg, fields...)
	case log.LevelInfo:
		a.logger.Info(msg, fields...)
	case log.LevelWarn:
		a.logger.Warn(msg, fields...)
	case log.LevelError:
		a.logger.Error(msg, fields...)
	case log.LevelFatal:
		a.logger.Fatal(msg, fields...)
	default:
		a.logger.Info(msg, fields...)
	}
	return nil
}
