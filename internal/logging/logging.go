// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration options.
type Config struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console

	// File, when set, receives a JSON copy of every entry and is rotated
	// by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	if cfg.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig(zcfg.EncoderConfig)),
			zapcore.AddSync(rotatingFile(cfg)),
			zcfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger = logger.With(zap.String("service", "msamon"))

	return logger, nil
}

func rotatingFile(cfg Config) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	if l.MaxSize == 0 {
		l.MaxSize = 100
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 10
	}
	if l.MaxAge == 0 {
		l.MaxAge = 30
	}
	return l
}

// fileEncoderConfig strips terminal colouring from the development encoder.
func fileEncoderConfig(ec zapcore.EncoderConfig) zapcore.EncoderConfig {
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv returns base with any MSAMON_LOG_* environment variables applied.
func FromEnv(base Config) Config {
	base.Level = getenv("MSAMON_LOG_LEVEL", base.Level)
	base.Format = getenv("MSAMON_LOG_FORMAT", base.Format)
	base.File = getenv("MSAMON_LOG_FILE", base.File)
	return base
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Host returns a zap field for a controller address or name.
func Host(host string) zap.Field { return zap.String("host", host) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Scheme returns a zap field for a URL scheme.
func Scheme(scheme string) zap.Field { return zap.String("scheme", scheme) }

// Resource returns a zap field for an API resource name.
func Resource(name string) zap.Field { return zap.String("resource", name) }

// ReturnCode returns a zap field for an API return code.
func ReturnCode(code string) zap.Field { return zap.String("return_code", code) }

// Health returns a zap field for a component health code.
func Health(code string) zap.Field { return zap.String("health", code) }
