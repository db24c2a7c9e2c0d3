package logger

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() { // usable before Init so packages can log during tests
	global.Store(zap.NewNop())
}

// Options tune the global logger.
type Options struct {
	// Level is a zap level name. Empty means info.
	Level string
	// Format selects "json" (default) or "console" output.
	Format string
}

// Build returns the service logger described by opts without installing it.
func Build(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if name := strings.TrimSpace(opts.Level); name != "" {
		parsed, err := zapcore.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		level = parsed
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}
	return built.With(zap.String("service", "roadwatch")), nil
}

// Init installs a JSON logger at level.
func Init(level string) error {
	return InitWithOptions(Options{Level: level})
}

// InitWithOptions builds and installs the global logger.
func InitWithOptions(opts Options) error {
	built, err := Build(opts)
	if err != nil {
		return err
	}
	global.Store(built)
	return nil
}

// Replace swaps the global logger, returning a func that restores the previous one.
func Replace(l *zap.Logger) func() {
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

func Logger() *zap.Logger {
	return global.Load()
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with the owning component.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
