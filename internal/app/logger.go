package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/roadwatch/roadwatch/pkg/logger"
)

// ConfigureLogging installs the process logger described by the server section. An empty
// level means info; an unknown level or format is rejected rather than silently ignored.
func ConfigureLogging(server ServerConfig) error {
	level := strings.TrimSpace(server.LogLevel)
	if level == "" {
		level = zapcore.InfoLevel.String()
	}
	if _, err := zapcore.ParseLevel(level); err != nil {
		return fmt.Errorf("server.log_level: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(server.LogFormat))
	switch format {
	case "", "json", "console":
	default:
		return fmt.Errorf("server.log_format: unsupported format %q", server.LogFormat)
	}
	return logger.InitWithOptions(logger.Options{Level: level, Format: format})
}
