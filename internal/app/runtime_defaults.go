package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	jwtSecretBytes = 48

	defaultRetentionDays = 30
	defaultSweepSchedule = "@daily"
	defaultPageLimit     = 20
	maxPageLimit         = 100
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied
// and clamps notification settings into their supported ranges.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := randomSecret(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	n := &cfg.Notifications
	if n.RetentionDays <= 0 {
		n.RetentionDays = defaultRetentionDays
	}
	if strings.TrimSpace(n.SweepSchedule) == "" {
		n.SweepSchedule = defaultSweepSchedule
	}
	switch {
	case n.DefaultLimit <= 0:
		n.DefaultLimit = defaultPageLimit
	case n.DefaultLimit > maxPageLimit:
		n.DefaultLimit = maxPageLimit
	}

	return generated, nil
}

// randomSecret returns n random bytes encoded as unpadded URL-safe base64.
func randomSecret(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
