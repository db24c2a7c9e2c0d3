package app

import (
	"strings"

	"github.com/roadwatch/roadwatch/internal/auth"
	"github.com/roadwatch/roadwatch/internal/cache"
	"github.com/roadwatch/roadwatch/internal/database"
	"github.com/roadwatch/roadwatch/pkg/mail"
)

// DriverMongo selects the MongoDB notification store.
const DriverMongo = "mongodb"

// UsesMongo reports whether the configured driver is MongoDB.
func (c DatabaseConfig) UsesMongo() bool {
	return strings.EqualFold(strings.TrimSpace(c.Driver), DriverMongo)
}

// GormConfig converts DatabaseConfig into the relational connection parameters.
func (c DatabaseConfig) GormConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.Pool.MaxOpenConns,
		MaxIdleConns:    c.Pool.MaxIdleConns,
		ConnMaxLifetime: c.Pool.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		return cfg
	}

	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	return cfg
}

// MongoConnectionConfig converts the mongodb section into driver options.
func (c DatabaseConfig) MongoConnectionConfig() database.MongoConfig {
	m := c.MongoDB
	return database.MongoConfig{
		URI:            m.URI,
		Database:       m.Database,
		ConnectTimeout: m.ConnectTimeout,
		MaxPoolSize:    m.MaxPoolSize,
		RetryAttempts:  m.RetryAttempts,
		RetryInterval:  m.RetryInterval,
	}
}

// ClientConfig converts RedisCacheConfig into cache connection parameters.
func (c RedisCacheConfig) ClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Address,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
		TLS:      c.TLS,
		Timeout:  c.Timeout,
	}
}

// JWTServiceConfig converts the auth section into token service parameters. A missing TTL
// falls back to auth.DefaultAccessTokenTTL.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	cfg := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
		Leeway:         c.JWT.Leeway,
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	return cfg
}

// SMTPSettings converts the email section into mailer settings. Host and sender are trimmed
// so values read from the environment compare cleanly.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     strings.TrimSpace(smtp.From),
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}
