// Package config loads service configuration from a yaml file with
// environment overrides. Every knob has a default so the service can boot
// with nothing but a database DSN.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	Issuer        string        `mapstructure:"issuer"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SessionMaxAge time.Duration `mapstructure:"session_max_age"`
}

type CRMConfig struct {
	ExchangeTTL time.Duration `mapstructure:"exchange_ttl"`
	AccessTTL   time.Duration `mapstructure:"access_ttl"`
	RefreshTTL  time.Duration `mapstructure:"refresh_ttl"`
}

type EventsConfig struct {
	URL          string        `mapstructure:"url"`
	Subject      string        `mapstructure:"subject"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

type RateLimitConfig struct {
	Backend   string        `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr string        `mapstructure:"redis_addr"`
	Window    time.Duration `mapstructure:"window"`

	LoginPerIP      int `mapstructure:"login_per_ip"`
	LoginPerUser    int `mapstructure:"login_per_user"`
	RefreshPerIP    int `mapstructure:"refresh_per_ip"`
	ExchangePerUser int `mapstructure:"exchange_per_user"`
}

// Load reads configuration from the given path (optional) and the
// environment. Env vars use the CRMGATE_ prefix with dots replaced by
// underscores, e.g. CRMGATE_DATABASE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "15m")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "crmgate")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.session_ttl", "168h")      // 7 days
	v.SetDefault("auth.session_max_age", "2160h") // retention cutoff, 90 days

	v.SetDefault("crm.exchange_ttl", "10m")
	v.SetDefault("crm.access_ttl", "24h")
	v.SetDefault("crm.refresh_ttl", "720h") // 30 days

	v.SetDefault("events.url", "nats://localhost:4222")
	v.SetDefault("events.subject", "crmgate.users")
	v.SetDefault("events.flush_timeout", "10s")

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.login_per_ip", 10)
	v.SetDefault("ratelimit.login_per_user", 5)
	v.SetDefault("ratelimit.refresh_per_ip", 30)
	v.SetDefault("ratelimit.exchange_per_user", 10)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/crmgate")
	}

	v.SetEnvPrefix("CRMGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}
	return &cfg, nil
}
