// Package config builds the service configuration from the environment once,
// at process start.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jun/vidshare/internal/secret"
)

const (
	BackendDynamo = "dynamo"
	BackendMemory = "memory"
)

type TablesConfig struct {
	Tokens string `mapstructure:"tokens"`
	Usage  string `mapstructure:"usage"`
	Videos string `mapstructure:"videos"`
}

type ParamsConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
	APIGatewaySecret  string `mapstructure:"api_gateway_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Secrets are resolved from Params after loading; they never come from viper.
type Secrets struct {
	JWTSecret         string
	AdminPasswordHash string
	APIGatewaySecret  string
}

type Config struct {
	DevMode         bool            `mapstructure:"dev_mode"`
	StoreBackend    string          `mapstructure:"store_backend"`
	Tables          TablesConfig    `mapstructure:"tables"`
	VideoBucket     string          `mapstructure:"video_bucket"`
	KMSKeyID        string          `mapstructure:"kms_key_id"`
	Params          ParamsConfig    `mapstructure:"params"`
	FrontendURL     string          `mapstructure:"frontend_url"`
	ListenAddr      string          `mapstructure:"listen_addr"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"`
	ConsumeAttempts int             `mapstructure:"consume_attempts"`
	Log             LogConfig       `mapstructure:"log"`
	RateLimit       RateLimitConfig `mapstructure:"ratelimit"`

	Secrets Secrets `mapstructure:"-"`
}

// envBindings maps config keys to the environment variables the deployment sets.
var envBindings = map[string]string{
	"dev_mode":                      "DEV_MODE",
	"store_backend":                 "STORE_BACKEND",
	"tables.tokens":                 "TOKENS_TABLE",
	"tables.usage":                  "USAGE_TABLE",
	"tables.videos":                 "VIDEOS_TABLE",
	"video_bucket":                  "VIDEO_BUCKET",
	"kms_key_id":                    "KMS_KEY_ID",
	"params.jwt_secret":             "JWT_SECRET_PARAM",
	"params.admin_password_hash":    "ADMIN_PASSWORD_HASH_PARAM",
	"params.api_gateway_secret":     "API_GATEWAY_SECRET_PARAM",
	"frontend_url":                  "FRONTEND_URL",
	"listen_addr":                   "LISTEN_ADDR",
	"request_timeout":               "REQUEST_TIMEOUT",
	"consume_attempts":              "CONSUME_ATTEMPTS",
	"log.level":                     "LOG_LEVEL",
	"log.format":                    "LOG_FORMAT",
	"ratelimit.requests_per_second": "RATE_LIMIT_RPS",
	"ratelimit.burst":               "RATE_LIMIT_BURST",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dev_mode", false)
	v.SetDefault("store_backend", BackendDynamo)

	v.SetDefault("tables.tokens", "DownloadTokens")
	v.SetDefault("tables.usage", "DownloadUsage")
	v.SetDefault("tables.videos", "Videos")
	v.SetDefault("video_bucket", "vidshare-videos")
	v.SetDefault("kms_key_id", "alias/vidshare-usage-key")

	v.SetDefault("params.jwt_secret", "/vidshare/jwt-secret")
	v.SetDefault("params.admin_password_hash", "/vidshare/admin-password-hash")
	v.SetDefault("params.api_gateway_secret", "/vidshare/api-gateway-secret")

	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("consume_attempts", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ratelimit.requests_per_second", 2.0)
	v.SetDefault("ratelimit.burst", 10)
}

// Load reads the configuration from the environment. It does not resolve
// secrets; call ResolveSecrets for that.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the non-secret settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendDynamo:
		if c.Tables.Tokens == "" || c.Tables.Usage == "" || c.Tables.Videos == "" {
			errs = append(errs, errors.New("table names must not be empty"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.VideoBucket == "" {
		errs = append(errs, errors.New("VIDEO_BUCKET is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.ConsumeAttempts < 1 {
		errs = append(errs, errors.New("CONSUME_ATTEMPTS must be at least 1"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate limit must allow at least one request"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ResolveSecrets fills c.Secrets through r. The API gateway secret is only
// required outside dev mode.
func (c *Config) ResolveSecrets(ctx context.Context, r secret.Resolver) error {
	names := []string{c.Params.JWTSecret, c.Params.AdminPasswordHash}
	if !c.DevMode {
		names = append(names, c.Params.APIGatewaySecret)
	}
	values, err := r.Resolve(ctx, names...)
	if err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}
	c.Secrets = Secrets{
		JWTSecret:         values[c.Params.JWTSecret],
		AdminPasswordHash: values[c.Params.AdminPasswordHash],
		APIGatewaySecret:  values[c.Params.APIGatewaySecret],
	}
	return nil
}
