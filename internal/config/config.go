package config // package config loads application configuration from defaults, an optional YAML file and the environment

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the variable pointing at an optional YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config holds all runtime configuration values.  It is built once in main
// and passed by reference into the components that need it; nothing else in
// the application reads the process environment.
type Config struct {
	App       AppConfig       `koanf:"app"`
	DB        DBConfig        `koanf:"db"`
	Auth      AuthConfig      `koanf:"auth"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Mail      MailConfig      `koanf:"mail"`
	Captcha   CaptchaConfig   `koanf:"captcha"`
	Media     MediaConfig     `koanf:"media"`
}

// AppConfig covers the HTTP listener and process-wide behaviour.
type AppConfig struct {
	Env        string `koanf:"env"`         // dev, test or production
	Port       string `koanf:"port"`        // HTTP port to listen on
	BaseURL    string `koanf:"base_url"`    // public URL of the web front-end, used in emails
	CORSOrigin string `koanf:"cors_origin"` // allowed origin for browsers
	LogLevel   string `koanf:"log_level"`
	LogFormat  string `koanf:"log_format"` // json or console
}

// DBConfig describes the relational store.  Driver selects the SQL dialect.
type DBConfig struct {
	Driver      string        `koanf:"driver"` // mysql or postgres
	DSN         string        `koanf:"dsn"`    // full connection string, overrides the discrete fields
	Host        string        `koanf:"host"`
	Port        string        `koanf:"port"`
	User        string        `koanf:"user"`
	Pass        string        `koanf:"pass"`
	Name        string        `koanf:"name"`
	MaxOpen     int           `koanf:"max_open"`
	MaxIdle     int           `koanf:"max_idle"`
	MaxLifetime time.Duration `koanf:"max_lifetime"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`         // HS256 secret for session tokens
	SessionTTL       time.Duration `koanf:"session_ttl"`        // lifetime of a login token
	ResetTTL         time.Duration `koanf:"reset_ttl"`          // lifetime of a password reset token
	BcryptCost       int           `koanf:"bcrypt_cost"`        // bcrypt cost factor
	JWKSURL          string        `koanf:"jwks_url"`           // upstream identity provider key set
	JWKSTTL          time.Duration `koanf:"jwks_ttl"`           // how long fetched keys are trusted
	SignupRequireJWT bool          `koanf:"signup_require_jwt"` // demand an upstream ES256 token on sign-up
}

// MailConfig selects the outbound mail provider.
type MailConfig struct {
	Provider      string `koanf:"provider"` // log, sendgrid or mailgun
	From          string `koanf:"from"`
	SendGridKey   string `koanf:"sendgrid_key"`
	MailgunDomain string `koanf:"mailgun_domain"`
	MailgunKey    string `koanf:"mailgun_key"`
}

// CaptchaConfig configures reCAPTCHA verification.  An empty secret disables it.
type CaptchaConfig struct {
	Secret    string  `koanf:"secret"`
	VerifyURL string  `koanf:"verify_url"`
	MinScore  float64 `koanf:"min_score"`
}

// MediaConfig bounds uploads.
type MediaConfig struct {
	MaxVideoMB int `koanf:"max_video_mb"`
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:        "dev",
			Port:       "8080",
			BaseURL:    "http://localhost:8888",
			CORSOrigin: "*",
			LogLevel:   "info",
			LogFormat:  "json",
		},
		DB: DBConfig{
			Driver:      "mysql",
			Host:        "127.0.0.1",
			Port:        "3306",
			Name:        "fisio",
			MaxOpen:     25,
			MaxIdle:     25,
			MaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			SessionTTL: time.Hour,
			ResetTTL:   15 * time.Minute,
			BcryptCost: 10,
			JWKSTTL:    15 * time.Minute,
		},
		Redis:     RedisConfig{DB: 0},
		RateLimit: defaultRateLimit(),
		Mail:      MailConfig{Provider: "log", From: "no-reply@localhost"},
		Captcha: CaptchaConfig{
			VerifyURL: "https://www.google.com/recaptcha/api/siteverify",
			MinScore:  0.5,
		},
		Media: MediaConfig{MaxVideoMB: 10},
	}
}

// Load reads .env (if present), then layers defaults, an optional YAML file
// and environment variables, in increasing priority.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	cfg.RateLimit.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks required values and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DB.Driver {
	case "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", c.DB.Driver))
	}
	if c.DB.DSN == "" && (c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "") {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST/DB_NAME/DB_USER are required"))
	}
	switch c.Mail.Provider {
	case "log":
	case "sendgrid":
		if c.Mail.SendGridKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for the sendgrid provider"))
		}
	case "mailgun":
		if c.Mail.MailgunDomain == "" || c.Mail.MailgunKey == "" {
			errs = append(errs, errors.New("MAILGUN_DOMAIN and MAILGUN_API_KEY are required for the mailgun provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_PROVIDER must be log, sendgrid or mailgun, got %q", c.Mail.Provider))
	}
	if c.Auth.SignupRequireJWT && c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("JWKS_URL is required when SIGNUP_REQUIRE_JWT is set"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST out of range: %d", c.Auth.BcryptCost))
	}
	if c.Media.MaxVideoMB <= 0 {
		errs = append(errs, errors.New("MAX_VIDEO_MB must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether internal error details must be hidden.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production") || strings.EqualFold(c.App.Env, "prod")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps the flat variable names used in deployment to koanf paths.
var envMappings = map[string]string{
	"app_env":           "app.env",
	"app_port":          "app.port",
	"port":              "app.port",
	"app_base_url":      "app.base_url",
	"cors_allow_origin": "app.cors_origin",
	"log_level":         "app.log_level",
	"log_format":        "app.log_format",

	"db_driver":       "db.driver",
	"database_url":    "db.dsn",
	"db_host":         "db.host",
	"db_port":         "db.port",
	"db_user":         "db.user",
	"db_pass":         "db.pass",
	"db_name":         "db.name",
	"db_max_open":     "db.max_open",
	"db_max_idle":     "db.max_idle",
	"db_max_lifetime": "db.max_lifetime",

	"jwt_secret":         "auth.jwt_secret",
	"session_ttl":        "auth.session_ttl",
	"reset_ttl":          "auth.reset_ttl",
	"bcrypt_cost":        "auth.bcrypt_cost",
	"jwks_url":           "auth.jwks_url",
	"stack_jwks_url":     "auth.jwks_url",
	"jwks_ttl":           "auth.jwks_ttl",
	"signup_require_jwt": "auth.signup_require_jwt",
	"signin_require_jwt": "auth.signup_require_jwt",

	"redis_addr":     "redis.addr",
	"redis_host":     "redis.host",
	"redis_port":     "redis.port",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",
	"redis_tls":      "redis.tls",

	"rate_limit_enabled":         "rate_limit.enabled",
	"rate_limit_capacity":        "rate_limit.capacity",
	"rate_limit_refill_tokens":   "rate_limit.refill_tokens",
	"rate_limit_refill_interval": "rate_limit.refill_interval",
	"rate_limit_ttl":             "rate_limit.ttl",
	"rate_limit_key_strategy":    "rate_limit.key_strategy",
	"rate_limit_prefix":          "rate_limit.prefix",
	"rate_limit_debug":           "rate_limit.debug",

	"mail_provider":    "mail.provider",
	"mail_from":        "mail.from",
	"sendgrid_api_key": "mail.sendgrid_key",
	"mailgun_domain":   "mail.mailgun_domain",
	"mailgun_api_key":  "mail.mailgun_key",

	"recaptcha_secret":     "captcha.secret",
	"recaptcha_verify_url": "captcha.verify_url",
	"recaptcha_min_score":  "captcha.min_score",

	"max_video_mb": "media.max_video_mb",
}

// envTransformFunc maps DB_HOST to db.host and so on.  Variables that are not
// part of the configuration are dropped by returning an empty key.
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
