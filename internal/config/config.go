// Package config loads settings shared by the service binaries
// Order of precedence: flags, environment, '.env' file, defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/accounts/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultJWTAlgorithm = "HS256"
	defaultFrontendURL  = "http://localhost:3000"
	defaultProjectName  = "Accounts"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment, chooses log format (dev, prod)
	Environment string

	// Address on which the API server will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis holding the email queue
	RedisURL string

	Auth AuthConfig
	Mail MailConfig
	Jobs JobsConfig
}

type AuthConfig struct {
	// Key to sign JWT tokens with
	SecretKey string

	// HS256, HS384 or HS512
	JWTAlgorithm string

	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	PasswordResetTTL time.Duration

	RotateRefreshTokens          bool
	KeepSessionsOnPasswordChange bool

	// Send access token cookie over https only
	CookieSecure bool
}

type MailConfig struct {
	// Links in emails point here
	FrontendURL string
	ProjectName string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPStartTLS bool

	From     string
	FromName string

	// Count of worker goroutines sending emails
	Workers int
}

type JobsConfig struct {
	// Cron spec of expired refresh tokens cleanup
	TokenCleanupSchedule string

	// How long expired tokens are kept
	TokenRetention time.Duration

	// Cron spec of promotion campaign, disabled if empty
	PromotionSchedule string
	PromotionTitle    string
	PromotionContent  string
	PromotionLink     string
}

func New() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		ListenAddr:  defaultListenAddr,
		RedisURL:    defaultRedisURL,
		Auth: AuthConfig{
			JWTAlgorithm:     defaultJWTAlgorithm,
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  7 * 24 * time.Hour,
			PasswordResetTTL: time.Hour,
		},
		Mail: MailConfig{
			FrontendURL:  defaultFrontendURL,
			ProjectName:  defaultProjectName,
			SMTPPort:     587,
			SMTPStartTLS: true,
			FromName:     defaultProjectName,
			Workers:      4,
		},
		Jobs: JobsConfig{
			TokenCleanupSchedule: "@hourly",
			TokenRetention:       24 * time.Hour,
			PromotionTitle:       "Special offer",
		},
	}
}

// Load config from all sources: '.env' file in working directory, environment and flags
// Extra flags of particular binary may be added to fs before
func Load(fs *pflag.FlagSet, getenv func(string) string, getwd func() (string, error), args []string) (*Config, error) {
	c := New()

	if err := c.LoadDotEnv(getwd); err != nil {
		return nil, fmt.Errorf("can't load .env file: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return nil, fmt.Errorf("can't load environment: %w", err)
	}

	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return c, nil
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// Empty variables are skipped, malformed ones are reported all together
func (c *Config) LoadEnv(getenv func(string) string) error {
	envMap := map[string]func(string) error{
		"LOG_LEVEL":    setString(&c.LogLevel),
		"ENVIRONMENT":  setString(&c.Environment),
		"RUN_ADDRESS":  setString(&c.ListenAddr),
		"DATABASE_URI": setString(&c.DatabaseDSN),
		"REDIS_URL":    setString(&c.RedisURL),

		"SECRET_KEY":                    setString(&c.Auth.SecretKey),
		"JWT_ALGORITHM":                 setString(&c.Auth.JWTAlgorithm),
		"ACCESS_TOKEN_TTL":              setDuration(&c.Auth.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":             setDuration(&c.Auth.RefreshTokenTTL),
		"PASSWORD_RESET_TTL":            setDuration(&c.Auth.PasswordResetTTL),
		"ROTATE_REFRESH_TOKENS":         setBool(&c.Auth.RotateRefreshTokens),
		"PASSWORD_CHANGE_KEEP_SESSIONS": setBool(&c.Auth.KeepSessionsOnPasswordChange),
		"COOKIE_SECURE":                 setBool(&c.Auth.CookieSecure),

		"FRONTEND_URL":   setString(&c.Mail.FrontendURL),
		"PROJECT_NAME":   setString(&c.Mail.ProjectName),
		"SMTP_HOST":      setString(&c.Mail.SMTPHost),
		"SMTP_PORT":      setInt(&c.Mail.SMTPPort),
		"SMTP_USER":      setString(&c.Mail.SMTPUsername),
		"SMTP_PASSWORD":  setString(&c.Mail.SMTPPassword),
		"SMTP_STARTTLS":  setBool(&c.Mail.SMTPStartTLS),
		"MAIL_FROM":      setString(&c.Mail.From),
		"MAIL_FROM_NAME": setString(&c.Mail.FromName),
		"MAIL_WORKERS":   setInt(&c.Mail.Workers),

		"TOKEN_CLEANUP_SCHEDULE": setString(&c.Jobs.TokenCleanupSchedule),
		"TOKEN_RETENTION":        setDuration(&c.Jobs.TokenRetention),
		"PROMOTION_SCHEDULE":     setString(&c.Jobs.PromotionSchedule),
		"PROMOTION_TITLE":        setString(&c.Jobs.PromotionTitle),
		"PROMOTION_CONTENT":      setString(&c.Jobs.PromotionContent),
		"PROMOTION_LINK":         setString(&c.Jobs.PromotionLink),
	}

	var errs []error
	for key, parseFn := range envMap {
		value := getenv(key)
		if value == "" {
			continue
		}
		if err := parseFn(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

// Bind flags to config fields, current values become defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL")

	fs.StringVarP(&c.Auth.SecretKey, "secret-key", "s", c.Auth.SecretKey, "Secret key to sign tokens")
	fs.StringVar(&c.Auth.JWTAlgorithm, "jwt-algorithm", c.Auth.JWTAlgorithm, "JWT signing algorithm (HS256, HS384, HS512)")
	fs.DurationVar(&c.Auth.AccessTokenTTL, "access-ttl", c.Auth.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.Auth.RefreshTokenTTL, "refresh-ttl", c.Auth.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.Auth.PasswordResetTTL, "password-reset-ttl", c.Auth.PasswordResetTTL, "Password reset token lifetime")
	fs.BoolVar(&c.Auth.RotateRefreshTokens, "rotate-refresh-tokens", c.Auth.RotateRefreshTokens, "Issue new refresh token on every refresh")
	fs.BoolVar(&c.Auth.KeepSessionsOnPasswordChange, "keep-sessions", c.Auth.KeepSessionsOnPasswordChange, "Keep refresh tokens valid on password change")
	fs.BoolVar(&c.Auth.CookieSecure, "cookie-secure", c.Auth.CookieSecure, "Send access token cookie over https only")

	fs.StringVar(&c.Mail.FrontendURL, "frontend-url", c.Mail.FrontendURL, "Frontend base URL used in emails")
	fs.StringVar(&c.Mail.ProjectName, "project-name", c.Mail.ProjectName, "Project name used in emails")
	fs.StringVar(&c.Mail.SMTPHost, "smtp-host", c.Mail.SMTPHost, "SMTP server host")
	fs.IntVar(&c.Mail.SMTPPort, "smtp-port", c.Mail.SMTPPort, "SMTP server port")
	fs.StringVar(&c.Mail.SMTPUsername, "smtp-user", c.Mail.SMTPUsername, "SMTP username")
	fs.StringVar(&c.Mail.SMTPPassword, "smtp-password", c.Mail.SMTPPassword, "SMTP password")
	fs.BoolVar(&c.Mail.SMTPStartTLS, "smtp-starttls", c.Mail.SMTPStartTLS, "Use STARTTLS")
	fs.StringVar(&c.Mail.From, "mail-from", c.Mail.From, "Sender email address")
	fs.StringVar(&c.Mail.FromName, "mail-from-name", c.Mail.FromName, "Sender name")
	fs.IntVar(&c.Mail.Workers, "mail-workers", c.Mail.Workers, "Count of email sending workers")

	fs.StringVar(&c.Jobs.TokenCleanupSchedule, "token-cleanup-schedule", c.Jobs.TokenCleanupSchedule, "Cron spec of expired tokens cleanup")
	fs.DurationVar(&c.Jobs.TokenRetention, "token-retention", c.Jobs.TokenRetention, "How long expired tokens are kept")
	fs.StringVar(&c.Jobs.PromotionSchedule, "promotion-schedule", c.Jobs.PromotionSchedule, "Cron spec of promotion campaign, disabled if empty")
}

// Validate options every binary relies on
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.Environment {
	case logger.EnvDevelopment, logger.EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}

	return errors.Join(errs...)
}

// Validate options API server needs on top of common ones
func (c *Config) ValidateServer() error {
	errs := []error{c.Validate(), c.ValidateDatabase()}

	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("secret key must be set"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.PasswordResetTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Jobs.TokenRetention < 0 {
		errs = append(errs, errors.New("token retention must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate options mail worker needs on top of common ones
func (c *Config) ValidateWorker() error {
	errs := []error{c.Validate()}

	if c.Mail.SMTPHost == "" {
		errs = append(errs, errors.New("SMTP host must be set"))
	}
	if c.Mail.From == "" {
		errs = append(errs, errors.New("sender address must be set"))
	}
	if c.Mail.Workers < 1 {
		errs = append(errs, errors.New("at least one mail worker required"))
	}
	// Promotion campaign reads recipients from database
	if c.Jobs.PromotionSchedule != "" {
		errs = append(errs, c.ValidateDatabase())
	}

	return errors.Join(errs...)
}

func (c *Config) ValidateDatabase() error {
	if c.DatabaseDSN == "" {
		return errors.New("database DSN must be set")
	}
	return nil
}

func setString(o *string) func(string) error {
	return func(value string) error {
		*o = value
		return nil
	}
}

func setDuration(o *time.Duration) func(string) error {
	return func(value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*o = d
		return nil
	}
}

func setBool(o *bool) func(string) error {
	return func(value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*o = b
		return nil
	}
}

func setInt(o *int) func(string) error {
	return func(value string) error {
		i, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*o = i
		return nil
	}
}
