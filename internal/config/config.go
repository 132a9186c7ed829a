package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP             HTTPConfig
	DatabaseURL      string
	Production       bool
	Auth             AuthConfig
	FrontendDistDir  string
	AuditLogFile     string
	UserStateFile    string
	SessionStateFile string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	BootstrapUsername string
	BootstrapPassword string
	BootstrapEmail    string
	SessionTTL        time.Duration
}

// Load resolves configuration in three layers: built-in defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Auth: AuthConfig{
			BootstrapUsername: "admin",
			BootstrapPassword: "admin123",
			BootstrapEmail:    "admin@localhost",
			SessionTTL:        15 * 24 * time.Hour,
		},
		FrontendDistDir:  "./web/dist",
		AuditLogFile:     "./data/audit.log",
		UserStateFile:    "./data/auth_users.json",
		SessionStateFile: "./data/auth_sessions.json",
	}
}

type fileConfig struct {
	HTTP struct {
		Addr               *string `yaml:"addr"`
		ReadTimeoutSec     *int    `yaml:"read_timeout_sec"`
		WriteTimeoutSec    *int    `yaml:"write_timeout_sec"`
		ShutdownTimeoutSec *int    `yaml:"shutdown_timeout_sec"`
	} `yaml:"http"`
	DatabaseURL *string `yaml:"database_url"`
	Production  *bool   `yaml:"production"`
	Auth        struct {
		BootstrapUsername *string `yaml:"bootstrap_username"`
		BootstrapPassword *string `yaml:"bootstrap_password"`
		BootstrapEmail    *string `yaml:"bootstrap_email"`
		SessionTTLSec     *int    `yaml:"session_ttl_sec"`
	} `yaml:"auth"`
	FrontendDistDir  *string `yaml:"frontend_dist_dir"`
	AuditLogFile     *string `yaml:"audit_log_file"`
	UserStateFile    *string `yaml:"user_state_file"`
	SessionStateFile *string `yaml:"session_state_file"`
}

func applyFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}

	setString(&cfg.HTTP.Addr, fc.HTTP.Addr)
	setSeconds(&cfg.HTTP.ReadTimeout, fc.HTTP.ReadTimeoutSec)
	setSeconds(&cfg.HTTP.WriteTimeout, fc.HTTP.WriteTimeoutSec)
	setSeconds(&cfg.HTTP.ShutdownTimeout, fc.HTTP.ShutdownTimeoutSec)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	if fc.Production != nil {
		cfg.Production = *fc.Production
	}
	setString(&cfg.Auth.BootstrapUsername, fc.Auth.BootstrapUsername)
	setString(&cfg.Auth.BootstrapPassword, fc.Auth.BootstrapPassword)
	setString(&cfg.Auth.BootstrapEmail, fc.Auth.BootstrapEmail)
	setSeconds(&cfg.Auth.SessionTTL, fc.Auth.SessionTTLSec)
	setString(&cfg.FrontendDistDir, fc.FrontendDistDir)
	setString(&cfg.AuditLogFile, fc.AuditLogFile)
	setString(&cfg.UserStateFile, fc.UserStateFile)
	setString(&cfg.SessionStateFile, fc.SessionStateFile)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ReadTimeout = getEnvSeconds("HTTP_READ_TIMEOUT_SEC", cfg.HTTP.ReadTimeout)
	cfg.HTTP.WriteTimeout = getEnvSeconds("HTTP_WRITE_TIMEOUT_SEC", cfg.HTTP.WriteTimeout)
	cfg.HTTP.ShutdownTimeout = getEnvSeconds("HTTP_SHUTDOWN_TIMEOUT_SEC", cfg.HTTP.ShutdownTimeout)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	if v, ok := os.LookupEnv("APP_ENV"); ok && v != "" {
		cfg.Production = v == "production"
	}
	cfg.Auth.BootstrapUsername = getEnv("AUTH_BOOTSTRAP_USERNAME", cfg.Auth.BootstrapUsername)
	cfg.Auth.BootstrapPassword = getEnv("AUTH_BOOTSTRAP_PASSWORD", cfg.Auth.BootstrapPassword)
	cfg.Auth.BootstrapEmail = getEnv("AUTH_BOOTSTRAP_EMAIL", cfg.Auth.BootstrapEmail)
	cfg.Auth.SessionTTL = getEnvSeconds("AUTH_SESSION_TTL_SEC", cfg.Auth.SessionTTL)
	cfg.FrontendDistDir = getEnv("FRONTEND_DIST_DIR", cfg.FrontendDistDir)
	cfg.AuditLogFile = getEnv("AUDIT_LOG_FILE", cfg.AuditLogFile)
	cfg.UserStateFile = getEnv("AUTH_USER_STATE_FILE", cfg.UserStateFile)
	cfg.SessionStateFile = getEnv("AUTH_SESSION_STATE_FILE", cfg.SessionStateFile)
}

func (c Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if c.Auth.BootstrapUsername == "" {
		return fmt.Errorf("AUTH_BOOTSTRAP_USERNAME must not be empty")
	}
	if c.Auth.BootstrapPassword == "" {
		return fmt.Errorf("AUTH_BOOTSTRAP_PASSWORD must not be empty")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	if c.DatabaseURL == "" {
		if c.UserStateFile == "" {
			return fmt.Errorf("AUTH_USER_STATE_FILE must not be empty without DATABASE_URL")
		}
		if c.SessionStateFile == "" {
			return fmt.Errorf("AUTH_SESSION_STATE_FILE must not be empty without DATABASE_URL")
		}
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setSeconds(dst *time.Duration, src *int) {
	if src != nil && *src > 0 {
		*dst = time.Duration(*src) * time.Second
	}
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
