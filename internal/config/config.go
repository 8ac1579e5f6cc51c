package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	DefaultLocation   string

	RequestTimeout  time.Duration
	FreshnessWindow time.Duration
	CacheBackend    string // "postgres", "memcached", or "in_memory"

	DatabaseDSN string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceRequests bool
	CoalesceTimeout  time.Duration

	AuthProvider       string // "twilio", "cognito", or "local"
	OTPCodeTTL         time.Duration
	SessionTTL         time.Duration
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	TwilioVerifySID    string
	CognitoRegion      string
	CognitoUserPoolID  string
	CognitoClientID    string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL             string `yaml:"url"`
		Timeout         string `yaml:"timeout"`
		DefaultLocation string `yaml:"default_location"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		FreshnessWindow string `yaml:"freshness_window"`
		Coalesce        struct {
			Enabled *bool  `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalesce"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Auth struct {
		Provider   string `yaml:"provider"`
		OTPCodeTTL string `yaml:"otp_code_ttl"`
		SessionTTL string `yaml:"session_ttl"`
		Twilio     struct {
			AccountSID string `yaml:"account_sid"`
			FromNumber string `yaml:"from_number"`
			VerifySID  string `yaml:"verify_service_sid"`
		} `yaml:"twilio"`
		Cognito struct {
			Region     string `yaml:"region"`
			UserPoolID string `yaml:"user_pool_id"`
			ClientID   string `yaml:"client_id"`
		} `yaml:"cognito"`
	} `yaml:"auth"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey   string `yaml:"weather_api_key"`
	DatabaseDSN     string `yaml:"database_dsn"`
	TwilioAuthToken string `yaml:"twilio_auth_token"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. Secrets come from env first, then the secrets file:
// WEATHER_API_KEY, DATABASE_DSN, TWILIO_AUTH_TOKEN. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.DefaultLocation = strings.TrimSpace(fc.WeatherAPI.DefaultLocation)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.FreshnessWindow = parseDuration(fc.Cache.FreshnessWindow, time.Hour)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "postgres"
	}

	cfg.DatabaseDSN = firstNonEmpty(os.Getenv("DATABASE_DSN"), sec.DatabaseDSN, fc.Database.DSN)

	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CoalesceRequests = true
	if fc.Cache.Coalesce.Enabled != nil {
		cfg.CoalesceRequests = *fc.Cache.Coalesce.Enabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Cache.Coalesce.Timeout, 15*time.Second)

	cfg.AuthProvider = strings.TrimSpace(strings.ToLower(os.Getenv("OTP_PROVIDER")))
	if cfg.AuthProvider == "" {
		cfg.AuthProvider = strings.TrimSpace(strings.ToLower(fc.Auth.Provider))
	}
	if cfg.AuthProvider == "" {
		cfg.AuthProvider = "local"
	}
	cfg.OTPCodeTTL = parseDuration(fc.Auth.OTPCodeTTL, 10*time.Minute)
	cfg.SessionTTL = parseDuration(fc.Auth.SessionTTL, 24*time.Hour)

	cfg.TwilioAccountSID = firstNonEmpty(os.Getenv("TWILIO_ACCOUNT_SID"), fc.Auth.Twilio.AccountSID)
	cfg.TwilioAuthToken = firstNonEmpty(os.Getenv("TWILIO_AUTH_TOKEN"), sec.TwilioAuthToken)
	cfg.TwilioFromNumber = firstNonEmpty(os.Getenv("TWILIO_PHONE_NUMBER"), fc.Auth.Twilio.FromNumber)
	cfg.TwilioVerifySID = firstNonEmpty(os.Getenv("TWILIO_VERIFY_SERVICE_SID"), fc.Auth.Twilio.VerifySID)

	cfg.CognitoRegion = firstNonEmpty(os.Getenv("AWS_COGNITO_REGION"), fc.Auth.Cognito.Region, "us-east-2")
	cfg.CognitoUserPoolID = firstNonEmpty(os.Getenv("AWS_COGNITO_USER_POOL_ID"), fc.Auth.Cognito.UserPoolID)
	cfg.CognitoClientID = firstNonEmpty(os.Getenv("AWS_COGNITO_CLIENT_ID"), fc.Auth.Cognito.ClientID)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "postgres", "memcached", "in_memory":
		// valid
	default:
		return fmt.Errorf("cache.backend must be postgres, memcached, or in_memory, got %q", cfg.CacheBackend)
	}
	if cfg.CacheBackend == "postgres" && cfg.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn required for postgres cache backend")
	}
	switch cfg.AuthProvider {
	case "twilio", "cognito", "local":
		// valid
	default:
		return fmt.Errorf("auth.provider must be twilio, cognito, or local, got %q", cfg.AuthProvider)
	}
	return nil
}
