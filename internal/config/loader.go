package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "requestline.yaml"

// DefaultEnvFile is the dotenv file loaded into the process environment.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < .env < ENV.
// Both files are optional; missing files are not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile, DefaultEnvFile)
}

// LoadFrom returns a Config loaded from the given YAML and dotenv paths.
// Variables already present in the environment are never overridden by the dotenv file.
func LoadFrom(yamlPath, envPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadDotEnv(envPath); err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadDotEnv loads path into the process environment without overriding.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REQUESTLINE_PORT")
	setString(&cfg.Server.CORSOrigin, "REQUESTLINE_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "REQUESTLINE_SHUTDOWN_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REQUESTLINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REQUESTLINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REQUESTLINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REQUESTLINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REQUESTLINE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	// Auth
	setString(&cfg.Auth.JWTSecret, "REQUESTLINE_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "REQUESTLINE_TOKEN_TTL")
	setInt(&cfg.Auth.BcryptCost, "REQUESTLINE_BCRYPT_COST")
	setString(&cfg.Auth.FingerprintSecret, "REQUESTLINE_FINGERPRINT_SECRET")
	setString(&cfg.Auth.CredentialKey, "REQUESTLINE_CREDENTIAL_KEY")

	// Party
	setDuration(&cfg.Party.DuplicateLookback, "REQUESTLINE_DUPLICATE_LOOKBACK")
	setDuration(&cfg.Party.SubmitWindow, "REQUESTLINE_SUBMIT_WINDOW")
	setInt(&cfg.Party.HourlyCap, "REQUESTLINE_HOURLY_CAP")
	setDuration(&cfg.Party.PollInterval, "REQUESTLINE_POLL_INTERVAL")
	setDuration(&cfg.Party.AdapterTimeout, "REQUESTLINE_ADAPTER_TIMEOUT")
	setDuration(&cfg.Party.ClaimTimeout, "REQUESTLINE_CLAIM_TIMEOUT")
	setDuration(&cfg.Party.IdleReset, "REQUESTLINE_IDLE_RESET")
	setDuration(&cfg.Party.SnapshotTTL, "REQUESTLINE_SNAPSHOT_TTL")
	setString(&cfg.Party.SweepSchedule, "REQUESTLINE_SWEEP_SCHEDULE")

	// Spotify
	setString(&cfg.Spotify.Provider, "REQUESTLINE_PLAYBACK_PROVIDER")
	setString(&cfg.Spotify.APIBase, "SPOTIFY_API_BASE")
	setString(&cfg.Spotify.AccountsBase, "SPOTIFY_ACCOUNTS_BASE")
	setString(&cfg.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&cfg.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")

	// Logging
	setString(&cfg.Logging.Level, "REQUESTLINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REQUESTLINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REQUESTLINE_LOG_ASYNC")
	setString(&cfg.Logging.File, "REQUESTLINE_LOG_FILE")

	setInt(&cfg.Breaker.MaxFailures, "REQUESTLINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REQUESTLINE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "REQUESTLINE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "REQUESTLINE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "REQUESTLINE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "REQUESTLINE_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "REQUESTLINE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "REQUESTLINE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "REQUESTLINE_CACHE_L2_TTL")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "REQUESTLINE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "REQUESTLINE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "REQUESTLINE_OTEL_SAMPLE_RATE")

	setBool(&cfg.MCP.Enabled, "REQUESTLINE_MCP_ENABLED")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Auth.FingerprintSecret == "" {
		return errors.New("auth.fingerprint_secret is required")
	}
	if cfg.Auth.CredentialKey == "" {
		return errors.New("auth.credential_key is required")
	}
	if cfg.Party.PollInterval <= 0 {
		return errors.New("party.poll_interval must be > 0")
	}
	if cfg.Party.AdapterTimeout <= 0 {
		return errors.New("party.adapter_timeout must be > 0")
	}
	if cfg.Party.SubmitWindow <= 0 || cfg.Party.HourlyCap < 1 {
		return errors.New("party.submit_window and party.hourly_cap must be positive")
	}
	if cfg.Party.DuplicateLookback <= 0 {
		return errors.New("party.duplicate_lookback must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
