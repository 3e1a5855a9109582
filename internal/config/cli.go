package config

import (
	"flag"
	"fmt"
	"io"
)

// CLIFlags holds optional command-line overrides. Nil means "not set".
type CLIFlags struct {
	ConfigPath *string
	EnvPath    *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	RedisAddr  *string
}

// ParseFlags parses serve-mode flags. Only flags explicitly passed are non-nil.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("requestline", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath, envPath, port, logLevel, dsn, natsURL, redisAddr string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config")
	fs.StringVar(&configPath, "c", "", "path to YAML config (shorthand)")
	fs.StringVar(&envPath, "env-file", "", "path to dotenv file")
	fs.StringVar(&port, "port", "", "HTTP port")
	fs.StringVar(&port, "p", "", "HTTP port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS URL")
	fs.StringVar(&redisAddr, "redis-addr", "", "Redis address")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var f CLIFlags
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "config", "c":
			f.ConfigPath = &configPath
		case "env-file":
			f.EnvPath = &envPath
		case "port", "p":
			f.Port = &port
		case "log-level":
			f.LogLevel = &logLevel
		case "dsn":
			f.DSN = &dsn
		case "nats-url":
			f.NatsURL = &natsURL
		case "redis-addr":
			f.RedisAddr = &redisAddr
		}
	})
	return f, nil
}

// LoadWithCLI loads config with CLI flags as the highest precedence layer and
// returns the resolved YAML path.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}
	envPath := DefaultEnvFile
	if flags.EnvPath != nil {
		envPath = *flags.EnvPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	if err := loadDotEnv(envPath); err != nil {
		return nil, "", fmt.Errorf("config dotenv: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, yamlPath, nil
}

func applyCLI(cfg *Config, f CLIFlags) {
	if f.Port != nil {
		cfg.Server.Port = *f.Port
	}
	if f.LogLevel != nil {
		cfg.Logging.Level = *f.LogLevel
	}
	if f.DSN != nil {
		cfg.Postgres.DSN = *f.DSN
	}
	if f.NatsURL != nil {
		cfg.NATS.URL = *f.NatsURL
	}
	if f.RedisAddr != nil {
		cfg.Redis.Addr = *f.RedisAddr
	}
}
