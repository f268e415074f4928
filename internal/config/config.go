package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SUPERSET_GUEST_RELAY"

type Resource struct {
	Type string `mapstructure:"type"`
	ID   string `mapstructure:"id"`
}

type RLSRule struct {
	Dataset int    `mapstructure:"dataset"`
	Clause  string `mapstructure:"clause"`
}

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
		// honored. Empty means the socket address is the client address.
		TrustedProxies []string `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	Redis struct {
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Superset struct {
		BaseURL        string        `mapstructure:"base_url"`
		Referer        string        `mapstructure:"referer"`
		Timeout        time.Duration `mapstructure:"timeout"`
		RetryCount     int           `mapstructure:"retry_count"`
		ServiceAccount struct {
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
		} `mapstructure:"service_account"`
	} `mapstructure:"superset"`

	Auth struct {
		// Strategy is "passthrough" or "service_account".
		Strategy string `mapstructure:"strategy"`
	} `mapstructure:"auth"`

	Guest struct {
		UsernamePrefix string     `mapstructure:"username_prefix"`
		FirstName      string     `mapstructure:"first_name"`
		LastName       string     `mapstructure:"last_name"`
		Resources      []Resource `mapstructure:"resources"`
		RLS            []RLSRule  `mapstructure:"rls"`
	} `mapstructure:"guest"`

	RateLimit struct {
		Enabled  bool          `mapstructure:"enabled"`
		Requests int           `mapstructure:"requests"`
		Window   time.Duration `mapstructure:"window"`
		Burst    int           `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Observability struct {
		MetricsEnabled     bool   `mapstructure:"metrics_enabled"`
		TraceEnabled       bool   `mapstructure:"trace_enabled"`
		TracingEndpointURL string `mapstructure:"tracing_endpoint_url"`
		LogLevel           string `mapstructure:"log_level"`
		Format             string `mapstructure:"log_format"`
		LogSource          bool   `mapstructure:"log_source"`
	} `mapstructure:"observability"`

	CORS struct {
		AllowedOrigins   []string `mapstructure:"allowed_origins"`
		AllowCredentials bool     `mapstructure:"allow_credentials"`
	} `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 45*time.Second)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("superset.base_url", "https://supersettest-superset.dev.indocpilot.io")
	v.SetDefault("superset.timeout", 30*time.Second)
	v.SetDefault("superset.retry_count", 0)
	v.SetDefault("superset.service_account.username", "")
	v.SetDefault("superset.service_account.password", "")

	v.SetDefault("auth.strategy", "passthrough")

	v.SetDefault("guest.username_prefix", "app_user_")
	v.SetDefault("guest.first_name", "Embedded")
	v.SetDefault("guest.last_name", "User")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allow_credentials", true)
}

// Load reads config.yaml (optional) from the given directories, an optional
// config.<APP_ENV>.yaml overlay, then environment variables.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	logger := slog.Default()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The service account pair keeps its historical unprefixed names too.
	if err := v.BindEnv("superset.service_account.username",
		envPrefix+"_SUPERSET_SERVICE_ACCOUNT_USERNAME", "SUPERSET_SERVICE_ACCOUNT_USERNAME"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}
	if err := v.BindEnv("superset.service_account.password",
		envPrefix+"_SUPERSET_SERVICE_ACCOUNT_PASSWORD", "SUPERSET_SERVICE_ACCOUNT_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Info("No config file found, using defaults and environment")
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		} else {
			logger.Info("Environment-specific config loaded", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Default().Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	return cfg
}
