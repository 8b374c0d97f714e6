package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Storage selects the metrics-store driver and its DSN. Supported
// drivers: postgres, databricks, snowflake.
type Storage struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres databricks snowflake"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

// Endpoint is one candidate language-model backend, tried in list order.
type Endpoint struct {
	Name    string        `mapstructure:"name" validate:"required"`
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Narrative struct {
	Endpoints []Endpoint `mapstructure:"endpoints" validate:"min=1,dive"`
}

type Server struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config is the engine's full, immutable configuration. It is loaded
// once at startup and shared read-only across concurrent runs.
type Config struct {
	Storage          Storage       `mapstructure:"storage" validate:"required"`
	Narrative        Narrative     `mapstructure:"narrative" validate:"required"`
	Server           Server        `mapstructure:"server"`
	TimezoneOffset   string        `mapstructure:"timezone_offset"`
	ReportDir        string        `mapstructure:"report_dir"`
	CollectorTimeout time.Duration `mapstructure:"collector_timeout"`
}

const (
	DefaultTimezoneOffset   = "+07:00"
	DefaultReportDir        = "reports"
	DefaultCollectorTimeout = 10 * time.Second
	DefaultEndpointTimeout  = 90 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
)

// Load reads the config file at path, applies KPI_DELTA_* env
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KPI_DELTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("timezone_offset", DefaultTimezoneOffset)
	v.SetDefault("report_dir", DefaultReportDir)
	v.SetDefault("collector_timeout", DefaultCollectorTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for i := range cfg.Narrative.Endpoints {
		if cfg.Narrative.Endpoints[i].Timeout == 0 {
			cfg.Narrative.Endpoints[i].Timeout = DefaultEndpointTimeout
		}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
