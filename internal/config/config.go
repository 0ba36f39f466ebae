package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Drafting   DraftingConfig   `yaml:"drafting" mapstructure:"drafting"`
	Delivery   DeliveryConfig   `yaml:"delivery" mapstructure:"delivery"`
	Alerts     AlertConfig      `yaml:"alerts" mapstructure:"alerts"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Sweep      SweepConfig      `yaml:"sweep" mapstructure:"sweep"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DraftingConfig configures the external letter-drafting collaborator.
// With Enabled=false all drafts require manually supplied content.
type DraftingConfig struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMin float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	OrgName       string  `yaml:"org_name" mapstructure:"org_name"`
}

// DeliveryConfig configures the outbound delivery transport.
type DeliveryConfig struct {
	EmailEndpoint string `yaml:"email_endpoint" mapstructure:"email_endpoint"`
	EmailFrom     string `yaml:"email_from" mapstructure:"email_from"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AlertConfig configures webhook alerting on severity escalations.
type AlertConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CooldownHours     int    `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ComplianceConfig holds scoring and calendar knobs.
type ComplianceConfig struct {
	ScoreCacheTTLMins    int     `yaml:"score_cache_ttl_mins" mapstructure:"score_cache_ttl_mins"`
	FallbackClaimUSD     float64 `yaml:"fallback_claim_usd" mapstructure:"fallback_claim_usd"`
	HolidayCalendarPath  string  `yaml:"holiday_calendar_path" mapstructure:"holiday_calendar_path"`
}

// SweepConfig configures the periodic severity re-evaluation sweep.
type SweepConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// TemporalConfig configures the schedule worker.
type TemporalConfig struct {
	HostPort      string `yaml:"host_port" mapstructure:"host_port"`
	Namespace     string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue     string `yaml:"task_queue" mapstructure:"task_queue"`
	SweepCron     string `yaml:"sweep_cron" mapstructure:"sweep_cron"`
	SnapshotCron  string `yaml:"snapshot_cron" mapstructure:"snapshot_cron"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPLIANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("drafting.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("drafting.max_tokens", 4096)
	v.SetDefault("drafting.requests_per_min", 30)
	v.SetDefault("delivery.timeout_secs", 15)
	v.SetDefault("alerts.cooldown_hours", 24)
	v.SetDefault("alerts.check_interval_secs", 300)
	v.SetDefault("compliance.score_cache_ttl_mins", 60)
	v.SetDefault("compliance.fallback_claim_usd", 25000)
	v.SetDefault("sweep.concurrency", 8)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "compliance")
	v.SetDefault("temporal.sweep_cron", "0 * * * *")
	v.SetDefault("temporal.snapshot_cron", "15 0 * * *")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
