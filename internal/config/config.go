// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// Config holds the entire application configuration. It is loaded once at
// startup and handed to each component by reference; there is no ambient
// mutable global configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer" yaml:"analyzer"`
	Intent    IntentConfig    `mapstructure:"intent" yaml:"intent"`
	Decision  DecisionConfig  `mapstructure:"decision" yaml:"decision"`
	Proactive ProactiveConfig `mapstructure:"proactive" yaml:"proactive"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"-"`
}

// LLMConfig configures the optional external language model. An empty APIKey
// leaves the pipeline on its deterministic rule-based paths.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
}

// AnalyzerConfig tunes the context analyzer.
type AnalyzerConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// AllowedFields is the data-minimization allow list; everything else is
	// dropped before an analysis leaves the analyzer.
	AllowedFields []string `mapstructure:"allowed_fields" yaml:"allowed_fields"`

	// SensitiveFields are redacted in the anonymized view.
	SensitiveFields []string `mapstructure:"sensitive_fields" yaml:"sensitive_fields"`
}

// IntentConfig tunes the intent recognizer.
type IntentConfig struct {
	CacheTTL            time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	BiasThreshold       float64       `mapstructure:"bias_threshold" yaml:"bias_threshold"`
}

// DecisionConfig tunes the decision engine.
type DecisionConfig struct {
	MaxDailyActions int `mapstructure:"max_daily_actions" yaml:"max_daily_actions"`

	// ApprovalRiskThreshold is the lowest risk level that always forces a
	// user approval prompt.
	ApprovalRiskThreshold string `mapstructure:"approval_risk_threshold" yaml:"approval_risk_threshold"`

	// MaxExecutionDuration, when positive, caps every per-action-type
	// duration ceiling.
	MaxExecutionDuration time.Duration `mapstructure:"max_execution_duration" yaml:"max_execution_duration"`
}

// ApprovalThreshold returns the configured threshold as a RiskLevel,
// defaulting to high on an unrecognized value.
func (d DecisionConfig) ApprovalThreshold() schemas.RiskLevel {
	switch schemas.RiskLevel(d.ApprovalRiskThreshold) {
	case schemas.RiskNone, schemas.RiskLow, schemas.RiskMedium, schemas.RiskHigh, schemas.RiskCritical:
		return schemas.RiskLevel(d.ApprovalRiskThreshold)
	}
	return schemas.RiskHigh
}

// ProactiveConfig tunes the proactive behavior engine.
type ProactiveConfig struct {
	NotificationTimeout time.Duration `mapstructure:"notification_timeout" yaml:"notification_timeout"`
	TickInterval        time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`

	// AIConfidenceFloor is the minimum confidence an AI-recommended action
	// must carry before it may even be proposed for scheduling.
	AIConfidenceFloor float64 `mapstructure:"ai_confidence_floor" yaml:"ai_confidence_floor"`

	// MinBatteryPercent gates power-intensive actions.
	MinBatteryPercent float64 `mapstructure:"min_battery_percent" yaml:"min_battery_percent"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "kestrel")
	v.SetDefault("logger.log_file", "kestrel.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Store --
	v.SetDefault("store.backend", "memory")

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.temperature", 0.2)

	// -- Analyzer --
	v.SetDefault("analyzer.cache_ttl", "10m")
	v.SetDefault("analyzer.allowed_fields", []string{
		"location", "timestamp", "time_of_day", "device_state",
		"battery_level", "network_type", "activity", "locale",
	})
	v.SetDefault("analyzer.sensitive_fields", []string{
		"name", "email", "phone", "address", "password", "token", "ssn",
	})

	// -- Intent --
	v.SetDefault("intent.cache_ttl", "10m")
	v.SetDefault("intent.confidence_threshold", 0.7)
	v.SetDefault("intent.bias_threshold", 0.3)

	// -- Decision --
	v.SetDefault("decision.max_daily_actions", 20)
	v.SetDefault("decision.approval_risk_threshold", string(schemas.RiskHigh))
	v.SetDefault("decision.max_execution_duration", time.Duration(0))

	// -- Proactive --
	v.SetDefault("proactive.notification_timeout", "30s")
	v.SetDefault("proactive.tick_interval", "1s")
	v.SetDefault("proactive.ai_confidence_floor", 0.8)
	v.SetDefault("proactive.min_battery_percent", 20.0)
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to unmarshal them is a programming
		// error, not a runtime condition.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("llm.api_key", "KESTREL_LLM_API_KEY")
	v.BindEnv("store.postgres_url", "KESTREL_POSTGRES_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres backend (set KESTREL_POSTGRES_URL)")
		}
	default:
		return fmt.Errorf("store.backend must be \"memory\" or \"postgres\", got %q", c.Store.Backend)
	}

	if c.Intent.ConfidenceThreshold < 0 || c.Intent.ConfidenceThreshold > 1 {
		return fmt.Errorf("intent.confidence_threshold must be within [0,1]")
	}
	if c.Intent.BiasThreshold < 0 || c.Intent.BiasThreshold > 1 {
		return fmt.Errorf("intent.bias_threshold must be within [0,1]")
	}
	if c.Decision.MaxDailyActions <= 0 {
		return fmt.Errorf("decision.max_daily_actions must be a positive integer")
	}
	if c.Proactive.NotificationTimeout <= 0 {
		return fmt.Errorf("proactive.notification_timeout must be a positive duration")
	}
	if c.Proactive.TickInterval <= 0 {
		return fmt.Errorf("proactive.tick_interval must be a positive duration")
	}
	if c.Proactive.AIConfidenceFloor < 0 || c.Proactive.AIConfidenceFloor > 1 {
		return fmt.Errorf("proactive.ai_confidence_floor must be within [0,1]")
	}
	if c.Analyzer.CacheTTL <= 0 || c.Intent.CacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive durations")
	}
	return nil
}
