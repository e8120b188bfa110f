package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tributary/internal/distribution"
	"tributary/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Solana       SolanaConfig       `mapstructure:"solana"`
	Collection   CollectionConfig   `mapstructure:"collection"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SolanaConfig covers chain access.
type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	Mint           string        `mapstructure:"mint"`
	AdminKeypair   string        `mapstructure:"admin_keypair"`
	Commitment     string        `mapstructure:"commitment"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageSize       int           `mapstructure:"page_size"`
	SkipPreflight  bool          `mapstructure:"skip_preflight"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
}

// CollectionConfig governs holder snapshot building.
type CollectionConfig struct {
	Threshold        string        `mapstructure:"threshold"`
	ExcludeAddresses []string      `mapstructure:"exclude_addresses"`
	MaxHolders       int           `mapstructure:"max_holders"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// DistributionConfig tunes batched execution.
type DistributionConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	MaxRetries          int           `mapstructure:"max_retries"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	Mode                string        `mapstructure:"mode"`
}

// SchedulerConfig governs the recurring distribution daemon.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunAmount       string        `mapstructure:"run_amount"`
}

// AlertingConfig defines run-completion notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram notification parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRIBUTARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tributary")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.request_timeout", "15s")
	v.SetDefault("solana.page_size", 1000)
	v.SetDefault("solana.retry_attempts", 3)

	v.SetDefault("collection.threshold", "0")
	v.SetDefault("collection.cache_ttl", "5m")

	v.SetDefault("distribution.batch_size", 10)
	v.SetDefault("distribution.max_retries", 3)
	v.SetDefault("distribution.confirm_poll_interval", "2s")
	v.SetDefault("distribution.mode", string(distribution.ModeProportional))

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x74726962))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Distribution.BatchSize <= 0 {
		return fmt.Errorf("distribution.batch_size must be greater than zero")
	}
	if c.Distribution.MaxRetries <= 0 {
		return fmt.Errorf("distribution.max_retries must be greater than zero")
	}
	if c.Distribution.ConfirmPollInterval <= 0 {
		return fmt.Errorf("distribution.confirm_poll_interval must be greater than zero")
	}
	if _, err := distribution.ParseMode(c.Distribution.Mode); err != nil {
		return fmt.Errorf("distribution.mode: %w", err)
	}
	if c.Collection.CacheTTL < 0 {
		return fmt.Errorf("collection.cache_ttl cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// RequireChain validates the fields needed by commands that reach the network.
func (c *Config) RequireChain() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if c.Solana.Mint == "" {
		return fmt.Errorf("solana.mint is required")
	}
	return nil
}

// RequireSigner validates the fields needed by commands that submit transfers.
func (c *Config) RequireSigner() error {
	if err := c.RequireChain(); err != nil {
		return err
	}
	if c.Solana.AdminKeypair == "" {
		return fmt.Errorf("solana.admin_keypair is required")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
