package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sentiment-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	LunarCrush LunarCrushConfig `mapstructure:"lunarcrush"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Server     ServerConfig     `mapstructure:"server"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs processing cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// LunarCrushConfig covers social metrics API access.
type LunarCrushConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxCoins       int           `mapstructure:"max_coins"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// MonitorConfig selects the symbol set and classification behaviour.
type MonitorConfig struct {
	Coins    []string      `mapstructure:"coins"`
	Profile  string        `mapstructure:"profile"`
	Lookback time.Duration `mapstructure:"lookback"`
	Workers  int           `mapstructure:"workers"`
}

// AlertingConfig defines the notification sink.
type AlertingConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Discord        DiscordConfig `mapstructure:"discord"`
	NotifyTimeout  time.Duration `mapstructure:"notify_timeout"`
	MaxEmbedFields int           `mapstructure:"max_embed_fields"`
}

// DiscordConfig describes the Discord webhook sink.
type DiscordConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ServerConfig drives the manual trigger API.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTIMENTALERTS")
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
	v.SetDefault("app.name", "sentiment-alerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x53454e54))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("lunarcrush.base_url", "https://lunarcrush.com/api4/public")
	v.SetDefault("lunarcrush.request_timeout", "10s")
	v.SetDefault("lunarcrush.user_agent", "sentiment-alerts/1.0")
	v.SetDefault("lunarcrush.max_coins", 100)
	v.SetDefault("lunarcrush.retry_attempts", 3)
	v.SetDefault("lunarcrush.retry_delay", "1s")

	v.SetDefault("monitor.coins", []string{"BTC", "ETH", "SOL", "DOGE", "SHIB", "PEPE", "WIF", "BONK"})
	v.SetDefault("monitor.profile", "production")
	v.SetDefault("monitor.lookback", "24h")
	v.SetDefault("monitor.workers", 8)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_timeout", "15s")
	v.SetDefault("alerting.max_embed_fields", 10)
	v.SetDefault("alerting.discord.timeout", "10s")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Monitor.Lookback <= 0 {
		return fmt.Errorf("monitor.lookback must be greater than zero")
	}
	if c.Monitor.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be greater than zero")
	}
	if c.LunarCrush.MaxCoins <= 0 {
		return fmt.Errorf("lunarcrush.max_coins must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.MaxEmbedFields <= 0 {
		return fmt.Errorf("alerting.max_embed_fields must be greater than zero")
	}
	if c.Alerting.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url must be configured when alerting is enabled")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be configured when server is enabled")
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
