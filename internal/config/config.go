// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Stellar   StellarConfig   `mapstructure:"stellar"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StellarConfig contains Soroban RPC connection configuration
type StellarConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	NetworkPassphrase string        `mapstructure:"network_passphrase"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// SyncConfig contains contract event sync configuration
type SyncConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	StartLedger uint64        `mapstructure:"start_ledger"`
}

// SchedulerConfig contains worker pool configuration
type SchedulerConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// AlertsConfig contains alert delivery configuration
type AlertsConfig struct {
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	SMTPHost        string        `mapstructure:"smtp_host"`
	SMTPPort        int           `mapstructure:"smtp_port"`
	SMTPUsername    string        `mapstructure:"smtp_username"`
	SMTPPassword    string        `mapstructure:"smtp_password"`
	FromEmail       string        `mapstructure:"from_email"`
	FromName        string        `mapstructure:"from_name"`
}

// QuotaConfig contains rate limiting configuration
type QuotaConfig struct {
	Store         string `mapstructure:"store"` // memory, redis
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	viper.SetEnvPrefix("SOROSCAN")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Common deployment overrides
	if rpcURL := os.Getenv("SOROBAN_RPC_URL"); rpcURL != "" {
		config.Stellar.RPCURL = rpcURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.Quota.RedisAddr = redisAddr
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "soroscan")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Stellar defaults
	viper.SetDefault("stellar.rpc_url", "https://soroban-testnet.stellar.org")
	viper.SetDefault("stellar.network_passphrase", "Test SDF Network ; September 2015")
	viper.SetDefault("stellar.request_timeout", "30s")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/soroscan.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Sync defaults (Stellar ledgers close roughly every 5 seconds)
	viper.SetDefault("sync.enabled", true)
	viper.SetDefault("sync.interval", "10s")
	viper.SetDefault("sync.batch_size", 100)
	viper.SetDefault("sync.start_ledger", 0)

	// Scheduler defaults
	viper.SetDefault("scheduler.workers", 4)
	viper.SetDefault("scheduler.queue_size", 1000)

	// Alert defaults
	viper.SetDefault("alerts.dispatch_timeout", "30s")
	viper.SetDefault("alerts.smtp_host", "localhost")
	viper.SetDefault("alerts.smtp_port", 587)
	viper.SetDefault("alerts.from_email", "alerts@soroscan.local")
	viper.SetDefault("alerts.from_name", "SoroScan")

	// Quota defaults
	viper.SetDefault("quota.store", "memory")
	viper.SetDefault("quota.redis_addr", "localhost:6379")
	viper.SetDefault("quota.redis_db", 0)

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Stellar.RPCURL == "" {
		return fmt.Errorf("Soroban RPC URL is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler workers must be positive")
	}
	if c.Quota.Store != "memory" && c.Quota.Store != "redis" {
		return fmt.Errorf("quota store must be 'memory' or 'redis'")
	}
	return nil
}
