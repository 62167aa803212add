package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Auth        AuthConfig                `mapstructure:"auth"`
	Completion  CompletionConfig          `mapstructure:"completion"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Log         LogConfig                 `mapstructure:"log"`
}

type BasicConfig struct {
	ServerAddress     string `mapstructure:"server_address"`
	Database          string `mapstructure:"database"`
	GinMode           string `mapstructure:"gin_mode"`
	MinWorkers        int    `mapstructure:"min_workers"`
	MaxWorkers        int    `mapstructure:"max_workers"`
	QueueSize         int    `mapstructure:"queue_size"`
	WorkerIdleTimeout int    `mapstructure:"worker_idle_timeout"` // minutes
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a redis host was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
}

// CompletionConfig selects which entry of Providers serves assistant replies.
type CompletionConfig struct {
	Provider string `mapstructure:"provider"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "CAREERCHAT"

// Load reads configuration from the provided path. With an empty path it looks for
// config.json in the working directory and falls back to defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by deployments of the original service.
	_ = v.BindEnv("providers.gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("auth.jwt_secret", envPrefix+"_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("basic_config.database", envPrefix+"_DB")

	baseDir := "."
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		v.SetConfigFile(absPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
		baseDir = filepath.Dir(absPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			baseDir = filepath.Dir(v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(baseDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":8090")
	v.SetDefault("basic_config.database", "sqlite3")
	v.SetDefault("basic_config.gin_mode", "release")
	v.SetDefault("basic_config.min_workers", 2)
	v.SetDefault("basic_config.max_workers", 16)
	v.SetDefault("basic_config.queue_size", 64)
	v.SetDefault("basic_config.worker_idle_timeout", 5)
	v.SetDefault("databases.sqlite3.dsn", "data/careerchat.db")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.secure_cookies", true)
	v.SetDefault("completion.provider", "gemini")
	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1")
	v.SetDefault("providers.gemini.model", "gemini-2.5-flash")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c *Config) normalize(baseDir string) error {
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = "sqlite3"
	}
	dbCfg, ok := c.Databases[c.BasicConfig.Database]
	if !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.Database)
	}
	if isSQLite(c.BasicConfig.Database) {
		if dbCfg.DSN == "" {
			return fmt.Errorf("sqlite dsn must be configured")
		}
		if dbCfg.DSN != ":memory:" && !strings.HasPrefix(dbCfg.DSN, "file:") && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(baseDir, dbCfg.DSN)
		}
		c.Databases[c.BasicConfig.Database] = dbCfg
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret must be configured")
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	return nil
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

// Database returns the settings of the configured database driver.
func (c *Config) Database() (string, DatabaseConfig) {
	return c.BasicConfig.Database, c.Databases[c.BasicConfig.Database]
}
