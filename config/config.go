package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration for the WarpTrace service.
type Config struct {
	Server struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		TLS      bool   `mapstructure:"tls"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"server"`

	API struct {
		// AllowedOrigins lists exact origins, or "*" for any origin.
		AllowedOrigins       []string `mapstructure:"allowed_origins"`
		TrustProxy           bool     `mapstructure:"trust_proxy"`
		TrustedProxyNetworks []string `mapstructure:"trusted_proxy_networks"`
		MaxUploadBytes       int64    `mapstructure:"max_upload_bytes"`
		RateLimit            struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Auth struct {
		Enabled        bool   `mapstructure:"enabled"`
		Username       string `mapstructure:"username"`
		Password       string `mapstructure:"password"`
		HashedPassword string
		BcryptCost     int           `mapstructure:"bcrypt_cost"`
		JWTSecret      string        `mapstructure:"jwt_secret"`
		JWTExpiry      time.Duration `mapstructure:"jwt_expiry"`
		// TOTPSecret enables a second login factor when set.
		TOTPSecret string `mapstructure:"totp_secret"`
	} `mapstructure:"auth"`

	Storage struct {
		// DataDir is the base data directory (WARPTRACE_DATA_DIR, default: ./data).
		DataDir string `mapstructure:"data_dir"`
		// SQLitePath overrides the database file path (default: ${DataDir}/warptrace.db).
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Analysis struct {
		Workers         int    `mapstructure:"workers"`
		QueueSize       int    `mapstructure:"queue_size"`
		RecognizersFile string `mapstructure:"recognizers_file"`
		ParallelPasses  bool   `mapstructure:"parallel_passes"`
	} `mapstructure:"analysis"`

	LLM struct {
		Enabled bool   `mapstructure:"enabled"`
		APIKey  string `mapstructure:"api_key"`
		BaseURL string `mapstructure:"base_url"`
		Model   string `mapstructure:"model"`
		Site    string `mapstructure:"site"`
		AppName string `mapstructure:"app_name"`
	} `mapstructure:"llm"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	ClickHouse struct {
		Enabled       bool   `mapstructure:"enabled"`
		Addr          string `mapstructure:"addr"`
		Database      string `mapstructure:"database"`
		Username      string `mapstructure:"username"`
		Password      string `mapstructure:"password"`
		TLS           bool   `mapstructure:"tls"`
		MaxPoolSize   int    `mapstructure:"max_pool_size"`
		BatchSize     int    `mapstructure:"batch_size"`
		FlushInterval int    `mapstructure:"flush_interval"` // seconds
	} `mapstructure:"clickhouse"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`

	Log struct {
		Level      string `mapstructure:"level"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"log"`
}

// setDefaults registers the baseline for every key so a bare deployment
// starts with something sensible.
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.tls", false)
	viper.SetDefault("server.cert_file", "server.crt")
	viper.SetDefault("server.key_file", "server.key")

	viper.SetDefault("api.allowed_origins", []string{"*"})
	viper.SetDefault("api.trust_proxy", false)
	viper.SetDefault("api.trusted_proxy_networks", []string{})
	viper.SetDefault("api.max_upload_bytes", 104857600) // 100MB
	viper.SetDefault("api.rate_limit.requests_per_second", 100)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("auth.enabled", true)
	viper.SetDefault("auth.username", "admin")
	viper.SetDefault("auth.password", "changeme")
	viper.SetDefault("auth.bcrypt_cost", 10)
	viper.SetDefault("auth.jwt_expiry", 12*time.Hour)
	// No default JWT secret: a deployment must set one explicitly.

	viper.SetDefault("storage.data_dir", "./data")
	viper.SetDefault("storage.sqlite_path", "") // empty = derive from data_dir

	viper.SetDefault("analysis.workers", 4)
	viper.SetDefault("analysis.queue_size", 64)
	viper.SetDefault("analysis.recognizers_file", "")
	viper.SetDefault("analysis.parallel_passes", false)

	viper.SetDefault("llm.enabled", true)
	viper.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.model", "openrouter/auto")
	viper.SetDefault("llm.site", "http://localhost:5173")
	viper.SetDefault("llm.app_name", "WarpTrace")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// 127.0.0.1 instead of localhost to avoid IPv6 resolution issues on Windows
	viper.SetDefault("clickhouse.enabled", false)
	viper.SetDefault("clickhouse.addr", "127.0.0.1:9000")
	viper.SetDefault("clickhouse.database", "warptrace")
	viper.SetDefault("clickhouse.username", "default")
	viper.SetDefault("clickhouse.password", "")
	viper.SetDefault("clickhouse.tls", false)
	viper.SetDefault("clickhouse.max_pool_size", 10)
	viper.SetDefault("clickhouse.batch_size", 1000)
	viper.SetDefault("clickhouse.flush_interval", 5)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age_days", 28)
	viper.SetDefault("log.compress", true)
}

// loadFromEnv wires environment variables over the file values.
func loadFromEnv() {
	viper.SetEnvPrefix("WARPTRACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The second env name in each binding is the legacy variable the
	// pre-rewrite deployment used, kept so existing environments keep working.
	_ = viper.BindEnv("server.port", "WARPTRACE_SERVER_PORT", "PORT")
	_ = viper.BindEnv("auth.jwt_secret", "WARPTRACE_AUTH_JWT_SECRET", "SECRET_KEY")
	_ = viper.BindEnv("auth.username", "WARPTRACE_AUTH_USERNAME", "DEMO_USERNAME")
	_ = viper.BindEnv("auth.password", "WARPTRACE_AUTH_PASSWORD", "DEMO_PASSWORD")
	_ = viper.BindEnv("llm.api_key", "WARPTRACE_LLM_API_KEY", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "WARPTRACE_LLM_BASE_URL", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "WARPTRACE_LLM_MODEL", "LLM_MODEL")
	_ = viper.BindEnv("llm.site", "WARPTRACE_LLM_SITE", "LLM_SITE_URL")
	_ = viper.BindEnv("llm.app_name", "WARPTRACE_LLM_APP_NAME", "LLM_APP_NAME")
	_ = viper.BindEnv("storage.data_dir", "WARPTRACE_DATA_DIR")
	_ = viper.BindEnv("storage.sqlite_path", "WARPTRACE_SQLITE_PATH")
	// No default exists for this key, so AutomaticEnv alone would not
	// surface it to Unmarshal.
	_ = viper.BindEnv("secrets.provider", "WARPTRACE_SECRETS_PROVIDER")
}

// validateAndHash checks the JWT secret, bcrypt-hashes the configured
// password, and runs the remaining validation. The plaintext password is
// cleared once hashed so nothing downstream can log it.
func validateAndHash(config *Config) error {
	if config.Auth.Enabled && config.Auth.JWTSecret != "" {
		if err := validateJWTSecret(config.Auth.JWTSecret); err != nil {
			return err
		}
	}

	if config.Auth.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(config.Auth.Password), config.Auth.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		config.Auth.HashedPassword = string(hashed)
		config.Auth.Password = ""
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// LoadConfig assembles the effective configuration: defaults, then an
// optional config.yaml, then WARPTRACE_* environment variables on top.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; a present but unreadable one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateAndHash(&config); err != nil {
		return nil, err
	}

	config.ResolveDataPaths()

	return &config, nil
}

// ResolveDataPaths derives the SQLite path from DataDir when not explicitly set.
func (c *Config) ResolveDataPaths() {
	dataDir := c.Storage.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(dataDir, "warptrace.db")
	} else if !filepath.IsAbs(c.Storage.SQLitePath) {
		c.Storage.SQLitePath = filepath.Clean(c.Storage.SQLitePath)
	}

	c.Storage.DataDir = dataDir
}

// GetDataDir returns the base data directory, falling back to ./data.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir == "" {
		return "./data"
	}
	return c.Storage.DataDir
}

// GetSQLitePath returns the SQLite database path, derived from the data
// directory unless set explicitly.
func (c *Config) GetSQLitePath() string {
	if c.Storage.SQLitePath == "" {
		return filepath.Join(c.GetDataDir(), "warptrace.db")
	}
	return c.Storage.SQLitePath
}

// validateJWTSecret rejects signing secrets that are too short or that
// look like placeholders.
func validateJWTSecret(secret string) error {
	if len(secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters (256 bits)")
	}

	weakSecrets := []string{
		"secret", "password", "changeme", "default", "admin",
		"jwt_secret", "supersecret", "mysecret", "test", "example",
	}
	lowerSecret := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Contains(lowerSecret, weak) {
			return fmt.Errorf("JWT secret appears to contain a weak/default value: use a cryptographically secure random string")
		}
	}
	return nil
}

// secretsDeferred reports whether LoadSecrets will supply the auth
// credentials after config load, making their absence here acceptable.
func secretsDeferred(config *Config) bool {
	switch config.Secrets.Provider {
	case "vault", "aws":
		return true
	}
	return false
}

// validateConfig rejects values the service cannot run with.
func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", config.Server.Port)
	}

	if config.API.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("api.rate_limit.requests_per_second must be positive, got %d", config.API.RateLimit.RequestsPerSecond)
	}
	if config.API.RateLimit.Burst <= 0 {
		return fmt.Errorf("api.rate_limit.burst must be positive, got %d", config.API.RateLimit.Burst)
	}
	if config.API.MaxUploadBytes <= 0 {
		return fmt.Errorf("api.max_upload_bytes must be positive, got %d", config.API.MaxUploadBytes)
	}

	// When a vault or aws provider is configured, LoadSecrets fills the
	// credentials after this runs, so only their absence is forgiven here.
	if config.Auth.Enabled && !secretsDeferred(config) {
		if config.Auth.HashedPassword == "" {
			return fmt.Errorf("authentication enabled but no password set")
		}
		if config.Auth.Username == "" {
			return fmt.Errorf("username cannot be empty when auth is enabled")
		}
		if config.Auth.JWTSecret == "" {
			return fmt.Errorf("authentication enabled but no JWT secret set")
		}
	}
	if config.Auth.BcryptCost < bcrypt.MinCost || config.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, config.Auth.BcryptCost)
	}
	if config.Auth.JWTExpiry <= 0 {
		return fmt.Errorf("auth.jwt_expiry must be positive, got %v", config.Auth.JWTExpiry)
	}

	if config.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers must be positive, got %d", config.Analysis.Workers)
	}
	if config.Analysis.QueueSize <= 0 {
		return fmt.Errorf("analysis.queue_size must be positive, got %d", config.Analysis.QueueSize)
	}

	if config.LLM.BaseURL != "" {
		parsed, err := url.Parse(config.LLM.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid llm.base_url: %s", config.LLM.BaseURL)
		}
	}

	if config.Redis.Enabled {
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis.addr cannot be empty when redis is enabled")
		}
		if config.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be positive, got %d", config.Redis.PoolSize)
		}
	}

	if config.ClickHouse.Enabled {
		if config.ClickHouse.Addr == "" {
			return fmt.Errorf("clickhouse.addr cannot be empty when clickhouse is enabled")
		}
		if config.ClickHouse.Database == "" {
			return fmt.Errorf("clickhouse.database cannot be empty when clickhouse is enabled")
		}
		if config.ClickHouse.BatchSize <= 0 {
			return fmt.Errorf("clickhouse.batch_size must be positive, got %d", config.ClickHouse.BatchSize)
		}
		if config.ClickHouse.FlushInterval <= 0 {
			return fmt.Errorf("clickhouse.flush_interval must be positive, got %d", config.ClickHouse.FlushInterval)
		}
	}

	// HTTPS is mandatory when the deployment marks itself production.
	env := os.Getenv("WARPTRACE_ENV")
	if env == "production" && !config.Server.TLS {
		return fmt.Errorf("TLS must be enabled for the server in production (WARPTRACE_ENV=production, server.tls=false)")
	}

	return nil
}
