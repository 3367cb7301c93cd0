package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tradeflow Config_Tradeflow `yaml:"tradeflow"`
	Logging   LoggingConfig    `yaml:"logging"`
	Storage   StorageConfig    `yaml:"storage"`
	Cache     CacheConfig      `yaml:"cache"`
	Fetcher   FetcherConfig    `yaml:"fetcher"`
	Providers ProvidersConfig  `yaml:"providers"`
}

type Config_Tradeflow struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

type StorageConfig struct {
	SQLitePath string   `yaml:"sqlite_path"`
	S3         S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type CacheConfig struct {
	MemorySize int    `yaml:"memory_size"`
	BlobDir    string `yaml:"blob_dir"`
	ExpiryDays int    `yaml:"expiry_days"`
	// MinCompleteness is the fraction of expected weekday bars a durable
	// range must hold before it is served as a hit.
	MinCompleteness float64 `yaml:"min_completeness"`
}

type FetcherConfig struct {
	LookbackDays   int           `yaml:"lookback_days"`
	RequestDelay   time.Duration `yaml:"request_delay"`
	WarmupTopN     int           `yaml:"warmup_top_n"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

type ProvidersConfig struct {
	Yahoo     ProviderConfig `yaml:"yahoo"`
	Eastmoney ProviderConfig `yaml:"eastmoney"`
	Binance   ProviderConfig `yaml:"binance"`
}

type ProviderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRequests   int           `yaml:"max_requests"`
	WindowSeconds int           `yaml:"window_seconds"`
	ProxyURL      string        `yaml:"proxy_url"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Cache: CacheConfig{
			MemorySize:      100,
			ExpiryDays:      7,
			MinCompleteness: 0.9,
		},
		Fetcher: FetcherConfig{
			LookbackDays:   365,
			RequestDelay:   500 * time.Millisecond,
			WarmupTopN:     20,
			RetryAttempts:  3,
			RetryBaseDelay: 2 * time.Second,
			RetryMaxDelay:  10 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tradeflow.Name == "" {
		return fmt.Errorf("tradeflow.name is required")
	}
	if cfg.Tradeflow.Version == "" {
		return fmt.Errorf("tradeflow.version is required")
	}

	if cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}

	if cfg.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache.memory_size must be greater than 0")
	}
	if cfg.Cache.BlobDir == "" {
		return fmt.Errorf("cache.blob_dir is required")
	}
	if cfg.Cache.ExpiryDays <= 0 {
		return fmt.Errorf("cache.expiry_days must be greater than 0")
	}
	if cfg.Cache.MinCompleteness <= 0 || cfg.Cache.MinCompleteness > 1 {
		return fmt.Errorf("cache.min_completeness must be in (0, 1]")
	}

	if cfg.Fetcher.LookbackDays < 0 {
		return fmt.Errorf("fetcher.lookback_days must not be negative")
	}
	if cfg.Fetcher.RequestDelay <= 0 {
		return fmt.Errorf("fetcher.request_delay must be greater than 0")
	}
	if cfg.Fetcher.RetryAttempts <= 0 {
		return fmt.Errorf("fetcher.retry_attempts must be greater than 0")
	}

	for name, p := range map[string]ProviderConfig{
		"yahoo":     cfg.Providers.Yahoo,
		"eastmoney": cfg.Providers.Eastmoney,
		"binance":   cfg.Providers.Binance,
	} {
		if !p.Enabled {
			continue
		}
		if p.MaxRequests <= 0 {
			return fmt.Errorf("providers.%s.max_requests must be greater than 0", name)
		}
		if p.WindowSeconds <= 0 {
			return fmt.Errorf("providers.%s.window_seconds must be greater than 0", name)
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}

	return nil
}
