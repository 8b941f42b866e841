// Package config loads application configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-cryptodisk/internal/disk"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	disk.DiskConfig     `mapstructure:",squash"`
	PassphraseAttempts  int    `mapstructure:"passphrase_attempts"`
	LogLevel            string `mapstructure:"log_level"`
	LogFile             string `mapstructure:"log_file"`
	MaxPBKDF2Iterations uint32 `mapstructure:"max_pbkdf2_iterations"`
}

// Default returns the configuration used when nothing is loaded
func Default() *Config {
	return &Config{
		DiskConfig:         *disk.DefaultDiskConfig(),
		PassphraseAttempts: 1,
		LogLevel:           "info",
	}
}

// Load reads configuration from configFile, or searches the standard
// locations for cryptodisk-config.yaml when configFile is empty.
// Environment variables prefixed with CRYPTODISK_ override file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cryptodisk-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.cryptodisk")
		v.AddConfigPath("/etc/cryptodisk")
	}

	v.SetDefault("disks", []string{})
	v.SetDefault("scan_partitions", true)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_size", 16)
	v.SetDefault("passphrase_attempts", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("max_pbkdf2_iterations", 0)

	v.SetEnvPrefix("CRYPTODISK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.PassphraseAttempts < 1 {
		return fmt.Errorf("passphrase_attempts must be at least 1, got %d", c.PassphraseAttempts)
	}
	if c.DiskConfig.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.DiskConfig.CacheSize)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}
