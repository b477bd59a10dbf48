// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Rewards  RewardsConfig  `mapstructure:"rewards"`
	Deposit  DepositConfig  `mapstructure:"deposit"`
	Ban      BanConfig      `mapstructure:"ban"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds administrator identity configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// RewardsConfig holds reward distribution configuration.
// ReferralRatesBP are per-level commission rates in basis points of the
// original reward amount; the slice length caps the referral walk depth.
type RewardsConfig struct {
	ReferralRatesBP    []int64 `mapstructure:"referral_rates_bp"`
	DailyBonus         int64   `mapstructure:"daily_bonus"`
	BonusCooldownHours int     `mapstructure:"bonus_cooldown_hours"`
}

// DepositConfig holds deposit submission and verification configuration.
type DepositConfig struct {
	CooldownMinutes int    `mapstructure:"cooldown_minutes"`
	SweepSchedule   string `mapstructure:"sweep_schedule"`
}

// BanConfig holds strike accumulation configuration.
type BanConfig struct {
	StrikeLimit int `mapstructure:"strike_limit"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. DATABASE_HOST, DEPOSIT_COOLDOWN_MINUTES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "earngram")
	v.SetDefault("database.name", "earngram")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Referral commissions: 10%, 5%, 2%, 1% of the original amount
	v.SetDefault("rewards.referral_rates_bp", []int64{1000, 500, 200, 100})
	// Daily bonus of 1.00 SAR in halalas
	v.SetDefault("rewards.daily_bonus", 100)
	v.SetDefault("rewards.bonus_cooldown_hours", 24)

	v.SetDefault("deposit.cooldown_minutes", 5)
	v.SetDefault("deposit.sweep_schedule", "@every 2m")

	v.SetDefault("ban.strike_limit", 3)
}

// IsAdmin checks if an account ID is in the administrator list.
func (c *Config) IsAdmin(accountID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == accountID {
			return true
		}
	}
	return false
}
