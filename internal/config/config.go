package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPath = "/etc/kia-bridge/config.yaml"

	DefaultHTTPAddr            = "0.0.0.0:8080"
	DefaultScanIntervalMinutes = 10
	DefaultDebounceSeconds     = 10
	DefaultTopicPrefix         = "kia_bridge"
	DefaultDiscoveryPrefix     = "homeassistant"

	MinScanIntervalMinutes = 1
	MaxScanIntervalMinutes = 999
)

type Config struct {
	Kia  KiaConfig  `mapstructure:"kia"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
	HTTP HTTPConfig `mapstructure:"http"`
}

type KiaConfig struct {
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	BaseURL             string `mapstructure:"base_url"`
	ScanIntervalMinutes int    `mapstructure:"scan_interval_minutes"`
	DebounceSeconds     int    `mapstructure:"debounce_seconds"`

	// Local call budget for the owners API; zero disables a window.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitPerDay    int `mapstructure:"rate_limit_per_day"`
}

type MQTTConfig struct {
	BrokerURL       string `mapstructure:"broker_url"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the YAML config file, applies defaults and environment
// overrides (KIA_BRIDGE_KIA_PASSWORD and friends), and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("KIA_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv alone does not surface env-only keys to Unmarshal, so
	// every known key is bound explicitly; secrets typically arrive as
	// KIA_BRIDGE_KIA_PASSWORD with no counterpart in the file.
	for _, key := range []string{
		"kia.username", "kia.password", "kia.base_url",
		"kia.scan_interval_minutes", "kia.debounce_seconds",
		"kia.rate_limit_per_minute", "kia.rate_limit_per_day",
		"mqtt.broker_url", "mqtt.username", "mqtt.password",
		"mqtt.client_id", "mqtt.topic_prefix", "mqtt.discovery_prefix",
		"http.addr",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Kia.ScanIntervalMinutes == 0 {
		cfg.Kia.ScanIntervalMinutes = DefaultScanIntervalMinutes
	}
	if cfg.Kia.DebounceSeconds == 0 {
		cfg.Kia.DebounceSeconds = DefaultDebounceSeconds
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate enforces required fields and value ranges.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Kia.Username == "" {
		return errors.New("kia.username is required")
	}
	if cfg.Kia.Password == "" {
		return errors.New("kia.password is required")
	}
	if cfg.Kia.ScanIntervalMinutes < MinScanIntervalMinutes || cfg.Kia.ScanIntervalMinutes > MaxScanIntervalMinutes {
		return fmt.Errorf("kia.scan_interval_minutes must be in [%d, %d]", MinScanIntervalMinutes, MaxScanIntervalMinutes)
	}
	if cfg.Kia.DebounceSeconds < 1 {
		return errors.New("kia.debounce_seconds must be positive")
	}
	if cfg.Kia.RateLimitPerMinute < 0 || cfg.Kia.RateLimitPerDay < 0 {
		return errors.New("kia rate limits must not be negative")
	}
	if cfg.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url is required")
	}
	return nil
}

// ScanInterval returns the poll interval as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Kia.ScanIntervalMinutes) * time.Minute
}

// DebounceCooldown returns the on-demand refresh cooldown as a duration.
func (c *Config) DebounceCooldown() time.Duration {
	return time.Duration(c.Kia.DebounceSeconds) * time.Second
}
