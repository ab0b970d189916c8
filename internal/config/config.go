package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	RTP        RTPConfig        `mapstructure:"rtp"`
	Packetizer PacketizerConfig `mapstructure:"packetizer"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type RTPConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	Port         int           `mapstructure:"port"`
	TargetAddr   string        `mapstructure:"target_addr"` // send mode destination
	PayloadType  uint8         `mapstructure:"payload_type"`
	ClockRate    uint32        `mapstructure:"clock_rate"`
	BufferSize   int           `mapstructure:"buffer_size"`
	RTCPInterval time.Duration `mapstructure:"rtcp_interval"`
}

type PacketizerConfig struct {
	MaxPayloadSize int   `mapstructure:"max_payload_size"`
	RateLimit      int64 `mapstructure:"rate_limit"` // bytes per second, 0 = unlimited
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configPath)

	// Environment variable override
	viper.SetEnvPrefix("AV1RTP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age", 30)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)

	// RTP defaults
	viper.SetDefault("rtp.listen_addr", "0.0.0.0")
	viper.SetDefault("rtp.port", 5004)
	viper.SetDefault("rtp.target_addr", "127.0.0.1:5004")
	viper.SetDefault("rtp.payload_type", 98)
	viper.SetDefault("rtp.clock_rate", 90000)
	viper.SetDefault("rtp.buffer_size", 2097152) // 2MB
	viper.SetDefault("rtp.rtcp_interval", "5s")

	// Packetizer defaults
	viper.SetDefault("packetizer.max_payload_size", 1200) // MTU-friendly
	viper.SetDefault("packetizer.rate_limit", 0)
}
