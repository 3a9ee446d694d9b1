// Package config загружает конфигурацию сервиса из config.yaml и переменных
// окружения с префиксом COLDCHAIN
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"coldchain-service/internal/tolerance"
)

// Config содержит конфигурацию сервиса
type Config struct {
	ServerAddr      string            `mapstructure:"server_addr"`
	RedisAddr       string            `mapstructure:"redis_addr"`
	RedisPassword   string            `mapstructure:"redis_password"`
	RedisDB         int               `mapstructure:"redis_db"`
	RedisRetries    int               `mapstructure:"redis_retries"`
	WorkerCount     int               `mapstructure:"worker_count"`
	BufferSize      int               `mapstructure:"buffer_size"`
	HistorySize     int               `mapstructure:"history_size"`
	AutoResolve     int               `mapstructure:"auto_resolve_after"`
	LogLevel        string            `mapstructure:"log_level"`
	LogFormat       string            `mapstructure:"log_format"`
	AllowedOrigins  []string          `mapstructure:"allowed_origins"`
	KafkaBrokers    []string          `mapstructure:"kafka_brokers"`
	KafkaTopic      string            `mapstructure:"kafka_topic"`
	KafkaGroup      string            `mapstructure:"kafka_group"`
	MQTTBroker      string            `mapstructure:"mqtt_broker"`
	MQTTTopic       string            `mapstructure:"mqtt_topic"`
	MQTTClientID    string            `mapstructure:"mqtt_client_id"`
	ReadTimeout     time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration     `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration     `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`
	ToleranceModels []tolerance.Model `mapstructure:"tolerance_models"`
}

// Load загружает конфигурацию. Отсутствие файла не ошибка.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/coldchain/")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("COLDCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_retries", 5)
	v.SetDefault("worker_count", runtime.NumCPU())
	v.SetDefault("buffer_size", 10000)
	v.SetDefault("history_size", 50)
	v.SetDefault("auto_resolve_after", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "readings")
	v.SetDefault("kafka_group", "coldchain-monitor")
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_topic", "sensors/+/readings")
	v.SetDefault("mqtt_client_id", "coldchain-monitor")
	v.SetDefault("read_timeout", 15*time.Second)
	v.SetDefault("write_timeout", 15*time.Second)
	v.SetDefault("idle_timeout", 60*time.Second)
	v.SetDefault("shutdown_timeout", 30*time.Second)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// списки из переменных окружения приходят одной строкой через запятую
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)

	if cfg.HistorySize < 50 {
		return nil, fmt.Errorf("history_size must be at least 50, got %d", cfg.HistorySize)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.AutoResolve < 0 {
		return nil, fmt.Errorf("auto_resolve_after must not be negative")
	}
	for i, m := range cfg.ToleranceModels {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("tolerance_models[%d]: name must not be empty", i)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("tolerance_models[%d]: %w", i, err)
		}
	}
	return &cfg, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
