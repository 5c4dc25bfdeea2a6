package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Database DatabaseConfig `mapstructure:"database"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Geocode  GeocodeConfig  `mapstructure:"geocode"`
	Scene    SceneConfig    `mapstructure:"scene"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Log      LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	Port    int    `mapstructure:"port" validate:"min=1,max=65535"`
	Enabled bool   `mapstructure:"enabled"`
	WebPath string `mapstructure:"web_path"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type WeatherConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"min=1"`
	RateLimitWait time.Duration `mapstructure:"rate_limit_wait"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
}

type GeocodeConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

type SceneConfig struct {
	IllustrationBaseURL string        `mapstructure:"illustration_base_url" validate:"required,url"`
	ManifestRetryAfter  time.Duration `mapstructure:"manifest_retry_after"`
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Jitter   time.Duration `mapstructure:"jitter"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

var validate = validator.New()

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/windowworld")
	}

	viper.SetEnvPrefix("WINDOWWORLD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("api.port", 8045)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.web_path", "")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "windowworld")
	viper.SetDefault("mqtt.client_id", "windowworld")
	viper.SetDefault("database.path", "./windowworld.db")
	viper.SetDefault("weather.base_url", "https://api.open-meteo.com")
	viper.SetDefault("weather.max_attempts", 3)
	viper.SetDefault("weather.rate_limit_wait", "1500ms")
	viper.SetDefault("weather.backoff_base", "500ms")
	viper.SetDefault("geocode.base_url", "https://geocoding-api.open-meteo.com")
	viper.SetDefault("scene.illustration_base_url", "https://assets.windowworld.app/illustrations")
	viper.SetDefault("scene.manifest_retry_after", "5m")
	viper.SetDefault("refresh.interval", "15m")
	viper.SetDefault("refresh.jitter", "2s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
