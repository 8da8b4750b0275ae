package config

import (
	"strings"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxIdle     int    `mapstructure:"max_idle"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	EnableTLS   bool   `mapstructure:"enable_tls"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	EnableTLS bool   `mapstructure:"enable_tls"`
}

type RabbitMQExchanges struct {
	Activity string `mapstructure:"activity"`
}

type RabbitMQRoutingKeys struct {
	SessionCreated string `mapstructure:"session_created"`
	SessionRSVP    string `mapstructure:"session_rsvp"`
}

type RabbitMQConfig struct {
	URL           string              `mapstructure:"url"`
	EnableTLS     bool                `mapstructure:"enable_tls"`
	ActivityQueue string              `mapstructure:"activity_queue"`
	Prefetch      int                 `mapstructure:"prefetch"`
	ExchangeName  RabbitMQExchanges   `mapstructure:"exchange_name"`
	RoutingKey    RabbitMQRoutingKeys `mapstructure:"routing_key"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OtlpEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type RootConfig struct {
	UserBearerTokenPrefix    string `mapstructure:"user_bearer_token_prefix"`
	SecretPepper             string `mapstructure:"secret_pepper"`
	EnableArgon2Verification bool   `mapstructure:"enable_argon2_verification"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Root      RootConfig      `mapstructure:"root"`
}

// Load reads config.yaml from the working directory (or CONFIG_PATH) and
// applies SKATESPOT_* environment overrides, e.g. SKATESPOT_DATABASE_DSN.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "skatespot-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.max_open", 20)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("rabbitmq.activity_queue", "activity.events")
	v.SetDefault("rabbitmq.prefetch", 10)
	v.SetDefault("rabbitmq.exchange_name.activity", "skatespot.activity")
	v.SetDefault("rabbitmq.routing_key.session_created", "session.created")
	v.SetDefault("rabbitmq.routing_key.session_rsvp", "session.rsvp")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("root.user_bearer_token_prefix", "sk_user_")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if p := v.GetString("config_path"); p != "" {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("SKATESPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults may be enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
