package stillsuit

import (
	"time"

	"github.com/spf13/viper"
)

// Config gathers backend settings so applications can stand up
// connectors from one file.
type Config struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Nats     NatsConfig     `mapstructure:"nats"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	DB   int           `mapstructure:"db"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type NatsConfig struct {
	URL        string `mapstructure:"url"`
	Subject    string `mapstructure:"subject"`
	Partitions int    `mapstructure:"partitions"`
}

// LoadConfig reads a YAML config file named filename (without extension)
// from path, with environment variables taking precedence.
func LoadConfig(path string, filename string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
