package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Address string `mapstructure:"address"`

	// Postgres connection string; empty runs on in-memory repositories.
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis address for the poll rate limiter; empty disables limiting.
	Redis RedisConfig `mapstructure:"redis"`

	Auth AuthConfig `mapstructure:"auth"`
	Poll PollConfig `mapstructure:"poll"`
	WS   WSConfig   `mapstructure:"websocket"`
}

type PostgresConfig struct {
	Conn string `mapstructure:"conn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type PollConfig struct {
	DefaultWaitTimeoutS int `mapstructure:"default_wait_timeout_s"`
	MaxWaitTimeoutS     int `mapstructure:"max_wait_timeout_s"`

	// Polls per caller per window before 429; zero means unlimited.
	Limit   int `mapstructure:"limit"`
	WindowS int `mapstructure:"window_s"`
}

type WSConfig struct {
	OriginPatterns []string `mapstructure:"origin_patterns"`
	PingIntervalS  int      `mapstructure:"ping_interval_s"`
}

func (p PollConfig) DefaultWaitTimeout() time.Duration {
	return time.Duration(p.DefaultWaitTimeoutS) * time.Second
}

func (p PollConfig) MaxWaitTimeout() time.Duration {
	return time.Duration(p.MaxWaitTimeoutS) * time.Second
}

func (p PollConfig) Window() time.Duration {
	return time.Duration(p.WindowS) * time.Second
}

func (w WSConfig) PingInterval() time.Duration {
	return time.Duration(w.PingIntervalS) * time.Second
}

// Load reads a yaml config file. A missing file is fatal; defaults cover the
// optional knobs only.
func Load(path string) Config {
	f, err := os.Open(path)
	if err != nil {
		log.Panic().Msgf("failed to open config file %v", path)
	}
	defer f.Close()

	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(f); err != nil {
		log.Panic().Msgf("failed to read config %v %v", path, err)
	}

	log.Info().Msgf("reading config: %v", path)
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		log.Panic().Msgf("failed to unmarshal config %v %v", path, err)
	}

	if c.Address == "" {
		c.Address = "0.0.0.0:8080"
	}
	if c.Poll.DefaultWaitTimeoutS <= 0 {
		c.Poll.DefaultWaitTimeoutS = 30
	}
	if c.Poll.MaxWaitTimeoutS <= 0 {
		c.Poll.MaxWaitTimeoutS = 60
	}
	if c.Poll.WindowS <= 0 {
		c.Poll.WindowS = 60
	}
	if c.WS.PingIntervalS <= 0 {
		c.WS.PingIntervalS = 30
	}

	return c
}
