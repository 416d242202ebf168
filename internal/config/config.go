package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type WSConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteDeadline   time.Duration `mapstructure:"write_deadline"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	RateLimitPerSec int           `mapstructure:"rate_limit_per_sec"`
	SendBuffer      int           `mapstructure:"send_buffer"`
}

type SSEConfig struct {
	Buffer    int           `mapstructure:"buffer"`
	Keepalive time.Duration `mapstructure:"keepalive"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Mongo MongoConfig `mapstructure:"mongo"`
	JWT   JWTConfig   `mapstructure:"jwt"`
	WS    WSConfig    `mapstructure:"ws"`
	SSE   SSEConfig   `mapstructure:"sse"`
}

func (c *Config) Development() bool { return c.App.Env != "production" }

// Load reads configuration from an optional config file plus environment
// variables. A local .env is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("REALTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// registering defaults makes every key visible to AutomaticEnv
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "retrotrade")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("ws.ping_interval", 30*time.Second)
	v.SetDefault("ws.write_deadline", 10*time.Second)
	v.SetDefault("ws.max_message_size", int64(64*1024))
	v.SetDefault("ws.rate_limit_per_sec", 20)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("sse.buffer", 32)
	v.SetDefault("sse.keepalive", 25*time.Second)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// the file is optional, env-only deployments are fine
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, err
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	return &c, nil
}
