package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables read into Config.
const envPrefix = "SYNCVIEW_"

// Config holds the runtime configuration shared by all commands.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Cache  CacheConfig  `mapstructure:"cache"`
}

type ServerConfig struct {
	// URL is the websocket endpoint of the sync backend.
	URL string `mapstructure:"url"`
}

type CacheConfig struct {
	// Path is the SQLite cache database. ":memory:" disables durability.
	Path string `mapstructure:"path"`
}

// LoadConfig reads configuration from an optional .env file and from
// SYNCVIEW_-prefixed environment variables (SYNCVIEW_SERVER_URL maps to
// server.url). Explicit flags override both via the overrides map.
func LoadConfig(overrides map[string]string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.url", "ws://localhost:8900/sync")
	v.SetDefault("cache.path", "syncview.db")

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read .env: %w", err)
			}
		}
	}

	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, val := pair[0], pair[1]
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		propKey := strings.TrimPrefix(key, envPrefix)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		v.Set(propKey, val)
	}

	for key, val := range overrides {
		if val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
