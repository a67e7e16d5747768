package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	Secret       string        `mapstructure:"secret"`
	MapURL       string        `mapstructure:"map_url"`
	PlayerURL    string        `mapstructure:"player_url"`
	FirstRoomID  string        `mapstructure:"first_room_id"`
	SiteCacheTTL time.Duration `mapstructure:"site_cache_ttl"`
	ReadLimit    int64         `mapstructure:"read_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 9086)
	v.SetDefault("map_url", "http://map-service:9080")
	v.SetDefault("player_url", "http://player-service:9080")
	v.SetDefault("first_room_id", "firstroom")
	v.SetDefault("site_cache_ttl", "20s")
	v.SetDefault("read_limit", 32768)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Map: %s\n", cfg.Mode, cfg.Port, cfg.MapURL)
	return &cfg, nil
}
