package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	Secret           string        `mapstructure:"secret"`
	MaxRoomSize      int           `mapstructure:"max_room_size"`
	AnnouncePeerLeft bool          `mapstructure:"announce_peer_left"`

	Peer PeerConfig `mapstructure:"peer"`
}

// PeerConfig drives the headless peer client.
type PeerConfig struct {
	RelayURL      string        `mapstructure:"relay_url"`
	Room          string        `mapstructure:"room"`
	Name          string        `mapstructure:"name"`
	AutoAccept    bool          `mapstructure:"auto_accept"`
	AnswerTimeout time.Duration `mapstructure:"answer_timeout"`
	ICEServers    []string      `mapstructure:"ice_servers"`
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
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("secret", "dev-only-secret")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("max_room_size", 2)
	v.SetDefault("announce_peer_left", false)
	v.SetDefault("peer.relay_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("peer.room", "main")
	v.SetDefault("peer.name", "guest")
	v.SetDefault("peer.auto_accept", false)
	v.SetDefault("peer.answer_timeout", "30s")
	v.SetDefault("peer.ice_servers", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
