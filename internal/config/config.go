package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Signal   SignalConfig   `mapstructure:"signal"`
	Presence PresenceConfig `mapstructure:"presence"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Peer     PeerConfig     `mapstructure:"peer"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

type SignalConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type PresenceConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PeerConfig drives cmd/streamer.
type PeerConfig struct {
	Role        string        `mapstructure:"role"`
	StreamID    string        `mapstructure:"stream_id"`
	DisplayName string        `mapstructure:"display_name"`
	BrokerURL   string        `mapstructure:"broker_url"`
	Transport   string        `mapstructure:"transport"`
	Source      string        `mapstructure:"source"`
	GraceWindow time.Duration `mapstructure:"grace_window"`
	ICEServers  []string      `mapstructure:"ice_servers"`
}

type ChatConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

// flagKeys maps streamer flags to config keys.
var flagKeys = map[string]string{
	"role":         "peer.role",
	"stream":       "peer.stream_id",
	"name":         "peer.display_name",
	"broker":       "peer.broker_url",
	"transport":    "peer.transport",
	"source":       "peer.source",
	"grace-window": "peer.grace_window",
	"ice":          "peer.ice_servers",
	"chat-max":     "chat.max_length",
}

// NewViper returns a viper instance with defaults and STREAM_* environment
// overrides. A .env file in the working directory is loaded first.
func NewViper() *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg(".env not loaded")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("signal.rate_limit", 200)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("presence.backend", "memory")
	v.SetDefault("presence.ttl", "60s")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("peer.role", "viewer")
	v.SetDefault("peer.stream_id", "")
	v.SetDefault("peer.display_name", "guest")
	v.SetDefault("peer.broker_url", "ws://localhost:8080/api/ws/peer")
	v.SetDefault("peer.transport", "rtc")
	v.SetDefault("peer.source", "camera")
	v.SetDefault("peer.grace_window", "1s")
	v.SetDefault("peer.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("chat.max_length", 1000)
	return v
}

// PeerFlags declares the streamer's command line flags.
func PeerFlags(flags *pflag.FlagSet) {
	flags.String("role", "viewer", "host or viewer")
	flags.String("stream", "", "stream id")
	flags.String("name", "guest", "display name")
	flags.String("broker", "ws://localhost:8080/api/ws/peer", "broker websocket url")
	flags.String("transport", "rtc", "rtc or mem")
	flags.String("source", "camera", "host capture source: camera or screen")
	flags.Duration("grace-window", time.Second, "call intent grace window")
	flags.StringSlice("ice", []string{"stun:stun.l.google.com:19302"}, "ICE server urls")
	flags.Int("chat-max", 1000, "chat message length cap")
}

// BindFlags makes explicitly set flags override file and environment.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	return LoadFrom(NewViper())
}

// LoadFrom reads config/config.<CONFIG_ENV>.yaml into v, if present, and
// decodes the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}
