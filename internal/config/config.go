package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables overriding the config files.
const (
	EnvListen   = "WAVESBOT_LISTEN"
	EnvDBPath   = "WAVESBOT_DB_PATH"
	EnvLogLevel = "WAVESBOT_LOG_LEVEL"

	envPrefix = "WAVESBOT_"
)

// envKeys maps each override to its config key.
var envKeys = map[string]string{
	EnvListen:   "remote.listen",
	EnvDBPath:   "db_path",
	EnvLogLevel: "log_level",
}

const (
	defaultVolume      = 50
	defaultJoinTimeout = 10 * time.Second
	defaultIdleTimeout = 5 * time.Minute
	defaultListen      = "127.0.0.1:8087"
	defaultRemotePath  = "/ws"
	defaultChannel     = "general"
	defaultLogLevel    = "info"
)

type Config struct {
	LibrarySources []string `koanf:"library_sources"` // paths searched for tracks
	WatchLibrary   *bool    `koanf:"watch_library"`   // rescan on file changes (default: true)
	DBPath         string   `koanf:"db_path"`         // empty means the XDG data dir
	LogLevel       string   `koanf:"log_level"`       // "debug", "info", "warn", "error"

	Playback PlaybackConfig `koanf:"playback"`
	Remote   RemoteConfig   `koanf:"remote"`
	Chat     ChatConfig     `koanf:"chat"`

	// Sessions created at startup
	AutoJoin []AutoJoin `koanf:"autojoin"`
}

// AutoJoin names a tenant and the channel its session joins.
type AutoJoin struct {
	Tenant  string `koanf:"tenant"`
	Channel string `koanf:"channel"`
}

// PlaybackConfig holds session defaults.
type PlaybackConfig struct {
	DefaultVolume      *int `koanf:"default_volume"`       // 0-100 (default: 50)
	JoinTimeoutSeconds int  `koanf:"join_timeout_seconds"` // default: 10
	IdleTimeoutMinutes *int `koanf:"idle_timeout_minutes"` // 0 disables (default: 5)
	ShuffleSeed        *int `koanf:"shuffle_seed"`         // unset shuffles randomly
	SampleRate         int  `koanf:"sample_rate"`          // local output rate (default: 44100)
}

// RemoteConfig holds the remote-control server settings.
type RemoteConfig struct {
	Listen  string `koanf:"listen"`  // e.g. "127.0.0.1:8087"
	Path    string `koanf:"path"`    // websocket endpoint (default: "/ws")
	Enabled *bool  `koanf:"enabled"` // default: true
}

// ChatConfig holds the chat relay settings.
type ChatConfig struct {
	DefaultChannel string `koanf:"default_channel"` // default: "general"
}

// Load reads .env, then the config files, then applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return load(getConfigPaths())
}

func load(paths []string) (*Config, error) {
	k := koanf.New(".")

	// Later files win.
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	for i, src := range cfg.LibrarySources {
		cfg.LibrarySources[i] = expandPath(src)
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, nil
}

// envKey returns the config key for a known, non-empty override. Anything
// else is ignored.
func envKey(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	return envKeys[name], value
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. $XDG_CONFIG_HOME/wavesbot/config.toml
	if p, err := xdg.SearchConfigFile(filepath.Join("wavesbot", "config.toml")); err == nil {
		paths = append(paths, p)
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetPlaybackConfig returns the playback configuration with defaults applied.
func (c *Config) GetPlaybackConfig() PlaybackConfig {
	cfg := c.Playback

	if cfg.DefaultVolume == nil || *cfg.DefaultVolume < 0 || *cfg.DefaultVolume > 100 {
		v := defaultVolume
		cfg.DefaultVolume = &v
	}
	if cfg.JoinTimeoutSeconds <= 0 {
		cfg.JoinTimeoutSeconds = int(defaultJoinTimeout / time.Second)
	}
	if cfg.IdleTimeoutMinutes == nil || *cfg.IdleTimeoutMinutes < 0 {
		v := int(defaultIdleTimeout / time.Minute)
		cfg.IdleTimeoutMinutes = &v
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}

	return cfg
}

// JoinTimeout returns how long a session may take to connect.
func (p PlaybackConfig) JoinTimeout() time.Duration {
	return time.Duration(p.JoinTimeoutSeconds) * time.Second
}

// IdleTimeout returns how long an idle session stays connected. Zero disables
// the timeout.
func (p PlaybackConfig) IdleTimeout() time.Duration {
	if p.IdleTimeoutMinutes == nil {
		return 0
	}
	return time.Duration(*p.IdleTimeoutMinutes) * time.Minute
}

// GetRemoteConfig returns the remote-control configuration with defaults applied.
func (c *Config) GetRemoteConfig() RemoteConfig {
	cfg := c.Remote

	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.Path == "" {
		cfg.Path = defaultRemotePath
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}

	return cfg
}

// GetChatConfig returns the chat relay configuration with defaults applied.
func (c *Config) GetChatConfig() ChatConfig {
	cfg := c.Chat
	cfg.DefaultChannel = strings.TrimSpace(cfg.DefaultChannel)
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = defaultChannel
	}
	return cfg
}

// GetAutoJoin returns the startup sessions, skipping entries without a
// tenant and keeping the first entry of each tenant.
func (c *Config) GetAutoJoin() []AutoJoin {
	seen := make(map[string]bool, len(c.AutoJoin))
	out := make([]AutoJoin, 0, len(c.AutoJoin))
	for _, a := range c.AutoJoin {
		a.Tenant = strings.TrimSpace(a.Tenant)
		if a.Tenant == "" || seen[a.Tenant] {
			continue
		}
		seen[a.Tenant] = true
		out = append(out, a)
	}
	return out
}

// ShouldWatchLibrary reports whether library sources are watched for changes.
func (c *Config) ShouldWatchLibrary() bool {
	if len(c.LibrarySources) == 0 {
		return false
	}
	return c.WatchLibrary == nil || *c.WatchLibrary
}

// GetLogLevel returns the configured log level, "info" when unset.
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return defaultLogLevel
	}
	return c.LogLevel
}
