//nolint:goconst // test cases intentionally repeat strings for readability
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func intPtr(v int) *int { return &v }

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("Could not get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "tilde expands to home",
			input:    "~/music",
			expected: filepath.Join(home, "music"),
		},
		{
			name:     "absolute path unchanged",
			input:    "/usr/local/music",
			expected: "/usr/local/music",
		},
		{
			name:     "relative path unchanged",
			input:    "music/albums",
			expected: "music/albums",
		},
		{
			name:     "empty string unchanged",
			input:    "",
			expected: "",
		},
		{
			name:     "tilde only",
			input:    "~",
			expected: home,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandPath(tt.input)
			if result != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGetConfigPaths(t *testing.T) {
	paths := getConfigPaths()

	if len(paths) == 0 {
		t.Fatal("getConfigPaths() returned empty slice")
	}

	lastPath := paths[len(paths)-1]
	if lastPath != "config.toml" {
		t.Errorf("last config path = %q, want %q", lastPath, "config.toml")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
library_sources = ["/srv/music", "/mnt/nas"]
db_path = "/var/lib/wavesbot/state.db"
log_level = "DEBUG"

[playback]
default_volume = 30
join_timeout_seconds = 4
idle_timeout_minutes = 0

[remote]
listen = ":9000"
path = "remote"

[chat]
default_channel = "music"

[[autojoin]]
tenant = "home"
channel = "living-room"

[[autojoin]]
tenant = "office"
channel = "desk"
`)

	cfg, err := load([]string{path})
	require.NoError(t, err)

	assert.Equal(t, []string{"/srv/music", "/mnt/nas"}, cfg.LibrarySources)
	assert.Equal(t, "/var/lib/wavesbot/state.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.GetLogLevel())

	playback := cfg.GetPlaybackConfig()
	assert.Equal(t, 30, *playback.DefaultVolume)
	assert.Equal(t, 4*time.Second, playback.JoinTimeout())
	assert.Equal(t, time.Duration(0), playback.IdleTimeout())

	remote := cfg.GetRemoteConfig()
	assert.Equal(t, ":9000", remote.Listen)
	assert.Equal(t, "/remote", remote.Path)
	assert.True(t, *remote.Enabled)

	assert.Equal(t, "music", cfg.GetChatConfig().DefaultChannel)
	assert.Equal(t, []AutoJoin{
		{Tenant: "home", Channel: "living-room"},
		{Tenant: "office", Channel: "desk"},
	}, cfg.GetAutoJoin())
}

func TestLoad_LaterFilesWin(t *testing.T) {
	first := writeConfig(t, `
log_level = "warn"
[remote]
listen = ":1111"
`)
	second := writeConfig(t, `
[remote]
listen = ":2222"
`)

	cfg, err := load([]string{first, second, filepath.Join(t.TempDir(), "missing.toml")})
	require.NoError(t, err)

	assert.Equal(t, ":2222", cfg.Remote.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, `this is = = not toml`)

	_, err := load([]string{path})
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
db_path = "/from/file.db"
log_level = "info"
[remote]
listen = ":1111"
`)
	t.Setenv(EnvListen, ":3333")
	t.Setenv(EnvDBPath, "/from/env.db")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := load([]string{path})
	require.NoError(t, err)

	assert.Equal(t, ":3333", cfg.GetRemoteConfig().Listen)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
	assert.Equal(t, "error", cfg.GetLogLevel())
}

func TestLoad_EnvIgnoresUnknownAndEmpty(t *testing.T) {
	path := writeConfig(t, `
db_path = "/from/file.db"
`)
	t.Setenv(EnvDBPath, "")
	t.Setenv("WAVESBOT_PLAYBACK", "loud")

	cfg, err := load([]string{path})
	require.NoError(t, err)

	assert.Equal(t, "/from/file.db", cfg.DBPath)
	assert.Nil(t, cfg.Playback.DefaultVolume)
}

func TestGetPlaybackConfig_Defaults(t *testing.T) {
	cfg := Config{}
	playback := cfg.GetPlaybackConfig()

	assert.Equal(t, 50, *playback.DefaultVolume)
	assert.Equal(t, 10*time.Second, playback.JoinTimeout())
	assert.Equal(t, 5*time.Minute, playback.IdleTimeout())
	assert.Equal(t, 44100, playback.SampleRate)
	assert.Nil(t, playback.ShuffleSeed)
}

func TestGetPlaybackConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name       string
		playback   PlaybackConfig
		wantVolume int
		wantJoin   time.Duration
		wantIdle   time.Duration
	}{
		{
			name:       "volume above range",
			playback:   PlaybackConfig{DefaultVolume: intPtr(150)},
			wantVolume: 50,
			wantJoin:   10 * time.Second,
			wantIdle:   5 * time.Minute,
		},
		{
			name:       "negative values",
			playback:   PlaybackConfig{DefaultVolume: intPtr(-1), JoinTimeoutSeconds: -3, IdleTimeoutMinutes: intPtr(-2)},
			wantVolume: 50,
			wantJoin:   10 * time.Second,
			wantIdle:   5 * time.Minute,
		},
		{
			name:       "zero volume is kept",
			playback:   PlaybackConfig{DefaultVolume: intPtr(0), IdleTimeoutMinutes: intPtr(0)},
			wantVolume: 0,
			wantJoin:   10 * time.Second,
			wantIdle:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Playback: tt.playback}
			playback := cfg.GetPlaybackConfig()
			assert.Equal(t, tt.wantVolume, *playback.DefaultVolume)
			assert.Equal(t, tt.wantJoin, playback.JoinTimeout())
			assert.Equal(t, tt.wantIdle, playback.IdleTimeout())
		})
	}
}

func TestGetRemoteConfig_Defaults(t *testing.T) {
	cfg := Config{}
	remote := cfg.GetRemoteConfig()

	assert.Equal(t, "127.0.0.1:8087", remote.Listen)
	assert.Equal(t, "/ws", remote.Path)
	assert.True(t, *remote.Enabled)
}

func TestGetChatConfig_Defaults(t *testing.T) {
	cfg := Config{Chat: ChatConfig{DefaultChannel: "   "}}

	assert.Equal(t, "general", cfg.GetChatConfig().DefaultChannel)
}

func TestGetAutoJoin_SkipsInvalidEntries(t *testing.T) {
	cfg := Config{AutoJoin: []AutoJoin{
		{Tenant: "", Channel: "nowhere"},
		{Tenant: " home ", Channel: "a"},
		{Tenant: "home", Channel: "b"},
		{Tenant: "office", Channel: ""},
	}}

	assert.Equal(t, []AutoJoin{
		{Tenant: "home", Channel: "a"},
		{Tenant: "office", Channel: ""},
	}, cfg.GetAutoJoin())
}

func TestShouldWatchLibrary(t *testing.T) {
	off := false
	on := true

	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{"no sources", Config{}, false},
		{"no sources but enabled", Config{WatchLibrary: &on}, false},
		{"sources default", Config{LibrarySources: []string{"/music"}}, true},
		{"sources disabled", Config{LibrarySources: []string{"/music"}, WatchLibrary: &off}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ShouldWatchLibrary(); got != tt.expected {
				t.Errorf("ShouldWatchLibrary() = %v, want %v", got, tt.expected)
			}
		})
	}
}
