package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigAppliesDefaultTags(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4.0, cfg.Cache.ReadAheadSeconds)
	assert.Equal(t, 1.0, cfg.Cache.ReadBehindSeconds)
	assert.Equal(t, MissingFramePolicyBlack, cfg.Cache.MissingFramePolicy)
	assert.Equal(t, AudioSequenceBaseName, cfg.FileSequence.Audio)
	assert.Equal(t, 4, cfg.Performance.VideoRequestCount)
	assert.Equal(t, 9, cfg.Misc.MaxFileSequenceDigits)
	assert.NotEmpty(t, cfg.Persistence.DataDir)
	assert.NotEmpty(t, cfg.Persistence.DatabasePath)
	assert.NotNil(t, cfg.Plugins.Reliability.PluginOverrides)
}

func TestLoadConfigEnvOverridesDefault(t *testing.T) {
	t.Setenv("TLPLAY_PORT", "9100")
	t.Setenv("TLPLAY_CACHE_READ_AHEAD", "8.5")

	m := &Manager{config: DefaultConfig()}
	require.NoError(t, m.LoadConfig(""))

	cfg := m.GetConfig()
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 8.5, cfg.Cache.ReadAheadSeconds)
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tlplay.yaml")
	content := "server:\n  port: 9200\ncache:\n  read_ahead_seconds: 6.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := &Manager{config: DefaultConfig()}
	require.NoError(t, m.LoadConfig(path))

	cfg := m.GetConfig()
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 6.0, cfg.Cache.ReadAheadSeconds)
}

func TestLoadConfigRejectsInvalidPort(t *testing.T) {
	m := &Manager{config: DefaultConfig()}
	t.Setenv("TLPLAY_PORT", "0")
	err := m.LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigNotifiesWatchers(t *testing.T) {
	m := &Manager{config: DefaultConfig()}
	notified := make(chan *Config, 1)
	m.AddWatcher(func(oldConfig, newConfig *Config) {
		notified <- newConfig
	})

	t.Setenv("TLPLAY_PORT", "9300")
	require.NoError(t, m.LoadConfig(""))

	newConfig := <-notified
	assert.Equal(t, 9300, newConfig.Server.Port)
}

func TestReliabilityConfigForPluginAppliesOverride(t *testing.T) {
	rc := DefaultReliabilityConfig()
	retries := 7
	rc.PluginOverrides["ffmpeg"] = PluginOverride{MaxRetries: &retries}

	eff := rc.ForPlugin("ffmpeg")
	assert.Equal(t, 7, eff.MaxRetries)

	other := rc.ForPlugin("ndi")
	assert.Equal(t, rc.MaxRetries, other.MaxRetries)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tlplay.json")

	m := &Manager{config: DefaultConfig(), configPath: path}
	m.config.Server.Port = 9400
	require.NoError(t, m.SaveConfig())

	loaded := &Manager{config: DefaultConfig()}
	require.NoError(t, loaded.LoadConfig(path))
	assert.Equal(t, 9400, loaded.GetConfig().Server.Port)
}
