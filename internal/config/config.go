// Package config loads and holds process configuration: the settings
// recognized by the playback core (cache windows, sequence audio
// handling, performance knobs) plus the ambient server/logging/
// persistence configuration every process needs. Values come from a
// YAML file, overridden by environment variables, with documented
// defaults for everything.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete process configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	FileSequence FileSequenceConfig `yaml:"file_sequence" json:"file_sequence"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Misc        MiscConfig        `yaml:"misc" json:"misc"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Plugins     ReaderPluginConfig `yaml:"plugins" json:"plugins"`
	OutputDevice OutputDeviceConfig `yaml:"output_device" json:"output_device"`
}

// ServerConfig holds the HTTP API's listener configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host" env:"TLPLAY_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" json:"port" env:"TLPLAY_PORT" default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" env:"TLPLAY_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" env:"TLPLAY_WRITE_TIMEOUT" default:"30s"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes" env:"TLPLAY_MAX_HEADER_BYTES" default:"1048576"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors" env:"TLPLAY_ENABLE_CORS" default:"true"`
}

// CacheConfig carries the `Cache/ReadAhead` and `Cache/ReadBehind`
// settings the playback cache policy consumes, plus the I/O cache's own
// byte budget.
type CacheConfig struct {
	ReadAheadSeconds  float64 `yaml:"read_ahead_seconds" json:"read_ahead_seconds" env:"TLPLAY_CACHE_READ_AHEAD" default:"4.0"`
	ReadBehindSeconds float64 `yaml:"read_behind_seconds" json:"read_behind_seconds" env:"TLPLAY_CACHE_READ_BEHIND" default:"1.0"`
	MaxBytes          int64   `yaml:"max_bytes" json:"max_bytes" env:"TLPLAY_CACHE_MAX_BYTES" default:"1073741824"`

	// MissingFramePolicy picks what the player displays for a gap or
	// failed read: "Black", "Previous", or "Scratched".
	MissingFramePolicy MissingFramePolicyName `yaml:"missing_frame_policy" json:"missing_frame_policy" env:"TLPLAY_CACHE_MISSING_FRAME_POLICY" default:"Black"`
}

// MissingFramePolicyName is the config-file/env spelling of
// imageio.MissingFramePolicy.
type MissingFramePolicyName string

const (
	MissingFramePolicyBlack     MissingFramePolicyName = "Black"
	MissingFramePolicyPrevious  MissingFramePolicyName = "Previous"
	MissingFramePolicyScratched MissingFramePolicyName = "Scratched"
)

// AudioSequenceMode selects how a frame-sequence clip locates its
// companion audio file.
type AudioSequenceMode string

const (
	AudioSequenceNone      AudioSequenceMode = "None"
	AudioSequenceBaseName  AudioSequenceMode = "BaseName"
	AudioSequenceFileName  AudioSequenceMode = "FileName"
	AudioSequenceDirectory AudioSequenceMode = "Directory"
)

// FileSequenceConfig controls how a numbered image sequence's audio
// companion is located.
type FileSequenceConfig struct {
	Audio         AudioSequenceMode `yaml:"audio" json:"audio" env:"TLPLAY_FILESEQUENCE_AUDIO" default:"BaseName"`
	AudioFileName string            `yaml:"audio_file_name" json:"audio_file_name" env:"TLPLAY_FILESEQUENCE_AUDIO_FILENAME"`
	AudioDirectory string           `yaml:"audio_directory" json:"audio_directory" env:"TLPLAY_FILESEQUENCE_AUDIO_DIRECTORY"`
}

// PerformanceConfig is the core-relevant performance knob subset.
type PerformanceConfig struct {
	VideoRequestCount        int    `yaml:"video_request_count" json:"video_request_count" env:"TLPLAY_PERF_VIDEO_REQUEST_COUNT" default:"4"`
	AudioRequestCount        int    `yaml:"audio_request_count" json:"audio_request_count" env:"TLPLAY_PERF_AUDIO_REQUEST_COUNT" default:"4"`
	SequenceThreadCount      int    `yaml:"sequence_thread_count" json:"sequence_thread_count" env:"TLPLAY_PERF_SEQUENCE_THREAD_COUNT" default:"0"`
	FFmpegThreadCount        int    `yaml:"ffmpeg_thread_count" json:"ffmpeg_thread_count" env:"TLPLAY_PERF_FFMPEG_THREAD_COUNT" default:"0"`
	FFmpegYUVToRGBConversion bool   `yaml:"ffmpeg_yuv_to_rgb_conversion" json:"ffmpeg_yuv_to_rgb_conversion" env:"TLPLAY_PERF_FFMPEG_YUV_TO_RGB" default:"true"`
	TimerMode                string `yaml:"timer_mode" json:"timer_mode" env:"TLPLAY_PERF_TIMER_MODE" default:"System"`
	AudioBufferFrameCount    int    `yaml:"audio_buffer_frame_count" json:"audio_buffer_frame_count" env:"TLPLAY_PERF_AUDIO_BUFFER_FRAME_COUNT" default:"256"`
}

// MiscConfig is the catch-all for small cross-cutting knobs.
type MiscConfig struct {
	MaxFileSequenceDigits int `yaml:"max_file_sequence_digits" json:"max_file_sequence_digits" env:"TLPLAY_MAX_FILE_SEQUENCE_DIGITS" default:"9"`
}

// LoggingConfig controls the process-default hclog logger.
type LoggingConfig struct {
	Level        string `yaml:"level" json:"level" env:"TLPLAY_LOG_LEVEL" default:"info"`
	Format       string `yaml:"format" json:"format" env:"TLPLAY_LOG_FORMAT" default:"json"`
	Output       string `yaml:"output" json:"output" env:"TLPLAY_LOG_OUTPUT" default:"stdout"`
	EnableColors bool   `yaml:"enable_colors" json:"enable_colors" env:"TLPLAY_LOG_COLORS" default:"true"`
}

// PersistenceConfig locates the sqlite-backed settings/recent-files/
// resume-position store.
type PersistenceConfig struct {
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"TLPLAY_DATA_DIR" default:""`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"TLPLAY_DATABASE_PATH"`
}

// ReaderPluginConfig locates external reader/writer plugin binaries and
// carries their reliability settings.
type ReaderPluginConfig struct {
	Dir             string            `yaml:"dir" json:"dir" env:"TLPLAY_PLUGIN_DIR" default:"./plugins"`
	EnableHotReload bool              `yaml:"enable_hot_reload" json:"enable_hot_reload" env:"TLPLAY_PLUGIN_HOT_RELOAD" default:"false"`
	Reliability     ReliabilityConfig `yaml:"reliability" json:"reliability" env:"-"`
}

// OutputDeviceConfig configures the pull-based output device described
// in spec.md §4.11: which physical device/display mode to drive and how
// fast its poll loop runs when no device is actually attached.
type OutputDeviceConfig struct {
	DeviceIndex      int     `yaml:"device_index" json:"device_index" env:"TLPLAY_OUTPUT_DEVICE_INDEX" default:"0"`
	DisplayModeIndex int     `yaml:"display_mode_index" json:"display_mode_index" env:"TLPLAY_OUTPUT_DISPLAY_MODE_INDEX" default:"0"`
	PixelType        string  `yaml:"pixel_type" json:"pixel_type" env:"TLPLAY_OUTPUT_PIXEL_TYPE" default:"RGBA8"`
	PollFrameRate    float64 `yaml:"poll_frame_rate" json:"poll_frame_rate" env:"TLPLAY_OUTPUT_POLL_FRAME_RATE" default:"24"`
}

// Manager holds the loaded Config plus watchers notified on reload.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []Watcher
}

// Watcher is called with the old and new Config after a successful reload.
type Watcher func(oldConfig, newConfig *Config)

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the process-wide Manager, constructing it with
// defaults on first call.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{config: DefaultConfig()}
	})
	return globalManager
}

// DefaultConfig returns the default Config with every field's `default`
// tag applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = loadStructFromEnv(reflect.ValueOf(cfg).Elem())
	applyDerivedConfig(cfg)
	return cfg
}

// LoadConfig loads configuration starting from defaults, then a YAML/JSON
// file if configPath is non-empty and exists, then environment variable
// overrides, validates the result, and notifies watchers.
func (m *Manager) LoadConfig(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldConfig := *m.config
	m.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("config: load from file: %w", err)
		}
	}

	if err := applyEnvOverrides(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("config: load from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)
	m.config = newConfig

	for _, w := range m.watchers {
		go w(&oldConfig, newConfig)
	}
	return nil
}

// GetConfig returns a copy of the current configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfgCopy := *m.config
	return &cfgCopy
}

// AddWatcher registers w to be called after every successful LoadConfig.
func (m *Manager) AddWatcher(w Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, w)
}

// SaveConfig writes the current configuration back to its load path.
func (m *Manager) SaveConfig() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.configPath == "" {
		return fmt.Errorf("config: no config path set")
	}
	return saveToFile(m.configPath, m.config)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
}

func saveToFile(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadStructFromEnv walks config's fields, setting each tagged field from
// its `default` tag. It never consults the environment — that happens
// separately in applyEnvOverrides, after any config file has loaded, so
// an unset environment variable never stomps a value the file set.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		defaultTag := fieldType.Tag.Get("default")
		if defaultTag == "" {
			continue
		}
		if err := setFieldValue(field, defaultTag); err != nil {
			return fmt.Errorf("field %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

// applyEnvOverrides walks config's fields, overwriting any field whose
// `env` tag names a variable that is actually set. Fields with no env
// tag, or whose variable is unset, are left exactly as the defaults/file
// load already set them.
func applyEnvOverrides(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := applyEnvOverrides(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		value, ok := os.LookupEnv(envTag)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("field %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		}
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind: %v", field.Kind())
	}
	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Cache.ReadAheadSeconds < 0 || config.Cache.ReadBehindSeconds < 0 {
		return fmt.Errorf("cache read-ahead/read-behind must be non-negative")
	}
	if config.Cache.MaxBytes <= 0 {
		return fmt.Errorf("invalid cache max bytes: %d", config.Cache.MaxBytes)
	}
	if config.Performance.VideoRequestCount <= 0 || config.Performance.AudioRequestCount <= 0 {
		return fmt.Errorf("request counts must be positive")
	}
	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Persistence.DataDir == "" {
		config.Persistence.DataDir = filepath.Join(os.TempDir(), "tlplay")
	}
	if config.Persistence.DatabasePath == "" {
		config.Persistence.DatabasePath = filepath.Join(config.Persistence.DataDir, "tlplay.db")
	}
	if config.Performance.SequenceThreadCount <= 0 {
		config.Performance.SequenceThreadCount = minInt(maxInt(1, runtime.NumCPU()), 16)
	}
	if config.Performance.FFmpegThreadCount <= 0 {
		config.Performance.FFmpegThreadCount = minInt(maxInt(1, runtime.NumCPU()/2), 8)
	}
	if config.Plugins.Reliability.PluginOverrides == nil {
		config.Plugins.Reliability.PluginOverrides = make(map[string]PluginOverride)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Get returns the current global configuration.
func Get() *Config { return GetManager().GetConfig() }

// Load loads configuration from configPath into the global Manager.
func Load(configPath string) error { return GetManager().LoadConfig(configPath) }

// AddWatcher registers a global configuration watcher.
func AddWatcher(w Watcher) { GetManager().AddWatcher(w) }

// Save writes the global configuration back to its load path.
func Save() error { return GetManager().SaveConfig() }
