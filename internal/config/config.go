package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Inference InferenceConfig `yaml:"inference"`
	Notify    NotifyConfig    `yaml:"notify"`
	Storage   StorageConfig   `yaml:"storage"`
	Triggers  TriggersConfig  `yaml:"triggers"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Address      string `yaml:"address"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// AudioConfig contains inbound audio handling parameters
type AudioConfig struct {
	SpoolDir     string `yaml:"spool_dir"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// AnalysisConfig contains windowing parameters
type AnalysisConfig struct {
	LimitMS              int64            `yaml:"limit_ms"`
	ChunkMS              int64            `yaml:"chunk_ms"`
	MaxConcurrentWindows int              `yaml:"max_concurrent_windows"`
	SpeechGate           SpeechGateConfig `yaml:"speech_gate"`
}

// SpeechGateConfig contains the local voice activity gate configuration
type SpeechGateConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float32 `yaml:"threshold"`
	FrameSize int     `yaml:"frame_size"` // samples per frame
}

// InferenceConfig contains emotion inference API configuration
type InferenceConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
	MaxTextChars  int    `yaml:"max_text_chars"`
}

// NotifyConfig contains notification and memory API configuration
type NotifyConfig struct {
	BaseURL string `yaml:"base_url"`
	AppID   string `yaml:"app_id"`
	APIKey  string `yaml:"api_key"`
	Timeout int    `yaml:"timeout"` // seconds
}

// StorageConfig contains cloud storage archive configuration
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsJSON string `yaml:"credentials_json"` // base64 service account JSON
}

// TriggersConfig contains trigger configuration persistence settings
type TriggersConfig struct {
	ConfigFile string `yaml:"config_file"`
	Watch      bool   `yaml:"watch"`
}

// JobsConfig contains scheduled job intervals
type JobsConfig struct {
	MemoryInterval  int `yaml:"memory_interval"`  // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
	MaxFileAge      int `yaml:"max_file_age"`     // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
		},
		Audio: AudioConfig{
			SpoolDir:     "audio_files",
			MaxBodyBytes: 32 << 20,
		},
		Analysis: AnalysisConfig{
			LimitMS:              5000,
			ChunkMS:              4500,
			MaxConcurrentWindows: 1,
			SpeechGate: SpeechGateConfig{
				Enabled:   false,
				Threshold: 0.02,
				FrameSize: 320,
			},
		},
		Inference: InferenceConfig{
			Endpoint:      "wss://api.hume.ai/v0/stream/models",
			Timeout:       30,
			MaxConcurrent: 4,
			MaxTextChars:  10000,
		},
		Notify: NotifyConfig{
			BaseURL: "https://api.omi.me",
			Timeout: 30,
		},
		Triggers: TriggersConfig{
			ConfigFile: "emotion_config.json",
			Watch:      true,
		},
		Jobs: JobsConfig{
			MemoryInterval:  3600,
			CleanupInterval: 60,
			MaxFileAge:      300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults, then
// overlays credentials from the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays credentials and deployment settings read through getenv
func (c *Config) ApplyEnv(getenv func(string) string) {
	overlay := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	overlay(&c.Inference.APIKey, "HUME_API_KEY")
	overlay(&c.Notify.AppID, "OMI_APP_ID")
	overlay(&c.Notify.APIKey, "OMI_API_KEY")
	overlay(&c.Storage.Bucket, "GCS_BUCKET_NAME")
	overlay(&c.Storage.CredentialsJSON, "GOOGLE_APPLICATION_CREDENTIALS_JSON")

	if port, err := strconv.Atoi(getenv("PORT")); err == nil {
		c.HTTP.Port = port
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}

	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}

	if err := c.Triggers.Validate(); err != nil {
		return fmt.Errorf("triggers config: %w", err)
	}

	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.ReadTimeout < 1 || h.WriteTimeout < 1 {
		return fmt.Errorf("read_timeout and write_timeout must be at least 1 second")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SpoolDir == "" {
		return fmt.Errorf("spool_dir cannot be empty")
	}

	if a.MaxBodyBytes < 1024 {
		return fmt.Errorf("max_body_bytes must be at least 1024 bytes, got %d", a.MaxBodyBytes)
	}

	return nil
}

// Validate validates windowing configuration
func (a *AnalysisConfig) Validate() error {
	if a.LimitMS <= 0 {
		return fmt.Errorf("limit_ms must be positive, got %d", a.LimitMS)
	}

	if a.ChunkMS <= 0 || a.ChunkMS > a.LimitMS {
		return fmt.Errorf("chunk_ms (%d) must be positive and not exceed limit_ms (%d)", a.ChunkMS, a.LimitMS)
	}

	if a.MaxConcurrentWindows < 1 {
		return fmt.Errorf("max_concurrent_windows must be at least 1, got %d", a.MaxConcurrentWindows)
	}

	if a.SpeechGate.Enabled {
		if a.SpeechGate.Threshold < 0 || a.SpeechGate.Threshold > 1 {
			return fmt.Errorf("speech_gate threshold must be between 0 and 1, got %f", a.SpeechGate.Threshold)
		}

		if a.SpeechGate.FrameSize <= 0 {
			return fmt.Errorf("speech_gate frame_size must be positive, got %d", a.SpeechGate.FrameSize)
		}
	}

	return nil
}

// Validate validates inference configuration. The API key is checked when a
// call is made, not here.
func (i *InferenceConfig) Validate() error {
	u, err := url.Parse(i.Endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got '%s'", i.Endpoint)
	}

	if i.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", i.Timeout)
	}

	if i.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", i.MaxConcurrent)
	}

	if i.MaxTextChars < 1 {
		return fmt.Errorf("max_text_chars must be at least 1, got %d", i.MaxTextChars)
	}

	return nil
}

// Validate validates notification configuration
func (n *NotifyConfig) Validate() error {
	u, err := url.Parse(n.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("base_url must be an http(s) URL, got '%s'", n.BaseURL)
	}

	if n.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", n.Timeout)
	}

	return nil
}

// Validate validates trigger persistence configuration
func (t *TriggersConfig) Validate() error {
	if t.ConfigFile == "" {
		return fmt.Errorf("config_file cannot be empty")
	}

	return nil
}

// Validate validates job scheduling configuration
func (j *JobsConfig) Validate() error {
	if j.MemoryInterval < 1 {
		return fmt.Errorf("memory_interval must be at least 1 second, got %d", j.MemoryInterval)
	}

	if j.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", j.CleanupInterval)
	}

	if j.MaxFileAge < 1 {
		return fmt.Errorf("max_file_age must be at least 1 second, got %d", j.MaxFileAge)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr or a file path
	return nil
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the inference timeout as a time.Duration
func (i *InferenceConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(i.Timeout) * time.Second
}

// GetTimeoutDuration returns the notification timeout as a time.Duration
func (n *NotifyConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// GetMemoryInterval returns the memory job interval as a time.Duration
func (j *JobsConfig) GetMemoryInterval() time.Duration {
	return time.Duration(j.MemoryInterval) * time.Second
}

// GetCleanupInterval returns the cleanup job interval as a time.Duration
func (j *JobsConfig) GetCleanupInterval() time.Duration {
	return time.Duration(j.CleanupInterval) * time.Second
}

// GetMaxFileAge returns the spool retention as a time.Duration
func (j *JobsConfig) GetMaxFileAge() time.Duration {
	return time.Duration(j.MaxFileAge) * time.Second
}
