package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
)

// EnvConfig names the environment variable consulted when no config file exists
const EnvConfig = "EMOTION_NOTIFICATION_CONFIG"

// Settings are the persisted notification settings
type Settings struct {
	NotificationEnabled bool               `json:"notification_enabled"`
	EmotionThresholds   map[string]float64 `json:"emotion_thresholds"`
}

// DefaultSettings notifies for every detected emotion
func DefaultSettings() Settings {
	return Settings{
		NotificationEnabled: true,
		EmotionThresholds:   map[string]float64{},
	}
}

func (s Settings) clone() Settings {
	thresholds := make(map[string]float64, len(s.EmotionThresholds))
	for name, value := range s.EmotionThresholds {
		thresholds[name] = value
	}
	return Settings{NotificationEnabled: s.NotificationEnabled, EmotionThresholds: thresholds}
}

// Store holds the current settings, persists updates to a JSON file and
// reloads the file when it is edited externally.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	settings Settings
	source   string
}

// NewStore loads settings from path, then from the EMOTION_NOTIFICATION_CONFIG
// value returned by getenv, then falls back to DefaultSettings. Unreadable
// sources are logged and skipped.
func NewStore(path string, getenv func(string) string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   filepath.Clean(path),
		logger: logger.With(slog.String("component", "trigger_store")),
	}
	s.settings, s.source = s.load(getenv)

	s.logger.Info("Loaded emotion notification config",
		slog.String("source", s.source),
		slog.Bool("notification_enabled", s.settings.NotificationEnabled),
		slog.Int("thresholds", len(s.settings.EmotionThresholds)))

	return s
}

func (s *Store) load(getenv func(string) string) (Settings, string) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		settings, err := decodeSettings(data)
		if err != nil {
			s.logger.Warn("Could not load config file, using defaults",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
			return DefaultSettings(), "default"
		}
		return settings, "file"
	}

	if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Could not read config file",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
	}

	if raw := getenv(EnvConfig); raw != "" {
		settings, err := decodeSettings([]byte(raw))
		if err == nil {
			return settings, "env"
		}
		s.logger.Warn("Could not parse "+EnvConfig, slog.String("error", err.Error()))
	}

	return DefaultSettings(), "default"
}

// decodeSettings keeps absent keys at their zero value
func decodeSettings(data []byte) (Settings, error) {
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, err
	}
	if settings.EmotionThresholds == nil {
		settings.EmotionThresholds = map[string]float64{}
	}
	return settings, nil
}

// Get returns a copy of the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// Source reports where the current settings came from: file, env or default
func (s *Store) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Update validates a JSON patch, replaces the keys it carries and persists the
// result. Validation failures leave the settings untouched.
func (s *Store) Update(patch []byte) (Settings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return Settings{}, apperr.Validation("body", errors.New("invalid JSON in request body"))
	}

	var enabled *bool
	if raw, ok := fields["notification_enabled"]; ok {
		var value bool
		if err := json.Unmarshal(raw, &value); err != nil {
			return Settings{}, apperr.Validation("notification_enabled", errors.New("notification_enabled must be boolean"))
		}
		enabled = &value
	}

	var thresholds map[string]float64
	if raw, ok := fields["emotion_thresholds"]; ok {
		var values map[string]json.RawMessage
		if err := json.Unmarshal(raw, &values); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return Settings{}, apperr.Validation("emotion_thresholds", errors.New("emotion_thresholds must be a dict"))
		}

		thresholds = make(map[string]float64, len(values))
		for name, rawValue := range values {
			var value float64
			if err := json.Unmarshal(rawValue, &value); err != nil || value < 0 || value > 1 {
				return Settings{}, apperr.Validation("emotion_thresholds",
					fmt.Errorf("Threshold for %s must be between 0 and 1", name))
			}
			thresholds[name] = value
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.clone()
	if enabled != nil {
		next.NotificationEnabled = *enabled
	}
	if thresholds != nil {
		next.EmotionThresholds = thresholds
	}

	if err := s.persist(next); err != nil {
		return Settings{}, err
	}

	s.settings = next
	s.source = "file"

	s.logger.Info("Updated emotion notification config",
		slog.Bool("notification_enabled", next.NotificationEnabled),
		slog.Int("thresholds", len(next.EmotionThresholds)))

	return next.clone(), nil
}

func (s *Store) persist(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", s.path, err)
	}

	return nil
}

// reload rereads the config file, keeping the current settings on failure
func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("Could not reread config file", slog.String("error", err.Error()))
		return
	}

	settings, err := decodeSettings(data)
	if err != nil {
		s.logger.Warn("Ignoring invalid config file change", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.settings = settings
	s.source = "file"
	s.mu.Unlock()

	s.logger.Info("Reloaded emotion notification config",
		slog.Bool("notification_enabled", settings.NotificationEnabled),
		slog.Int("thresholds", len(settings.EmotionThresholds)))
}

// Watch reloads the settings whenever the config file is written, until ctx is
// cancelled. The parent directory is watched so that editors replacing the
// file are noticed too.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.logger.Info("Watching emotion config file", slog.String("path", s.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.reload()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("Config watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
