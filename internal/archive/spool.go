package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout renders 20240102_150405_000123
const timestampLayout = "20060102_150405"

// Spool is a local directory holding inbound WAV files until cleanup
type Spool struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// SpooledFile describes one written recording
type SpooledFile struct {
	Name      string
	Path      string
	Timestamp string
}

// NewSpool creates the spool directory if needed
func NewSpool(dir string, logger *slog.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Spool{
		dir:    dir,
		logger: logger.With(slog.String("component", "spool")),
		now:    time.Now,
	}, nil
}

// Dir returns the spool directory
func (s *Spool) Dir() string {
	return s.dir
}

// FileTimestamp formats t as used in spooled file names, with microseconds
func FileTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s_%06d", t.Format(timestampLayout), t.Nanosecond()/1000)
}

// Write stores wav as <uid>_<timestamp>.wav
func (s *Spool) Write(uid string, wav []byte) (*SpooledFile, error) {
	timestamp := FileTimestamp(s.now())
	name := fmt.Sprintf("%s_%s.wav", sanitize(uid), timestamp)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &SpooledFile{Name: name, Path: abs, Timestamp: timestamp}, nil
}

// Remove deletes a spooled file, ignoring files already gone
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleanup deletes *.wav files older than maxAge and returns how many were removed.
// Files that cannot be removed are logged and skipped.
func (s *Spool) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	now := s.now()
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wav" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= maxAge {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("Could not delete audio file",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}

		deleted++
		s.logger.Debug("Deleted old audio file",
			slog.String("file", entry.Name()),
			slog.Duration("age", age.Round(time.Second)))
	}

	return deleted, nil
}

// sanitize keeps uid usable as a file name component
func sanitize(uid string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, uid)
}
