package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Loader manages configuration loading, watching, and atomic updates.
type Loader struct {
	mu             sync.Mutex
	configPath     string
	config         *Config
	watcher        *fsnotify.Watcher
	skipNextReload bool
	onChange       func(*Config) error
	logger         *zap.Logger
	stopChan       chan struct{}
	stopped        bool
}

// NewLoader creates a new configuration loader with file watching.
func NewLoader(configPath string, logger *zap.Logger) (*Loader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Loader{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}, nil
}

// Load loads the initial configuration from file.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := LoadFromFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l.config = cfg
	return cfg, nil
}

// StartWatching starts watching the configuration file for changes.
// The onChange callback is called when the configuration file changes.
func (l *Loader) StartWatching(onChange func(*Config) error) error {
	l.mu.Lock()
	l.onChange = onChange
	l.mu.Unlock()

	if err := l.watcher.Add(l.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go l.watchLoop()

	l.logger.Info("Started watching configuration file",
		zap.String("path", l.configPath))

	return nil
}

// watchLoop runs the file watching loop.
func (l *Loader) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				l.handleFileChange()
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("File watcher error", zap.Error(err))

		case <-l.stopChan:
			return
		}
	}
}

// handleFileChange handles configuration file changes.
func (l *Loader) handleFileChange() {
	l.mu.Lock()

	// Skip reloads triggered by our own atomic updates
	if l.skipNextReload {
		l.logger.Debug("Skipping file reload (programmatic change)")
		l.skipNextReload = false
		l.mu.Unlock()
		return
	}

	l.mu.Unlock()

	l.logger.Info("Configuration file changed, reloading...")

	cfg, err := LoadFromFile(l.configPath)
	if err != nil {
		l.logger.Error("Failed to reload configuration",
			zap.String("path", l.configPath),
			zap.Error(err))
		return
	}

	l.mu.Lock()
	oldConfig := l.config
	l.config = cfg
	onChange := l.onChange
	l.mu.Unlock()

	if onChange != nil {
		if err := onChange(cfg); err != nil {
			l.logger.Error("Failed to apply configuration changes",
				zap.Error(err))

			// Rollback to old config
			l.mu.Lock()
			l.config = oldConfig
			l.mu.Unlock()
			return
		}
	}

	l.logger.Info("Configuration reloaded successfully")
}

// UpdateConfigAtomic performs an atomic configuration update.
// The updateFn receives a copy of the current config and should return the
// modified config. Uses temp file + atomic rename to ensure atomicity.
func (l *Loader) UpdateConfigAtomic(updateFn func(*Config) (*Config, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	configCopy, err := l.copyConfig(l.config)
	if err != nil {
		return fmt.Errorf("failed to copy config: %w", err)
	}

	newConfig, err := updateFn(configCopy)
	if err != nil {
		return fmt.Errorf("update function failed: %w", err)
	}

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tempPath := l.configPath + ".tmp"
	if err := l.writeConfigToFile(newConfig, tempPath); err != nil {
		return fmt.Errorf("failed to write temp config: %w", err)
	}

	// This is our own change; the watcher must not re-apply it
	l.skipNextReload = true

	if err := os.Rename(tempPath, l.configPath); err != nil {
		l.skipNextReload = false
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	l.config = newConfig

	l.logger.Info("Configuration updated atomically",
		zap.String("path", l.configPath))

	return nil
}

// copyConfig creates a deep copy of the configuration using JSON marshal/unmarshal.
func (l *Loader) copyConfig(cfg *Config) (*Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var cp Config
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cp, nil
}

// writeConfigToFile writes configuration to a file.
func (l *Loader) writeConfigToFile(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe).
func (l *Loader) GetConfig() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// Stop stops the file watcher and cleans up resources. Safe to call more
// than once.
func (l *Loader) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stopChan)

	if err := l.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	l.logger.Info("Stopped configuration file watcher")
	return nil
}
