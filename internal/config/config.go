// Package config provides a configuration manager that loads and watches a JSON configuration file.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Provider is an interface that defines methods to access configuration values.
type Provider interface {
	AllowList() []string
	IsAllowed(string) bool
	TemplatePath(string) string
}

// reservedNames are document type names that would collide with service routes.
var reservedNames = map[string]struct{}{
	"version": {},
	"metrics": {},
	"process": {},
}

// Conf represents the configuration structure.
type Conf struct {
	AllowedList []string          `json:"allowList"`
	Templates   map[string]string `json:"templates"`
}

// Manager is a struct that manages the configuration.
type Manager struct {
	config     Conf
	allowSet   map[string]struct{}
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Options {
	return func(o *options) {
		o.Logger = log
	}
}

// New creates a new configuration manager with the specified path.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the internal state.
//
// Reserved document type names are dropped from the allow list with a warning.
func (cm *Manager) Load() error {
	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	allowSet := make(map[string]struct{}, len(newConfig.AllowedList))
	allowed := newConfig.AllowedList[:0]
	for _, name := range newConfig.AllowedList {
		if _, reserved := reservedNames[name]; reserved {
			cm.log.Warn("Ignoring reserved document type in allow list", "doctype", name)
			continue
		}
		if _, ok := allowSet[name]; ok {
			continue
		}
		allowSet[name] = struct{}{}
		allowed = append(allowed, name)
	}
	newConfig.AllowedList = allowed

	cm.lock.Lock()
	cm.config = newConfig
	cm.allowSet = allowSet
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "config", cm.config)
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	// Watch the directory, not the file: editors and atomic writers replace
	// the file, which would drop a file-level watch.
	dir, _ := filepath.Split(cm.configPath)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}
	cm.log.Info("Watching configuration directory", "dir", dir)

	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)
	go cm.watchLoop(ctx, watcher, changesCh, errorsCh)
	return changesCh, errorsCh, nil
}

func (cm *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changesCh chan struct{}, errorsCh chan error) {
	defer close(changesCh)
	defer close(errorsCh)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			cm.log.Info("Configuration watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
				return
			}
			if event.Name != cm.configPath || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			cm.log.Debug("Configuration file changed. Reloading...")
			if err := cm.Load(); err != nil {
				cm.log.Warn("Error reloading config", "err", err)
				continue
			}

			// Collapse bursts of events into a single pending change.
			select {
			case changesCh <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
				return
			}
			cm.log.Warn("Watcher error", "err", err)
		}
	}
}

// AllowList returns the allowed document types from the configuration.
func (cm *Manager) AllowList() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.AllowedList
}

// IsAllowed reports whether the given document type is in the allow list.
func (cm *Manager) IsAllowed(doctype string) bool {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	_, ok := cm.allowSet[doctype]
	return ok
}

// TemplatePath returns the generation template configured for the given document type,
// or "" if none is configured.
func (cm *Manager) TemplatePath(doctype string) string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Templates[doctype]
}
