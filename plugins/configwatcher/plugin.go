// Package configwatcher reloads runtime tunables of a usercoord service when
// its TOML config file changes.
package configwatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/usercoord"
)

// Plugin watches a config file and applies the tunables it holds.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration

	// Runtime state
	logger   log.Logger
	tunables usercoord.Tunables
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML file to watch. Its directory is watched so that
	// files replaced by rename are picked up.
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// Tunables is the subset of the config file applied at runtime. Zero values
// leave the current setting unchanged.
type Tunables struct {
	CoordinatorTimeout string `toml:"coordinator_timeout"`
	MaxRunningUsers    int    `toml:"max_running_users"`
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		logger:        log.NewNoopLogger(),
	}
}

// WithConfigWatcher returns a usercoord Option that enables config file
// watching.
//
// Usage:
//
//	svc, err := usercoord.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path: "/etc/usercoord/config.toml",
//	    }),
//	)
func WithConfigWatcher(cfg Config) usercoord.Option {
	return usercoord.WithPlugin(New(cfg))
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize applies the current file contents and starts watching.
func (p *Plugin) Initialize(ctx context.Context, cfg usercoord.PluginConfig) error {
	p.mu.Lock()
	if cfg.Logger != nil {
		p.logger = cfg.Logger
	}
	p.tunables = cfg.Tunables
	p.mu.Unlock()

	if p.path == "" || p.tunables == nil {
		p.logger.Warn("config watcher disabled: no config path")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	p.reload()

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	p.logger.Info("config watcher plugin initialized", log.String("path", p.path))
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) scheduleReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload reads the file and applies its tunables. A missing file is not an
// error; the current settings stay in effect.
func (p *Plugin) reload() {
	t, err := LoadTunables(p.path)
	if errors.Is(err, os.ErrNotExist) {
		metrics.RecordConfigReload("missing")
		return
	}
	if err != nil {
		metrics.RecordConfigReload("error")
		p.logger.Error("config reload failed", log.String("path", p.path), log.Err(err))
		return
	}
	if err := p.apply(t); err != nil {
		metrics.RecordConfigReload("error")
		p.logger.Error("config reload failed", log.String("path", p.path), log.Err(err))
		return
	}
	metrics.RecordConfigReload("ok")
	p.logger.Info("config reloaded", log.String("path", p.path))
}

func (p *Plugin) apply(t Tunables) error {
	if t.CoordinatorTimeout != "" {
		d, err := time.ParseDuration(t.CoordinatorTimeout)
		if err != nil {
			return fmt.Errorf("parse coordinator_timeout: %w", err)
		}
		p.tunables.SetCoordinatorTimeout(d)
	}
	if t.MaxRunningUsers > 0 {
		p.tunables.SetMaxRunningUsers(t.MaxRunningUsers)
	}
	return nil
}

// LoadTunables reads the runtime tunables from a TOML file. Unknown keys
// are ignored.
func LoadTunables(path string) (Tunables, error) {
	var t Tunables
	b, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := toml.Unmarshal(b, &t); err != nil {
		return t, err
	}
	return t, nil
}

// Ensure Plugin implements usercoord.Plugin.
var _ usercoord.Plugin = (*Plugin)(nil)
