package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iudanet/lexisync/internal/models"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes and publishes valid configs.
// The parent directory is watched because editors replace files on save.
type Watcher struct {
	watcher *fsnotify.Watcher
	tables  *models.TableRegistry
	logger  *slog.Logger
	changes chan *Config
	done    chan struct{}
	timer   *time.Timer
	path    string
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, tables *models.TableRegistry, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher: w,
		tables:  tables,
		logger:  logger,
		changes: make(chan *Config, 1),
		done:    make(chan struct{}),
		path:    abs,
	}, nil
}

// Start begins watching the config file directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the changes channel.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// Changes returns the channel of reloaded, validated configs.
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

// schedule склеивает серию событий одного сохранения в одну перезагрузку
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err == nil {
		err = cfg.Validate(w.tables)
	}
	if err != nil {
		w.logger.Error("Config reload rejected, keeping previous config", "path", w.path, "error", err)
		return
	}

	w.logger.Info("Config reloaded", "path", w.path)
	// непрочитанная старая версия заменяется новой
	select {
	case <-w.changes:
	default:
	}
	select {
	case w.changes <- cfg:
	case <-w.done:
	}
}
