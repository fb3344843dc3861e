package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/energygw/internal/observability"
)

// DefaultDebounceDelay coalesces the burst of events one save produces.
const DefaultDebounceDelay = 100 * time.Millisecond

// kubernetesDataLink is the symlink a mounted ConfigMap swaps atomically
// on update; the config file itself sees no event.
const kubernetesDataLink = "..data"

// ConfigCallback is called after a changed configuration file has been
// loaded and validated. previous is the configuration it replaces.
type ConfigCallback func(previous, current *GatewayConfig)

// ErrorCallback is called when a reload fails or fsnotify reports an
// error. The last good configuration stays in effect.
type ErrorCallback func(error)

// Watcher reloads the configuration file when it changes. It watches the
// parent directory so atomic replacement by editors and ConfigMap
// symlink swaps are seen.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      ConfigCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration

	current atomic.Pointer[GatewayConfig]
	// digest of the file bytes behind current, to ignore touches and
	// metadata-only changes.
	digest [sha256.Size]byte

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the watcher waits for events to settle.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for path. Nothing is read until Start.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		debounceDelay: DefaultDebounceDelay,
		logger:        observability.NopLogger(),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the file once, fails if it is not a valid configuration,
// and then watches it until ctx is done or Stop is called. Calling Start
// on a running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	cfg, digest, err := w.load()
	if err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.current.Store(cfg)
	w.digest = digest
	w.running = true

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)

	w.logger.Info("watching configuration file", observability.String("path", w.path))
	return nil
}

// Stop ends watching and releases the fsnotify handle. It is safe to call
// more than once, and before Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running, cancel := w.running, w.cancel
	w.running = false
	w.mu.Unlock()

	var err error
	w.stopOnce.Do(func() {
		if running {
			cancel()
			<-w.done
		}
		err = w.watcher.Close()
	})
	return err
}

// GetLastConfig returns the last configuration that loaded and validated.
func (w *Watcher) GetLastConfig() *GatewayConfig {
	return w.current.Load()
}

// ForceReload reloads the file now, even if its content is unchanged.
func (w *Watcher) ForceReload() error {
	return w.apply(true)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	debounce := time.NewTimer(w.debounceDelay)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.logger.Debug("config file event",
					observability.String("path", event.Name),
					observability.String("op", event.Op.String()))
				debounce.Reset(w.debounceDelay)
			}

		case <-debounce.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.fail("config watcher error", err)
		}
	}
}

// relevant reports whether event may have changed the configuration.
// Chmod alone never does.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.path || filepath.Base(name) == kubernetesDataLink
}

func (w *Watcher) reload() {
	if err := w.apply(false); err != nil {
		w.fail("configuration reload failed", err)
	}
}

// apply loads and validates the file and hands it to the callback. Unless
// forced, identical content is ignored.
func (w *Watcher) apply(force bool) error {
	cfg, digest, err := w.load()
	if err != nil {
		return err
	}

	w.mu.Lock()
	if !force && digest == w.digest {
		w.mu.Unlock()
		w.logger.Debug("configuration unchanged", observability.String("path", w.path))
		return nil
	}
	w.digest = digest
	previous := w.current.Swap(cfg)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", observability.String("path", w.path))
	if w.callback != nil {
		w.callback(previous, cfg)
	}
	return nil
}

// load reads, parses and validates the file.
func (w *Watcher) load() (*GatewayConfig, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, fmt.Errorf("failed to read config file %s: %w", w.path, err)
	}

	cfg, err := NewLoader().parseConfig(data)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}

func (w *Watcher) fail(msg string, err error) {
	w.logger.Error(msg, observability.Error(err))
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}
