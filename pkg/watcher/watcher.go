// Package watcher reports changes to the annotation file or the modules
// directory so the index and dataset can be rebuilt while the viewer or the
// lookup server is running.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanderheijden86/sgv/pkg/debug"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrPathRemoved    = errors.New("watched path was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked when the path changes.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// WithSuffix restricts a directory watch to file names ending in suffix,
// for example "_modules.csv".
func WithSuffix(suffix string) WatcherOption {
	return func(w *Watcher) {
		w.suffix = suffix
	}
}

// snapshot is what polling compares between ticks.
type snapshot struct {
	count  int
	size   int64
	newest time.Time
}

// Watcher monitors a file, or the matching files of a directory, using
// fsnotify with a polling fallback.
type Watcher struct {
	path             string
	isDir            bool
	suffix           string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func()
	onError          func(error)
	forcePoll        bool
	fsType           FilesystemType

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	last        snapshot
	existed     bool

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

// NewWatcher creates a watcher for path, which may be a file or a directory.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:             absPath,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func() {},
		onError:          func(error) {},
		changeCh:         make(chan struct{}, 1),
	}
	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		w.isDir = true
	}

	for _, opt := range opts {
		opt(w)
	}

	w.debouncer = NewDebouncer(w.debounceDuration)

	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.useFallback = w.forcePoll || envBool("SGV_FORCE_POLLING")
	w.fsType = DetectFilesystemType(w.path)
	if isRemoteFilesystem(w.fsType) {
		debug.Log("watcher: %s is on %s, polling", w.path, w.fsType)
		w.useFallback = true
	}

	snap, err := w.take()
	if err != nil && os.IsPermission(err) {
		return ErrPermission
	}
	w.last = snap
	w.existed = err == nil

	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			// For a file, watch its directory so atomic renames are seen.
			target := w.path
			if !w.isDir {
				target = filepath.Dir(w.path)
			}
			if err := fsw.Add(target); err != nil {
				fsw.Close()
				w.useFallback = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify()
			}
		} else {
			w.useFallback = true
		}
	}

	if w.useFallback {
		debug.Log("watcher: polling %s every %v", w.path, w.pollInterval)
		go w.watchPolling()
	}

	w.started = true
	return nil
}

// Stop stops watching. The change channel is left open so a goroutine
// blocked on Changed does not spin.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	w.debouncer.Cancel()
	w.started = false
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// IsDir reports whether a directory is being watched.
func (w *Watcher) IsDir() bool {
	return w.isDir
}

// Changed returns a channel that receives when the path changes.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// FilesystemType returns the best-effort filesystem classification for the
// watched path, known once Start has run.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// Path returns the watched path.
func (w *Watcher) Path() string {
	return w.path
}

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// relevant reports whether an event on name concerns the watched path.
func (w *Watcher) relevant(name string) bool {
	if !w.isDir {
		return filepath.Base(name) == filepath.Base(w.path)
	}
	return w.suffix == "" || strings.HasSuffix(name, w.suffix)
}

func (w *Watcher) watchFsnotify() {
	w.mu.RLock()
	if w.fsWatcher == nil {
		w.mu.RUnlock()
		return
	}
	events := w.fsWatcher.Events
	errs := w.fsWatcher.Errors
	w.mu.RUnlock()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Name == w.path && event.Op&fsnotify.Remove != 0 {
				w.onError(ErrPathRemoved)
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			switch {
			case !w.isDir && event.Op&fsnotify.Remove != 0:
				w.onError(ErrPathRemoved)
			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0:
				w.debouncer.Trigger(w.notifyChange)
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

// take summarises the watched path.
func (w *Watcher) take() (snapshot, error) {
	if !w.isDir {
		info, err := os.Stat(w.path)
		if err != nil {
			return snapshot{}, err
		}
		return snapshot{count: 1, size: info.Size(), newest: info.ModTime()}, nil
	}
	des, err := os.ReadDir(w.path)
	if err != nil {
		return snapshot{}, err
	}
	var s snapshot
	for _, de := range des {
		if de.IsDir() || !w.relevant(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		s.count++
		s.size += info.Size()
		if info.ModTime().After(s.newest) {
			s.newest = info.ModTime()
		}
	}
	return s, nil
}

func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			snap, err := w.take()
			if err != nil {
				switch {
				case os.IsNotExist(err):
					w.mu.Lock()
					existed := w.existed
					w.existed = false
					w.mu.Unlock()
					if existed {
						w.onError(ErrPathRemoved)
					}
				case os.IsPermission(err):
					w.onError(ErrPermission)
				default:
					w.onError(err)
				}
				continue
			}

			w.mu.Lock()
			changed := snap != w.last || !w.existed
			w.last = snap
			w.existed = true
			w.mu.Unlock()

			if changed {
				w.debouncer.Trigger(w.notifyChange)
			}
		}
	}
}

// notifyChange invokes the onChange callback and signals the change channel.
func (w *Watcher) notifyChange() {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()

	if !started {
		return
	}

	w.onChange()

	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
