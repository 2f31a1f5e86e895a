// Package watcher reports changes to extension folders so the registry can
// hot reload them.
//
// Every file event under the extensions root is attributed to the top-level
// folder it happened in. Events for the same folder are coalesced: a Change
// is delivered once the folder has been quiet for the debounce delay.
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

	"github.com/dshills/kairo/internal/extension"
	"github.com/dshills/kairo/internal/extension/logstore"
	"github.com/dshills/kairo/internal/hostfs"
)

// DefaultDelay is the debounce delay used when none is configured.
const DefaultDelay = 250 * time.Millisecond

// ErrPathNotExist is returned when the root does not exist.
var ErrPathNotExist = errors.New("path does not exist")

// Change reports that an extension folder settled after edits.
type Change struct {
	// Folder is the extension folder, a direct child of the root.
	Folder string

	// Removed is true when the folder or its manifest is gone.
	Removed bool
}

// Watcher watches an extensions root.
type Watcher struct {
	root  string
	delay time.Duration
	fsw   *fsnotify.Watcher

	mu       sync.Mutex
	pending  map[string]*time.Timer
	closed   bool
	inflight sync.WaitGroup

	changes   chan Change
	errors    chan error
	closeCh   chan struct{}
	closeOnce sync.Once
	closedWg  sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// New starts watching root and every directory below it.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    abs,
		delay:   DefaultDelay,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		changes: make(chan Change, 64),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Root returns the watched root.
func (w *Watcher) Root() string {
	return w.root
}

// Changes returns the channel of settled folder changes.
// The channel is closed when the watcher is closed.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel of watcher errors.
// The channel is closed when the watcher is closed.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.closeCh) })

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for folder, t := range w.pending {
		t.Stop()
		delete(w.pending, folder)
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	w.inflight.Wait()

	close(w.changes)
	close(w.errors)
	return w.fsw.Close()
}

// addTree watches dir and its subdirectories, skipping hidden ones.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && ignored(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ignored(ev.Name) {
		return
	}
	folder := w.folderOf(ev.Name)
	if folder == "" {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addTree(ev.Name)
		}
	}
	w.schedule(folder)
}

// folderOf returns the top-level folder under the root containing path.
func (w *Watcher) folderOf(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return filepath.Join(w.root, first)
}

func (w *Watcher) schedule(folder string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[folder]; ok {
		t.Reset(w.delay)
		return
	}
	w.pending[folder] = time.AfterFunc(w.delay, func() { w.fire(folder) })
}

func (w *Watcher) fire(folder string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, folder)
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	_, err := os.Stat(filepath.Join(folder, hostfs.ManifestFile))
	change := Change{Folder: folder, Removed: err != nil}

	select {
	case w.changes <- change:
	case <-w.closeCh:
	}
}

// ignored reports editor and hidden files.
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp")
}

// Sync applies changes to reg until ctx is done or w is closed: a changed
// folder is (re)loaded, a removed one is unloaded.
func Sync(ctx context.Context, w *Watcher, reg *extension.Registry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			reg.Logs().Warn(logstore.SystemID, "extension watcher: "+err.Error(), nil)
		case change, ok := <-w.Changes():
			if !ok {
				return nil
			}
			apply(ctx, reg, change)
		}
	}
}

func apply(ctx context.Context, reg *extension.Registry, change Change) {
	if change.Removed {
		if ext, ok := reg.FindByPath(change.Folder); ok {
			_ = reg.UnloadExtension(ctx, ext.Manifest.ID)
		}
		return
	}
	// errors are already in the registry log
	_, _ = reg.LoadExtension(ctx, change.Folder)
}
