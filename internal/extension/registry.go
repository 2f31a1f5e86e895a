package extension

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/logstore"
	"github.com/dshills/kairo/internal/extension/sandbox"
	"github.com/dshills/kairo/internal/extension/sandbox/js"
	"github.com/dshills/kairo/internal/extension/sandbox/lua"
	"github.com/dshills/kairo/internal/extension/security"
	"github.com/dshills/kairo/internal/extension/settings"
	"github.com/dshills/kairo/internal/extension/storage"
	"github.com/dshills/kairo/internal/hostfs"
)

const tracerName = "github.com/dshills/kairo/internal/extension"

// Extension is a copy of the registry's record of one extension.
type Extension struct {
	Manifest    Manifest
	InstallPath string
	State       State

	// Loaded is true only after evaluation and initialize succeeded.
	Loaded bool

	// Enabled mirrors the settings store; extensions default to enabled.
	Enabled bool

	// Blocked is set when the host policy forbids running extension code.
	Blocked bool

	// Err is the last load failure.
	Err error
}

// record is the registry-owned state of one extension. Fields of ext are
// written under Registry.mu; api, mod and suspended only under the
// lifecycle lock.
type record struct {
	ext Extension

	api       *capability.API
	mod       sandbox.Module
	suspended bool // disabled with its module and registrations kept
}

// Registry discovers, loads and manages extensions of one vault.
//
// Lifecycle operations are serialized: one extension's load sequence
// completes before the next one starts. Reads (Get, List) never wait for a
// load in progress.
type Registry struct {
	lifecycle sync.Mutex

	mu       sync.RWMutex
	records  map[string]*record
	order    []string
	handlers []EventHandler

	fs    hostfs.FS
	vault string

	settings   *settings.Store
	logs       *logstore.Store
	registries *capability.Registries
	styles     *capability.StyleManager
	stores     *capability.Stores
	state      capability.StateProvider
	storage    *storage.Store
	runtimes   *sandbox.Runtimes
	validator  *security.Validator
	policy     *security.DynamicCodePolicy
	limits     security.Limits
	tracer     trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogs sets the log store shared with the debug console.
func WithLogs(logs *logstore.Store) Option {
	return func(r *Registry) {
		r.logs = logs
	}
}

// WithRegistries sets the capability registries the host reads from.
func WithRegistries(reg *capability.Registries) Option {
	return func(r *Registry) {
		r.registries = reg
	}
}

// WithStyles sets the style manager.
func WithStyles(styles *capability.StyleManager) Option {
	return func(r *Registry) {
		r.styles = styles
	}
}

// WithStores sets the host stores extensions may subscribe to.
func WithStores(stores *capability.Stores) Option {
	return func(r *Registry) {
		r.stores = stores
	}
}

// WithStateProvider sets the source of getState snapshots.
func WithStateProvider(p capability.StateProvider) Option {
	return func(r *Registry) {
		r.state = p
	}
}

// WithStorage sets the per-extension data store.
func WithStorage(s *storage.Store) Option {
	return func(r *Registry) {
		r.storage = s
	}
}

// WithRuntimes sets the sandbox runtimes.
func WithRuntimes(rt *sandbox.Runtimes) Option {
	return func(r *Registry) {
		r.runtimes = rt
	}
}

// WithPolicy sets the dynamic code policy.
func WithPolicy(p *security.DynamicCodePolicy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithLimits sets the per-extension limits.
func WithLimits(l security.Limits) Option {
	return func(r *Registry) {
		r.limits = l
	}
}

// WithTracer sets the tracer used for lifecycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// NewRegistry creates the registry of a vault and loads its settings.
// Unreadable settings are logged and every extension defaults to enabled.
func NewRegistry(fsys hostfs.FS, vault string, opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*record),
		fs:      fsys,
		vault:   vault,
		limits:  security.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.limits = r.limits.Normalize()

	if r.logs == nil {
		r.logs = logstore.New(logstore.DefaultMaxLogs)
	}
	if r.registries == nil {
		r.registries = capability.NewRegistries()
	}
	if r.styles == nil {
		r.styles = capability.NewStyleManager(nil)
	}
	if r.stores == nil {
		r.stores = capability.NewStores()
	}
	if r.runtimes == nil {
		r.runtimes = sandbox.NewRuntimes(
			js.New(js.WithTimeout(r.limits.CallTimeout)),
			lua.New(lua.WithTimeout(r.limits.CallTimeout)),
		)
	}
	if r.policy == nil {
		r.policy = js.DefaultPolicy()
	}
	if r.storage == nil && vault != "" {
		r.storage = storage.New(vault, r.limits.MaxStorageBytes)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	r.validator = security.NewValidator(r.limits.MaxSourceBytes)

	r.settings = settings.New(fsys, vault)
	if err := r.settings.Load(); err != nil {
		r.logs.Warn(logstore.SystemID, "extension settings unavailable, using defaults", errDetails(err))
	}
	return r
}

// LoadExtensionsFromFolder loads every extension folder under root in
// name order. Manifest and conflict errors are logged, skipped and
// returned joined; load failures are recorded on the extension instead.
func (r *Registry) LoadExtensionsFromFolder(ctx context.Context, root string) error {
	ctx, span := r.tracer.Start(ctx, "extension.scan",
		trace.WithAttributes(attribute.String("extension.root", root)))
	defer span.End()

	folders, err := r.fs.ListExtensionFolders(root)
	if err != nil {
		r.logs.Error(logstore.SystemID, "cannot list extensions", map[string]any{
			"root":  root,
			"error": err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "list folders")
		return fmt.Errorf("list extensions in %s: %w", root, err)
	}
	sort.Strings(folders)
	span.SetAttributes(attribute.Int("extension.folders", len(folders)))

	var errs []error
	for _, folder := range folders {
		if _, err := r.LoadExtension(ctx, folder); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadExtension registers the extension in folder and, when enabled, runs
// it. Loading an id that is already registered from the same folder
// unloads it first; the same id from another folder is a *ConflictError.
//
// The returned error is only set when no record could be made for folder.
// Failures while running the code are reported on Extension.Err.
func (r *Registry) LoadExtension(ctx context.Context, folder string) (Extension, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	ctx, span := r.tracer.Start(ctx, "extension.load",
		trace.WithAttributes(attribute.String("extension.path", folder)))
	defer span.End()

	m, err := LoadManifest(r.fs, folder)
	if err != nil {
		r.logs.Error(logstore.SystemID, err.Error(), map[string]any{"path": folder})
		span.RecordError(err)
		span.SetStatus(codes.Error, "manifest")
		return Extension{}, err
	}
	span.SetAttributes(attribute.String("extension.id", m.ID))

	if prev := r.lookup(m.ID); prev != nil {
		if !samePath(prev.ext.InstallPath, folder) {
			cerr := &ConflictError{ID: m.ID, ExistingPath: prev.ext.InstallPath, Path: folder}
			r.logs.Error(m.ID, cerr.Error(), nil)
			span.RecordError(cerr)
			span.SetStatus(codes.Error, "conflict")
			return r.snapshot(prev), cerr
		}
		r.unloadLocked(ctx, prev)
	}

	rec := &record{ext: Extension{
		Manifest:    *m,
		InstallPath: folder,
		State:       StateRegistered,
		Enabled:     r.settings.IsEnabled(m.ID),
	}}
	r.put(rec)
	r.emit(Event{Type: EventRegistered, ExtensionID: m.ID})

	if !rec.ext.Enabled {
		r.update(rec, func(e *Extension) { e.State = StateDisabled })
		r.logs.Info(m.ID, "registered (disabled)", nil)
		return r.snapshot(rec), nil
	}

	r.loadLocked(ctx, rec)
	return r.snapshot(rec), nil
}

// UnloadExtension runs cleanup and removes everything the extension
// registered. The record is kept.
func (r *Registry) UnloadExtension(ctx context.Context, id string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	rec := r.lookup(id)
	if rec == nil {
		return fmt.Errorf("extension %q: %w", id, ErrExtensionNotFound)
	}

	ctx, span := r.tracer.Start(ctx, "extension.unload",
		trace.WithAttributes(attribute.String("extension.id", id)))
	defer span.End()

	r.unloadLocked(ctx, rec)
	return nil
}

// EnableExtension enables an extension. A disabled extension whose code is
// still held is reactivated; otherwise it is loaded.
func (r *Registry) EnableExtension(ctx context.Context, id string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	rec := r.lookup(id)
	if rec == nil {
		return fmt.Errorf("extension %q: %w", id, ErrExtensionNotFound)
	}

	ctx, span := r.tracer.Start(ctx, "extension.enable",
		trace.WithAttributes(attribute.String("extension.id", id)))
	defer span.End()

	r.persistEnabled(id, true)
	r.update(rec, func(e *Extension) { e.Enabled = true })
	r.emit(Event{Type: EventEnabled, ExtensionID: id})

	switch {
	case rec.suspended:
		r.registries.SetOwnerSuspended(id, false)
		r.styles.SetSuspended(id, false)
		rec.suspended = false
		r.update(rec, func(e *Extension) {
			e.Loaded = true
			e.State = StateLoaded
		})
		r.logs.Info(id, "enabled", nil)
	case rec.mod != nil:
		// already running
	default:
		r.loadLocked(ctx, rec)
	}
	return nil
}

// DisableExtension disables an extension. Its registrations and style are
// hidden but kept so that a later enable reactivates them directly.
// Disabling twice has the same effect as disabling once.
func (r *Registry) DisableExtension(ctx context.Context, id string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	rec := r.lookup(id)
	if rec == nil {
		return fmt.Errorf("extension %q: %w", id, ErrExtensionNotFound)
	}

	_, span := r.tracer.Start(ctx, "extension.disable",
		trace.WithAttributes(attribute.String("extension.id", id)))
	defer span.End()

	r.persistEnabled(id, false)
	if rec.mod != nil {
		r.registries.SetOwnerSuspended(id, true)
		r.styles.SetSuspended(id, true)
		rec.suspended = true
	}
	r.update(rec, func(e *Extension) {
		e.Enabled = false
		e.Loaded = false
		e.State = StateDisabled
	})
	r.logs.Info(id, "disabled", nil)
	r.emit(Event{Type: EventDisabled, ExtensionID: id})
	return nil
}

// RemoveExtension unloads an extension and deletes its registrations,
// style, settings entry, installed folder and record.
func (r *Registry) RemoveExtension(ctx context.Context, id string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	ctx, span := r.tracer.Start(ctx, "extension.remove",
		trace.WithAttributes(attribute.String("extension.id", id)))
	defer span.End()

	rec := r.lookup(id)
	if rec == nil {
		return fmt.Errorf("extension %q: %w", id, ErrExtensionNotFound)
	}
	r.unloadLocked(ctx, rec)
	r.registries.RemoveOwner(id)
	r.styles.Remove(id)

	var errs []error
	if err := r.settings.Remove(id); err != nil {
		r.logs.Error(id, "failed to persist extension settings", errDetails(err))
		errs = append(errs, err)
	}
	if err := r.fs.RemoveExtensionFolder(rec.ext.InstallPath); err != nil {
		r.logs.Error(id, "failed to delete extension files", errDetails(err))
		errs = append(errs, err)
	}

	r.mu.Lock()
	delete(r.records, id)
	r.removeFromOrder(id)
	r.mu.Unlock()

	r.logs.Info(id, "removed", map[string]any{"path": rec.ext.InstallPath})
	r.emit(Event{Type: EventRemoved, ExtensionID: id})

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remove")
	}
	return err
}

// Shutdown unloads every extension in reverse load order.
func (r *Registry) Shutdown(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	recs := make([]*record, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		recs = append(recs, r.records[r.order[i]])
	}
	r.mu.RUnlock()

	for _, rec := range recs {
		r.unloadLocked(ctx, rec)
	}
}

// Log appends an entry to the debug console.
func (r *Registry) Log(level logstore.Level, extensionID, message string, details any) logstore.Entry {
	return r.logs.Log(level, extensionID, message, details)
}

// ClearLogs empties the debug console.
func (r *Registry) ClearLogs() {
	r.logs.Clear()
}

// ToggleConsole flips debug console visibility and returns the new value.
func (r *Registry) ToggleConsole() bool {
	return r.logs.ToggleConsole()
}

// Get returns the extension with id.
func (r *Registry) Get(id string) (Extension, bool) {
	rec := r.lookup(id)
	if rec == nil {
		return Extension{}, false
	}
	return r.snapshot(rec), true
}

// List returns every registered extension in registration order.
func (r *Registry) List() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Extension, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyExtension(r.records[id].ext))
	}
	return out
}

// FindByPath returns the extension installed in folder.
func (r *Registry) FindByPath(folder string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if rec := r.records[id]; samePath(rec.ext.InstallPath, folder) {
			return copyExtension(rec.ext), true
		}
	}
	return Extension{}, false
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (r *Registry) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	r.mu.Lock()
	r.handlers = append(r.handlers, handler)
	index := len(r.handlers) - 1
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// nil out instead of removing so later indexes stay valid
		if index < len(r.handlers) {
			r.handlers[index] = nil
		}
	}
}

// Vault returns the vault path.
func (r *Registry) Vault() string { return r.vault }

// Logs returns the log store.
func (r *Registry) Logs() *logstore.Store { return r.logs }

// Registries returns the capability registries.
func (r *Registry) Registries() *capability.Registries { return r.registries }

// Styles returns the style manager.
func (r *Registry) Styles() *capability.StyleManager { return r.styles }

// Stores returns the host stores.
func (r *Registry) Stores() *capability.Stores { return r.stores }

// Settings returns the settings store.
func (r *Registry) Settings() *settings.Store { return r.settings }

// Runtimes returns the sandbox runtimes.
func (r *Registry) Runtimes() *sandbox.Runtimes { return r.runtimes }

// loadLocked validates, evaluates and initializes rec.
func (r *Registry) loadLocked(ctx context.Context, rec *record) {
	id := rec.ext.Manifest.ID
	r.update(rec, func(e *Extension) {
		e.State = StateLoading
		e.Loaded = false
		e.Blocked = false
		e.Err = nil
	})

	entry := rec.ext.Manifest.EntryPoint(rec.ext.InstallPath)
	ev, err := r.runtimes.For(entry)
	if err != nil {
		r.fail(ctx, rec, err)
		return
	}

	code, err := r.fs.ReadFileText(entry)
	if err != nil {
		r.fail(ctx, rec, fmt.Errorf("read %s: %w", rec.ext.Manifest.Main, err))
		return
	}
	if err := r.validator.Validate(code, ev.Patterns()); err != nil {
		r.fail(ctx, rec, err)
		return
	}

	if err := r.policy.Err(); err != nil {
		r.update(rec, func(e *Extension) {
			e.State = StatePolicyBlocked
			e.Blocked = true
		})
		r.logs.Warn(id, "extension blocked by host policy", map[string]any{"reason": err.Error()})
		trace.SpanFromContext(ctx).AddEvent("policy-blocked")
		r.emit(Event{Type: EventBlocked, ExtensionID: id, Error: ErrPolicyBlocked})
		return
	}

	api := capability.NewAPI(id, r.host(), r.dataStore(id))
	mod, err := ev.Evaluate(ctx, sandbox.Source{ExtensionID: id, Path: entry, Code: code}, api)
	if err != nil {
		r.teardown(id, api, nil)
		r.fail(ctx, rec, &EvaluationError{ID: id, Phase: PhaseEvaluate, Err: err})
		return
	}

	if mod.HasInitialize() {
		ictx, cancel := context.WithTimeout(ctx, r.limits.InitializeTimeout)
		err := mod.Initialize(ictx)
		cancel()
		if err != nil {
			r.teardown(id, api, mod)
			r.fail(ctx, rec, &EvaluationError{ID: id, Phase: PhaseInitialize, Err: err})
			return
		}
	}

	rec.api = api
	rec.mod = mod
	rec.suspended = false
	r.update(rec, func(e *Extension) {
		e.State = StateLoaded
		e.Loaded = true
	})
	r.logs.Info(id, "loaded", map[string]any{
		"version": rec.ext.Manifest.Version,
		"runtime": ev.Name(),
	})
	r.emit(Event{Type: EventLoaded, ExtensionID: id})
}

// unloadLocked tears down the running code of rec, if any.
func (r *Registry) unloadLocked(ctx context.Context, rec *record) {
	id := rec.ext.Manifest.ID
	if rec.mod == nil {
		r.teardown(id, nil, nil)
		return
	}

	if rec.mod.HasCleanup() {
		if err := rec.mod.Cleanup(ctx); err != nil {
			cerr := &EvaluationError{ID: id, Phase: PhaseCleanup, Err: err}
			r.logs.Warn(id, cerr.Error(), nil)
		}
	}
	r.teardown(id, rec.api, rec.mod)
	rec.api = nil
	rec.mod = nil
	rec.suspended = false

	r.update(rec, func(e *Extension) {
		e.Loaded = false
		if e.State == StateLoaded {
			e.State = StateRegistered
		}
	})
	r.logs.Info(id, "unloaded", nil)
	r.emit(Event{Type: EventUnloaded, ExtensionID: id})
}

// teardown drops everything owned by id.
func (r *Registry) teardown(id string, api *capability.API, mod sandbox.Module) {
	if api != nil {
		api.Dispose()
	}
	if mod != nil {
		mod.Close()
	}
	r.registries.RemoveOwner(id)
	r.styles.Remove(id)
}

func (r *Registry) fail(ctx context.Context, rec *record, err error) {
	id := rec.ext.Manifest.ID
	r.update(rec, func(e *Extension) {
		e.State = StateError
		e.Loaded = false
		e.Err = err
	})
	r.logs.Error(id, "failed to load: "+err.Error(), nil)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "load")
	r.emit(Event{Type: EventError, ExtensionID: id, Error: err})
}

// persistEnabled writes the flag through. A write failure is logged and the
// in-memory value is kept.
func (r *Registry) persistEnabled(id string, enabled bool) {
	if err := r.settings.SetEnabled(id, enabled); err != nil {
		r.logs.Error(id, "failed to persist extension settings", errDetails(err))
	}
}

func (r *Registry) host() capability.Host {
	return capability.Host{
		Registries: r.registries,
		Styles:     r.styles,
		Stores:     r.stores,
		State:      r.state,
		Logs:       r.logs,
	}
}

// dataStore returns the storage of id, or nil when storage is unavailable.
func (r *Registry) dataStore(id string) capability.DataStore {
	if r.storage == nil {
		return nil
	}
	scoped, err := r.storage.For(id)
	if err != nil {
		r.logs.Warn(id, "extension storage unavailable", errDetails(err))
		return nil
	}
	return scoped
}

func (r *Registry) lookup(id string) *record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[id]
}

func (r *Registry) put(rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := rec.ext.Manifest.ID
	if _, exists := r.records[id]; !exists {
		r.order = append(r.order, id)
	}
	r.records[id] = rec
}

func (r *Registry) update(rec *record, fn func(e *Extension)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&rec.ext)
}

func (r *Registry) snapshot(rec *record) Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyExtension(rec.ext)
}

// removeFromOrder removes id from the load order.
// Must be called with mu held.
func (r *Registry) removeFromOrder(id string) {
	for i, n := range r.order {
		if n == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// emit sends an event to all handlers.
// Handlers are called outside any locks and panics are recovered.
func (r *Registry) emit(event Event) {
	r.mu.RLock()
	handlers := make([]EventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				_ = recover()
			}()
			handler(event)
		}()
	}
}

func copyExtension(e Extension) Extension {
	e.Manifest.Dependencies = slices.Clone(e.Manifest.Dependencies)
	return e
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func errDetails(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
