package capability

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dshills/kairo/internal/extension/logstore"
)

// DataStore is the per-extension key/value storage exposed as api.storage.
// Values are JSON documents.
type DataStore interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Delete(key string) error
	List() ([]string, error)
}

// Host bundles the shared services an API writes to.
type Host struct {
	Registries *Registries
	Styles     *StyleManager
	Stores     *Stores
	State      StateProvider
	Logs       *logstore.Store
}

// API is the capability surface handed to one extension. Every
// registration is namespaced with the extension id.
type API struct {
	id   string
	host Host
	data DataStore

	mu       sync.Mutex
	hookSeq  int
	unsubs   map[int]func()
	unsubSeq int
	disposed bool
}

// NewAPI creates the API of extension id. data may be nil when the host
// offers no storage.
func NewAPI(id string, host Host, data DataStore) *API {
	if host.Registries == nil {
		host.Registries = NewRegistries()
	}
	if host.Styles == nil {
		host.Styles = NewStyleManager(nil)
	}
	if host.Stores == nil {
		host.Stores = NewStores()
	}
	if host.Logs == nil {
		host.Logs = logstore.New(0)
	}
	return &API{
		id:     id,
		host:   host,
		data:   data,
		unsubs: make(map[int]func()),
	}
}

// ID returns the extension id.
func (a *API) ID() string {
	return a.id
}

func (a *API) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return fmt.Errorf("%s: %w", a.id, ErrDisposed)
	}
	return nil
}

// RegisterCommand registers cmd and returns its qualified id.
func (a *API) RegisterCommand(cmd Command) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	if cmd.Execute == nil {
		return "", fmt.Errorf("command %q: %w", cmd.ID, ErrNilCallback)
	}
	return a.host.Registries.Commands.Register(a.id, cmd.ID, cmd.Category, cmd)
}

// UnregisterCommand removes the command with the local id.
func (a *API) UnregisterCommand(localID string) bool {
	return a.host.Registries.Commands.Unregister(QualifiedID(a.id, localID))
}

// RegisterHook adds cb to the hooks of hookType. The returned function
// removes this hook only.
func (a *API) RegisterHook(hookType string, cb Callback) (func(), error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if hookType == "" {
		return nil, ErrEmptyID
	}
	if cb == nil {
		return nil, fmt.Errorf("hook %q: %w", hookType, ErrNilCallback)
	}
	qid, err := a.host.Registries.Hooks.Register(a.id, a.nextLocal(hookType), hookType, Hook{Type: hookType, Callback: cb})
	if err != nil {
		return nil, err
	}
	return func() { a.host.Registries.Hooks.Unregister(qid) }, nil
}

// UnregisterHook removes every hook of hookType registered by this
// extension.
func (a *API) UnregisterHook(hookType string) int {
	return a.host.Registries.Hooks.UnregisterWhere(a.id, func(r Registration[Hook]) bool {
		return r.Group == hookType
	})
}

// RegisterFilter adds fn to the filters of filterType. The returned
// function removes this filter only.
func (a *API) RegisterFilter(filterType string, fn Callback) (func(), error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if filterType == "" {
		return nil, ErrEmptyID
	}
	if fn == nil {
		return nil, fmt.Errorf("filter %q: %w", filterType, ErrNilCallback)
	}
	qid, err := a.host.Registries.Filters.Register(a.id, a.nextLocal(filterType), filterType, Filter{Type: filterType, Apply: fn})
	if err != nil {
		return nil, err
	}
	return func() { a.host.Registries.Filters.Unregister(qid) }, nil
}

// UnregisterFilter removes every filter of filterType registered by this
// extension.
func (a *API) UnregisterFilter(filterType string) int {
	return a.host.Registries.Filters.UnregisterWhere(a.id, func(r Registration[Filter]) bool {
		return r.Group == filterType
	})
}

// RegisterSlot places a component into slot.
func (a *API) RegisterSlot(slot string, s Slot) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	if slot == "" {
		return "", ErrEmptyID
	}
	return a.host.Registries.Slots.Register(a.id, s.ID, slot, s)
}

// UnregisterSlot removes the slot component with the local id.
func (a *API) UnregisterSlot(localID string) bool {
	return a.host.Registries.Slots.Unregister(QualifiedID(a.id, localID))
}

// RegisterContextMenuItem adds item to the context menu of menuType.
func (a *API) RegisterContextMenuItem(menuType string, item ContextMenuItem) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	if menuType == "" {
		return "", ErrEmptyID
	}
	if item.Execute == nil && !item.Divider {
		return "", fmt.Errorf("context menu item %q: %w", item.ID, ErrNilCallback)
	}
	return a.host.Registries.ContextMenu.Register(a.id, item.ID, menuType, item)
}

// UnregisterContextMenuItem removes the context-menu item with the local id.
func (a *API) UnregisterContextMenuItem(localID string) bool {
	return a.host.Registries.ContextMenu.Unregister(QualifiedID(a.id, localID))
}

// RegisterMenuItem adds item to a menu-bar category. category is a local
// id when the extension registered a category of that id, otherwise the id
// of a built-in or foreign category.
func (a *API) RegisterMenuItem(category string, item MenuItem) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	if category == "" {
		return "", ErrEmptyID
	}
	if item.Execute == nil && !item.Divider {
		return "", fmt.Errorf("menu item %q: %w", item.ID, ErrNilCallback)
	}
	return a.host.Registries.MenuItems.Register(a.id, item.ID, a.menuCategory(category), item)
}

func (a *API) menuCategory(category string) string {
	qid := QualifiedID(a.id, category)
	for _, c := range a.host.Registries.MenuCategories.Owned(a.id) {
		if c.QualifiedID == qid {
			return qid
		}
	}
	return category
}

// UnregisterMenuItem removes the menu item with the local id.
func (a *API) UnregisterMenuItem(localID string) bool {
	return a.host.Registries.MenuItems.Unregister(QualifiedID(a.id, localID))
}

// RegisterMenuCategory adds a menu-bar category.
func (a *API) RegisterMenuCategory(cat MenuCategory) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.host.Registries.MenuCategories.Register(a.id, cat.ID, "", cat)
}

// UnregisterMenuCategory removes the category with the local id.
func (a *API) UnregisterMenuCategory(localID string) bool {
	return a.host.Registries.MenuCategories.Unregister(QualifiedID(a.id, localID))
}

// Log records a message attributed to the extension.
func (a *API) Log(level logstore.Level, msg string, details any) logstore.Entry {
	return a.host.Logs.Log(level, a.id, msg, details)
}

// GetState returns a copy of the host state. Changes to the returned value
// never reach the host.
func (a *API) GetState() (map[string]any, error) {
	var st State
	if a.host.State != nil {
		st = a.host.State.State()
	}
	snap, err := Snapshot(st)
	if err != nil {
		return nil, err
	}
	m, _ := snap.(map[string]any)
	return m, nil
}

// Subscribe registers fn for changes of a host store. The subscription
// ends when the returned function is called or the API is disposed.
func (a *API) Subscribe(store string, fn Listener) (func(), error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	cancel, err := a.host.Stores.Subscribe(store, fn)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.unsubSeq++
	key := a.unsubSeq
	a.unsubs[key] = cancel
	a.mu.Unlock()

	return func() {
		cancel()
		a.mu.Lock()
		delete(a.unsubs, key)
		a.mu.Unlock()
	}, nil
}

// AddStyles installs css as the extension's style block, replacing any
// previous one.
func (a *API) AddStyles(css string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.host.Styles.Set(a.id, css)
	return nil
}

// RemoveStyles removes the extension's style block.
func (a *API) RemoveStyles() {
	a.host.Styles.Remove(a.id)
}

// Storage returns the extension's data store.
func (a *API) Storage() (DataStore, error) {
	if a.data == nil {
		return nil, ErrNoStorage
	}
	return a.data, nil
}

// Dispose cancels the extension's store subscriptions and rejects further
// registrations. Registrations already made are left to the owner of the
// registries.
func (a *API) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	unsubs := a.unsubs
	a.unsubs = make(map[int]func())
	a.mu.Unlock()

	for _, cancel := range unsubs {
		cancel()
	}
}

func (a *API) nextLocal(group string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hookSeq++
	return group + "#" + strconv.Itoa(a.hookSeq)
}
