package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Registries is the set of shared capability registries. It is built once
// by the host and injected into the orchestrator and every API.
type Registries struct {
	Commands       *Registry[Command]
	Hooks          *Registry[Hook]
	Filters        *Registry[Filter]
	Slots          *Registry[Slot]
	ContextMenu    *Registry[ContextMenuItem]
	MenuItems      *Registry[MenuItem]
	MenuCategories *Registry[MenuCategory]
}

// NewRegistries creates empty registries.
func NewRegistries() *Registries {
	return &Registries{
		Commands:       NewRegistry[Command](),
		Hooks:          NewRegistry[Hook](),
		Filters:        NewRegistry[Filter](),
		Slots:          NewRegistry[Slot](),
		ContextMenu:    NewRegistry[ContextMenuItem](),
		MenuItems:      NewRegistry[MenuItem](),
		MenuCategories: NewRegistry[MenuCategory](),
	}
}

// RemoveOwner deletes every registration of owner across all registries
// and returns the number removed.
func (r *Registries) RemoveOwner(owner string) int {
	return r.Commands.UnregisterOwner(owner) +
		r.Hooks.UnregisterOwner(owner) +
		r.Filters.UnregisterOwner(owner) +
		r.Slots.UnregisterOwner(owner) +
		r.ContextMenu.UnregisterOwner(owner) +
		r.MenuItems.UnregisterOwner(owner) +
		r.MenuCategories.UnregisterOwner(owner)
}

// SetOwnerSuspended hides or reveals every registration of owner.
func (r *Registries) SetOwnerSuspended(owner string, suspended bool) {
	r.Commands.SetOwnerSuspended(owner, suspended)
	r.Hooks.SetOwnerSuspended(owner, suspended)
	r.Filters.SetOwnerSuspended(owner, suspended)
	r.Slots.SetOwnerSuspended(owner, suspended)
	r.ContextMenu.SetOwnerSuspended(owner, suspended)
	r.MenuItems.SetOwnerSuspended(owner, suspended)
	r.MenuCategories.SetOwnerSuspended(owner, suspended)
}

// OwnedCount returns the number of registrations of owner, suspended or
// not, across all registries.
func (r *Registries) OwnedCount(owner string) int {
	return len(r.Commands.Owned(owner)) +
		len(r.Hooks.Owned(owner)) +
		len(r.Filters.Owned(owner)) +
		len(r.Slots.Owned(owner)) +
		len(r.ContextMenu.Owned(owner)) +
		len(r.MenuItems.Owned(owner)) +
		len(r.MenuCategories.Owned(owner))
}

// ExecuteCommand runs a command by qualified id.
func (r *Registries) ExecuteCommand(ctx context.Context, qid string, args ...any) (any, error) {
	reg, ok := r.Commands.Get(qid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, qid)
	}
	return Invoke(ctx, reg.Value.Execute, args...)
}

// RunHooks calls every hook of hookType in registration order. A failing
// hook does not stop the others; all failures are joined.
func (r *Registries) RunHooks(ctx context.Context, hookType string, args ...any) error {
	var errs []error
	for _, reg := range r.Hooks.List(hookType) {
		if _, err := Invoke(ctx, reg.Value.Callback, args...); err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", reg.QualifiedID, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyFilters threads value through every filter of filterType in
// registration order. A failing filter is skipped and the value it was
// given is passed on.
func (r *Registries) ApplyFilters(ctx context.Context, filterType string, value any) (any, error) {
	var errs []error
	for _, reg := range r.Filters.List(filterType) {
		out, err := Invoke(ctx, reg.Value.Apply, value)
		if err != nil {
			errs = append(errs, fmt.Errorf("filter %s: %w", reg.QualifiedID, err))
			continue
		}
		value = out
	}
	return value, errors.Join(errs...)
}

// SlotEntries returns the components registered for a slot, highest priority
// first.
func (r *Registries) SlotEntries(slot string) []Registration[Slot] {
	out := r.Slots.List(slot)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Value.Priority > out[j].Value.Priority
	})
	return out
}

// ContextMenuItems returns the items of menuType visible for target,
// highest priority first. An item whose When callback fails is hidden.
func (r *Registries) ContextMenuItems(ctx context.Context, menuType string, target any) []Registration[ContextMenuItem] {
	var out []Registration[ContextMenuItem]
	for _, reg := range r.ContextMenu.List(menuType) {
		if reg.Value.When != nil {
			ok, err := Invoke(ctx, reg.Value.When, target)
			if err != nil || !truthy(ok) {
				continue
			}
		}
		out = append(out, reg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Value.Priority > out[j].Value.Priority
	})
	return out
}

// MenuSection is one category of the menu bar with its items.
type MenuSection struct {
	// ID is the category id items were registered under.
	ID       string
	Label    string
	Priority int
	Items    []Registration[MenuItem]
}

// MenuBar assembles the menu bar. Registered categories come first by
// priority; items registered under a category nobody declared form
// trailing sections labelled with the category id.
func (r *Registries) MenuBar() []MenuSection {
	byID := make(map[string]*MenuSection)
	var sections []*MenuSection

	for _, reg := range r.MenuCategories.List("") {
		s := &MenuSection{ID: reg.QualifiedID, Label: reg.Value.Label, Priority: reg.Value.Priority}
		byID[reg.QualifiedID] = s
		sections = append(sections, s)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Priority > sections[j].Priority
	})

	var orphans []*MenuSection
	for _, reg := range r.MenuItems.List("") {
		s, ok := byID[reg.Group]
		if !ok {
			s = &MenuSection{ID: reg.Group, Label: reg.Group}
			byID[reg.Group] = s
			orphans = append(orphans, s)
		}
		s.Items = append(s.Items, reg)
	}
	sort.SliceStable(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })

	out := make([]MenuSection, 0, len(sections)+len(orphans))
	for _, s := range append(sections, orphans...) {
		sort.SliceStable(s.Items, func(i, j int) bool {
			return s.Items[i].Value.Priority > s.Items[j].Value.Priority
		})
		out = append(out, *s)
	}
	return out
}

// Invoke calls cb, converting a panic into an error wrapping
// ErrCallbackPanic.
func Invoke(ctx context.Context, cb Callback, args ...any) (result any, err error) {
	if cb == nil {
		return nil, ErrNilCallback
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
		}
	}()
	return cb(ctx, args...)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
