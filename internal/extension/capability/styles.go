package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// StyleSink receives the combined stylesheet whenever it changes.
type StyleSink interface {
	StylesChanged(css string)
}

// StyleBlock is the style block owned by one extension.
type StyleBlock struct {
	ExtensionID string
	CSS         string
	Suspended   bool
	seq         uint64
}

// StyleManager keeps at most one style block per extension.
type StyleManager struct {
	mu     sync.Mutex
	blocks map[string]*StyleBlock
	seq    uint64
	sink   StyleSink
}

// NewStyleManager creates a manager. sink may be nil.
func NewStyleManager(sink StyleSink) *StyleManager {
	return &StyleManager{
		blocks: make(map[string]*StyleBlock),
		sink:   sink,
	}
}

// Set installs css as the block of id, replacing any previous block.
// Setting the same css again does not notify the sink.
func (m *StyleManager) Set(id, css string) {
	m.mu.Lock()
	b, ok := m.blocks[id]
	if ok && b.CSS == css {
		m.mu.Unlock()
		return
	}
	if !ok {
		m.seq++
		b = &StyleBlock{ExtensionID: id, seq: m.seq}
		m.blocks[id] = b
	}
	b.CSS = css
	visible := !b.Suspended
	m.mu.Unlock()

	if visible {
		m.notify()
	}
}

// Remove deletes the block of id. It reports whether one existed.
func (m *StyleManager) Remove(id string) bool {
	m.mu.Lock()
	b, ok := m.blocks[id]
	if ok {
		delete(m.blocks, id)
	}
	m.mu.Unlock()

	if ok && !b.Suspended {
		m.notify()
	}
	return ok
}

// SetSuspended hides or reveals the block of id without discarding it.
func (m *StyleManager) SetSuspended(id string, suspended bool) {
	m.mu.Lock()
	b, ok := m.blocks[id]
	changed := ok && b.Suspended != suspended
	if changed {
		b.Suspended = suspended
	}
	m.mu.Unlock()

	if changed {
		m.notify()
	}
}

// Get returns the block of id.
func (m *StyleManager) Get(id string) (StyleBlock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return StyleBlock{}, false
	}
	return *b, true
}

// Len returns the number of blocks, including suspended ones.
func (m *StyleManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

// Blocks returns the visible blocks in installation order.
func (m *StyleManager) Blocks() []StyleBlock {
	m.mu.Lock()
	out := make([]StyleBlock, 0, len(m.blocks))
	for _, b := range m.blocks {
		if !b.Suspended {
			out = append(out, *b)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// CSS returns the combined stylesheet of the visible blocks, each preceded
// by a marker naming its owner.
func (m *StyleManager) CSS() string {
	var b strings.Builder
	for _, block := range m.Blocks() {
		fmt.Fprintf(&b, "/* [data-extension=%q] */\n", block.ExtensionID)
		b.WriteString(block.CSS)
		if !strings.HasSuffix(block.CSS, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m *StyleManager) notify() {
	if m.sink != nil {
		m.sink.StylesChanged(m.CSS())
	}
}
