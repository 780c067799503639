package runtime

import (
	"slices"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Symbol is an interned name.
type Symbol uint32

// Symbols interns names. The zero Symbol is never assigned.
type Symbols struct {
	ids   map[string]Symbol
	names []string
	mu    sync.RWMutex
}

// NewSymbols creates an empty symbol table.
func NewSymbols() *Symbols {
	return &Symbols{ids: make(map[string]Symbol), names: []string{""}}
}

// Intern returns the symbol for name, assigning one if needed.
func (t *Symbols) Intern(name string) Symbol {
	t.mu.RLock()
	sym, ok := t.ids[name]
	t.mu.RUnlock()
	if ok {
		return sym
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sym, ok := t.ids[name]; ok {
		return sym
	}
	sym = Symbol(len(t.names))
	t.ids[name] = sym
	t.names = append(t.names, name)
	return sym
}

// Lookup returns the symbol for name without interning it.
func (t *Symbols) Lookup(name string) (Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sym, ok := t.ids[name]
	return sym, ok
}

// Name returns the name of sym, or "" for an unknown symbol.
func (t *Symbols) Name(sym Symbol) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(sym) >= len(t.names) {
		return ""
	}
	return t.names[sym]
}

// Len returns the number of interned names.
func (t *Symbols) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names) - 1
}

// LoadedModule is a guest module instantiated during boot or by the host.
type LoadedModule struct {
	Module api.Module
	Name   string
	Path   string
	Symbol Symbol
}

// Modules records loaded guest modules by logical name.
type Modules struct {
	symbols *Symbols
	byName  map[Symbol]*LoadedModule
	order   []Symbol
	mu      sync.RWMutex
}

// NewModules creates an empty registry interning names in symbols.
func NewModules(symbols *Symbols) *Modules {
	return &Modules{symbols: symbols, byName: make(map[Symbol]*LoadedModule)}
}

// Add records m under its name. A later module with the same name replaces
// the earlier entry.
func (r *Modules) Add(m LoadedModule) *LoadedModule {
	m.Symbol = r.symbols.Intern(m.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[m.Symbol]; !ok {
		r.order = append(r.order, m.Symbol)
	}
	r.byName[m.Symbol] = &m
	return &m
}

// Get returns the module loaded under name.
func (r *Modules) Get(name string) (*LoadedModule, bool) {
	sym, ok := r.symbols.Lookup(name)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[sym]
	return m, ok
}

// Names returns module names in load order.
func (r *Modules) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, sym := range r.order {
		out = append(out, r.symbols.Name(sym))
	}
	return out
}

// Features is the list of capabilities a guest can query with provided.
type Features struct {
	symbols *Symbols
	set     map[Symbol]struct{}
	mu      sync.RWMutex
}

// NewFeatures creates an empty feature list.
func NewFeatures(symbols *Symbols) *Features {
	return &Features{symbols: symbols, set: make(map[Symbol]struct{})}
}

// Provide adds name to the list.
func (f *Features) Provide(name string) {
	sym := f.symbols.Intern(name)
	f.mu.Lock()
	f.set[sym] = struct{}{}
	f.mu.Unlock()
}

// Provided reports whether name is in the list.
func (f *Features) Provided(name string) bool {
	sym, ok := f.symbols.Lookup(name)
	if !ok {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok = f.set[sym]
	return ok
}

// List returns the feature names, sorted.
func (f *Features) List() []string {
	f.mu.RLock()
	out := make([]string, 0, len(f.set))
	for sym := range f.set {
		out = append(out, f.symbols.Name(sym))
	}
	f.mu.RUnlock()
	slices.Sort(out)
	return out
}
