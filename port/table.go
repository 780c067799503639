package port

import (
	"sync"

	"go.uber.org/multierr"
)

// Table tracks every live port so they can be flushed together at exit.
type Table struct {
	index  map[*Port]int
	ports  []*Port
	mu     sync.Mutex
	closed bool
}

// NewTable creates an empty port table.
func NewTable() *Table {
	return &Table{index: make(map[*Port]int)}
}

// Add registers p. It returns false once the table is closed.
func (t *Table) Add(p *Port) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if _, ok := t.index[p]; ok {
		return true
	}
	t.index[p] = len(t.ports)
	t.ports = append(t.ports, p)
	return true
}

// Remove drops p from the table without touching it.
func (t *Table) Remove(p *Port) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[p]
	if !ok {
		return false
	}
	t.ports = append(t.ports[:i], t.ports[i+1:]...)
	delete(t.index, p)
	for j := i; j < len(t.ports); j++ {
		t.index[t.ports[j]] = j
	}
	return true
}

// Len returns the number of registered ports.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ports)
}

// Ports returns the registered ports in registration order.
func (t *Table) Ports() []*Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Port, len(t.ports))
	copy(out, t.ports)
	return out
}

// FlushAll flushes every registered port and returns all flush errors.
func (t *Table) FlushAll() error {
	var err error
	for _, p := range t.Ports() {
		err = multierr.Append(err, p.Flush())
	}
	return err
}

// Reclaim removes p and closes it. Revealed ports are flushed, never closed.
func (t *Table) Reclaim(p *Port) error {
	t.Remove(p)
	return p.Close()
}

// Close reclaims every port and stops accepting new ones.
func (t *Table) Close() error {
	t.mu.Lock()
	t.closed = true
	ports := t.ports
	t.ports = nil
	t.index = make(map[*Port]int)
	t.mu.Unlock()

	var err error
	for _, p := range ports {
		err = multierr.Append(err, p.Close())
	}
	return err
}
