// Package registry tracks live client sessions in insertion order with
// stable indices. Removal tombstones a slot instead of shifting later
// entries, so an index handed out once is never reused.
package registry

import (
	"sync"

	"github.com/user/clustermux/internal/console"
)

// Client is one launched client session as the daemon sees it.
type Client struct {
	// Hostname the client connects to (or is supposed to connect to).
	Hostname string
	// Window is the client's console window handle.
	Window console.WindowHandle
	// Process is the client process handle.
	Process console.ProcessHandle
}

// IndexedClient pairs a live client with its insertion index.
type IndexedClient struct {
	Index  int
	Client Client
}

type entry struct {
	index   int
	client  Client
	deleted bool
}

// Registry is a thread-safe, append-only collection of client slots.
// Every operation takes a single mutex for its duration and never
// blocks while holding it.
type Registry struct {
	mu        sync.Mutex
	entries   []entry
	positions map[int]int // insertion index -> entries position
	nextIndex int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		positions: make(map[int]int),
	}
}

// Insert appends a client and returns its insertion index.
func (r *Registry) Insert(c Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.nextIndex
	r.nextIndex++
	r.entries = append(r.entries, entry{index: index, client: c})
	r.positions[index] = len(r.entries) - 1
	return index
}

// Remove tombstones the slot at the given insertion index. Returns
// whether the index was present.
func (r *Registry) Remove(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(index)
}

func (r *Registry) removeLocked(index int) bool {
	position, ok := r.positions[index]
	if !ok {
		return false
	}
	r.entries[position].deleted = true
	delete(r.positions, index)
	return true
}

// Len returns the number of live (non-tombstoned) clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// Empty reports whether no live clients remain.
func (r *Registry) Empty() bool {
	return r.Len() == 0
}

// Iter returns a snapshot of the live clients in insertion order, each
// paired with its insertion index. The snapshot is safe to range over
// while other goroutines mutate the registry.
func (r *Registry) Iter() []IndexedClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]IndexedClient, 0, len(r.positions))
	for _, e := range r.entries {
		if !e.deleted {
			out = append(out, IndexedClient{Index: e.index, Client: e.client})
		}
	}
	return out
}

// Hostnames returns the hostnames of the live clients in insertion
// order.
func (r *Registry) Hostnames() []string {
	live := r.Iter()
	names := make([]string, len(live))
	for i, ic := range live {
		names[i] = ic.Client.Hostname
	}
	return names
}

// Retain tombstones every live client the predicate rejects. Indices
// are collected first and removed afterwards, keeping the filtering and
// removal phases separate.
func (r *Registry) Retain(keep func(Client) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var drop []int
	for index, position := range r.positions {
		if !keep(r.entries[position].client) {
			drop = append(drop, index)
		}
	}
	for _, index := range drop {
		r.removeLocked(index)
	}
}
