package economy

import (
	"sync"
	"sync/atomic"
)

// entry serializes mutations of one keyed entity.
type entry[V any] struct {
	mu            sync.Mutex
	loaded        bool
	evicted       bool
	value         V
	pendingWrites atomic.Int64

	// generation counts queued writes; durable is the newest generation a store accepted.
	generation int64
	durable    atomic.Int64
}

// beginWrite registers a queued write; the caller holds mu.
func (current *entry[V]) beginWrite() int64 {
	current.generation++
	current.pendingWrites.Add(1)
	return current.generation
}

// finishWrite settles a write started at generation.
func (current *entry[V]) finishWrite(generation int64, err error) {
	if err == nil {
		for {
			durable := current.durable.Load()
			if durable >= generation || current.durable.CompareAndSwap(durable, generation) {
				break
			}
		}
	}
	current.pendingWrites.Add(-1)
}

// unsaved reports a settled failure no later write has superseded; the caller holds mu.
func (current *entry[V]) unsaved() bool {
	return current.pendingWrites.Load() == 0 && current.durable.Load() < current.generation
}

// entryTable hands out per-key entries; its own mutex guards only the map.
type entryTable[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
}

func newEntryTable[V any]() *entryTable[V] {
	return &entryTable[V]{entries: make(map[string]*entry[V])}
}

// acquire returns the locked entry for key, creating it when absent.
func (table *entryTable[V]) acquire(key string) *entry[V] {
	for {
		table.mu.Lock()
		current, found := table.entries[key]
		if !found {
			current = &entry[V]{}
			table.entries[key] = current
		}
		table.mu.Unlock()

		current.mu.Lock()
		if !current.evicted {
			return current
		}
		current.mu.Unlock()
	}
}

// acquirePair locks two distinct keys in key order.
func (table *entryTable[V]) acquirePair(first string, second string) (*entry[V], *entry[V]) {
	if first < second {
		firstEntry := table.acquire(first)
		return firstEntry, table.acquire(second)
	}
	secondEntry := table.acquire(second)
	return table.acquire(first), secondEntry
}

// lookup returns the locked entry for key without creating one.
func (table *entryTable[V]) lookup(key string) (*entry[V], bool) {
	table.mu.Lock()
	current, found := table.entries[key]
	table.mu.Unlock()
	if !found {
		return nil, false
	}
	current.mu.Lock()
	if current.evicted {
		current.mu.Unlock()
		return nil, false
	}
	return current, true
}

// evict drops key when it has no outstanding or failed writes.
func (table *entryTable[V]) evict(key string) bool {
	table.mu.Lock()
	current, found := table.entries[key]
	table.mu.Unlock()
	if !found {
		return true
	}
	current.mu.Lock()
	defer current.mu.Unlock()
	if current.evicted {
		return true
	}
	if current.pendingWrites.Load() > 0 || current.durable.Load() < current.generation {
		return false
	}
	current.evicted = true
	table.mu.Lock()
	if table.entries[key] == current {
		delete(table.entries, key)
	}
	table.mu.Unlock()
	return true
}

func (table *entryTable[V]) len() int {
	table.mu.Lock()
	defer table.mu.Unlock()
	return len(table.entries)
}
