package node

// pendingTable correlates outstanding operations with their waiters.
// It is owned by the event loop and never shared.
type pendingTable[K comparable, V any] struct {
	entries map[K]V
}

func newPendingTable[K comparable, V any]() *pendingTable[K, V] {
	return &pendingTable[K, V]{entries: make(map[K]V)}
}

// insert adds a waiter; an id that is already outstanding is rejected
func (t *pendingTable[K, V]) insert(id K, waiter V) error {
	if _, exists := t.entries[id]; exists {
		return errDuplicateEntry
	}
	t.entries[id] = waiter
	return nil
}

// take removes and returns the waiter for id
func (t *pendingTable[K, V]) take(id K) (V, bool) {
	waiter, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return waiter, ok
}

func (t *pendingTable[K, V]) len() int {
	return len(t.entries)
}
