package connection

// listener is one registered callback.
type listener struct {
	id uint64
	fn Handler
}

// listenerTable maps key → event name → callbacks in registration order.
// Not safe for concurrent use; the manager guards it with its mutex.
type listenerTable struct {
	next  uint64
	byKey map[string]map[string][]listener
}

func newListenerTable() *listenerTable {
	return &listenerTable{byKey: make(map[string]map[string][]listener)}
}

// add registers fn and returns its id.
func (t *listenerTable) add(key, event string, fn Handler) uint64 {
	t.next++

	events, ok := t.byKey[key]
	if !ok {
		events = make(map[string][]listener)
		t.byKey[key] = events
	}
	events[event] = append(events[event], listener{id: t.next, fn: fn})

	return t.next
}

// remove drops the listener with the given id. Unknown ids are ignored.
// The slice is rebuilt so snapshots handed out earlier stay intact.
func (t *listenerTable) remove(key, event string, id uint64) {
	events, ok := t.byKey[key]
	if !ok {
		return
	}

	current := events[event]
	kept := make([]listener, 0, len(current))
	for _, l := range current {
		if l.id != id {
			kept = append(kept, l)
		}
	}

	switch {
	case len(kept) == len(current):
		return
	case len(kept) == 0:
		delete(events, event)
	default:
		events[event] = kept
	}

	if len(events) == 0 {
		delete(t.byKey, key)
	}
}

// snapshot copies the callbacks registered for (key, event).
func (t *listenerTable) snapshot(key, event string) []Handler {
	current := t.byKey[key][event]
	if len(current) == 0 {
		return nil
	}

	out := make([]Handler, len(current))
	for i, l := range current {
		out[i] = l.fn
	}
	return out
}

func (t *listenerTable) removeKey(key string) {
	delete(t.byKey, key)
}

func (t *listenerTable) clear() {
	t.byKey = make(map[string]map[string][]listener)
}

// count returns the number of callbacks across all keys.
func (t *listenerTable) count() int {
	n := 0
	for _, events := range t.byKey {
		for _, ls := range events {
			n += len(ls)
		}
	}
	return n
}
