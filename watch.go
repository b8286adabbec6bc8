package zk

import "sync"

// watchSet holds the one-shot handlers registered for a single path,
// separated by kind (spec.md §3 "Watch registration").
type watchSet struct {
	data  []func(Event)
	exist []func(Event)
	child []func(Event)
}

func (w *watchSet) empty() bool {
	return len(w.data) == 0 && len(w.exist) == 0 && len(w.child) == 0
}

// watchRegistry is the façade-owned table of pending watches, kept in
// three maps keyed by client_path (spec.md §3, §9 "Cyclic references").
// Neither the façade nor the session engine owns the other; both hold a
// reference to this value, which lives exactly as long as the Client.
type watchRegistry struct {
	mu   sync.Mutex
	sets map[string]*watchSet
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{sets: make(map[string]*watchSet)}
}

// install adds handler to the map selected by kind for clientPath. Called
// only after the triggering operation has succeeded (with the EXIST
// exception of also installing on NoNode), per spec.md §3 invariant.
func (wr *watchRegistry) install(clientPath string, kind watchKind, handler func(Event)) {
	if handler == nil {
		return
	}
	wr.mu.Lock()
	defer wr.mu.Unlock()
	set, ok := wr.sets[clientPath]
	if !ok {
		set = &watchSet{}
		wr.sets[clientPath] = set
	}
	switch kind {
	case watchData:
		set.data = append(set.data, handler)
	case watchExist:
		set.exist = append(set.exist, handler)
	case watchChild:
		set.child = append(set.child, handler)
	}
}

// consume removes and returns the handlers a node event of the given type
// targets at path, per spec.md §4.E's type-to-watch-set table:
//
//	NodeCreated / NodeDataChanged -> data ∪ exist
//	NodeDeleted                   -> data ∪ exist ∪ child
//	NodeChildrenChanged           -> child
//
// Consuming removes the entries so each handler fires at most once.
func (wr *watchRegistry) consume(path string, eventType EventType) []func(Event) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	set, ok := wr.sets[path]
	if !ok {
		return nil
	}

	var handlers []func(Event)
	switch eventType {
	case EventNodeCreated, EventNodeDataChanged:
		handlers = append(handlers, set.data...)
		handlers = append(handlers, set.exist...)
		set.data, set.exist = nil, nil
	case EventNodeDeleted:
		handlers = append(handlers, set.data...)
		handlers = append(handlers, set.exist...)
		handlers = append(handlers, set.child...)
		set.data, set.exist, set.child = nil, nil, nil
	case EventNodeChildrenChanged:
		handlers = append(handlers, set.child...)
		set.child = nil
	}

	if set.empty() {
		delete(wr.sets, path)
	}
	return handlers
}

// drain removes every registered watch and returns (path, handlers) pairs
// so the dispatcher can notify them of session loss (spec.md §4.D
// "After Expired, all watches are considered lost").
func (wr *watchRegistry) drain() map[string][]func(Event) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	out := make(map[string][]func(Event), len(wr.sets))
	for path, set := range wr.sets {
		var handlers []func(Event)
		handlers = append(handlers, set.data...)
		handlers = append(handlers, set.exist...)
		handlers = append(handlers, set.child...)
		if len(handlers) > 0 {
			out[path] = handlers
		}
	}
	wr.sets = make(map[string]*watchSet)
	return out
}

// snapshot returns the current set of watched paths grouped by kind, for
// resubmission to the server after a reconnect that preserved the session
// (SPEC_FULL.md §12 "SetWatches replay on reconnect").
func (wr *watchRegistry) snapshot() (data, exist, child []string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	for path, set := range wr.sets {
		if len(set.data) > 0 {
			data = append(data, path)
		}
		if len(set.exist) > 0 {
			exist = append(exist, path)
		}
		if len(set.child) > 0 {
			child = append(child, path)
		}
	}
	return
}
