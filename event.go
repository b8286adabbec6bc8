package zk

import (
	"sync"
	"sync/atomic"
)

// eventDispatcher serially delivers state-change and node events to
// registered handlers in submission order (spec.md §4.E, §5 "Ordering
// guarantees"). It runs on its own goroutine, decoupled from the reader
// loop by an unbounded queue so a slow handler never stalls frame
// processing.
type eventDispatcher struct {
	watches *watchRegistry
	logger  Logger

	defaultWatcher atomic.Value // stores func(Event)

	mu     sync.Mutex
	queue  []queuedEvent
	notify chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

type queuedEvent struct {
	event Event
	node  bool // true for a server-originated node event, false for a state event
}

func newEventDispatcher(watches *watchRegistry, logger Logger) *eventDispatcher {
	d := &eventDispatcher{
		watches: watches,
		logger:  logger,
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	d.defaultWatcher.Store(func(Event) {})
	go d.run()
	return d
}

// setDefaultWatcher replaces the mutable default-watcher slot
// (spec.md §9 "Cyclic references"). Safe to call concurrently with
// dispatch.
func (d *eventDispatcher) setDefaultWatcher(fn func(Event)) {
	if fn == nil {
		fn = func(Event) {}
	}
	d.defaultWatcher.Store(fn)
}

func (d *eventDispatcher) enqueue(e queuedEvent) {
	d.mu.Lock()
	d.queue = append(d.queue, e)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// pushState enqueues a synthetic state-change event
// (spec.md §4.D "emit SyncConnected" etc.).
func (d *eventDispatcher) pushState(state State) {
	d.enqueue(queuedEvent{event: Event{Type: EventNone, State: state}, node: false})
}

// pushNode enqueues a server-originated watch notification, already
// stripped of its chroot prefix by the caller.
func (d *eventDispatcher) pushNode(ev Event) {
	d.enqueue(queuedEvent{event: ev, node: true})
}

func (d *eventDispatcher) run() {
	defer close(d.doneCh)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.notify:
				continue
			case <-d.stopCh:
				return
			}
		}
		item := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(item)
	}
}

func (d *eventDispatcher) deliver(item queuedEvent) {
	defaultFn := d.defaultWatcher.Load().(func(Event))

	if !item.node {
		defaultFn(item.event)
		return
	}

	handlers := d.watches.consume(item.event.Path, item.event.Type)
	if len(handlers) == 0 {
		// Glossary: "default watcher... receives... any node events with
		// no specific handler."
		defaultFn(item.event)
		return
	}
	for _, h := range handlers {
		h(item.event)
	}
}

// stop halts the dispatcher worker. Events already queued are delivered
// before the worker exits; events pushed after stop returns are never
// delivered.
func (d *eventDispatcher) stop() {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	<-d.doneCh
}
