package zk

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// completion is what a pendingEntry resolves to: either a decoded
// response or an error.
type completion struct {
	zxid int64
	err  error
}

// watchRegistration is the tagged variant from spec.md §9 "Dynamic
// dispatch / inheritance": a (path, handler, kind) triple. kind picks the
// target map and whether the watch also installs on NoNode.
type watchRegistration struct {
	path    string
	handler func(Event)
	kind    watchKind
}

// pendingEntry is one outstanding request, per spec.md §3 "Pending entry".
type pendingEntry struct {
	xid      int32
	opcode   opCode
	encode   bodyEncoder
	decode   bodyDecoder
	watch    *watchRegistration
	priority bool // auth-info / watch-resubmission requests jump the queue

	done      chan completion
	cancelled int32 // atomic bool; writer checks before/after writing
	wasSent   int32 // atomic bool; set by markWritten, read by cancel
}

func (p *pendingEntry) complete(c completion) {
	select {
	case p.done <- c:
	default:
		// Already completed (e.g. cancelled then raced with a reply);
		// never block the caller that lost the race.
	}
}

func (p *pendingEntry) isCancelled() bool {
	return atomic.LoadInt32(&p.cancelled) == 1
}

// pendingRegistry maps outstanding xids to waiting callers, preserving
// FIFO request order (spec.md §4.C). Exactly one owner goroutine writes
// requests (after takeNext), and exactly one reads replies (via match);
// submit and cancel may be called from any goroutine.
type pendingRegistry struct {
	mu      sync.Mutex
	order   *list.List // of *list.Element wrapping *pendingEntry, oldest-submitted first
	byXid   map[int32]*list.Element
	nextTx  *list.Element // next unwritten entry; advances as the writer takes entries
	nextXid int32

	notify chan struct{} // signaled when an unwritten entry becomes available
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		order:  list.New(),
		byXid:  make(map[int32]*list.Element),
		notify: make(chan struct{}, 1),
	}
}

// resetXid restarts xid assignment at zero; called when a connect response
// carries a different session id than the one we asked to resume
// (spec.md §3 "Xid" — unique per session).
func (r *pendingRegistry) resetXid() {
	atomic.StoreInt32(&r.nextXid, 0)
}

func (r *pendingRegistry) wakeWriter() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// submit assigns the next xid, appends the entry to the outbound queue,
// and registers it in the xid index. priority entries (auth-info backlog,
// watch resubmission, spec.md §4.D) are inserted ahead of ordinary
// requests that haven't been written yet, but never ahead of a request
// that is already in flight.
func (r *pendingRegistry) submit(e *pendingEntry) int32 {
	xid := atomic.AddInt32(&r.nextXid, 1)
	e.xid = xid
	e.done = make(chan completion, 1)

	r.mu.Lock()
	var elem *list.Element
	if e.priority && r.nextTx != nil {
		elem = r.order.InsertBefore(e, r.nextTx)
		r.nextTx = elem
	} else if e.priority && r.nextTx == nil {
		elem = r.order.PushBack(e)
		r.nextTx = elem
	} else {
		elem = r.order.PushBack(e)
		if r.nextTx == nil {
			r.nextTx = elem
		}
	}
	r.byXid[xid] = elem
	r.mu.Unlock()

	r.wakeWriter()
	return xid
}

// notifyChan exposes the wake channel so the writer loop can select on it
// alongside a ping ticker and a stop signal instead of blocking inside
// takeNext (spec.md §4.D "Heartbeats" needs the writer to notice idle time
// even when the queue is empty).
func (r *pendingRegistry) notifyChan() <-chan struct{} {
	return r.notify
}

// tryTakeNext is the non-blocking counterpart to takeNext, used by a writer
// loop that has already woken via notifyChan and wants to drain everything
// currently available before selecting again.
func (r *pendingRegistry) tryTakeNext() (*pendingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nextTx == nil {
		return nil, false
	}
	return r.nextTx.Value.(*pendingEntry), true
}

// takeNext blocks until an unwritten entry is available or stop fires,
// then returns it without advancing the write cursor. The caller (the writer
// goroutine) is solely responsible for actually writing the entry; it
// must call markWritten only after a successful write since a failed
// write must not advance past the entry (the connection is about to be
// torn down and drain will complete it).
func (r *pendingRegistry) takeNext(stop <-chan struct{}) (*pendingEntry, bool) {
	for {
		r.mu.Lock()
		if r.nextTx != nil {
			e := r.nextTx.Value.(*pendingEntry)
			r.mu.Unlock()
			return e, true
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-stop:
			return nil, false
		}
	}
}

// markWritten advances the write cursor past the entry successfully
// written, so the next call to takeNext returns the following one.
func (r *pendingRegistry) markWritten(e *pendingEntry) {
	r.mu.Lock()
	if r.nextTx != nil && r.nextTx.Value.(*pendingEntry) == e {
		r.nextTx = r.nextTx.Next()
	}
	r.mu.Unlock()
	atomic.StoreInt32(&e.wasSent, 1)
}

// match removes and returns the entry for xid if, and only if, it is at
// the front of the outbound queue (spec.md §4.C invariant). Any other
// value is a protocol error that forces reconnection.
func (r *pendingRegistry) match(xid int32) (*pendingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.order.Front()
	if front == nil {
		return nil, newProtocolError("reply with no pending request", nil)
	}
	entry := front.Value.(*pendingEntry)
	if entry.xid != xid {
		return nil, newProtocolError("reply xid out of order", nil)
	}
	r.order.Remove(front)
	delete(r.byXid, xid)
	return entry, nil
}

// cancel marks the pending entry for xid as cancelled and, if it has not
// yet been written to the socket, removes it from the outbound queue
// entirely (spec.md §5 "Cancellation and timeouts"). An entry already on
// the wire is left in place — front-of-queue ordering must be preserved —
// but flagged so its eventual reply is discarded instead of delivered.
// Returns false if the xid is unknown (already completed).
func (r *pendingRegistry) cancel(xid int32) bool {
	r.mu.Lock()
	elem, ok := r.byXid[xid]
	if !ok {
		r.mu.Unlock()
		return false
	}
	entry := elem.Value.(*pendingEntry)
	atomic.StoreInt32(&entry.cancelled, 1)
	removed := false
	if atomic.LoadInt32(&entry.wasSent) == 0 {
		if r.nextTx == elem {
			r.nextTx = elem.Next()
		}
		r.order.Remove(elem)
		delete(r.byXid, xid)
		removed = true
	}
	r.mu.Unlock()
	if removed {
		entry.complete(completion{err: ErrRequestCancelled})
	}
	return true
}

// drain removes every pending entry and completes each with err
// (spec.md §4.C "drain(reason)").
func (r *pendingRegistry) drain(err error) {
	r.mu.Lock()
	var entries []*pendingEntry
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, elem.Value.(*pendingEntry))
	}
	r.order.Init()
	r.byXid = make(map[int32]*list.Element)
	r.nextTx = nil
	r.mu.Unlock()

	for _, e := range entries {
		e.complete(completion{err: err})
	}
}

// len reports the number of entries currently outstanding (awaiting
// write or reply). The writer loop does not consult it; its ping cadence
// comes from a ticker that is reset after every written request.
func (r *pendingRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
