package zk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingRegistryFIFO(t *testing.T) {
	r := newPendingRegistry()

	e1 := &pendingEntry{opcode: opGetData}
	e2 := &pendingEntry{opcode: opGetData}
	x1 := r.submit(e1)
	x2 := r.submit(e2)
	require.Equal(t, x1+1, x2)

	taken, ok := r.takeNext(nil)
	require.True(t, ok)
	require.Same(t, e1, taken)
	r.markWritten(taken)

	taken2, ok := r.takeNext(nil)
	require.True(t, ok)
	require.Same(t, e2, taken2)
	r.markWritten(taken2)

	// Replies must arrive in submission order.
	_, err := r.match(x2)
	require.Error(t, err, "reply out of order must be rejected")

	got1, err := r.match(x1)
	require.NoError(t, err)
	require.Same(t, e1, got1)

	got2, err := r.match(x2)
	require.NoError(t, err)
	require.Same(t, e2, got2)
}

func TestPendingRegistryPriorityInsertsBeforeCursor(t *testing.T) {
	r := newPendingRegistry()

	normal := &pendingEntry{opcode: opGetData}
	r.submit(normal)

	// Nothing has been written yet, so the normal entry still sits at the
	// cursor; the priority entry is inserted before it and becomes the new
	// cursor.
	priority := &pendingEntry{opcode: opAuth, priority: true}
	r.submit(priority)

	taken, ok := r.takeNext(nil)
	require.True(t, ok)
	require.Same(t, priority, taken, "priority must be inserted ahead of an unwritten entry at the write cursor")
}

func TestPendingRegistryPriorityJumpsQueuedEntries(t *testing.T) {
	r := newPendingRegistry()

	a := &pendingEntry{opcode: opGetData}
	r.submit(a)
	taken, _ := r.takeNext(nil)
	r.markWritten(taken) // a is now in flight (written, awaiting reply)

	b := &pendingEntry{opcode: opGetData}
	r.submit(b)

	priority := &pendingEntry{opcode: opAuth, priority: true}
	r.submit(priority)

	next, ok := r.takeNext(nil)
	require.True(t, ok)
	require.Same(t, priority, next, "priority entries jump ordinary queued-but-unwritten entries")
}

func TestPendingRegistryCancelUnsent(t *testing.T) {
	r := newPendingRegistry()
	e := &pendingEntry{opcode: opGetData}
	xid := r.submit(e)

	ok := r.cancel(xid)
	require.True(t, ok)

	select {
	case c := <-e.done:
		require.ErrorIs(t, c.err, ErrRequestCancelled)
	default:
		t.Fatal("cancelling an unsent entry must complete it immediately")
	}

	_, err := r.match(xid)
	require.Error(t, err, "a cancelled-and-removed entry must no longer be matchable")
}

func TestPendingRegistryCancelAlreadySent(t *testing.T) {
	r := newPendingRegistry()
	e := &pendingEntry{opcode: opGetData}
	xid := r.submit(e)
	taken, _ := r.takeNext(nil)
	r.markWritten(taken)

	ok := r.cancel(xid)
	require.True(t, ok)
	require.True(t, e.isCancelled())

	select {
	case <-e.done:
		t.Fatal("an already-sent entry must stay in the queue so FIFO order holds; it is not completed until its reply arrives")
	default:
	}

	got, err := r.match(xid)
	require.NoError(t, err)
	require.True(t, got.isCancelled())
}

func TestPendingRegistryDrain(t *testing.T) {
	r := newPendingRegistry()
	e1 := &pendingEntry{opcode: opGetData}
	e2 := &pendingEntry{opcode: opGetData}
	r.submit(e1)
	r.submit(e2)

	r.drain(ErrConnectionClosed)

	require.Equal(t, 0, r.len())
	c1 := <-e1.done
	require.ErrorIs(t, c1.err, ErrConnectionClosed)
	c2 := <-e2.done
	require.ErrorIs(t, c2.err, ErrConnectionClosed)
}
