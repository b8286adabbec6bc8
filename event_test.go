package zk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventDispatcherDeliversToSpecificHandlerNotDefault(t *testing.T) {
	watches := newWatchRegistry()
	d := newEventDispatcher(watches, newDefaultLogger())
	defer d.stop()

	gotSpecific := make(chan Event, 1)
	gotDefault := make(chan Event, 1)
	d.setDefaultWatcher(func(e Event) { gotDefault <- e })

	watches.install("/a", watchData, func(e Event) { gotSpecific <- e })
	d.pushNode(Event{Type: EventNodeDataChanged, Path: "/a"})

	select {
	case e := <-gotSpecific:
		require.Equal(t, "/a", e.Path)
	case <-time.After(time.Second):
		t.Fatal("specific handler never fired")
	}
	select {
	case <-gotDefault:
		t.Fatal("default watcher must not fire when a specific handler exists")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventDispatcherFallsBackToDefaultWatcher(t *testing.T) {
	watches := newWatchRegistry()
	d := newEventDispatcher(watches, newDefaultLogger())
	defer d.stop()

	gotDefault := make(chan Event, 1)
	d.setDefaultWatcher(func(e Event) { gotDefault <- e })

	d.pushNode(Event{Type: EventNodeCreated, Path: "/unwatched"})

	select {
	case e := <-gotDefault:
		require.Equal(t, "/unwatched", e.Path)
	case <-time.After(time.Second):
		t.Fatal("default watcher never fired for an unwatched path")
	}
}

func TestEventDispatcherWatchFiresAtMostOnce(t *testing.T) {
	watches := newWatchRegistry()
	d := newEventDispatcher(watches, newDefaultLogger())
	defer d.stop()

	var fireCount int
	fired := make(chan struct{}, 2)
	watches.install("/a", watchData, func(Event) {
		fireCount++
		fired <- struct{}{}
	})

	d.pushNode(Event{Type: EventNodeDataChanged, Path: "/a"})
	d.pushNode(Event{Type: EventNodeDataChanged, Path: "/a"})

	<-fired
	select {
	case <-fired:
		t.Fatal("a one-shot watch must not fire twice")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 1, fireCount)
}

func TestEventDispatcherPreservesOrder(t *testing.T) {
	watches := newWatchRegistry()
	d := newEventDispatcher(watches, newDefaultLogger())
	defer d.stop()

	var order []int
	done := make(chan struct{})
	d.setDefaultWatcher(func(e Event) {
		order = append(order, int(e.State))
		if len(order) == 3 {
			close(done)
		}
	})

	d.pushState(StateConnecting)
	d.pushState(StateAssociating)
	d.pushState(StateConnected)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events never delivered")
	}
	require.Equal(t, []int{int(StateConnecting), int(StateAssociating), int(StateConnected)}, order)
}
