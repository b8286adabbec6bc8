package zk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatchRegistryConsumeMapping(t *testing.T) {
	wr := newWatchRegistry()

	var dataFired, existFired, childFired bool
	wr.install("/a", watchData, func(Event) { dataFired = true })
	wr.install("/a", watchExist, func(Event) { existFired = true })
	wr.install("/a", watchChild, func(Event) { childFired = true })

	handlers := wr.consume("/a", EventNodeDataChanged)
	require.Len(t, handlers, 2, "NodeDataChanged must target data ∪ exist")
	for _, h := range handlers {
		h(Event{})
	}
	require.True(t, dataFired)
	require.True(t, existFired)
	require.False(t, childFired)
}

func TestWatchRegistryDeleteFiresAllThree(t *testing.T) {
	wr := newWatchRegistry()
	var fired int
	wr.install("/a", watchData, func(Event) { fired++ })
	wr.install("/a", watchExist, func(Event) { fired++ })
	wr.install("/a", watchChild, func(Event) { fired++ })

	handlers := wr.consume("/a", EventNodeDeleted)
	require.Len(t, handlers, 3)

	_, ok := wr.sets["/a"]
	require.False(t, ok, "a fully consumed path must be removed from the map")
}

func TestWatchRegistryChildrenChangedOnlyTargetsChild(t *testing.T) {
	wr := newWatchRegistry()
	wr.install("/a", watchData, func(Event) {})
	wr.install("/a", watchChild, func(Event) {})

	handlers := wr.consume("/a", EventNodeChildrenChanged)
	require.Len(t, handlers, 1)
}

func TestWatchRegistrySnapshot(t *testing.T) {
	wr := newWatchRegistry()
	wr.install("/a", watchData, func(Event) {})
	wr.install("/b", watchExist, func(Event) {})
	wr.install("/c", watchChild, func(Event) {})

	data, exist, child := wr.snapshot()
	require.Equal(t, []string{"/a"}, data)
	require.Equal(t, []string{"/b"}, exist)
	require.Equal(t, []string{"/c"}, child)
}

func TestWatchRegistryDrain(t *testing.T) {
	wr := newWatchRegistry()
	var fired bool
	wr.install("/a", watchData, func(Event) { fired = true })

	drained := wr.drain()
	require.Len(t, drained, 1)
	for _, handlers := range drained {
		for _, h := range handlers {
			h(Event{})
		}
	}
	require.True(t, fired)
	require.Empty(t, wr.sets)
}
