package zk

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCreateProtectedEphemeralSequentialRecoversFromConnectionLoss drives the
// scenario the function exists for: the create is written to the server but
// the socket dies before the reply comes back, the call surfaces
// ErrConnectionClosed, and the retry must find the already-created node by
// its GUID tag on the reconnected session rather than creating a duplicate.
func TestCreateProtectedEphemeralSequentialRecoversFromConnectionLoss(t *testing.T) {
	pipes := make(chan net.Conn, 4)
	client, err := Connect("fake:2181", WithDialer(pipeDialer(pipes)), WithConnectTimeout(time.Second))
	require.NoError(t, err)
	defer client.Close()

	first := <-pipes
	srv1 := newFakeServer(first)
	require.NoError(t, srv1.handshake(555, 9000))

	createdName := make(chan string, 1)
	go func() {
		_, op, body, err := srv1.nextRequest()
		if err != nil {
			return
		}
		require.Equal(t, opCreate, op)
		path, _, _ := readString(body, 0)
		createdName <- path[strings.LastIndex(path, "/")+1:]
		// Simulate the reply never arriving: drop the connection.
		first.Close()
	}()

	leaf := <-createdName

	second := <-pipes
	srv2 := newFakeServer(second)
	require.NoError(t, srv2.handshake(555, 9000)) // server resumes the same session id

	go func() {
		xid, op, _, err := srv2.nextRequest()
		if err != nil {
			return
		}
		require.Equal(t, opGetChildren, op)
		buf := make([]byte, 4+4+len(leaf))
		putInt32(buf, 0, 1)
		putString(buf, 4, leaf)
		require.NoError(t, srv2.reply(xid, 2, ErrCodeOK, buf))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	result, err := client.CreateProtectedEphemeralSequential(ctx, "/queue/item", []byte("v1"), OpenACLUnsafe)
	require.NoError(t, err)
	require.Equal(t, "/queue/"+leaf, result)
}
