package zk

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateRejectsEmptyACLWithoutRoundTrip(t *testing.T) {
	pipes := make(chan net.Conn, 1)
	client, err := Connect("fake:2181", WithDialer(pipeDialer(pipes)), WithConnectTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.Create(ctx, "/x", nil, 0, nil)
	require.ErrorIs(t, err, ErrInvalidACL)
}

func TestCreateRejectsInvalidPathWithoutRoundTrip(t *testing.T) {
	pipes := make(chan net.Conn, 1)
	client, err := Connect("fake:2181", WithDialer(pipeDialer(pipes)), WithConnectTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.Create(ctx, "relative/path", nil, 0, OpenACLUnsafe)
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestCloseIsIdempotent(t *testing.T) {
	pipes := make(chan net.Conn, 1)
	client, err := Connect("fake:2181", WithDialer(pipeDialer(pipes)), WithConnectTimeout(50*time.Millisecond))
	require.NoError(t, err)
	client.Close()
	client.Close() // must not panic or block
}
