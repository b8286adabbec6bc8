package zk

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameCodecWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientCodec := newFrameCodec(client, maxFrameSize)
	serverCodec := newFrameCodec(server, maxFrameSize)

	payload := []byte("hello, zookeeper")
	errCh := make(chan error, 1)
	go func() { errCh <- clientCodec.writeFrame(payload) }()

	got, err := serverCodec.readFrame()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
}

func TestFrameCodecRejectsOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverCodec := newFrameCodec(server, 4) // tiny max

	go clientCodec(client).writeFrame([]byte("this payload is too big"))

	_, err := serverCodec.readFrame()
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func clientCodec(conn net.Conn) *frameCodec {
	return newFrameCodec(conn, maxFrameSize)
}
