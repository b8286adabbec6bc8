package zk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectRequestResponseRoundTrip(t *testing.T) {
	req := &connectRequest{
		ProtocolVersion: protocolVersion,
		LastZxidSeen:    42,
		TimeoutMs:       30000,
		SessionID:       0,
		Password:        emptyPassword,
	}
	encoded := encodeConnectRequest(req)
	require.NotEmpty(t, encoded)

	// A connect response shares the same tail shape (session id + password)
	// as the request; build one by hand to exercise the decoder.
	resp := &connectResponse{
		ProtocolVersion:   0,
		NegotiatedTimeout: 18000,
		SessionID:         123456789,
		Password:          []byte("s3cr3t"),
	}
	body := encodeConnectResponseForTest(resp)
	decoded, err := decodeConnectResponse(body)
	require.NoError(t, err)
	require.Equal(t, resp.NegotiatedTimeout, decoded.NegotiatedTimeout)
	require.Equal(t, resp.SessionID, decoded.SessionID)
	require.Equal(t, resp.Password, decoded.Password)
}

func TestDecodeConnectResponseRejectsImpossibleLength(t *testing.T) {
	body := make([]byte, 4+4+8+4)
	// password length field claims far more than the buffer holds.
	body[len(body)-1] = 0x7f
	_, err := decodeConnectResponse(body)
	require.Error(t, err)
}

func TestRequestReplyHeaderRoundTrip(t *testing.T) {
	h := requestHeader{Xid: 7, Type: opGetData}
	buf := encodeRequestHeader(h)
	require.Len(t, buf, requestHeaderSize)

	reply := make([]byte, replyHeaderSize)
	reply[3] = 9 // xid = 9
	reply[15] = byte(int8(ErrCodeOK))
	rh, rest, err := decodeReplyHeader(reply)
	require.NoError(t, err)
	require.Equal(t, int32(9), rh.Xid)
	require.Empty(t, rest)
}

func TestWatcherEventRoundTrip(t *testing.T) {
	path := "/a/b"
	buf := make([]byte, 12+len(path))
	putInt32(buf, 0, int32(EventNodeDataChanged))
	putInt32(buf, 4, int32(StateConnected))
	putInt32(buf, 8, int32(len(path)))
	copy(buf[12:], path)

	ev, err := decodeWatcherEvent(buf)
	require.NoError(t, err)
	require.Equal(t, EventNodeDataChanged, ev.Type)
	require.Equal(t, StateConnected, ev.State)
	require.Equal(t, path, ev.Path)
}

func putInt32(b []byte, off int, v int32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func encodeConnectResponseForTest(r *connectResponse) []byte {
	buf := make([]byte, 4+4+8+4+len(r.Password))
	putInt32(buf, 0, r.ProtocolVersion)
	putInt32(buf, 4, r.NegotiatedTimeout)
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(r.SessionID >> uint(56-8*i))
	}
	putInt32(buf, 16, int32(len(r.Password)))
	copy(buf[20:], r.Password)
	return buf
}
