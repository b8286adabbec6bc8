package zk

import (
	"encoding/binary"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// lengthPrefixSize is the size, in bytes, of the big-endian frame length
// prefix that precedes every frame on the wire (spec.md §4.B).
const lengthPrefixSize = 4

// frameCodec reads and writes length-prefixed frames on a single
// underlying byte stream. It owns no synchronization: the session engine
// serializes all reads through one goroutine and all writes through
// another, exactly as the teacher's sendLoop/recvLoop split ownership of
// the socket by direction rather than by a shared lock.
type frameCodec struct {
	conn    io.ReadWriteCloser
	maxSize int
}

func newFrameCodec(conn io.ReadWriteCloser, maxSize int) *frameCodec {
	return &frameCodec{conn: conn, maxSize: maxSize}
}

// readFrame blocks until a full length-prefixed frame has arrived, or
// returns a *ProtocolError for an impossible length or a short read of the
// frame body (wrapping the I/O error as its cause), and an error reading
// the length prefix verbatim (spec.md §4.B).
func (c *frameCodec) readFrame() ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if n < 0 || int(n) > c.maxSize {
		return nil, newProtocolError("impossible frame length", nil)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, newProtocolError("short read on frame body", err)
	}
	return payload, nil
}

// writeFrame writes a single length-prefixed frame, copying the header
// and payload into one buffer before the syscall. Used for the connect
// handshake and other one-off frames where request.go/conn.go's writer
// loop doesn't already have a vectorised writer set up.
func (c *frameCodec) writeFrame(payload []byte) error {
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[lengthPrefixSize:], payload)
	_, err := c.conn.Write(buf)
	return err
}

func (c *frameCodec) Close() error {
	return c.conn.Close()
}
