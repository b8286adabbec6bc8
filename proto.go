package zk

import "encoding/binary"

// connectRequest / connectResponse are the first frame exchanged after TCP
// connect (spec.md §6 "Wire protocol — connect frame").
type connectRequest struct {
	ProtocolVersion int32
	LastZxidSeen    int64
	TimeoutMs       int32
	SessionID       int64
	Password        []byte
}

type connectResponse struct {
	ProtocolVersion   int32
	NegotiatedTimeout int32
	SessionID         int64
	Password          []byte
}

func encodeConnectRequest(r *connectRequest) []byte {
	buf := make([]byte, 4+8+4+8+4+len(r.Password))
	off := 0
	binary.BigEndian.PutUint32(buf[off:], uint32(r.ProtocolVersion))
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(r.LastZxidSeen))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(r.TimeoutMs))
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(r.SessionID))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(len(r.Password)))
	off += 4
	copy(buf[off:], r.Password)
	return buf
}

func decodeConnectResponse(b []byte) (*connectResponse, error) {
	if len(b) < 4+4+8+4 {
		return nil, newProtocolError("short connect response", nil)
	}
	r := &connectResponse{}
	off := 0
	r.ProtocolVersion = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	r.NegotiatedTimeout = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	r.SessionID = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	plen := int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if plen < 0 || off+int(plen) > len(b) {
		return nil, newProtocolError("impossible password length in connect response", nil)
	}
	r.Password = append([]byte(nil), b[off:off+int(plen)]...)
	return r, nil
}

// requestHeader / replyHeader are the per-request envelope (spec.md §6
// "Request envelope" / "Response envelope").
type requestHeader struct {
	Xid  int32
	Type opCode
}

type replyHeader struct {
	Xid  int32
	Zxid int64
	Err  ErrCode
}

const requestHeaderSize = 4 + 4
const replyHeaderSize = 4 + 8 + 4

func encodeRequestHeader(h requestHeader) []byte {
	buf := make([]byte, requestHeaderSize)
	binary.BigEndian.PutUint32(buf[0:], uint32(h.Xid))
	binary.BigEndian.PutUint32(buf[4:], uint32(h.Type))
	return buf
}

func decodeReplyHeader(b []byte) (replyHeader, []byte, error) {
	if len(b) < replyHeaderSize {
		return replyHeader{}, nil, newProtocolError("short reply header", nil)
	}
	h := replyHeader{
		Xid:  int32(binary.BigEndian.Uint32(b[0:])),
		Zxid: int64(binary.BigEndian.Uint64(b[4:])),
		Err:  ErrCode(int32(binary.BigEndian.Uint32(b[12:]))),
	}
	return h, b[replyHeaderSize:], nil
}

// watcherEvent is the body of a notification frame (xid == -1).
type watcherEvent struct {
	Type  EventType
	State State
	Path  string
}

func decodeWatcherEvent(b []byte) (*watcherEvent, error) {
	if len(b) < 12 {
		return nil, newProtocolError("short watcher event", nil)
	}
	ev := &watcherEvent{
		Type:  EventType(int32(binary.BigEndian.Uint32(b[0:]))),
		State: State(int32(binary.BigEndian.Uint32(b[4:]))),
	}
	plen := int32(binary.BigEndian.Uint32(b[8:]))
	if plen < 0 || 12+int(plen) > len(b) {
		return nil, newProtocolError("impossible path length in watcher event", nil)
	}
	ev.Path = string(b[12 : 12+plen])
	return ev, nil
}

// encodeAuthPacket builds the body of an opAuth request: a fixed "type"
// field (always 0 on the wire), the scheme name, and the opaque auth
// payload (SPEC_FULL.md §12 "AddAuth").
func encodeAuthPacket(scheme string, auth []byte) []byte {
	buf := make([]byte, 4+4+len(scheme)+4+len(auth))
	off := 0
	binary.BigEndian.PutUint32(buf[off:], 0) // auth type, always 0
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(len(scheme)))
	off += 4
	copy(buf[off:], scheme)
	off += len(scheme)
	binary.BigEndian.PutUint32(buf[off:], uint32(len(auth)))
	off += 4
	copy(buf[off:], auth)
	return buf
}

// encodeSetWatchesRequest rebuilds the watch set the server lost when the
// socket dropped (SPEC_FULL.md §12 "SetWatches replay on reconnect").
func encodeSetWatchesRequest(relativeZxid int64, data, exist, child []string) []byte {
	size := 8 + 4 + pathListSize(data) + 4 + pathListSize(exist) + 4 + pathListSize(child)
	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint64(buf[off:], uint64(relativeZxid))
	off += 8
	off = encodePathList(buf, off, data)
	off = encodePathList(buf, off, exist)
	encodePathList(buf, off, child)
	return buf
}

func pathListSize(paths []string) int {
	n := 0
	for _, p := range paths {
		n += 4 + len(p)
	}
	return n
}

func encodePathList(buf []byte, off int, paths []string) int {
	binary.BigEndian.PutUint32(buf[off:], uint32(len(paths)))
	off += 4
	for _, p := range paths {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(p)))
		off += 4
		copy(buf[off:], p)
		off += len(p)
	}
	return off
}

// bodyEncoder/bodyDecoder let the façade plug in per-operation request and
// response marshalling without the core knowing about Create/GetData/etc.
// bodies (spec.md §1 "Out of scope: On-wire record framing for each
// individual request/response body").
type bodyEncoder func() ([]byte, error)
type bodyDecoder func(body []byte) error
