package zk

import "encoding/binary"

// ops.go holds the per-operation wire records the façade plugs into the
// core via bodyEncoder/bodyDecoder (proto.go). The core never imports this
// file's types; it only ever sees the function-valued closures below
// (spec.md §1 "Out of scope: on-wire record framing for each individual
// request/response body").

func putString(buf []byte, off int, s string) int {
	binary.BigEndian.PutUint32(buf[off:], uint32(len(s)))
	off += 4
	copy(buf[off:], s)
	return off + len(s)
}

func putBytes(buf []byte, off int, b []byte) int {
	if b == nil {
		binary.BigEndian.PutUint32(buf[off:], 0xffffffff)
		return off + 4
	}
	binary.BigEndian.PutUint32(buf[off:], uint32(len(b)))
	off += 4
	copy(buf[off:], b)
	return off + len(b)
}

func putBool(buf []byte, off int, b bool) int {
	if b {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	return off + 1
}

func putACL(buf []byte, off int, acls []ACL) int {
	binary.BigEndian.PutUint32(buf[off:], uint32(len(acls)))
	off += 4
	for _, a := range acls {
		binary.BigEndian.PutUint32(buf[off:], uint32(a.Perms))
		off += 4
		off = putString(buf, off, a.Scheme)
		off = putString(buf, off, a.ID)
	}
	return off
}

func aclSize(acls []ACL) int {
	n := 4
	for _, a := range acls {
		n += 4 + 4 + len(a.Scheme) + 4 + len(a.ID)
	}
	return n
}

func readUint32(b []byte, off int) (int, int) {
	return int(binary.BigEndian.Uint32(b[off:])), off + 4
}

func readString(b []byte, off int) (string, int, error) {
	n, off := readUint32(b, off)
	if n < 0 || off+n > len(b) {
		return "", 0, newProtocolError("impossible string length", nil)
	}
	return string(b[off : off+n]), off + n, nil
}

func readBytes(b []byte, off int) ([]byte, int, error) {
	n32 := int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if n32 < 0 {
		return nil, off, nil
	}
	if off+int(n32) > len(b) {
		return nil, 0, newProtocolError("impossible byte length", nil)
	}
	return append([]byte(nil), b[off:off+int(n32)]...), off + int(n32), nil
}

// statWireSize is the fixed on-wire size of a Stat record: four int64
// fields, three int32 fields, EphemeralOwner (int64), two more int32
// fields, and a trailing int64 (68 bytes total).
const statWireSize = 8*4 + 4*3 + 8 + 4*2 + 8

func readStat(b []byte, off int) (Stat, int, error) {
	if off+statWireSize > len(b) {
		return Stat{}, 0, newProtocolError("short stat record", nil)
	}
	var s Stat
	s.Czxid = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	s.Mzxid = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	s.Ctime = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	s.Mtime = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	s.Version = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	s.Cversion = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	s.Aversion = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	s.EphemeralOwner = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	s.DataLength = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	s.NumChildren = int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	s.Pzxid = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	return s, off, nil
}

func readACLList(b []byte, off int) ([]ACL, int, error) {
	n, off := readUint32(b, off)
	if n < 0 || n > len(b) {
		return nil, 0, newProtocolError("impossible acl count", nil)
	}
	acls := make([]ACL, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return nil, 0, newProtocolError("short acl entry", nil)
		}
		perms := int32(binary.BigEndian.Uint32(b[off:]))
		off += 4
		scheme, next, err := readString(b, off)
		if err != nil {
			return nil, 0, err
		}
		off = next
		id, next, err := readString(b, off)
		if err != nil {
			return nil, 0, err
		}
		off = next
		acls = append(acls, ACL{Perms: perms, Scheme: scheme, ID: id})
	}
	return acls, off, nil
}

// --- create ---

func encodeCreateRequest(path string, data []byte, acls []ACL, flags int32) []byte {
	size := 4 + len(path) + 4 + len(data) + aclSize(acls) + 4
	buf := make([]byte, size)
	off := putString(buf, 0, path)
	off = putBytes(buf, off, data)
	off = putACL(buf, off, acls)
	binary.BigEndian.PutUint32(buf[off:], uint32(flags))
	return buf
}

func decodeCreateResponse(b []byte) (string, error) {
	path, _, err := readString(b, 0)
	return path, err
}

// --- delete ---

func encodeDeleteRequest(path string, version int32) []byte {
	buf := make([]byte, 4+len(path)+4)
	off := putString(buf, 0, path)
	binary.BigEndian.PutUint32(buf[off:], uint32(version))
	return buf
}

// --- exists / getdata share a request shape ---

func encodePathWatchRequest(path string, watch bool) []byte {
	buf := make([]byte, 4+len(path)+1)
	off := putString(buf, 0, path)
	putBool(buf, off, watch)
	return buf
}

func decodeStatOnlyResponse(b []byte) (Stat, error) {
	stat, _, err := readStat(b, 0)
	return stat, err
}

func decodeGetDataResponse(b []byte) ([]byte, Stat, error) {
	data, off, err := readBytes(b, 0)
	if err != nil {
		return nil, Stat{}, err
	}
	stat, _, err := readStat(b, off)
	return data, stat, err
}

// --- setdata ---

func encodeSetDataRequest(path string, data []byte, version int32) []byte {
	buf := make([]byte, 4+len(path)+4+len(data)+4)
	off := putString(buf, 0, path)
	off = putBytes(buf, off, data)
	binary.BigEndian.PutUint32(buf[off:], uint32(version))
	return buf
}

// --- acl ---

func encodeGetACLRequest(path string) []byte {
	buf := make([]byte, 4+len(path))
	putString(buf, 0, path)
	return buf
}

func decodeGetACLResponse(b []byte) ([]ACL, Stat, error) {
	acls, off, err := readACLList(b, 0)
	if err != nil {
		return nil, Stat{}, err
	}
	stat, _, err := readStat(b, off)
	return acls, stat, err
}

func encodeSetACLRequest(path string, acls []ACL, version int32) []byte {
	buf := make([]byte, 4+len(path)+aclSize(acls)+4)
	off := putString(buf, 0, path)
	off = putACL(buf, off, acls)
	binary.BigEndian.PutUint32(buf[off:], uint32(version))
	return buf
}

// --- children ---

func decodeGetChildrenResponse(b []byte) ([]string, error) {
	n, off := readUint32(b, 0)
	if n < 0 || n > len(b) {
		return nil, newProtocolError("impossible children count", nil)
	}
	children := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, next, err := readString(b, off)
		if err != nil {
			return nil, err
		}
		children = append(children, s)
		off = next
	}
	return children, nil
}
