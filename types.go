package zk

import "time"

// Stat mirrors the metadata the server attaches to every node. Field order
// matches the wire layout decoded by readStat in ops.go.
type Stat struct {
	Czxid          int64
	Mzxid          int64
	Ctime          int64
	Mtime          int64
	Version        int32
	Cversion       int32
	Aversion       int32
	EphemeralOwner int64
	DataLength     int32
	NumChildren    int32
	Pzxid          int64
}

// ACL is a single access-control entry: a permission bitmask plus the
// identity it applies to.
type ACL struct {
	Perms  int32
	Scheme string
	ID     string
}

// Permission bits, ORed into ACL.Perms.
const (
	PermRead   int32 = 1 << 0
	PermWrite  int32 = 1 << 1
	PermCreate int32 = 1 << 2
	PermDelete int32 = 1 << 3
	PermAdmin  int32 = 1 << 4
	PermAll    = PermRead | PermWrite | PermCreate | PermDelete | PermAdmin
)

// CreateMode flags, ORed into the Create request.
const (
	FlagEphemeral int32 = 1
	FlagSequence  int32 = 2
)

// Event is delivered to the default watcher and to per-path watch
// handlers. State-change events (Type == EventNone) sent to the default
// watcher have an empty Path; the EventNone notice a watch handler gets
// when its watch is lost on close, expiry or auth failure carries the
// watched Path and the cause in Err.
type Event struct {
	Type  EventType
	State State
	Path  string
	Err   error
}

// sessionInfo is the session engine's private view of the tuple in
// spec.md §3 "Session". It is copied out via Conn.SessionID/SessionPasswd
// for resumption.
type sessionInfo struct {
	id              int64
	password        []byte
	negotiatedTimeoutMs int32
	lastZxidSeen    int64
}

func (s sessionInfo) timeout() time.Duration {
	return time.Duration(s.negotiatedTimeoutMs) * time.Millisecond
}

var emptyPassword = []byte{}
