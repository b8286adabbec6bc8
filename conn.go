package zk

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sagernet/sing/common/bufio"
)

// authInfo is a (scheme, auth) pair queued by AddAuth and replayed as a
// priority request on every successful association (spec.md §4.D
// "auth-info backlog: re-send accumulated add-auth credentials").
type authInfo struct {
	scheme string
	auth   []byte
}

// Conn is the session engine (spec.md §4.D). It owns the single socket for
// the lifetime of a connection attempt, reconnects on I/O or protocol
// failure, and preserves the session across reconnects when the server
// allows it — mirroring how the teacher's Session type owns one
// io.ReadWriteCloser and runs independent reader/writer goroutines over it
// rather than sharing the conn behind a lock.
type Conn struct {
	opts  dialOptions
	hosts *hostProvider

	pending *pendingRegistry
	watches *watchRegistry
	events  *eventDispatcher
	logger  Logger

	state int32 // atomic State; every value set through setState, including Disconnected and Expired

	sessionMu sync.RWMutex
	session   sessionInfo

	authMu  sync.Mutex
	authBacklog []authInfo

	closeOnce sync.Once
	closeCh   chan struct{} // closed by Close to tell the loop to stop retrying
	closedCh  chan struct{} // closed once the loop goroutine has fully exited
}

// Dial parses connectString, starts the session engine's reconnect loop in
// the background, and returns immediately; the returned Conn transitions
// through Connecting/Associating asynchronously (spec.md §1 "Async vs
// sync" — connection establishment itself is never a blocking call).
func Dial(connectString string, opts ...Option) (*Conn, error) {
	o := defaultDialOptions()
	for _, opt := range opts {
		opt(&o)
	}

	hosts, err := newHostProvider(connectString, o.backoffInitial, o.backoffMax)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		opts:     o,
		hosts:    hosts,
		pending:  newPendingRegistry(),
		watches:  newWatchRegistry(),
		logger:   o.logger,
		closeCh:  make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	c.events = newEventDispatcher(c.watches, o.logger)
	c.session = sessionInfo{
		id:                  o.sessionID,
		password:            o.sessionPasswd,
		negotiatedTimeoutMs: int32(o.sessionTimeout / time.Millisecond),
	}
	atomic.StoreInt32(&c.state, int32(StateNotConnected))

	go c.loop()
	return c, nil
}

func (c *Conn) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Conn) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
	withFields(c.logger, map[string]interface{}{
		"session_id": c.SessionID(),
		"state":      s.String(),
	}).Printf("zk: state transition")
	c.events.pushState(s)
}

// SessionID and SessionPasswd expose the tuple a caller needs to resume
// this session elsewhere via WithSessionResumption (spec.md §3 "Session").
func (c *Conn) SessionID() int64 {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session.id
}

func (c *Conn) SessionPasswd() []byte {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return append([]byte(nil), c.session.password...)
}

// AddAuth queues a credential to be sent on this and every future
// association (spec.md §9 "AddAuth"). It is fire-and-forget from the
// caller's perspective; delivery is guaranteed only once CONNECTED.
func (c *Conn) AddAuth(scheme string, auth []byte) {
	c.authMu.Lock()
	c.authBacklog = append(c.authBacklog, authInfo{scheme: scheme, auth: append([]byte(nil), auth...)})
	backlog := append([]authInfo(nil), c.authBacklog...)
	c.authMu.Unlock()

	if c.State() != StateConnected {
		return
	}
	c.submitPriority(opAuth, authEncoder(backlog[len(backlog)-1]), nil, nil)
}

func authEncoder(a authInfo) bodyEncoder {
	return func() ([]byte, error) {
		return encodeAuthPacket(a.scheme, a.auth), nil
	}
}

// Close tears the session down for good: it stops the reconnect loop,
// drains every pending request with ErrClosing, and blocks until the loop
// goroutine has exited. Close is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	<-c.closedCh
}

// submit hands req to the pending-request registry and returns the channel
// the caller should select on for the result (spec.md §4.C). Submitting
// while the engine has never attempted a connection, or after it has
// reached a terminal state, fails fast instead of queuing forever
// (spec.md §5 "A per-request deadline is NOT part of the protocol...
// except for NOT_CONNECTED-state submissions which fail fast").
func (c *Conn) submit(opcode opCode, encode bodyEncoder, decode bodyDecoder, watch *watchRegistration) (int32, <-chan completion) {
	return c.submitEntry(&pendingEntry{opcode: opcode, encode: encode, decode: decode, watch: watch})
}

func (c *Conn) submitPriority(opcode opCode, encode bodyEncoder, decode bodyDecoder, watch *watchRegistration) (int32, <-chan completion) {
	return c.submitEntry(&pendingEntry{opcode: opcode, encode: encode, decode: decode, watch: watch, priority: true})
}

func (c *Conn) submitEntry(e *pendingEntry) (int32, <-chan completion) {
	if s := c.State(); s.terminal() {
		err := ErrClosing
		if s == StateAuthFailed {
			err = ErrAuthFailed
		}
		ch := make(chan completion, 1)
		ch <- completion{err: err}
		return 0, ch
	}
	if c.State() == StateNotConnected {
		ch := make(chan completion, 1)
		ch <- completion{err: errFromCode(ErrCodeConnectionLoss, "")}
		return 0, ch
	}
	xid := c.pending.submit(e)
	return xid, e.done
}

// cancel withdraws an outstanding request (spec.md §5 "Cancellation").
func (c *Conn) cancel(xid int32) bool {
	return c.pending.cancel(xid)
}

// loop is the reconnect driver: dial, hand off to runSession until it
// returns an error, decide whether that error is fatal or worth retrying,
// and repeat until Close is called. It is the sole writer of c.state
// outside of submitEntry's read-only checks.
func (c *Conn) loop() {
	defer close(c.closedCh)
	defer c.events.stop()

	for {
		select {
		case <-c.closeCh:
			c.finishClose()
			return
		default:
		}

		c.setState(StateConnecting)
		netConn, addr, err := c.dialNext()
		if err != nil {
			withFields(c.logger, map[string]interface{}{"server": addr}).Printf("zk: dial failed: %v", err)
			if c.waitBeforeRetry() {
				c.finishClose()
				return
			}
			continue
		}

		err = c.runSession(netConn)
		withFields(c.logger, map[string]interface{}{
			"session_id": c.SessionID(),
			"server":     addr,
		}).Printf("zk: session ended: %v", err)

		if errors.Is(err, ErrSessionExpired) {
			c.pending.drain(ErrSessionExpired)
			c.notifyWatchesLost(ErrSessionExpired)
			c.setState(StateExpired)
			c.setState(StateClosed)
			c.finishClose()
			return
		}
		if errors.Is(err, ErrAuthFailed) {
			c.pending.drain(ErrAuthFailed)
			c.notifyWatchesLost(ErrAuthFailed)
			c.setState(StateAuthFailed)
			c.finishClose()
			return
		}
		if errors.Is(err, ErrClosing) {
			c.finishClose()
			return
		}

		// Any other failure (I/O error or protocol error) preserves the
		// session and retries.
		c.pending.drain(ErrConnectionClosed)
		c.setState(StateDisconnected)

		select {
		case <-c.closeCh:
			c.finishClose()
			return
		default:
		}
	}
}

func (c *Conn) finishClose() {
	if c.State() != StateAuthFailed {
		c.setState(StateClosed)
	}
	c.pending.drain(ErrClosing)
	c.notifyWatchesLost(ErrClosing)
}

func (c *Conn) notifyWatchesLost(err error) {
	for path, handlers := range c.watches.drain() {
		for _, h := range handlers {
			h(Event{Type: EventNone, State: c.State(), Path: path, Err: err})
		}
	}
}

// waitBeforeRetry reports, without blocking, whether Close has been called,
// so loop can exit instead of retrying. It does not sleep; the backoff
// between passes over the server list happens inside hostProvider.next.
func (c *Conn) waitBeforeRetry() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Conn) dialNext() (net.Conn, string, error) {
	addr := c.hosts.next()
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.connectTimeout)
	defer cancel()
	conn, err := c.opts.dialer(ctx, "tcp", addr)
	if err != nil {
		return nil, addr, err
	}
	return conn, addr, nil
}

// runSession performs the connect handshake, then runs the reader and
// writer loops until either fails, tearing the socket down before
// returning. It never returns a nil error.
func (c *Conn) runSession(netConn net.Conn) error {
	defer netConn.Close()

	c.setState(StateAssociating)
	codec := newFrameCodec(netConn, c.opts.maxBufferSize)

	if err := c.handshake(netConn, codec); err != nil {
		return err
	}

	c.hosts.onConnected()
	c.setState(StateConnected)

	if c.opts.authenticator != nil {
		if err := c.opts.authenticator.Authenticate(context.Background(), netConn, c.sessionSnapshot()); err != nil {
			return wrapAuthError(err)
		}
	}
	c.flushAuthBacklog()
	c.resubmitWatches()

	stop := make(chan struct{})
	errCh := make(chan error, 2)

	var once sync.Once
	fail := func(err error) {
		once.Do(func() {
			close(stop)
			errCh <- err
		})
	}

	sessionTimeout := c.sessionSnapshot().timeout()
	go func() {
		fail(c.readLoop(codec, netConn, sessionTimeout))
	}()
	go func() {
		fail(c.writeLoop(codec, stop, sessionTimeout))
	}()
	// Close() only signals c.closeCh; it never touches the live socket. This
	// goroutine is what actually wakes the blocked reader when the caller
	// closes mid-session, by forcing the I/O error the other two loops
	// already know how to turn into a clean shutdown.
	go func() {
		select {
		case <-c.closeCh:
			netConn.Close()
			fail(ErrClosing)
		case <-stop:
		}
	}()

	return <-errCh
}

func wrapAuthError(cause error) error {
	return pkgerrors.Wrap(ErrAuthFailed, cause.Error())
}

func (c *Conn) sessionSnapshot() sessionInfo {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

// handshake sends the connect request and applies the connect response to
// the session tuple (spec.md §4.D "connect handshake", §3 "Session").
func (c *Conn) handshake(netConn net.Conn, codec *frameCodec) error {
	snap := c.sessionSnapshot()

	netConn.SetDeadline(time.Now().Add(c.opts.connectTimeout))
	req := &connectRequest{
		ProtocolVersion: protocolVersion,
		LastZxidSeen:    snap.lastZxidSeen,
		TimeoutMs:       snap.negotiatedTimeoutMs,
		SessionID:       snap.id,
		Password:        snap.password,
	}
	if req.TimeoutMs == 0 {
		req.TimeoutMs = int32(c.opts.sessionTimeout / time.Millisecond)
	}
	if err := codec.writeFrame(encodeConnectRequest(req)); err != nil {
		return err
	}

	body, err := codec.readFrame()
	if err != nil {
		return err
	}
	netConn.SetDeadline(time.Time{})

	resp, err := decodeConnectResponse(body)
	if err != nil {
		return err
	}
	if resp.SessionID == 0 {
		c.sessionMu.Lock()
		c.session.id = 0
		c.session.password = emptyPassword
		c.sessionMu.Unlock()
		return ErrSessionExpired
	}

	c.sessionMu.Lock()
	if c.session.id != 0 && c.session.id != resp.SessionID {
		c.pending.resetXid()
	}
	c.session.id = resp.SessionID
	c.session.password = resp.Password
	c.session.negotiatedTimeoutMs = resp.NegotiatedTimeout
	c.sessionMu.Unlock()
	return nil
}

func (c *Conn) flushAuthBacklog() {
	c.authMu.Lock()
	backlog := append([]authInfo(nil), c.authBacklog...)
	c.authMu.Unlock()
	for _, a := range backlog {
		c.submitPriority(opAuth, authEncoder(a), nil, nil)
	}
}

// resubmitWatches re-registers every currently-held watch with the server
// after a reconnect that preserved the session, since the server's own
// watch table was lost along with the socket (SPEC_FULL.md §12 "SetWatches
// replay on reconnect").
func (c *Conn) resubmitWatches() {
	data, exist, child := c.watches.snapshot()
	if len(data) == 0 && len(exist) == 0 && len(child) == 0 {
		return
	}
	relativeZxid := c.sessionSnapshot().lastZxidSeen
	c.submitPriority(opSetWatches, func() ([]byte, error) {
		return encodeSetWatchesRequest(relativeZxid, data, exist, child), nil
	}, nil, nil)
}

// readLoop dispatches incoming frames by xid: -1 is a watch notification,
// -2 a ping reply, -4 an auth reply, anything else must match the head of
// the pending-request queue (spec.md §4.C, §4.D).
func (c *Conn) readLoop(codec *frameCodec, netConn net.Conn, sessionTimeout time.Duration) error {
	readDeadline := 2 * sessionTimeout / 3
	for {
		if readDeadline > 0 {
			netConn.SetReadDeadline(time.Now().Add(readDeadline))
		}
		frame, err := codec.readFrame()
		if err != nil {
			return err
		}
		hdr, body, err := decodeReplyHeader(frame)
		if err != nil {
			return err
		}

		switch hdr.Xid {
		case xidWatchEvent:
			c.dispatchWatcherEvent(body)
		case xidPing:
			// liveness only; nothing to deliver.
		case xidAuth:
			if hdr.Err != ErrCodeOK {
				return ErrAuthFailed
			}
		default:
			if err := c.completeOne(hdr, body); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) dispatchWatcherEvent(body []byte) {
	ev, err := decodeWatcherEvent(body)
	if err != nil {
		c.logger.Printf("zk: malformed watcher event: %v", err)
		return
	}
	c.events.pushNode(Event{Type: ev.Type, State: ev.State, Path: stripChroot(c.hosts.chroot, ev.Path)})
}

func (c *Conn) completeOne(hdr replyHeader, body []byte) error {
	entry, err := c.pending.match(hdr.Xid)
	if err != nil {
		return err
	}

	c.sessionMu.Lock()
	if hdr.Zxid > c.session.lastZxidSeen {
		c.session.lastZxidSeen = hdr.Zxid
	}
	c.sessionMu.Unlock()

	if entry.isCancelled() {
		return nil
	}

	var replyErr error
	if hdr.Err != ErrCodeOK {
		replyErr = errFromCode(hdr.Err, "")
	} else if entry.decode != nil {
		if derr := entry.decode(body); derr != nil {
			replyErr = newProtocolError("failed to decode response body", derr)
		}
	}

	c.installWatchIfNeeded(entry, replyErr)
	entry.complete(completion{zxid: hdr.Zxid, err: replyErr})
	return nil
}

// installWatchIfNeeded applies spec.md §3's registration invariant: a
// watch is installed only once its triggering call has succeeded, except
// an EXISTS watch also installs on NoNode (the node not existing yet is
// exactly what the caller is watching for).
func (c *Conn) installWatchIfNeeded(entry *pendingEntry, replyErr error) {
	if entry.watch == nil {
		return
	}
	if replyErr == nil {
		c.watches.install(entry.watch.path, entry.watch.kind, entry.watch.handler)
		return
	}
	if entry.watch.kind == watchExist && errors.Is(replyErr, ErrNoNode) {
		c.watches.install(entry.watch.path, entry.watch.kind, entry.watch.handler)
	}
}

// writeLoop pulls queued requests off the pending registry and writes
// them, and otherwise sends a ping once the session timeout/3 has elapsed
// with no outbound traffic (spec.md §4.D "Heartbeats"). Mirrors the
// teacher's sendLoop: a vectorised writer is set up once per socket, if the
// underlying conn supports one, so a request's length-prefixed header and
// its body go out as a single scatter-gather syscall instead of a copy.
func (c *Conn) writeLoop(codec *frameCodec, stop <-chan struct{}, sessionTimeout time.Duration) error {
	interval := sessionTimeout / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bw, vectorised := bufio.CreateVectorisedWriter(codec.conn)

	writeEntry := func(entry *pendingEntry) error {
		var body []byte
		if entry.encode != nil {
			b, err := entry.encode()
			if err != nil {
				return newProtocolError("failed to encode request body", err)
			}
			body = b
		}
		header := make([]byte, lengthPrefixSize+requestHeaderSize)
		binary.BigEndian.PutUint32(header, uint32(requestHeaderSize+len(body)))
		copy(header[lengthPrefixSize:], encodeRequestHeader(requestHeader{Xid: entry.xid, Type: entry.opcode}))

		if vectorised && len(body) > 0 {
			_, err := bufio.WriteVectorised(bw, [][]byte{header, body})
			return err
		}
		_, err := codec.conn.Write(append(header, body...))
		return err
	}

	for {
		select {
		case <-stop:
			return io.EOF
		case <-ticker.C:
			if err := c.writePing(codec); err != nil {
				return err
			}
		case <-c.pending.notifyChan():
			for {
				entry, ok := c.pending.tryTakeNext()
				if !ok {
					break
				}
				if entry.isCancelled() {
					c.pending.markWritten(entry)
					continue
				}
				if err := writeEntry(entry); err != nil {
					entry.complete(completion{err: err})
					return err
				}
				c.pending.markWritten(entry)
				ticker.Reset(interval)
			}
		}
	}
}

func (c *Conn) writePing(codec *frameCodec) error {
	return codec.writeFrame(encodeRequestHeader(requestHeader{Xid: xidPing, Type: opPing}))
}
