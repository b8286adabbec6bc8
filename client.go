package zk

import "context"

// Client is the public façade (spec.md §6): it owns path validation and
// chroot rewriting, and translates each operation into a submit call on
// the session engine plus a typed decode of the result. It holds no
// protocol state of its own.
type Client struct {
	conn   *Conn
	chroot string
}

// Connect parses connectString, starts the session engine, and returns
// immediately; State() reports the asynchronous progress toward CONNECTED.
func Connect(connectString string, opts ...Option) (*Client, error) {
	conn, err := Dial(connectString, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, chroot: conn.hosts.chroot}, nil
}

func (cl *Client) Close() { cl.conn.Close() }

func (cl *Client) State() State { return cl.conn.State() }

func (cl *Client) SessionID() int64 { return cl.conn.SessionID() }

func (cl *Client) SessionPasswd() []byte { return cl.conn.SessionPasswd() }

// AddAuth queues a credential for this session (spec.md §9 "AddAuth").
func (cl *Client) AddAuth(scheme string, auth []byte) {
	cl.conn.AddAuth(scheme, auth)
}

func (cl *Client) serverPath(clientPath string) (string, error) {
	if err := validatePath(clientPath); err != nil {
		return "", err
	}
	return prependChroot(cl.chroot, clientPath), nil
}

func (cl *Client) call(ctx context.Context, opcode opCode, encode bodyEncoder, decode bodyDecoder, watch *watchRegistration) error {
	xid, ch := cl.conn.submit(opcode, encode, decode, watch)
	select {
	case comp := <-ch:
		return comp.err
	case <-ctx.Done():
		cl.conn.cancel(xid)
		return ctx.Err()
	}
}

// Create adds a node at path with the given data, ACL, and create-mode
// flags (FlagEphemeral / FlagSequence), returning the path the server
// actually assigned (differs from the requested path only under
// FlagSequence). An empty acl fails fast with ErrInvalidACL without a
// round trip (spec.md §6).
func (cl *Client) Create(ctx context.Context, path string, data []byte, flags int32, acl []ACL) (string, error) {
	if len(acl) == 0 {
		return "", ErrInvalidACL
	}
	sp, err := cl.serverPath(path)
	if err != nil {
		return "", err
	}
	var resultPath string
	encode := func() ([]byte, error) { return encodeCreateRequest(sp, data, acl, flags), nil }
	decode := func(body []byte) error {
		p, err := decodeCreateResponse(body)
		if err != nil {
			return err
		}
		resultPath = stripChroot(cl.chroot, p)
		return nil
	}
	if err := cl.call(ctx, opCreate, encode, decode, nil); err != nil {
		return "", err
	}
	return resultPath, nil
}

// Delete removes path if its version matches, or unconditionally when
// version is -1.
func (cl *Client) Delete(ctx context.Context, path string, version int32) error {
	sp, err := cl.serverPath(path)
	if err != nil {
		return err
	}
	encode := func() ([]byte, error) { return encodeDeleteRequest(sp, version), nil }
	return cl.call(ctx, opDelete, encode, nil, nil)
}

// Exists reports whether path exists and, if so, its Stat. A NoNode
// response is translated into (false, Stat{}, nil) rather than an error,
// since "the node does not exist" is this call's defined answer, not a
// failure (spec.md §6 table). When watch is non-nil it fires exactly once
// on the next create, data change or delete of path (installed even when the node
// doesn't currently exist, per the EXISTS watch exception).
func (cl *Client) Exists(ctx context.Context, path string, watch func(Event)) (bool, Stat, error) {
	sp, err := cl.serverPath(path)
	if err != nil {
		return false, Stat{}, err
	}
	var reg *watchRegistration
	if watch != nil {
		reg = &watchRegistration{path: path, handler: watch, kind: watchExist}
	}
	var stat Stat
	encode := func() ([]byte, error) { return encodePathWatchRequest(sp, watch != nil), nil }
	decode := func(body []byte) error {
		s, err := decodeStatOnlyResponse(body)
		stat = s
		return err
	}
	err = cl.call(ctx, opExists, encode, decode, reg)
	if err != nil {
		if isNoNode(err) {
			return false, Stat{}, nil
		}
		return false, Stat{}, err
	}
	return true, stat, nil
}

// GetData returns the node's data and Stat. watch, if non-nil, fires once
// on the next data change or deletion of path.
func (cl *Client) GetData(ctx context.Context, path string, watch func(Event)) ([]byte, Stat, error) {
	sp, err := cl.serverPath(path)
	if err != nil {
		return nil, Stat{}, err
	}
	var reg *watchRegistration
	if watch != nil {
		reg = &watchRegistration{path: path, handler: watch, kind: watchData}
	}
	var data []byte
	var stat Stat
	encode := func() ([]byte, error) { return encodePathWatchRequest(sp, watch != nil), nil }
	decode := func(body []byte) error {
		d, s, err := decodeGetDataResponse(body)
		data, stat = d, s
		return err
	}
	if err := cl.call(ctx, opGetData, encode, decode, reg); err != nil {
		return nil, Stat{}, err
	}
	return data, stat, nil
}

// SetData replaces the node's data if version matches (or unconditionally
// when version is -1), returning the resulting Stat.
func (cl *Client) SetData(ctx context.Context, path string, data []byte, version int32) (Stat, error) {
	sp, err := cl.serverPath(path)
	if err != nil {
		return Stat{}, err
	}
	var stat Stat
	encode := func() ([]byte, error) { return encodeSetDataRequest(sp, data, version), nil }
	decode := func(body []byte) error {
		s, err := decodeStatOnlyResponse(body)
		stat = s
		return err
	}
	if err := cl.call(ctx, opSetData, encode, decode, nil); err != nil {
		return Stat{}, err
	}
	return stat, nil
}

// GetACL returns the node's current ACL list and Stat.
func (cl *Client) GetACL(ctx context.Context, path string) ([]ACL, Stat, error) {
	sp, err := cl.serverPath(path)
	if err != nil {
		return nil, Stat{}, err
	}
	var acls []ACL
	var stat Stat
	encode := func() ([]byte, error) { return encodeGetACLRequest(sp), nil }
	decode := func(body []byte) error {
		a, s, err := decodeGetACLResponse(body)
		acls, stat = a, s
		return err
	}
	if err := cl.call(ctx, opGetACL, encode, decode, nil); err != nil {
		return nil, Stat{}, err
	}
	return acls, stat, nil
}

// SetACL replaces the node's ACL list if version matches, returning the
// resulting Stat. An empty acl fails fast with ErrInvalidACL.
func (cl *Client) SetACL(ctx context.Context, path string, acl []ACL, version int32) (Stat, error) {
	if len(acl) == 0 {
		return Stat{}, ErrInvalidACL
	}
	sp, err := cl.serverPath(path)
	if err != nil {
		return Stat{}, err
	}
	var stat Stat
	encode := func() ([]byte, error) { return encodeSetACLRequest(sp, acl, version), nil }
	decode := func(body []byte) error {
		s, err := decodeStatOnlyResponse(body)
		stat = s
		return err
	}
	if err := cl.call(ctx, opSetACL, encode, decode, nil); err != nil {
		return Stat{}, err
	}
	return stat, nil
}

// GetChildren returns the immediate children of path. watch, if non-nil,
// fires once on the next child-list change under path.
func (cl *Client) GetChildren(ctx context.Context, path string, watch func(Event)) ([]string, error) {
	sp, err := cl.serverPath(path)
	if err != nil {
		return nil, err
	}
	var reg *watchRegistration
	if watch != nil {
		reg = &watchRegistration{path: path, handler: watch, kind: watchChild}
	}
	var children []string
	encode := func() ([]byte, error) { return encodePathWatchRequest(sp, watch != nil), nil }
	decode := func(body []byte) error {
		c, err := decodeGetChildrenResponse(body)
		children = c
		return err
	}
	if err := cl.call(ctx, opGetChildren, encode, decode, reg); err != nil {
		return nil, err
	}
	return children, nil
}

func isNoNode(err error) bool {
	se, ok := err.(*ServerError)
	return ok && se.Code == ErrCodeNoNode
}
