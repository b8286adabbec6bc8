package zk

import (
	"context"
	"net"
	"time"
)

// Dialer opens the TCP connection to a server endpoint. The default uses
// net.Dialer; tests substitute an in-memory pipe.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Authenticator is the injected SASL/digest capability referenced by
// spec.md §1 ("Optional SASL authentication handshake... an injected
// capability; the core must invoke it at defined points but does not
// implement it") and §4.D ("(optional) run SASL handshake via injected
// client"). The core calls Authenticate once per successful association,
// before flushing the auth-info backlog.
type Authenticator interface {
	Authenticate(ctx context.Context, conn net.Conn, session sessionInfo) error
}

type dialOptions struct {
	logger            Logger
	dialer            Dialer
	connectTimeout    time.Duration
	maxBufferSize     int
	authenticator     Authenticator
	sessionID         int64
	sessionPasswd     []byte
	sessionTimeout    time.Duration
	backoffInitial    time.Duration
	backoffMax        time.Duration
}

// Option configures a Conn at construction. Following the corpus
// convention (functional options over a config-file format) since nothing
// here is ever read from disk or environment — see SPEC_FULL.md §10.
type Option func(*dialOptions)

func defaultDialOptions() dialOptions {
	return dialOptions{
		logger:         newDefaultLogger(),
		dialer:         defaultDialer,
		connectTimeout: defaultConnectTimeout,
		maxBufferSize:  maxFrameSize,
		sessionPasswd:  emptyPassword,
		sessionTimeout: 30 * time.Second,
		backoffInitial: 50 * time.Millisecond,
		backoffMax:     1 * time.Second,
	}
}

func defaultDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, network, addr)
}

// WithLogger injects the Logger used for diagnostic output.
func WithLogger(l Logger) Option {
	return func(o *dialOptions) { o.logger = l }
}

// WithDialer overrides how TCP connections are opened; used by tests to
// substitute net.Pipe-backed fakes.
func WithDialer(d Dialer) Option {
	return func(o *dialOptions) { o.dialer = d }
}

// WithConnectTimeout bounds a single TCP dial attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *dialOptions) { o.connectTimeout = d }
}

// WithMaxBufferSize caps the frame length the codec will accept, guarding
// against a corrupt length prefix forcing a huge allocation.
func WithMaxBufferSize(n int) Option {
	return func(o *dialOptions) { o.maxBufferSize = n }
}

// WithAuthenticator injects the SASL/digest capability invoked after each
// successful association.
func WithAuthenticator(a Authenticator) Option {
	return func(o *dialOptions) { o.authenticator = a }
}

// WithSessionResumption resumes a previously established session rather
// than starting a fresh one (spec.md §3 "Session").
func WithSessionResumption(id int64, passwd []byte) Option {
	return func(o *dialOptions) {
		o.sessionID = id
		o.sessionPasswd = passwd
	}
}

// WithSessionTimeout sets the requested (not yet negotiated) session
// timeout sent in the connect request.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *dialOptions) { o.sessionTimeout = d }
}

// WithBackoff configures the host list manager's bounded random backoff
// bounds between full passes over the server list (spec.md §4.A).
func WithBackoff(initial, max time.Duration) Option {
	return func(o *dialOptions) {
		o.backoffInitial = initial
		o.backoffMax = max
	}
}
