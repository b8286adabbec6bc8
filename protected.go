package zk

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const protectedPrefix = "_c_"

// CreateProtectedEphemeralSequential creates an ephemeral+sequential node
// whose name is tagged with a client-generated GUID, and recovers from a
// ConnectionLoss that leaves the caller unsure whether the create actually
// landed: on retry it lists the parent directory for a child already
// carrying this GUID before creating again, so a reconnect never produces
// a duplicate node (SPEC_FULL.md §12, grounded on the reference client's
// CreateProtectedEphemeralSequential).
func (cl *Client) CreateProtectedEphemeralSequential(ctx context.Context, path string, data []byte, acl []ACL) (string, error) {
	parts := strings.Split(path, "/")
	guid := protectedPrefix + uuid.NewString() + "-"
	parts[len(parts)-1] = guid + parts[len(parts)-1]
	protectedPath := strings.Join(parts, "/")

	for {
		result, err := cl.Create(ctx, protectedPath, data, flagEphemeralSequential(), acl)
		switch {
		case err == nil:
			return result, nil
		case !isConnectionLoss(err):
			return "", err
		}

		parent := strings.Join(parts[:len(parts)-1], "/")
		if parent == "" {
			parent = "/"
		}
		children, cerr := cl.GetChildren(ctx, parent, nil)
		if cerr != nil {
			return "", err
		}
		for _, child := range children {
			if strings.Contains(child, guid) {
				if parent == "/" {
					return "/" + child, nil
				}
				return parent + "/" + child, nil
			}
		}
		// Not found: the create never reached the server. Retry it.
	}
}

func flagEphemeralSequential() int32 {
	return FlagEphemeral | FlagSequence
}

// isConnectionLoss reports whether err is the kind of failure that leaves
// the caller unsure whether a request reached the server: either the
// server's own ConnectionLoss response code, or the session engine's
// ErrConnectionClosed sentinel produced when a socket dies with the
// request already written (conn.go's drain on an ordinary I/O failure —
// the common case this function exists to recover from).
func isConnectionLoss(err error) bool {
	if errors.Is(err, ErrConnectionClosed) {
		return true
	}
	se, ok := err.(*ServerError)
	return ok && se.Code == ErrCodeConnectionLoss
}
