package zk

import "strings"

// validatePath enforces the node-path grammar (spec.md §8 "Path
// validation"): absolute, no trailing slash except the root itself, no
// empty segments, and no "." or ".." segments (the service has no notion
// of relative paths, so these would otherwise be silently treated as
// literal node names by the server, which is never what a caller means).
func validatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if path[0] != '/' {
		return ErrInvalidPath
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		return ErrInvalidPath
	}
	if path == "/" {
		return nil
	}
	for _, seg := range strings.Split(path[1:], "/") {
		switch seg {
		case "", ".", "..":
			return ErrInvalidPath
		}
	}
	return nil
}

// prependChroot rewrites a caller-supplied client_path into the
// server_path actually sent on the wire (spec.md §8 "Chroot round-trip").
// An empty chroot is a no-op.
func prependChroot(chroot, clientPath string) string {
	if chroot == "" {
		return clientPath
	}
	if clientPath == "/" {
		return chroot
	}
	return chroot + clientPath
}

// stripChroot is prependChroot's inverse, applied to every server_path
// that comes back on the wire (watcher event paths, sequential-create
// return paths) so callers only ever see the client_path they submitted.
func stripChroot(chroot, serverPath string) string {
	if chroot == "" {
		return serverPath
	}
	trimmed := strings.TrimPrefix(serverPath, chroot)
	if trimmed == "" {
		return "/"
	}
	return trimmed
}
