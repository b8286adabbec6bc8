package zk

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// hostProvider parses the connect string, extracts the optional chroot
// suffix, randomizes the server order at construction, and cycles through
// endpoints with a bounded backoff once a full pass has gone by with no
// CONNECTED transition (spec.md §4.A).
type hostProvider struct {
	mu      sync.Mutex
	servers []string
	index   int
	chroot  string

	backoff          backoff.BackOff
	callsSincePass   int
	sawConnected     bool
}

// newHostProvider parses "host1:port1,host2:port2,.../chroot/path" and
// shuffles the server list. Fails with *ConfigError if the connect string
// is empty or malformed, per spec.md §4.A.
func newHostProvider(connectString string, initial, max time.Duration) (*hostProvider, error) {
	connectString = strings.TrimSpace(connectString)
	if connectString == "" {
		return nil, newConfigError("empty connect string")
	}

	chroot := ""
	hostPart := connectString
	if idx := strings.Index(connectString, "/"); idx >= 0 {
		hostPart = connectString[:idx]
		chroot = connectString[idx:]
		if chroot != "" && chroot != "/" {
			if err := validatePath(chroot); err != nil {
				return nil, newConfigError("invalid chroot: " + err.Error())
			}
			chroot = strings.TrimSuffix(chroot, "/")
		} else {
			chroot = ""
		}
	}

	rawServers := strings.Split(hostPart, ",")
	servers := make([]string, 0, len(rawServers))
	for _, s := range rawServers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, ":") {
			return nil, newConfigError("server entry missing port: " + s)
		}
		servers = append(servers, s)
	}
	if len(servers) == 0 {
		return nil, newConfigError("no servers in connect string")
	}

	rand.Shuffle(len(servers), func(i, j int) {
		servers[i], servers[j] = servers[j], servers[i]
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0 // never give up; the session engine retries forever
	b.Reset()

	return &hostProvider{
		servers: servers,
		chroot:  chroot,
		backoff: b,
	}, nil
}

// next returns the next endpoint to dial, sleeping a bounded random
// interval if a full pass over the list has completed without a single
// CONNECTED transition since the last call to onConnected.
func (h *hostProvider) next() string {
	h.mu.Lock()
	needBackoff := h.callsSincePass >= len(h.servers) && !h.sawConnected
	if h.callsSincePass >= len(h.servers) {
		h.callsSincePass = 0
		h.sawConnected = false
	}
	server := h.servers[h.index%len(h.servers)]
	h.index++
	h.callsSincePass++
	h.mu.Unlock()

	if needBackoff {
		time.Sleep(h.backoff.NextBackOff())
	}
	return server
}

// onConnected resets the backoff and pass-tracking; called by the session
// engine immediately after a CONNECTED transition.
func (h *hostProvider) onConnected() {
	h.mu.Lock()
	h.sawConnected = true
	h.callsSincePass = 0
	h.backoff.Reset()
	h.mu.Unlock()
}

func (h *hostProvider) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.servers)
}
