package network

import (
	"context"
	"fmt"
	"sync"
)

// Router dispatches fetches by server protocol.
type Router struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{fetchers: make(map[string]Fetcher)}
}

// Register installs the fetcher for a protocol.
func (r *Router) Register(protocol string, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[protocol] = f
}

// Fetch implements Fetcher. An empty protocol means http.
func (r *Router) Fetch(ctx context.Context, srv Server, path string, rng Range) ([]byte, error) {
	proto := srv.Protocol
	if proto == "" {
		proto = ProtocolHTTP
	}

	r.mu.RLock()
	f, ok := r.fetchers[proto]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("server %s: unsupported protocol %q", srv.Name, proto)
	}
	return f.Fetch(ctx, srv, path, rng)
}
