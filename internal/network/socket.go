package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SocketFetcher speaks HTTP/1.1 over one persistent TCP connection per
// server. Requests to the same server are serialized on that connection.
type SocketFetcher struct {
	dialer net.Dialer
	log    *zap.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

type conn struct {
	mu     sync.Mutex
	host   string
	base   string
	nc     net.Conn
	reader *bufio.Reader
}

// NewSocketFetcher creates a fetcher with the given dial timeout.
func NewSocketFetcher(dialTimeout time.Duration, log *zap.Logger) *SocketFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketFetcher{
		dialer: net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
		log:    log.Named("socket"),
		conns:  make(map[string]*conn),
	}
}

// Fetch implements Fetcher.
func (f *SocketFetcher) Fetch(ctx context.Context, srv Server, path string, rng Range) ([]byte, error) {
	c, err := f.connFor(srv)
	if err != nil {
		return nil, &Error{Op: "request", Server: srv.Name, Path: path, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		if err := f.connect(ctx, c); err != nil {
			return nil, &Error{Op: "dial", Server: srv.Name, Path: path, Err: err}
		}
	}

	// Cancellation expires the connection deadline, which unblocks I/O.
	nc := c.nc
	nc.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		nc.SetDeadline(time.Now())
	})
	defer stop()

	data, err := f.roundTrip(c, srv, path, rng)
	if err != nil {
		c.close()
		if ctx.Err() != nil {
			return nil, &Error{Op: "request", Server: srv.Name, Path: path, Err: ctx.Err()}
		}
		return nil, err
	}
	return data, nil
}

func (f *SocketFetcher) connFor(srv Server) (*conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.conns[srv.URL]; ok {
		return c, nil
	}
	host, base, err := splitAddress(srv.URL)
	if err != nil {
		return nil, err
	}
	c := &conn{host: host, base: base}
	f.conns[srv.URL] = c
	return c, nil
}

func (f *SocketFetcher) connect(ctx context.Context, c *conn) error {
	nc, err := f.dialer.DialContext(ctx, "tcp", c.host)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.host, err)
	}
	c.nc = nc
	c.reader = bufio.NewReader(nc)
	f.log.Debug("connected", zap.String("host", c.host))
	return nil
}

func (f *SocketFetcher) roundTrip(c *conn, srv Server, path string, rng Range) ([]byte, error) {
	w := bufio.NewWriter(c.nc)
	fmt.Fprintf(w, "GET %s/%s%s HTTP/1.1\r\n", c.base, path, srv.URLAppend)
	fmt.Fprintf(w, "Host: %s\r\n", c.host)
	if h := rng.Header(); h != "" {
		fmt.Fprintf(w, "Range: %s\r\n", h)
	}
	if srv.BasicAuth != "" {
		fmt.Fprintf(w, "Authorization: Basic %s\r\n", srv.BasicAuth)
	}
	w.WriteString("Connection: keep-alive\r\n\r\n")
	if err := w.Flush(); err != nil {
		return nil, &Error{Op: "request", Server: srv.Name, Path: path, Err: err}
	}

	resp, err := http.ReadResponse(c.reader, nil)
	if err != nil {
		return nil, &Error{Op: "read", Server: srv.Name, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := readResponse(resp, srv, path, rng, f.log)
	if resp.Close {
		c.close()
	}
	return data, err
}

func (c *conn) close() {
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
		c.reader = nil
	}
}

// Close drops every connection.
func (f *SocketFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, c := range f.conns {
		c.mu.Lock()
		c.close()
		c.mu.Unlock()
		delete(f.conns, key)
	}
}

// splitAddress accepts "host:port", "host:port/base" or a tcp:// URL.
func splitAddress(addr string) (host, base string, err error) {
	u, err := url.Parse("tcp://" + trimScheme(addr))
	if err != nil {
		return "", "", fmt.Errorf("parsing server address %q: %w", addr, err)
	}
	if u.Port() == "" {
		return "", "", fmt.Errorf("server address %q has no port", addr)
	}
	return u.Host, strings.TrimRight(u.Path, "/"), nil
}

func trimScheme(addr string) string {
	for _, prefix := range []string{"tcp://", "socket://", "http://"} {
		if rest, ok := strings.CutPrefix(addr, prefix); ok {
			return rest
		}
	}
	return addr
}
