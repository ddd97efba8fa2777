// Package network fetches tile payloads from data servers.
package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Protocols understood by the router.
const (
	ProtocolHTTP   = "http"
	ProtocolSocket = "socket"
	ProtocolSQLite = "sqlite"
)

// ErrNotFound is returned when the server has no payload at the path.
var ErrNotFound = errors.New("payload not found")

// Server describes one data server.
type Server struct {
	ID        int
	Name      string
	Protocol  string // http, socket or sqlite
	URL       string // Base URL, host:port for sockets, file path for sqlite
	BasicAuth string // Sent verbatim as "Authorization: Basic <key>"
	URLAppend string // Appended to every request path, e.g. "?token=..."
}

// Resolve joins the server base with a payload path.
func (s Server) Resolve(path string) string {
	base := strings.TrimSuffix(s.URL, "/")
	return base + "/" + strings.TrimPrefix(path, "/") + s.URLAppend
}

// Range selects a byte window of a payload. A zero Length reads to the end.
type Range struct {
	Offset int64
	Length int64
}

// Full reads the whole payload.
var Full = Range{}

// Header formats the range for an HTTP Range header. It returns "" for Full.
func (r Range) Header() string {
	switch {
	case r.Offset == 0 && r.Length == 0:
		return ""
	case r.Length == 0:
		return fmt.Sprintf("bytes=%d-", r.Offset)
	default:
		return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
	}
}

// Slice applies the range to a complete payload. Offsets past the end yield
// an empty slice.
func (r Range) Slice(data []byte) []byte {
	if r.Offset >= int64(len(data)) {
		return data[:0]
	}
	end := int64(len(data))
	if r.Length > 0 && r.Offset+r.Length < end {
		end = r.Offset + r.Length
	}
	return data[r.Offset:end]
}

// Fetcher retrieves payload bytes. A response shorter than the requested
// range means the payload ended.
type Fetcher interface {
	Fetch(ctx context.Context, srv Server, path string, rng Range) ([]byte, error)
}

// Error is a failed fetch that is not ErrNotFound.
type Error struct {
	Op     string // dial, request, status, read
	Server string
	Path   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s/%s", e.Op, e.Server, e.Path)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying may succeed.
func (e *Error) Temporary() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch {
	case e.Status == 0:
		return true
	case e.Status == 429, e.Status >= 500:
		return true
	default:
		return false
	}
}

// IsTemporary reports whether err is worth retrying.
func IsTemporary(err error) bool {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Temporary()
	}
	return false
}
