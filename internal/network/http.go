package network

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPFetcher fetches payloads with HTTP range requests.
type HTTPFetcher struct {
	client *http.Client
	log    *zap.Logger
}

// NewHTTPFetcher creates a fetcher. A nil client gets a default with a
// 30 second timeout.
func NewHTTPFetcher(client *http.Client, log *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPFetcher{client: client, log: log.Named("http")}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, srv Server, path string, rng Range) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.Resolve(path), nil)
	if err != nil {
		return nil, &Error{Op: "request", Server: srv.Name, Path: path, Err: err}
	}
	if h := rng.Header(); h != "" {
		req.Header.Set("Range", h)
	}
	if srv.BasicAuth != "" {
		req.Header.Set("Authorization", "Basic "+srv.BasicAuth)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "request", Server: srv.Name, Path: path, Err: err}
	}
	defer resp.Body.Close()

	return readResponse(resp, srv, path, rng, f.log)
}

// readResponse turns a response into payload bytes. It is shared with the
// socket fetcher.
func readResponse(resp *http.Response, srv Server, path string, rng Range, log *zap.Logger) ([]byte, error) {
	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Op: "read", Server: srv.Name, Path: path, Err: err}
		}
		if rng != Full {
			log.Debug("server ignored range", zap.String("path", path), zap.Int("size", len(body)))
		}
		return rng.Slice(body), nil

	case http.StatusPartialContent:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Op: "read", Server: srv.Name, Path: path, Err: err}
		}
		return body, nil

	case http.StatusRequestedRangeNotSatisfiable:
		// Range starts past the end of the payload.
		return []byte{}, nil

	case http.StatusNotFound:
		return nil, ErrNotFound

	default:
		return nil, &Error{Op: "status", Server: srv.Name, Path: path, Status: resp.StatusCode}
	}
}
