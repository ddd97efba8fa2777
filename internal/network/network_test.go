package network

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = []byte("0123456789abcdefghij")

func rangeServer(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastRange atomic.Value
	lastRange.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastRange.Store(r.Header.Get("Range"))
		switch r.URL.Path {
		case "/tiles/a.ptw":
			http.ServeContent(w, r, "a.ptw", time.Time{}, bytes.NewReader(payload))
		case "/plain/a.ptw":
			w.Write(payload)
		case "/broken/a.ptw":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/denied/a.ptw":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &lastRange
}

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "", Full.Header())
	assert.Equal(t, "bytes=4-", Range{Offset: 4}.Header())
	assert.Equal(t, "bytes=0-9", Range{Length: 10}.Header())
	assert.Equal(t, "bytes=10-14", Range{Offset: 10, Length: 5}.Header())
}

func TestRangeSlice(t *testing.T) {
	assert.Equal(t, payload, Full.Slice(payload))
	assert.Equal(t, []byte("45"), Range{Offset: 4, Length: 2}.Slice(payload))
	assert.Equal(t, []byte("ij"), Range{Offset: 18, Length: 10}.Slice(payload))
	assert.Empty(t, Range{Offset: 50}.Slice(payload))
}

func TestHTTPFetcherPartialContent(t *testing.T) {
	srv, lastRange := rangeServer(t)
	f := NewHTTPFetcher(nil, nil)
	s := Server{Name: "test", URL: srv.URL + "/tiles"}

	data, err := f.Fetch(context.Background(), s, "a.ptw", Range{Offset: 2, Length: 4})
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), data)
	assert.Equal(t, "bytes=2-5", lastRange.Load())

	data, err = f.Fetch(context.Background(), s, "a.ptw", Full)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "", lastRange.Load())
}

func TestHTTPFetcherRangePastEnd(t *testing.T) {
	srv, _ := rangeServer(t)
	f := NewHTTPFetcher(nil, nil)
	s := Server{Name: "test", URL: srv.URL + "/tiles"}

	data, err := f.Fetch(context.Background(), s, "a.ptw", Range{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestHTTPFetcherIgnoredRange(t *testing.T) {
	srv, _ := rangeServer(t)
	f := NewHTTPFetcher(nil, nil)
	s := Server{Name: "test", URL: srv.URL + "/plain"}

	data, err := f.Fetch(context.Background(), s, "a.ptw", Range{Offset: 10, Length: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestHTTPFetcherErrors(t *testing.T) {
	srv, _ := rangeServer(t)
	f := NewHTTPFetcher(nil, nil)

	_, err := f.Fetch(context.Background(), Server{URL: srv.URL + "/missing"}, "a.ptw", Full)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTemporary(err))

	_, err = f.Fetch(context.Background(), Server{URL: srv.URL + "/broken"}, "a.ptw", Full)
	var ne *Error
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusServiceUnavailable, ne.Status)
	assert.True(t, IsTemporary(err))

	_, err = f.Fetch(context.Background(), Server{URL: srv.URL + "/denied"}, "a.ptw", Full)
	require.ErrorAs(t, err, &ne)
	assert.False(t, ne.Temporary())
}

func TestHTTPFetcherAuthAndAppend(t *testing.T) {
	var auth, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		query = r.URL.RawQuery
		w.Write(payload)
	}))
	defer srv.Close()

	s := Server{URL: srv.URL, BasicAuth: "dXNlcjpwYXNz", URLAppend: "?token=42"}
	_, err := NewHTTPFetcher(nil, nil).Fetch(context.Background(), s, "L0/a.ptw", Full)
	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjpwYXNz", auth)
	assert.Equal(t, "token=42", query)
}

func TestSocketFetcherReusesConnection(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "a.ptw", time.Time{}, bytes.NewReader(payload))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	f := NewSocketFetcher(time.Second, nil)
	defer f.Close()
	s := Server{Name: "sock", Protocol: ProtocolSocket, URL: srv.Listener.Addr().String() + "/tiles"}

	for i := 0; i < 3; i++ {
		data, err := f.Fetch(context.Background(), s, "a.ptw", Range{Offset: int64(i), Length: 2})
		require.NoError(t, err)
		assert.Equal(t, payload[i:i+2], data)
	}
	assert.Equal(t, int32(1), conns.Load())
}

func TestSocketFetcherNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewSocketFetcher(time.Second, nil)
	defer f.Close()

	_, err := f.Fetch(context.Background(), Server{URL: srv.URL}, "nothing", Full)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSocketFetcherCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	f := NewSocketFetcher(time.Second, nil)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := f.Fetch(ctx, Server{URL: srv.URL}, "slow", Full)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTemporary(err))
}

func TestSplitAddress(t *testing.T) {
	host, base, err := splitAddress("tiles.example.com:9000/data/")
	require.NoError(t, err)
	assert.Equal(t, "tiles.example.com:9000", host)
	assert.Equal(t, "/data", base)

	_, _, err = splitAddress("noport")
	assert.Error(t, err)
}

type stubFetcher struct{ calls int }

func (s *stubFetcher) Fetch(context.Context, Server, string, Range) ([]byte, error) {
	s.calls++
	return payload, nil
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	httpStub := &stubFetcher{}
	sqlStub := &stubFetcher{}
	r.Register(ProtocolHTTP, httpStub)
	r.Register(ProtocolSQLite, sqlStub)

	_, err := r.Fetch(context.Background(), Server{}, "a", Full)
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), Server{Protocol: ProtocolSQLite}, "a", Full)
	require.NoError(t, err)
	assert.Equal(t, 1, httpStub.calls)
	assert.Equal(t, 1, sqlStub.calls)

	_, err = r.Fetch(context.Background(), Server{Protocol: "ftp"}, "a", Full)
	assert.Error(t, err)
}
