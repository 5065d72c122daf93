package connection_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/sony/gobreaker"

	"github.com/reddit/searchbp.go/breakerbp"
	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/searcherr"
)

type recordedRequest struct {
	method  string
	path    string
	query   string
	headers http.Header
	body    []byte
	chunked bool
	close   bool
}

// recordingServer answers 200 to everything and records the last request.
func recordingServer(tb testing.TB) (*httptest.Server, func() recordedRequest) {
	tb.Helper()
	var (
		mu   sync.Mutex
		last recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		chunked := len(r.TransferEncoding) > 0 && r.TransferEncoding[0] == "chunked"
		mu.Lock()
		last = recordedRequest{
			method:  r.Method,
			path:    r.URL.EscapedPath(),
			query:   r.URL.RawQuery,
			headers: r.Header.Clone(),
			body:    body,
			chunked: chunked,
			close:   r.Close,
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"acknowledged":true}`))
	}))
	tb.Cleanup(server.Close)
	return server, func() recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestRequestPathResolution(t *testing.T) {
	server, last := recordingServer(t)

	for _, c := range []struct {
		label string
		base  string
		path  string
		query string
		want  string
		wantQ string
	}{
		{
			label: "root-slash-path-slash",
			base:  "/",
			path:  "/_search",
			want:  "/_search",
		},
		{
			label: "no-base-path",
			base:  "",
			path:  "/_search",
			want:  "/_search",
		},
		{
			label: "prefix-path-without-slash",
			base:  "/prefix",
			path:  "_search",
			want:  "/prefix/_search",
		},
		{
			label: "prefix-slash-path-slash",
			base:  "/prefix/",
			path:  "/_search",
			want:  "/prefix/_search",
		},
		{
			label: "escaped",
			base:  "/",
			path:  "/my%20index/_doc/%C3%A9",
			want:  "/my%20index/_doc/%C3%A9",
		},
		{
			label: "querystring",
			base:  "/?pretty=true",
			path:  "/_search",
			query: "q=foo",
			want:  "/_search",
			wantQ: "pretty=true&q=foo",
		},
		{
			label: "querystring-only-request",
			base:  "/",
			path:  "/_search",
			query: "q=foo",
			want:  "/_search",
			wantQ: "q=foo",
		},
	} {
		t.Run(c.label, func(t *testing.T) {
			conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL+c.base)})
			resp, err := conn.Request(context.Background(), connection.RequestParams{
				Path:        c.path,
				Querystring: c.query,
			})
			if err != nil {
				t.Fatalf("Request: %v", err)
			}
			resp.Body.Close()

			got := last()
			if got.path != c.want {
				t.Errorf("path got %q, want %q", got.path, c.want)
			}
			if got.query != c.wantQ {
				t.Errorf("query got %q, want %q", got.query, c.wantQ)
			}
			if got.method != http.MethodGet {
				t.Errorf("method got %q, want GET", got.method)
			}
		})
	}
}

func TestRequestInvalidPath(t *testing.T) {
	server, _ := recordingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	for _, path := range []string{"/my index", "/tab\t", "/emoji/\U0001F600"} {
		t.Run(path, func(t *testing.T) {
			_, err := conn.Request(context.Background(), connection.RequestParams{Path: path})
			var ce *searcherr.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *searcherr.ConfigurationError, got %v", err)
			}
			if !strings.HasPrefix(ce.Error(), "ERR_UNESCAPED_CHARACTERS") {
				t.Errorf("unexpected message %q", ce.Error())
			}
			if n := conn.OpenRequests(); n != 0 {
				t.Errorf("rejected request must not touch the counter, got %d", n)
			}
		})
	}
}

func TestRequestHeadersAndBody(t *testing.T) {
	server, last := recordingServer(t)
	conn := newConnection(t, connection.Config{
		URL: mustParseURL(t, server.URL),
		Headers: http.Header{
			"X-Default":  {"default"},
			"X-Override": {"default"},
		},
	})

	resp, err := conn.Request(context.Background(), connection.RequestParams{
		Method: http.MethodPost,
		Path:   "/index/_doc",
		Headers: http.Header{
			"X-Override":  {"request"},
			"X-Opaque-Id": {"opaque"},
		},
		Body:      []byte(`{"title":"test"}`),
		RequestID: "request-1",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"acknowledged":true}` {
		t.Errorf("response body got %q", body)
	}
	if resp.RequestID != "request-1" {
		t.Errorf("RequestID got %q, want request-1", resp.RequestID)
	}
	if resp.Connection != conn {
		t.Error("Response.Connection must be the connection used")
	}

	got := last()
	if got.method != http.MethodPost {
		t.Errorf("method got %q", got.method)
	}
	for key, want := range map[string]string{
		"X-Default":   "default",
		"X-Override":  "request",
		"X-Opaque-Id": "opaque",
	} {
		if v := got.headers.Get(key); v != want {
			t.Errorf("header %s got %q, want %q", key, v, want)
		}
	}
	if string(got.body) != `{"title":"test"}` {
		t.Errorf("request body got %q", got.body)
	}
}

func TestRequestGeneratesID(t *testing.T) {
	server, _ := recordingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	resp, err := conn.Request(context.Background(), connection.RequestParams{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp.Body.Close()
	if len(resp.RequestID) != 36 {
		t.Errorf("expected a generated uuid, got %q", resp.RequestID)
	}
}

func TestRequestCompress(t *testing.T) {
	server, last := recordingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	payload := []byte(strings.Repeat(`{"field":"value"}`, 100))
	resp, err := conn.Request(context.Background(), connection.RequestParams{
		Method:   http.MethodPost,
		Path:     "/_bulk",
		Body:     payload,
		Compress: true,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp.Body.Close()

	got := last()
	if v := got.headers.Get("Content-Encoding"); v != "gzip" {
		t.Errorf("Content-Encoding got %q, want gzip", v)
	}
	r, err := gzip.NewReader(bytes.NewReader(got.body))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("decompressed body does not match the payload")
	}
}

func TestRequestStream(t *testing.T) {
	server, last := recordingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte(`{"index":{}}` + "\n"))
		pw.Write([]byte(`{"field":"value"}` + "\n"))
		pw.Close()
	}()
	resp, err := conn.Request(context.Background(), connection.RequestParams{
		Method: http.MethodPost,
		Path:   "/_bulk",
		Stream: pr,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp.Body.Close()

	got := last()
	if want := `{"index":{}}` + "\n" + `{"field":"value"}` + "\n"; string(got.body) != want {
		t.Errorf("body got %q, want %q", got.body, want)
	}
	if !got.chunked {
		t.Error("expected chunked transfer encoding for streams")
	}
}

var errBrokenStream = errors.New("broken stream")

func TestRequestStreamError(t *testing.T) {
	server, _ := recordingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte(`{"index":{}}` + "\n"))
		pw.CloseWithError(errBrokenStream)
	}()
	_, err := conn.Request(context.Background(), connection.RequestParams{
		Method: http.MethodPost,
		Path:   "/_bulk",
		Stream: pr,
	})
	var ce *searcherr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *searcherr.ConnectionError, got %v", err)
	}
	if !errors.Is(err, errBrokenStream) {
		t.Errorf("expected the stream error as cause, got %v", err)
	}
	if n := conn.OpenRequests(); n != 0 {
		t.Errorf("OpenRequests() got %d, want 0", n)
	}
}

func TestRequestConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	conn := newConnection(t, connection.Config{URL: mustParseURL(t, url)})
	_, err := conn.Request(context.Background(), connection.RequestParams{Path: "/"})
	var ce *searcherr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *searcherr.ConnectionError, got %v", err)
	}
	if ce.Meta == nil || ce.Meta.Meta.Connection != conn {
		t.Error("expected the error meta to point at the connection")
	}
	if ce.Retryable() <= 0 {
		t.Error("connection errors must be retryable")
	}
	if n := conn.OpenRequests(); n != 0 {
		t.Errorf("OpenRequests() got %d, want 0", n)
	}
}

func TestRequestTimeout(t *testing.T) {
	server := newBlockingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	start := time.Now()
	_, err := conn.Request(context.Background(), connection.RequestParams{
		Path:    "/",
		Timeout: 20 * time.Millisecond,
	})
	var te *searcherr.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *searcherr.TimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("timed out too early after %v", elapsed)
	}
	if te.Meta.Meta.Aborted {
		t.Error("a timeout must not be flagged as aborted")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded as cause, got %v", te.Cause)
	}
	if n := conn.OpenRequests(); n != 0 {
		t.Errorf("OpenRequests() got %d, want 0", n)
	}
}

func TestRequestContextDeadline(t *testing.T) {
	server := newBlockingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := conn.Request(ctx, connection.RequestParams{Path: "/"})
	var te *searcherr.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *searcherr.TimeoutError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded as cause, got %v", err)
	}
}

func TestRequestAbort(t *testing.T) {
	server := newBlockingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	var (
		mu    sync.Mutex
		calls int
		got   error
	)
	h := conn.Start(context.Background(), connection.RequestParams{Path: "/"}, func(resp *connection.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		got = err
	})
	server.waitArrived(t)
	h.Abort()
	h.Abort()
	<-h.Done()

	// Releasing the handler after the abort must not produce a second
	// outcome.
	server.Release()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("callback called %d times, want 1", calls)
	}
	var ae *searcherr.RequestAbortedError
	if !errors.As(got, &ae) {
		t.Fatalf("expected *searcherr.RequestAbortedError, got %v", got)
	}
	if !ae.Meta.Meta.Aborted {
		t.Error("expected the meta to be flagged as aborted")
	}
	if ae.Retryable() >= 0 {
		t.Error("aborted requests must not be retryable")
	}
	if n := conn.OpenRequests(); n != 0 {
		t.Errorf("OpenRequests() got %d, want 0", n)
	}
}

func TestStartSuccess(t *testing.T) {
	server, _ := recordingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	var body string
	h := conn.Start(context.Background(), connection.RequestParams{Path: "/"}, func(resp *connection.Response, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
	})
	<-h.Done()
	if body != `{"acknowledged":true}` {
		t.Errorf("body got %q", body)
	}
}

func TestStartReleasesContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
			w.Write([]byte(`{"ok":true}`))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	var kept *connection.Response
	h := conn.Start(context.Background(), connection.RequestParams{Path: "/"}, func(resp *connection.Response, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		kept = resp
	})
	<-h.Done()
	if kept == nil {
		t.Fatal("no response")
	}
	defer kept.Body.Close()

	// The body was left unread by the callback, its context is gone now.
	if _, err := io.ReadAll(kept.Body); err == nil {
		t.Error("expected reading the body after the callback returned to fail")
	}
}

func TestStartTimeoutRace(t *testing.T) {
	const (
		n     = 200
		delay = 2 * time.Millisecond
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			w.Write([]byte(`{"ok":true}`))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	var (
		calls     [n]atomic.Int32
		completed atomic.Int32
		timedOut  atomic.Int32
		handles   = make([]*connection.Handle, 0, n)
	)
	for i := 0; i < n; i++ {
		handles = append(handles, conn.Start(context.Background(), connection.RequestParams{
			Path:    "/",
			Timeout: delay,
		}, func(resp *connection.Response, err error) {
			calls[i].Add(1)
			if err != nil {
				var te *searcherr.TimeoutError
				if !errors.As(err, &te) {
					t.Errorf("expected *searcherr.TimeoutError, got %v", err)
				}
				timedOut.Add(1)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			completed.Add(1)
		}))
	}
	for _, h := range handles {
		<-h.Done()
	}

	for i := range calls {
		if got := calls[i].Load(); got != 1 {
			t.Errorf("request %d: callback called %d times, want 1", i, got)
		}
	}
	if got := completed.Load() + timedOut.Load(); got != n {
		t.Errorf("got %d outcomes, want %d", got, n)
	}
	waitFor(t, "open requests to drain", func() bool {
		return conn.OpenRequests() == 0
	})
}

func TestOpenRequestsAccounting(t *testing.T) {
	const n = 10

	server := newBlockingServer(t)
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, server.URL)})

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp, err := conn.Request(context.Background(), connection.RequestParams{Path: "/"})
			if err != nil {
				t.Errorf("Request: %v", err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}
	for i := 0; i < n; i++ {
		server.waitArrived(t)
	}
	if got := conn.OpenRequests(); got != n {
		t.Errorf("OpenRequests() got %d, want %d", got, n)
	}
	server.Release()
	wg.Wait()
	if got := conn.OpenRequests(); got != 0 {
		t.Errorf("OpenRequests() got %d, want 0", got)
	}
}

func TestRequestSpan(t *testing.T) {
	tracer := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(prev) })

	server, _ := recordingServer(t)
	conn := newConnection(t, connection.Config{
		URL:  mustParseURL(t, server.URL),
		Name: "search",
	})
	resp, err := conn.Request(context.Background(), connection.RequestParams{
		Path:      "/_search",
		RequestID: "request-1",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp.Body.Close()

	spans := tracer.FinishedSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 finished span, got %d", len(spans))
	}
	span := spans[0]
	if span.OperationName != "search.request" {
		t.Errorf("operation name got %q, want search.request", span.OperationName)
	}
	for key, want := range map[string]interface{}{
		"http.method":      "GET",
		"http.status_code": uint16(http.StatusOK),
		"request.id":       "request-1",
		"connection.id":    conn.ID(),
	} {
		if got := span.Tag(key); got != want {
			t.Errorf("tag %s got %#v, want %#v", key, got, want)
		}
	}
	if span.Tag("error") != nil {
		t.Error("successful span must not be tagged as error")
	}
}

func TestRequestCircuitBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	conn := newConnection(t, connection.Config{
		URL: mustParseURL(t, server.URL),
		CircuitBreaker: &breakerbp.Config{
			MinRequestsToTrip: 2,
			FailureThreshold:  0.5,
			Timeout:           time.Minute,
		},
	})
	for i := 0; i < 2; i++ {
		resp, err := conn.Request(context.Background(), connection.RequestParams{Path: "/"})
		if err != nil {
			t.Fatalf("request #%d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("request #%d status got %d", i, resp.StatusCode)
		}
	}

	_, err := conn.Request(context.Background(), connection.RequestParams{Path: "/"})
	var ce *searcherr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *searcherr.ConnectionError, got %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected gobreaker.ErrOpenState as cause, got %v", err)
	}
}

func TestRequestRateLimit(t *testing.T) {
	server, _ := recordingServer(t)
	conn := newConnection(t, connection.Config{
		URL:       mustParseURL(t, server.URL),
		RateLimit: 0.1,
	})

	resp, err := conn.Request(context.Background(), connection.RequestParams{Path: "/"})
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Request(ctx, connection.RequestParams{Path: "/"})
	var te *searcherr.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *searcherr.TimeoutError, got %v", err)
	}
	if n := conn.OpenRequests(); n != 0 {
		t.Errorf("OpenRequests() got %d, want 0", n)
	}
}

func TestRequestDisableAgent(t *testing.T) {
	server, last := recordingServer(t)
	conn := newConnection(t, connection.Config{
		URL:          mustParseURL(t, server.URL),
		DisableAgent: true,
	})
	resp, err := conn.Request(context.Background(), connection.RequestParams{Path: "/"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp.Body.Close()
	if !last().close {
		t.Error("expected Connection: close without an agent")
	}
}
