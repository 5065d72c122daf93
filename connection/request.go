package connection

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"

	"github.com/reddit/searchbp.go/log"
	"github.com/reddit/searchbp.go/searcherr"
	"github.com/reddit/searchbp.go/transport"
)

// RequestParams describes one HTTP exchange.
type RequestParams struct {
	// Method defaults to GET.
	Method string

	// Path is resolved against the path of the connection URL. It must be
	// escaped already and only contain characters in the !-ÿ range.
	Path string

	// Querystring is appended to the query of the connection URL, without
	// the leading "?".
	Querystring string

	// Headers override the default headers of the connection key by key.
	Headers http.Header

	// Body is the payload. Stream takes precedence when both are set.
	Body []byte

	// Stream is piped as the payload with chunked encoding.
	Stream io.Reader

	// Compress gzips Body. It doesn't apply to Stream.
	Compress bool

	// Timeout bounds the time until the response headers arrive, 0 means no
	// timeout other than the deadline of the context.
	Timeout time.Duration

	// RequestID identifies the request in logs and spans, a uuid v4 is
	// generated when empty.
	RequestID string
}

// Response is the successful outcome of a request.
//
// The caller must close Body.
type Response struct {
	*http.Response

	// RequestID is RequestParams.RequestID, or the generated one.
	RequestID string

	// Connection is the connection the request was sent through.
	Connection *Connection
}

// Request sends one request through the connection and blocks until it
// reaches a terminal state.
//
// It returns either a response or exactly one of:
//
//   - *searcherr.TimeoutError when params.Timeout fired, or the deadline of
//     ctx passed, before the response arrived;
//   - *searcherr.RequestAbortedError when ctx was canceled;
//   - *searcherr.ConnectionError on transport failures, including a failing
//     Stream;
//   - *searcherr.ConfigurationError for invalid params, in which case nothing
//     was sent.
//
// Responses are returned whatever their status code, turning error statuses
// into *searcherr.ResponseError is up to the caller.
func (c *Connection) Request(ctx context.Context, params RequestParams) (*Response, error) {
	requestID := params.RequestID
	if requestID == "" {
		requestID = newRequestID()
	}
	meta := c.resultMeta(params, requestID)

	req, stream, err := c.newRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, limiterError(ctx, err, meta)
		}
	}

	c.openRequests.Inc()
	start := time.Now()
	span, ctx := opentracing.StartSpanFromContext(ctx, c.name+".request", ext.SpanKindRPCClient)
	ext.Component.Set(span, c.name)
	ext.HTTPMethod.Set(span, req.Method)
	ext.HTTPUrl.Set(span, req.URL.String())
	span.SetTag("connection.id", c.ID())
	span.SetTag("request.id", requestID)

	resp, state, err := c.roundTrip(ctx, req, params.Timeout, stream, meta)

	logger := c.requestLogger(ctx, requestID)
	if !c.openRequests.Dec() {
		logger.Errorw("Open requests counter went below zero")
	}

	requestsTotal.WithLabelValues(c.name, state.String()).Inc()
	requestLatency.WithLabelValues(c.name, state.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		ext.Error.Set(span, true)
		span.LogKV("event", "error", "error.kind", searcherr.Name(err), "message", err.Error())
	} else {
		ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))
	}
	span.Finish()

	logger.Debugw(
		"Request finished",
		"method", req.Method,
		"path", req.URL.EscapedPath(),
		"outcome", state.String(),
	)
	if err != nil {
		return nil, err
	}
	return &Response{
		Response:   resp,
		RequestID:  requestID,
		Connection: c,
	}, nil
}

// requestLogger returns the injected logger, or the logger attached to ctx,
// with the ids of the request and the connection.
func (c *Connection) requestLogger(ctx context.Context, requestID string) *zap.SugaredLogger {
	if c.logger != nil {
		return c.logger.With("request_id", requestID, "connection_id", c.ID())
	}
	return log.C(log.Attach(ctx, log.AttachArgs{
		RequestID:    requestID,
		ConnectionID: c.ID(),
	}))
}

// roundTrip runs the request state machine.
//
// Three sources race to finish the request: the round trip itself, the
// timeout timer and ctx. The timer and the ctx watcher are stopped before
// roundTrip returns.
func (c *Connection) roundTrip(
	ctx context.Context,
	req *http.Request,
	timeout time.Duration,
	stream *trackedBody,
	meta *transport.Result,
) (*http.Response, requestState, error) {
	var lc lifecycle
	reqCtx, cancel := context.WithCancel(ctx)

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			if lc.finish(stateTimedOut) {
				cancel()
			}
		})
	}
	stopWatch := context.AfterFunc(ctx, func() {
		if lc.finish(contextState(ctx.Err())) {
			cancel()
		}
	})

	resp, err := c.transport.RoundTrip(req.WithContext(reqCtx))

	if timer != nil {
		timer.Stop()
	}
	stopWatch()

	if err == nil {
		if lc.finish(stateCompleted) {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, stateCompleted, nil
		}
		// A timeout or an abort won the race against the response.
		resp.Body.Close()
	} else {
		// The watcher runs asynchronously, an already done ctx may not have
		// been seen yet.
		if ctxErr := ctx.Err(); ctxErr != nil {
			lc.finish(contextState(ctxErr))
		}
		lc.finish(stateErrored)
	}
	cancel()

	state := lc.current()
	switch state {
	case stateTimedOut:
		cause := ctx.Err()
		if cause == nil {
			// fired by the timer, ctx itself is still live
			cause = context.DeadlineExceeded
		}
		return nil, state, &searcherr.TimeoutError{Meta: meta, Cause: cause}
	case stateAborted:
		meta.Meta.Aborted = true
		return nil, state, searcherr.NewRequestAbortedError(ctx.Err(), meta)
	default:
		if streamErr := stream.failure(); streamErr != nil {
			err = streamErr
		}
		return nil, stateErrored, searcherr.NewConnectionError(err, meta)
	}
}

func limiterError(ctx context.Context, err error, meta *transport.Result) error {
	if ctxErr := ctx.Err(); ctxErr != nil && contextState(ctxErr) == stateAborted {
		meta.Meta.Aborted = true
		return searcherr.NewRequestAbortedError(ctxErr, meta)
	}
	// Either the deadline passed, or waiting would exceed it.
	return &searcherr.TimeoutError{Meta: meta, Cause: err}
}

func (c *Connection) resultMeta(params RequestParams, requestID string) *transport.Result {
	return &transport.Result{
		Meta: transport.Meta{
			Name:       c.name,
			Connection: c,
			Request: transport.RequestMeta{
				ID: requestID,
				Params: transport.RequestParams{
					Method:      params.Method,
					Path:        params.Path,
					Querystring: params.Querystring,
				},
			},
		},
	}
}

func (c *Connection) newRequest(ctx context.Context, params RequestParams) (*http.Request, *trackedBody, error) {
	u := cloneURL(c.url)
	u.User = nil

	rawPath := resolvePath(u.EscapedPath(), params.Path)
	if err := validatePath(rawPath); err != nil {
		return nil, nil, err
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, nil, searcherr.Configurationf("connection: invalid path %q: %v", rawPath, err)
	}
	u.Path = path
	u.RawPath = rawPath
	u.RawQuery = joinQuery(u.RawQuery, params.Querystring)

	headers := c.headers.Clone()
	for key, values := range params.Headers {
		headers.Del(key)
		for _, v := range values {
			headers.Add(key, v)
		}
	}

	var (
		body   io.Reader
		stream *trackedBody
	)
	switch {
	case params.Stream != nil:
		stream = &trackedBody{r: params.Stream}
		body = stream
	case params.Body != nil:
		payload := params.Body
		if params.Compress {
			payload, err = gzipBody(payload)
			if err != nil {
				return nil, nil, &searcherr.SerializationError{Data: params.Body, Cause: err}
			}
			headers.Set(transport.HeaderContentEncoding, transport.CompressionGzip)
		}
		body = bytes.NewReader(payload)
	}

	method := params.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, "", body)
	if err != nil {
		return nil, nil, searcherr.Configurationf("connection: invalid request: %v", err)
	}
	req.URL = u
	req.Host = u.Host
	if host := headers.Get("Host"); host != "" {
		req.Host = host
	}
	req.Header = headers
	return req, stream, nil
}

// resolvePath joins base and path with exactly one slash between them.
func resolvePath(base, path string) string {
	baseSlash := strings.HasSuffix(base, "/")
	pathSlash := strings.HasPrefix(path, "/")
	switch {
	case baseSlash && pathSlash:
		return base + path[1:]
	case baseSlash != pathSlash:
		return base + path
	default:
		return base + "/" + path
	}
}

// validatePath rejects paths with characters outside of !-ÿ.
func validatePath(path string) error {
	for _, r := range path {
		if r < '\u0021' || r > '\u00ff' {
			return searcherr.Configurationf("ERR_UNESCAPED_CHARACTERS: %s", path)
		}
	}
	return nil
}

func joinQuery(base, extra string) string {
	extra = strings.TrimPrefix(extra, "?")
	switch {
	case extra == "":
		return base
	case base == "":
		return extra
	default:
		return base + "&" + extra
	}
}

func gzipBody(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// Only fails when the system random source does.
		return ""
	}
	return id.String()
}

// trackedBody remembers the first error of the stream it reads from, so a
// failing stream is reported as the cause instead of the transport error it
// leads to.
type trackedBody struct {
	r io.Reader

	mu  sync.Mutex
	err error
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.mu.Lock()
		if b.err == nil {
			b.err = err
		}
		b.mu.Unlock()
	}
	return n, err
}

func (b *trackedBody) Close() error {
	if closer, ok := b.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (b *trackedBody) failure() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// cancelOnClose releases the request context once the response body is
// closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
