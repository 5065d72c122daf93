package transport

import (
	"net/http"
	"time"
)

// RequestParams describes the API call to be made, independently of the
// connection it ends up on.
type RequestParams struct {
	Method string
	Path   string

	// Body is the already serialized request body, if any.
	Body []byte

	// BulkBody is the already serialized newline delimited body of bulk
	// style endpoints. Only one of Body and BulkBody should be set.
	BulkBody []byte

	// Querystring is the encoded query string without leading "?".
	Querystring string
}

// RequestOptions are per-call knobs of the dispatcher.
type RequestOptions struct {
	// Status codes that should not be turned into a ResponseError.
	Ignore []int

	// RequestTimeout overrides the client wide request timeout when > 0.
	RequestTimeout time.Duration

	// MaxRetries overrides the client wide retry count when non-nil.
	MaxRetries *int

	// AsStream asks for the raw body stream instead of a parsed body.
	AsStream bool

	Headers     http.Header
	Querystring string

	// Compression is either empty or CompressionGzip.
	Compression string

	// ID identifies the request in logs and in Meta.Request.ID.
	// A random one is generated when empty.
	ID string

	// Context is opaque user data echoed back in Meta.Context.
	Context interface{}

	// Warnings set to false suppresses Result.Warnings.
	Warnings *bool

	// OpaqueID is sent as the X-Opaque-Id header.
	OpaqueID string
}
