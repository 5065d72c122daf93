package transport

// HTTP header names used by the client.
const (
	HeaderAuthorization   = "Authorization"
	HeaderContentType     = "Content-Type"
	HeaderContentEncoding = "Content-Encoding"
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderUserAgent       = "User-Agent"
	// X-Opaque-Id is echoed back by the cluster in task and slow logs, it's
	// the recommended way to correlate client requests with server side logs.
	HeaderOpaqueID = "X-Opaque-Id"
	// Warnings emitted by the cluster (deprecations and the like).
	HeaderWarning = "Warning"
)

// CompressionGzip is the only supported value of RequestOptions.Compression.
const CompressionGzip = "gzip"
