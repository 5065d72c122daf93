package connection

import (
	"net/http"

	"github.com/reddit/searchbp.go/transport"
)

// NewRequestParams builds the params of one attempt from the API call and
// the per-call options of the dispatcher.
//
// BulkBody takes precedence over Body. The query strings of both are
// joined, and OpaqueID is sent as the X-Opaque-Id header.
func NewRequestParams(params transport.RequestParams, opts transport.RequestOptions) RequestParams {
	body := params.Body
	if len(params.BulkBody) > 0 {
		body = params.BulkBody
	}
	headers := opts.Headers.Clone()
	if opts.OpaqueID != "" {
		if headers == nil {
			headers = make(http.Header, 1)
		}
		headers.Set(transport.HeaderOpaqueID, opts.OpaqueID)
	}
	return RequestParams{
		Method:      params.Method,
		Path:        params.Path,
		Querystring: joinQuery(params.Querystring, opts.Querystring),
		Headers:     headers,
		Body:        body,
		Compress:    opts.Compression == transport.CompressionGzip,
		Timeout:     opts.RequestTimeout,
		RequestID:   opts.ID,
	}
}
