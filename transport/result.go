package transport

import (
	"net/http"
	"net/url"
	"strings"
)

// Node is the view of a connection exposed in result envelopes and errors.
//
// *connection.Connection implements it.
type Node interface {
	ID() string
	URL() *url.URL
}

// Result is the envelope of one request attempt.
type Result struct {
	// Body is either the raw payload ([]byte) or the deserialized one.
	Body       interface{}
	StatusCode int
	Headers    http.Header
	Warnings   []string
	Meta       Meta
}

// Meta carries the diagnostic context of a Result.
type Meta struct {
	Context    interface{}
	Name       string
	Request    RequestMeta
	Connection Node
	Attempts   int
	Aborted    bool
	Sniff      *SniffMeta
}

// RequestMeta echoes the request an envelope belongs to.
type RequestMeta struct {
	Params  RequestParams
	Options RequestOptions
	ID      string
}

// SniffMeta is set on envelopes of topology discovery requests.
type SniffMeta struct {
	Hosts  []string
	Reason string
}

// ParseWarnings extracts the Warning headers of a response.
//
// Multiple warnings may be folded into one header line, separated by commas
// outside of quoted strings. It returns nil when there are none.
func ParseWarnings(header http.Header) []string {
	var warnings []string
	for _, line := range header.Values(HeaderWarning) {
		warnings = append(warnings, splitWarningLine(line)...)
	}
	return warnings
}

func splitWarningLine(line string) []string {
	var (
		parts   []string
		quoted  bool
		escaped bool
		start   int
	)
	for i, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			if part := strings.TrimSpace(line[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(line[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// NewResult builds an envelope out of a raw response whose body has already
// been read.
//
// Warnings are filled unless opts.Warnings is explicitly false.
func NewResult(resp *http.Response, body interface{}, meta Meta) *Result {
	r := &Result{
		Body: body,
		Meta: meta,
	}
	if resp != nil {
		r.StatusCode = resp.StatusCode
		r.Headers = resp.Header
		if w := meta.Request.Options.Warnings; w == nil || *w {
			r.Warnings = ParseWarnings(resp.Header)
		}
	}
	return r
}
