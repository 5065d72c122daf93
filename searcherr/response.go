package searcherr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/reddit/searchbp.go/transport"
)

// ResponseError is returned when the cluster answered with an application
// level error.
//
// Its message is synthesized from the error body, for example a body of
//
//	{"error": {"type": "x", "root_cause": [{"type": "y", "reason": "z"}]}}
//
// produces the message "x: [y] Reason: z".
type ResponseError struct {
	Meta *transport.Result

	message string
}

// NewResponseError creates a ResponseError out of an envelope.
//
// A raw ([]byte or json.RawMessage) body is decoded as json when possible.
func NewResponseError(meta *transport.Result) *ResponseError {
	e := &ResponseError{Meta: meta}
	e.message = e.buildMessage()
	return e
}

func (e *ResponseError) Error() string        { return e.message }
func (e *ResponseError) Is(target error) bool { return target == ErrClient }

// Body returns the (decoded when possible) body of the error response.
func (e *ResponseError) Body() interface{} {
	if e.Meta == nil {
		return nil
	}
	return decodeBody(e.Meta.Body)
}

// StatusCode returns the status embedded in the error body when there's one,
// and the http status code of the response otherwise.
func (e *ResponseError) StatusCode() int {
	if body, ok := e.Body().(map[string]interface{}); ok {
		switch status := body["status"].(type) {
		case float64:
			return int(status)
		case int:
			return status
		}
	}
	if e.Meta == nil {
		return 0
	}
	return e.Meta.StatusCode
}

// Headers returns the headers of the error response.
func (e *ResponseError) Headers() http.Header {
	if e.Meta == nil {
		return nil
	}
	return e.Meta.Headers
}

// String returns the json encoded body.
func (e *ResponseError) String() string {
	b, err := json.Marshal(e.Body())
	if err != nil {
		return fmt.Sprintf("%v", e.Body())
	}
	return string(b)
}

// Retryable implements retrybp.RetryableError.
//
// Gateway level failures (502, 503, 504) are retryable and other 4xx/5xx
// codes are not. Anything else is left to the next filter.
func (e *ResponseError) Retryable() int {
	switch code := e.StatusCode(); {
	case code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return 1
	case code >= 400:
		return -1
	default:
		return 0
	}
}

func (e *ResponseError) buildMessage() string {
	body := e.Body()
	if m, ok := body.(map[string]interface{}); ok {
		if errBody, ok := m["error"].(map[string]interface{}); ok {
			if typ, ok := errBody["type"].(string); ok && typ != "" {
				return typ + rootCauses(errBody["root_cause"])
			}
		}
	}
	switch b := body.(type) {
	case nil, map[string]interface{}, []interface{}:
		// the decoded body stays available through String
		return DefaultResponseMessage
	case string:
		return orDefault(b, DefaultResponseMessage)
	default:
		return fmt.Sprintf("%v", b)
	}
}

func rootCauses(v interface{}) string {
	causes, ok := v.([]interface{})
	if !ok || len(causes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(causes))
	for _, c := range causes {
		entry, _ := c.(map[string]interface{})
		parts = append(parts, fmt.Sprintf("[%v] Reason: %v", entry["type"], entry["reason"]))
	}
	return ": " + strings.Join(parts, "; ")
}

func decodeBody(body interface{}) interface{} {
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	case json.RawMessage:
		raw = b
	default:
		return body
	}
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
