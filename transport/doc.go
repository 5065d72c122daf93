// Package transport defines the data shapes exchanged between the connection
// core and the request dispatcher that drives it: request parameters, request
// options and the result envelope of one attempt.
//
// The types here are plain data. They carry no behavior besides a few
// helpers for building envelopes from raw HTTP responses.
package transport
