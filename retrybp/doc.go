// Package retrybp wraps github.com/avast/retry-go with the error taxonomy of
// package searcherr.
//
// It's meant for the layer that orchestrates attempts across connections:
// Filters decide whether an error is worth another attempt, and the delay
// options decide how long to wait before it.
package retrybp
