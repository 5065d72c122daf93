// Package breakerbp provides a failure ratio circuit breaker that can wrap the
// agent of a connection.
package breakerbp

// CircuitBreaker is the interface a circuit breaker is expected to implement.
type CircuitBreaker interface {
	// Execute should wrap the given function call in circuit breaker logic and return the result.
	Execute(func() (interface{}, error)) (interface{}, error)
}
