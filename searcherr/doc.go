// Package searcherr defines the error taxonomy shared by the connection and
// pool packages and by whatever dispatches requests through them.
//
// Every error type in this package matches ErrClient with errors.Is, so
// callers can tell client errors from everything else with a single check:
//
//	if errors.Is(err, searcherr.ErrClient) {
//		// error produced by this client
//	}
//
// Errors fall into two families. Response-carrying errors (TimeoutError,
// ConnectionError, RequestAbortedError, NoLivingConnectionsError,
// NotCompatibleError and ResponseError) carry the result envelope of the
// attempt when one is available. Local errors (SerializationError,
// DeserializationError and ConfigurationError) carry no remote context.
//
// All of them implement retrybp.RetryableError, see Retryable on each type
// for the decision it makes.
package searcherr
