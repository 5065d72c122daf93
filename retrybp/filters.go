package retrybp

import (
	"context"
	"errors"

	retry "github.com/avast/retry-go"
)

// DefaultFilterDecision is the decision taken when no filter in the chain
// made one.
const DefaultFilterDecision = false

func fallback(_ error) bool {
	return DefaultFilterDecision
}

var _ retry.RetryIfFunc = fallback

func chain(current Filter, next retry.RetryIfFunc) retry.RetryIfFunc {
	return func(err error) bool {
		return current(err, next)
	}
}

// Filters returns a retry.RetryIf option that runs err through the given
// filters in order, stopping at the first one that makes a decision.
//
// Don't combine it with other retry.RetryIf options, only the last one
// applies.
func Filters(filters ...Filter) retry.Option {
	retryIf := fallback
	for i := len(filters) - 1; i >= 0; i-- {
		retryIf = chain(filters[i], retryIf)
	}
	return retry.RetryIf(retryIf)
}

// Filter decides whether err is retryable, or defers to next when it can't
// tell.
type Filter func(err error, next retry.RetryIfFunc) bool

// ContextErrorFilter refuses to retry context.Canceled and
// context.DeadlineExceeded.
func ContextErrorFilter(err error, next retry.RetryIfFunc) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return next(err)
}

// RetryableError is implemented by errors that know whether they are worth
// another attempt.
//
// Every error type in package searcherr implements it.
type RetryableError interface {
	error

	// Retryable returns >0 for retryable, <0 for not retryable and 0 when
	// there's not enough information to decide.
	Retryable() int
}

// RetryableErrorFilter uses RetryableError to decide.
//
// It also honors retry.Unrecoverable for errors not implementing
// RetryableError.
func RetryableErrorFilter(err error, next retry.RetryIfFunc) bool {
	var re RetryableError
	if errors.As(err, &re) {
		if v := re.Retryable(); v != 0 {
			return v > 0
		}
	} else if !retry.IsRecoverable(err) {
		return false
	}
	return next(err)
}

type retryableWrapper struct {
	err       error
	retryable int
}

func (e retryableWrapper) Error() string {
	return e.err.Error()
}

func (e retryableWrapper) Unwrap() error {
	return e.err
}

func (e retryableWrapper) Retryable() int {
	return e.retryable
}

// Retryable marks err as retryable for RetryableErrorFilter.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableWrapper{
		err:       err,
		retryable: 1,
	}
}

var (
	_ Filter = ContextErrorFilter
	_ Filter = RetryableErrorFilter

	_ RetryableError = retryableWrapper{}
)
