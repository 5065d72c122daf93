package retrybp

import (
	"errors"
	"math"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/reddit/searchbp.go/randbp"
)

// RetryAfterError is implemented by errors carrying a server provided
// minimum delay, e.g. from a Retry-After header.
type RetryAfterError interface {
	error

	// A duration <= 0 means no retry-after info.
	RetryAfterDuration() time.Duration
}

// CappedExponentialBackoffArgs are the args of CappedExponentialBackoff.
//
// All args are optional.
type CappedExponentialBackoffArgs struct {
	// InitialDelay defaults to retry.DefaultDelay, or 1ns if that's <= 0 too.
	InitialDelay time.Duration

	// MaxDelay caps InitialDelay<<n. It doesn't cap MaxJitter, so the actual
	// max delay is MaxDelay+MaxJitter.
	MaxDelay time.Duration

	// MaxExponent caps n in InitialDelay<<n. It's adjusted down when it would
	// overflow int64, and doesn't limit the number of attempts.
	MaxExponent int

	// MaxJitter is the upper bound of the random jitter added to each delay.
	MaxJitter time.Duration

	// When false and the error implements RetryAfterError, the delay is at
	// least RetryAfterDuration (plus jitter), even above MaxDelay.
	IgnoreRetryAfterError bool
}

// CappedExponentialBackoff is an exponential backoff delay option whose
// delays are properly capped.
func CappedExponentialBackoff(args CappedExponentialBackoffArgs) retry.Option {
	return retry.DelayType(CappedExponentialBackoffFunc(args))
}

// CappedExponentialBackoffFunc is the retry.DelayTypeFunc of
// CappedExponentialBackoff.
//
// The error and config args of the returned func may be nil.
func CappedExponentialBackoffFunc(args CappedExponentialBackoffArgs) retry.DelayTypeFunc {
	base := args.InitialDelay
	if base <= 0 {
		base = retry.DefaultDelay
	}
	if base <= 0 {
		base = 1
	}

	maxExponent := actualMaxExponent(base)
	if args.MaxExponent > 0 && args.MaxExponent < maxExponent {
		maxExponent = args.MaxExponent
	}
	uMaxExponent := uint(maxExponent)

	return func(n uint, err error, _ *retry.Config) time.Duration {
		if n > uMaxExponent {
			n = uMaxExponent
		}
		delay := uint64(base) << n
		if args.MaxDelay > 0 && delay > uint64(args.MaxDelay) {
			delay = uint64(args.MaxDelay)
		}

		var rae RetryAfterError
		if !args.IgnoreRetryAfterError && errors.As(err, &rae) {
			if minDelay := rae.RetryAfterDuration(); minDelay > 0 && delay < uint64(minDelay) {
				delay = uint64(minDelay)
			}
		}

		if args.MaxJitter > 0 {
			delay += uint64(randbp.Int63n(int64(args.MaxJitter)))
		}
		// Jitter can push base<<maxExponent over the edge.
		if delay > math.MaxInt64 {
			delay = math.MaxInt64
		}
		return time.Duration(delay)
	}
}

func actualMaxExponent(base time.Duration) int {
	if base <= 0 {
		base = 1
	}
	// 1<<63 overflows int64.
	return 62 - int(math.Floor(math.Log2(float64(base))))
}

// FixedDelay waits the same delay between every attempt.
func FixedDelay(delay time.Duration) retry.Option {
	return retry.DelayType(FixedDelayFunc(delay))
}

// FixedDelayFunc is the retry.DelayTypeFunc of FixedDelay.
func FixedDelayFunc(delay time.Duration) retry.DelayTypeFunc {
	return func(_ uint, _ error, _ *retry.Config) time.Duration {
		return delay
	}
}
