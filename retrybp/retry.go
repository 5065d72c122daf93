package retrybp

import (
	"context"
	"errors"
	"math"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/reddit/searchbp.go/errorsbp"
)

func init() {
	retry.DefaultAttempts = 1
	retry.DefaultDelay = 1 * time.Millisecond
	retry.DefaultMaxJitter = 5 * time.Millisecond
	retry.DefaultDelayType = CappedExponentialBackoffFunc(CappedExponentialBackoffArgs{
		InitialDelay: retry.DefaultDelay,
		MaxJitter:    retry.DefaultMaxJitter,
	})
	retry.DefaultLastErrorOnly = false
}

type contextKeyType struct{}

var contextKey contextKeyType

// WithOptions sets the given retry.Options on the given context.
//
// Options set this way override the defaults passed to Do.
func WithOptions(ctx context.Context, options ...retry.Option) context.Context {
	return context.WithValue(ctx, contextKey, options)
}

// GetOptions returns the list of retry.Options set on the context.
func GetOptions(ctx context.Context) (options []retry.Option, ok bool) {
	options, ok = ctx.Value(contextKey).([]retry.Option)
	return
}

// Do calls fn until it succeeds or the options say stop.
//
// Options are applied in this order, later ones overriding earlier ones:
// retry.Context(ctx), defaults, then the options attached to ctx via
// WithOptions.
//
// When more than one attempt failed the returned error is an errorsbp.Batch
// of every attempt's error, so errors.As still finds a typed error from any
// of the attempts.
func Do(ctx context.Context, fn func() error, defaults ...retry.Option) error {
	options, _ := GetOptions(ctx)
	merged := make([]retry.Option, 0, 1+len(defaults)+len(options))
	merged = append(merged, retry.Context(ctx))
	merged = append(merged, defaults...)
	merged = append(merged, options...)
	err := retry.Do(fn, merged...)

	var retryErr retry.Error
	if errors.As(err, &retryErr) {
		var batch errorsbp.Batch
		batch.Add(retryErr.WrappedErrors()...)
		return batch.Compile()
	}
	return err
}

// Poll returns the options to call a function every interval until it
// succeeds, returns an error the filters refuse to retry, or the context
// passed to Do is done.
//
// Only the last error is kept, so polling for a long time doesn't grow
// memory.
func Poll(interval time.Duration, filters ...Filter) []retry.Option {
	options := []retry.Option{
		retry.Attempts(math.MaxUint32),
		retry.LastErrorOnly(true),
		FixedDelay(interval),
	}
	if len(filters) > 0 {
		options = append(options, Filters(filters...))
	}
	return options
}
