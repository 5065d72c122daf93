package log

import (
	"context"

	"go.uber.org/zap"
)

type contextKeyType struct{}

var contextKey contextKeyType

// logger keys for attached data.
const (
	requestIDKey    = "request_id"
	connectionIDKey = "connection_id"
)

// AttachArgs are used to create loggers to be attached to context object with
// pre-filled key-value pairs.
//
// All zero value fields will be ignored and only non-zero values will be
// attached.
type AttachArgs struct {
	RequestID    string
	ConnectionID string

	AdditionalPairs map[string]interface{}
}

// Attach attaches a logger with data extracted from args into the context
// object.
func Attach(ctx context.Context, args AttachArgs) context.Context {
	// Number of non-AdditionalPairs fields in AttachArgs struct.
	const additional = 2
	kv := make([]interface{}, 0, len(args.AdditionalPairs)*2+additional*2)

	if args.RequestID != "" {
		kv = append(kv, zap.String(requestIDKey, args.RequestID))
	}
	if args.ConnectionID != "" {
		kv = append(kv, zap.String(connectionIDKey, args.ConnectionID))
	}
	for k, v := range args.AdditionalPairs {
		kv = append(kv, k, v)
	}

	l := C(ctx)
	if len(kv) == 0 {
		return context.WithValue(ctx, contextKey, l)
	}
	return context.WithValue(ctx, contextKey, l.With(kv...))
}

// C is short for Context.
//
// It extract the logger attached to the current context object,
// and fallback to the global logger if none is found.
//
//	log.C(ctx).Errorw("Something went wrong!", "err", err)
//
// The return value is guaranteed to be non-nil.
func C(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}
	return logger
}

// Or returns l when it's non-nil, and the global logger otherwise.
//
// It's used by components that accept an optional injected logger.
func Or(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return logger
}
