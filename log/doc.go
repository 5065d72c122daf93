// Package log provides a wrapped zap logger for the search client packages.
//
// The global logger is a nop logger until the application explicitly calls
// one of the InitLogger* functions (or InitFromConfig). Library code never
// turns logging on by itself.
//
// Components that accept an injected *zap.SugaredLogger fall back to the
// global one through Or, and request scoped code should prefer the logger
// attached to the context object:
//
//	log.C(ctx).Debugw("Request failed", "err", err)
package log
