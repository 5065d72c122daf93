// Package randbp provides jitter helpers used by backoff calculations.
package randbp
