// Package errorsbp provides Batch, which can be used to compile multiple
// errors into a single one.
//
// It's used where one operation fans out to many independent ones, for
// example closing every connection of a pool:
//
//	var batch errorsbp.Batch
//	for _, c := range conns {
//		batch.AddPrefix(c.ID(), c.Close())
//	}
//	return batch.Compile()
//
// This package is not thread-safe.
// The same batch should not be operated on different goroutines concurrently.
package errorsbp
