package errorsbp

import (
	"errors"
	"fmt"
	"strings"
)

// Make sure both Batch and *Batch satisfies error interface.
var (
	_ error = Batch{}
	_ error = (*Batch)(nil)
)

// Batch is an error that can contain multiple errors.
//
// The zero value of Batch is valid (with no errors) and ready to use.
type Batch struct {
	errors []error
}

func (be Batch) Error() string {
	var sb strings.Builder
	fmt.Fprintf(
		&sb,
		"errorsbp.Batch: total %d error(s) in this batch",
		len(be.errors),
	)
	for i, err := range be.errors {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%+v", err)
	}
	return sb.String()
}

// Len returns the size of the batch.
func (be Batch) Len() int {
	return len(be.errors)
}

// As implements helper interface for errors.As.
//
// If v is pointer to either Batch or *Batch,
// *v will be set into this error.
// Otherwise, As will try errors.As against all errors in this batch,
// returning the first match.
func (be Batch) As(v interface{}) bool {
	if target, ok := v.(*Batch); ok {
		*target = be
		return true
	}
	if target, ok := v.(**Batch); ok {
		*target = &be
		return true
	}
	for _, err := range be.errors {
		if errors.As(err, v) {
			return true
		}
	}
	return false
}

// Is implements helper interface for errors.Is.
//
// It calls errors.Is against all errors in this batch,
// until a match is found.
func (be Batch) Is(target error) bool {
	for _, err := range be.errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Add adds errors into the batch.
//
// If an error is also a Batch,
// its underlying error(s) will be added instead of the Batch itself.
//
// Nil errors will be skipped.
func (be *Batch) Add(errs ...error) {
	be.AddPrefix("", errs...)
}

// AddPrefix adds errors into the batch with given prefix.
//
// The actual error(s) added into the batch will produce the error message of:
//
//	"prefix: err.Error()"
//
// An empty prefix adds the errors as-is.
func (be *Batch) AddPrefix(prefix string, errs ...error) {
	for _, err := range errs {
		if err == nil {
			continue
		}

		var batch Batch
		if errors.As(err, &batch) {
			for _, inner := range batch.errors {
				be.errors = append(be.errors, prefixError(prefix, inner))
			}
		} else {
			be.errors = append(be.errors, prefixError(prefix, err))
		}
	}
}

// Compile compiles the batch.
//
// If the batch contains zero errors, Compile returns nil.
//
// If the batch contains exactly one error,
// that underlying error will be returned.
//
// Otherwise, the batch itself will be returned.
func (be Batch) Compile() error {
	switch len(be.errors) {
	case 0:
		return nil
	case 1:
		return be.errors[0]
	default:
		return be
	}
}

// BatchSize returns the size of the batch for error err.
//
// If err is either errorsbp.Batch or *errorsbp.Batch,
// this function returns its Len().
// Otherwise, it returns 1 if err is non-nil, and 0 if err is nil.
func BatchSize(err error) int {
	if err == nil {
		return 0
	}
	var be Batch
	if errors.As(err, &be) {
		return be.Len()
	}
	return 1
}

// NOTE: prefix could contain format verbs, so fmt.Errorf(prefix+": %w") is
// not safe here.
func prefixError(prefix string, err error) error {
	if prefix == "" {
		return err
	}
	return &prefixedError{
		msg: prefix + ": " + err.Error(),
		err: err,
	}
}

type prefixedError struct {
	msg string
	err error
}

func (e *prefixedError) Error() string {
	return e.msg
}

func (e *prefixedError) Unwrap() error {
	return e.err
}
