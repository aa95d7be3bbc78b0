// errors.go: Error taxonomy of the logging backend
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"fmt"

	"github.com/pkg/errors"
)

// Pre-allocated errors to avoid allocations in hot paths
var (
	// ErrNotInitialized is returned by Write before a successful Init.
	ErrNotInitialized = errors.New("nijika: logger is not initialized")

	// ErrCapacityExceeded is returned by Buffer.Append when the data does not
	// fit in the remaining space. Callers on the hot path check Avail first,
	// so seeing this error means an internal invariant was broken.
	ErrCapacityExceeded = errors.New("nijika: not enough space in the buffer")

	// ErrClosed is returned by operations on a logger after Close.
	ErrClosed = errors.New("nijika: logger is closed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("nijika: invalid configuration")

	// ErrWriterFailed is returned by async writes once the background writer
	// has stopped on a fatal I/O error.
	ErrWriterFailed = errors.New("nijika: background writer failed")
)

// IOError reports a failed file operation. Any IOError is fatal for the
// file writer that produced it; interrupted system calls are retried before
// an IOError is ever built.
type IOError struct {
	Op   string // "open", "write", "close", "rotate", "sync", "mkdir"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("nijika: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *IOError) Unwrap() error { return e.Err }

// Cause implements the github.com/pkg/errors causer interface.
func (e *IOError) Cause() error { return e.Err }

func newIOError(op, path string, err error) error {
	return errors.WithStack(&IOError{Op: op, Path: path, Err: err})
}

// IsIOError reports whether err carries an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
