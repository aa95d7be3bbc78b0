// default.go: Process-wide default logger
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import "sync"

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide logger used by the package-level
// functions. It is created lazily and starts uninitialized.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}

// Init initializes the default logger. Later calls are no-ops.
func Init(config *Config) error { return Default().Init(config) }

// Write submits a line to the default logger.
func Write(line []byte) (int, error) { return Default().Write(line) }

// WriteString submits a string line to the default logger.
func WriteString(line string) (int, error) { return Default().WriteString(line) }

// AsyncRun switches the default logger to async mode.
func AsyncRun() error { return Default().AsyncRun() }

// AsyncStop switches the default logger back to sync mode.
func AsyncStop() error { return Default().AsyncStop() }

// Flush flushes the default logger.
func Flush() error { return Default().Flush() }

// Shutdown closes the default logger. It is meant to be deferred in main;
// the default logger cannot be used afterwards.
func Shutdown() error { return Default().Close() }
