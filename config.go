// config.go: Configuration, defaults and parsing utilities
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultPath is the default prefix of generated log file names.
	DefaultPath = "./"

	// DefaultRollSize is the default rotation threshold (64MB).
	DefaultRollSize int64 = 1 << 26

	// DefaultBufferSize is the default capacity of every in-memory buffer (8MB).
	DefaultBufferSize = 1 << 23

	// DefaultFlushInterval is the longest the writer goroutine sleeps
	// before flushing, even without new data.
	DefaultFlushInterval = 3 * time.Second

	// DefaultMaxPendingBuffers is the backlog above which the writer
	// goroutine considers itself overloaded and drops buffers.
	DefaultMaxPendingBuffers = 25

	// DefaultKeepOnOverflow is how many buffers survive an overload drop.
	DefaultKeepOnOverflow = 2

	// FilePrefix starts the base name of every generated log file.
	FilePrefix = "nijika-"

	// fileBufferFactor sizes the file writer's own buffer relative to
	// BufferSize so that one full async buffer always fits in it.
	fileBufferFactor = 3

	// queueReserve is the pre-reserved capacity of the pending queue.
	queueReserve = 32
)

// Config holds configuration options for a Logger.
// All fields are optional; unset fields use the defaults above.
// String-based fields (RollSizeStr, BufferSizeStr, FlushIntervalStr) take
// precedence over their numeric equivalents.
type Config struct {
	// Path is the prefix of the generated file names. It is concatenated
	// as-is, so a directory prefix must end with a path separator.
	Path string `json:"path"`

	// RollSize is the byte threshold after which the file rotates.
	RollSize int64 `json:"roll_size"`

	// RollSizeStr is RollSize as a string (e.g., "64MB", "1G").
	RollSizeStr string `json:"roll_size_str"`

	// BufferSize is the capacity of each in-memory buffer. The file
	// writer's own buffer is allocated at three times this size.
	BufferSize int `json:"buffer_size"`

	// BufferSizeStr is BufferSize as a string (e.g., "8MB").
	BufferSizeStr string `json:"buffer_size_str"`

	// FlushInterval is the maximum idle time before the writer goroutine
	// flushes even with no new data.
	FlushInterval time.Duration `json:"flush_interval"`

	// FlushIntervalStr is FlushInterval as a string (e.g., "3s", "1d").
	FlushIntervalStr string `json:"flush_interval_str"`

	// MaxPendingBuffers is the backlog size above which buffers are dropped.
	MaxPendingBuffers int `json:"max_pending_buffers"`

	// KeepOnOverflow is how many of the oldest pending buffers are still
	// written when the backlog is dropped.
	KeepOnOverflow int `json:"keep_on_overflow"`

	// UTCTime formats file name timestamps in UTC instead of local time.
	UTCTime bool `json:"utc_time"`

	// FileMode is the permission of created log files (default: 0644).
	FileMode os.FileMode `json:"file_mode"`

	// RetryCount is the number of attempts for opening files (default: 3).
	RetryCount int `json:"retry_count"`

	// RetryDelay is the delay between open attempts (default: 10ms).
	RetryDelay time.Duration `json:"retry_delay"`

	// MaxBackups is the number of rotated files to retain besides the
	// current one. A value of 0 retains all files.
	MaxBackups int `json:"max_backups"`

	// SyncOnFlush calls fsync after every flush of the file writer.
	SyncOnFlush bool `json:"sync_on_flush"`

	// ErrorCallback is called for every failure reported by the logger,
	// with the operation that failed and the error.
	ErrorCallback func(operation string, err error) `json:"-"`

	// DiagnosticOutput receives the overload diagnostic line
	// (default: os.Stderr).
	DiagnosticOutput io.Writer `json:"-"`

	// Logger receives lifecycle and failure events (default: no-op).
	Logger *zap.Logger `json:"-"`

	// Registerer, when set, gets the logger's Prometheus collectors.
	Registerer prometheus.Registerer `json:"-"`

	// FileSystem replaces the os package for file operations.
	FileSystem FileSystem `json:"-"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Path:              DefaultPath,
		RollSize:          DefaultRollSize,
		BufferSize:        DefaultBufferSize,
		FlushInterval:     DefaultFlushInterval,
		MaxPendingBuffers: DefaultMaxPendingBuffers,
		KeepOnOverflow:    DefaultKeepOnOverflow,
		FileMode:          GetDefaultFileMode(),
		RetryCount:        3,
		RetryDelay:        10 * time.Millisecond,
		DiagnosticOutput:  os.Stderr,
		Logger:            zap.NewNop(),
		FileSystem:        DefaultFileSystem{},
	}
}

// normalize returns a copy of c with string fields parsed and defaults
// applied for unset values. A nil Config yields DefaultConfig.
func (c *Config) normalize() (Config, error) {
	if c == nil {
		return *DefaultConfig(), nil
	}

	out := *c

	if out.Path == "" {
		out.Path = DefaultPath
	}

	if out.RollSizeStr != "" {
		size, err := ParseSize(out.RollSizeStr)
		if err != nil {
			return out, errors.Wrapf(ErrInvalidConfig, "roll size: %v", err)
		}
		out.RollSize = size
	}
	if out.RollSize == 0 {
		out.RollSize = DefaultRollSize
	}

	if out.BufferSizeStr != "" {
		size, err := ParseSize(out.BufferSizeStr)
		if err != nil {
			return out, errors.Wrapf(ErrInvalidConfig, "buffer size: %v", err)
		}
		if size > int64(maxInt) {
			return out, errors.Wrapf(ErrInvalidConfig, "buffer size %q too large", out.BufferSizeStr)
		}
		out.BufferSize = int(size)
	}
	if out.BufferSize == 0 {
		out.BufferSize = DefaultBufferSize
	}

	if out.FlushIntervalStr != "" {
		d, err := ParseDuration(out.FlushIntervalStr)
		if err != nil {
			return out, errors.Wrapf(ErrInvalidConfig, "flush interval: %v", err)
		}
		out.FlushInterval = d
	}
	if out.FlushInterval == 0 {
		out.FlushInterval = DefaultFlushInterval
	}

	if out.MaxPendingBuffers == 0 {
		out.MaxPendingBuffers = DefaultMaxPendingBuffers
	}
	if out.KeepOnOverflow == 0 {
		out.KeepOnOverflow = DefaultKeepOnOverflow
	}
	if out.FileMode == 0 {
		out.FileMode = GetDefaultFileMode()
	}
	if out.RetryCount == 0 {
		out.RetryCount = 3
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = 10 * time.Millisecond
	}
	if out.DiagnosticOutput == nil {
		out.DiagnosticOutput = os.Stderr
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.FileSystem == nil {
		out.FileSystem = DefaultFileSystem{}
	}

	return out, out.Validate()
}

// Validate checks that the numeric fields are usable.
// It is called after defaults have been applied.
func (c *Config) Validate() error {
	switch {
	case c.RollSize < 0:
		return errors.Wrapf(ErrInvalidConfig, "roll size must be positive, got %d", c.RollSize)
	case c.BufferSize < 0:
		return errors.Wrapf(ErrInvalidConfig, "buffer size must be positive, got %d", c.BufferSize)
	case c.FlushInterval < 0:
		return errors.Wrapf(ErrInvalidConfig, "flush interval must be positive, got %v", c.FlushInterval)
	case c.KeepOnOverflow < 1:
		return errors.Wrapf(ErrInvalidConfig, "keep on overflow must be at least 1, got %d", c.KeepOnOverflow)
	case c.MaxPendingBuffers < c.KeepOnOverflow:
		return errors.Wrapf(ErrInvalidConfig, "max pending buffers (%d) must not be below keep on overflow (%d)",
			c.MaxPendingBuffers, c.KeepOnOverflow)
	case c.MaxBackups < 0:
		return errors.Wrapf(ErrInvalidConfig, "max backups must not be negative, got %d", c.MaxBackups)
	}

	if err := ValidatePathLength(c.Path + FilePrefix); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

const maxInt = int(^uint(0) >> 1)

// ParseSize converts size strings like "100MB", "1GB" to bytes
// Supports case-insensitive input and single-letter units (K, M, G, T)
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty size string")
	}

	// Handle plain numbers (bytes)
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64
	var numStr string

	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "TB"):
		multiplier = 1 << 40
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "T"):
		multiplier = 1 << 40
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = s[:len(s)-1]
	default:
		return 0, errors.Errorf("unknown size suffix in %q (supported: B, KB/K, MB/M, GB/G, TB/T)", s)
	}

	val, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size number in %q", s)
	}

	result := val * multiplier
	if val != 0 && result/val != multiplier { // Overflow check
		return 0, errors.Errorf("size %q too large", s)
	}

	return result, nil
}

// ParseDuration converts duration strings like "7d", "24h" to time.Duration
// Supports Go durations plus d (day), w (week) and y (year)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	s = strings.ToLower(s)

	var multiplier time.Duration
	var numStr string

	switch {
	case strings.HasSuffix(s, "d"):
		multiplier = 24 * time.Hour
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "w"):
		multiplier = 7 * 24 * time.Hour
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "y"):
		multiplier = 365 * 24 * time.Hour
		numStr = s[:len(s)-1]
	default:
		return 0, errors.Errorf("unknown duration suffix in %q", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration number in %q", s)
	}

	return time.Duration(val) * multiplier, nil
}

// SanitizeFilename removes or replaces invalid characters for cross-platform compatibility
func SanitizeFilename(filename string) string {
	if runtime.GOOS == "windows" {
		// Windows invalid characters: < > : " | ? * and control characters
		invalidChars := []string{"<", ">", ":", "\"", "|", "?", "*"}
		result := filename

		for _, char := range invalidChars {
			result = strings.ReplaceAll(result, char, "_")
		}

		var sanitized strings.Builder
		for _, r := range result {
			if r >= 32 {
				sanitized.WriteRune(r)
			} else {
				sanitized.WriteRune('_')
			}
		}

		return sanitized.String()
	}

	// For Unix-like systems, just remove null characters
	return strings.ReplaceAll(filename, "\x00", "_")
}

// ValidatePathLength checks if the path length is within OS limits
func ValidatePathLength(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "invalid path")
	}

	pathLen := len(absPath)

	switch runtime.GOOS {
	case "windows":
		if pathLen > 260 {
			return errors.Errorf("path too long for Windows: %d characters (limit: 260)", pathLen)
		}
	default:
		if pathLen > 4096 {
			return errors.Errorf("path too long: %d characters (limit: 4096)", pathLen)
		}
	}

	return nil
}

// GetDefaultFileMode returns the default file mode for log files
func GetDefaultFileMode() os.FileMode {
	return 0644
}

// RetryFileOperation executes a file operation with retry logic.
// The returned error wraps the last failure, so the OS error stays reachable
// through errors.Cause and errors.Is.
func RetryFileOperation(operation func() error, retryCount int, retryDelay time.Duration) error {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < retryCount; i++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		// On the last attempt, don't wait - fail fast
		if i < retryCount-1 {
			time.Sleep(retryDelay)
		}
	}

	return errors.Wrapf(lastErr, "operation failed after %d retries", retryCount)
}
