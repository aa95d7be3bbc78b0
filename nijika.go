// nijika.go: Public API - double-buffered logging backend
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Logger persists pre-formatted lines to a rotating file, either
// synchronously (the caller appends into the file writer under the lock) or
// asynchronously (the caller copies into a shared buffer and a dedicated
// goroutine performs the I/O).
//
// A Logger starts uninitialized; Init opens the first file and puts it in
// sync mode. AsyncRun and AsyncStop switch between the two modes any number
// of times. Close stops async mode, flushes and closes the file.
//
// Write is safe for concurrent use. Lifecycle calls (Init, AsyncRun,
// AsyncStop, Close) are serialized internally but are not meant to race
// with heavy writing during the switch.
//
// Basic usage example:
//
//	logger := nijika.NewLogger()
//	if err := logger.Init(&nijika.Config{Path: "/var/log/app/"}); err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.AsyncRun()
//	logger.Write([]byte("service started\n"))
type Logger struct {
	// mu guards everything below up to the writer fields, plus output
	// while the logger is in sync mode
	mu      sync.Mutex
	async   bool     // lines go to current instead of output
	current Buffer   // receives new lines in async mode
	spare   Buffer   // pre-allocated standby for current
	queue   []Buffer // full buffers awaiting the writer, oldest first
	failed  error    // sticky fatal error of the writer goroutine
	closed  bool

	// lifecycle serializes Init, AsyncRun, AsyncStop and Close
	lifecycle sync.Mutex

	output  atomic.Pointer[RotatingFile]
	cfg     Config
	running atomic.Bool   // writer loop condition
	wake    chan struct{} // producers -> writer, capacity 1
	flushRq chan chan struct{}
	done    chan struct{} // closed when the writer goroutine exits
	errCh   chan error

	timeCache *timecache.TimeCache
	bgWorkers atomic.Pointer[BackgroundWorkers]
	metrics   *metrics
	log       *zap.Logger

	// Counters for Stats
	lines          atomic.Uint64
	bytes          atomic.Uint64
	droppedBuffers atomic.Uint64
	dropEvents     atomic.Uint64
	allocations    atomic.Uint64
	pending        atomic.Int64

	closeOnce sync.Once
}

// NewLogger returns an uninitialized Logger. Call Init before writing.
func NewLogger() *Logger {
	return &Logger{
		wake:    make(chan struct{}, 1),
		flushRq: make(chan chan struct{}, 16),
		errCh:   make(chan error, 16),
		log:     zap.NewNop(),
	}
}

// New creates and initializes a Logger with the given configuration.
// A nil config uses DefaultConfig.
func New(config *Config) (*Logger, error) {
	l := NewLogger()
	if err := l.Init(config); err != nil {
		return nil, err
	}
	return l, nil
}

// Init opens the first log file and puts the logger in sync mode.
// Init is a no-op once it has succeeded; it cannot reconfigure a running
// logger.
func (l *Logger) Init(config *Config) error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.output.Load() != nil {
		return nil
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}

	cfg, err := config.normalize()
	if err != nil {
		return err
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return err
	}

	tc := timecache.NewWithResolution(time.Millisecond)

	l.cfg = cfg
	l.log = cfg.Logger
	l.metrics = m
	l.timeCache = tc

	output, err := NewRotatingFile(cfg.Path, cfg.RollSize, cfg.BufferSize*fileBufferFactor,
		WithFileSystem(cfg.FileSystem),
		WithClock(tc.CachedTime),
		WithUTC(cfg.UTCTime),
		WithFileMode(cfg.FileMode),
		WithRetry(cfg.RetryCount, cfg.RetryDelay),
		WithSyncOnFlush(cfg.SyncOnFlush),
		WithRotateHook(l.onRotate),
	)
	if err != nil {
		tc.Stop()
		l.timeCache = nil
		l.reportError("open", err)
		return err
	}

	l.output.Store(output)
	l.log.Info("log file opened",
		zap.String("file", output.Name()),
		zap.Int64("roll_size", cfg.RollSize),
		zap.Int("buffer_size", cfg.BufferSize))
	return nil
}

// Write submits one line. The line is persisted byte for byte; callers are
// expected to pass it already terminated with a newline.
//
// Write returns ErrNotInitialized before Init and ErrClosed after Close.
// In sync mode I/O errors of the file writer are returned directly. In
// async mode Write only fails once the writer goroutine has died, with an
// error wrapping ErrWriterFailed.
func (l *Logger) Write(line []byte) (int, error) {
	if l.output.Load() == nil {
		return 0, ErrNotInitialized
	}

	l.mu.Lock()
	var err error
	switch {
	case l.closed:
		err = ErrClosed
	case l.failed != nil:
		err = errors.Wrap(ErrWriterFailed, l.failed.Error())
	case l.async:
		l.asyncWrite(line)
	default:
		err = l.syncWrite(line)
	}
	l.mu.Unlock()

	if err != nil {
		return 0, err
	}

	l.lines.Add(1)
	l.bytes.Add(uint64(len(line)))
	l.metrics.linesSubmitted.Inc()
	l.metrics.bytesSubmitted.Add(float64(len(line)))
	return len(line), nil
}

// WriteString is Write for strings.
func (l *Logger) WriteString(line string) (int, error) {
	return l.Write([]byte(line))
}

// syncWrite appends the line straight into the file writer. The caller holds mu.
func (l *Logger) syncWrite(line []byte) error {
	if err := l.output.Load().Append(line); err != nil {
		l.reportError("sync_write", err)
		return err
	}
	return nil
}

// asyncWrite copies the line into the current buffer. When it does not fit,
// the current buffer is queued for the writer and the spare takes its place.
// The caller holds mu.
func (l *Logger) asyncWrite(line []byte) {
	if l.current.Avail() > len(line) {
		_ = l.current.Append(line) // Avail checked above
		return
	}

	l.queue = append(l.queue, l.current.Take())
	l.metrics.bufferSwaps.Inc()

	if l.spare.IsValid() {
		l.current = l.spare.Take()
	} else {
		// Rare: the writer has not refilled the spare yet
		l.current = NewBuffer(l.cfg.BufferSize)
		l.allocations.Add(1)
		l.metrics.bufferAllocs.Inc()
	}

	if err := l.current.Append(line); err != nil {
		// The line is larger than a whole buffer: queue it on its own,
		// behind the buffer just swapped out
		oversized := NewBuffer(len(line))
		_ = oversized.Append(line)
		l.queue = append(l.queue, oversized)
		l.allocations.Add(1)
		l.metrics.bufferAllocs.Inc()
	}
	l.pending.Store(int64(len(l.queue)))

	l.signal()
}

// signal wakes the writer goroutine without blocking
func (l *Logger) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AsyncRun switches the logger to async mode and starts the writer
// goroutine. It returns once the writer is ready. It is a no-op if async
// mode is already on.
func (l *Logger) AsyncRun() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.output.Load() == nil {
		return ErrNotInitialized
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.failed != nil {
		err := l.failed
		l.mu.Unlock()
		return errors.Wrap(ErrWriterFailed, err.Error())
	}
	if l.async {
		l.mu.Unlock()
		return nil
	}
	// Pre-allocation
	l.current = NewBuffer(l.cfg.BufferSize)
	l.spare = NewBuffer(l.cfg.BufferSize)
	if cap(l.queue) < queueReserve {
		l.queue = make([]Buffer, 0, queueReserve)
	}
	l.async = true
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.running.Store(true)
	latch := NewCountDownLatch(1)

	go l.writerLoop(latch, done)

	// Wait for the writer to initialize
	latch.Wait()

	l.metrics.asyncActive.Set(1)
	l.log.Info("async mode started",
		zap.Int("buffer_size", l.cfg.BufferSize),
		zap.Duration("flush_interval", l.cfg.FlushInterval))
	return nil
}

// AsyncStop switches the logger back to sync mode. It blocks until the
// writer goroutine has written every buffered line and flushed the file.
// If the writer died on an I/O error, that error is returned.
func (l *Logger) AsyncStop() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	return l.asyncStop()
}

func (l *Logger) asyncStop() error {
	if !l.running.Load() {
		return nil
	}

	l.running.Store(false)
	l.signal()
	<-l.done

	l.metrics.asyncActive.Set(0)
	l.log.Info("async mode stopped")

	l.mu.Lock()
	err := l.failed
	l.mu.Unlock()
	if err != nil {
		return errors.Wrap(ErrWriterFailed, err.Error())
	}
	return nil
}

// IsAsync reports whether lines currently go through the writer goroutine.
func (l *Logger) IsAsync() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.async
}

// Flush pushes everything written so far to the file. In sync mode it
// flushes the file writer's buffer; in async mode it waits for one full
// writer cycle.
func (l *Logger) Flush() error {
	output := l.output.Load()
	if output == nil {
		return ErrNotInitialized
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.failed != nil {
		err := l.failed
		l.mu.Unlock()
		return errors.Wrap(ErrWriterFailed, err.Error())
	}
	if !l.async {
		err := output.Flush()
		l.mu.Unlock()
		if err != nil {
			l.reportError("flush", err)
		}
		return err
	}
	done := l.done
	l.mu.Unlock()

	ack := make(chan struct{})
	select {
	case l.flushRq <- ack:
	case <-done:
		return l.Flush()
	}
	l.signal()

	// Either the cycle completed or the writer drained on exit
	select {
	case <-ack:
	case <-done:
	}

	l.mu.Lock()
	err := l.failed
	l.mu.Unlock()
	if err != nil {
		return errors.Wrap(ErrWriterFailed, err.Error())
	}
	return nil
}

// Sync is Flush. It makes a Logger a zapcore.WriteSyncer.
func (l *Logger) Sync() error { return l.Flush() }

// Errors returns the channel on which the writer goroutine reports fatal
// I/O errors. The channel is buffered and never closed; reports are dropped
// when nobody reads it.
func (l *Logger) Errors() <-chan error { return l.errCh }

// Close stops async mode, flushes and closes the log file, and releases
// background resources. It is safe to call Close multiple times; subsequent
// calls are no-ops.
func (l *Logger) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		l.lifecycle.Lock()
		defer l.lifecycle.Unlock()

		stopErr := l.asyncStop()

		l.mu.Lock()
		l.closed = true
		if output := l.output.Load(); output != nil {
			closeErr = output.Close()
		}
		l.mu.Unlock()

		if workers := l.bgWorkers.Load(); workers != nil {
			workers.stop()
		}

		if l.timeCache != nil {
			l.timeCache.Stop()
		}

		if stopErr != nil {
			closeErr = stopErr
		} else if closeErr != nil {
			l.reportError("close", closeErr)
		}
		_ = l.log.Sync()
	})
	return closeErr
}

// WaitForBackgroundTasks waits for pending retention passes to complete.
func (l *Logger) WaitForBackgroundTasks() {
	if workers := l.bgWorkers.Load(); workers != nil {
		workers.waitForCompletion()
	}
}

// onRotate is the file writer's rotation hook
func (l *Logger) onRotate(oldName, newName string) {
	l.metrics.rotations.Inc()
	l.log.Info("log file rotated", zap.String("from", oldName), zap.String("to", newName))
	l.scheduleCleanup(newName)
}

// now returns the cached wall clock
func (l *Logger) now() time.Time {
	if l.timeCache != nil {
		return l.timeCache.CachedTime()
	}
	return time.Now()
}

// reportError invokes the error callback and the diagnostic logger
func (l *Logger) reportError(operation string, err error) {
	if l.metrics != nil {
		l.metrics.writeErrors.WithLabelValues(operation).Inc()
	}
	l.log.Error("log backend failure", zap.String("operation", operation), zap.Error(err))
	if l.cfg.ErrorCallback != nil {
		l.cfg.ErrorCallback(operation, err)
	}
}

// Stats represents logger statistics for telemetry and monitoring.
type Stats struct {
	Initialized       bool   `json:"initialized"`
	IsAsync           bool   `json:"is_async"`
	LinesWritten      uint64 `json:"lines_written"`      // Lines accepted by Write
	BytesWritten      uint64 `json:"bytes_written"`      // Bytes accepted by Write
	BytesOnDisk       uint64 `json:"bytes_on_disk"`      // Bytes written to all files
	RotationCount     uint64 `json:"rotation_count"`     // Number of rotations performed
	FlushCount        uint64 `json:"flush_count"`        // Flushes of the file writer
	DroppedBuffers    uint64 `json:"dropped_buffers"`    // Buffers discarded under overload
	DropEvents        uint64 `json:"drop_events"`        // Writer cycles that discarded buffers
	BufferAllocations uint64 `json:"buffer_allocations"` // Allocations outside the pre-allocated set
	PendingBuffers    int64  `json:"pending_buffers"`    // Full buffers waiting for the writer
	CurrentFile       string `json:"current_file"`
	CurrentFileSize   uint64 `json:"current_file_size"`
}

// Stats returns a snapshot of the logger counters. Safe to call concurrently.
func (l *Logger) Stats() Stats {
	s := Stats{
		IsAsync:           l.IsAsync(),
		LinesWritten:      l.lines.Load(),
		BytesWritten:      l.bytes.Load(),
		DroppedBuffers:    l.droppedBuffers.Load(),
		DropEvents:        l.dropEvents.Load(),
		BufferAllocations: l.allocations.Load(),
		PendingBuffers:    l.pending.Load(),
	}

	if output := l.output.Load(); output != nil {
		s.Initialized = true
		s.BytesOnDisk = output.Written()
		s.RotationCount = output.Rotations()
		s.FlushCount = output.Flushes()
		s.CurrentFile = output.Name()
		s.CurrentFileSize = output.Size()
	}
	return s
}
