// Package nijika provides an in-process logging backend that persists
// pre-formatted lines to rotating files, either synchronously or through a
// double-buffered asynchronous writer.
//
// Nijika does not format anything. Application goroutines submit complete
// lines (usually produced by a front-end logger) and the backend takes care of
// buffering, rotation and disk I/O. A Logger implements io.Writer, so it plugs
// into the standard library, zap, logrus and most other front ends.
//
// # Quick Start
//
// Basic usage with defaults (files named ./nijika-<pid>-<time>-<rand>.log,
// 64MB per file):
//
//	logger, err := nijika.New(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.Write([]byte("Hello, World!\n"))
//
// Process-wide usage through the default logger:
//
//	nijika.Init(&nijika.Config{Path: "/var/log/app/"})
//	defer nijika.Shutdown()
//
//	nijika.AsyncRun()
//	nijika.WriteString("service started\n")
//
// # Sync and Async Modes
//
// An initialized Logger starts in sync mode: Write appends the line into the
// file writer's own buffer under a lock, and the caller pays for any flush or
// rotation that append triggers.
//
// AsyncRun switches to async mode. Write then only copies the line into the
// current in-memory buffer. When the buffer is full it is queued, a
// pre-allocated spare takes its place and a dedicated writer goroutine is
// woken. The writer swaps the whole queue out under the lock, then writes and
// flushes it without holding the lock, so producers never wait on disk I/O.
// The writer also flushes every FlushInterval when nothing fills a buffer.
//
// AsyncStop switches back to sync mode. It waits for the writer to write
// every buffered line and flush; no line accepted by Write is lost on a
// clean stop. The two modes can be switched any number of times.
//
// # File Rotation
//
// A file is never grown past RollSize by a flush: when the pending bytes would
// take it over the threshold, a new file is opened first and the old one is
// closed. File names embed the process id, a timestamp and a random suffix:
//
//	/var/log/app/nijika-4242-20250301-142355-5817.log
//
// Path is a prefix concatenated as-is; use a trailing separator for a
// directory. MaxBackups, when set, removes the oldest files in the background
// after each rotation.
//
// # Backpressure
//
// If the writer falls so far behind that one cycle has more than
// MaxPendingBuffers buffers to write, all but the oldest KeepOnOverflow are
// discarded and a single line such as
//
//	Dropped log messages at 2025-03-01 14:23:55, 28 larger buffers.
//
// is written to DiagnosticOutput (standard error by default) and into the log
// file itself. Memory stays bounded; the lost lines are counted in Stats and
// in the nijika_dropped_buffers_total metric.
//
// # String-Based Configuration
//
// Size formats (RollSizeStr, BufferSizeStr):
//   - "64MB", "1GB", "512KB", "2TB"
//   - Single letters: "64M", "1G", "512K"
//   - Case insensitive: "64mb"
//
// Duration formats (FlushIntervalStr):
//   - Standard Go durations: "3s", "250ms", "1m"
//   - Days, weeks, years: "1d", "2w", "1y"
//
// # Error Handling
//
// Interrupted system calls are retried transparently. Every other I/O failure
// is an *IOError naming the operation and the file. In sync mode it is returned
// by Write or Flush. In async mode the writer goroutine stops on the first
// failure: the error is sent on Errors(), passed to ErrorCallback and logged,
// and every later Write, Flush or AsyncStop returns an error wrapping
// ErrWriterFailed.
//
//	logger, _ := nijika.New(&nijika.Config{
//		ErrorCallback: func(op string, err error) {
//			alerting.Send("log backend " + op + ": " + err.Error())
//		},
//	})
//
// # Observability
//
// Config.Logger receives lifecycle events (file opened, rotated, async mode
// started or stopped, overload drops, failures) as structured zap entries.
// Config.Registerer exports Prometheus collectors under the nijika namespace.
// Stats returns a snapshot of the same counters without Prometheus.
//
// # Thread Safety
//
// Write, Flush and Stats are safe for concurrent use. Lifecycle calls are
// serialized internally, but switching modes while producers are writing
// heavily is not recommended.
package nijika
