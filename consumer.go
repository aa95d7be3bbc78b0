// consumer.go: Writer goroutine of the async mode
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// diagnosticTimeFormat is the timestamp layout of the overload diagnostic
const diagnosticTimeFormat = "2006-01-02 15:04:05"

// writerLoop is the body of the writer goroutine. Each cycle it waits until
// a buffer is full (or the flush interval elapses), swaps the shared queue
// with its private working list under the lock, then writes and flushes
// the working list without holding the lock.
//
// latch is counted down once the goroutine is ready; done is closed on exit.
func (l *Logger) writerLoop(latch *CountDownLatch, done chan struct{}) {
	defer close(done)

	output := l.output.Load()

	// Two standby buffers refill current and spare on every swap
	backups := newBufferPool(2, l.cfg.BufferSize)
	backups.allocs = func() {
		l.allocations.Add(1)
		l.metrics.bufferAllocs.Inc()
	}

	working := make([]Buffer, 0, queueReserve)
	var acks []chan struct{}

	timer := time.NewTimer(l.cfg.FlushInterval)
	defer timer.Stop()

	latch.CountDown()

	for l.running.Load() {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()

			timer.Reset(l.cfg.FlushInterval)
			select {
			case <-l.wake:
			case <-timer.C:
			case ack := <-l.flushRq:
				acks = append(acks, ack)
			}

			l.mu.Lock()
		}

		// Requests issued before this point cover lines already in current
		acks = l.collectFlushRequests(acks)

		l.queue = append(l.queue, l.current.Take())
		l.current = backups.Get()
		if !l.spare.IsValid() {
			l.spare = backups.Get()
		}
		working, l.queue = l.queue, working[:0]
		l.pending.Store(0)
		l.mu.Unlock()

		l.metrics.pendingBuffers.Set(float64(len(working)))

		if err := l.writeBuffers(output, working, backups); err != nil {
			l.fail(err)
			releaseAcks(acks)
			return
		}

		releaseAcks(acks)
		acks = acks[:0]
		working = working[:0]
	}

	l.drain(output, working[:0])
}

// writeBuffers persists one working list and returns its buffers to the
// standby pool. Under overload the list is truncated first.
func (l *Logger) writeBuffers(output *RotatingFile, working []Buffer, backups *bufferPool) error {
	working, err := l.applyBackpressure(output, working)
	if err != nil {
		return err
	}

	l.metrics.drainSize.Observe(float64(len(working)))

	for i := range working {
		if working[i].IsEmpty() {
			continue
		}
		if err := output.Append(working[i].Bytes()); err != nil {
			return err
		}
	}

	for i := range working {
		backups.Put(working[i].Take())
	}

	if err := output.Flush(); err != nil {
		return err
	}
	l.metrics.flushes.Inc()
	return nil
}

// applyBackpressure discards all but the first KeepOnOverflow buffers when
// the working list is longer than MaxPendingBuffers, reporting the loss once
// on the diagnostic output and in the log file itself. A failure to append
// the diagnostic to the file is fatal like any other write.
func (l *Logger) applyBackpressure(output *RotatingFile, working []Buffer) ([]Buffer, error) {
	if len(working) <= l.cfg.MaxPendingBuffers {
		return working, nil
	}

	keep := l.cfg.KeepOnOverflow
	dropped := len(working) - keep

	now := l.now()
	if l.cfg.UTCTime {
		now = now.UTC()
	} else {
		now = now.Local()
	}
	msg := fmt.Sprintf("Dropped log messages at %s, %d larger buffers.\n",
		now.Format(diagnosticTimeFormat), dropped)

	if l.cfg.DiagnosticOutput != nil {
		_, _ = fmt.Fprint(l.cfg.DiagnosticOutput, msg)
	}
	clear(working[keep:])
	working = working[:keep]

	l.droppedBuffers.Add(uint64(dropped))
	l.dropEvents.Add(1)
	l.metrics.droppedBuffers.Add(float64(dropped))
	l.metrics.dropEvents.Inc()
	l.log.Warn("writer overloaded, buffers dropped",
		zap.Int("dropped", dropped),
		zap.Int("kept", keep))

	if err := output.AppendString(msg); err != nil {
		return working, err
	}
	return working, nil
}

// drain runs after the loop has been told to stop. It writes whatever
// producers left in current and the queue, flushes, and hands the file back
// to sync mode.
func (l *Logger) drain(output *RotatingFile, working []Buffer) {
	l.mu.Lock()

	working = append(working, l.queue...)
	clear(l.queue)
	l.queue = l.queue[:0]
	if !l.current.IsEmpty() {
		working = append(working, l.current.Take())
	}
	l.current = Buffer{}
	l.spare = Buffer{}
	l.async = false
	l.pending.Store(0)

	var err error
	for i := range working {
		if working[i].IsEmpty() {
			continue
		}
		if err = output.Append(working[i].Bytes()); err != nil {
			break
		}
	}
	clear(working)
	if err == nil {
		err = output.Flush()
	}

	// Acknowledge flush requests that raced with the stop
	for _, ack := range l.collectFlushRequests(nil) {
		close(ack)
	}

	if err != nil {
		l.failLocked(err)
	}
	l.mu.Unlock()

	if err != nil {
		l.reportFailure(err)
	}
}

// fail records a fatal writer error. Producers see it on their next Write;
// the buffers they had filled are released.
func (l *Logger) fail(err error) {
	l.mu.Lock()
	l.failLocked(err)
	l.mu.Unlock()

	l.reportFailure(err)
}

func (l *Logger) failLocked(err error) {
	if l.failed == nil {
		l.failed = err
	}
	l.async = false
	clear(l.queue)
	l.queue = l.queue[:0]
	l.current = Buffer{}
	l.spare = Buffer{}
	l.pending.Store(0)
}

// reportFailure publishes a writer error; callers must not hold mu since the
// error callback may write
func (l *Logger) reportFailure(err error) {
	select {
	case l.errCh <- err:
	default:
	}
	l.reportError("async_write", err)
}

// collectFlushRequests appends every pending flush request to acks without
// blocking
func (l *Logger) collectFlushRequests(acks []chan struct{}) []chan struct{} {
	for {
		select {
		case ack := <-l.flushRq:
			acks = append(acks, ack)
		default:
			return acks
		}
	}
}

func releaseAcks(acks []chan struct{}) {
	for _, ack := range acks {
		close(ack)
	}
}
