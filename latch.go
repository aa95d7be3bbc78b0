// latch.go: One-shot countdown barrier
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"context"
	"sync"
)

// CountDownLatch is a single-use rendezvous: Wait blocks until CountDown has
// been called n times. Once the count reaches zero the latch stays open and
// every later Wait returns immediately.
type CountDownLatch struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

// NewCountDownLatch creates a latch that opens after n calls to CountDown.
// A latch created with n <= 0 is already open.
func NewCountDownLatch(n int) *CountDownLatch {
	l := &CountDownLatch{count: n, done: make(chan struct{})}
	if n <= 0 {
		l.count = 0
		close(l.done)
	}
	return l
}

// CountDown decrements the counter and releases all waiters when it reaches
// zero. Calls after the latch opened are ignored.
func (l *CountDownLatch) CountDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 {
		close(l.done)
	}
}

// Count returns the remaining count.
func (l *CountDownLatch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Wait blocks until the counter reaches zero.
func (l *CountDownLatch) Wait() {
	<-l.done
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if ctx ends first.
func (l *CountDownLatch) WaitContext(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the latch opens.
func (l *CountDownLatch) Done() <-chan struct{} { return l.done }
