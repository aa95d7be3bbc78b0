// metrics.go: Prometheus instrumentation of the write pipeline
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nijika"

// metrics holds the logger collectors. The collectors always exist so the
// write path never branches on them; they are only exported when a
// Registerer is configured.
type metrics struct {
	linesSubmitted prometheus.Counter     // Lines accepted by Write
	bytesSubmitted prometheus.Counter     // Bytes accepted by Write
	bufferSwaps    prometheus.Counter     // Full buffers queued by producers
	bufferAllocs   prometheus.Counter     // Buffers allocated outside the pre-allocated set
	droppedBuffers prometheus.Counter     // Buffers discarded under overload
	dropEvents     prometheus.Counter     // Overload drain cycles
	flushes        prometheus.Counter     // Writer goroutine flush cycles
	rotations      prometheus.Counter     // File rotations
	writeErrors    *prometheus.CounterVec // Failures by operation
	pendingBuffers prometheus.Gauge       // Pending queue depth at the last swap
	asyncActive    prometheus.Gauge       // 1 while async mode is on
	drainSize      prometheus.Histogram   // Buffers per writer cycle
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		linesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_submitted_total",
			Help:      "Number of lines accepted by Write.",
		}),
		bytesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_submitted_total",
			Help:      "Number of bytes accepted by Write.",
		}),
		bufferSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_swaps_total",
			Help:      "Number of full buffers handed to the writer by producers.",
		}),
		bufferAllocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_allocations_total",
			Help:      "Number of buffers allocated because no spare was available.",
		}),
		droppedBuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_buffers_total",
			Help:      "Number of buffers discarded because the writer fell behind.",
		}),
		dropEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drop_events_total",
			Help:      "Number of writer cycles that discarded buffers.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Number of writer cycles that flushed the file.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "Number of log file rotations.",
		}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of reported failures by operation.",
		}, []string{"operation"}),
		pendingBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_buffers",
			Help:      "Buffers claimed by the writer in its last cycle.",
		}),
		asyncActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "async_active",
			Help:      "1 while the asynchronous writer is running.",
		}),
		drainSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_buffers",
			Help:      "Buffers written per writer cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 7),
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.linesSubmitted, err = register(reg, m.linesSubmitted); err != nil {
		return nil, err
	}
	if m.bytesSubmitted, err = register(reg, m.bytesSubmitted); err != nil {
		return nil, err
	}
	if m.bufferSwaps, err = register(reg, m.bufferSwaps); err != nil {
		return nil, err
	}
	if m.bufferAllocs, err = register(reg, m.bufferAllocs); err != nil {
		return nil, err
	}
	if m.droppedBuffers, err = register(reg, m.droppedBuffers); err != nil {
		return nil, err
	}
	if m.dropEvents, err = register(reg, m.dropEvents); err != nil {
		return nil, err
	}
	if m.flushes, err = register(reg, m.flushes); err != nil {
		return nil, err
	}
	if m.rotations, err = register(reg, m.rotations); err != nil {
		return nil, err
	}
	if m.writeErrors, err = register(reg, m.writeErrors); err != nil {
		return nil, err
	}
	if m.pendingBuffers, err = register(reg, m.pendingBuffers); err != nil {
		return nil, err
	}
	if m.asyncActive, err = register(reg, m.asyncActive); err != nil {
		return nil, err
	}
	if m.drainSize, err = register(reg, m.drainSize); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered earlier
// by another Logger on the same registry
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register metrics collector")
	}
	return c, nil
}
