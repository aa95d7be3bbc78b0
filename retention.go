// retention.go: Background removal of old rotated files
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BackgroundTask represents a task for the worker pool
type BackgroundTask struct {
	TaskType string // "cleanup"
	Keep     string // file that must survive the task
	Logger   *Logger
}

// BackgroundWorkers manages a pool of workers for operations that must not
// run on the write path
type BackgroundWorkers struct {
	ctx       context.Context
	cancel    context.CancelFunc
	taskQueue chan BackgroundTask
	wg        sync.WaitGroup
	workers   int
	pending   atomic.Int64 // submitted and not yet finished
	stopOnce  sync.Once
}

// newBackgroundWorkers creates a new worker pool
func newBackgroundWorkers(numWorkers int) *BackgroundWorkers {
	ctx, cancel := context.WithCancel(context.Background())

	bg := &BackgroundWorkers{
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan BackgroundTask, 100),
		workers:   numWorkers,
	}

	for i := 0; i < numWorkers; i++ {
		bg.wg.Add(1)
		go bg.worker()
	}

	return bg
}

// worker processes background tasks
func (bg *BackgroundWorkers) worker() {
	defer bg.wg.Done()

	for {
		select {
		case <-bg.ctx.Done():
			return
		case task := <-bg.taskQueue:
			bg.processTask(task)
		}
	}
}

// processTask executes a background task
func (bg *BackgroundWorkers) processTask(task BackgroundTask) {
	defer bg.pending.Add(-1)

	switch task.TaskType {
	case "cleanup":
		task.Logger.cleanupOldFiles(task.Keep)
	}
}

// submit queues a task without blocking; it reports whether it was queued
func (bg *BackgroundWorkers) submit(task BackgroundTask) bool {
	select {
	case <-bg.ctx.Done():
		return false
	default:
	}

	bg.pending.Add(1)
	select {
	case bg.taskQueue <- task:
		return true
	case <-bg.ctx.Done():
	default:
		// Queue is full, skip task
	}
	bg.pending.Add(-1)
	return false
}

// stop gracefully shuts down the worker pool
func (bg *BackgroundWorkers) stop() {
	bg.stopOnce.Do(func() {
		bg.cancel()
		bg.wg.Wait()
	})
}

// waitForCompletion waits until every submitted task has finished or the
// pool was stopped
func (bg *BackgroundWorkers) waitForCompletion() {
	for bg.pending.Load() > 0 {
		select {
		case <-bg.ctx.Done():
			return
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// scheduleCleanup submits a retention pass after a rotation
func (l *Logger) scheduleCleanup(current string) {
	if l.cfg.MaxBackups <= 0 {
		return
	}

	workers := l.bgWorkers.Load()
	if workers == nil {
		workers = newBackgroundWorkers(1)
		if !l.bgWorkers.CompareAndSwap(nil, workers) {
			workers.stop()
			workers = l.bgWorkers.Load()
		}
	}

	workers.submit(BackgroundTask{TaskType: "cleanup", Keep: current, Logger: l})
}

type fileInfo struct {
	name    string
	modTime time.Time
}

// retentionPattern matches the files this process created under prefix.
// Files of other processes sharing the prefix carry another pid.
func retentionPattern(prefix string) string {
	return fmt.Sprintf("%s%s%d-*.log", prefix, FilePrefix, os.Getpid())
}

// cleanupOldFiles removes the oldest log files of this process under the
// configured prefix so that at most MaxBackups files remain besides keep
func (l *Logger) cleanupOldFiles(keep string) {
	fs := l.cfg.FileSystem
	pattern := retentionPattern(l.cfg.Path)
	keep = filepath.Clean(keep)

	matches, err := fs.Glob(pattern)
	if err != nil {
		l.reportError("retention_glob", errors.Wrapf(err, "glob %q", pattern))
		return
	}

	var files []fileInfo
	for _, match := range matches {
		// Glob returns cleaned paths ("./a" comes back as "a")
		if filepath.Clean(match) == keep {
			continue
		}
		info, err := fs.Stat(match)
		if err != nil {
			continue // Skip files we can't stat
		}
		files = append(files, fileInfo{name: match, modTime: info.ModTime()})
	}

	if len(files) <= l.cfg.MaxBackups {
		return
	}

	// Oldest first; names embed the timestamp and break ties
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].name < files[j].name
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files[:len(files)-l.cfg.MaxBackups] {
		if err := fs.Remove(f.name); err != nil {
			l.reportError("retention_remove", newIOError("remove", f.name, err))
			continue
		}
		l.log.Debug("removed old log file", zap.String("file", f.name))
	}
}
