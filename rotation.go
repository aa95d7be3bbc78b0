// rotation.go: Buffered, size-rotated log file writer
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

var errNoCurrentFile = errors.New("no current file")

// File is the subset of *os.File used by RotatingFile.
type File interface {
	io.Writer
	Close() error
	Sync() error
}

// FileSystem interface for cross-platform abstraction
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
	Glob(pattern string) ([]string, error)
}

// DefaultFileSystem implements FileSystem using standard os package
type DefaultFileSystem struct{}

func (DefaultFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := os.OpenFile(name, flag, perm) // #nosec G304 -- name is generated from the configured prefix
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (DefaultFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (DefaultFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (DefaultFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (DefaultFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// RotatingFile is a sequential, append-only writer over a log file with its
// own internal buffer. Every flush that would take the file past the roll
// size first rotates to a freshly named file.
//
// Rotation is checked once per flush against the whole pending buffer, so a
// file may end slightly above the roll size; the threshold guards the write,
// it does not cap the file.
//
// RotatingFile is not safe for concurrent use; the Logger serializes access.
// Name, Size and Rotations may be read from any goroutine.
type RotatingFile struct {
	fs          FileSystem
	file        File
	prefix      string
	rollSize    uint64
	buffer      Buffer
	fileMode    os.FileMode
	retryCount  int
	retryDelay  time.Duration
	utc         bool
	syncOnFlush bool
	clock       func() time.Time
	nameFunc    func() string
	onRotate    func(oldName, newName string)

	name      atomic.Pointer[string]
	size      atomic.Uint64 // bytes written to the current file
	written   atomic.Uint64 // bytes written to all files
	rotations atomic.Uint64
	flushes   atomic.Uint64
}

// FileOption configures a RotatingFile.
type FileOption func(*RotatingFile)

// WithFileSystem replaces the os-backed file system.
func WithFileSystem(fs FileSystem) FileOption {
	return func(f *RotatingFile) {
		if fs != nil {
			f.fs = fs
		}
	}
}

// WithClock sets the time source used for file names.
func WithClock(clock func() time.Time) FileOption {
	return func(f *RotatingFile) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithUTC formats file name timestamps in UTC.
func WithUTC(utc bool) FileOption {
	return func(f *RotatingFile) { f.utc = utc }
}

// WithFileMode sets the permission of created files.
func WithFileMode(mode os.FileMode) FileOption {
	return func(f *RotatingFile) {
		if mode != 0 {
			f.fileMode = mode
		}
	}
}

// WithRetry sets the open retry policy.
func WithRetry(count int, delay time.Duration) FileOption {
	return func(f *RotatingFile) {
		f.retryCount = count
		f.retryDelay = delay
	}
}

// WithSyncOnFlush makes every flush end with fsync.
func WithSyncOnFlush(sync bool) FileOption {
	return func(f *RotatingFile) { f.syncOnFlush = sync }
}

// WithRotateHook registers fn to run after every successful rotation.
func WithRotateHook(fn func(oldName, newName string)) FileOption {
	return func(f *RotatingFile) { f.onRotate = fn }
}

// NewRotatingFile opens the first log file under prefix.
// rollSize is the rotation threshold in bytes and bufferSize the capacity of
// the internal buffer. Failing to open the file returns an *IOError.
func NewRotatingFile(prefix string, rollSize int64, bufferSize int, opts ...FileOption) (*RotatingFile, error) {
	if rollSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "roll size must be positive, got %d", rollSize)
	}
	if bufferSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "buffer size must be positive, got %d", bufferSize)
	}

	f := &RotatingFile{
		fs:         DefaultFileSystem{},
		prefix:     prefix,
		rollSize:   uint64(rollSize),
		buffer:     NewBuffer(bufferSize),
		fileMode:   GetDefaultFileMode(),
		retryCount: 3,
		retryDelay: 10 * time.Millisecond,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.nameFunc == nil {
		f.nameFunc = f.generateFileName
	}
	empty := ""
	f.name.Store(&empty)

	if err := f.createLogDirectory(); err != nil {
		return nil, err
	}

	name := f.nameFunc()
	file, err := f.openLogFile(name)
	if err != nil {
		return nil, err
	}
	f.file = file
	f.name.Store(&name)

	return f, nil
}

// generateFileName builds <prefix>nijika-<pid>-<YYYYMMDD-HHMMSS>-<NNNN>.log
func (f *RotatingFile) generateFileName() string {
	now := f.clock()
	if f.utc {
		now = now.UTC()
	} else {
		now = now.Local()
	}

	base := fmt.Sprintf("%s%d-%s-%d.log",
		FilePrefix, os.Getpid(), now.Format("20060102-150405"), 1000+rand.IntN(9000)) // #nosec G404 -- name suffix, not a secret

	return f.prefix + SanitizeFilename(base)
}

// createLogDirectory creates the directory part of the prefix if needed
func (f *RotatingFile) createLogDirectory() error {
	dir := filepath.Dir(f.prefix + FilePrefix)
	if dir == "." {
		return nil
	}

	err := RetryFileOperation(func() error {
		return f.fs.MkdirAll(dir, 0750)
	}, f.retryCount, f.retryDelay)
	if err != nil {
		return newIOError("mkdir", dir, errors.Cause(err))
	}
	return nil
}

// openLogFile opens or creates a log file with retry
func (f *RotatingFile) openLogFile(name string) (File, error) {
	var file File
	err := RetryFileOperation(func() error {
		var err error
		file, err = f.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, f.fileMode)
		return err
	}, f.retryCount, f.retryDelay)
	if err != nil {
		return nil, newIOError("open", name, errors.Cause(err))
	}
	return file, nil
}

// Append adds p to the internal buffer, flushing first when p does not fit
// in the free space. A chunk larger than the whole internal buffer is written
// straight to the file after that flush.
func (f *RotatingFile) Append(p []byte) error {
	if len(p) > f.buffer.Avail() {
		if err := f.Flush(); err != nil {
			return err
		}
	}

	if len(p) > f.buffer.Avail() {
		return f.writeDirect(p)
	}

	return f.buffer.Append(p)
}

// AppendString is Append for strings.
func (f *RotatingFile) AppendString(s string) error {
	if len(s) > f.buffer.Avail() {
		if err := f.Flush(); err != nil {
			return err
		}
	}

	if len(s) > f.buffer.Avail() {
		return f.writeDirect([]byte(s))
	}

	return f.buffer.AppendString(s)
}

// Flush writes the internal buffer to the file, rotating first if the file
// would exceed the roll size.
func (f *RotatingFile) Flush() error {
	n := f.buffer.Len()

	if f.size.Load()+uint64(n) > f.rollSize {
		if err := f.rotate(); err != nil {
			return err
		}
	}

	if n > 0 {
		if err := f.writeAll(f.buffer.Bytes()); err != nil {
			return err
		}
		f.size.Add(uint64(n))
		f.written.Add(uint64(n))
		f.buffer.Clear()
	}
	f.flushes.Add(1)

	if f.syncOnFlush && f.file != nil {
		if err := f.file.Sync(); err != nil {
			return newIOError("sync", f.Name(), err)
		}
	}
	return nil
}

// writeDirect applies the rotation check to p and writes it unbuffered.
// The internal buffer must be empty.
func (f *RotatingFile) writeDirect(p []byte) error {
	if f.size.Load()+uint64(len(p)) > f.rollSize {
		if err := f.rotate(); err != nil {
			return err
		}
	}

	if err := f.writeAll(p); err != nil {
		return err
	}
	f.size.Add(uint64(len(p)))
	f.written.Add(uint64(len(p)))
	return nil
}

// writeAll writes p completely, retrying interrupted system calls
func (f *RotatingFile) writeAll(p []byte) error {
	if f.file == nil {
		return newIOError("write", f.Name(), errNoCurrentFile)
	}

	for written := 0; written < len(p); {
		n, err := f.file.Write(p[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return newIOError("write", f.Name(), err)
		}
		if n == 0 {
			return newIOError("write", f.Name(), io.ErrShortWrite)
		}
	}
	return nil
}

// rotate switches to a freshly named file and resets the size counter.
// The new file is opened before the old one is closed so that a failed open
// leaves the writer on the previous file.
func (f *RotatingFile) rotate() error {
	oldName := f.Name()
	newName := f.nameFunc()

	newFile, err := f.openLogFile(newName)
	if err != nil {
		return err
	}

	if f.file != nil {
		if err := f.file.Close(); err != nil {
			_ = newFile.Close() // Ignore close error during cleanup
			return newIOError("close", oldName, err)
		}
	}

	f.file = newFile
	f.name.Store(&newName)
	f.size.Store(0)
	f.rotations.Add(1)

	if f.onRotate != nil {
		f.onRotate(oldName, newName)
	}
	return nil
}

// Close flushes the remaining bytes and closes the file. The file is closed
// even when the flush fails; the flush error is returned in that case.
func (f *RotatingFile) Close() error {
	if f.file == nil {
		return nil
	}

	flushErr := f.Flush()

	closeErr := f.file.Close()
	f.file = nil

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return newIOError("close", f.Name(), closeErr)
	}
	return nil
}

// Name returns the path of the current file.
func (f *RotatingFile) Name() string { return *f.name.Load() }

// Size returns the bytes written to the current file, excluding buffered bytes.
func (f *RotatingFile) Size() uint64 { return f.size.Load() }

// Written returns the bytes written to all files so far.
func (f *RotatingFile) Written() uint64 { return f.written.Load() }

// Buffered returns the bytes waiting in the internal buffer.
func (f *RotatingFile) Buffered() int { return f.buffer.Len() }

// Rotations returns how many times the writer rotated.
func (f *RotatingFile) Rotations() uint64 { return f.rotations.Load() }

// Flushes returns how many flushes completed.
func (f *RotatingFile) Flushes() uint64 { return f.flushes.Load() }
