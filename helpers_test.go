package nijika

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// memFile is the in-memory content of one file. A write hook can fail,
// block or shorten writes; the bytes it accepts are recorded.
type memFile struct {
	mu      sync.Mutex
	name    string
	data    bytes.Buffer
	created time.Time
	syncs   int
	closed  bool // the most recent handle was closed
	hook    func(p []byte) (int, error)
}

func (f *memFile) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.String()
}

// memHandle is one open descriptor of a memFile
type memHandle struct {
	f      *memFile
	closed bool
}

func (h *memHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}

	h.f.mu.Lock()
	hook := h.f.hook
	h.f.mu.Unlock()

	n := len(p)
	var err error
	if hook != nil {
		n, err = hook(p)
	}

	h.f.mu.Lock()
	h.f.data.Write(p[:n])
	h.f.mu.Unlock()
	return n, err
}

func (h *memHandle) Sync() error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	h.f.syncs++
	return nil
}

func (h *memHandle) Close() error {
	if h.closed {
		return os.ErrClosed
	}
	h.closed = true
	h.f.mu.Lock()
	h.f.closed = true
	h.f.mu.Unlock()
	return nil
}

type memInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (i memInfo) Name() string       { return filepath.Base(i.name) }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0644 }
func (i memInfo) ModTime() time.Time { return i.modTime }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

// memFS is a FileSystem over memFiles. Every created file gets a ModTime
// one second after the previous one.
type memFS struct {
	mu      sync.Mutex
	files   map[string]*memFile
	order   []string
	opens   int
	openErr error
	onOpen  func(f *memFile) // runs for every newly created file
	clock   time.Time
}

func newMemFS() *memFS {
	return &memFS{
		files: make(map[string]*memFile),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}

	f, ok := m.files[name]
	if !ok {
		m.clock = m.clock.Add(time.Second)
		f = &memFile{name: name, created: m.clock}
		m.files[name] = f
		m.order = append(m.order, name)
		if m.onOpen != nil {
			m.onOpen(f)
		}
	}
	f.mu.Lock()
	f.closed = false
	f.mu.Unlock()
	return &memHandle{f: f}, nil
}

func (m *memFS) MkdirAll(string, os.FileMode) error { return nil }

func (m *memFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memFS) Stat(name string) (os.FileInfo, error) {
	m.mu.Lock()
	f, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return memInfo{name: name, size: int64(f.data.Len()), modTime: f.created}, nil
}

func (m *memFS) Glob(pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.files {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memFS) setOpenErr(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

func (m *memFS) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// names returns the live files in creation order
func (m *memFS) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

func (m *memFS) file(name string) *memFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[name]
}

func (m *memFS) content(name string) string {
	f := m.file(name)
	if f == nil {
		return ""
	}
	return f.String()
}

// all concatenates every live file in creation order
func (m *memFS) all() string {
	var sb strings.Builder
	for _, name := range m.names() {
		sb.WriteString(m.content(name))
	}
	return sb.String()
}

// withSequentialNames replaces the generated file names with
// <prefix>nijika-001.log, <prefix>nijika-002.log, ...
func withSequentialNames() FileOption {
	return func(f *RotatingFile) {
		n := 0
		f.nameFunc = func() string {
			n++
			return fmt.Sprintf("%s%s%03d.log", f.prefix, FilePrefix, n)
		}
	}
}

// testDir returns a temp directory as a file name prefix
func testDir(t *testing.T) string {
	t.Helper()
	return t.TempDir() + string(os.PathSeparator)
}

// readLogFiles concatenates every log file under prefix, ordered by name
func readLogFiles(t *testing.T, prefix string) string {
	t.Helper()
	matches, err := filepath.Glob(prefix + FilePrefix + "*.log")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	sort.Strings(matches)

	var sb strings.Builder
	for _, match := range matches {
		data, err := os.ReadFile(match) // #nosec G304 -- test fixture
		if err != nil {
			t.Fatalf("ReadFile(%s) failed: %v", match, err)
		}
		sb.Write(data)
	}
	return sb.String()
}

// line builds a newline-terminated line of exactly size bytes
func line(tag string, size int) string {
	if size <= len(tag)+1 {
		return tag[:size-1] + "\n"
	}
	return tag + strings.Repeat(".", size-len(tag)-1) + "\n"
}
