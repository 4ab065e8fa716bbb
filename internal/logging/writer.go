package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that rotates the target file once it
// grows past a size cap. server.log becomes server.log.1, .1 becomes
// .2, and anything past maxFiles is removed.
type RotatingWriter struct {
	path string
	cap  int64
	keep int

	mu   sync.Mutex
	out  *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating parent
// directories as needed. maxSizeMB caps the active file and maxFiles
// bounds how many rotated copies survive.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path: path,
		cap:  int64(maxSizeMB) << 20,
		keep: maxFiles,
	}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first when the file would exceed the cap.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.cap {
		if err := w.rotate(); err != nil {
			// The active file stays usable after a failed rotation.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.out.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out = nil
	return err
}

// Sync flushes buffered writes to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out == nil {
		return nil
	}
	return w.out.Sync()
}

func (w *RotatingWriter) reopen() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.out = f
	w.size = info.Size()
	return nil
}

// rotate shifts numbered copies up by one and reopens a fresh active
// file. Caller holds the mutex.
func (w *RotatingWriter) rotate() error {
	if w.out != nil {
		if err := w.out.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.out = nil
	}

	numbered := func(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }
	_ = os.Remove(numbered(w.keep))
	for n := w.keep - 1; n >= 1; n-- {
		if _, err := os.Stat(numbered(n)); err == nil {
			_ = os.Rename(numbered(n), numbered(n+1))
		}
	}
	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, numbered(1)); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	w.size = 0
	return w.reopen()
}
