// Package logging mirrors the daemon's log stream to a size-capped file so a
// long-running sync daemon can be inspected after the fact without ever
// filling the disk. One rotated backup is kept.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// DefaultPath is where the daemon logs when no other path is configured.
const DefaultPath = "staysync.log"

// maxLogBytes caps the live log file; the previous generation survives as
// path + ".old".
const maxLogBytes = 5 << 20

// RotatingWriter appends to a single log file and swaps it out for a fresh
// one before a write would push it past the cap.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup routes the standard logger to stdout plus a rotating file at path.
// The returned writer must be closed on shutdown.
func Setup(path string) (*RotatingWriter, error) {
	if path == "" {
		path = DefaultPath
	}

	w, err := newWriter(path, maxLogBytes)
	if err != nil {
		return nil, err
	}

	log.SetOutput(io.MultiWriter(os.Stdout, w))
	return w, nil
}

func newWriter(path string, maxSize int64) (*RotatingWriter, error) {
	// an oversized leftover from a previous run becomes the backup
	if info, err := os.Stat(path); err == nil && info.Size() >= maxSize {
		os.Rename(path, path+".old")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return &RotatingWriter{file: f, path: path, size: size, maxSize: maxSize}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotate() error {
	w.file.Close()
	os.Rename(w.path, w.path+".old")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
