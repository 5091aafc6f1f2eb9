// Package logtail reads the proxy service log file incrementally.
package logtail

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/proxydeck/proxydeck/internal/errors"
)

const (
	// DefaultReadBytes is the chunk size when the caller does not specify one.
	DefaultReadBytes = 64 * 1024

	// MaxReadBytes caps a single read so a huge log cannot be pulled in one request.
	MaxReadBytes = 1 << 20

	// DefaultTailLines is the tail length when the caller does not specify one.
	DefaultTailLines = 50

	// MaxTailLines caps a tail request.
	MaxTailLines = 2000

	tailBlockSize = 8 * 1024
)

// Chunk is the result of one incremental read.
type Chunk struct {
	Content   string `json:"content"`
	NewOffset int64  `json:"new_offset"`
	Size      int64  `json:"size"`
}

// Tailer reads a log file that another process appends to.
type Tailer struct {
	path string
}

// NewTailer creates a tailer for the given log file path.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

// Path returns the log file path this tailer reads.
func (t *Tailer) Path() string {
	return t.path
}

// Exists reports whether the log file currently exists and its size.
func (t *Tailer) Exists() (bool, int64) {
	info, err := os.Stat(t.path)
	if err != nil {
		return false, 0
	}
	return true, info.Size()
}

// Read returns up to maxBytes starting at offset. A missing file reads as an
// empty chunk at offset 0 since the proxy may not have started yet. An offset
// past EOF means the file was truncated or rotated, so the read restarts from 0.
func (t *Tailer) Read(offset, maxBytes int64) (*Chunk, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultReadBytes
	}
	if maxBytes > MaxReadBytes {
		maxBytes = MaxReadBytes
	}

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Chunk{}, nil
		}
		return nil, &errors.ErrFileRead{Path: t.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &errors.ErrFileRead{Path: t.path, Err: err}
	}
	size := info.Size()

	if offset < 0 || offset > size {
		offset = 0
	}

	buf := make([]byte, maxBytes)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, &errors.ErrFileRead{Path: t.path, Err: err}
	}

	return &Chunk{
		Content:   string(buf[:n]),
		NewOffset: offset + int64(n),
		Size:      size,
	}, nil
}

// Tail returns the last maxLines lines of the log, scanning backwards in
// fixed-size blocks so only the file tail is read.
func (t *Tailer) Tail(maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = DefaultTailLines
	}
	if maxLines > MaxTailLines {
		maxLines = MaxTailLines
	}

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &errors.ErrFileRead{Path: t.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &errors.ErrFileRead{Path: t.path, Err: err}
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var (
		buf   []byte
		pos   = size
		block = make([]byte, tailBlockSize)
	)
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= maxLines && int64(len(buf)) < MaxReadBytes {
		n := int64(tailBlockSize)
		if pos < n {
			n = pos
		}
		pos -= n
		if _, err := f.ReadAt(block[:n], pos); err != nil && err != io.EOF {
			return nil, &errors.ErrFileRead{Path: t.path, Err: err}
		}
		buf = append(append([]byte{}, block[:n]...), buf...)
	}

	trimmed := strings.TrimRight(string(buf), "\n")
	if trimmed == "" {
		return nil, nil
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// Clear empties the log file. With backup it renames the current file to
// <path>.<unix-ts>.bak and creates a fresh empty log, returning the backup
// path. The proxy keeps its open handle, so after a rename it appends to the
// backup until restarted; plain truncation keeps appends in the live file.
func (t *Tailer) Clear(backup bool) (string, error) {
	if _, err := os.Stat(t.path); err != nil {
		if os.IsNotExist(err) {
			return "", &errors.ErrLogNotFound{Path: t.path}
		}
		return "", &errors.ErrFileRead{Path: t.path, Err: err}
	}

	if backup {
		backupPath := fmt.Sprintf("%s.%d.bak", t.path, time.Now().Unix())
		if err := os.Rename(t.path, backupPath); err != nil {
			return "", &errors.ErrFileRead{Path: t.path, Err: err}
		}
		f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return backupPath, &errors.ErrFileRead{Path: t.path, Err: err}
		}
		f.Close()
		return backupPath, nil
	}

	if err := os.Truncate(t.path, 0); err != nil {
		return "", &errors.ErrFileRead{Path: t.path, Err: err}
	}
	return "", nil
}
