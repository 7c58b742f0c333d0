package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of debug.log.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated. Zero disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept next to the live log.
	MaxBackups int
}

// DefaultRotationConfig mirrors the logging.max_size_mb and
// logging.max_backups config defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// RotatingWriter is an io.WriteCloser over a single log file that shifts the
// file to numbered backups once it grows past the configured size.
// It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	path       string
	maxBytes   int64
	maxBackups int

	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:       path,
		maxBytes:   int64(config.MaxSizeMB) * 1024 * 1024,
		maxBackups: config.MaxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open must be called with mu held (or before the writer is shared).
func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past the limit.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}

	if rw.maxBytes > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			// Keep logging to whatever file is open rather than dropping entries.
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
			if rw.file == nil {
				return 0, err
			}
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil

	rw.shiftBackups()

	if rw.maxBackups > 0 {
		if err := os.Rename(rw.path, rw.backupPath(1)); err != nil {
			if openErr := rw.open(); openErr != nil {
				return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
			}
			return fmt.Errorf("failed to rename log file: %w", err)
		}
	} else if err := os.Remove(rw.path); err != nil && !os.IsNotExist(err) {
		if openErr := rw.open(); openErr != nil {
			return fmt.Errorf("failed to truncate log file and reopen: %w", openErr)
		}
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	return rw.open()
}

// shiftBackups renames .N-1 -> .N down to .1 -> .2, dropping the oldest.
func (rw *RotatingWriter) shiftBackups() {
	if rw.maxBackups <= 0 {
		return
	}
	_ = os.Remove(rw.backupPath(rw.maxBackups))
	for i := rw.maxBackups - 1; i >= 1; i-- {
		if _, err := os.Stat(rw.backupPath(i)); err == nil {
			_ = os.Rename(rw.backupPath(i), rw.backupPath(i+1))
		}
	}
}

func (rw *RotatingWriter) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// Close syncs and closes the log file. Closing twice is a no-op.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil
	return nil
}

// Size reports the current size of the live log file in bytes.
func (rw *RotatingWriter) Size() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}

// Path returns the live log file path.
func (rw *RotatingWriter) Path() string {
	return rw.path
}
