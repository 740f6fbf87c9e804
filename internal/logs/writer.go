package logs

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// Writer appends lines to a session log file, rotating it once it exceeds
// MaxLogSize.
type Writer struct {
	path string
	file *os.File
	buf  *bufio.Writer
	size int64
}

// NewWriter opens path for appending, creating it if necessary
func NewWriter(path string) (*Writer, error) {
	if err := rotateIfNeeded(path); err != nil {
		return nil, fmt.Errorf("failed to rotate log: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &Writer{path: path, file: file, buf: bufio.NewWriter(file), size: info.Size()}, nil
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, err
	}
	if w.size >= MaxLogSize {
		if err := w.rotate(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteLines writes each line followed by a newline
func (w *Writer) WriteLines(lines []string) error {
	for _, line := range lines {
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the log file
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (w *Writer) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := rotateLog(w.path); err != nil {
		return err
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to reopen log file: %w", err)
	}
	w.file = file
	w.buf.Reset(file)
	w.size = 0
	return nil
}

// RotatedPath returns the path a log is renamed to when rotated
func RotatedPath(path string, timestamp int64) string {
	return fmt.Sprintf("%s.%d", path, timestamp)
}

func rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() >= MaxLogSize {
		return rotateLog(path)
	}

	return nil
}

func rotateLog(path string) error {
	if err := os.Rename(path, RotatedPath(path, time.Now().UnixNano())); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	return nil
}
