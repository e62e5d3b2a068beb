package pipeline

import (
	"fmt"
	"os"
	"sync"
)

const statusLogHeader = "url, status_code\n"

// StatusLog is the append-only audit trail of URLs that did not yield a page.
type StatusLog struct {
	filename string
	mu       sync.Mutex
}

// NewStatusLog returns a log appending to filename. The file and its header
// row are created on the first Record.
func NewStatusLog(filename string) *StatusLog {
	return &StatusLog{filename: filename}
}

// Record appends one "url, status" line.
func (l *StatusLog) Record(url, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.filename); err != nil {
		return err
	}
	f, err := os.OpenFile(l.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open status log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat status log: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(statusLogHeader); err != nil {
			f.Close()
			return fmt.Errorf("write status log header: %w", err)
		}
	}
	if _, err := fmt.Fprintf(f, "%s, %s\n", url, status); err != nil {
		f.Close()
		return fmt.Errorf("append status log: %w", err)
	}
	return f.Close()
}
