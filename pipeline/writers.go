package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
)

// CSVWriter rewrites the result file with a header row and one row per book.
type CSVWriter struct {
	filename string
	writes   int
	mu       sync.Mutex
}

// NewCSVWriter prepares a CSV writer. The file itself is left untouched
// until the first Write so rows from an earlier run survive an empty run.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &CSVWriter{filename: filename}, nil
}

// Write replaces the CSV output with books.
func (cw *CSVWriter) Write(books []*models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	err := writeAtomic(cw.filename, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(models.CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, book := range books {
			if err := writer.Write(book.Record()); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.writes++
	return nil
}

// Close is a no-op; every Write leaves a complete file behind.
func (cw *CSVWriter) Close() error {
	return nil
}

// Validate ensures the CSV file has content once something was written.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return validateWritten(cw.filename, cw.writes, "csv")
}

// JSONWriter rewrites a newline-delimited JSON snapshot.
type JSONWriter struct {
	filename string
	writes   int
	mu       sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{filename: filename}, nil
}

// Write replaces the JSONL output with books.
func (jw *JSONWriter) Write(books []*models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	err := writeAtomic(jw.filename, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		for _, book := range books {
			if err := encoder.Encode(book); err != nil {
				return fmt.Errorf("encode json record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	jw.writes++
	return nil
}

// Close is a no-op; every Write leaves a complete file behind.
func (jw *JSONWriter) Close() error {
	return nil
}

// Validate ensures the JSON file has data once something was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return validateWritten(jw.filename, jw.writes, "json")
}

// writeAtomic fills a temp file next to filename and renames it into place,
// so readers never observe a half-written snapshot.
func writeAtomic(filename string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buffer := bufio.NewWriter(tmp)
	if err = fill(buffer); err != nil {
		return err
	}
	if err = buffer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", filename, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("replace %s: %w", filename, err)
	}
	return nil
}

func validateWritten(filename string, writes int, kind string) error {
	if writes == 0 {
		return nil
	}
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
