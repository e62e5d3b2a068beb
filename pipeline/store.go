package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
)

// LoadBooks reads the result file of a previous run. A missing file is not an
// error and yields no books. Columns are matched by header name; absent
// columns and short rows become empty strings.
func LoadBooks(filename string) ([]*models.Book, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open previous results: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", filename, err)
	}

	index := make(map[string]int, len(header))
	for i, column := range header {
		column = strings.TrimSpace(strings.TrimPrefix(column, "\uFEFF"))
		if _, dup := index[column]; !dup {
			index[column] = i
		}
	}
	if _, ok := index["url"]; !ok {
		return nil, fmt.Errorf("%s has no url column", filename)
	}

	var books []*models.Book
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		books = append(books, models.BookFromRecord(index, row))
	}
	return books, nil
}

// LoadJSONBooks reads a JSON Lines result file written by JSONWriter. Like
// LoadBooks, a missing file yields no books and missing keys load as "".
func LoadJSONBooks(filename string) ([]*models.Book, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open previous results: %w", err)
	}
	defer f.Close()

	var books []*models.Book
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var book models.Book
		if err := json.Unmarshal([]byte(text), &book); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", filename, line, err)
		}
		books = append(books, &book)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return books, nil
}
