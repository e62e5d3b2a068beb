package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
)

// DualWriter keeps a CSV snapshot and a JSONL mirror of the same result set.
type DualWriter struct {
	csv  *CSVWriter
	json *JSONWriter
}

// NewDualWriter writes csvFilename and a JSONL file beside it with the same
// stem and a .json extension.
func NewDualWriter(csvFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create CSV writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(JSONSibling(csvFilename))
	if err != nil {
		return nil, fmt.Errorf("create JSON writer: %w", err)
	}
	return &DualWriter{csv: csvWriter, json: jsonWriter}, nil
}

// JSONSibling returns the JSON mirror path for a CSV output path.
func JSONSibling(csvFilename string) string {
	return strings.TrimSuffix(csvFilename, ".csv") + ".json"
}

// Write stores books in both formats; the CSV file is written first.
func (dw *DualWriter) Write(books []*models.Book) error {
	if err := dw.csv.Write(books); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.json.Write(books); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	return errors.Join(dw.csv.Close(), dw.json.Close())
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csv.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	if err := dw.json.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}
	return errors.Join(errs...)
}
