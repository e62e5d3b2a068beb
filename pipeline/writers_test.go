package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
)

func sampleBook() *models.Book {
	return &models.Book{
		Title:             "Atomic Habits, the life-changing \"million copy\" bestseller",
		URL:               "https://www.amazon.in/dp/1847941834",
		Category:          "Self-Help",
		Rank:              "#2",
		Author:            "James Clear",
		OriginalPrice:     "799.00",
		Price:             "",
		SavingsPercentage: "",
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "books.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("csv file should not exist before the first write, stat err=%v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate before any write: %v", err)
	}

	if err := writer.Write([]*models.Book{sampleBook()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Write([]*models.Book{sampleBook(), sampleBook()}); err != nil {
		t.Fatalf("rewrite csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3 (snapshot replaces the file)", len(records))
	}
	if strings.Join(records[0], ",") != "title,url,category,rank,author,original_price,price,savings_percentage" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != sampleBook().Title {
		t.Fatalf("title=%q, want quoting to round-trip", records[1][0])
	}
	if records[1][6] != "" || records[1][7] != "" {
		t.Fatalf("missing values must be empty fields, got %q %q", records[1][6], records[1][7])
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "out", "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]*models.Book{sampleBook()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Book
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.URL != sampleBook().URL {
			t.Fatalf("url=%q", decoded.URL)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")

	writer, err := NewDualWriter(csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write([]*models.Book{sampleBook()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "books.json")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}
