package document

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Processor extracts plain text from uploaded files, dispatching on the
// file extension.
type Processor struct {
	log *slog.Logger
}

func NewProcessor(log *slog.Logger) *Processor {
	return &Processor{log: log.With(slog.String("component", "document"))}
}

// Extract returns the text content of the file at path.
func (p *Processor) Extract(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return p.extractText(path)
	case ".csv":
		return p.extractCSV(path)
	case ".json":
		return p.extractJSON(path)
	case ".pdf":
		return p.extractPDF(path)
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func (p *Processor) extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return string(data), nil
}

// extractCSV summarizes tabular data instead of dumping raw rows: shape,
// headers, and basic stats for numeric columns.
func (p *Processor) extractCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("csv file is empty")
	}

	headers := records[0]
	rows := records[1:]

	var b strings.Builder
	fmt.Fprintf(&b, "CSV data with %d rows and %d columns.\n", len(rows), len(headers))
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(headers, ", "))

	for col, name := range headers {
		var count int
		var sum, min, max float64
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				continue
			}
			if count == 0 || v < min {
				min = v
			}
			if count == 0 || v > max {
				max = v
			}
			sum += v
			count++
		}
		if count > 0 {
			fmt.Fprintf(&b, "Column %s: numeric, min %g, max %g, mean %.2f over %d values.\n",
				name, min, max, sum/float64(count), count)
		}
	}

	// A few sample rows give the model concrete values to talk about.
	sample := len(rows)
	if sample > 5 {
		sample = 5
	}
	if sample > 0 {
		b.WriteString("Sample rows:\n")
		for _, row := range rows[:sample] {
			fmt.Fprintf(&b, "  %s\n", strings.Join(row, ", "))
		}
	}
	return b.String(), nil
}

func (p *Processor) extractJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read json: %w", err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", fmt.Errorf("render json: %w", err)
	}
	return buf.String(), nil
}

func (p *Processor) extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
