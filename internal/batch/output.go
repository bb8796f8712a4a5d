package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Report is the YAML document written for a batch run.
type Report struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	OCREngine string `yaml:"ocrengine"`
	Timestamp string `yaml:"timestamp"`
	Stats     Stats  `yaml:"stats"`
	Results   []Row  `yaml:"results"`
}

// NewReport wraps rows with run metadata and aggregate stats.
func NewReport(provider, model, engine string, rows []Row) Report {
	return Report{
		Provider:  provider,
		Model:     model,
		OCREngine: engine,
		Timestamp: time.Now().Format("2006-01-02_15-04-05"),
		Stats:     Summarize(rows),
		Results:   rows,
	}
}

// WriteParquet writes rows as a single parquet file.
func WriteParquet(w io.Writer, rows []Row) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet loads rows written by WriteParquet.
func ReadParquet(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	return rows, nil
}

// WriteYAML encodes report as YAML.
func WriteYAML(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// SaveFile writes rows to path in the given format ("parquet" or "yaml").
func SaveFile(path, format string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	switch format {
	case "parquet":
		err = WriteParquet(f, report.Results)
	case "yaml":
		err = WriteYAML(f, report)
	default:
		err = fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
