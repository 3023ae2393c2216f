package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

// Format is the encoding of the report file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// WriteReport encodes report to w.
func WriteReport(w io.Writer, report *domain.Report, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// TableSuffix is appended to the output prefix to name the posts table.
const TableSuffix = "_posts.csv"

// Paths are the files written by Save.
type Paths struct {
	Table  string
	Report string
}

// Save writes the posts table and the report into dir, naming both files
// after prefix.
func Save(dir, prefix string, format Format, records []domain.Record, report *domain.Report) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create output directory: %w", err)
	}
	if format == "" {
		format = FormatJSON
	}

	paths := Paths{
		Table:  filepath.Join(dir, prefix+TableSuffix),
		Report: filepath.Join(dir, prefix+"_analysis."+string(format)),
	}

	if err := writeFile(paths.Table, func(w io.Writer) error { return WriteCSV(w, records) }); err != nil {
		return Paths{}, fmt.Errorf("save posts table: %w", err)
	}
	if err := writeFile(paths.Report, func(w io.Writer) error { return WriteReport(w, report, format) }); err != nil {
		return Paths{}, fmt.Errorf("save report: %w", err)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
