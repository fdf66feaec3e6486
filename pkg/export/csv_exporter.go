package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column describes one field of a dataset. Key indexes the row maps and is
// the machine-readable header; Label is what humans see.
type Column struct {
	Key    string
	Label  string
	Weight float64
}

func (c Column) label() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

// Dataset is tabular export content.
type Dataset struct {
	Title   string
	Notes   []string
	Columns []Column
	Rows    []map[string]string
}

// Keys returns the column keys in order.
func (d Dataset) Keys() []string {
	keys := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		keys[i] = c.Key
	}
	return keys
}

func (d Dataset) validate(format string) error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s requires at least one column", format)
	}
	for i, c := range d.Columns {
		if c.Key == "" {
			return fmt.Errorf("%s column %d has no key", format, i)
		}
	}
	return nil
}

// Exporter renders a dataset into a concrete file format.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// CSVExporter renders datasets as RFC 4180 CSV with a key header row.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) ContentType() string { return "text/csv" }

func (e *CSVExporter) Extension() string { return "csv" }

// Render writes the header and rows. Title and notes are dropped.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("csv"); err != nil {
		return nil, err
	}
	keys := data.Keys()
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(keys); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(keys))
	for _, row := range data.Rows {
		for i, key := range keys {
			record[i] = row[key]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
