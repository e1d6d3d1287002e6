package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads a CSV document whose first record is the header.
//
// Rows shorter than the header are padded with empty cells so that every row
// carries the full column set; rows longer than the header are rejected. Duplicate or empty header names are rejected
// because cells are addressed by column name.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	// Excel-exported CSVs often start with a UTF-8 BOM.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	if err := validateHeader(header); err != nil {
		return nil, err
	}

	t := New(header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record %d: %w", t.Len()+1, err)
		}
		if err := checkWidth(t.Len()+1, record, len(header)); err != nil {
			return nil, err
		}
		t.Append(record...)
	}

	if t.Len() == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

// WriteCSV serializes the table as CSV with a header record.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range t.Rows {
		if err := writer.Write(t.Values(i)); err != nil {
			return fmt.Errorf("write csv record %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// EncodeCSV is WriteCSV into a byte slice.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("column %d has an empty header", i+1)
		}
		if seen[name] {
			return fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
	}
	return nil
}
