package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXMimeType is the MIME type of Office Open XML workbooks.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// IsXLSX reports whether a file should be decoded as a workbook, judged by
// MIME type first and file extension second.
func IsXLSX(name, mimeType string) bool {
	if strings.EqualFold(strings.TrimSpace(mimeType), XLSXMimeType) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(name), ".xlsx")
}

// ParseXLSX reads the first worksheet of a workbook. The first row is the
// header; blank rows are dropped. Blank cells right of the header are
// ignored, any other value there is rejected.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	header := rows[0]
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	t := New(header...)
	for i, values := range rows[1:] {
		if allBlank(values) {
			continue
		}
		if len(values) > len(header) && allBlank(values[len(header):]) {
			values = values[:len(header)]
		}
		if err := checkWidth(i+1, values, len(header)); err != nil {
			return nil, err
		}
		t.Append(values...)
	}
	if t.Len() == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

// Decode picks the codec for a file by name and MIME type.
func Decode(name, mimeType string, r io.Reader) (*Table, error) {
	if IsXLSX(name, mimeType) {
		return ParseXLSX(r)
	}
	return ParseCSV(r)
}

func allBlank(values []string) bool {
	for _, v := range values {
		if !IsBlank(v) {
			return false
		}
	}
	return true
}
