// Package batch derives translation requests from a table and plans them into
// bounded batches grouped by language pair.
//
// Two request modes exist. Fill mode translates only empty cells, taking the
// source text from the first non-empty cell to the left-to-right scan of the
// same row. Whole-table mode translates every distinct non-empty cell into one
// target language. Fill mode never collapses duplicate texts; whole-table mode
// always does.
package batch

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/table-translator/pkg/language"
	"github.com/Sternrassler/table-translator/pkg/table"
)

// ErrEmptyInput is returned when a table has no rows.
var ErrEmptyInput = errors.New("empty input table")

// ErrDuplicateLanguage is returned when two fill-mode columns name the same
// language, e.g. "fr" and "French".
var ErrDuplicateLanguage = errors.New("columns name the same language")

// NoRow marks a request that is not bound to a single row.
const NoRow = -1

// Mode selects how requests are derived from a table.
type Mode string

const (
	// ModeFill translates empty cells from sibling cells in the same row.
	ModeFill Mode = "fill"

	// ModeWholeTable translates every distinct non-empty cell to one language.
	ModeWholeTable Mode = "whole_table"
)

// Request is a single unit of text to translate.
type Request struct {
	// RowIndex is the row the result is written to, or NoRow.
	RowIndex int

	// SourceLang is the column name holding Text (fill mode) or language.Auto.
	SourceLang string

	// TargetLang is the column to fill (fill mode) or the target language code.
	TargetLang string

	// Text is the non-empty source text.
	Text string
}

// Pair returns the request's language pair.
func (r Request) Pair() LangPair {
	return LangPair{Source: r.SourceLang, Target: r.TargetLang}
}

// BuildFillRequests emits one request per blank cell that has a non-empty
// sibling in its row. Column names must all be supported languages, and no
// two may resolve to the same language.
func BuildFillRequests(t *table.Table) ([]Request, error) {
	if t.Len() == 0 {
		return nil, ErrEmptyInput
	}

	seen := make(map[string]string, len(t.Columns))
	for _, col := range t.Columns {
		lang, err := language.Lookup(col)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		if prev, ok := seen[lang.Code]; ok {
			return nil, fmt.Errorf("columns %q and %q (%s): %w", prev, col, lang.Code, ErrDuplicateLanguage)
		}
		seen[lang.Code] = col
	}

	var reqs []Request
	for i, row := range t.Rows {
		for _, target := range t.Columns {
			if !table.IsBlank(row[target]) {
				continue
			}
			source, text, ok := firstFilled(t.Columns, row)
			if !ok {
				// Nothing to translate from; the whole row is blank.
				break
			}
			reqs = append(reqs, Request{
				RowIndex:   i,
				SourceLang: source,
				TargetLang: target,
				Text:       text,
			})
		}
	}
	return reqs, nil
}

// BuildWholeTableRequests emits one request per distinct non-empty cell text,
// in order of first occurrence, all targeting lang.
func BuildWholeTableRequests(t *table.Table, lang string) ([]Request, error) {
	if t.Len() == 0 {
		return nil, ErrEmptyInput
	}

	target, err := language.Lookup(lang)
	if err != nil {
		return nil, err
	}

	var reqs []Request
	for _, row := range t.Rows {
		for _, col := range t.Columns {
			text := row[col]
			if table.IsBlank(text) {
				continue
			}
			reqs = append(reqs, Request{
				RowIndex:   NoRow,
				SourceLang: language.Auto,
				TargetLang: target.Code,
				Text:       text,
			})
		}
	}
	return Dedup(reqs), nil
}

// firstFilled returns the first column, in header order, with a non-empty
// value. A blank target column is never its own source because it is blank.
func firstFilled(columns []string, row table.Row) (string, string, bool) {
	for _, col := range columns {
		if v := row[col]; !table.IsBlank(v) {
			return col, v, true
		}
	}
	return "", "", false
}
