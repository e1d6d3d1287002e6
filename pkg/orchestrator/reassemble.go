package orchestrator

import (
	"github.com/Sternrassler/table-translator/pkg/batch"
	"github.com/Sternrassler/table-translator/pkg/dispatch"
	"github.com/Sternrassler/table-translator/pkg/provider"
	"github.com/Sternrassler/table-translator/pkg/table"
)

// correlate maps batch outcomes back onto the flat request list through each
// batch's Indices. Requests of failed batches keep a zero Result.
func correlate(n int, batches []batch.Batch, outcomes []dispatch.Outcome) ([]provider.Result, []error) {
	results := make([]provider.Result, n)
	var failed []error
	for i, b := range batches {
		o := outcomes[i]
		if !o.OK() {
			failed = append(failed, o.Err)
			continue
		}
		for j, idx := range b.Indices {
			results[idx] = o.Results[j]
		}
	}
	return results, failed
}

// reassembleFill writes each request's translation to its (row, target
// column) cell. Requests without a translation leave the cell as it was.
func reassembleFill(t *table.Table, reqs []batch.Request, results []provider.Result) (translated, unresolved int) {
	for i, r := range reqs {
		text := results[i].TranslatedText
		if text == "" {
			unresolved++
			continue
		}
		t.Set(r.RowIndex, r.TargetLang, text)
		translated++
	}
	return translated, unresolved
}

// reassembleWhole replaces every cell whose exact text was translated.
// translated counts cells written, unresolved counts distinct texts without a
// translation.
func reassembleWhole(t *table.Table, reqs []batch.Request, results []provider.Result) (translated, unresolved int) {
	mapping := make(map[string]string, len(reqs))
	for i, r := range reqs {
		if text := results[i].TranslatedText; text != "" {
			mapping[r.Text] = text
		} else {
			unresolved++
		}
	}

	for i, row := range t.Rows {
		for _, col := range t.Columns {
			if text, ok := mapping[row[col]]; ok {
				t.Set(i, col, text)
				translated++
			}
		}
	}
	return translated, unresolved
}
