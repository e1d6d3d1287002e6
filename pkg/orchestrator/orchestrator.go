// Package orchestrator runs a batch translation of one table: it derives
// requests, plans batches, dispatches them under the concurrency bound, and
// writes the results back into a copy of the table.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/table-translator/pkg/batch"
	"github.com/Sternrassler/table-translator/pkg/dispatch"
	"github.com/Sternrassler/table-translator/pkg/language"
	"github.com/Sternrassler/table-translator/pkg/logging"
	"github.com/Sternrassler/table-translator/pkg/provider"
	"github.com/Sternrassler/table-translator/pkg/table"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for translation runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_runs_total",
		Help: "Translation runs by mode and outcome",
	}, []string{"mode", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translator_run_duration_seconds",
		Help:    "Translation run duration by mode",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"mode"})

	cellsTranslatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_cells_translated_total",
		Help: "Cells written with a translation, by mode",
	}, []string{"mode"})
)

// Config holds the orchestrator configuration.
type Config struct {
	// MaxBatchSize is the maximum number of texts per provider call.
	MaxBatchSize int

	// MaxConcurrency bounds outstanding provider calls.
	MaxConcurrency int

	// ProviderModel names the model the translator was built for. It is
	// reported with every run.
	ProviderModel string

	// AllowPartial keeps the results of succeeded batches when others fail.
	AllowPartial bool

	// BatchTimeout bounds one batch including retries. 0 means no limit.
	BatchTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:   batch.DefaultMaxBatchSize,
		MaxConcurrency: dispatch.DefaultMaxConcurrency,
		ProviderModel:  provider.DefaultModel,
	}
}

// Report summarizes a run.
type Report struct {
	RunID         string     `json:"run_id"`
	Mode          batch.Mode `json:"mode"`
	Model         string     `json:"model"`
	Requests      int        `json:"requests"`
	Batches       int        `json:"batches"`
	Translated    int        `json:"translated"`
	Unresolved    int        `json:"unresolved"`
	FailedBatches int        `json:"failed_batches"`
	Errors        []string   `json:"errors,omitempty"`
}

// Orchestrator translates tables through a provider.
type Orchestrator struct {
	dispatcher *dispatch.Dispatcher
	config     Config
	logger     zerolog.Logger
}

// New creates an orchestrator around translator.
func New(translator provider.Translator, cfg Config) (*Orchestrator, error) {
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max_batch_size must be positive (got %d)", cfg.MaxBatchSize)
	}
	if cfg.ProviderModel == "" {
		cfg.ProviderModel = provider.DefaultModel
	}

	d, err := dispatch.New(translator, dispatch.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		AllowPartial:   cfg.AllowPartial,
		Timeout:        cfg.BatchTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		dispatcher: d,
		config:     cfg,
		logger:     logging.NewLogger("orchestrator"),
	}, nil
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Translate translates tbl and returns the translated copy.
//
// An empty targetLang selects fill mode: blank cells are filled from the first
// non-empty cell of their row, and every column name must be a supported
// language. Otherwise every distinct non-empty cell is translated into
// targetLang.
//
// tbl is never modified. On error the returned table is nil.
func (o *Orchestrator) Translate(ctx context.Context, tbl *table.Table, targetLang string) (*table.Table, Report, error) {
	start := time.Now()
	targetLang = strings.TrimSpace(targetLang)

	report := Report{
		RunID: uuid.NewString(),
		Mode:  batch.ModeFill,
		Model: o.config.ProviderModel,
	}
	if targetLang != "" {
		report.Mode = batch.ModeWholeTable
	}

	logger := o.logger.With().
		Str("run_id", report.RunID).
		Str("mode", string(report.Mode)).
		Logger()

	out, err := o.run(ctx, tbl, targetLang, &report, logger)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Translation run failed")
	case report.FailedBatches > 0:
		outcome = "partial"
	}
	runsTotal.WithLabelValues(string(report.Mode), outcome).Inc()
	runDuration.WithLabelValues(string(report.Mode)).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, report, err
	}

	cellsTranslatedTotal.WithLabelValues(string(report.Mode)).Add(float64(report.Translated))
	logger.Info().
		Int("requests", report.Requests).
		Int("batches", report.Batches).
		Int("translated", report.Translated).
		Int("unresolved", report.Unresolved).
		Int("failed_batches", report.FailedBatches).
		Dur("duration", time.Since(start)).
		Msg("Translation run complete")

	return out, report, nil
}

func (o *Orchestrator) run(ctx context.Context, tbl *table.Table, targetLang string, report *Report, logger zerolog.Logger) (*table.Table, error) {
	if tbl.Len() == 0 {
		return nil, &ValidationError{Err: batch.ErrEmptyInput}
	}

	var reqs []batch.Request
	var err error
	if report.Mode == batch.ModeWholeTable {
		reqs, err = batch.BuildWholeTableRequests(tbl, targetLang)
	} else {
		reqs, err = batch.BuildFillRequests(tbl)
	}
	if err != nil {
		if errors.Is(err, language.ErrUnsupported) || errors.Is(err, batch.ErrEmptyInput) || errors.Is(err, batch.ErrDuplicateLanguage) {
			return nil, &ValidationError{Err: err}
		}
		return nil, fmt.Errorf("build requests: %w", err)
	}
	report.Requests = len(reqs)

	out := tbl.Clone()
	if len(reqs) == 0 {
		logger.Info().Msg("Nothing to translate, returning table unchanged")
		return out, nil
	}

	batches, err := batch.Plan(reqs, o.config.MaxBatchSize)
	if err != nil {
		return nil, fmt.Errorf("plan batches: %w", err)
	}
	report.Batches = len(batches)
	logPairs(logger, batches)

	outcomes, err := o.dispatcher.Run(ctx, batches)
	if err != nil {
		return nil, err
	}

	results, failedErrs := correlate(len(reqs), batches, outcomes)
	report.FailedBatches = len(failedErrs)
	for _, e := range failedErrs {
		report.Errors = append(report.Errors, e.Error())
	}
	if len(failedErrs) == len(batches) {
		// Partial mode with nothing to keep is still a failure.
		return nil, fmt.Errorf("all %d batches failed: %w", len(batches), failedErrs[0])
	}

	if report.Mode == batch.ModeWholeTable {
		report.Translated, report.Unresolved = reassembleWhole(out, reqs, results)
	} else {
		report.Translated, report.Unresolved = reassembleFill(out, reqs, results)
	}

	return out, nil
}

// logPairs logs one progress line per language pair.
func logPairs(logger zerolog.Logger, batches []batch.Batch) {
	type pairStats struct {
		batches, texts int
	}
	var order []batch.LangPair
	stats := make(map[batch.LangPair]*pairStats)
	for _, b := range batches {
		s, ok := stats[b.Pair]
		if !ok {
			s = &pairStats{}
			stats[b.Pair] = s
			order = append(order, b.Pair)
		}
		s.batches++
		s.texts += b.Len()
	}
	for _, p := range order {
		logger.Info().
			Str("pair", p.String()).
			Int("batches", stats[p].batches).
			Int("texts", stats[p].texts).
			Msg("Translating language pair")
	}
}
