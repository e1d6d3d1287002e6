package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/table-translator/pkg/batch"
	"github.com/Sternrassler/table-translator/pkg/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for batch dispatch.
var (
	batchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translator_dispatch_batches_in_flight",
		Help: "Provider calls currently holding a concurrency permit",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_dispatch_batches_total",
		Help: "Dispatched batches by outcome",
	}, []string{"outcome"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translator_dispatch_batch_duration_seconds",
		Help:    "Batch duration including retries, by language pair",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"pair"})
)

// DefaultMaxConcurrency is the default number of concurrent provider calls.
const DefaultMaxConcurrency = 100

// ErrSkipped marks a batch that was not sent because another batch had
// already failed the run.
var ErrSkipped = errors.New("batch skipped after earlier failure")

// Config holds dispatcher configuration.
type Config struct {
	// MaxConcurrency bounds outstanding provider calls across every run
	// sharing the dispatcher.
	MaxConcurrency int

	// AllowPartial records failed batches instead of failing the run.
	AllowPartial bool

	// Timeout bounds one batch including retries. 0 means no limit.
	Timeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// Outcome is the result of one batch, aligned with the batch it came from.
type Outcome struct {
	// Results holds one entry per request of the batch when Err is nil.
	Results  []provider.Result
	Err      error
	Duration time.Duration
}

// OK reports whether the batch produced results.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Dispatcher sends batches to a translator under a shared concurrency bound.
type Dispatcher struct {
	translator provider.Translator
	sem        *semaphore.Weighted
	config     Config
	logger     zerolog.Logger
}

// New creates a dispatcher. All runs on the returned dispatcher share one
// permit pool of cfg.MaxConcurrency.
func New(translator provider.Translator, cfg Config) (*Dispatcher, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max_concurrency must be positive (got %d)", cfg.MaxConcurrency)
	}

	return &Dispatcher{
		translator: translator,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		config:     cfg,
		logger:     log.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Run submits every batch and waits for all of them. outcomes[i] belongs to
// batches[i].
//
// Without AllowPartial the first failure fails the run: calls already in
// flight finish and their results are discarded, batches still waiting for a
// permit are skipped. With AllowPartial every batch is attempted and the
// error is always nil; failures are reported in the outcomes.
func (d *Dispatcher) Run(ctx context.Context, batches []batch.Batch) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batches))
	if len(batches) == 0 {
		return outcomes, nil
	}

	var failed atomic.Bool
	var g errgroup.Group

	for i := range batches {
		i, b := i, batches[i]
		g.Go(func() error {
			outcomes[i] = d.runOne(ctx, b, &failed)
			if outcomes[i].Err == nil {
				return nil
			}
			err := fmt.Errorf("batch %d (%s, %d texts): %w", i, b.Pair, b.Len(), outcomes[i].Err)
			outcomes[i].Err = err
			if d.config.AllowPartial || errors.Is(err, ErrSkipped) {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	return outcomes, err
}

func (d *Dispatcher) runOne(ctx context.Context, b batch.Batch, failed *atomic.Bool) Outcome {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		batchesTotal.WithLabelValues("cancelled").Inc()
		return Outcome{Err: fmt.Errorf("%w: %v", provider.ErrContextCancelled, err)}
	}
	defer d.sem.Release(1)

	if failed.Load() {
		batchesTotal.WithLabelValues("skipped").Inc()
		return Outcome{Err: ErrSkipped}
	}

	batchesInFlight.Inc()
	defer batchesInFlight.Dec()

	callCtx := ctx
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	results, err := d.translator.Translate(callCtx, provider.Request{
		Texts:      b.Texts(),
		SourceLang: b.Pair.Source,
		TargetLang: b.Pair.Target,
	})
	elapsed := time.Since(start)
	batchDuration.WithLabelValues(b.Pair.String()).Observe(elapsed.Seconds())

	if err == nil && len(results) != b.Len() {
		err = fmt.Errorf("%w: got %d results for %d texts", provider.ErrResultMismatch, len(results), b.Len())
	}
	if err != nil {
		// Mark before the permit is released so queued batches see it.
		if !d.config.AllowPartial {
			failed.Store(true)
		}
		batchesTotal.WithLabelValues("failed").Inc()
		d.logger.Warn().
			Err(err).
			Str("pair", b.Pair.String()).
			Int("texts", b.Len()).
			Dur("duration", elapsed).
			Msg("Batch failed")
		return Outcome{Err: err, Duration: elapsed}
	}

	batchesTotal.WithLabelValues("success").Inc()
	d.logger.Debug().
		Str("pair", b.Pair.String()).
		Int("texts", b.Len()).
		Dur("duration", elapsed).
		Msg("Batch translated")

	return Outcome{Results: results, Duration: elapsed}
}
