package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/table-translator/pkg/batch"
	"github.com/Sternrassler/table-translator/pkg/provider"
)

// echo translates every text to "<target>:<text>".
func echo(_ context.Context, req provider.Request) ([]provider.Result, error) {
	out := make([]provider.Result, len(req.Texts))
	for i, t := range req.Texts {
		out[i] = provider.Result{OriginalText: t, TranslatedText: req.TargetLang + ":" + t}
	}
	return out, nil
}

func makeBatches(t *testing.T, n, size int) []batch.Batch {
	t.Helper()
	reqs := make([]batch.Request, n)
	for i := range reqs {
		reqs[i] = batch.Request{RowIndex: i, SourceLang: "en", TargetLang: "fr", Text: "t" + string(rune('a'+i%26))}
	}
	batches, err := batch.Plan(reqs, size)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	return batches
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil translator")
	}
	if _, err := New(provider.TranslatorFunc(echo), Config{MaxConcurrency: 0}); err == nil {
		t.Error("expected error for zero concurrency")
	}
	if DefaultConfig().MaxConcurrency != 100 {
		t.Errorf("DefaultConfig().MaxConcurrency = %d, want 100", DefaultConfig().MaxConcurrency)
	}
}

func TestRun_AlignedOutcomes(t *testing.T) {
	d, err := New(provider.TranslatorFunc(echo), DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	batches := makeBatches(t, 25, 10)
	outcomes, err := d.Run(context.Background(), batches)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != len(batches) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(batches))
	}
	for i, o := range outcomes {
		if !o.OK() {
			t.Fatalf("outcome %d failed: %v", i, o.Err)
		}
		for j, r := range o.Results {
			want := "fr:" + batches[i].Requests[j].Text
			if r.TranslatedText != want {
				t.Errorf("outcome %d result %d = %q, want %q", i, j, r.TranslatedText, want)
			}
		}
	}
}

func TestRun_Empty(t *testing.T) {
	d, _ := New(provider.TranslatorFunc(echo), DefaultConfig())
	outcomes, err := d.Run(context.Background(), nil)
	if err != nil || len(outcomes) != 0 {
		t.Errorf("Run(nil) = %v, %v", outcomes, err)
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		batches     int
	}{
		{"bound below batch count", 3, 20},
		{"bound of one serializes", 1, 5},
		{"bound above batch count", 50, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inFlight, peak int64
			slow := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return echo(ctx, req)
			})

			d, err := New(slow, Config{MaxConcurrency: tt.concurrency})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			if _, err := d.Run(context.Background(), makeBatches(t, tt.batches, 1)); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			limit := int64(tt.concurrency)
			if int64(tt.batches) < limit {
				limit = int64(tt.batches)
			}
			if peak > limit {
				t.Errorf("peak in-flight = %d, exceeds bound %d", peak, limit)
			}
			if tt.concurrency > 1 && peak < 2 {
				t.Errorf("peak in-flight = %d, expected parallel calls", peak)
			}
		})
	}
}

func TestRun_BoundSharedAcrossRuns(t *testing.T) {
	var inFlight, peak int64
	slow := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return echo(ctx, req)
	})

	d, _ := New(slow, Config{MaxConcurrency: 4})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Run(context.Background(), makeBatches(t, 10, 1)); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 4 {
		t.Errorf("peak in-flight = %d across concurrent runs, exceeds 4", peak)
	}
}

func TestRun_FailFastNoSiblingCancellation(t *testing.T) {
	boom := errors.New("provider down")
	var completed int64
	var sawCancel atomic.Bool

	var started sync.WaitGroup
	started.Add(4)

	tr := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		if req.Texts[0] == "ta" {
			// Fail only once every sibling is in flight.
			started.Wait()
			return nil, boom
		}
		started.Done()
		time.Sleep(50 * time.Millisecond)
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		atomic.AddInt64(&completed, 1)
		return echo(ctx, req)
	})

	d, _ := New(tr, Config{MaxConcurrency: 10})
	batches := makeBatches(t, 5, 1)

	outcomes, err := d.Run(context.Background(), batches)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "batch 0 (en->fr, 1 texts)") {
		t.Errorf("error should name the batch: %v", err)
	}
	if sawCancel.Load() {
		t.Error("sibling batches must not see a cancelled context")
	}
	if got := atomic.LoadInt64(&completed); got != 4 {
		t.Errorf("completed siblings = %d, want 4", got)
	}
	if outcomes[0].OK() {
		t.Error("failed batch reported OK")
	}
}

func TestRun_SkipsQueuedAfterFailure(t *testing.T) {
	var calls int64
	tr := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		atomic.AddInt64(&calls, 1)
		return nil, errors.New("always fails")
	})

	d, _ := New(tr, Config{MaxConcurrency: 1})
	outcomes, err := d.Run(context.Background(), makeBatches(t, 10, 1))
	if err == nil {
		t.Fatal("expected error")
	}

	var skipped int
	for _, o := range outcomes {
		if errors.Is(o.Err, ErrSkipped) {
			skipped++
		}
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
	if skipped != 9 {
		t.Errorf("skipped = %d, want 9", skipped)
	}
}

func TestRun_AllowPartial(t *testing.T) {
	tr := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		if req.Texts[0] == "tb" {
			return nil, errors.New("one bad batch")
		}
		return echo(ctx, req)
	})

	d, _ := New(tr, Config{MaxConcurrency: 2, AllowPartial: true})
	outcomes, err := d.Run(context.Background(), makeBatches(t, 4, 1))
	if err != nil {
		t.Fatalf("Run() error = %v, want nil in partial mode", err)
	}

	for i, o := range outcomes {
		if i == 1 {
			if o.OK() {
				t.Error("batch 1 should have failed")
			}
			continue
		}
		if !o.OK() {
			t.Errorf("batch %d failed: %v", i, o.Err)
		}
	}
}

func TestRun_ResultCountMismatch(t *testing.T) {
	short := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		return []provider.Result{{OriginalText: req.Texts[0]}}, nil
	})

	d, _ := New(short, DefaultConfig())
	_, err := d.Run(context.Background(), makeBatches(t, 3, 3))
	if !errors.Is(err, provider.ErrResultMismatch) {
		t.Errorf("Run() error = %v, want ErrResultMismatch", err)
	}
}

func TestRun_ContextCancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	tr := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		<-release
		return echo(ctx, req)
	})

	d, _ := New(tr, Config{MaxConcurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Run(ctx, makeBatches(t, 3, 1))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-done; !errors.Is(err, provider.ErrContextCancelled) {
		t.Errorf("Run() error = %v, want ErrContextCancelled", err)
	}
}

func TestRun_BatchTimeout(t *testing.T) {
	tr := provider.TranslatorFunc(func(ctx context.Context, req provider.Request) ([]provider.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	d, _ := New(tr, Config{MaxConcurrency: 1, Timeout: 20 * time.Millisecond})
	_, err := d.Run(context.Background(), makeBatches(t, 1, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
}
