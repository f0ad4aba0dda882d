package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const DefaultTimeout = 10 * time.Second

// Observer receives the outcome of every render attempt.
type Observer interface {
	ObserveRender(kind domain.ChartKind, outcome string, elapsed time.Duration)
}

// Job pairs a chart spec with the table it draws.
type Job struct {
	Spec  domain.ChartSpec
	Table *domain.AggregatedTable
}

// Pool runs renders on a bounded number of goroutines, so CPU-heavy
// rasterising never starves request handling. It is shared by all requests.
type Pool struct {
	renderer Renderer
	sem      *semaphore.Weighted
	workers  int
	timeout  time.Duration
	observer Observer
}

type Option func(*Pool)

func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}

func NewPool(renderer Renderer, workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		renderer: renderer,
		sem:      semaphore.NewWeighted(int64(workers)),
		workers:  workers,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Workers() int {
	return p.workers
}

type result struct {
	chart *domain.RenderedChart
	err   error
}

// Render draws one chart. The timeout covers the draw itself, not the wait
// for a free worker. A render that outlives its timeout keeps its worker
// until it returns, and its result is discarded.
func (p *Pool) Render(ctx context.Context, spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error) {
	logger := zerolog.Ctx(ctx).With().Str("chart", spec.ID).Str("kind", string(spec.Kind)).Logger()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.observe(spec.Kind, "cancelled", 0)
		return nil, domain.NewError(domain.KindRequestCancelled, fmt.Errorf("chart %q: waiting for renderer: %w", spec.ID, err))
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: domain.Errorf(domain.KindRenderError, "chart %q: renderer panicked: %v", spec.ID, r)}
			}
		}()
		chart, err := p.renderer.Render(spec, table)
		done <- result{chart: chart, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if res.err != nil {
			var pe *domain.PipelineError
			if !errors.As(res.err, &pe) {
				res.err = domain.NewError(domain.KindRenderError, fmt.Errorf("chart %q: %w", spec.ID, res.err))
			}
			p.observe(spec.Kind, "error", elapsed)
			logger.Warn().Err(res.err).Dur("elapsed", elapsed).Msg("chart render failed")
			return nil, res.err
		}
		if res.chart == nil {
			p.observe(spec.Kind, "error", elapsed)
			return nil, domain.Errorf(domain.KindRenderError, "chart %q: renderer returned no image", spec.ID)
		}
		res.chart.Elapsed = elapsed
		p.observe(spec.Kind, "ok", elapsed)
		logger.Debug().Dur("elapsed", elapsed).Int("bytes", len(res.chart.Data)).Msg("chart rendered")
		return res.chart, nil
	case <-timer.C:
		p.observe(spec.Kind, "timeout", p.timeout)
		logger.Warn().Dur("timeout", p.timeout).Msg("chart render timed out")
		return nil, domain.Errorf(domain.KindRenderTimeout, "chart %q: not rendered within %s", spec.ID, p.timeout)
	case <-ctx.Done():
		p.observe(spec.Kind, "cancelled", time.Since(start))
		return nil, domain.NewError(domain.KindRequestCancelled, fmt.Errorf("chart %q: %w", spec.ID, ctx.Err()))
	}
}

// RenderAll renders every job concurrently and waits for all of them to
// settle. Outcomes keep the order of jobs; one failure never stops the rest.
func (p *Pool) RenderAll(ctx context.Context, jobs []Job) []domain.ChartOutcome {
	outcomes := make([]domain.ChartOutcome, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			chart, err := p.Render(ctx, job.Spec, job.Table)
			outcomes[i] = domain.ChartOutcome{Spec: job.Spec, Chart: chart, Err: err}
		}(i, job)
	}
	wg.Wait()

	return outcomes
}

func (p *Pool) observe(kind domain.ChartKind, outcome string, elapsed time.Duration) {
	if p.observer != nil {
		p.observer.ObserveRender(kind, outcome, elapsed)
	}
}
