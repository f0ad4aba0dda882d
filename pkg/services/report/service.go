package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/services/aggregation"
	"github.com/genesis-labs/genesis-api/pkg/services/chart"
	"github.com/genesis-labs/genesis-api/pkg/services/document"
	"github.com/genesis-labs/genesis-api/pkg/services/export"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultQueryTimeout = 15 * time.Second

// ChartRenderer schedules chart renders off the request goroutine.
type ChartRenderer interface {
	Render(ctx context.Context, spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error)
	RenderAll(ctx context.Context, jobs []chart.Job) []domain.ChartOutcome
}

type DocumentComposer interface {
	Compose(in document.Input) (*domain.ReportDocument, error)
}

type PDFExporter interface {
	Export(ctx context.Context, src []byte) (*export.Result, error)
}

// Recorder receives the outcome of every report request.
type Recorder interface {
	ObserveReport(reportType string, format domain.Format, outcome string, elapsed time.Duration)
	ObserveFailure(stage domain.Stage, kind domain.ErrorKind)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReport(string, domain.Format, string, time.Duration) {}
func (nopRecorder) ObserveFailure(domain.Stage, domain.ErrorKind)              {}

// Config holds the pipeline settings. It is passed in at construction and
// never read from process state.
type Config struct {
	QueryTimeout time.Duration
	// Location is used for requests that do not carry a timezone.
	Location *time.Location
	Clock    func() time.Time
}

func DefaultConfig() Config {
	return Config{
		QueryTimeout: DefaultQueryTimeout,
		Location:     time.UTC,
		Clock:        time.Now,
	}
}

type Dependencies struct {
	Registry Registry
	// Sources maps a query source key to its provider; "" is the relational store.
	Sources  map[string]domain.DataSource
	Charts   ChartRenderer
	Composer DocumentComposer
	Exporter PDFExporter
	Recorder Recorder
}

// Service runs report requests. It holds no per-request state: everything
// a request produces lives in the call and is dropped when it returns.
type Service struct {
	cfg  Config
	deps Dependencies
}

func NewService(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("report registry is nil")
	}
	if deps.Charts == nil {
		return nil, fmt.Errorf("chart renderer is nil")
	}
	if deps.Composer == nil {
		return nil, fmt.Errorf("document composer is nil")
	}
	if deps.Exporter == nil {
		return nil, fmt.Errorf("pdf exporter is nil")
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{cfg: cfg, deps: deps}, nil
}

func (s *Service) Definitions() []Definition {
	return s.deps.Registry.List()
}

// Generate runs the full pipeline and returns the artifact. A chart that
// fails to render becomes a placeholder and marks the artifact partial;
// every other failure ends the request with a staged PipelineError.
func (s *Service) Generate(ctx context.Context, req domain.ReportRequest) (*domain.ReportArtifact, error) {
	r := s.begin(ctx, req)
	ctx = r.logger.WithContext(ctx)

	artifact, err := s.generate(ctx, r, req)
	elapsed := time.Since(r.started)
	if err != nil {
		pe := r.fail(err)
		s.deps.Recorder.ObserveFailure(pe.Stage, pe.Kind)
		s.deps.Recorder.ObserveReport(req.Type, req.Format, "failed", elapsed)
		return nil, pe
	}

	outcome := "complete"
	if artifact.Metadata.Partial {
		outcome = "partial"
	}
	s.deps.Recorder.ObserveReport(req.Type, req.Format, outcome, elapsed)
	r.logger.Info().
		Str("outcome", outcome).
		Int("bytes", len(artifact.Content)).
		Dur("elapsed", elapsed).
		Msg("report generated")
	return artifact, nil
}

func (s *Service) generate(ctx context.Context, r *run, req domain.ReportRequest) (*domain.ReportArtifact, error) {
	plan, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	tables, err := s.collect(ctx, r, plan, plan.Tables)
	if err != nil {
		return nil, err
	}

	r.advance(domain.StageRendering)
	var jobs []chart.Job
	for _, spec := range sectionCharts(plan) {
		jobs = append(jobs, chart.Job{Spec: spec, Table: tables[spec.Table]})
	}
	outcomes := s.deps.Charts.RenderAll(ctx, jobs)
	if err := ctx.Err(); err != nil {
		return nil, domain.NewError(domain.KindRequestCancelled, fmt.Errorf("rendering charts: %w", err))
	}
	for _, o := range outcomes {
		if !o.OK() {
			r.logger.Warn().Err(o.Err).Str("chart", o.Spec.ID).Msg("chart replaced by placeholder")
		}
	}

	r.advance(domain.StageComposing)
	doc, err := s.deps.Composer.Compose(document.Input{
		Title:    plan.Title,
		Subtitle: plan.Subtitle,
		Period:   req.Range,
		Location: plan.Location,
		Sections: plan.Sections,
		Tables:   tables,
		Charts:   outcomes,
	})
	if err != nil {
		return nil, domain.WithStage(err, domain.StageComposing, domain.KindExportError)
	}

	artifact := &domain.ReportArtifact{
		Content:     doc.HTML,
		ContentType: req.Format.ContentType(),
		Filename:    filename(req, plan.Location),
		Metadata: domain.ArtifactMetadata{
			RequestID:   r.id,
			ReportType:  req.Type,
			Format:      req.Format,
			GeneratedAt: s.cfg.Clock().UTC(),
			Partial:     doc.Partial(),
			Sections:    doc.SectionMetadata(),
		},
	}

	if req.Format == domain.FormatPDF {
		r.advance(domain.StageExporting)
		if err := doc.ReadyForExport(); err != nil {
			return nil, domain.NewError(domain.KindExportError, err)
		}
		res, err := s.deps.Exporter.Export(ctx, doc.HTML)
		if err != nil {
			return nil, err
		}
		artifact.Content = res.PDF
		artifact.Metadata.Pages = res.Pages
		for _, t := range res.Tables {
			artifact.Metadata.Tables = append(artifact.Metadata.Tables, domain.TablePlacement{Table: t.Name, Page: t.Page, Rows: t.Rows})
		}
	}

	r.advance(domain.StageComplete)
	return artifact, nil
}

// Preview renders the first chart of a report together with its figure.
// A failed render still returns the figure and the reason.
func (s *Service) Preview(ctx context.Context, req domain.ReportRequest) (*domain.ReportPreview, error) {
	r := s.begin(ctx, req)
	ctx = r.logger.WithContext(ctx)

	preview, err := s.preview(ctx, r, req)
	if err != nil {
		pe := r.fail(err)
		s.deps.Recorder.ObserveFailure(pe.Stage, pe.Kind)
		return nil, pe
	}
	return preview, nil
}

func (s *Service) preview(ctx context.Context, r *run, req domain.ReportRequest) (*domain.ReportPreview, error) {
	plan, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	charts := sectionCharts(plan)
	if len(charts) == 0 {
		return nil, domain.Errorf(domain.KindNotFound, "report %q has no charts", req.Type)
	}
	spec := charts[0]

	table, err := s.chartTable(ctx, r, plan, spec)
	if err != nil {
		return nil, err
	}

	r.advance(domain.StageRendering)
	figure, err := chart.BuildFigure(spec, table)
	if err != nil {
		return nil, domain.WithStage(err, domain.StageRendering, domain.KindRenderError)
	}
	preview := &domain.ReportPreview{ReportType: req.Type, Figure: figure}

	image, err := s.deps.Charts.Render(ctx, spec, table)
	switch {
	case ctx.Err() != nil:
		return nil, domain.NewError(domain.KindRequestCancelled, fmt.Errorf("preview chart: %w", ctx.Err()))
	case err != nil:
		r.logger.Warn().Err(err).Str("chart", spec.ID).Msg("preview chart not rendered")
		preview.Reason = document.PlaceholderReason(err)
	default:
		preview.Image = image
	}

	r.advance(domain.StageComplete)
	return preview, nil
}

// Figure builds the declarative figure of chartID, or of the first chart
// when chartID is empty, without rasterising it.
func (s *Service) Figure(ctx context.Context, req domain.ReportRequest, chartID string) (*domain.Figure, error) {
	r := s.begin(ctx, req)
	ctx = r.logger.WithContext(ctx)

	figure, err := s.figure(ctx, r, req, chartID)
	if err != nil {
		pe := r.fail(err)
		s.deps.Recorder.ObserveFailure(pe.Stage, pe.Kind)
		return nil, pe
	}
	return figure, nil
}

func (s *Service) figure(ctx context.Context, r *run, req domain.ReportRequest, chartID string) (*domain.Figure, error) {
	plan, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	var (
		spec domain.ChartSpec
		ok   bool
	)
	if chartID == "" {
		charts := sectionCharts(plan)
		if ok = len(charts) > 0; ok {
			spec = charts[0]
		}
	} else {
		spec, ok = plan.Chart(chartID)
	}
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "report %q has no chart %q", req.Type, chartID)
	}

	table, err := s.chartTable(ctx, r, plan, spec)
	if err != nil {
		return nil, err
	}

	r.advance(domain.StageRendering)
	figure, err := chart.BuildFigure(spec, table)
	if err != nil {
		return nil, domain.WithStage(err, domain.StageRendering, domain.KindRenderError)
	}
	r.advance(domain.StageComplete)
	return figure, nil
}

func (s *Service) begin(ctx context.Context, req domain.ReportRequest) *run {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := zerolog.Ctx(ctx).With().
		Str("request_id", id).
		Str("report_type", req.Type).
		Logger()
	return &run{
		id:      id,
		stage:   domain.StageReceived,
		logger:  logger,
		started: time.Now(),
	}
}

// prepare validates req and binds it to its definition. Nothing here does I/O.
func (s *Service) prepare(req domain.ReportRequest) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	def, err := s.deps.Registry.Get(req.Type)
	if err != nil {
		return nil, err
	}
	loc := req.Location
	if loc == nil {
		loc = s.cfg.Location
	}
	return def.plan(req, loc)
}

func (s *Service) chartTable(ctx context.Context, r *run, plan *Plan, spec domain.ChartSpec) (*domain.AggregatedTable, error) {
	t, ok := plan.Table(spec.Table)
	if !ok {
		return nil, domain.Errorf(domain.KindRenderError, "chart %q draws unknown table %q", spec.ID, spec.Table)
	}
	tables, err := s.collect(ctx, r, plan, []Table{t})
	if err != nil {
		return nil, err
	}
	return tables[spec.Table], nil
}

// collect runs the queries behind tables concurrently and aggregates their
// rows. Any query failure is fatal and cancels the queries still running.
func (s *Service) collect(ctx context.Context, r *run, plan *Plan, tables []Table) (map[string]*domain.AggregatedTable, error) {
	needed := map[string]bool{}
	for _, t := range tables {
		needed[t.Query] = true
	}

	r.advance(domain.StageQuerying)
	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var (
		mu   sync.Mutex
		rows = map[string]*domain.RowSet{}
	)
	g, gctx := errgroup.WithContext(qctx)
	for _, q := range plan.Queries {
		if !needed[q.Name] {
			continue
		}
		g.Go(func() error {
			src, ok := s.deps.Sources[q.Descriptor.Source]
			if !ok || src == nil {
				return domain.Errorf(domain.KindDataUnavailable, "query %q: no data source %q configured", q.Name, q.Descriptor.Source)
			}
			rs, err := src.Query(gctx, q.Descriptor)
			if err != nil {
				return err
			}
			if q.Required && rs.Len() == 0 {
				return domain.Errorf(domain.KindNotFound, "query %q matched no %s", q.Name, q.Descriptor.Entity)
			}
			mu.Lock()
			rows[q.Name] = rs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.KindRequestCancelled, fmt.Errorf("querying: %w", ctx.Err()))
		}
		return nil, err
	}

	r.advance(domain.StageAggregating)
	out := make(map[string]*domain.AggregatedTable, len(tables))
	for _, t := range tables {
		table, err := aggregation.Aggregate(rows[t.Query], t.Spec)
		if err != nil {
			return nil, err
		}
		out[t.Spec.Name] = table
	}
	return out, nil
}

// sectionCharts returns the charts placed in sections, in document order.
func sectionCharts(plan *Plan) []domain.ChartSpec {
	var out []domain.ChartSpec
	seen := map[string]bool{}
	for _, sec := range plan.Sections {
		for _, id := range sec.Charts {
			if seen[id] {
				continue
			}
			if spec, ok := plan.Chart(id); ok {
				seen[id] = true
				out = append(out, spec)
			}
		}
	}
	return out
}

// filename is <type>_<first day>_<last day>.<format> in the report timezone.
func filename(req domain.ReportRequest, loc *time.Location) string {
	first := req.Range.Start.In(loc).Format("20060102")
	last := req.Range.End.Add(-time.Nanosecond).In(loc).Format("20060102")
	return fmt.Sprintf("%s_%s_%s.%s", req.Type, first, last, req.Format)
}
