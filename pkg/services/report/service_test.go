package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/models/store"
	"github.com/genesis-labs/genesis-api/pkg/services/aggregation"
	"github.com/genesis-labs/genesis-api/pkg/services/chart"
	"github.com/genesis-labs/genesis-api/pkg/services/document"
	"github.com/genesis-labs/genesis-api/pkg/services/export"
	"github.com/genesis-labs/genesis-api/pkg/store/sales"
	sqlstore "github.com/genesis-labs/genesis-api/pkg/store/sql"
	"github.com/genesis-labs/genesis-api/pkg/store/sql/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	january = domain.TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	categories = []string{"books", "games", "garden", "music", "toys"}
	fixedClock = func() time.Time { return time.Date(2024, 2, 2, 9, 30, 0, 0, time.UTC) }
)

// seedSales inserts n sales spread over January, using only the first four
// categories.
func seedSales(t *testing.T, db *sqlstore.DB, n int) {
	t.Helper()

	st, err := sales.NewStore(db)
	require.NoError(t, err)

	records := make([]store.Sale, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, store.Sale{
			ID:       fmt.Sprintf("s-%03d", i),
			SoldAt:   january.Start.Add(time.Duration(i) * 7 * time.Hour),
			Category: categories[i%4],
			Product:  fmt.Sprintf("product-%d", i%9),
			Region:   []string{"north", "south"}[i%2],
			Units:    float64(i%3 + 1),
			Revenue:  float64(10 + i),
			Refunded: i%10 == 0,
		})
	}
	require.NoError(t, st.Add(context.Background(), records))
}

type stubRecorder struct {
	mu       sync.Mutex
	outcomes []string
	failures []domain.Stage
}

func (r *stubRecorder) ObserveReport(_ string, _ domain.Format, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *stubRecorder) ObserveFailure(stage domain.Stage, _ domain.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage)
}

type fixture struct {
	db       *sqlstore.DB
	store    *sqlstore.Store
	registry Registry
	renderer chart.Renderer
	sources  map[string]domain.DataSource
	recorder *stubRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqltest.Open(t)
	st, err := sqlstore.NewStore(db, nil)
	require.NoError(t, err)
	return &fixture{
		db:       db,
		store:    st,
		registry: DefaultRegistry(),
		renderer: chart.NewPNGRenderer(),
		sources:  map[string]domain.DataSource{"": st},
		recorder: &stubRecorder{},
	}
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	composer, err := document.NewComposer()
	require.NoError(t, err)

	svc, err := NewService(Config{QueryTimeout: 5 * time.Second, Clock: fixedClock}, Dependencies{
		Registry: f.registry,
		Sources:  f.sources,
		Charts:   chart.NewPool(f.renderer, 2, chart.WithTimeout(5*time.Second)),
		Composer: composer,
		Exporter: export.NewExporter(export.Options{Timeout: 10 * time.Second}),
		Recorder: f.recorder,
	})
	require.NoError(t, err)
	return svc
}

func salesRequest(format domain.Format) domain.ReportRequest {
	return domain.ReportRequest{
		ID:     "req-1",
		Type:   "sales_summary",
		Range:  january,
		Format: format,
	}
}

func TestService_Generate_SalesSummaryPDF(t *testing.T) {
	// Given
	f := newFixture(t)
	seedSales(t, f.db, 100)
	svc := f.service(t)

	// When
	artifact, err := svc.Generate(context.Background(), salesRequest(domain.FormatPDF))

	// Then
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(artifact.Content, []byte("%PDF-")))
	assert.Equal(t, "application/pdf", artifact.ContentType)
	assert.Equal(t, "sales_summary_20240101_20240131.pdf", artifact.Filename)
	assert.False(t, artifact.Metadata.Partial)
	assert.Equal(t, "req-1", artifact.Metadata.RequestID)
	assert.Equal(t, fixedClock(), artifact.Metadata.GeneratedAt)
	assert.Equal(t, []domain.SectionMetadata{
		{Title: "Overview", Status: domain.SectionComplete},
		{Title: "Revenue by category", Status: domain.SectionComplete},
		{Title: "Daily revenue", Status: domain.SectionComplete},
		{Title: "Regions", Status: domain.SectionComplete},
	}, artifact.Metadata.Sections)
	assert.GreaterOrEqual(t, artifact.Metadata.Pages, 3)

	firstPageRows := 0
	for _, placed := range artifact.Metadata.Tables {
		if placed.Table == "by_category" && placed.Page == 1 {
			firstPageRows += placed.Rows
		}
	}
	assert.Equal(t, 4, firstPageRows)
	assert.Equal(t, []string{"complete"}, f.recorder.outcomes)
}

func TestService_Generate_SingleDayIsComplete(t *testing.T) {
	// Given
	f := newFixture(t)
	seedSales(t, f.db, 100)
	svc := f.service(t)
	req := salesRequest(domain.FormatHTML)
	req.Range = domain.TimeRange{Start: january.Start, End: january.Start.AddDate(0, 0, 1)}

	// When
	artifact, err := svc.Generate(context.Background(), req)

	// Then
	require.NoError(t, err)
	assert.False(t, artifact.Metadata.Partial)
	for _, section := range artifact.Metadata.Sections {
		assert.Equal(t, domain.SectionComplete, section.Status, section.Title)
	}
	assert.NotContains(t, string(artifact.Content), `data-status="placeholder"`)
}

func TestService_Generate_HTMLIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seedSales(t, f.db, 100)
	svc := f.service(t)

	first, err := svc.Generate(context.Background(), salesRequest(domain.FormatHTML))
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), salesRequest(domain.FormatHTML))
	require.NoError(t, err)

	assert.Equal(t, "text/html; charset=utf-8", first.ContentType)
	assert.Equal(t, string(first.Content), string(second.Content))
	assert.Contains(t, string(first.Content), `data-table="by_category"`)
}

// threeCharts is a report whose middle chart is drawn by a renderer that
// always fails.
func threeCharts() Definition {
	return Definition{
		Type:    "three_charts",
		Title:   "Three charts",
		Queries: []Query{{Name: "sales", Entity: "sales", Ranged: true}},
		Tables: []Table{{Query: "sales", Spec: aggregation.Spec{
			Name:    "by_category",
			GroupBy: []string{"category"},
			Metrics: []aggregation.Metric{{Name: "revenue", Column: "revenue", Op: aggregation.OpSum}},
		}}},
		Charts: []domain.ChartSpec{
			{ID: "bars", Kind: domain.ChartBar, Title: "Bars", Table: "by_category", X: "category", Series: []domain.SeriesSpec{{Column: "revenue"}}},
			{ID: "broken", Kind: domain.ChartPie, Title: "Broken", Table: "by_category", X: "category", Series: []domain.SeriesSpec{{Column: "revenue"}}},
			{ID: "rows", Kind: domain.ChartTable, Title: "Rows", Table: "by_category"},
		},
		Sections: []domain.SectionLayout{
			{Title: "Bars", Charts: []string{"bars"}},
			{Title: "Broken", Charts: []string{"broken"}},
			{Title: "Rows", Charts: []string{"rows"}},
		},
	}
}

func TestService_Generate_PartialDegradation(t *testing.T) {
	// Given
	f := newFixture(t)
	seedSales(t, f.db, 40)
	require.NoError(t, f.registry.Register(threeCharts()))
	png := chart.NewPNGRenderer()
	f.renderer = chart.RendererFunc(func(spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error) {
		if spec.ID == "broken" {
			return nil, errors.New("engine rejected the figure")
		}
		return png.Render(spec, table)
	})
	svc := f.service(t)

	// When
	artifact, err := svc.Generate(context.Background(), domain.ReportRequest{Type: "three_charts", Range: january, Format: domain.FormatHTML})

	// Then
	require.NoError(t, err)
	assert.True(t, artifact.Metadata.Partial)
	assert.Equal(t, []domain.SectionMetadata{
		{Title: "Bars", Status: domain.SectionComplete},
		{Title: "Broken", Status: domain.SectionPlaceholder},
		{Title: "Rows", Status: domain.SectionComplete},
	}, artifact.Metadata.Sections)

	html := string(artifact.Content)
	assert.Equal(t, 2, strings.Count(html, `data-status="complete"`))
	assert.Equal(t, 1, strings.Count(html, `data-status="placeholder"`))
	assert.Contains(t, html, "rendering failed: ")
	assert.Equal(t, []string{"partial"}, f.recorder.outcomes)
}

// gatedSource cancels the request as soon as the query starts.
type gatedSource struct {
	next   domain.DataSource
	cancel context.CancelFunc
}

func (s gatedSource) Query(ctx context.Context, q domain.QueryDescriptor) (*domain.RowSet, error) {
	s.cancel()
	<-ctx.Done()
	return s.next.Query(ctx, q)
}

func TestService_Generate_CancelledWhileQueryingReleasesConnections(t *testing.T) {
	// Given
	f := newFixture(t)
	seedSales(t, f.db, 10)
	ctx, cancel := context.WithCancel(context.Background())
	f.sources[""] = gatedSource{next: f.store, cancel: cancel}
	svc := f.service(t)
	before := f.db.Stats()

	// When
	_, err := svc.Generate(ctx, salesRequest(domain.FormatPDF))

	// Then
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRequestCancelled), "got %v", err)
	var pe *domain.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.StageQuerying, pe.Stage)
	assert.Equal(t, before.InUse, f.db.Stats().InUse)
	assert.Equal(t, []domain.Stage{domain.StageQuerying}, f.recorder.failures)
}

func TestService_Generate_QueryTimeoutIsFatal(t *testing.T) {
	f := newFixture(t)
	f.sources[""] = domain.DataSource(slowSource{})
	composer, err := document.NewComposer()
	require.NoError(t, err)
	svc, err := NewService(Config{QueryTimeout: 20 * time.Millisecond}, Dependencies{
		Registry: f.registry,
		Sources:  f.sources,
		Charts:   chart.NewPool(f.renderer, 1),
		Composer: composer,
		Exporter: export.NewExporter(export.DefaultOptions()),
	})
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), salesRequest(domain.FormatHTML))

	assert.True(t, errors.Is(err, &domain.PipelineError{Kind: domain.KindDataUnavailable, Stage: domain.StageQuerying}), "got %v", err)
}

type slowSource struct{}

func (slowSource) Query(ctx context.Context, _ domain.QueryDescriptor) (*domain.RowSet, error) {
	<-ctx.Done()
	return nil, domain.NewError(domain.KindDataUnavailable, ctx.Err())
}

func TestService_Generate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.ReportRequest
		kind  domain.ErrorKind
		stage domain.Stage
	}{
		{"unknown type", domain.ReportRequest{Type: "nope", Range: january, Format: domain.FormatHTML}, domain.KindNotFound, domain.StageReceived},
		{"inverted range", domain.ReportRequest{Type: "sales_summary", Range: domain.TimeRange{Start: january.End, End: january.Start}, Format: domain.FormatHTML}, domain.KindInvalidRequest, domain.StageReceived},
		{"unknown filter", domain.ReportRequest{Type: "sales_summary", Range: january, Format: domain.FormatHTML, Filters: map[string][]string{"colour": {"red"}}}, domain.KindInvalidRequest, domain.StageReceived},
		{"missing required filter", domain.ReportRequest{Type: "sensor_report", Range: january, Format: domain.FormatHTML}, domain.KindInvalidRequest, domain.StageReceived},
		{"bad number filter", domain.ReportRequest{Type: "sensor_report", Range: january, Format: domain.FormatHTML, Filters: map[string][]string{"sensor_id": {"abc"}}}, domain.KindInvalidRequest, domain.StageReceived},
		{"single value filter", domain.ReportRequest{Type: "sensor_report", Range: january, Format: domain.FormatHTML, Filters: map[string][]string{"sensor_id": {"1", "2"}}}, domain.KindInvalidRequest, domain.StageReceived},
		{"unknown sensor", domain.ReportRequest{Type: "sensor_report", Range: january, Format: domain.FormatHTML, Filters: map[string][]string{"sensor_id": {"404"}}}, domain.KindNotFound, domain.StageQuerying},
		{"abot not configured", domain.ReportRequest{Type: "abot_metrics", Range: january, Format: domain.FormatHTML, Filters: map[string][]string{"metric": {"latency_ms"}}}, domain.KindDataUnavailable, domain.StageQuerying},
	}

	f := newFixture(t)
	svc := f.service(t)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Generate(context.Background(), tc.req)

			var pe *domain.PipelineError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tc.kind, pe.Kind)
			assert.Equal(t, tc.stage, pe.Stage)
		})
	}
}

func TestService_Generate_AbotMetricsPivotsRequestedMetrics(t *testing.T) {
	// Given
	f := newFixture(t)
	var got domain.QueryDescriptor
	f.sources[SourceAbot] = sourceFunc(func(_ context.Context, q domain.QueryDescriptor) (*domain.RowSet, error) {
		got = q
		day := january.Start
		return domain.NewRowSet(
			[]domain.Column{
				{Name: "recorded_at", Type: domain.TypeTimestamp},
				{Name: "metric", Type: domain.TypeString},
				{Name: "value", Type: domain.TypeNumber},
			},
			[][]any{
				{day, "latency_ms", 10.0},
				{day.Add(time.Hour), "latency_ms", 20.0},
				{day, "errors", 1.0},
				{day.Add(24 * time.Hour), "errors", 3.0},
			},
		)
	})
	svc := f.service(t)
	req := domain.ReportRequest{
		Type:    "abot_metrics",
		Range:   january,
		Format:  domain.FormatHTML,
		Filters: map[string][]string{"metric": {"latency_ms", "errors"}},
	}

	// When
	figure, err := svc.Figure(context.Background(), req, "")

	// Then
	require.NoError(t, err)
	assert.Equal(t, "metrics.series", got.Entity)
	assert.Equal(t, []domain.Predicate{domain.In("metric", "latency_ms", "errors")}, got.Predicates)
	require.Len(t, figure.Series, 2)
	assert.Equal(t, "latency_ms", figure.Series[0].Name)
	require.NotNil(t, figure.Series[0].Data[0].Value)
	assert.Equal(t, 15.0, *figure.Series[0].Data[0].Value)
	assert.Nil(t, figure.Series[0].Data[1].Value)
	assert.Equal(t, "errors", figure.Series[1].Name)

	// And the definition itself keeps no request values
	def, err := f.registry.Get("abot_metrics")
	require.NoError(t, err)
	assert.Empty(t, def.Tables[0].Spec.Pivot.Values)
	assert.Empty(t, def.Charts[0].Series)
}

type sourceFunc func(ctx context.Context, q domain.QueryDescriptor) (*domain.RowSet, error)

func (f sourceFunc) Query(ctx context.Context, q domain.QueryDescriptor) (*domain.RowSet, error) {
	return f(ctx, q)
}

func TestService_Preview(t *testing.T) {
	f := newFixture(t)
	seedSales(t, f.db, 30)
	svc := f.service(t)

	preview, err := svc.Preview(context.Background(), salesRequest(domain.FormatHTML))

	require.NoError(t, err)
	require.NotNil(t, preview.Image)
	assert.Equal(t, "revenue_by_category", preview.Image.Spec.ID)
	assert.True(t, strings.HasPrefix(preview.Image.DataURI(), "data:image/png;base64,"))
	require.NotNil(t, preview.Figure)
	assert.Equal(t, domain.ChartBar, preview.Figure.ChartType)
	assert.Len(t, preview.Figure.Series[0].Data, 4)
	assert.Empty(t, preview.Reason)
}

func TestService_Preview_KeepsFigureWhenRenderFails(t *testing.T) {
	f := newFixture(t)
	seedSales(t, f.db, 30)
	f.renderer = chart.RendererFunc(func(domain.ChartSpec, *domain.AggregatedTable) (*domain.RenderedChart, error) {
		return nil, domain.Errorf(domain.KindRenderError, "no fonts")
	})
	svc := f.service(t)

	preview, err := svc.Preview(context.Background(), salesRequest(domain.FormatHTML))

	require.NoError(t, err)
	assert.Nil(t, preview.Image)
	assert.NotNil(t, preview.Figure)
	assert.Equal(t, "rendering failed: no fonts", preview.Reason)
}

func TestService_Figure_UnknownChart(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t)

	_, err := svc.Figure(context.Background(), salesRequest(domain.FormatHTML), "radar")

	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.EqualError(t, r.Register(Definition{}), "report type cannot be empty")
	require.NoError(t, r.Register(threeCharts()))
	assert.EqualError(t, r.Register(threeCharts()), `report "three_charts" is already registered`)

	broken := threeCharts()
	broken.Type = "broken"
	broken.Sections = append(broken.Sections, domain.SectionLayout{Title: "Extra", Charts: []string{"radar"}})
	assert.EqualError(t, r.Register(broken), `report "broken": section "Extra" shows unknown chart "radar"`)

	_, err := r.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Len(t, DefaultRegistry().List(), 3)
	assert.Equal(t, "abot_metrics", DefaultRegistry().List()[0].Type)
}

func TestFilename(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	req := domain.ReportRequest{Type: "sensor_report", Range: january, Format: domain.FormatHTML}

	assert.Equal(t, "sensor_report_20240101_20240131.html", filename(req, time.UTC))
	assert.Equal(t, "sensor_report_20240101_20240201.html", filename(req, tokyo))
}
