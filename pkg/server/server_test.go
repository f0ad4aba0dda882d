package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/server/middleware"
	"github.com/genesis-labs/genesis-api/pkg/services/report"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReports struct {
	mock.Mock
}

func (m *mockReports) Generate(ctx context.Context, req domain.ReportRequest) (*domain.ReportArtifact, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReportArtifact), args.Error(1)
}

func (m *mockReports) Preview(ctx context.Context, req domain.ReportRequest) (*domain.ReportPreview, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReportPreview), args.Error(1)
}

func (m *mockReports) Figure(ctx context.Context, req domain.ReportRequest, chartID string) (*domain.Figure, error) {
	args := m.Called(ctx, req, chartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Figure), args.Error(1)
}

func (m *mockReports) Definitions() []report.Definition {
	args := m.Called()
	return args.Get(0).([]report.Definition)
}

type mockSensors struct {
	mock.Mock
}

func (m *mockSensors) GetSensor(ctx context.Context, id int64) (domain.Sensor, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Sensor), args.Error(1)
}

func (m *mockSensors) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Sensor), args.Error(1)
}

func (m *mockSensors) FindSensors(ctx context.Context, q domain.SensorQuery) ([]domain.Sensor, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]domain.Sensor), args.Error(1)
}

func (m *mockSensors) GetUnit(ctx context.Context, id int64) (domain.Unit, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Unit), args.Error(1)
}

func (m *mockSensors) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Unit), args.Error(1)
}

func (m *mockSensors) AddUnit(ctx context.Context, unit domain.Unit) error {
	return m.Called(ctx, unit).Error(0)
}

func (m *mockSensors) AddSensor(ctx context.Context, sensor domain.Sensor) error {
	return m.Called(ctx, sensor).Error(0)
}

func (m *mockSensors) GetReadings(ctx context.Context, sensorID int64, r domain.TimeRange) ([]domain.Reading, error) {
	args := m.Called(ctx, sensorID, r)
	return args.Get(0).([]domain.Reading), args.Error(1)
}

func (m *mockSensors) AddReadings(ctx context.Context, sensorID int64, readings []domain.Reading) error {
	return m.Called(ctx, sensorID, readings).Error(0)
}

var thermometer = domain.Sensor{
	ID:         1,
	Name:       "greenhouse-1",
	SensorType: "temperature",
	Location:   "north wing",
	Unit:       domain.Unit{ID: 1, Name: "celsius", Symbol: "°C"},
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ts := httptest.NewServer(NewWebAPI(logger, cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func salesRequest(format domain.Format) func(domain.ReportRequest) bool {
	return func(req domain.ReportRequest) bool {
		return req.Type == "sales_summary" &&
			req.Format == format &&
			req.Range.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) &&
			req.Range.End.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) &&
			assert.ObjectsAreEqual([]string{"north", "south"}, req.Filter("region")) &&
			req.ID != ""
	}
}

func TestWebAPI_Reports(t *testing.T) {
	reports := new(mockReports)
	ts := newTestServer(t, Config{Dependencies: Dependencies{Reports: reports, Sensors: new(mockSensors)}})

	generatedAt := time.Date(2024, 2, 2, 9, 30, 0, 0, time.UTC)
	artifact := &domain.ReportArtifact{
		Content:     []byte("%PDF-1.3 test"),
		ContentType: "application/pdf",
		Filename:    "sales_summary_20240101_20240131.pdf",
		Metadata: domain.ArtifactMetadata{
			RequestID:   "req-1",
			ReportType:  "sales_summary",
			Format:      domain.FormatPDF,
			GeneratedAt: generatedAt,
			Partial:     true,
			Sections: []domain.SectionMetadata{
				{Title: "Overview", Status: domain.SectionComplete},
				{Title: "Revenue by category", Status: domain.SectionPlaceholder},
			},
			Pages:  3,
			Tables: []domain.TablePlacement{{Table: "by_category", Page: 1, Rows: 4}},
		},
	}

	t.Run("GenerateFromQuery", func(t *testing.T) {
		// Given
		reports.On("Generate", mock.Anything, mock.MatchedBy(salesRequest(domain.FormatPDF))).
			Return(artifact, nil).Once()

		// When
		resp, err := http.Get(ts.URL + "/api/v1/reports/sales_summary?from=2024-01-01&to=2024-01-31&format=pdf&region=north,south")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		// Then
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="sales_summary_20240101_20240131.pdf"`, resp.Header.Get("Content-Disposition"))
		assert.Equal(t, "true", resp.Header.Get("X-Report-Partial"))
		assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
		assert.Equal(t, artifact.Content, body)

		var metadata api.ArtifactMetadata
		require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("X-Report-Metadata")), &metadata))
		assert.Equal(t, api.ArtifactMetadata{
			RequestID:   "req-1",
			ReportType:  "sales_summary",
			Format:      "pdf",
			GeneratedAt: generatedAt,
			Partial:     true,
			Sections: []api.SectionMetadata{
				{Title: "Overview", Status: "complete"},
				{Title: "Revenue by category", Status: "placeholder"},
			},
			Pages:  3,
			Tables: []api.TablePlacement{{Table: "by_category", Page: 1, Rows: 4}},
		}, metadata)
	})

	t.Run("GenerateFromBody", func(t *testing.T) {
		// Given
		reports.On("Generate", mock.Anything, mock.MatchedBy(salesRequest(domain.FormatHTML))).
			Return(&domain.ReportArtifact{
				Content:     []byte("<html></html>"),
				ContentType: "text/html; charset=utf-8",
				Filename:    "sales_summary_20240101_20240131.html",
				Metadata:    domain.ArtifactMetadata{ReportType: "sales_summary", Format: domain.FormatHTML},
			}, nil).Once()
		body := `{"type":"sales_summary","from":"2024-01-01","to":"2024-02-01T00:00:00Z","filters":{"region":["north","south"]}}`

		// When
		resp, err := http.Post(ts.URL+"/api/v1/reports", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		// Then
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "false", resp.Header.Get("X-Report-Partial"))
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	})

	t.Run("PipelineErrors", func(t *testing.T) {
		tests := []struct {
			name     string
			path     string
			err      error
			status   int
			expected api.ErrorDetail
		}{
			{
				name:     "NotFound",
				path:     "/api/v1/reports/nope?from=2024-01-01&to=2024-01-31",
				err:      domain.WithStage(domain.Errorf(domain.KindNotFound, "report type %q is not registered", "nope"), domain.StageReceived, ""),
				status:   http.StatusNotFound,
				expected: api.ErrorDetail{Stage: "received", Kind: "NotFound", Message: `report type "nope" is not registered`},
			},
			{
				name:     "DataUnavailable",
				path:     "/api/v1/reports/abot_metrics?from=2024-01-01&to=2024-01-31&metric=latency_ms",
				err:      domain.WithStage(domain.Errorf(domain.KindDataUnavailable, "abot is down"), domain.StageQuerying, ""),
				status:   http.StatusServiceUnavailable,
				expected: api.ErrorDetail{Stage: "querying", Kind: "DataUnavailable", Message: "abot is down"},
			},
			{
				name:     "ExportTimeout",
				path:     "/api/v1/reports/sensor_report?from=2024-01-01&to=2024-01-31&sensor_id=1&format=pdf",
				err:      domain.WithStage(domain.Errorf(domain.KindExportTimeout, "export timed out"), domain.StageExporting, ""),
				status:   http.StatusGatewayTimeout,
				expected: api.ErrorDetail{Stage: "exporting", Kind: "ExportTimeout", Message: "export timed out"},
			},
			{
				name:     "Internal",
				path:     "/api/v1/reports/sensor_report?from=2024-01-01&to=2024-01-31&sensor_id=2",
				err:      errors.New("secret detail"),
				status:   http.StatusInternalServerError,
				expected: api.ErrorDetail{Kind: "Internal", Message: "Internal Server Error"},
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				// Given
				u, err := url.Parse(tc.path)
				require.NoError(t, err)
				reportType := strings.TrimPrefix(u.Path, "/api/v1/reports/")
				reports.On("Generate", mock.Anything, mock.MatchedBy(func(req domain.ReportRequest) bool {
					return req.Type == reportType
				})).Return(nil, tc.err).Once()

				// When
				resp, err := http.Get(ts.URL + tc.path)
				require.NoError(t, err)
				defer resp.Body.Close()

				// Then
				assert.Equal(t, tc.status, resp.StatusCode)
				assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
				got := decode[api.ErrorResponse](t, resp)
				assert.Equal(t, api.ErrorResponse{Error: tc.expected}, got)
			})
		}
	})

	t.Run("InvalidRequestsNeverReachService", func(t *testing.T) {
		tests := []struct {
			name    string
			method  string
			path    string
			body    string
			message string
		}{
			{name: "MissingFrom", method: http.MethodGet, path: "/api/v1/reports/sales_summary?to=2024-01-31", message: "from: value is required"},
			{name: "BadDate", method: http.MethodGet, path: "/api/v1/reports/sales_summary?from=January&to=2024-01-31", message: "from: expected a date"},
			{name: "InvertedRange", method: http.MethodGet, path: "/api/v1/reports/sales_summary?from=2024-02-01&to=2024-01-01", message: "is not before end"},
			{name: "BadFormat", method: http.MethodGet, path: "/api/v1/reports/sales_summary?from=2024-01-01&to=2024-01-31&format=docx", message: "unsupported format"},
			{name: "BadTimezone", method: http.MethodGet, path: "/api/v1/reports/sales_summary?from=2024-01-01&to=2024-01-31&tz=Mars/Base", message: "unknown timezone"},
			{name: "UnknownField", method: http.MethodPost, path: "/api/v1/reports", body: `{"type":"sales_summary","colour":"red"}`, message: "invalid request body"},
			{name: "NoType", method: http.MethodPost, path: "/api/v1/reports", body: `{"from":"2024-01-01","to":"2024-01-31"}`, message: "report type is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				// When
				req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
				require.NoError(t, err)
				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				defer resp.Body.Close()

				// Then
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
				got := decode[api.ErrorResponse](t, resp)
				assert.Equal(t, "InvalidRequest", got.Error.Kind)
				assert.Equal(t, "received", got.Error.Stage)
				assert.Contains(t, got.Error.Message, tc.message)
			})
		}
	})

	t.Run("Preview", func(t *testing.T) {
		// Given
		value := 42.0
		reports.On("Preview", mock.Anything, mock.MatchedBy(func(req domain.ReportRequest) bool {
			return req.Type == "sales_summary"
		})).Return(&domain.ReportPreview{
			ReportType: "sales_summary",
			Image:      &domain.RenderedChart{MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
			Figure: &domain.Figure{
				ID:        "revenue_by_category",
				ChartType: domain.ChartBar,
				Series:    []domain.FigureSeries{{Name: "revenue", Data: []domain.FigurePoint{{Label: "books", Value: &value}}}},
			},
		}, nil).Once()

		// When
		resp, err := http.Get(ts.URL + "/api/v1/reports/sales_summary/preview?from=2024-01-01&to=2024-01-31&region=north&format=pdf")
		require.NoError(t, err)
		defer resp.Body.Close()

		// Then
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[previewResponse](t, resp)
		assert.Equal(t, "sales_summary", got.ReportType)
		assert.True(t, strings.HasPrefix(got.PreviewImage, "data:image/png;base64,"))
		assert.Empty(t, got.Reason)
		assert.Equal(t, "revenue_by_category", got.Figure.ID)
		require.Len(t, got.Figure.Series, 1)
		assert.Equal(t, 42.0, *got.Figure.Series[0].Data[0].Value)
		assert.Equal(t, api.DownloadLinks{
			HTML: "/api/v1/reports/sales_summary?format=html&from=2024-01-01&region=north&to=2024-01-31",
			PDF:  "/api/v1/reports/sales_summary?format=pdf&from=2024-01-01&region=north&to=2024-01-31",
		}, got.Download)
	})

	t.Run("PreviewPlaceholder", func(t *testing.T) {
		// Given
		reports.On("Preview", mock.Anything, mock.MatchedBy(func(req domain.ReportRequest) bool {
			return req.Type == "sensor_report"
		})).Return(&domain.ReportPreview{
			ReportType: "sensor_report",
			Figure:     &domain.Figure{ID: "hourly_values", ChartType: domain.ChartLine},
			Reason:     "rendering timed out",
		}, nil).Once()

		// When
		resp, err := http.Get(ts.URL + "/api/v1/reports/sensor_report/preview?from=2024-01-01&to=2024-01-31&sensor_id=1")
		require.NoError(t, err)
		defer resp.Body.Close()

		// Then
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[previewResponse](t, resp)
		assert.Empty(t, got.PreviewImage)
		assert.Equal(t, "rendering timed out", got.Reason)
		assert.Equal(t, "hourly_values", got.Figure.ID)
	})

	t.Run("Figure", func(t *testing.T) {
		// Given
		reports.On("Figure", mock.Anything, mock.MatchedBy(func(req domain.ReportRequest) bool {
			_, isFilter := req.Filters["chart"]
			return req.Type == "sales_summary" && !isFilter
		}), "category_share").Return(&domain.Figure{ID: "category_share", ChartType: domain.ChartPie}, nil).Once()

		// When
		resp, err := http.Get(ts.URL + "/api/v1/reports/sales_summary/figure?from=2024-01-01&to=2024-01-31&chart=category_share")
		require.NoError(t, err)
		defer resp.Body.Close()

		// Then
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[domain.Figure](t, resp)
		assert.Equal(t, domain.Figure{ID: "category_share", ChartType: domain.ChartPie}, got)
	})

	t.Run("ListReports", func(t *testing.T) {
		// Given
		reports.On("Definitions").Return([]report.Definition{report.SalesSummary()}).Once()

		// When
		resp, err := http.Get(ts.URL + "/api/v1/reports")
		require.NoError(t, err)
		defer resp.Body.Close()

		// Then
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[[]api.ReportType](t, resp)
		require.Len(t, got, 1)
		assert.Equal(t, "sales_summary", got[0].Type)
		assert.Contains(t, got[0].Filters, api.ReportFilter{Name: "region", Type: "string", Multi: true})
	})

	reports.AssertExpectations(t)
}

type previewResponse struct {
	ReportType   string            `json:"report_type"`
	PreviewImage string            `json:"preview_image"`
	Reason       string            `json:"reason"`
	Figure       domain.Figure     `json:"figure"`
	Download     api.DownloadLinks `json:"download"`
}

func TestWebAPI_Sensors(t *testing.T) {
	sensors := new(mockSensors)
	ts := newTestServer(t, Config{Dependencies: Dependencies{Reports: new(mockReports), Sensors: sensors}})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	apiSensor := api.Sensor{
		ID:         1,
		Name:       "greenhouse-1",
		SensorType: "temperature",
		Location:   "north wing",
		Unit:       api.Unit{ID: 1, Name: "celsius", Symbol: "°C"},
	}

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		setupMocks     func()
		expectedStatus int
		expected       interface{}
		parseResponse  func([]byte) (interface{}, error)
	}{
		{
			name: "ListSensors",
			path: "/api/v1/sensors",
			setupMocks: func() {
				sensors.On("ListSensors", mock.Anything).Return([]domain.Sensor{thermometer}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected:       []api.Sensor{apiSensor},
			parseResponse:  unmarshalResponse[[]api.Sensor](),
		},
		{
			name: "FindSensors",
			path: "/api/v1/sensors/find?type=temperature&location=north+wing",
			setupMocks: func() {
				sensors.On("FindSensors", mock.Anything, domain.SensorQuery{SensorType: "temperature", Location: "north wing"}).
					Return([]domain.Sensor{}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected:       []api.Sensor{},
			parseResponse:  unmarshalResponse[[]api.Sensor](),
		},
		{
			name: "GetSensor",
			path: "/api/v1/sensors/1",
			setupMocks: func() {
				sensors.On("GetSensor", mock.Anything, int64(1)).Return(thermometer, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected:       apiSensor,
			parseResponse:  unmarshalResponse[api.Sensor](),
		},
		{
			name:           "GetSensor_InvalidID",
			path:           "/api/v1/sensors/abc",
			setupMocks:     func() {},
			expectedStatus: http.StatusBadRequest,
			expected:       api.ErrorResponse{Error: api.ErrorDetail{Kind: "InvalidRequest", Message: `"abc" is not a valid id`}},
			parseResponse:  unmarshalResponse[api.ErrorResponse](),
		},
		{
			name: "GetSensor_NotFound",
			path: "/api/v1/sensors/9",
			setupMocks: func() {
				sensors.On("GetSensor", mock.Anything, int64(9)).
					Return(domain.Sensor{}, domain.Errorf(domain.KindNotFound, "sensor of id 9 does not exist")).Once()
			},
			expectedStatus: http.StatusNotFound,
			expected:       api.ErrorResponse{Error: api.ErrorDetail{Kind: "NotFound", Message: "sensor of id 9 does not exist"}},
			parseResponse:  unmarshalResponse[api.ErrorResponse](),
		},
		{
			name: "GetSensorData",
			path: "/api/v1/sensors/1/data?from=2024-01-01T00:00:00Z&to=2024-01-02T00:00:00Z",
			setupMocks: func() {
				sensors.On("GetSensor", mock.Anything, int64(1)).Return(thermometer, nil).Once()
				sensors.On("GetReadings", mock.Anything, int64(1), mock.MatchedBy(func(r domain.TimeRange) bool {
					return r.Start.Equal(from) && r.End.Equal(to)
				})).Return([]domain.Reading{{SensorID: 1, RecordedAt: from.Add(time.Hour), Value: 21.5}}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected: api.SensorData{
				Sensor:   apiSensor,
				From:     from,
				To:       to,
				Readings: []api.Reading{{RecordedAt: from.Add(time.Hour), Value: 21.5}},
			},
			parseResponse: unmarshalResponse[api.SensorData](),
		},
		{
			name:           "GetSensorData_InvalidFrom",
			path:           "/api/v1/sensors/1/data?from=yesterday",
			setupMocks:     func() {},
			expectedStatus: http.StatusBadRequest,
			expected:       api.ErrorResponse{Error: api.ErrorDetail{Kind: "InvalidRequest", Message: `from: "yesterday" is not an RFC 3339 timestamp`}},
			parseResponse:  unmarshalResponse[api.ErrorResponse](),
		},
		{
			name:   "AddReadings",
			method: http.MethodPost,
			path:   "/api/v1/sensors/1/readings",
			body:   `[{"recorded_at":"2024-01-01T01:00:00Z","value":21.5},{"recorded_at":"2024-01-01T02:00:00Z","value":22}]`,
			setupMocks: func() {
				sensors.On("AddReadings", mock.Anything, int64(1), mock.MatchedBy(func(rs []domain.Reading) bool {
					return len(rs) == 2 && rs[0].SensorID == 1 && rs[1].Value == 22
				})).Return(nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expected:       map[string]int{"stored": 2},
			parseResponse:  unmarshalResponse[map[string]int](),
		},
		{
			name:           "AddReadings_BadBody",
			method:         http.MethodPost,
			path:           "/api/v1/sensors/1/readings",
			body:           `{"value":1}`,
			setupMocks:     func() {},
			expectedStatus: http.StatusBadRequest,
			expected:       "InvalidRequest",
			parseResponse: func(data []byte) (interface{}, error) {
				var out api.ErrorResponse
				err := json.Unmarshal(data, &out)
				return out.Error.Kind, err
			},
		},
		{
			name: "ListUnits",
			path: "/api/v1/units",
			setupMocks: func() {
				sensors.On("ListUnits", mock.Anything).Return([]domain.Unit{thermometer.Unit}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected:       []api.Unit{apiSensor.Unit},
			parseResponse:  unmarshalResponse[[]api.Unit](),
		},
		{
			name: "GetUnit",
			path: "/api/v1/units/1",
			setupMocks: func() {
				sensors.On("GetUnit", mock.Anything, int64(1)).Return(thermometer.Unit, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected:       apiSensor.Unit,
			parseResponse:  unmarshalResponse[api.Unit](),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMocks()
			method := tc.method
			if method == "" {
				method = http.MethodGet
			}
			req, err := http.NewRequest(method, ts.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err, "Failed to build request")
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err, "Failed to send request")
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "Status code mismatch")

			actual, err := tc.parseResponse(readAll(t, resp))
			require.NoError(t, err, "Failed to parse response")

			assert.Equal(t, tc.expected, actual)
		})
	}
	sensors.AssertExpectations(t)
}

func TestWebAPI_RateLimit(t *testing.T) {
	// Given
	reports := new(mockReports)
	reports.On("Figure", mock.Anything, mock.Anything, "").Return(&domain.Figure{ID: "daily_revenue"}, nil)
	reports.On("Definitions").Return([]report.Definition{})
	ts := newTestServer(t, Config{
		RateLimit:    middleware.RateLimitConfig{RPS: 0.01, Burst: 1},
		Dependencies: Dependencies{Reports: reports, Sensors: new(mockSensors)},
	})
	path := ts.URL + "/api/v1/reports/sales_summary/figure?from=2024-01-01&to=2024-01-31"

	// When
	first, err := http.Get(path)
	require.NoError(t, err)
	first.Body.Close()
	second, err := http.Get(path)
	require.NoError(t, err)
	defer second.Body.Close()
	listing, err := http.Get(ts.URL + "/api/v1/reports")
	require.NoError(t, err)
	listing.Body.Close()

	// Then
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "101", second.Header.Get("Retry-After"))
	got := decode[api.ErrorResponse](t, second)
	assert.Equal(t, "RateLimited", got.Error.Kind)
	assert.Equal(t, http.StatusOK, listing.StatusCode, "listing is not rate limited")
}

func TestWebAPI_Health(t *testing.T) {
	tests := []struct {
		name   string
		check  func(context.Context) error
		status int
	}{
		{name: "NoCheck", status: http.StatusOK},
		{name: "Healthy", check: func(context.Context) error { return nil }, status: http.StatusOK},
		{name: "Unhealthy", check: func(context.Context) error { return errors.New("db down") }, status: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, Config{Dependencies: Dependencies{
				Reports: new(mockReports),
				Sensors: new(mockSensors),
				Health:  tc.check,
			}})

			resp, err := http.Get(ts.URL + "/healthz")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestWebAPI_RequestID(t *testing.T) {
	// Given
	reports := new(mockReports)
	reports.On("Figure", mock.Anything, mock.MatchedBy(func(req domain.ReportRequest) bool {
		return req.ID == "trace-123"
	}), "").Return(&domain.Figure{}, nil).Once()
	ts := newTestServer(t, Config{Dependencies: Dependencies{Reports: reports, Sensors: new(mockSensors)}})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/reports/sales_summary/figure?from=2024-01-01&to=2024-01-31", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.RequestIDHeader, "trace-123")

	// When
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Then
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trace-123", resp.Header.Get(middleware.RequestIDHeader))
	reports.AssertExpectations(t)
}

func TestWebAPI_Metrics(t *testing.T) {
	ts := newTestServer(t, Config{Dependencies: Dependencies{Reports: new(mockReports), Sensors: new(mockSensors)}})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(readAll(t, resp)), "genesis_")
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "Failed to read response body")
	return body
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(readAll(t, resp), &out), "Failed to parse response")
	return out
}

func unmarshalResponse[T any]() func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) {
		var response T
		err := json.Unmarshal(data, &response)
		return response, err
	}
}
