package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/adapters"
	"github.com/genesis-labs/genesis-api/pkg/handlers/response"
	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/server/middleware"
	"github.com/genesis-labs/genesis-api/pkg/services/report"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodySize = 1 << 20

// query parameters that are not report filters
var reserved = map[string]bool{
	"from":     true,
	"to":       true,
	"format":   true,
	"tz":       true,
	"timezone": true,
	"chart":    true,
}

type Service interface {
	Generate(ctx context.Context, req domain.ReportRequest) (*domain.ReportArtifact, error)
	Preview(ctx context.Context, req domain.ReportRequest) (*domain.ReportPreview, error)
	Figure(ctx context.Context, req domain.ReportRequest, chartID string) (*domain.Figure, error)
	Definitions() []report.Definition
}

type Handler struct {
	svc      Service
	location *time.Location
}

// NewHandler serves reports; loc is the timezone of requests that name none.
func NewHandler(svc Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, location: loc}
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	defs := h.svc.Definitions()
	out := make([]api.ReportType, 0, len(defs))
	for _, def := range defs {
		out = append(out, adapters.MapDefinitionToAPIReportType(def))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var payload api.ReportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		err = domain.Errorf(domain.KindInvalidRequest, "invalid request body: %v", err)
		response.Error(w, r, domain.WithStage(err, domain.StageReceived, domain.KindInvalidRequest))
		return
	}
	h.generate(w, r, payload)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, payloadFromQuery(chi.URLParam(r, "type"), r.URL.Query()))
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request, payload api.ReportRequest) {
	req, err := h.request(r, payload)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	artifact, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	metadata, err := json.Marshal(adapters.MapDomainArtifactMetadataToAPI(artifact.Metadata))
	if err != nil {
		response.Error(w, r, fmt.Errorf("encode artifact metadata: %w", err))
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Content)))
	w.Header().Set("X-Report-Partial", strconv.FormatBool(artifact.Metadata.Partial))
	w.Header().Set("X-Report-Metadata", string(metadata))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Content); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write report")
	}
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req, err := h.request(r, payloadFromQuery(chi.URLParam(r, "type"), query))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	preview, err := h.svc.Preview(r.Context(), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	out := api.ReportPreview{
		ReportType: preview.ReportType,
		Reason:     preview.Reason,
		Figure:     preview.Figure,
		Download:   downloadLinks(r.URL.Path, query),
	}
	if preview.Image != nil {
		out.PreviewImage = preview.Image.DataURI()
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *Handler) Figure(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req, err := h.request(r, payloadFromQuery(chi.URLParam(r, "type"), query))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	figure, err := h.svc.Figure(r.Context(), req, query.Get("chart"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, figure)
}

func (h *Handler) request(r *http.Request, payload api.ReportRequest) (domain.ReportRequest, error) {
	req, err := adapters.MapAPIReportRequestToDomain(payload, h.location)
	if err != nil {
		return domain.ReportRequest{}, domain.WithStage(err, domain.StageReceived, domain.KindInvalidRequest)
	}
	req.ID = middleware.RequestID(r.Context())
	return req, nil
}

func payloadFromQuery(reportType string, q url.Values) api.ReportRequest {
	payload := api.ReportRequest{
		Type:     reportType,
		From:     q.Get("from"),
		To:       q.Get("to"),
		Format:   q.Get("format"),
		Timezone: q.Get("tz"),
	}
	if payload.Timezone == "" {
		payload.Timezone = q.Get("timezone")
	}
	for key, values := range q {
		if reserved[key] {
			continue
		}
		if payload.Filters == nil {
			payload.Filters = map[string][]string{}
		}
		payload.Filters[key] = values
	}
	return payload
}

// downloadLinks points at the report itself with the preview's parameters.
func downloadLinks(previewPath string, q url.Values) api.DownloadLinks {
	base := strings.TrimSuffix(previewPath, "/preview")
	link := func(format string) string {
		params := url.Values{}
		for k, vs := range q {
			if k != "format" && k != "chart" {
				params[k] = vs
			}
		}
		params.Set("format", format)
		return base + "?" + params.Encode()
	}
	return api.DownloadLinks{HTML: link("html"), PDF: link("pdf")}
}
