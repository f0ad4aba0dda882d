// Package response writes JSON bodies and pipeline errors for handlers.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/rs/zerolog"
)

// StatusClientClosedRequest is logged when the caller went away mid-request.
const StatusClientClosedRequest = 499

var statusByKind = map[domain.ErrorKind]int{
	domain.KindInvalidRequest:   http.StatusBadRequest,
	domain.KindQueryError:       http.StatusBadRequest,
	domain.KindNotFound:         http.StatusNotFound,
	domain.KindDataUnavailable:  http.StatusServiceUnavailable,
	domain.KindAggregationError: http.StatusInternalServerError,
	domain.KindRenderError:      http.StatusInternalServerError,
	domain.KindRenderTimeout:    http.StatusGatewayTimeout,
	domain.KindExportError:      http.StatusInternalServerError,
	domain.KindExportTimeout:    http.StatusGatewayTimeout,
	domain.KindRequestCancelled: StatusClientClosedRequest,
}

func Status(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func JSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

// Error writes {"error":{"stage","kind","message"}}. Errors without a kind
// are reported as internal without their text.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	detail := api.ErrorDetail{Kind: "Internal", Message: http.StatusText(http.StatusInternalServerError)}

	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		detail = api.ErrorDetail{Stage: string(pe.Stage), Kind: string(pe.Kind), Message: pe.Message()}
	}

	event := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Msg("request failed")

	JSON(w, r, status, api.ErrorResponse{Error: detail})
}
