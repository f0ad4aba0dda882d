package sensors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/adapters"
	"github.com/genesis-labs/genesis-api/pkg/handlers/response"
	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/services/sensors"
	"github.com/go-chi/chi/v5"
)

const (
	defaultWindow = 24 * time.Hour
	maxBodySize   = 4 << 20
)

type Handler struct {
	svc   sensors.Service
	clock func() time.Time
}

func NewHandler(svc sensors.Service) *Handler {
	return &Handler{svc: svc, clock: time.Now}
}

func (h *Handler) ListSensors(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSensors(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sensorsResponse(list))
}

func (h *Handler) FindSensors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.FindSensors(r.Context(), domain.SensorQuery{
		SensorType: q.Get("type"),
		Name:       q.Get("name"),
		Location:   q.Get("location"),
	})
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sensorsResponse(list))
}

func (h *Handler) GetSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	sensor, err := h.svc.GetSensor(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapDomainSensorToAPISensor(sensor))
}

// GetSensorData returns readings in [from, to). Without bounds it covers
// the last day.
func (h *Handler) GetSensorData(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	to := h.clock().UTC()
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			response.Error(w, r, domain.Errorf(domain.KindInvalidRequest, "to: %q is not an RFC 3339 timestamp", v))
			return
		}
	}
	from := to.Add(-defaultWindow)
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			response.Error(w, r, domain.Errorf(domain.KindInvalidRequest, "from: %q is not an RFC 3339 timestamp", v))
			return
		}
	}

	sensor, err := h.svc.GetSensor(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	readings, err := h.svc.GetReadings(r.Context(), id, domain.TimeRange{Start: from, End: to})
	if err != nil {
		response.Error(w, r, err)
		return
	}

	out := api.SensorData{
		Sensor:   adapters.MapDomainSensorToAPISensor(sensor),
		From:     from,
		To:       to,
		Readings: make([]api.Reading, 0, len(readings)),
	}
	for _, rd := range readings {
		out.Readings = append(out.Readings, adapters.MapDomainReadingToAPIReading(rd))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *Handler) AddReadings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var payload []api.Reading
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&payload); err != nil {
		response.Error(w, r, domain.Errorf(domain.KindInvalidRequest, "invalid request body: %v", err))
		return
	}
	readings := make([]domain.Reading, 0, len(payload))
	for _, p := range payload {
		readings = append(readings, adapters.MapAPIReadingToDomainReading(id, p))
	}

	if err := h.svc.AddReadings(r.Context(), id, readings); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]int{"stored": len(readings)})
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.svc.ListUnits(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	out := make([]api.Unit, 0, len(units))
	for _, u := range units {
		out = append(out, adapters.MapDomainUnitToAPIUnit(u))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	unit, err := h.svc.GetUnit(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapDomainUnitToAPIUnit(unit))
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.KindInvalidRequest, "%q is not a valid id", raw)
	}
	return id, nil
}

func sensorsResponse(list []domain.Sensor) []api.Sensor {
	out := make([]api.Sensor, 0, len(list))
	for _, s := range list {
		out = append(out, adapters.MapDomainSensorToAPISensor(s))
	}
	return out
}
