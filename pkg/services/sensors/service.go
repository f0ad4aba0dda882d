// Package sensors serves the sensor catalogue and its readings.
package sensors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/adapters"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/models/store"
	sensorstore "github.com/genesis-labs/genesis-api/pkg/store/sensors"
	"github.com/rs/zerolog"
)

type Service interface {
	GetSensor(ctx context.Context, id int64) (domain.Sensor, error)
	ListSensors(ctx context.Context) ([]domain.Sensor, error)
	FindSensors(ctx context.Context, q domain.SensorQuery) ([]domain.Sensor, error)
	GetUnit(ctx context.Context, id int64) (domain.Unit, error)
	ListUnits(ctx context.Context) ([]domain.Unit, error)
	AddUnit(ctx context.Context, unit domain.Unit) error
	AddSensor(ctx context.Context, sensor domain.Sensor) error
	GetReadings(ctx context.Context, sensorID int64, r domain.TimeRange) ([]domain.Reading, error)
	AddReadings(ctx context.Context, sensorID int64, readings []domain.Reading) error
}

type service struct {
	store sensorstore.Store
}

func NewService(st sensorstore.Store) (Service, error) {
	if st == nil {
		return nil, fmt.Errorf("sensor store is nil")
	}
	return &service{store: st}, nil
}

func (s *service) GetSensor(ctx context.Context, id int64) (domain.Sensor, error) {
	rec, err := s.store.GetSensor(ctx, id)
	if err != nil {
		return domain.Sensor{}, err
	}
	return adapters.MapStoreSensorToDomainSensor(*rec), nil
}

func (s *service) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	return s.FindSensors(ctx, domain.SensorQuery{})
}

func (s *service) FindSensors(ctx context.Context, q domain.SensorQuery) ([]domain.Sensor, error) {
	records, err := s.store.FindSensors(ctx, q)
	if err != nil {
		return nil, err
	}
	return mapSlice(records, adapters.MapStoreSensorToDomainSensor), nil
}

func (s *service) GetUnit(ctx context.Context, id int64) (domain.Unit, error) {
	u, err := s.store.GetUnit(ctx, id)
	if err != nil {
		return domain.Unit{}, err
	}
	return adapters.MapStoreUnitToDomainUnit(*u), nil
}

func (s *service) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	units, err := s.store.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	return mapSlice(units, adapters.MapStoreUnitToDomainUnit), nil
}

func (s *service) AddUnit(ctx context.Context, unit domain.Unit) error {
	if unit.Name == "" || unit.Symbol == "" {
		return domain.Errorf(domain.KindInvalidRequest, "unit needs a name and a symbol")
	}
	return s.store.AddUnit(ctx, adapters.MapDomainUnitToStoreUnit(unit))
}

func (s *service) AddSensor(ctx context.Context, sensor domain.Sensor) error {
	if sensor.Name == "" || sensor.SensorType == "" {
		return domain.Errorf(domain.KindInvalidRequest, "sensor needs a name and a type")
	}
	if _, err := s.GetUnit(ctx, sensor.Unit.ID); err != nil {
		return err
	}
	return s.store.AddSensor(ctx, adapters.MapDomainSensorToStoreSensor(sensor))
}

func (s *service) GetReadings(ctx context.Context, sensorID int64, r domain.TimeRange) ([]domain.Reading, error) {
	if !r.Start.Before(r.End) {
		return nil, domain.Errorf(domain.KindInvalidRequest, "time range start is not before end")
	}
	if _, err := s.store.GetSensor(ctx, sensorID); err != nil {
		return nil, err
	}
	readings, err := s.store.GetReadings(ctx, sensorID, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return mapSlice(readings, adapters.MapStoreReadingToDomainReading), nil
}

func (s *service) AddReadings(ctx context.Context, sensorID int64, readings []domain.Reading) error {
	if len(readings) == 0 {
		return domain.Errorf(domain.KindInvalidRequest, "no readings given")
	}
	if _, err := s.store.GetSensor(ctx, sensorID); err != nil {
		return err
	}

	records := make([]store.Reading, 0, len(readings))
	for i, r := range readings {
		if r.RecordedAt.IsZero() {
			return domain.Errorf(domain.KindInvalidRequest, "reading %d has no timestamp", i)
		}
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return domain.Errorf(domain.KindInvalidRequest, "reading %d has a non-finite value", i)
		}
		r.SensorID = sensorID
		records = append(records, adapters.MapDomainReadingToStoreReading(r))
	}

	start := time.Now()
	if err := s.store.AddReadings(ctx, records); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().
		Int64("sensor_id", sensorID).
		Int("readings", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("readings stored")
	return nil
}

func mapSlice[S, D any](in []S, fn func(S) D) []D {
	out := make([]D, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
