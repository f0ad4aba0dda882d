package adapters

import (
	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/models/store"
)

func MapStoreSensorToDomainSensor(rec store.SensorRecord) domain.Sensor {
	return domain.Sensor{
		ID:         rec.ID,
		Name:       rec.Name,
		SensorType: rec.SensorType,
		Location:   rec.Location,
		Unit: domain.Unit{
			ID:     rec.UnitID,
			Name:   rec.UnitName,
			Symbol: rec.UnitSymbol,
		},
	}
}

func MapDomainSensorToStoreSensor(s domain.Sensor) store.SensorRecord {
	return store.SensorRecord{
		ID:         s.ID,
		Name:       s.Name,
		SensorType: s.SensorType,
		Location:   s.Location,
		UnitID:     s.Unit.ID,
		UnitName:   s.Unit.Name,
		UnitSymbol: s.Unit.Symbol,
	}
}

func MapStoreUnitToDomainUnit(u store.Unit) domain.Unit {
	return domain.Unit{ID: u.ID, Name: u.Name, Symbol: u.Symbol}
}

func MapDomainUnitToStoreUnit(u domain.Unit) store.Unit {
	return store.Unit{ID: u.ID, Name: u.Name, Symbol: u.Symbol}
}

func MapStoreReadingToDomainReading(r store.Reading) domain.Reading {
	return domain.Reading{SensorID: r.SensorID, RecordedAt: r.RecordedAt, Value: r.Value}
}

func MapDomainReadingToStoreReading(r domain.Reading) store.Reading {
	return store.Reading{SensorID: r.SensorID, RecordedAt: r.RecordedAt.UTC(), Value: r.Value}
}

func MapDomainSensorToAPISensor(s domain.Sensor) api.Sensor {
	return api.Sensor{
		ID:         s.ID,
		Name:       s.Name,
		SensorType: s.SensorType,
		Location:   s.Location,
		Unit:       MapDomainUnitToAPIUnit(s.Unit),
	}
}

func MapDomainUnitToAPIUnit(u domain.Unit) api.Unit {
	return api.Unit{ID: u.ID, Name: u.Name, Symbol: u.Symbol}
}

func MapDomainReadingToAPIReading(r domain.Reading) api.Reading {
	return api.Reading{RecordedAt: r.RecordedAt, Value: r.Value}
}

func MapAPIReadingToDomainReading(sensorID int64, r api.Reading) domain.Reading {
	return domain.Reading{SensorID: sensorID, RecordedAt: r.RecordedAt, Value: r.Value}
}
