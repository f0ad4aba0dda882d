package sensors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/models/store"
	sqlstore "github.com/genesis-labs/genesis-api/pkg/store/sql"
)

// Store reads the sensor catalogue and reads/writes sensor readings.
type Store interface {
	GetSensor(ctx context.Context, id int64) (*store.SensorRecord, error)
	ListSensors(ctx context.Context) ([]store.SensorRecord, error)
	FindSensors(ctx context.Context, q domain.SensorQuery) ([]store.SensorRecord, error)
	GetUnit(ctx context.Context, id int64) (*store.Unit, error)
	ListUnits(ctx context.Context) ([]store.Unit, error)
	AddUnit(ctx context.Context, unit store.Unit) error
	AddSensor(ctx context.Context, sensor store.SensorRecord) error
	AddReadings(ctx context.Context, readings []store.Reading) error
	GetReadings(ctx context.Context, sensorID int64, from, to time.Time) ([]store.Reading, error)
}

type sensorStore struct {
	db     *sqlstore.DB
	source *sqlstore.Store
}

func NewStore(db *sqlstore.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	source, err := sqlstore.NewStore(db, nil)
	if err != nil {
		return nil, err
	}
	return &sensorStore{db: db, source: source}, nil
}

const catalogColumns = `sensor_id, sensor_name, sensor_type, location, unit_id, unit_name, unit_symbol`

func (s *sensorStore) GetSensor(ctx context.Context, id int64) (*store.SensorRecord, error) {
	var rec store.SensorRecord
	err := s.db.Get(ctx, &rec, `SELECT `+catalogColumns+` FROM sensor_catalog WHERE sensor_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "sensor of id %d does not exist", id)
	}
	if err != nil {
		return nil, s.db.Classify(err, "get sensor %d", id)
	}
	return &rec, nil
}

func (s *sensorStore) ListSensors(ctx context.Context) ([]store.SensorRecord, error) {
	return s.FindSensors(ctx, domain.SensorQuery{})
}

func (s *sensorStore) FindSensors(ctx context.Context, q domain.SensorQuery) ([]store.SensorRecord, error) {
	query := `SELECT ` + catalogColumns + ` FROM sensor_catalog WHERE 1 = 1`
	var args []any
	if q.SensorType != "" {
		query += ` AND sensor_type = ?`
		args = append(args, q.SensorType)
	}
	if q.Name != "" {
		query += ` AND sensor_name = ?`
		args = append(args, q.Name)
	}
	if q.Location != "" {
		query += ` AND location = ?`
		args = append(args, q.Location)
	}
	query += ` ORDER BY sensor_id`

	records := make([]store.SensorRecord, 0)
	if err := s.db.Select(ctx, &records, query, args...); err != nil {
		return nil, s.db.Classify(err, "find sensors")
	}
	return records, nil
}

func (s *sensorStore) GetUnit(ctx context.Context, id int64) (*store.Unit, error) {
	var u store.Unit
	err := s.db.Get(ctx, &u, `SELECT id, name, symbol FROM units WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "unit of id %d does not exist", id)
	}
	if err != nil {
		return nil, s.db.Classify(err, "get unit %d", id)
	}
	return &u, nil
}

func (s *sensorStore) ListUnits(ctx context.Context) ([]store.Unit, error) {
	units := make([]store.Unit, 0)
	if err := s.db.Select(ctx, &units, `SELECT id, name, symbol FROM units ORDER BY id`); err != nil {
		return nil, s.db.Classify(err, "list units")
	}
	return units, nil
}

func (s *sensorStore) AddUnit(ctx context.Context, unit store.Unit) error {
	err := s.db.Exec(ctx, `INSERT INTO units (id, name, symbol) VALUES (?, ?, ?)`, unit.ID, unit.Name, unit.Symbol)
	if err != nil {
		return s.db.Classify(err, "insert unit %d", unit.ID)
	}
	return nil
}

func (s *sensorStore) AddSensor(ctx context.Context, sensor store.SensorRecord) error {
	err := s.db.Exec(ctx,
		`INSERT INTO sensors (id, name, sensor_type, location, unit_id) VALUES (?, ?, ?, ?, ?)`,
		sensor.ID, sensor.Name, sensor.SensorType, sensor.Location, sensor.UnitID,
	)
	if err != nil {
		return s.db.Classify(err, "insert sensor %d", sensor.ID)
	}
	return nil
}

// AddReadings inserts all readings atomically; a transaction already on ctx
// is joined instead of starting a new one.
func (s *sensorStore) AddReadings(ctx context.Context, readings []store.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	insert := func(ctx context.Context) error {
		for _, r := range readings {
			err := s.db.Exec(ctx,
				`INSERT INTO sensor_readings (sensor_id, recorded_at, value) VALUES (?, ?, ?)`,
				r.SensorID, s.db.Dialect().BindTime(r.RecordedAt), r.Value,
			)
			if err != nil {
				return s.db.Classify(err, "insert reading for sensor %d", r.SensorID)
			}
		}
		return nil
	}
	if sqlstore.GetTransaction(ctx) != nil {
		return insert(ctx)
	}
	return s.db.InTx(ctx, insert)
}

func (s *sensorStore) GetReadings(ctx context.Context, sensorID int64, from, to time.Time) ([]store.Reading, error) {
	rs, err := s.source.Query(ctx, domain.QueryDescriptor{
		Entity:     "sensor_readings",
		Predicates: []domain.Predicate{domain.Eq("sensor_id", float64(sensorID))},
		Range:      &domain.TimeRange{Start: from, End: to},
	})
	if err != nil {
		return nil, err
	}
	readings := make([]store.Reading, 0, rs.Len())
	for i := 0; i < rs.Len(); i++ {
		at, _ := rs.Value(i, "recorded_at").(time.Time)
		value, _ := rs.Value(i, "value").(float64)
		readings = append(readings, store.Reading{
			SensorID:   sensorID,
			RecordedAt: at,
			Value:      value,
		})
	}
	return readings, nil
}
