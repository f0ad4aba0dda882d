package store

import "time"

type Unit struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Symbol string `db:"symbol"`
}

// SensorRecord is a row of the sensor_catalog view.
type SensorRecord struct {
	ID         int64  `db:"sensor_id"`
	Name       string `db:"sensor_name"`
	SensorType string `db:"sensor_type"`
	Location   string `db:"location"`
	UnitID     int64  `db:"unit_id"`
	UnitName   string `db:"unit_name"`
	UnitSymbol string `db:"unit_symbol"`
}

type Reading struct {
	SensorID   int64
	RecordedAt time.Time
	Value      float64
}
