package domain

import "time"

type Unit struct {
	ID     int64
	Name   string
	Symbol string
}

type Sensor struct {
	ID         int64
	Name       string
	SensorType string
	Location   string
	Unit       Unit
}

type SensorQuery struct {
	SensorType string
	Name       string
	Location   string
}

type Reading struct {
	SensorID   int64
	RecordedAt time.Time
	Value      float64
}
