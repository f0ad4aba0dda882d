package api

import "time"

type Unit struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type Sensor struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SensorType string `json:"sensor_type"`
	Location   string `json:"location,omitempty"`
	Unit       Unit   `json:"unit"`
}

type Reading struct {
	RecordedAt time.Time `json:"recorded_at"`
	Value      float64   `json:"value"`
}

type SensorData struct {
	Sensor   Sensor    `json:"sensor"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Readings []Reading `json:"readings"`
}
