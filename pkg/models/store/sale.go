package store

import "time"

type Sale struct {
	ID       string
	SoldAt   time.Time
	Category string
	Product  string
	Region   string
	Units    float64
	Revenue  float64
	Refunded bool
}
