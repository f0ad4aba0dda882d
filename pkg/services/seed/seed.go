// Package seed fills an empty database with deterministic demo data.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/models/store"
	"github.com/genesis-labs/genesis-api/pkg/services/sensors"
	"github.com/genesis-labs/genesis-api/pkg/store/sales"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// saleNamespace derives stable sale ids, so equal options give equal rows.
var saleNamespace = uuid.MustParse("9b2f3c1e-5d4a-4e8b-a7c6-2f1d0e9b8a71")

type Options struct {
	Start       time.Time
	Days        int
	SalesPerDay int
	Seed        int64
}

// DefaultOptions covers the 90 days before the first of the current month.
func DefaultOptions(now time.Time) Options {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Options{
		Start:       first.AddDate(0, 0, -90),
		Days:        90,
		SalesPerDay: 40,
		Seed:        1,
	}
}

type Summary struct {
	Units    int
	Sensors  int
	Readings int
	Sales    int
}

type category struct {
	name     string
	products []string
	price    float64
}

var (
	categories = []category{
		{name: "books", products: []string{"novel", "atlas"}, price: 18},
		{name: "electronics", products: []string{"headphones", "charger"}, price: 65},
		{name: "garden", products: []string{"shovel", "seeds"}, price: 24},
		{name: "toys", products: []string{"puzzle", "kite"}, price: 15},
	}
	regions = []string{"north", "south", "east", "west"}

	units = []domain.Unit{
		{ID: 1, Name: "celsius", Symbol: "°C"},
		{ID: 2, Name: "percent", Symbol: "%"},
		{ID: 3, Name: "hectopascal", Symbol: "hPa"},
	}
)

type sensorProfile struct {
	sensor    domain.Sensor
	base      float64
	amplitude float64
}

var profiles = []sensorProfile{
	{sensor: domain.Sensor{ID: 1, Name: "greenhouse-temperature", SensorType: "temperature", Location: "greenhouse", Unit: units[0]}, base: 22, amplitude: 4},
	{sensor: domain.Sensor{ID: 2, Name: "greenhouse-humidity", SensorType: "humidity", Location: "greenhouse", Unit: units[1]}, base: 65, amplitude: 10},
	{sensor: domain.Sensor{ID: 3, Name: "roof-pressure", SensorType: "pressure", Location: "roof", Unit: units[2]}, base: 1013, amplitude: 2},
	{sensor: domain.Sensor{ID: 4, Name: "cellar-temperature", SensorType: "temperature", Location: "cellar", Unit: units[0]}, base: 11, amplitude: 0.5},
}

type Seeder struct {
	sales   sales.Store
	sensors sensors.Service
}

func NewSeeder(salesStore sales.Store, sensorSvc sensors.Service) (*Seeder, error) {
	if salesStore == nil || sensorSvc == nil {
		return nil, fmt.Errorf("seeder needs a sales store and a sensor service")
	}
	return &Seeder{sales: salesStore, sensors: sensorSvc}, nil
}

// Run writes units, sensors, hourly readings and sales. It refuses to touch
// a database that already holds sales.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Days <= 0 {
		return Summary{}, fmt.Errorf("days must be positive")
	}
	existing, err := s.sales.Count(ctx)
	if err != nil {
		return Summary{}, err
	}
	if existing > 0 {
		return Summary{}, fmt.Errorf("database already holds %d sales", existing)
	}

	rnd := rand.New(rand.NewSource(opts.Seed))
	start := opts.Start.UTC().Truncate(time.Hour)
	var summary Summary

	for _, u := range units {
		if err := s.sensors.AddUnit(ctx, u); err != nil {
			return summary, fmt.Errorf("failed to add unit %s: %w", u.Name, err)
		}
		summary.Units++
	}

	for _, p := range profiles {
		if err := s.sensors.AddSensor(ctx, p.sensor); err != nil {
			return summary, fmt.Errorf("failed to add sensor %s: %w", p.sensor.Name, err)
		}
		summary.Sensors++

		readings := make([]domain.Reading, 0, opts.Days*24)
		for h := 0; h < opts.Days*24; h++ {
			phase := 2 * math.Pi * float64(h%24) / 24
			value := p.base + p.amplitude*math.Sin(phase-math.Pi/2) + rnd.NormFloat64()*p.amplitude/10
			readings = append(readings, domain.Reading{
				RecordedAt: start.Add(time.Duration(h) * time.Hour),
				Value:      math.Round(value*100) / 100,
			})
		}
		if err := s.sensors.AddReadings(ctx, p.sensor.ID, readings); err != nil {
			return summary, fmt.Errorf("failed to add readings for %s: %w", p.sensor.Name, err)
		}
		summary.Readings += len(readings)
	}

	records := make([]store.Sale, 0, opts.Days*opts.SalesPerDay)
	for d := 0; d < opts.Days; d++ {
		day := start.AddDate(0, 0, d)
		for i := 0; i < opts.SalesPerDay; i++ {
			c := categories[rnd.Intn(len(categories))]
			qty := float64(1 + rnd.Intn(5))
			price := c.price * (0.8 + 0.4*rnd.Float64())
			n := len(records)
			records = append(records, store.Sale{
				ID:       uuid.NewSHA1(saleNamespace, []byte(fmt.Sprintf("%d/%d", opts.Seed, n))).String(),
				SoldAt:   day.Add(time.Duration(rnd.Intn(24*60)) * time.Minute),
				Category: c.name,
				Product:  c.products[rnd.Intn(len(c.products))],
				Region:   regions[rnd.Intn(len(regions))],
				Units:    qty,
				Revenue:  math.Round(qty*price*100) / 100,
				Refunded: rnd.Float64() < 0.03,
			})
		}
	}
	if err := s.sales.Add(ctx, records); err != nil {
		return summary, fmt.Errorf("failed to add sales: %w", err)
	}
	summary.Sales = len(records)

	zerolog.Ctx(ctx).Info().
		Int("sensors", summary.Sensors).
		Int("readings", summary.Readings).
		Int("sales", summary.Sales).
		Time("start", start).
		Msg("demo data seeded")
	return summary, nil
}
