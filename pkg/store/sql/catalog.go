package sql

import (
	"fmt"
	"sort"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

// Entity is a queryable table or view. Only entities and columns listed in
// the catalog can appear in generated SQL; no caller text is interpolated.
type Entity struct {
	Name       string
	Table      string
	TimeColumn string
	Columns    []domain.Column
	OrderBy    []string
}

func (e Entity) column(name string) (domain.Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return domain.Column{}, false
}

type Catalog struct {
	entities map[string]Entity
}

func NewCatalog(entities ...Entity) (*Catalog, error) {
	c := &Catalog{entities: make(map[string]Entity, len(entities))}
	for _, e := range entities {
		if _, exists := c.entities[e.Name]; exists {
			return nil, fmt.Errorf("entity %q is already registered", e.Name)
		}
		if e.TimeColumn != "" {
			if col, ok := e.column(e.TimeColumn); !ok || col.Type != domain.TypeTimestamp {
				return nil, fmt.Errorf("entity %q: time column %q must be a timestamp column", e.Name, e.TimeColumn)
			}
		}
		c.entities[e.Name] = e
	}
	return c, nil
}

func (c *Catalog) Entity(name string) (Entity, bool) {
	e, ok := c.entities[name]
	return e, ok
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entities))
	for n := range c.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog describes the tables created by the bundled migrations.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Entity{
			Name:       "sales",
			Table:      "sales",
			TimeColumn: "sold_at",
			Columns: []domain.Column{
				{Name: "id", Type: domain.TypeString},
				{Name: "sold_at", Type: domain.TypeTimestamp},
				{Name: "category", Type: domain.TypeString},
				{Name: "product", Type: domain.TypeString},
				{Name: "region", Type: domain.TypeString},
				{Name: "units", Type: domain.TypeNumber},
				{Name: "revenue", Type: domain.TypeNumber},
				{Name: "refunded", Type: domain.TypeBoolean},
			},
			OrderBy: []string{"sold_at", "id"},
		},
		Entity{
			Name:       "sensor_readings",
			Table:      "sensor_readings",
			TimeColumn: "recorded_at",
			Columns: []domain.Column{
				{Name: "sensor_id", Type: domain.TypeNumber},
				{Name: "recorded_at", Type: domain.TypeTimestamp},
				{Name: "value", Type: domain.TypeNumber},
			},
			OrderBy: []string{"recorded_at", "sensor_id"},
		},
		Entity{
			Name:  "sensor_catalog",
			Table: "sensor_catalog",
			Columns: []domain.Column{
				{Name: "sensor_id", Type: domain.TypeNumber},
				{Name: "sensor_name", Type: domain.TypeString},
				{Name: "sensor_type", Type: domain.TypeString},
				{Name: "location", Type: domain.TypeString},
				{Name: "unit_id", Type: domain.TypeNumber},
				{Name: "unit_name", Type: domain.TypeString},
				{Name: "unit_symbol", Type: domain.TypeString},
			},
			OrderBy: []string{"sensor_id"},
		},
		Entity{
			Name:  "units",
			Table: "units",
			Columns: []domain.Column{
				{Name: "id", Type: domain.TypeNumber},
				{Name: "name", Type: domain.TypeString},
				{Name: "symbol", Type: domain.TypeString},
			},
			OrderBy: []string{"id"},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}
