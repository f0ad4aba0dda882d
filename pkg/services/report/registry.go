package report

import (
	"fmt"
	"sort"
	"sync"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

// Registry holds the report definitions the service can generate.
type Registry interface {
	// Register adds a definition under its type name
	Register(def Definition) error
	// Get returns the definition for reportType
	Get(reportType string) (Definition, error)
	// List returns the registered definitions ordered by type
	List() []Definition
}

type registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

func NewRegistry() Registry {
	return &registry{
		definitions: make(map[string]Definition),
	}
}

// DefaultRegistry returns a registry with every bundled report.
func DefaultRegistry() Registry {
	r := NewRegistry()
	for _, def := range []Definition{SalesSummary(), SensorReport(), AbotMetrics()} {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *registry) Register(def Definition) error {
	if def.Type == "" {
		return fmt.Errorf("report type cannot be empty")
	}
	if err := def.validate(); err != nil {
		return fmt.Errorf("report %q: %w", def.Type, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("report %q is already registered", def.Type)
	}

	r.definitions[def.Type] = def
	return nil
}

func (r *registry) Get(reportType string) (Definition, error) {
	r.mu.RLock()
	def, exists := r.definitions[reportType]
	r.mu.RUnlock()

	if !exists {
		return Definition{}, domain.Errorf(domain.KindNotFound, "report type %q is not registered", reportType)
	}
	return def, nil
}

func (r *registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}
