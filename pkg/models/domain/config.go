package domain

import "fmt"

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ConfigProfile is a named database connection read from the profiles file.
type ConfigProfile struct {
	Name    string
	Dialect Dialect
	DSN     string
}

func (c ConfigProfile) String() string {
	return fmt.Sprintf("%s:%s", c.Dialect, c.Name)
}
