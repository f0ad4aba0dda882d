// Package config loads service settings and named database profiles.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	sqlstore "github.com/genesis-labs/genesis-api/pkg/store/sql"
	"github.com/spf13/viper"
)

const EnvPrefix = "GENESIS"

type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Database DatabaseSettings `mapstructure:"database"`
	Pipeline PipelineSettings `mapstructure:"pipeline"`
	Abot     AbotSettings     `mapstructure:"abot"`
}

type ServerSettings struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitSettings `mapstructure:"rate_limit"`
}

func (s ServerSettings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type RateLimitSettings struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type DatabaseSettings struct {
	// Profile names a section of the profiles file; it overrides Driver and DSN.
	Profile         string        `mapstructure:"profile"`
	ProfilesPath    string        `mapstructure:"profiles_path"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type PipelineSettings struct {
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	ExportTimeout time.Duration `mapstructure:"export_timeout"`
	RenderWorkers int           `mapstructure:"render_workers"`
	Timezone      string        `mapstructure:"timezone"`
	ChartWidth    int           `mapstructure:"chart_width"`
	ChartHeight   int           `mapstructure:"chart_height"`
}

func (p PipelineSettings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

type AbotSettings struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

func (a AbotSettings) Enabled() bool {
	return a.BaseURL != ""
}

var defaults = map[string]any{
	"server.host":                "0.0.0.0",
	"server.port":                8080,
	"server.shutdown_timeout":    "10s",
	"server.rate_limit.rps":      5.0,
	"server.rate_limit.burst":    10,
	"database.profile":           "",
	"database.profiles_path":     "",
	"database.driver":            string(domain.DialectSQLite),
	"database.dsn":               "file:genesis.db",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "30m",
	"pipeline.query_timeout":     "15s",
	"pipeline.render_timeout":    "10s",
	"pipeline.export_timeout":    "30s",
	"pipeline.render_workers":    runtime.NumCPU(),
	"pipeline.timezone":          "UTC",
	"pipeline.chart_width":       800,
	"pipeline.chart_height":      400,
	"abot.base_url":              "",
	"abot.token":                 "",
	"abot.timeout":               "30s",
	"abot.rps":                   0.0,
	"abot.burst":                 1,
}

// Load reads settings from path, when given, with GENESIS_* environment
// variables taking precedence (server.port is GENESIS_SERVER_PORT).
func Load(path string) (*Settings, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	var errs []error
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", s.Server.Port))
	}
	if s.Pipeline.RenderWorkers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.render_workers must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"pipeline.query_timeout":  s.Pipeline.QueryTimeout,
		"pipeline.render_timeout": s.Pipeline.RenderTimeout,
		"pipeline.export_timeout": s.Pipeline.ExportTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if _, err := s.Pipeline.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StoreSettings resolves the connection to open, reading the named profile
// from the profiles file when one is selected.
func (s *Settings) StoreSettings(ctx context.Context) (sqlstore.Settings, error) {
	db := s.Database
	out := sqlstore.Settings{
		Dialect:         domain.Dialect(strings.ToLower(db.Driver)),
		DSN:             db.DSN,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	}
	if db.Profile == "" {
		return out, nil
	}

	path := db.ProfilesPath
	if path == "" {
		path = DefaultProfilesPath()
	}
	registry, err := NewRegistry(path)
	if err != nil {
		return sqlstore.Settings{}, err
	}
	profile, err := registry.GetProfile(ctx, db.Profile)
	if err != nil {
		return sqlstore.Settings{}, err
	}
	out.Dialect = profile.Dialect
	out.DSN = profile.DSN
	return out, nil
}
