package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"gopkg.in/ini.v1"
)

const ProfilesFile = ".genesiscfg"

// Registry lists the named database connections of a profiles file:
//
//	[analytics]
//	driver = postgres
//	dsn    = postgres://report:secret@db:5432/genesis?sslmode=disable
type Registry interface {
	GetProfiles(ctx context.Context) ([]domain.ConfigProfile, error)
	GetProfile(ctx context.Context, name string) (domain.ConfigProfile, error)
}

type cfgRegistry struct {
	cfg *ini.File
}

// DefaultProfilesPath is $HOME/.genesiscfg.
func DefaultProfilesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ProfilesFile
	}
	return filepath.Join(home, ProfilesFile)
}

func NewRegistry(path string) (Registry, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles from %s: %w", path, err)
	}
	return &cfgRegistry{cfg: cfg}, nil
}

func (cr *cfgRegistry) GetProfiles(ctx context.Context) ([]domain.ConfigProfile, error) {
	var profiles []domain.ConfigProfile
	for _, section := range cr.cfg.Sections() {
		if len(section.Keys()) == 0 {
			continue
		}
		profile, err := cr.GetProfile(ctx, section.Name())
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (cr *cfgRegistry) GetProfile(_ context.Context, name string) (domain.ConfigProfile, error) {
	section, err := cr.cfg.GetSection(name)
	if err != nil || len(section.Keys()) == 0 {
		return domain.ConfigProfile{}, fmt.Errorf("profile %s not found", name)
	}

	driver := domain.Dialect(strings.ToLower(section.Key("driver").MustString(string(domain.DialectSQLite))))
	if driver != domain.DialectSQLite && driver != domain.DialectPostgres {
		return domain.ConfigProfile{}, fmt.Errorf("profile %s: unsupported driver %q", name, driver)
	}
	dsn := section.Key("dsn").String()
	if dsn == "" {
		return domain.ConfigProfile{}, fmt.Errorf("profile %s: dsn is required", name)
	}

	return domain.ConfigProfile{Name: name, Dialect: driver, DSN: dsn}, nil
}
