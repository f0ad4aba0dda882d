package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write test file")
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// When
	s, err := Load("")

	// Then
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", s.Server.Addr())
	assert.Equal(t, 10*time.Second, s.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, s.Pipeline.QueryTimeout)
	assert.Equal(t, 10*time.Second, s.Pipeline.RenderTimeout)
	assert.Equal(t, 30*time.Second, s.Pipeline.ExportTimeout)
	assert.Positive(t, s.Pipeline.RenderWorkers)
	assert.Equal(t, "sqlite", s.Database.Driver)
	assert.False(t, s.Abot.Enabled())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	// Given
	path := writeFile(t, "genesis.yaml", `server:
  port: 9000
  rate_limit:
    rps: 2
pipeline:
  query_timeout: 5s
  timezone: Europe/Berlin
abot:
  base_url: http://abot:8081
`)
	t.Setenv("GENESIS_SERVER_PORT", "9100")
	t.Setenv("GENESIS_PIPELINE_RENDER_WORKERS", "3")

	// When
	s, err := Load(path)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 9100, s.Server.Port, "environment wins over the file")
	assert.Equal(t, 2.0, s.Server.RateLimit.RPS)
	assert.Equal(t, 10, s.Server.RateLimit.Burst)
	assert.Equal(t, 5*time.Second, s.Pipeline.QueryTimeout)
	assert.Equal(t, 3, s.Pipeline.RenderWorkers)
	assert.True(t, s.Abot.Enabled())

	loc, err := s.Pipeline.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{name: "Port", content: "server:\n  port: 70000\n", message: "server.port 70000 is out of range"},
		{name: "Timeout", content: "pipeline:\n  export_timeout: 0s\n", message: "pipeline.export_timeout must be positive"},
		{name: "Timezone", content: "pipeline:\n  timezone: Mars/Olympus\n", message: `invalid pipeline timezone "Mars/Olympus"`},
		{name: "Syntax", content: "server: [port\n", message: "failed to read config file"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "genesis.yaml", tc.content))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

const profiles = `[local]
driver = sqlite
dsn = file:local.db

[analytics]
driver = postgres
dsn = postgres://report@db:5432/genesis?sslmode=disable

[broken]
driver = oracle
dsn = x
`

func TestRegistry_GetProfiles(t *testing.T) {
	// Given
	registry, err := NewRegistry(writeFile(t, ProfilesFile, profiles))
	require.NoError(t, err)

	// When
	analytics, err := registry.GetProfile(context.Background(), "analytics")

	// Then
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigProfile{
		Name:    "analytics",
		Dialect: domain.DialectPostgres,
		DSN:     "postgres://report@db:5432/genesis?sslmode=disable",
	}, analytics)

	_, err = registry.GetProfile(context.Background(), "missing")
	assert.EqualError(t, err, "profile missing not found")

	_, err = registry.GetProfiles(context.Background())
	assert.EqualError(t, err, `profile broken: unsupported driver "oracle"`)
}

func TestSettings_StoreSettings(t *testing.T) {
	path := writeFile(t, ProfilesFile, profiles)

	t.Run("ProfileOverridesDriver", func(t *testing.T) {
		// Given
		t.Setenv("GENESIS_DATABASE_PROFILE", "analytics")
		t.Setenv("GENESIS_DATABASE_PROFILES_PATH", path)
		s, err := Load("")
		require.NoError(t, err)

		// When
		out, err := s.StoreSettings(context.Background())

		// Then
		require.NoError(t, err)
		assert.Equal(t, domain.DialectPostgres, out.Dialect)
		assert.Equal(t, "postgres://report@db:5432/genesis?sslmode=disable", out.DSN)
		assert.Equal(t, 10, out.MaxOpenConns)
		assert.Equal(t, 30*time.Minute, out.ConnMaxLifetime)
	})

	t.Run("NoProfile", func(t *testing.T) {
		s, err := Load("")
		require.NoError(t, err)

		out, err := s.StoreSettings(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.DialectSQLite, out.Dialect)
		assert.Equal(t, "file:genesis.db", out.DSN)
	})
}
