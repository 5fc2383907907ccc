package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/errs"
)

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/app"
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "oracle"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	cfg.Database.Driver = string(database.DriverMySQL)
	cfg.Database.URL = ""
	assert.True(t, errs.IsInvalidInput(cfg.Validate()))
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = string(database.DriverMySQL)
	cfg.Database.URL = "user:pass@tcp(localhost:3306)/app"
	cfg.Generate.Aggressive = true
	cfg.Generate.ModelsDir = "entities"

	db := cfg.DatabaseConfig()
	assert.Equal(t, database.DriverMySQL, db.Driver)
	assert.Equal(t, cfg.Database.URL, db.DSN)

	opts := cfg.EngineOptions()
	assert.True(t, opts.AggressiveNameScan)
	assert.Equal(t, "entities", opts.ModelsDir)
	assert.Empty(t, opts.DaoDir) // engine fills defaults itself
}

func TestWriteExample(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExample(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# minfold configuration"))
	assert.Contains(t, out, "driver: postgres")
	assert.Contains(t, out, "bucket: minfold-docs")
}
