package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, "./data", cfg.Engine.DataDir)
	require.Equal(t, 8192, cfg.Engine.EventPerZone)
	require.Equal(t, 50_000, cfg.Engine.Flush.MemtableCapacity)
	require.Equal(t, "UTC", cfg.Time.Timezone)
}

func TestLoad_EmptyFallsBackToDefault(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoad_OverlaysProvidedFields(t *testing.T) {
	data := []byte(`{"engine":{"data_dir":"/var/sneldb","event_per_zone":4096},"logging":{"level":"warn"}}`)
	cfg, err := config.Load(data)
	require.NoError(t, err)

	require.Equal(t, "/var/sneldb", cfg.Engine.DataDir)
	require.Equal(t, 4096, cfg.Engine.EventPerZone)
	require.Equal(t, "warn", cfg.Logging.Level)
	// unset fields keep their default values.
	require.Equal(t, 50_000, cfg.Engine.Flush.MemtableCapacity)
}

func TestLoad_InvalidJSON(t *testing.T) {
	_, err := config.Load([]byte("{not json"))
	require.Error(t, err)
}

func TestLoadFile_MissingReturnsDefault(t *testing.T) {
	cfg, err := config.LoadFile("/nonexistent/path/sneldb.json")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}
