package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ZENOH_ROUTER", "10.0.0.5:7447")
	t.Setenv("PARTITIONNER_PORT", "9001")
	t.Setenv("STEP_INTERVAL_MS", "50")
	t.Setenv("REGION_WIDTH", "200")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:7447", cfg.TransportAddr)
	require.Equal(t, 9001, cfg.PartitionnerPort)
	require.Equal(t, 50*time.Millisecond, cfg.StepInterval)
	require.Equal(t, int64(200), cfg.RegionWidth)
}

func TestLoadRejectsNonPositiveRegionWidth(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGION_WIDTH", "0")
	_, err := Load()
	require.Error(t, err)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ZENOH_ROUTER", "PARTITIONNER_ADDR", "PARTITIONNER_PORT", "RUNNER_EXE",
		"PRIV_NET_INT", "STEP_INTERVAL_MS", "REGION_WIDTH", "SENDBACK_DELAY_LIMIT", "HTTP_ADDR",
	} {
		os.Unsetenv(k)
	}
}
