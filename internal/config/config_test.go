package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, config.WeightingNone, cfg.Pipeline.WeightingMode)
	require.Equal(t, 10.0, cfg.Pipeline.SeedsPerVoxel)
	require.True(t, cfg.Pipeline.HasSessions)
	require.True(t, cfg.Pipeline.FrameCheck)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig(), cfg)

	cfg, err = config.LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectome.yaml")
	doc := `
pipeline:
  has_sessions: false
  weighting_mode: commit
  seeds_per_voxel: 4
  workers: 2
layout:
  dwi_dir: diffusion
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.False(t, cfg.Pipeline.HasSessions)
	require.Equal(t, config.WeightingCommit, cfg.Pipeline.WeightingMode)
	require.Equal(t, 4.0, cfg.Pipeline.SeedsPerVoxel)
	require.Equal(t, 2, cfg.Pipeline.Workers)
	require.Equal(t, "diffusion", cfg.Layout.DWIDir)
	require.Equal(t, "parc", cfg.Layout.ParcDir)
	require.Equal(t, "json", cfg.Logging.Format)
	require.True(t, cfg.Pipeline.Normalize)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [1, 2"), 0o644))

	_, err := config.LoadConfig(path)
	require.Error(t, err)
}

func TestSaveLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "connectome.yaml")
	cfg := config.DefaultConfig()
	cfg.Neo4j.Enabled = true
	cfg.Metrics.Textfile = "/var/lib/node_exporter/connectome.prom"

	require.NoError(t, config.SaveConfig(cfg, path))
	got, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.WeightingMode = "sift2"
	cfg.Pipeline.SeedsPerVoxel = -1
	cfg.Pipeline.Concurrency = 0
	cfg.Logging.Level = "trace"
	cfg.Neo4j.Enabled = true
	cfg.Neo4j.URI = ""

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrInvalid)
	for _, want := range []string{"weighting_mode", "seeds_per_voxel", "concurrency", "logging.level", "neo4j.uri"} {
		require.Contains(t, err.Error(), want)
	}
}
