package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"pmtiles-api/internal/artifact"
	"pmtiles-api/internal/boundary/boundarytest"
	"pmtiles-api/internal/config"
	"pmtiles-api/internal/reconcile"
	"pmtiles-api/internal/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopRunner stands in for the extract tool and writes a placeholder archive.
type noopRunner struct{ calls int }

func (n *noopRunner) Run(_ context.Context, _ string, args ...string) (runner.Result, error) {
	n.calls++
	return runner.Result{}, os.WriteFile(args[2], []byte("tiles"), 0o644)
}

func testConfig(t *testing.T, dbPath string) config.Config {
	return config.Config{
		AssetsDir:            t.TempDir(),
		BoundaryDriver:       "sqlite",
		BoundaryDBPath:       dbPath,
		ExtractCmd:           "pmtiles",
		ExtractConcurrency:   2,
		ReconcileConcurrency: 4,
		SourceArchiveURL:     "https://example.test/planet.pmtiles",
	}
}

func TestPrepareBoundaryEnsuresIndexes(t *testing.T) {
	path := boundarytest.Path(t, boundarytest.Locality(1, "US", "Austin", 30.3, -97.7))
	c := testConfig(t, path)
	c.BoundaryEnsureIndexes = true
	require.NoError(t, PrepareBoundary(context.Background(), c))

	st, err := OpenStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close()
	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_spr_%'`).Scan(&n))
	assert.Positive(t, n)
}

func TestPrepareBoundaryUnsupportedDriver(t *testing.T) {
	c := testConfig(t, "")
	c.BoundaryDriver = "oracle"
	assert.Error(t, PrepareBoundary(context.Background(), c))
}

func TestOpenStoreMissingFile(t *testing.T) {
	_, err := OpenStore(context.Background(), testConfig(t, filepath.Join(t.TempDir(), "missing.db")))
	assert.Error(t, err)
}

func TestEngineExtractsMissingArtifacts(t *testing.T) {
	path := boundarytest.Path(t,
		boundarytest.Locality(1, "US", "Austin", 30.3, -97.7),
		boundarytest.Locality(2, "US", "Boston", 42.3, -71.0),
	)
	c := testConfig(t, path)
	st, err := OpenStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close()

	dir := artifact.New(c.AssetsDir)
	d, err := dir.EnsureCountryDir("US")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(d, "1.pmtiles"), []byte("x"), 0o644))

	r := &noopRunner{}
	var report bytes.Buffer
	out, err := NewEngine(c, st, dir, r, reconcile.Static(true), &report).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reconcile.PhaseDone, out.Phase)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 1, out.Summary.Skipped)
	assert.Equal(t, 1, out.Summary.Succeeded)
	assert.Equal(t, 1, r.calls)
	assert.Contains(t, report.String(), "US")
}
