package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/run"
)

func TestStatsJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runcache.db")
	seedStore(t, dbPath, []run.Run{seedRun("web-1", 0, true, 1, "")})

	out, err := execute(NewStatsCommand(&RootOptions{Format: "json"}), "--db", dbPath, "web-1", "web-2")
	require.NoError(t, err)

	var result StatsResult
	decodeData(t, out, &result)
	assert.Equal(t, []string{"web-1", "web-2"}, result.Nodes)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, 2, result.CacheEntries)

	values := map[string]float64{}
	for _, s := range result.Metrics {
		values[s.Name] = s.Value
	}
	assert.Equal(t, 2.0, values[`runcache_cache_lookups_total{result="miss"}`])
	assert.Equal(t, 2.0, values[`runcache_cache_lookups_total{result="hit"}`])
	assert.Equal(t, 1.0, values[`runcache_store_reads_total{status="ok"}`])
	assert.Equal(t, 2.0, values["runcache_cache_entries"])
}

func TestStatsRounds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runcache.db")

	out, err := execute(NewStatsCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--rounds", "4", "web-1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 node(s) cached after 4 round(s)")
	assert.Regexp(t, `runcache_cache_lookups_total\{result="hit"\}\s+3\n`, out)
	assert.Regexp(t, `runcache_cache_lookups_total\{result="miss"\}\s+1\n`, out)
}

func TestStatsInvalidRounds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runcache.db")

	_, err := execute(NewStatsCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--rounds", "0", "web-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--rounds must be positive")
}
