package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/run"
	"github.com/roach88/runcache/internal/store"
	"github.com/roach88/runcache/internal/testutil"
)

var cliBaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout and the command error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData unmarshals the data payload of a JSON CLIResponse.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// seedStore writes runs and expected configs straight into a new database.
func seedStore(t *testing.T, path string, runs []run.Run, configs ...run.ExpectedConfig) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	results, err := st.UpsertRuns(ctx, runs)
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	for _, ec := range configs {
		require.NoError(t, st.PutExpectedConfig(ctx, ec))
	}
}

func seedRun(node string, minute int, completed bool, seq int64, version string) run.Run {
	return testutil.Run(cliBaseTime, node, minute, completed, seq, version)
}
