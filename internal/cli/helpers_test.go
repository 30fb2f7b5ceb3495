package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const fetchDesign = `
package fetch

design: "fetch"

// Redirect the program counter after a mispredict.
method: redirect: input: pc: "int"

// Shared instruction cache read port.
method: icache_read: output: hit: "bool"

transaction: fetch: calls: ["icache_read"]
transaction: flush: calls: ["redirect", "icache_read"]

relation: [
	{kind: "priority", a: "flush", b: "fetch"},
]
`

const fetchStimulus = `
cycles:
  - ready: [fetch]
  - ready: ["*"]
    args:
      flush:
        redirect: {pc: 64}
  - ready: ["*"]
    methods_not_ready: [redirect]
`

// writeDesignDir writes src as design.cue in a fresh directory.
func writeDesignDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "design.cue"), []byte(src), 0644))
	return dir
}

// writeFile writes content to name in dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// recordFetchRun simulates the fetch design with its stimulus into a new
// database and returns the database path.
func recordFetchRun(t *testing.T, runID string) string {
	t.Helper()
	dir := writeDesignDir(t, fetchDesign)
	stim := writeFile(t, t.TempDir(), "stim.yaml", fetchStimulus)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cmd := NewRunCommand(&RootOptions{Format: "text"})
	_, err := execute(cmd, dir, "--stimulus", stim, "--db", dbPath, "--run-id", runID)
	require.NoError(t, err)
	return dbPath
}
