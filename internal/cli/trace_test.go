package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsched/internal/ir"
	"github.com/roach88/txsched/internal/store"
)

// addUnfinishedRun begins a run in the database without ending it.
func addUnfinishedRun(t *testing.T, dbPath, runID string) {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	d := ir.Design{
		Name:         "idle",
		Transactions: []ir.TransactionDecl{{Name: "t", Calls: []string{}}},
	}
	run := ir.Run{ID: runID, DesignName: d.Name, SchedulerVersion: ir.SchedulerVersion}
	require.NoError(t, st.BeginRun(context.Background(), run, d))
}

func TestTraceRequiresDB(t *testing.T) {
	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceMissingDatabase(t *testing.T) {
	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestTraceListRuns(t *testing.T) {
	dbPath := recordFetchRun(t, "done")
	addUnfinishedRun(t, dbPath, "open")

	output, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, output, "3 cycle(s)  finished")
	assert.Contains(t, output, "0 cycle(s)  unfinished")
}

func TestTraceListUnfinished(t *testing.T) {
	dbPath := recordFetchRun(t, "done")
	addUnfinishedRun(t, dbPath, "open")

	output, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--unfinished")
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   []ir.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "open", resp.Data[0].ID)
	assert.False(t, resp.Data[0].Finished)
}

func TestTraceListEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	output, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "No runs found")
}

func TestTraceRun(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	output, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-1")
	require.NoError(t, err)

	assert.Contains(t, output, "Run: run-1")
	assert.Contains(t, output, "Design: fetch (")
	assert.Contains(t, output, "Scheduler: "+ir.SchedulerVersion)
	assert.NotContains(t, output, "Status: unfinished")
	assert.Contains(t, output, "[cycle 2] ready [fetch, flush]\n  fired [flush]")
	assert.Contains(t, output, `flush.redirect({"pc":64}) -> {}`)
	assert.Contains(t, output, `flush.icache_read({}) -> {"hit":false}`)
	assert.Contains(t, output, "Summary: 3 cycle(s), 4 method call(s)")
	assert.Contains(t, output, "fetch: fired 2, blocked 1")
	assert.Contains(t, output, "flush: fired 1, blocked 0")
}

func TestTraceRunJSON(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	output, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "run-1")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.True(t, resp.Data.Run.Finished)
	require.Len(t, resp.Data.Cycles, 3)
	assert.Equal(t, 3, resp.Data.Stats.Cycles)
	assert.Equal(t, map[string]int{"fetch": 2, "flush": 1}, resp.Data.Stats.Fires)
}

func TestTraceSingleCycle(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	output, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-1", "--cycle", "3")
	require.NoError(t, err)

	assert.Contains(t, output, "[cycle 3] ready [fetch]")
	assert.NotContains(t, output, "[cycle 1]")
	assert.NotContains(t, output, "[cycle 2]")
	assert.Contains(t, output, "Summary: 1 cycle(s), 1 method call(s)")
}

func TestTraceCycleNotRecorded(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-1", "--cycle", "9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cycle 9 not recorded")
}

func TestTraceMermaidOverlay(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	output, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-1", "--cycle", "2", "--mermaid")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(output, "graph LR\n"))
	assert.Contains(t, output, "class tx_flush fired;")
	assert.Contains(t, output, "class tx_fetch blocked;")
}

func TestTraceMermaidRequiresCycle(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-1", "--mermaid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--mermaid requires --cycle")
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := recordFetchRun(t, "run-1")

	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: nope")
}
