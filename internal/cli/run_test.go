package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/journal"
)

func TestRunCommand_Text(t *testing.T) {
	out, _, err := execute(t, "run", scenarioPath("run_while_horse.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario: run_while_horse (session session-horse)")
	assert.Contains(t, out, "[1] increment {val1=1 val2=0}")
	assert.Contains(t, out, "[25] increment {val1=25 val2=0}")
	assert.Contains(t, out, "resolved: true")
	assert.Contains(t, out, "state: {val1=20 val2=0}")
	assert.Contains(t, out, "violations: horse")
	assert.Contains(t, out, "Final: {val1=25 val2=0}")
	assert.Contains(t, out, "✓ Scenario passed")
}

func TestRunCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "run", "--format", "json", scenarioPath("reactor_parity.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "reactor_even_values", resp.Data.Scenario)
	require.NotNil(t, resp.Data.Result)
	assert.True(t, resp.Data.Result.Pass)
	assert.Equal(t, 3, resp.Data.Result.Outcome.Reactions)
	assert.Equal(t, []any{float64(2), float64(4), float64(6)}, resp.Data.Result.Outcome.Args)
	assert.Len(t, resp.Data.Result.Trace, 7)
}

func TestRunCommand_FailedExpectations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: wrong
description: "Expects the wrong count"
initial: {val: 0}
watch:
  kind: observe_and_run
  when: "cur.val > prev.val"
steps:
  - action: increment
    repeat: 2
expect:
  reactions: 5
`), 0644))

	out, _, err := execute(t, "run", "--format", "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
	assert.NotNil(t, resp.Data)
}

func TestRunCommand_MissingScenario(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunCommand_CompileError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
description: "Duplicate tags"
watch:
  kind: run_while
  invariants:
    - {tag: a, holds: "true"}
    - {tag: a, holds: "true"}
steps: [{action: noop}]
`), 0644))

	_, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "DUPLICATE_TAG")
}

func TestRunCommand_WithJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "vigil.db")

	_, _, err := execute(t, "run", "--db", db, scenarioPath("observe_until.yaml"))
	require.NoError(t, err)
	_, _, err = execute(t, "run", "--db", db, scenarioPath("run_while_multi.yaml"))
	require.NoError(t, err)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), last)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "session-observe-until", sessions[0].ID)
	assert.Equal(t, "session-multi", sessions[1].ID)
	assert.Equal(t, []string{"val1_cap", "val2_cap"}, sessions[1].Violations)
}

func TestRunCommand_SameScenarioTwiceKeepsBothSessions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "vigil.db")
	for range 2 {
		_, _, err := execute(t, "run", "--db", db, scenarioPath("run_while_horse.yaml"))
		require.NoError(t, err)
	}

	out, _, err := execute(t, "trace", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(50), resp.Data.Stats.LastSeq)
	require.Len(t, resp.Data.Sessions, 2)
	assert.Equal(t, "session-horse", resp.Data.Sessions[0].ID)
	assert.NotEqual(t, "session-horse", resp.Data.Sessions[1].ID)
	assert.Equal(t, 2, resp.Data.Stats.Violated)
}

func TestRunCommand_Metrics(t *testing.T) {
	out, _, err := execute(t, "run", "--metrics", "--format", "json", scenarioPath("run_while_horse.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.GreaterOrEqual(t, resp.Data.Metrics[`vigil_sessions_total{kind="run_while",outcome="violated"}`], float64(1))
	assert.GreaterOrEqual(t, resp.Data.Metrics[`vigil_invariant_violations_total{tag="horse"}`], float64(1))
}

func TestEngineMetrics_FiltersForeignFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	ours := prometheus.NewCounter(prometheus.CounterOpts{Name: "vigil_test_total", Help: "test"})
	theirs := prometheus.NewGauge(prometheus.GaugeOpts{Name: "other_gauge", Help: "test"})
	reg.MustRegister(ours, theirs)
	ours.Add(3)
	theirs.Set(7)

	metrics, err := engineMetrics(reg)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"vigil_test_total": 3}, metrics)
}

func TestFormatState(t *testing.T) {
	assert.Equal(t, "{a=1 b=x}", formatState(map[string]any{"b": "x", "a": 1}))
	assert.Equal(t, "{}", formatState(nil))
}
