package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/engine"
	"github.com/roach88/vigil/internal/journal"
	"github.com/roach88/vigil/internal/testutil"
)

func loadTestdata(t *testing.T, file string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", file))
	require.NoError(t, err)
	return scenario
}

func mustParse(t *testing.T, data string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)
	return scenario
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestdata(t, "reactor_parity.yaml")

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		assert.Equal(t, first.Trace, again.Trace)
		assert.Equal(t, first.Outcome, again.Outcome)
	}
}

func TestRun_TraceCoversEveryStep(t *testing.T) {
	result, err := Run(context.Background(), loadTestdata(t, "run_while_horse.yaml"))
	require.NoError(t, err)

	// Steps keep running after the watch has ended.
	require.Len(t, result.Trace, 25)
	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq)
		assert.Equal(t, ActionIncrement, event.Action)
		assert.Equal(t, i+1, event.State["val1"])
	}
	assert.Equal(t, "session-horse", result.SessionID)
	assert.Equal(t, State{"val1": 20, "val2": 0}, result.Outcome.State)
	assert.Equal(t, State{"val1": 25, "val2": 0}, result.Final)
}

func TestRun_UnresolvedWatchIsCancelled(t *testing.T) {
	scenario := mustParse(t, `
name: never
description: "Predicate never holds"
initial: {val: 0}
watch:
  kind: observe_until
  predicate: "state.val > 100"
steps:
  - action: increment
    repeat: 3
expect:
  resolved: false
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.False(t, result.Outcome.Resolved)
	assert.Empty(t, result.Outcome.Error)
	assert.Nil(t, result.Outcome.State)
	assert.Equal(t, "test-session-default", result.SessionID)
}

func TestRun_ExpectationFailure(t *testing.T) {
	scenario := loadTestdata(t, "reactor_until.yaml")
	wrong := 7
	scenario.Expect.Reactions = &wrong

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Expectation failed: reactions")
	assert.Contains(t, result.Errors[0], "Expected: 7")
	assert.Contains(t, result.Errors[0], "Actual: 2")
}

func TestRun_PredicateErrorFailsSession(t *testing.T) {
	scenario := mustParse(t, `
name: broken_predicate
description: "Predicate references a missing field"
initial: {val: 0}
watch:
  kind: observe_until
  predicate: "state.missing > 0"
steps:
  - action: increment
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Outcome.Resolved)
	assert.NotEmpty(t, result.Outcome.Error)
	assert.False(t, result.Pass, "an unexpected session error fails the scenario")

	scenario.Expect.Error = "predicate"
	result, err = Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CompileError(t *testing.T) {
	scenario := mustParse(t, `
name: bad_expr
description: "Expression does not parse"
watch:
  kind: observe_until
  predicate: "state.val >"
steps:
  - action: noop
`)

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch.predicate")
}

func TestRun_DuplicateInvariantTag(t *testing.T) {
	scenario := mustParse(t, `
name: dup
description: "Two invariants share a tag"
watch:
  kind: run_while
  invariants:
    - {tag: cap, holds: "state.val < 5"}
    - {tag: " cap ", holds: "state.val < 6"}
steps:
  - action: noop
`)

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.True(t, engine.HasConfigCode(err, engine.ErrCodeDuplicateTag))
}

func TestRun_ReservedInvariantTag(t *testing.T) {
	scenario := mustParse(t, `
name: reserved
description: "Invariant uses the primary tag"
watch:
  kind: run_while
  invariants:
    - {tag: "@@Saga", holds: "true"}
steps:
  - action: noop
`)

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.True(t, engine.HasConfigCode(err, engine.ErrCodeReservedTag))
}

func TestRun_UnknownActionFailsRun(t *testing.T) {
	scenario := loadTestdata(t, "observe_until.yaml")
	scenario.Steps = []Step{{Action: "explode"}}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (explode)")
}

func TestRun_WithJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "vigil.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	ctx := context.Background()
	scenario := loadTestdata(t, "run_while_horse.yaml")

	result, err := Run(ctx, scenario, WithJournal(j))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	muts, err := j.Mutations(ctx)
	require.NoError(t, err)
	require.Len(t, muts, 25)
	assert.JSONEq(t, `{"val1":20,"val2":0}`, string(muts[19].State))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []journal.Session{{
		ID:         "session-horse",
		Kind:       engine.KindRunWhile,
		Outcome:    engine.OutcomeViolated,
		Violations: []string{"horse"},
	}}, sessions)

	// A second run continues the sequence under a fresh session id.
	again, err := Run(ctx, scenario, WithJournal(j))
	require.NoError(t, err)
	require.True(t, again.Pass, "errors: %v", again.Errors)
	assert.Equal(t, int64(26), again.Trace[0].Seq)
	assert.NotEqual(t, "session-horse", again.SessionID)

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), last)

	sessions, err = j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "session-horse", sessions[0].ID)
	assert.Equal(t, again.SessionID, sessions[1].ID)
	assert.Equal(t, engine.OutcomeViolated, sessions[1].Outcome)
}

func TestRun_WithJournalNoSessionID(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "vigil.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	ctx := context.Background()
	scenario := loadTestdata(t, "observe_until_initial.yaml")
	scenario.SessionID = ""

	var ids []string
	for range 2 {
		result, err := Run(ctx, scenario, WithJournal(j))
		require.NoError(t, err)
		assert.NotEqual(t, testutil.DefaultSessionID, result.SessionID)
		ids = append(ids, result.SessionID)
	}
	assert.NotEqual(t, ids[0], ids[1])

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids, []string{sessions[0].ID, sessions[1].ID})
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, loadTestdata(t, "reactor_parity.yaml"))
	assert.ErrorIs(t, err, context.Canceled)
}
