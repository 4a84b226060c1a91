package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/expr"
	"github.com/roach88/vigil/internal/store"
)

func TestCompile_MinSubscriptions(t *testing.T) {
	tests := []struct {
		name  string
		watch Watch
		want  int
	}{
		{"observe", Watch{Kind: KindObserveUntil, Predicate: "true"}, 1},
		{"reactor", Watch{Kind: KindObserveAndRun, When: "true"}, 1},
		{"guard with primary", Watch{Kind: KindRunWhile, PrimaryUntil: "true", Invariants: []InvariantDef{
			{Tag: "a", Holds: "true"}, {Tag: "b", Holds: "true"},
		}}, 3},
		{"guard blocking primary", Watch{Kind: KindRunWhile, Invariants: []InvariantDef{
			{Tag: "a", Holds: "true"},
		}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compile(&Scenario{Watch: tt.watch}, expr.NewCompiler())
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.minSubs)
			assert.Equal(t, tt.watch.Kind, plan.kind)
		})
	}
}

func TestCompile_ExpressionErrors(t *testing.T) {
	tests := []struct {
		name  string
		watch Watch
		want  string
	}{
		{"when", Watch{Kind: KindObserveAndRun, When: "cur.val >"}, "watch.when"},
		{"until", Watch{Kind: KindObserveAndRun, When: "true", Until: ")"}, "watch.until"},
		{"args", Watch{Kind: KindObserveAndRun, When: "true", Args: "cur."}, "watch.args"},
		{"primary_until", Watch{Kind: KindRunWhile, PrimaryUntil: "state.val >"}, "watch.primary_until"},
		{"invariant", Watch{Kind: KindRunWhile, Invariants: []InvariantDef{{Tag: "a", Holds: "("}}}, "watch.invariants[0]"},
		{"kind", Watch{Kind: "nope"}, "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(&Scenario{Watch: tt.watch}, expr.NewCompiler())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPlan_ReusableAcrossRuns(t *testing.T) {
	plan, err := Compile(&Scenario{Watch: Watch{
		Kind:  KindObserveAndRun,
		When:  "cur.val > prev.val",
		Until: "state.val >= 2",
	}}, expr.NewCompiler())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		st := store.New(Reduce, State{"val": 0}, store.WithLogger(discardLogger))
		done := make(chan Outcome, 1)
		go func() {
			out, err := plan.run(context.Background(), st, nil)
			assert.NoError(t, err)
			done <- out
		}()

		require.NoError(t, settle(context.Background(), st, plan.minSubs, nil))
		_, err := st.Dispatch(context.Background(), store.Action{Type: ActionIncrement})
		require.NoError(t, err)
		require.NoError(t, settle(context.Background(), st, plan.minSubs, nil))
		_, err = st.Dispatch(context.Background(), store.Action{Type: ActionIncrement})
		require.NoError(t, err)

		out := <-done
		assert.True(t, out.Resolved)
		assert.Equal(t, 1, out.Reactions, "counters must not leak between runs")
	}
}
