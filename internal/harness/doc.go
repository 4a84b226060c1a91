// Package harness runs scripted scenarios against the coordination engine.
//
// A scenario seeds a store, starts one watch (observe_until, observe_while,
// observe_and_run or run_while) and dispatches a list of steps. Between
// dispatches the harness waits until the watch has consumed every mutation,
// so the same scenario always produces the same trace and outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: horse_guard
//	description: "Primary task is cancelled when val1 reaches 20"
//	session_id: session-horse
//	initial: { val1: 0, val2: 0 }
//	watch:
//	  kind: run_while
//	  primary_until: "state.val2 >= 100"
//	  invariants:
//	    - tag: horse
//	      holds: "state.val1 < 20"
//	steps:
//	  - action: increment
//	    payload: { field: val1 }
//	    repeat: 25
//	expect:
//	  violated: true
//	  violations: [horse]
//	  state: { val1: 20 }
//
// Expressions are CUE, evaluated with `state` bound to the snapshot, or with
// `prev` and `cur` for observe_and_run transitions.
//
// # Expectations
//
// Every set field of expect is checked; unset fields are ignored:
//
//   - resolved: the watch ended on its own before the steps ran out
//   - state: subset match against the snapshot the watch reported
//   - final: subset match against the store after the last step
//   - reactions, args: forked reactions and their derived arguments
//   - violated, violations: the run_while verdict
//   - error: substring of the session error
//
// # Golden Files
//
// RunWithGolden compares the trace and outcome against
// testdata/golden/{name}.golden using goldie.
package harness
