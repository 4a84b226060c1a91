package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a deterministic run of one watch against a scripted
// sequence of store dispatches.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Initial is the starting store state.
	Initial map[string]any `yaml:"initial"`

	// Steps are dispatched in order, one mutation per dispatch.
	Steps []Step `yaml:"steps"`

	// Watch is the engine operation observing the store.
	Watch Watch `yaml:"watch"`

	// Expect is checked against the outcome after all steps ran.
	Expect Expect `yaml:"expect"`

	// SessionID is a fixed session id for deterministic traces.
	// If empty, defaults to "test-session-default".
	SessionID string `yaml:"session_id,omitempty"`
}

// Step is one store action, optionally repeated.
type Step struct {
	// Action is one of: set, increment, noop.
	Action string `yaml:"action"`

	// Payload is merged into state by set. For increment, `field` names the
	// counter (default "val") and `by` the amount (default 1).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Repeat dispatches the action this many times. Zero means once.
	Repeat int `yaml:"repeat,omitempty"`
}

// Watch configures the engine operation under test. Expressions are CUE.
type Watch struct {
	// Kind is one of observe_until, observe_while, observe_and_run, run_while.
	Kind string `yaml:"kind"`

	// Predicate over `state` (observe_until, observe_while).
	Predicate string `yaml:"predicate,omitempty"`

	// When is the transition condition over `prev` and `cur` (observe_and_run).
	When string `yaml:"when,omitempty"`

	// Until is the optional termination predicate over `state` (observe_and_run).
	Until string `yaml:"until,omitempty"`

	// Args derives each reaction's argument from `prev` and `cur` (observe_and_run).
	Args string `yaml:"args,omitempty"`

	// PrimaryUntil completes the supervised task once it holds over `state`
	// (run_while). If empty the primary runs until cancelled.
	PrimaryUntil string `yaml:"primary_until,omitempty"`

	// Invariants are raced against the primary task (run_while).
	Invariants []InvariantDef `yaml:"invariants,omitempty"`

	// DetachedReactions forks reactions fire-and-forget (observe_and_run).
	DetachedReactions bool `yaml:"detached_reactions,omitempty"`
}

// InvariantDef is a named CUE predicate over `state`.
type InvariantDef struct {
	Tag   string `yaml:"tag"`
	Holds string `yaml:"holds"`
}

// Expect lists the checks applied to a run. Unset fields are not checked.
type Expect struct {
	// Resolved is whether the watch ended on its own before the steps ran out.
	Resolved *bool `yaml:"resolved,omitempty"`

	// State is a subset match against the snapshot the watch reported.
	State map[string]any `yaml:"state,omitempty"`

	// Final is a subset match against the store state after the last step.
	Final map[string]any `yaml:"final,omitempty"`

	// Reactions is the exact number of forked reactions.
	Reactions *int `yaml:"reactions,omitempty"`

	// Args are the derived reaction arguments in mutation order.
	Args []any `yaml:"args,omitempty"`

	// Violated is whether an invariant watch won the race.
	Violated *bool `yaml:"violated,omitempty"`

	// Violations are the reported tags in registration order.
	Violations []string `yaml:"violations,omitempty"`

	// Error is a substring of the expected session error.
	Error string `yaml:"error,omitempty"`
}

// Watch kinds.
const (
	KindObserveUntil  = "observe_until"
	KindObserveWhile  = "observe_while"
	KindObserveAndRun = "observe_and_run"
	KindRunWhile      = "run_while"
)

// Step actions.
const (
	ActionSet       = "set"
	ActionIncrement = "increment"
	ActionNoop      = "noop"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// Expressions are not compiled here; see Compile.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Action {
		case ActionSet:
			if len(step.Payload) == 0 {
				return fmt.Errorf("steps[%d]: payload is required for set", i)
			}
		case ActionIncrement, ActionNoop:
		case "":
			return fmt.Errorf("steps[%d]: action is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		if step.Repeat < 0 {
			return fmt.Errorf("steps[%d]: repeat must be non-negative", i)
		}
	}

	return validateWatch(&s.Watch)
}

// validateWatch checks that each kind has the expressions it needs and no
// expressions it would ignore.
func validateWatch(w *Watch) error {
	switch w.Kind {
	case KindObserveUntil, KindObserveWhile:
		if w.Predicate == "" {
			return fmt.Errorf("watch: predicate is required for %s", w.Kind)
		}
		if w.When != "" || w.Until != "" || w.Args != "" || w.PrimaryUntil != "" || len(w.Invariants) > 0 {
			return fmt.Errorf("watch: only predicate is allowed for %s", w.Kind)
		}
	case KindObserveAndRun:
		if w.When == "" {
			return fmt.Errorf("watch: when is required for %s", w.Kind)
		}
		if w.Predicate != "" || w.PrimaryUntil != "" || len(w.Invariants) > 0 {
			return fmt.Errorf("watch: predicate, primary_until and invariants are not allowed for %s", w.Kind)
		}
	case KindRunWhile:
		if w.Predicate != "" || w.When != "" || w.Until != "" || w.Args != "" {
			return fmt.Errorf("watch: only primary_until and invariants are allowed for %s", w.Kind)
		}
		for i, inv := range w.Invariants {
			if inv.Tag == "" {
				return fmt.Errorf("watch.invariants[%d]: tag is required", i)
			}
			if inv.Holds == "" {
				return fmt.Errorf("watch.invariants[%d]: holds is required", i)
			}
		}
	case "":
		return fmt.Errorf("watch: kind is required")
	default:
		return fmt.Errorf("watch: unknown kind %q", w.Kind)
	}

	if w.DetachedReactions && w.Kind != KindObserveAndRun {
		return fmt.Errorf("watch: detached_reactions only applies to %s", KindObserveAndRun)
	}
	return nil
}
