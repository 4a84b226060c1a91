package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/vigil/internal/engine"
	"github.com/roach88/vigil/internal/expr"
	"github.com/roach88/vigil/internal/journal"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/testutil"
)

// settleTimeout bounds how long the harness waits for the watch to consume
// a mutation before giving up on the scenario.
const settleTimeout = 5 * time.Second

var discardLogger = testutil.DiscardLogger()

// Option configures a harness run.
type Option func(*config)

type config struct {
	journal *journal.Journal
	logger  *slog.Logger
}

// WithJournal persists every mutation and the session outcome.
// Sequence numbers continue from the journal's last mutation. A scenario
// session id that is unset or already journaled is replaced by a UUIDv7.
func WithJournal(j *journal.Journal) Option {
	return func(c *config) {
		c.journal = j
	}
}

// WithLogger sets the logger passed to the store and the engine.
// Scenarios run silently by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the watch expressions
//  2. Create a fresh store seeded with the scenario's initial state
//  3. Start the watch and wait until it is parked on the store
//  4. Dispatch each step, waiting for the watch to consume every mutation
//  5. Cancel the watch if it is still running after the last step
//  6. Evaluate expectations
//
// Waiting for the watch between dispatches makes every run of a scenario
// produce the same trace and outcome.
//
// Run returns an error only when the scenario cannot be executed (bad
// expressions, invalid watch configuration, a dispatch failure, or a watch
// that stops consuming mutations). Failed expectations are reported in the
// result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{logger: discardLogger}
	for _, opt := range opts {
		opt(cfg)
	}

	plan, err := Compile(scenario, expr.NewCompiler())
	if err != nil {
		return nil, fmt.Errorf("failed to compile watch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessionID := scenario.SessionID
	storeOpts := []store.Option{store.WithLogger(cfg.logger)}
	engineOpts := []engine.Option{engine.WithLogger(cfg.logger)}
	if cfg.journal != nil {
		sessionID, err = journalSessionID(ctx, cfg.journal, sessionID)
		if err != nil {
			return nil, err
		}
		last, err := cfg.journal.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}
		storeOpts = append(storeOpts,
			store.WithJournal(cfg.journal),
			store.WithClock(store.NewClockAt(last)),
		)
		engineOpts = append(engineOpts, engine.WithRecorder(cfg.journal))
	}

	ids := testutil.NewFixedIDGenerator(sessionID)
	engineOpts = append(engineOpts, engine.WithIDGenerator(ids))

	st := store.New(Reduce, maps.Clone(State(scenario.Initial)), storeOpts...)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		out    Outcome
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		out, runErr = plan.run(watchCtx, st, engineOpts)
	}()

	result := NewResult()
	result.Scenario = scenario.Name
	result.SessionID = ids.Generate()

	if err := settle(ctx, st, plan.minSubs, done); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		for range max(step.Repeat, 1) {
			state, err := st.Dispatch(ctx, store.Action{Type: step.Action, Payload: step.Payload})
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
			}
			result.AddTrace(st.Seq(), step.Action, state)

			if err := settle(ctx, st, plan.minSubs, done); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
			}
		}
	}

	cancelled := false
	select {
	case <-done:
	default:
		cancel()
		<-done
		cancelled = true
	}

	switch {
	case cancelled:
		out.Resolved = false
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			out.Error = runErr.Error()
		}
	case runErr != nil:
		out.Resolved = false
		out.Error = runErr.Error()
	}

	result.Outcome = out
	result.Final = st.State()

	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}

	return result, nil
}

// journalSessionID keeps the scenario's session id unless it is unset or
// already journaled, in which case the run gets a fresh UUIDv7.
func journalSessionID(ctx context.Context, j *journal.Journal, id string) (string, error) {
	if id != "" {
		taken, err := j.HasSession(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to read journal: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	return engine.UUIDv7Generator{}.Generate(), nil
}

// settle waits until the watch has ended or every subscription it holds is
// parked with an empty buffer.
func settle(ctx context.Context, st *store.Store[State], minSubs int, done <-chan struct{}) error {
	timeout := time.NewTimer(settleTimeout)
	defer timeout.Stop()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		default:
		}
		if st.Idle(minSubs) {
			return nil
		}

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("watch did not settle within %s", settleTimeout)
		case <-ticker.C:
		}
	}
}
