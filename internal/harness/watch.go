package harness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/vigil/internal/engine"
	"github.com/roach88/vigil/internal/expr"
)

// Plan is a scenario watch with every expression compiled.
type Plan struct {
	kind string

	// minSubs is the number of subscriptions the watch holds while parked.
	minSubs int

	run func(ctx context.Context, src engine.Source[State], opts []engine.Option) (Outcome, error)
}

// Compile compiles every expression in the scenario's watch and builds the
// engine definition. It reports configuration errors (duplicate or reserved
// tags) without running anything.
func Compile(s *Scenario, c *expr.Compiler) (*Plan, error) {
	w := s.Watch
	switch w.Kind {
	case KindObserveUntil, KindObserveWhile:
		return compileObserve(w, c)
	case KindObserveAndRun:
		return compileReactor(w, c)
	case KindRunWhile:
		return compileGuard(w, c)
	default:
		return nil, fmt.Errorf("watch: unknown kind %q", w.Kind)
	}
}

func compileObserve(w Watch, c *expr.Compiler) (*Plan, error) {
	pred, err := expr.Predicate[State](c, w.Predicate)
	if err != nil {
		return nil, fmt.Errorf("watch.predicate: %w", err)
	}

	observe := engine.ObserveUntil[State]
	if w.Kind == KindObserveWhile {
		observe = engine.ObserveWhile[State]
	}

	return &Plan{
		kind:    w.Kind,
		minSubs: 1,
		run: func(ctx context.Context, src engine.Source[State], opts []engine.Option) (Outcome, error) {
			state, err := observe(ctx, src, pred, opts...)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Resolved: true, State: state}, nil
		},
	}, nil
}

func compileReactor(w Watch, c *expr.Compiler) (*Plan, error) {
	when, err := expr.Transition[State](c, w.When)
	if err != nil {
		return nil, fmt.Errorf("watch.when: %w", err)
	}

	var until engine.Predicate[State]
	if w.Until != "" {
		if until, err = expr.Predicate[State](c, w.Until); err != nil {
			return nil, fmt.Errorf("watch.until: %w", err)
		}
	}

	var derive engine.ArgFunc[State, any]
	if w.Args != "" {
		if derive, err = expr.Value[State](c, w.Args); err != nil {
			return nil, fmt.Errorf("watch.args: %w", err)
		}
	}

	// Validate the shape once; each run builds its own counters.
	if _, err := buildReactor(when, until, derive, new(reactionLog)).Build(); err != nil {
		return nil, err
	}

	return &Plan{
		kind:    w.Kind,
		minSubs: 1,
		run: func(ctx context.Context, src engine.Source[State], opts []engine.Option) (Outcome, error) {
			log := new(reactionLog)
			if w.DetachedReactions {
				log.pending = new(sync.WaitGroup)
				opts = append(opts, engine.WithDetachedReactions(nil))
			}

			err := buildReactor(when, until, derive, log).Run(ctx, src, opts...)
			if log.pending != nil {
				log.pending.Wait()
			}
			return Outcome{
				Resolved:  err == nil,
				Reactions: int(log.count.Load()),
				Args:      log.values(),
			}, err
		},
	}, nil
}

// buildReactor wires counting sagas. Arguments are logged as they are
// derived, which happens in mutation order inside the observation loop.
//
// With detached reactions, log.pending is incremented for every fork so the
// caller can wait for them after the loop ends.
func buildReactor(when engine.Transition[State], until engine.Predicate[State], derive engine.ArgFunc[State, any], log *reactionLog) engine.Reactor[State] {
	done := func() {
		log.count.Add(1)
		if log.pending != nil {
			log.pending.Done()
		}
	}

	var r engine.Reactor[State]
	if derive == nil {
		r = engine.ObserveAndRun[State]().Saga(func(context.Context) error {
			done()
			return nil
		})
	} else {
		r = engine.ObserveAndRunWith[State, any](func(prev, cur State) (any, error) {
			v, err := derive(prev, cur)
			if err != nil {
				if log.pending != nil {
					log.pending.Done()
				}
				return nil, err
			}
			log.add(v)
			return v, nil
		}).Saga(func(context.Context, any) error {
			done()
			return nil
		})
	}

	r = r.When(func(prev, cur State) (bool, error) {
		ok, err := when(prev, cur)
		if ok && err == nil && log.pending != nil {
			log.pending.Add(1)
		}
		return ok, err
	})
	if until != nil {
		r = r.Until(until)
	}
	return r
}

func compileGuard(w Watch, c *expr.Compiler) (*Plan, error) {
	var primaryUntil engine.Predicate[State]
	if w.PrimaryUntil != "" {
		p, err := expr.Predicate[State](c, w.PrimaryUntil)
		if err != nil {
			return nil, fmt.Errorf("watch.primary_until: %w", err)
		}
		primaryUntil = p
	}

	invariants := make([]engine.Invariant[State], len(w.Invariants))
	for i, def := range w.Invariants {
		holds, err := expr.Predicate[State](c, def.Holds)
		if err != nil {
			return nil, fmt.Errorf("watch.invariants[%d]: %w", i, err)
		}
		invariants[i] = engine.Invariant[State]{Tag: def.Tag, Holds: holds}
	}

	// primary builds the supervised task for one run. It completes once
	// primaryUntil holds, or blocks until cancelled when there is none.
	primary := func(src engine.Source[State]) engine.Task {
		return func(ctx context.Context) error {
			if primaryUntil == nil {
				<-ctx.Done()
				return ctx.Err()
			}
			_, err := engine.ObserveUntil(ctx, src, primaryUntil, engine.WithLogger(discardLogger))
			return err
		}
	}

	guard := func(src engine.Source[State]) (engine.Guard[State], error) {
		g := engine.RunWhile[State]().Saga(primary(src))
		for _, inv := range invariants {
			g = g.Invariant(inv.Tag, inv.Holds)
		}
		return g.OnViolation(func(context.Context, State, []string) error { return nil }).Build()
	}
	if _, err := guard(nil); err != nil {
		return nil, err
	}

	// The primary subscribes too unless it runs until cancelled.
	minSubs := len(invariants)
	if primaryUntil != nil {
		minSubs++
	}

	return &Plan{
		kind:    w.Kind,
		minSubs: minSubs,
		run: func(ctx context.Context, src engine.Source[State], opts []engine.Option) (Outcome, error) {
			g, err := guard(src)
			if err != nil {
				return Outcome{}, err
			}
			res, err := g.Run(ctx, src, opts...)
			out := Outcome{
				Resolved:   err == nil,
				Violated:   res.Violated,
				Violations: res.Violations,
			}
			if res.Violated {
				out.State = res.State
			}
			return out, err
		},
	}, nil
}

// reactionLog counts forked reactions and collects derived arguments.
type reactionLog struct {
	count   atomic.Int64
	pending *sync.WaitGroup

	mu   sync.Mutex
	args []any
}

func (l *reactionLog) add(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.args = append(l.args, v)
}

func (l *reactionLog) values() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.args...)
}
