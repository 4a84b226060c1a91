package engine

import (
	"context"
	"log/slog"
	"reflect"

	"golang.org/x/sync/errgroup"
)

// ArgFunc derives a reaction argument from a matching transition.
type ArgFunc[S, A any] func(prev, cur S) (A, error)

// Reactor forks a reaction for every matching state transition.
//
// A Reactor is an immutable definition: When, Until and Equal return a new
// Reactor and never modify the receiver. Build it with ObserveAndRun or
// ObserveAndRunWith.
//
// Loop, per observed snapshot cur (prev is the snapshot observed just
// before it):
//  1. if Until holds for cur, stop
//  2. if cur differs from prev and When(prev, cur) holds, fork a reaction
//  3. prev = cur, wait for the next mutation
//
// Until is checked first, so a snapshot that both terminates and matches
// forks nothing.
type Reactor[S any] struct {
	bind  func(prev, cur S) (Task, error)
	when  Transition[S]
	until Predicate[S]
	equal func(a, b S) bool
	err   error
}

// ReactorStart is the first stage of an argument-less reactor definition.
type ReactorStart[S any] struct{}

// ObserveAndRun starts a reactor definition whose reactions take no argument.
func ObserveAndRun[S any]() ReactorStart[S] {
	return ReactorStart[S]{}
}

// Saga sets the reaction forked on every matching transition.
func (ReactorStart[S]) Saga(task Task) Reactor[S] {
	r := Reactor[S]{}
	if task == nil {
		r.err = newConfigError(ErrCodeMissingSaga, "", "reactor saga is nil")
		return r
	}
	r.bind = func(_, _ S) (Task, error) {
		return task, nil
	}
	return r
}

// ReactorWith is the first stage of a reactor whose reactions receive an
// argument derived from each matching transition.
type ReactorWith[S, A any] struct {
	derive ArgFunc[S, A]
}

// ObserveAndRunWith starts a reactor definition whose reactions receive
// derive(prev, cur). The argument is computed in the observation loop, in
// mutation order, before the reaction is forked.
func ObserveAndRunWith[S, A any](derive ArgFunc[S, A]) ReactorWith[S, A] {
	return ReactorWith[S, A]{derive: derive}
}

// Saga sets the reaction forked on every matching transition.
func (w ReactorWith[S, A]) Saga(saga func(ctx context.Context, arg A) error) Reactor[S] {
	r := Reactor[S]{}
	switch {
	case saga == nil:
		r.err = newConfigError(ErrCodeMissingSaga, "", "reactor saga is nil")
		return r
	case w.derive == nil:
		r.err = newConfigError(ErrCodeNilPredicate, "args", "argument function is nil")
		return r
	}

	derive := w.derive
	r.bind = func(prev, cur S) (task Task, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &PredicateError{Tag: "args", Err: newPanicError(rec)}
			}
		}()

		arg, err := derive(prev, cur)
		if err != nil {
			return nil, &PredicateError{Tag: "args", Err: err}
		}
		return func(ctx context.Context) error {
			return saga(ctx, arg)
		}, nil
	}
	return r
}

// When sets the transition condition. Required.
func (r Reactor[S]) When(cond Transition[S]) Reactor[S] {
	r.when = cond
	return r
}

// Until sets an optional termination predicate.
func (r Reactor[S]) Until(term Predicate[S]) Reactor[S] {
	r.until = term
	return r
}

// Equal overrides the snapshot equality used to skip unchanged transitions.
//
// Default: reflect.DeepEqual
func (r Reactor[S]) Equal(eq func(a, b S) bool) Reactor[S] {
	r.equal = eq
	return r
}

// Build validates the definition.
func (r Reactor[S]) Build() (Reactor[S], error) {
	if r.err != nil {
		return r, r.err
	}
	if r.bind == nil {
		return r, newConfigError(ErrCodeMissingSaga, "", "reactor has no saga")
	}
	if r.when == nil {
		return r, newConfigError(ErrCodeMissingCondition, "", "reactor has no transition condition")
	}
	if r.equal == nil {
		r.equal = func(a, b S) bool { return reflect.DeepEqual(a, b) }
	}
	return r, nil
}

// Run observes src until Until holds or ctx is cancelled.
//
// By default reactions are linked to the loop: Run waits for every forked
// reaction to finish, and the first reaction failure cancels the loop and
// the remaining reactions and is returned as a *TaskError. Use
// WithDetachedReactions for fire-and-forget reactions.
//
// Run returns nil when Until ends the session.
func (r Reactor[S]) Run(ctx context.Context, src Source[S], opts ...Option) error {
	r, err := r.Build()
	if err != nil {
		return err
	}

	o := newOptions(opts)
	ctx, sess := o.start(ctx, KindObserveAndRun)

	if o.detached {
		err = r.loop(ctx, src, sess.logger, func(task Task) {
			forkDetached(ctx, task, sess.logger, o.onDetachedErr)
		})
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return r.loop(gctx, src, sess.logger, func(task Task) {
				g.Go(func() error {
					err := task.runAs(gctx, RoleReaction)
					if err != nil {
						reactionFailures.Inc()
					}
					return err
				})
			})
		})
		err = g.Wait()
	}

	sess.finish(ctx, outcomeOf(err, OutcomeTerminated), nil, err)
	return err
}

func (r Reactor[S]) loop(ctx context.Context, src Source[S], logger *slog.Logger, fork func(Task)) error {
	prev, sub := src.Subscribe()
	defer sub.Unsubscribe()

	cur := prev
	var seq int64
	for {
		if r.until != nil {
			done, err := r.until.check("until", cur)
			if err != nil {
				return err
			}
			if done {
				logger.Debug("termination condition holds", "seq", seq)
				return nil
			}
		}

		if !r.equal(prev, cur) {
			match, err := r.when.check("when", prev, cur)
			if err != nil {
				return err
			}
			if match {
				task, err := r.bind(prev, cur)
				if err != nil {
					return err
				}
				reactionsForked.Inc()
				logger.Debug("forking reaction", "seq", seq)
				fork(task)
			}
		}

		prev = cur
		m, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		observeWakes.Inc()
		cur, seq = m.State, m.Seq
	}
}

func forkDetached(ctx context.Context, task Task, logger *slog.Logger, onErr func(error)) {
	detached := context.WithoutCancel(ctx)
	go func() {
		err := task.runAs(detached, RoleReaction)
		if err == nil {
			return
		}
		reactionFailures.Inc()
		logger.Error("detached reaction failed", "error", err)
		if onErr != nil {
			onErr(err)
		}
	}()
}
