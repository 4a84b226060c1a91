package engine

import (
	"context"
	"log/slog"
)

// ObserveUntil blocks until p holds and returns the snapshot that satisfied it.
//
// If p already holds for the current state, ObserveUntil returns at once
// without subscribing. Otherwise it subscribes and re-evaluates p against
// every mutation's snapshot, in order, so a value that holds only briefly
// between two later mutations is still seen.
//
// There is no timeout; bound the wait through ctx.
func ObserveUntil[S any](ctx context.Context, src Source[S], p Predicate[S], opts ...Option) (S, error) {
	o := newOptions(opts)
	ctx, sess := o.start(ctx, KindObserveUntil)

	state, err := observeUntil(ctx, src, "predicate", p, sess.logger)
	sess.finish(ctx, outcomeOf(err, OutcomeResolved), nil, err)
	return state, err
}

// ObserveWhile blocks until p stops holding. It is ObserveUntil(Not(p)).
func ObserveWhile[S any](ctx context.Context, src Source[S], p Predicate[S], opts ...Option) (S, error) {
	return ObserveUntil(ctx, src, Not(p), opts...)
}

func observeUntil[S any](ctx context.Context, src Source[S], tag string, p Predicate[S], logger *slog.Logger) (S, error) {
	state := src.State()
	ok, err := p.check(tag, state)
	if err != nil || ok {
		return state, err
	}

	state, sub := src.Subscribe()
	defer sub.Unsubscribe()

	// State may have moved between the first read and registration.
	ok, err = p.check(tag, state)
	if err != nil || ok {
		return state, err
	}

	for {
		m, err := sub.Next(ctx)
		if err != nil {
			return state, err
		}
		observeWakes.Inc()

		state = m.State
		ok, err := p.check(tag, state)
		if err != nil {
			return state, err
		}
		if ok {
			logger.Debug("predicate satisfied", "tag", tag, "seq", m.Seq, "action", m.Action)
			return state, nil
		}
	}
}
