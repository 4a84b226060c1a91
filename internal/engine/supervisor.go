package engine

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PrimaryTag is the race tag reserved for the supervised task.
const PrimaryTag = "@@Saga"

// Invariant is a named predicate that must hold while the primary task runs.
type Invariant[S any] struct {
	Tag   string
	Holds Predicate[S]
}

// ViolationHandler is called once per violation with the snapshot the
// violation set was computed from.
type ViolationHandler[S any] func(ctx context.Context, state S, violations []string) error

// Outcome describes how a supervision session ended.
type Outcome[S any] struct {
	SessionID string

	// Violated is true when an invariant watch won the race.
	Violated bool

	// Violations lists, in registration order, every invariant false in
	// State. It can be empty if the state recovered before it was read.
	Violations []string

	// State is the snapshot the violation set was computed from.
	State S
}

// Guard runs a primary task under a set of invariants.
//
// A Guard is an immutable definition; every method returns a new Guard.
// The first configuration mistake is kept and reported by Build and Run.
//
// Session state machine:
//
//	RUNNING --primary returns--> done
//	RUNNING --invariant false--> VIOLATED --handlers run--> done
type Guard[S any] struct {
	primary    Task
	invariants []Invariant[S]
	handlers   []ViolationHandler[S]
	err        error
}

// RunWhile starts a supervision definition.
func RunWhile[S any]() Guard[S] {
	return Guard[S]{}
}

// Saga sets the primary task.
func (g Guard[S]) Saga(task Task) Guard[S] {
	g.primary = task
	return g
}

// Invariant registers a named invariant. Tags are trimmed and NFC-normalized;
// they must be non-empty, unique, and distinct from PrimaryTag.
func (g Guard[S]) Invariant(tag string, holds Predicate[S]) Guard[S] {
	if g.err != nil {
		return g
	}

	tag = normalizeTag(tag)
	switch {
	case tag == "":
		g.err = newConfigError(ErrCodeEmptyTag, tag, "invariant tag is empty")
	case tag == PrimaryTag:
		g.err = newConfigError(ErrCodeReservedTag, tag, "invariant tag is reserved for the primary task")
	case holds == nil:
		g.err = newConfigError(ErrCodeNilPredicate, tag, "invariant predicate is nil")
	case slices.ContainsFunc(g.invariants, func(inv Invariant[S]) bool { return inv.Tag == tag }):
		g.err = newConfigError(ErrCodeDuplicateTag, tag, "invariant tag registered twice")
	default:
		g.invariants = append(slices.Clip(g.invariants), Invariant[S]{Tag: tag, Holds: holds})
	}
	return g
}

// OnViolation appends a violation handler. Handlers run sequentially in
// registration order.
func (g Guard[S]) OnViolation(h ViolationHandler[S]) Guard[S] {
	if g.err != nil {
		return g
	}
	if h == nil {
		g.err = newConfigError(ErrCodeNilPredicate, "", "violation handler is nil")
		return g
	}
	g.handlers = append(slices.Clip(g.handlers), h)
	return g
}

// Build validates the definition.
func (g Guard[S]) Build() (Guard[S], error) {
	if g.err != nil {
		return g, g.err
	}
	if g.primary == nil {
		return g, newConfigError(ErrCodeMissingSaga, "", "supervisor has no primary task")
	}
	return g, nil
}

// Tags returns the registered invariant tags in registration order.
func (g Guard[S]) Tags() []string {
	tags := make([]string, len(g.invariants))
	for i, inv := range g.invariants {
		tags[i] = inv.Tag
	}
	return tags
}

// Run races the primary task against one watch per invariant.
//
// If the primary returns first, its error (wrapped in a *TaskError) is the
// result and no handler runs. If an invariant goes false first, the primary
// is cancelled, the violation set is computed from one state read, and every
// handler runs in order with ctx. A failing handler stops the remaining
// handlers.
func (g Guard[S]) Run(ctx context.Context, src Source[S], opts ...Option) (Outcome[S], error) {
	g, err := g.Build()
	if err != nil {
		return Outcome[S]{}, err
	}

	o := newOptions(opts)
	ctx, sess := o.start(ctx, KindRunWhile)
	out := Outcome[S]{SessionID: sess.id}

	entries := make([]Entry, 0, len(g.invariants)+1)
	entries = append(entries, Entry{
		Tag: PrimaryTag,
		Task: func(ctx context.Context) error {
			return g.primary.runAs(ctx, RolePrimary)
		},
	})
	for _, inv := range g.invariants {
		entries = append(entries, Entry{
			Tag: inv.Tag,
			Task: func(ctx context.Context) error {
				_, err := observeUntil(ctx, src, inv.Tag, Not(inv.Holds), sess.logger)
				return err
			},
		})
	}

	winner, err := Race(ctx, entries...)
	if winner == PrimaryTag || err != nil {
		sess.finish(ctx, outcomeOf(err, OutcomeCompleted), nil, err)
		return out, err
	}

	out.Violated = true
	out.State = src.State()
	for _, inv := range g.invariants {
		holds, err := inv.Holds.check(inv.Tag, out.State)
		if err != nil {
			sess.finish(ctx, OutcomeFailed, out.Violations, err)
			return out, err
		}
		if !holds {
			out.Violations = append(out.Violations, inv.Tag)
			violationsTotal.WithLabelValues(inv.Tag).Inc()
		}
	}

	sess.logger.Warn("invariant violated",
		"trigger", winner,
		"violations", out.Violations,
	)

	for _, h := range g.handlers {
		task := func(ctx context.Context) error {
			return h(ctx, out.State, slices.Clone(out.Violations))
		}
		if err := Task(task).runAs(ctx, RoleViolation); err != nil {
			sess.finish(ctx, OutcomeFailed, out.Violations, err)
			return out, err
		}
	}

	sess.finish(ctx, OutcomeViolated, out.Violations, nil)
	return out, nil
}

func normalizeTag(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}
