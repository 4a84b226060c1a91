package engine

import "context"

// Predicate reports whether a snapshot satisfies a condition.
// A non-nil error aborts whatever is evaluating the predicate.
type Predicate[S any] func(state S) (bool, error)

// Transition reports whether the change from prev to cur is of interest.
type Transition[S any] func(prev, cur S) (bool, error)

// Task is a unit of work run by the engine. Tasks must return promptly once
// ctx is cancelled.
type Task func(ctx context.Context) error

// Is adapts an infallible predicate.
func Is[S any](f func(S) bool) Predicate[S] {
	return func(s S) (bool, error) {
		return f(s), nil
	}
}

// Not negates p. Errors pass through unchanged.
func Not[S any](p Predicate[S]) Predicate[S] {
	return func(s S) (bool, error) {
		ok, err := p(s)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Changed adapts an infallible transition condition.
func Changed[S any](f func(prev, cur S) bool) Transition[S] {
	return func(prev, cur S) (bool, error) {
		return f(prev, cur), nil
	}
}

// check evaluates p, converting errors and panics into a PredicateError.
func (p Predicate[S]) check(tag string, s S) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PredicateError{Tag: tag, Err: newPanicError(r)}
		}
	}()

	ok, err = p(s)
	if err != nil {
		return false, &PredicateError{Tag: tag, Err: err}
	}
	return ok, nil
}

func (t Transition[S]) check(tag string, prev, cur S) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PredicateError{Tag: tag, Err: newPanicError(r)}
		}
	}()

	ok, err = t(prev, cur)
	if err != nil {
		return false, &PredicateError{Tag: tag, Err: err}
	}
	return ok, nil
}

// call runs task, converting a panic into a PanicError.
func (task Task) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return task(ctx)
}

// runAs runs task and wraps any failure in a TaskError for role.
func (task Task) runAs(ctx context.Context, role TaskRole) error {
	if err := task.call(ctx); err != nil {
		return &TaskError{Role: role, Err: err}
	}
	return nil
}
