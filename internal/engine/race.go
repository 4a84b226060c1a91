package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Entry is one contender in a race.
type Entry struct {
	Tag  string
	Task Task
}

// Race runs every entry concurrently and resolves on the first to return.
//
// The winner's tag and error are returned. All other entries are cancelled
// through their context, and Race does not return until every one of them
// has exited. A panic in an entry is reported as a *PanicError.
func Race(ctx context.Context, entries ...Entry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyRace
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once   sync.Once
		winner string
		winErr error
		g      errgroup.Group
	)

	for _, e := range entries {
		g.Go(func() error {
			err := e.Task.call(raceCtx)
			once.Do(func() {
				winner, winErr = e.Tag, err
				cancel()
			})
			return nil
		})
	}

	_ = g.Wait()
	return winner, winErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
