package harness

import (
	"fmt"
	"maps"

	"github.com/roach88/vigil/internal/store"
)

// State is the snapshot type scenarios run against.
type State = map[string]any

// Reduce is the scenario reducer. It never mutates its input.
//
//   - set: merges the payload into state
//   - increment: adds payload.by (default 1) to payload.field (default "val")
//   - noop: publishes an unchanged snapshot
func Reduce(s State, a store.Action) (State, error) {
	next := make(State, len(s)+len(a.Payload))
	maps.Copy(next, s)

	switch a.Type {
	case ActionSet:
		maps.Copy(next, a.Payload)
	case ActionIncrement:
		field := "val"
		if f, ok := a.Payload["field"].(string); ok && f != "" {
			field = f
		}
		by := int64(1)
		if v, ok := a.Payload["by"]; ok {
			n, err := toInt(v)
			if err != nil {
				return s, fmt.Errorf("increment by: %w", err)
			}
			by = n
		}
		cur := int64(0)
		if v, ok := next[field]; ok {
			n, err := toInt(v)
			if err != nil {
				return s, fmt.Errorf("increment %s: %w", field, err)
			}
			cur = n
		}
		next[field] = int(cur + by)
	case ActionNoop:
	default:
		return s, fmt.Errorf("%w: %s", store.ErrUnknownAction, a.Type)
	}

	return next, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
		return 0, fmt.Errorf("not an integer: %v", n)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
