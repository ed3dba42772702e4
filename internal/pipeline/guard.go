package pipeline

import "reflect"

// GuardAction is the verdict of a guard for an entity.
type GuardAction int

const (
	// Continue moves on to the next sibling transform.
	Continue GuardAction = iota
	// Run invokes this transform.
	Run
	// Skip forwards the entity past this transform to its next list.
	Skip
)

// Guard is a match predicate over pipeline payloads.
type Guard func(v any) GuardAction

// named is implemented by entity-shaped payloads.
type named interface{ Name() string }

// TypeGuard matches payloads assignable to T (interface satisfaction or
// exact pointer type).
func TypeGuard[T any](action GuardAction) Guard {
	return func(v any) GuardAction {
		if _, ok := v.(T); ok {
			return action
		}
		return Continue
	}
}

// ExactTypeGuard matches the concrete runtime type T only, so a wrapper
// variant embedding T does not match.
func ExactTypeGuard[T any](action GuardAction) Guard {
	want := reflect.TypeOf((*T)(nil)).Elem()
	return func(v any) GuardAction {
		if reflect.TypeOf(v) == want {
			return action
		}
		return Continue
	}
}

// EntityNameGuard matches payloads by their entity name.
func EntityNameGuard(name string, action GuardAction) Guard {
	return func(v any) GuardAction {
		if n, ok := v.(named); ok && n.Name() == name {
			return action
		}
		return Continue
	}
}

// LambdaGuard matches when the payload is a T and the predicate holds.
func LambdaGuard[T any](pred func(T) bool, action GuardAction) Guard {
	return func(v any) GuardAction {
		if t, ok := v.(T); ok && pred(t) {
			return action
		}
		return Continue
	}
}

// Or chains an alternative guard tried when the primary does not match.
func Or(g Guard, alt Guard) Guard {
	return func(v any) GuardAction {
		if action := g(v); action != Continue {
			return action
		}
		return alt(v)
	}
}

// Always returns a fixed action for every payload.
func Always(action GuardAction) Guard {
	return func(any) GuardAction { return action }
}
