package pipeline

import "fmt"

// Transform is one stage of the graph: entity in, entity out. A nil result
// drops the entity. Implementations embed Base and call Forward from Apply
// to pass results downstream.
type Transform interface {
	Name() string
	Check(v any) GuardAction
	Apply(v any) (any, error)
	Forward(v any) (any, error)

	Start(st *Strand)
	Stop()
	Clear()
	Unlink()
	Bind(t Transform) Transform

	nextList() []Transform
	setNextList(next []Transform)
}

// UnmatchedTransformError reports that no sibling guard accepted an entity.
type UnmatchedTransformError struct {
	Entity string
}

func (e *UnmatchedTransformError) Error() string {
	return fmt.Sprintf("cannot find matching transform for %s", e.Entity)
}

// Base carries the name, guard and next list shared by all transforms.
type Base struct {
	name  string
	guard Guard
	next  []Transform
}

func NewBase(name string, guard Guard) Base {
	return Base{name: name, guard: guard}
}

func (b *Base) Name() string { return b.name }

func (b *Base) SetGuard(g Guard) { b.guard = g }

// Check applies the guard; a transform without a guard always runs.
func (b *Base) Check(v any) GuardAction {
	if b.guard == nil {
		return Run
	}
	return b.guard(v)
}

// Forward walks the next list and hands the entity to the first transform
// whose guard returns Run or Skip, recursing through skips. With no next
// transforms the entity is returned unchanged; with siblings but no match
// the forward fails.
func (b *Base) Forward(v any) (any, error) {
	if len(b.next) == 0 {
		return v, nil
	}
	for _, t := range b.next {
		switch t.Check(v) {
		case Run:
			return t.Apply(v)
		case Skip:
			return t.Forward(v)
		}
	}
	name := "entity"
	if n, ok := v.(named); ok {
		name = n.Name()
	}
	return nil, &UnmatchedTransformError{Entity: name}
}

// Bind appends a transform to the next list and returns it for chaining.
func (b *Base) Bind(t Transform) Transform {
	b.next = append(b.next, t)
	return t
}

func (b *Base) nextList() []Transform { return b.next }

func (b *Base) setNextList(next []Transform) { b.next = next }

// Start recursively starts the following transforms; stages needing timers
// override and call this after arming them.
func (b *Base) Start(st *Strand) {
	for _, t := range b.next {
		t.Start(st)
	}
}

// Stop recursively stops the following transforms.
func (b *Base) Stop() {
	for _, t := range b.next {
		t.Stop()
	}
}

// Clear breaks the chain depth-first so each transform ends with an empty
// next list.
func (b *Base) Clear() {
	for _, t := range b.next {
		t.Clear()
	}
	b.Unlink()
}

func (b *Base) Unlink() { b.next = nil }

// transformPair is a (parent, target) match from a find.
type transformPair struct {
	parent Transform
	target Transform
}

func findRec(t Transform, target string, matches *[]transformPair) {
	for _, n := range t.nextList() {
		if n.Name() == target {
			*matches = append(*matches, transformPair{parent: t, target: n})
		}
		findRec(n, target, matches)
	}
}

// spliceBefore inserts t between parent and old.
func spliceBefore(parent Transform, old, t Transform) {
	next := parent.nextList()
	for i, n := range next {
		if n == old {
			t.Bind(old)
			next[i] = t
			parent.setNextList(next)
			return
		}
	}
}

// spliceAfter moves old's next list onto t and makes t old's only next.
func spliceAfter(old, t Transform) {
	for _, n := range old.nextList() {
		t.Bind(n)
	}
	old.setNextList(nil)
	old.Bind(t)
}

// firstAfter prepends t to old's next list.
func firstAfter(old, t Transform) {
	old.setNextList(append([]Transform{t}, old.nextList()...))
}

// replace substitutes t for old under parent, inheriting old's next list.
func replace(parent Transform, old, t Transform) {
	next := parent.nextList()
	for i, n := range next {
		if n == old {
			next[i] = t
			for _, nn := range old.nextList() {
				t.Bind(nn)
			}
			parent.setNextList(next)
		}
	}
}

// remove unlinks old from parent, merging old's next list into parent's.
func remove(parent Transform, old Transform) {
	next := parent.nextList()
	for i, n := range next {
		if n == old {
			next = append(next[:i], next[i+1:]...)
			parent.setNextList(next)
			for _, nn := range old.nextList() {
				parent.Bind(nn)
			}
			return
		}
	}
}

// RunFunc wraps a function as a transform for tests and simple stages.
type RunFunc struct {
	Base
	fn func(v any) (any, error)
}

func NewRunFunc(name string, guard Guard, fn func(v any) (any, error)) *RunFunc {
	return &RunFunc{Base: NewBase(name, guard), fn: fn}
}

func (r *RunFunc) Apply(v any) (any, error) {
	out, err := r.fn(v)
	if err != nil || out == nil {
		return nil, err
	}
	return r.Forward(out)
}

// NullTransform returns the entity without forwarding; used to terminate
// branches.
type NullTransform struct{ Base }

func NewNullTransform(guard Guard) *NullTransform {
	return &NullTransform{Base: NewBase("NullTransform", guard)}
}

func (n *NullTransform) Apply(v any) (any, error) { return v, nil }

// MergeTransform forwards entities matching its guard; used to merge
// streams into a shared tail.
type MergeTransform struct{ Base }

func NewMergeTransform(guard Guard) *MergeTransform {
	return &MergeTransform{Base: NewBase("MergeTransform", guard)}
}

func (m *MergeTransform) Apply(v any) (any, error) { return m.Forward(v) }
