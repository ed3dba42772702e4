package observation

import (
	"strings"

	"github.com/mtconnect/mtc-ingest/internal/entity"
)

// Level is the severity of a condition.
type Level int

const (
	Normal Level = iota
	Warning
	Fault
	Unavailable
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "Normal"
	case Warning:
		return "Warning"
	case Fault:
		return "Fault"
	case Unavailable:
		return "Unavailable"
	}
	return ""
}

// ParseLevel maps the wire form of a condition level, case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "NORMAL":
		return Normal, true
	case "WARNING":
		return Warning, true
	case "FAULT":
		return Fault, true
	case "UNAVAILABLE":
		return Unavailable, true
	}
	return Normal, false
}

// Condition carries a level, a native code and an optional message. Active
// non-normal conditions of one data item chain through prev, ordered by
// insertion. The chain is immutable: every mutation produces a new head by
// shallow copy.
type Condition struct {
	Base
	level Level
	code  string
	prev  *Condition
}

func (c *Condition) Copy() Observation {
	n := &Condition{Base: c.copyBase(), level: c.level, code: c.code, prev: c.prev}
	return n
}

func (c *Condition) Level() Level { return c.level }

func (c *Condition) Code() string { return c.code }

func (c *Condition) Prev() *Condition { return c.prev }

// AppendTo chains this condition after an existing head.
func (c *Condition) AppendTo(prev *Condition) { c.prev = prev }

// SetLevel assigns the level and the matching entity name.
func (c *Condition) SetLevel(l Level) {
	c.level = l
	if l == Unavailable {
		c.unavailable = true
	}
	c.ent.SetQName("", l.String())
}

// MakeNormal strips the condition down to a bare normal.
func (c *Condition) MakeNormal() {
	c.level = Normal
	c.code = ""
	for _, k := range []string{"nativeCode", "nativeSeverity", "qualifier", "statistic", entity.ValueProperty} {
		c.ent.Erase(k)
	}
	c.ent.SetQName("", "Normal")
}

func (c *Condition) MakeUnavailable() {
	c.unavailable = true
	c.SetLevel(Unavailable)
}

// First walks to the oldest condition in the chain.
func (c *Condition) First() *Condition {
	if c.prev != nil {
		return c.prev.First()
	}
	return c
}

// Chain lists the conditions oldest first.
func (c *Condition) Chain() []*Condition {
	var list []*Condition
	if c.prev != nil {
		list = c.prev.Chain()
	}
	return append(list, c)
}

// Find locates the chain node with the given native code.
func (c *Condition) Find(code string) *Condition {
	if c.code == code {
		return c
	}
	if c.prev != nil {
		return c.prev.Find(code)
	}
	return nil
}

// DeepCopy duplicates the whole chain.
func (c *Condition) DeepCopy() *Condition {
	n := c.Copy().(*Condition)
	if c.prev != nil {
		n.prev = c.prev.DeepCopy()
	}
	return n
}

// DeepCopyAndRemove duplicates the chain without the given node. Returns
// nil when the removed node was the only one.
func (c *Condition) DeepCopyAndRemove(old *Condition) *Condition {
	if c == old {
		if c.prev != nil {
			return c.prev.DeepCopy()
		}
		return nil
	}
	n := c.Copy().(*Condition)
	if c.prev != nil {
		n.prev = c.prev.DeepCopyAndRemove(old)
	}
	return n
}
