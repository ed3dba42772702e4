package entity

import (
	"fmt"
	"regexp"
)

// Infinite marks an unbounded upper cardinality.
const Infinite = int(^uint(0) >> 1)

// Requirement declares one property a factory expects: its value kind,
// whether it is optional, an allowed vocabulary, the cardinality for
// entity lists, and a nested factory for entity-valued properties.
type Requirement struct {
	Name       string
	Kind       Kind
	Required   bool
	Vocabulary []string
	Min, Max   int
	Factory    *Factory
}

// Req is shorthand for a requirement with an untyped value.
func Req(name string, required bool) Requirement {
	return Requirement{Name: name, Kind: KindNone, Required: required}
}

// TypedReq is shorthand for a requirement with a declared kind.
func TypedReq(name string, kind Kind, required bool) Requirement {
	return Requirement{Name: name, Kind: kind, Required: required}
}

func (r *Requirement) inVocabulary(v Value) bool {
	if len(r.Vocabulary) == 0 {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, lit := range r.Vocabulary {
		if lit == s {
			return true
		}
	}
	return false
}

// Constructor produces the concrete object for a validated property set.
type Constructor func(name string, props map[string]Value) *Entity

type patternFactory struct {
	pattern *regexp.Regexp
	factory *Factory
}

// Factory binds an entity name to its requirement set and constructor, and
// registers child factories by literal name or pattern.
type Factory struct {
	requirements []Requirement
	construct    Constructor
	byName       map[string]*Factory
	byPattern    []patternFactory
	isList       bool
}

// NewFactory creates a factory with the default constructor.
func NewFactory(reqs ...Requirement) *Factory {
	return &Factory{
		requirements: reqs,
		construct:    NewWith,
		byName:       make(map[string]*Factory),
	}
}

// Clone copies the factory so a variant can extend its requirements without
// mutating the base.
func (f *Factory) Clone() *Factory {
	n := &Factory{
		requirements: append([]Requirement(nil), f.requirements...),
		construct:    f.construct,
		byName:       make(map[string]*Factory, len(f.byName)),
		byPattern:    append([]patternFactory(nil), f.byPattern...),
		isList:       f.isList,
	}
	for k, v := range f.byName {
		n.byName[k] = v
	}
	return n
}

// SetConstructor replaces the object constructor.
func (f *Factory) SetConstructor(c Constructor) *Factory {
	f.construct = c
	return f
}

// AddRequirements appends or overrides requirements by name.
func (f *Factory) AddRequirements(reqs ...Requirement) *Factory {
	for _, r := range reqs {
		replaced := false
		for i := range f.requirements {
			if f.requirements[i].Name == r.Name {
				f.requirements[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			f.requirements = append(f.requirements, r)
		}
	}
	return f
}

// SetList marks this factory as producing list entities: members are kept
// under the dedicated LIST slot.
func (f *Factory) SetList() *Factory {
	f.isList = true
	return f
}

func (f *Factory) IsList() bool { return f.isList }

// Register binds a child factory to a literal entity name.
func (f *Factory) Register(name string, child *Factory) {
	f.byName[name] = child
}

// RegisterPattern binds a child factory to an entity-name pattern.
func (f *Factory) RegisterPattern(pattern string, child *Factory) {
	f.byPattern = append(f.byPattern, patternFactory{regexp.MustCompile(pattern), child})
}

// FactoryFor resolves the child factory for an entity name, literal matches
// first, then patterns in registration order.
func (f *Factory) FactoryFor(name string) *Factory {
	if c, ok := f.byName[name]; ok {
		return c
	}
	for _, p := range f.byPattern {
		if p.pattern.MatchString(name) {
			return p.factory
		}
	}
	return nil
}

// Create validates the properties against this factory's requirements in
// order, converting values whose declared kind differs from the supplied
// kind, and constructs the entity. Errors accumulate; a missing required
// property or an unexpected key fails construction and returns nil.
func (f *Factory) Create(name string, props map[string]Value) (*Entity, []error) {
	var errs []error
	out := make(map[string]Value, len(props))
	seen := make(map[string]bool, len(props))

	for i := range f.requirements {
		req := &f.requirements[i]
		v, ok := props[req.Name]
		if !ok || v == nil {
			if req.Required {
				errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
					Reason: "required property missing"})
			}
			seen[req.Name] = true
			continue
		}
		seen[req.Name] = true

		switch req.Kind {
		case KindEntity:
			child, ok := v.(*Entity)
			if !ok {
				errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
					Reason: "expected a nested entity"})
				continue
			}
			out[req.Name] = child
		case KindEntityList:
			list, ok := v.(EntityList)
			if !ok {
				errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
					Reason: "expected an entity list"})
				continue
			}
			if len(list) < req.Min || (req.Max > 0 && len(list) > req.Max) {
				errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
					Reason: fmt.Sprintf("cardinality %d outside %d..%d", len(list), req.Min, req.Max)})
				continue
			}
			out[req.Name] = list
		case KindNone:
			out[req.Name] = normalize(v)
		default:
			converted, err := Convert(v, req.Kind)
			if err != nil {
				errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
					Reason: err.Error()})
				continue
			}
			if req.Kind == KindVector {
				vec := converted.(Vector)
				if req.Max > 0 && (len(vec) < req.Min || len(vec) > req.Max) {
					errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
						Reason: fmt.Sprintf("vector size %d outside %d..%d", len(vec), req.Min, req.Max)})
					continue
				}
			}
			out[req.Name] = converted
		}

		if !f.requirements[i].inVocabulary(out[req.Name]) {
			errs = append(errs, &PropertyError{Entity: name, Property: req.Name,
				Reason: fmt.Sprintf("value %v not in vocabulary", out[req.Name])})
			delete(out, req.Name)
		}
	}

	for k := range props {
		if !seen[k] {
			errs = append(errs, &PropertyError{Entity: name, Property: k,
				Reason: "unexpected property"})
		}
	}

	for _, err := range errs {
		if pe, ok := err.(*PropertyError); ok {
			req := f.requirement(pe.Property)
			if req == nil || req.Required || pe.Reason == "unexpected property" {
				return nil, errs
			}
		}
	}
	return f.construct(name, out), errs
}

func (f *Factory) requirement(name string) *Requirement {
	for i := range f.requirements {
		if f.requirements[i].Name == name {
			return &f.requirements[i]
		}
	}
	return nil
}
