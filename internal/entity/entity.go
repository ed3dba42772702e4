package entity

// ListProperty is the dedicated slot holding the members of a list entity.
const ListProperty = "LIST"

// ValueProperty is the slot holding an entity's simple content.
const ValueProperty = "VALUE"

// Entity is a node in an entity tree: a name, an optional namespaced
// display name, and a set of named property values.
type Entity struct {
	name  string
	qname string
	props map[string]Value
}

// New creates an empty entity.
func New(name string) *Entity {
	return &Entity{name: name, props: make(map[string]Value)}
}

// NewWith creates an entity taking ownership of the given properties.
func NewWith(name string, props map[string]Value) *Entity {
	if props == nil {
		props = make(map[string]Value)
	}
	return &Entity{name: name, props: props}
}

func (e *Entity) Name() string { return e.name }

func (e *Entity) SetName(name string) { e.name = name }

// QName returns the namespaced display name, falling back to the name.
func (e *Entity) QName() string {
	if e.qname != "" {
		return e.qname
	}
	return e.name
}

// SetQName sets the display name, optionally namespace-qualified.
func (e *Entity) SetQName(ns, local string) {
	if ns == "" {
		e.qname = local
	} else {
		e.qname = ns + ":" + local
	}
}

func (e *Entity) Get(key string) Value {
	return e.props[key]
}

func (e *Entity) Has(key string) bool {
	_, ok := e.props[key]
	return ok
}

func (e *Entity) Set(key string, v Value) {
	e.props[key] = normalize(v)
}

func (e *Entity) Erase(key string) {
	delete(e.props, key)
}

// Properties exposes the live property map.
func (e *Entity) Properties() map[string]Value {
	return e.props
}

// Value returns the simple content slot.
func (e *Entity) Value() Value { return e.props[ValueProperty] }

func (e *Entity) SetValue(v Value) { e.Set(ValueProperty, v) }

// List returns the members of a list entity.
func (e *Entity) List(key string) (EntityList, bool) {
	l, ok := e.props[key].(EntityList)
	return l, ok
}

// Members returns the contents of the dedicated LIST slot.
func (e *Entity) Members() (EntityList, bool) {
	return e.List(ListProperty)
}

// Copy returns a shallow copy with its own property map.
func (e *Entity) Copy() *Entity {
	props := make(map[string]Value, len(e.props))
	for k, v := range e.props {
		props[k] = v
	}
	return &Entity{name: e.name, qname: e.qname, props: props}
}

// MaybeGet returns the property converted to T when present and of that type.
func MaybeGet[T any](e *Entity, key string) (T, bool) {
	var zero T
	v, ok := e.props[key]
	if !ok {
		return zero, false
	}
	t, ok := normalize(v).(T)
	if !ok {
		return zero, false
	}
	return t, true
}
