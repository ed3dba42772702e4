package filters

import (
	"strings"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// UpcaseValue translates string event values to upper case. Only plain
// events match; other observations skip through.
type UpcaseValue struct {
	pipeline.Base
}

func NewUpcaseValue() *UpcaseValue {
	u := &UpcaseValue{}
	u.Base = pipeline.NewBase("UpcaseValue", pipeline.Or(
		pipeline.ExactTypeGuard[*observation.Event](pipeline.Run),
		pipeline.TypeGuard[observation.Observation](pipeline.Skip)))
	return u
}

func (u *UpcaseValue) Apply(v any) (any, error) {
	event, ok := v.(*observation.Event)
	if !ok {
		return nil, &entity.EntityError{Entity: "Event", Reason: "unexpected entity type in UpcaseValue"}
	}
	out := event.Copy().(*observation.Event)
	if s, ok := out.Value().(string); ok {
		out.SetValue(strings.ToUpper(s))
	}
	return u.Forward(out)
}
