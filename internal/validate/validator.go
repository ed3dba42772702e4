package validate

import (
	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Validator tags events against the controlled vocabularies, with
// deprecation marking relative to the agent's schema version. Data sets
// and tables pass through as valid; samples must carry a numeric value.
type Validator struct {
	pipeline.Base
	contract pipeline.Contract
	logOnce  map[string]bool
	log      zerolog.Logger
}

func NewValidator(ctx *pipeline.Context, log zerolog.Logger) *Validator {
	v := &Validator{
		contract: ctx.Contract,
		logOnce:  make(map[string]bool),
		log:      log.With().Str("component", "validator").Logger(),
	}
	v.Base = pipeline.NewBase("Validator", pipeline.Or(
		pipeline.TypeGuard[observation.Observation](pipeline.Run),
		pipeline.Always(pipeline.Skip)))
	return v
}

func (v *Validator) Apply(in any) (any, error) {
	obs, ok := in.(observation.Observation)
	if !ok {
		return nil, nil
	}

	di := obs.DataItem()
	valid := true
	if !obs.IsUnavailable() && di != nil && !di.IsDataSet() {
		switch o := obs.(type) {
		case observation.EventObs:
			valid = v.validateEvent(o)
		case observation.SampleObs:
			value := obs.Entity().Value()
			_, isFloat := value.(float64)
			_, isInt := value.(int64)
			if !obs.Entity().Has("quality") && !isFloat && !isInt {
				valid = false
			}
		}
	}

	if !valid {
		obs.Entity().Set("quality", "INVALID")
		id := ""
		if di != nil {
			id = di.ID
		}
		if v.logOnce[id] {
			v.log.Trace().Str("data_item", id).Msg("invalid value")
		} else {
			v.log.Warn().Str("data_item", id).Interface("value", obs.Entity().Value()).
				Msg("invalid value")
			v.logOnce[id] = true
		}
	} else if !obs.Entity().Has("quality") {
		obs.Entity().Set("quality", "VALID")
	}

	return v.Forward(obs)
}

// validateEvent checks an event value against its vocabulary. Returns
// false when invalid; unknown types are tagged unverifiable instead.
func (v *Validator) validateEvent(obs observation.EventObs) bool {
	name := obs.DataItem().ObservationName()
	vocab, known := Vocabulary[name]
	if !known {
		obs.Entity().Set("quality", "UNVERIFIABLE")
		return true
	}
	if len(vocab) == 0 {
		return true
	}

	value, isString := obs.Entity().Value().(string)
	if !isString {
		return false
	}
	r, ok := vocab[value]
	if !ok {
		return false
	}
	version := v.contract.SchemaVersion()
	if r.Introduced > 0 && version < r.Introduced {
		return false
	}
	if r.Deprecated > 0 && version >= r.Deprecated {
		obs.Entity().Set("deprecated", true)
	}
	return true
}
